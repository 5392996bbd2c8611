package http

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/mkrupp/feed/internal/infra/logging"
)

// RescueingMiddleware creates middleware that recovers from panics in HTTP handlers.
// It logs the panic and stack trace, then responds with 500 Internal Server Error.
func RescueingMiddleware(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}

				//nolint:errorlint
				if p == http.ErrAbortHandler {
					panic(p)
				}

				log.ErrorContext(r.Context(), "request panic", slog.Group("http",
					"uri", r.RequestURI,
					"method", r.Method,
				), slog.Group("error",
					"panic", p,
					"stack", string(debug.Stack()),
				))

				WriteJSON(w, r, http.StatusInternalServerError, ErrorResponse{Message: internalErrorMessage})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
