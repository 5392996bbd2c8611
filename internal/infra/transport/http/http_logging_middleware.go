package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mkrupp/feed/internal/infra/logging"
)

// LoggingMiddleware creates middleware that logs HTTP request and response details.
// Requests are logged at DEBUG, responses at a level determined by the status code:
// ERROR for 5xx, WARN for 4xx and INFO otherwise.
func LoggingMiddleware(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		//nolint:varnamelen
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.DebugContext(r.Context(), "request", slog.Group("http",
				"uri", r.RequestURI,
				"method", r.Method,
			))

			// the wrapper keeps http.Hijacker intact for websocket upgrades
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			var level logging.Level

			switch {
			case status >= http.StatusInternalServerError:
				level = logging.LevelError
			case status >= http.StatusBadRequest:
				level = logging.LevelWarn
			default:
				level = logging.LevelInfo
			}

			log.Log(r.Context(), level, "response", slog.Group("http",
				"uri", r.RequestURI,
				"method", r.Method,
				"status", status,
				"bytes_sent", ww.BytesWritten(),
				"duration", time.Since(start),
			))
		})
	}
}
