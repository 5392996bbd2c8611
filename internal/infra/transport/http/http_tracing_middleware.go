package http

import (
	"net/http"

	context_ "github.com/mkrupp/feed/internal/infra/context"
	"github.com/mkrupp/feed/internal/util/ident"
)

const TraceIDHeader = "X-Request-ID"

const maxTraceIDLength = 128

// TracingMiddleware adds a trace ID to the request context and echoes it in the response.
// It uses the X-Request-ID header if present, otherwise generates a new compact UUIDv7.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := getTraceID(r)
		if traceID != "" {
			w.Header().Set(TraceIDHeader, traceID)
		}

		ctx := context_.WithTraceID(r.Context(), traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getTraceID(r *http.Request) string {
	if traceID := r.Header.Get(TraceIDHeader); traceID != "" && len(traceID) <= maxTraceIDLength {
		return traceID
	}

	traceID, err := ident.NewCompact()
	if err != nil {
		return ""
	}

	return traceID
}
