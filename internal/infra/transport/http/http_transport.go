package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/mkrupp/feed/internal/infra/logging"
)

// HTTPTransportConfig contains configuration parameters for HTTP servers.
type HTTPTransportConfig struct {
	// ServerAddr is the network address to listen on
	ServerAddr string `env:"SERVER_ADDR" default:":8080"`

	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" default:"30s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" default:"120s"`

	// ShutdownTimeout bounds the graceful shutdown once the context is cancelled
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`

	// CORSOrigins lists the allowed origins, "*" allows all
	CORSOrigins []string `env:"CORS_ORIGINS" default:"*"`
}

// HTTPTransport is implemented by the service transports.
// Routes registers the transport's endpoints on the given router.
type HTTPTransport interface {
	Routes(r chi.Router)
}

// NewRouter creates the root router with the standard middleware chain
// (tracing, logging, panic recovery, CORS) and registers all transports on it.
func NewRouter(cfg HTTPTransportConfig, transports ...HTTPTransport) chi.Router {
	log := logging.GetLogger("infra.transport.http")

	router := chi.NewRouter()
	router.Use(
		TracingMiddleware,
		LoggingMiddleware(log),
		RescueingMiddleware(log),
		//nolint:exhaustruct
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{
				http.MethodGet, http.MethodPost, http.MethodPut,
				http.MethodPatch, http.MethodDelete, http.MethodOptions,
			},
			AllowedHeaders: []string{"Content-Type", "Authorization", TraceIDHeader},
			ExposedHeaders: []string{TraceIDHeader},
			MaxAge:         300,
		}),
	)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, r, http.StatusNotFound, ErrorResponse{Message: "Not found."})
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, r, http.StatusMethodNotAllowed, ErrorResponse{Message: "Method not allowed."})
	})

	for _, transport := range transports {
		transport.Routes(router)
	}

	return router
}

// ListenAndServe serves handler until ctx is cancelled, then shuts the server down
// gracefully within cfg.ShutdownTimeout.
func ListenAndServe(ctx context.Context, handler http.Handler, cfg HTTPTransportConfig) (err error) {
	log := logging.GetLogger("infra.transport.http")

	//nolint:exhaustruct
	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ErrorLog:          logging.GetLogLogger(log, logging.LevelError),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	sock, err := net.Listen("tcp", cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	log.InfoContext(ctx, "listening", "addr", sock.Addr().String())

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- server.Serve(sock)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	log.InfoContext(ctx, "shutting down", "timeout", cfg.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()

		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}
