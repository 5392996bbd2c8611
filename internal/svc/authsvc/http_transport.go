package authsvc

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mkrupp/feed/internal/domain"
	"github.com/mkrupp/feed/internal/infra/logging"
	http_ "github.com/mkrupp/feed/internal/infra/transport/http"
)

// HTTPTransport handles HTTP requests for account registration and login.
type HTTPTransport struct {
	authSvc *AuthService
	log     logging.Logger
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a new HTTPTransport backed by authSvc.
func NewHTTPTransport(authSvc *AuthService) *HTTPTransport {
	return &HTTPTransport{
		authSvc: authSvc,
		log:     logging.GetLogger("svc.authsvc.http_transport"),
	}
}

// Routes registers the auth endpoints:
// - POST /auth/signup: register a new account (PUT is accepted as well)
// - POST /auth/login: exchange credentials for a token.
func (ht *HTTPTransport) Routes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", ht.HandleSignup)
		r.Put("/signup", ht.HandleSignup)
		r.Post("/login", ht.HandleLogin)
	})
}

// HandleSignup processes registration requests.
// Expects a JSON body with email, password and name.
func (ht *HTTPTransport) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if err := ht.handleSignup(w, r); err != nil {
		http_.WriteError(w, r, err)
	}
}

func (ht *HTTPTransport) handleSignup(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.DebugContext(ctx, "signup request failed", "error", err)
		} else {
			log.DebugContext(ctx, "signup request served")
		}
	}(r.Context())

	var req domain.SignupRequest
	if err := http_.DecodeJSON(r, &req); err != nil {
		return err
	}

	userID, err := ht.authSvc.Signup(r.Context(), req)
	if err != nil {
		return fmt.Errorf("signup: %w", err)
	}

	http_.WriteJSON(w, r, http.StatusCreated, domain.SignupResponse{
		Message: "User created!",
		UserID:  userID,
	})

	return nil
}

// HandleLogin processes login requests.
// Expects a JSON body with email and password and returns a bearer token.
func (ht *HTTPTransport) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := ht.handleLogin(w, r); err != nil {
		http_.WriteError(w, r, err)
	}
}

func (ht *HTTPTransport) handleLogin(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.DebugContext(ctx, "login request failed", "error", err)
		} else {
			log.DebugContext(ctx, "login request served")
		}
	}(r.Context())

	var req domain.LoginRequest
	if err := http_.DecodeJSON(r, &req); err != nil {
		return err
	}

	token, err := ht.authSvc.Login(r.Context(), req)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	http_.WriteJSON(w, r, http.StatusOK, token)

	return nil
}
