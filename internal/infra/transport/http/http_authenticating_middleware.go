package http

import (
	"context"
	"net/http"

	"github.com/mkrupp/feed/internal/domain"
	context_ "github.com/mkrupp/feed/internal/infra/context"
	"github.com/mkrupp/feed/internal/infra/logging"
)

// Authenticator validates the Authorization header of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, authHeader string) (*domain.AuthClaims, error)
}

// AuthenticatingMiddleware creates middleware that rejects requests without a valid
// bearer token with 401. On success the user ID is added to the request context.
func AuthenticatingMiddleware(auth Authenticator, log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				log.WarnContext(r.Context(), "authentication failed", "error", err)
				WriteError(w, r, err)

				return
			}

			next.ServeHTTP(w, r.WithContext(context_.WithUserID(r.Context(), claims.UserID)))
		})
	}
}
