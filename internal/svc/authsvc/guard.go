package authsvc

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkrupp/feed/internal/domain"
	"github.com/mkrupp/feed/internal/infra/logging"
	http_ "github.com/mkrupp/feed/internal/infra/transport/http"
	"github.com/mkrupp/feed/internal/repo/post"
)

const bearerScheme = "Bearer"

// TokenValidator validates session tokens.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*domain.AuthClaims, error)
}

var _ TokenValidator = (*CredentialService)(nil)

// Guard authenticates requests and authorizes post mutations.
type Guard struct {
	tokens TokenValidator
	posts  post.Repository
	log    logging.Logger
}

var _ http_.Authenticator = (*Guard)(nil)

// NewGuard creates a Guard validating tokens with tokens and looking up posts in posts.
func NewGuard(tokens TokenValidator, posts post.Repository) *Guard {
	return &Guard{
		tokens: tokens,
		posts:  posts,
		log:    logging.GetLogger("svc.authsvc.guard"),
	}
}

// Authenticate resolves the raw Authorization header to the identity of a valid token.
// A missing or malformed header is rejected without validating anything.
func (g *Guard) Authenticate(ctx context.Context, authHeader string) (claims *domain.AuthClaims, err error) {
	if strings.TrimSpace(authHeader) == "" {
		return nil, domain.ErrNoAuthToken
	}

	fields := strings.Fields(authHeader)
	if len(fields) != 2 || !strings.EqualFold(fields[0], bearerScheme) {
		return nil, domain.ErrMalformedAuthInfo
	}

	claims, err = g.tokens.ValidateToken(ctx, fields[1])
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}

	return claims, nil
}

// AuthorizeOwnership fails with ErrNotPostOwner unless userID created post.
func (g *Guard) AuthorizeOwnership(userID string, post *domain.Post) error {
	if !post.OwnedBy(userID) {
		return domain.ErrNotPostOwner
	}

	return nil
}

// AuthorizePost loads a post and checks that userID may mutate it.
// Returns ErrPostNotFound before any ownership check.
func (g *Guard) AuthorizePost(ctx context.Context, userID, postID string) (_ *domain.Post, err error) {
	log := g.log.With(logging.Group("post", "id", postID, "user_id", userID))

	defer func() {
		if err != nil {
			log.DebugContext(ctx, "post authorization denied", "error", err)
		} else {
			log.DebugContext(ctx, "post authorized")
		}
	}()

	post, err := g.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}

	if err := g.AuthorizeOwnership(userID, post); err != nil {
		return nil, err
	}

	return post, nil
}
