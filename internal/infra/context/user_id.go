package context

import (
	"context"
)

const contextKeyUserID = contextKey("userID")

// UserIDFromContext extracts the authenticated user's ID from the context.
// Returns false for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(contextKeyUserID).(string)

	return userID, ok && userID != ""
}

// WithUserID returns a context carrying the authenticated user's ID.
// It is set by the authenticating middleware after token validation.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUserID, userID)
}
