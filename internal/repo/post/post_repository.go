package post

import (
	"context"
	"time"

	"github.com/mkrupp/feed/internal/domain"
)

// Repository defines the interface for post persistence.
// Every returned post carries its creator summary.
type Repository interface {
	// ListPosts returns up to limit posts starting at offset, newest first,
	// and the total number of posts. Posts with equal creation times are
	// ordered by insertion, latest first.
	ListPosts(ctx context.Context, offset, limit int) ([]*domain.Post, int, error)

	// GetPost retrieves a post by its ID.
	// Returns ErrPostNotFound if there is none.
	GetPost(ctx context.Context, id string) (*domain.Post, error)

	// InsertPost stores a new post created by post.Creator.ID.
	// The repository assigns ID, sequence and timestamps and returns the stored post.
	InsertPost(ctx context.Context, post *domain.Post) (*domain.Post, error)

	// UpdatePost replaces the mutable fields of a post.
	// Returns ErrPostNotFound if there is none.
	UpdatePost(ctx context.Context, id string, fields domain.PostFields) (*domain.Post, error)

	// DeletePost removes a post.
	// Returns ErrPostNotFound if there is none.
	DeletePost(ctx context.Context, id string) error

	// ImageReferenced reports whether any post references the given image.
	ImageReferenced(ctx context.Context, ref domain.AssetRef) (bool, error)

	// Close releases any resources held by the repository.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
type RepositoryFactory func(ctx context.Context) (Repository, error)

// Clock returns the current time. Repositories use it to stamp posts.
type Clock func() time.Time
