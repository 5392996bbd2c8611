package blob

import (
	"context"

	"github.com/mkrupp/feed/internal/domain"
)

// Repository defines the interface for blob storage operations.
// Blob IDs are slash separated relative paths such as "images/abc.png".
type Repository interface {
	// Store persists a blob, replacing any blob with the same ID.
	Store(ctx context.Context, blob *domain.Blob) error

	// Fetch retrieves a blob by its ID.
	// Returns ErrBlobNotFound if there is none.
	Fetch(ctx context.Context, id domain.BlobID) (*domain.Blob, error)

	// Delete removes a blob.
	// Returns ErrBlobNotFound if there is none.
	Delete(ctx context.Context, id domain.BlobID) error

	// List describes all blobs whose ID starts with prefix.
	List(ctx context.Context, prefix string) ([]domain.BlobInfo, error)
}

// RepositoryFactory is a function that creates a new Repository instance.
type RepositoryFactory func(ctx context.Context) (Repository, error)
