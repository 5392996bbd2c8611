package user

import (
	"context"

	"github.com/mkrupp/feed/internal/domain"
)

// Repository defines the interface for user data persistence.
type Repository interface {
	// CreateUser adds a new user to the repository.
	// Returns ErrUserAlreadyExists if the email is already taken.
	CreateUser(ctx context.Context, user *domain.User) error

	// GetUserByEmail retrieves a user by their email.
	// Returns the user object and true if found, or nil and false with ErrUserNotFound if not found.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, bool, error)

	// GetUserByID retrieves a user by their ID, including the IDs of their posts.
	// Returns the user object and true if found, or nil and false with ErrUserNotFound if not found.
	GetUserByID(ctx context.Context, id string) (*domain.User, bool, error)

	// UpdateStatus replaces the status of a user.
	UpdateStatus(ctx context.Context, id string, status string) error

	// AddPost appends a post reference to the user's post list.
	AddPost(ctx context.Context, id string, postID string) error

	// RemovePost removes a post reference from the user's post list.
	// Removing an absent reference is not an error.
	RemovePost(ctx context.Context, id string, postID string) error

	// Close releases any resources held by the repository.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
type RepositoryFactory func(ctx context.Context) (Repository, error)
