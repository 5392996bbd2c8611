package user

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/mkrupp/feed/internal/domain"
)

// MemoryUserRepository implements Repository in process memory.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
}

var _ Repository = (*MemoryUserRepository)(nil)

// MemoryUserRepositoryFactory creates a factory function that returns a new MemoryUserRepository.
func MemoryUserRepositoryFactory() RepositoryFactory {
	return func(context.Context) (Repository, error) {
		return NewMemoryUserRepository(), nil
	}
}

// NewMemoryUserRepository creates an empty MemoryUserRepository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

func cloneUser(user *domain.User) *domain.User {
	c := *user
	c.PasswordHash = slices.Clone(user.PasswordHash)
	c.Posts = slices.Clone(user.Posts)

	return &c
}

// CreateUser implements Repository.CreateUser.
func (r *MemoryUserRepository) CreateUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[user.Email]; ok {
		return fmt.Errorf("insert user: %w", domain.ErrUserAlreadyExists)
	}

	if _, ok := r.byID[user.ID]; ok {
		return fmt.Errorf("insert user: %w", domain.ErrUserAlreadyExists)
	}

	r.byID[user.ID] = cloneUser(user)
	r.byEmail[user.Email] = user.ID

	return nil
}

// GetUserByEmail implements Repository.GetUserByEmail.
func (r *MemoryUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, bool, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()

	if !ok {
		return nil, false, fmt.Errorf("query user: %w", domain.ErrUserNotFound)
	}

	return r.GetUserByID(ctx, id)
}

// GetUserByID implements Repository.GetUserByID.
func (r *MemoryUserRepository) GetUserByID(_ context.Context, id string) (*domain.User, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, false, fmt.Errorf("query user: %w", domain.ErrUserNotFound)
	}

	return cloneUser(user), true, nil
}

// UpdateStatus implements Repository.UpdateStatus.
func (r *MemoryUserRepository) UpdateStatus(_ context.Context, id string, status string) error {
	return r.update(id, func(user *domain.User) {
		user.Status = status
	})
}

// AddPost implements Repository.AddPost.
func (r *MemoryUserRepository) AddPost(_ context.Context, id string, postID string) error {
	return r.update(id, func(user *domain.User) {
		if !slices.Contains(user.Posts, postID) {
			user.Posts = append(user.Posts, postID)
		}
	})
}

// RemovePost implements Repository.RemovePost.
func (r *MemoryUserRepository) RemovePost(_ context.Context, id string, postID string) error {
	return r.update(id, func(user *domain.User) {
		user.Posts = slices.DeleteFunc(user.Posts, func(p string) bool { return p == postID })
	})
}

func (r *MemoryUserRepository) update(id string, fn func(user *domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("update user: %w", domain.ErrUserNotFound)
	}

	fn(user)

	return nil
}

// Close implements Repository.Close.
func (r *MemoryUserRepository) Close() error {
	return nil
}
