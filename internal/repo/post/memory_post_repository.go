package post

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mkrupp/feed/internal/domain"
	"github.com/mkrupp/feed/internal/util/ident"
)

// UserLookup resolves post creators.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, bool, error)
}

// MemoryPostRepository implements Repository in process memory.
// Creator summaries are resolved through a UserLookup on every read.
type MemoryPostRepository struct {
	mu    sync.RWMutex
	posts map[string]*domain.Post
	seq   int64
	users UserLookup
	now   Clock
}

var _ Repository = (*MemoryPostRepository)(nil)

// MemoryPostRepositoryFactory creates a factory function that returns a new MemoryPostRepository.
func MemoryPostRepositoryFactory(users UserLookup) RepositoryFactory {
	return func(context.Context) (Repository, error) {
		return NewMemoryPostRepository(users), nil
	}
}

// NewMemoryPostRepository creates an empty MemoryPostRepository.
func NewMemoryPostRepository(users UserLookup) *MemoryPostRepository {
	return &MemoryPostRepository{
		posts: make(map[string]*domain.Post),
		users: users,
		now:   time.Now,
	}
}

// WithClock replaces the clock used to stamp posts.
func (r *MemoryPostRepository) WithClock(now Clock) *MemoryPostRepository {
	r.now = now

	return r
}

// ListPosts implements Repository.ListPosts.
func (r *MemoryPostRepository) ListPosts(ctx context.Context, offset, limit int) ([]*domain.Post, int, error) {
	r.mu.RLock()

	all := make([]domain.Post, 0, len(r.posts))
	for _, post := range r.posts {
		all = append(all, *post)
	}

	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}

		return all[i].Seq > all[j].Seq
	})

	total := len(all)
	if offset >= total || limit <= 0 {
		return []*domain.Post{}, total, nil
	}

	page := all[offset:min(offset+limit, total)]
	posts := make([]*domain.Post, 0, len(page))

	for i := range page {
		post := page[i]
		if err := r.resolveCreator(ctx, &post); err != nil {
			return nil, 0, err
		}

		posts = append(posts, &post)
	}

	return posts, total, nil
}

// GetPost implements Repository.GetPost.
func (r *MemoryPostRepository) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	r.mu.RLock()
	stored, ok := r.posts[id]

	var post domain.Post
	if ok {
		post = *stored
	}

	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("query post: %w", domain.ErrPostNotFound)
	}

	if err := r.resolveCreator(ctx, &post); err != nil {
		return nil, err
	}

	return &post, nil
}

// InsertPost implements Repository.InsertPost.
func (r *MemoryPostRepository) InsertPost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	if _, _, err := r.users.GetUserByID(ctx, post.Creator.ID); err != nil {
		return nil, fmt.Errorf("query creator: %w", err)
	}

	id, err := ident.New()
	if err != nil {
		return nil, fmt.Errorf("new post id: %w", err)
	}

	now := r.now().UTC()
	stored := &domain.Post{
		ID:        id,
		Title:     post.Title,
		Content:   post.Content,
		ImageURL:  post.ImageURL,
		Creator:   domain.CreatorSummary{ID: post.Creator.ID},
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.seq++
	stored.Seq = r.seq
	r.posts[id] = stored
	r.mu.Unlock()

	return r.GetPost(ctx, id)
}

// UpdatePost implements Repository.UpdatePost.
func (r *MemoryPostRepository) UpdatePost(ctx context.Context, id string, fields domain.PostFields) (*domain.Post, error) {
	r.mu.Lock()

	stored, ok := r.posts[id]
	if ok {
		stored.Title = fields.Title
		stored.Content = fields.Content
		stored.ImageURL = fields.ImageURL
		stored.UpdatedAt = r.now().UTC()
	}

	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("update post: %w", domain.ErrPostNotFound)
	}

	return r.GetPost(ctx, id)
}

// DeletePost implements Repository.DeletePost.
func (r *MemoryPostRepository) DeletePost(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.posts[id]; !ok {
		return fmt.Errorf("delete post: %w", domain.ErrPostNotFound)
	}

	delete(r.posts, id)

	return nil
}

// ImageReferenced implements Repository.ImageReferenced.
func (r *MemoryPostRepository) ImageReferenced(_ context.Context, ref domain.AssetRef) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, post := range r.posts {
		if post.ImageURL == ref {
			return true, nil
		}
	}

	return false, nil
}

func (r *MemoryPostRepository) resolveCreator(ctx context.Context, post *domain.Post) error {
	user, _, err := r.users.GetUserByID(ctx, post.Creator.ID)
	if err != nil {
		return fmt.Errorf("query creator: %w", err)
	}

	post.Creator = user.Summary()

	return nil
}

// Close implements Repository.Close.
func (r *MemoryPostRepository) Close() error {
	return nil
}
