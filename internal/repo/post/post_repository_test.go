package post_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/feed/internal/domain"
	"github.com/mkrupp/feed/internal/infra/database"
	"github.com/mkrupp/feed/internal/repo/user"

	. "github.com/mkrupp/feed/internal/repo/post"
)

type newReposFunc func(t *testing.T, clock Clock) (Repository, user.Repository)

// stepClock advances by step on every call.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now
	c.now = c.now.Add(c.step)

	return now
}

func newClock(step time.Duration) Clock {
	return (&stepClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), step: step}).Now
}

func newMemoryRepos(_ *testing.T, clock Clock) (Repository, user.Repository) {
	users := user.NewMemoryUserRepository()

	return NewMemoryPostRepository(users).WithClock(clock), users
}

func newSQLiteRepos(t *testing.T, clock Clock) (Repository, user.Repository) {
	t.Helper()

	db, err := database.OpenSQLite(context.Background(), database.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewSQLitePostRepository(db).WithClock(clock), user.NewSQLiteUserRepository(db)
}

func TestPostRepositories(t *testing.T) {
	t.Parallel()

	backends := map[string]newReposFunc{
		"memory": newMemoryRepos,
		"sqlite": newSQLiteRepos,
	}

	for name, newRepos := range backends {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			runPostRepositoryTests(t, newRepos)
		})
	}
}

func createUser(t *testing.T, users user.Repository, id, name string) {
	t.Helper()

	require.NoError(t, users.CreateUser(context.Background(), &domain.User{
		ID:           id,
		Email:        id + "@x.com",
		PasswordHash: []byte("hash"),
		Name:         name,
		Status:       domain.DefaultUserStatus,
		CreatedAt:    time.Now(),
	}))
}

func insertPost(t *testing.T, repo Repository, creatorID string, n int) *domain.Post {
	t.Helper()

	post, err := repo.InsertPost(context.Background(), &domain.Post{
		Title:    fmt.Sprintf("Title %d", n),
		Content:  fmt.Sprintf("Content %d", n),
		ImageURL: domain.AssetRef(fmt.Sprintf("images/img%d.png", n)),
		Creator:  domain.CreatorSummary{ID: creatorID},
	})
	require.NoError(t, err)

	return post
}

func listAll(t *testing.T, repo Repository, pageSize int) (pages [][]*domain.Post, total int) {
	t.Helper()

	for offset := 0; ; offset += pageSize {
		posts, n, err := repo.ListPosts(context.Background(), offset, pageSize)
		require.NoError(t, err)

		total = n

		if len(posts) == 0 {
			return pages, total
		}

		pages = append(pages, posts)
	}
}

//nolint:funlen
func runPostRepositoryTests(t *testing.T, newRepos newReposFunc) {
	t.Helper()

	ctx := context.Background()

	t.Run("insert and get", func(t *testing.T) {
		repo, users := newRepos(t, newClock(time.Second))
		createUser(t, users, "u1", "Ann")

		inserted := insertPost(t, repo, "u1", 1)
		assert.NotEmpty(t, inserted.ID)
		assert.Equal(t, domain.CreatorSummary{ID: "u1", Name: "Ann"}, inserted.Creator)
		assert.False(t, inserted.CreatedAt.IsZero())
		assert.Equal(t, inserted.CreatedAt, inserted.UpdatedAt)

		got, err := repo.GetPost(ctx, inserted.ID)
		require.NoError(t, err)
		assert.Equal(t, inserted, got)

		other := insertPost(t, repo, "u1", 2)
		assert.NotEqual(t, inserted.ID, other.ID)
	})

	t.Run("insert with unknown creator", func(t *testing.T) {
		repo, _ := newRepos(t, newClock(time.Second))

		_, err := repo.InsertPost(ctx, &domain.Post{
			Title: "Title", Content: "Content", ImageURL: "images/x.png",
			Creator: domain.CreatorSummary{ID: "nobody"},
		})
		require.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("pagination partitions the feed", func(t *testing.T) {
		repo, users := newRepos(t, newClock(time.Second))
		createUser(t, users, "u1", "Ann")

		var ids []string
		for n := range 5 {
			ids = append([]string{insertPost(t, repo, "u1", n).ID}, ids...) // newest first
		}

		pages, total := listAll(t, repo, 2)
		assert.Equal(t, 5, total)
		require.Len(t, pages, 3) // ceil(5/2)

		var seen []string
		for _, page := range pages {
			for _, post := range page {
				seen = append(seen, post.ID)
			}
		}

		assert.Equal(t, ids, seen)

		posts, total, err := repo.ListPosts(ctx, 10, 2)
		require.NoError(t, err)
		assert.Empty(t, posts)
		assert.Equal(t, 5, total)
	})

	t.Run("equal timestamps order by insertion", func(t *testing.T) {
		repo, users := newRepos(t, newClock(0))
		createUser(t, users, "u1", "Ann")

		first := insertPost(t, repo, "u1", 1)
		second := insertPost(t, repo, "u1", 2)
		third := insertPost(t, repo, "u1", 3)

		pages, _ := listAll(t, repo, 2)
		require.Len(t, pages, 2)
		assert.Equal(t, third.ID, pages[0][0].ID)
		assert.Equal(t, second.ID, pages[0][1].ID)
		assert.Equal(t, first.ID, pages[1][0].ID)
	})

	t.Run("update", func(t *testing.T) {
		repo, users := newRepos(t, newClock(time.Second))
		createUser(t, users, "u1", "Ann")

		inserted := insertPost(t, repo, "u1", 1)

		updated, err := repo.UpdatePost(ctx, inserted.ID, domain.PostFields{
			Title: "New title", Content: "New content", ImageURL: "images/new.png",
		})
		require.NoError(t, err)
		assert.Equal(t, "New title", updated.Title)
		assert.Equal(t, "New content", updated.Content)
		assert.Equal(t, domain.AssetRef("images/new.png"), updated.ImageURL)
		assert.Equal(t, inserted.Creator, updated.Creator)
		assert.Equal(t, inserted.CreatedAt, updated.CreatedAt)
		assert.True(t, updated.UpdatedAt.After(inserted.UpdatedAt))

		_, err = repo.UpdatePost(ctx, "nope", domain.PostFields{})
		require.ErrorIs(t, err, domain.ErrPostNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		repo, users := newRepos(t, newClock(time.Second))
		createUser(t, users, "u1", "Ann")

		inserted := insertPost(t, repo, "u1", 1)
		require.NoError(t, repo.DeletePost(ctx, inserted.ID))

		_, err := repo.GetPost(ctx, inserted.ID)
		require.ErrorIs(t, err, domain.ErrPostNotFound)
		require.ErrorIs(t, err, domain.ErrNotFound)

		require.ErrorIs(t, repo.DeletePost(ctx, inserted.ID), domain.ErrPostNotFound)
	})

	t.Run("image referenced", func(t *testing.T) {
		repo, users := newRepos(t, newClock(time.Second))
		createUser(t, users, "u1", "Ann")

		inserted := insertPost(t, repo, "u1", 1)

		ok, err := repo.ImageReferenced(ctx, inserted.ImageURL)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.ImageReferenced(ctx, "images/other.png")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
