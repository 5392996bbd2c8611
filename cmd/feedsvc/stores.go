package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mkrupp/feed/internal/infra/database"
	http_ "github.com/mkrupp/feed/internal/infra/transport/http"
	"github.com/mkrupp/feed/internal/repo/blob"
	"github.com/mkrupp/feed/internal/repo/post"
	"github.com/mkrupp/feed/internal/repo/user"
)

var (
	errUnknownStoreDriver = errors.New("unknown store driver")
	errUnknownBlobDriver  = errors.New("unknown blob driver")
)

// stores holds the user and post repositories together with the database they share.
type stores struct {
	users user.Repository
	posts post.Repository
	db    io.Closer
}

func (s *stores) Close() {
	_ = s.posts.Close()
	_ = s.users.Close()

	if s.db != nil {
		_ = s.db.Close()
	}
}

type poolCloser func()

func (c poolCloser) Close() error {
	c()

	return nil
}

func openStores(ctx context.Context, cfg Config) (*stores, error) {
	var (
		userFactory user.RepositoryFactory
		postFactory func(users user.Repository) post.RepositoryFactory
		db          io.Closer
	)

	switch cfg.StoreDriver {
	case "memory":
		userFactory = user.MemoryUserRepositoryFactory()
		postFactory = func(users user.Repository) post.RepositoryFactory {
			return post.MemoryPostRepositoryFactory(users)
		}
	case "sqlite":
		sqlDB, err := database.OpenSQLite(ctx, cfg.SQLite)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}

		db = sqlDB
		userFactory = user.SQLiteUserRepositoryFactory(sqlDB)
		postFactory = func(user.Repository) post.RepositoryFactory {
			return post.SQLitePostRepositoryFactory(sqlDB)
		}
	case "postgres":
		pool, err := database.ConnectPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		db = poolCloser(pool.Close)
		userFactory = user.PostgresUserRepositoryFactory(pool)
		postFactory = func(user.Repository) post.RepositoryFactory {
			return post.PostgresPostRepositoryFactory(pool)
		}
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownStoreDriver, cfg.StoreDriver)
	}

	users, err := userFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("new user repository: %w", err)
	}

	posts, err := postFactory(users)(ctx)
	if err != nil {
		return nil, fmt.Errorf("new post repository: %w", err)
	}

	return &stores{users: users, posts: posts, db: db}, nil
}

func openBlobs(ctx context.Context, cfg Config) (blob.Repository, error) {
	var factory blob.RepositoryFactory

	switch cfg.BlobDriver {
	case "filesystem":
		factory = blob.FileSystemBlobRepositoryFactory(cfg.Blob)
	case "s3":
		factory = blob.S3BlobRepositoryFactory(cfg.S3)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownBlobDriver, cfg.BlobDriver)
	}

	blobs, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("new blob repository: %w", err)
	}

	return blobs, nil
}

// healthTransport serves GET /healthz.
type healthTransport struct{}

func (healthTransport) Routes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		http_.WriteJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
}
