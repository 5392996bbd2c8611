package post

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mkrupp/feed/internal/domain"
	"github.com/mkrupp/feed/internal/util/ident"
)

const sqlitePostColumns = `
	p.id, p.title, p.content, p.image_url, p.creator_id, u.name, p.created_at, p.updated_at, p.seq
	FROM posts p JOIN users u ON u.id = p.creator_id`

// SQLitePostRepository implements Repository using SQLite.
// The database is shared with the user repository and owned by the caller.
type SQLitePostRepository struct {
	db  *sql.DB
	now Clock
}

var _ Repository = (*SQLitePostRepository)(nil)

// SQLitePostRepositoryFactory creates a factory function that returns a new SQLitePostRepository.
func SQLitePostRepositoryFactory(db *sql.DB) RepositoryFactory {
	return func(context.Context) (Repository, error) {
		return NewSQLitePostRepository(db), nil
	}
}

// NewSQLitePostRepository creates a new SQLitePostRepository on an opened database.
func NewSQLitePostRepository(db *sql.DB) *SQLitePostRepository {
	return &SQLitePostRepository{db: db, now: time.Now}
}

// WithClock replaces the clock used to stamp posts.
func (r *SQLitePostRepository) WithClock(now Clock) *SQLitePostRepository {
	r.now = now

	return r
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePost(row sqliteScanner) (*domain.Post, error) {
	var (
		post                 domain.Post
		imageURL             string
		createdAt, updatedAt int64
	)

	if err := row.Scan(
		&post.ID, &post.Title, &post.Content, &imageURL,
		&post.Creator.ID, &post.Creator.Name,
		&createdAt, &updatedAt, &post.Seq,
	); err != nil {
		return nil, err //nolint:wrapcheck
	}

	post.ImageURL = domain.AssetRef(imageURL)
	post.CreatedAt = time.Unix(0, createdAt).UTC()
	post.UpdatedAt = time.Unix(0, updatedAt).UTC()

	return &post, nil
}

// ListPosts implements Repository.ListPosts using SQLite.
func (r *SQLitePostRepository) ListPosts(ctx context.Context, offset, limit int) ([]*domain.Post, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM posts").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sqlitePostColumns+" ORDER BY p.created_at DESC, p.seq DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := []*domain.Post{}

	for rows.Next() {
		post, err := scanSQLitePost(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan post: %w", err)
		}

		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate posts: %w", err)
	}

	return posts, total, nil
}

// GetPost implements Repository.GetPost using SQLite.
func (r *SQLitePostRepository) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	post, err := scanSQLitePost(r.db.QueryRowContext(ctx, "SELECT "+sqlitePostColumns+" WHERE p.id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errors.Join(domain.ErrPostNotFound, err)
		}

		return nil, fmt.Errorf("query post: %w", err)
	}

	return post, nil
}

// InsertPost implements Repository.InsertPost using SQLite.
func (r *SQLitePostRepository) InsertPost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	id, err := ident.New()
	if err != nil {
		return nil, fmt.Errorf("new post id: %w", err)
	}

	now := r.now().UnixNano()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO posts (id, title, content, image_url, creator_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, post.Title, post.Content, string(post.ImageURL), post.Creator.ID, now, now,
	)
	if err != nil {
		var liteErr *sqlite.Error
		if errors.As(err, &liteErr) && liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
			err = errors.Join(domain.ErrUserNotFound, err)
		}

		return nil, fmt.Errorf("insert post: %w", err)
	}

	return r.GetPost(ctx, id)
}

// UpdatePost implements Repository.UpdatePost using SQLite.
func (r *SQLitePostRepository) UpdatePost(ctx context.Context, id string, fields domain.PostFields) (*domain.Post, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE posts SET title = ?, content = ?, image_url = ?, updated_at = ? WHERE id = ?",
		fields.Title, fields.Content, string(fields.ImageURL), r.now().UnixNano(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}

	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, fmt.Errorf("update post: %w", domain.ErrPostNotFound)
	}

	return r.GetPost(ctx, id)
}

// DeletePost implements Repository.DeletePost using SQLite.
func (r *SQLitePostRepository) DeletePost(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM posts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("delete post: %w", domain.ErrPostNotFound)
	}

	return nil
}

// ImageReferenced implements Repository.ImageReferenced using SQLite.
func (r *SQLitePostRepository) ImageReferenced(ctx context.Context, ref domain.AssetRef) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM posts WHERE image_url = ?)", string(ref),
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("query image ref: %w", err)
	}

	return exists, nil
}

// Close implements Repository.Close. The shared database is closed by its owner.
func (r *SQLitePostRepository) Close() error {
	return nil
}
