package post

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mkrupp/feed/internal/domain"
	"github.com/mkrupp/feed/internal/infra/database"
	"github.com/mkrupp/feed/internal/util/ident"
)

const postgresPostColumns = `
	p.id, p.title, p.content, p.image_url, p.creator_id, u.name, p.created_at, p.updated_at, p.seq
	FROM posts p JOIN users u ON u.id = p.creator_id`

// PostgresPostRepository implements Repository using PostgreSQL.
type PostgresPostRepository struct {
	db  database.DBTX
	now Clock
}

var _ Repository = (*PostgresPostRepository)(nil)

// PostgresPostRepositoryFactory creates a factory function that returns a new PostgresPostRepository.
func PostgresPostRepositoryFactory(db database.DBTX) RepositoryFactory {
	return func(context.Context) (Repository, error) {
		return NewPostgresPostRepository(db), nil
	}
}

// NewPostgresPostRepository creates a new PostgresPostRepository.
func NewPostgresPostRepository(db database.DBTX) *PostgresPostRepository {
	return &PostgresPostRepository{db: db, now: time.Now}
}

// WithClock replaces the clock used to stamp posts.
func (r *PostgresPostRepository) WithClock(now Clock) *PostgresPostRepository {
	r.now = now

	return r
}

// timestamptz has microsecond precision
func (r *PostgresPostRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

func scanPostgresPost(row pgx.Row) (*domain.Post, error) {
	var (
		post     domain.Post
		imageURL string
	)

	if err := row.Scan(
		&post.ID, &post.Title, &post.Content, &imageURL,
		&post.Creator.ID, &post.Creator.Name,
		&post.CreatedAt, &post.UpdatedAt, &post.Seq,
	); err != nil {
		return nil, err //nolint:wrapcheck
	}

	post.ImageURL = domain.AssetRef(imageURL)
	post.CreatedAt = post.CreatedAt.UTC()
	post.UpdatedAt = post.UpdatedAt.UTC()

	return &post, nil
}

// ListPosts implements Repository.ListPosts using PostgreSQL.
func (r *PostgresPostRepository) ListPosts(ctx context.Context, offset, limit int) ([]*domain.Post, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM posts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+postgresPostColumns+` ORDER BY p.created_at DESC, p.seq DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := []*domain.Post{}

	for rows.Next() {
		post, err := scanPostgresPost(rows)
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

// GetPost implements Repository.GetPost using PostgreSQL.
func (r *PostgresPostRepository) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	post, err := scanPostgresPost(r.db.QueryRow(ctx, `SELECT `+postgresPostColumns+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = errors.Join(domain.ErrPostNotFound, err)
		}

		return nil, fmt.Errorf("query post: %w", err)
	}

	return post, nil
}

// InsertPost implements Repository.InsertPost using PostgreSQL.
func (r *PostgresPostRepository) InsertPost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	id, err := ident.New()
	if err != nil {
		return nil, fmt.Errorf("new post id: %w", err)
	}

	now := r.timestamp()

	_, err = r.db.Exec(ctx,
		`INSERT INTO posts (id, title, content, image_url, creator_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		id, post.Title, post.Content, string(post.ImageURL), post.Creator.ID, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			err = errors.Join(domain.ErrUserNotFound, err)
		}

		return nil, fmt.Errorf("insert post: %w", err)
	}

	return r.GetPost(ctx, id)
}

// UpdatePost implements Repository.UpdatePost using PostgreSQL.
func (r *PostgresPostRepository) UpdatePost(
	ctx context.Context,
	id string,
	fields domain.PostFields,
) (*domain.Post, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE posts SET title = $1, content = $2, image_url = $3, updated_at = $4 WHERE id = $5`,
		fields.Title, fields.Content, string(fields.ImageURL), r.timestamp(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("update post: %w", domain.ErrPostNotFound)
	}

	return r.GetPost(ctx, id)
}

// DeletePost implements Repository.DeletePost using PostgreSQL.
func (r *PostgresPostRepository) DeletePost(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete post: %w", domain.ErrPostNotFound)
	}

	return nil
}

// ImageReferenced implements Repository.ImageReferenced using PostgreSQL.
func (r *PostgresPostRepository) ImageReferenced(ctx context.Context, ref domain.AssetRef) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM posts WHERE image_url = $1)`, string(ref),
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("query image ref: %w", err)
	}

	return exists, nil
}

// Close implements Repository.Close. The pool is closed by its owner.
func (r *PostgresPostRepository) Close() error {
	return nil
}
