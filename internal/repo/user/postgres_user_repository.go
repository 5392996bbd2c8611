package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mkrupp/feed/internal/domain"
	"github.com/mkrupp/feed/internal/infra/database"
)

const pgUniqueViolation = "23505"

// PostgresUserRepository implements Repository using PostgreSQL.
type PostgresUserRepository struct {
	db database.DBTX
}

var _ Repository = (*PostgresUserRepository)(nil)

// PostgresUserRepositoryFactory creates a factory function that returns a new PostgresUserRepository.
func PostgresUserRepositoryFactory(db database.DBTX) RepositoryFactory {
	return func(context.Context) (Repository, error) {
		return NewPostgresUserRepository(db), nil
	}
}

// NewPostgresUserRepository creates a new PostgresUserRepository.
func NewPostgresUserRepository(db database.DBTX) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// CreateUser implements Repository.CreateUser using PostgreSQL.
func (r *PostgresUserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, name, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.Status,
		user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			err = errors.Join(domain.ErrUserAlreadyExists, err)
		}

		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetUserByEmail implements Repository.GetUserByEmail using PostgreSQL.
func (r *PostgresUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, bool, error) {
	return r.getUser(ctx, `WHERE u.email = $1`, email)
}

// GetUserByID implements Repository.GetUserByID using PostgreSQL.
func (r *PostgresUserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, bool, error) {
	return r.getUser(ctx, `WHERE u.id = $1`, id)
}

func (r *PostgresUserRepository) getUser(ctx context.Context, where string, arg string) (*domain.User, bool, error) {
	var user domain.User

	err := r.db.QueryRow(ctx, `
		SELECT u.id, u.email, u.password_hash, u.name, u.status, u.created_at,
			COALESCE(ARRAY(SELECT up.post_id FROM user_posts up WHERE up.user_id = u.id ORDER BY up.seq), '{}')
		FROM users u `+where,
		arg,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.Status, &user.CreatedAt, &user.Posts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = errors.Join(domain.ErrUserNotFound, err)
		}

		return nil, false, fmt.Errorf("query user: %w", err)
	}

	user.CreatedAt = user.CreatedAt.UTC()

	if len(user.Posts) == 0 {
		user.Posts = nil
	}

	return &user, true, nil
}

// UpdateStatus implements Repository.UpdateStatus using PostgreSQL.
func (r *PostgresUserRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update user: %w", domain.ErrUserNotFound)
	}

	return nil
}

// AddPost implements Repository.AddPost using PostgreSQL.
func (r *PostgresUserRepository) AddPost(ctx context.Context, id string, postID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_posts (user_id, post_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, postID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			err = errors.Join(domain.ErrUserNotFound, err)
		}

		return fmt.Errorf("insert user post: %w", err)
	}

	return nil
}

// RemovePost implements Repository.RemovePost using PostgreSQL.
func (r *PostgresUserRepository) RemovePost(ctx context.Context, id string, postID string) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM user_posts WHERE user_id = $1 AND post_id = $2`, id, postID,
	); err != nil {
		return fmt.Errorf("delete user post: %w", err)
	}

	return nil
}

// Close implements Repository.Close. The pool is closed by its owner.
func (r *PostgresUserRepository) Close() error {
	return nil
}
