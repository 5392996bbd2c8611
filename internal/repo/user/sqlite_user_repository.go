package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mkrupp/feed/internal/domain"
)

// SQLiteUserRepository implements Repository using SQLite as the storage backend.
// The database is shared with the post repository and owned by the caller.
type SQLiteUserRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteUserRepository)(nil)

// SQLiteUserRepositoryFactory creates a factory function that returns a new SQLiteUserRepository.
func SQLiteUserRepositoryFactory(db *sql.DB) RepositoryFactory {
	return func(context.Context) (Repository, error) {
		return NewSQLiteUserRepository(db), nil
	}
}

// NewSQLiteUserRepository creates a new SQLiteUserRepository on an opened database.
func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// CreateUser implements Repository.CreateUser using SQLite.
func (r *SQLiteUserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, name, status, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.Status,
		user.CreatedAt.UnixNano(),
	)
	if err != nil {
		var liteErr *sqlite.Error
		if errors.As(err, &liteErr) {
			switch liteErr.Code() {
			case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
				err = errors.Join(domain.ErrUserAlreadyExists, err)
			}
		}

		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetUserByEmail implements Repository.GetUserByEmail using SQLite.
func (r *SQLiteUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, bool, error) {
	return r.getUser(ctx, "email", email)
}

// GetUserByID implements Repository.GetUserByID using SQLite.
func (r *SQLiteUserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, bool, error) {
	return r.getUser(ctx, "id", id)
}

func (r *SQLiteUserRepository) getUser(ctx context.Context, column, value string) (*domain.User, bool, error) {
	var (
		user      domain.User
		createdAt int64
	)

	//nolint:gosec
	err := r.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, name, status, created_at FROM users WHERE "+column+" = ?",
		value,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.Status, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errors.Join(domain.ErrUserNotFound, err)
		}

		return nil, false, fmt.Errorf("query user: %w", err)
	}

	user.CreatedAt = time.Unix(0, createdAt).UTC()

	posts, err := r.getPostIDs(ctx, user.ID)
	if err != nil {
		return nil, false, err
	}

	user.Posts = posts

	return &user, true, nil
}

func (r *SQLiteUserRepository) getPostIDs(ctx context.Context, id string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT post_id FROM user_posts WHERE user_id = ? ORDER BY rowid", id)
	if err != nil {
		return nil, fmt.Errorf("query user posts: %w", err)
	}
	defer rows.Close()

	var posts []string

	for rows.Next() {
		var postID string
		if err := rows.Scan(&postID); err != nil {
			return nil, fmt.Errorf("scan user post: %w", err)
		}

		posts = append(posts, postID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user posts: %w", err)
	}

	return posts, nil
}

// UpdateStatus implements Repository.UpdateStatus using SQLite.
func (r *SQLiteUserRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	return r.expectRow(res)
}

// AddPost implements Repository.AddPost using SQLite.
func (r *SQLiteUserRepository) AddPost(ctx context.Context, id string, postID string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO user_posts (user_id, post_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
		id, postID,
	)
	if err != nil {
		var liteErr *sqlite.Error
		if errors.As(err, &liteErr) && liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
			err = errors.Join(domain.ErrUserNotFound, err)
		}

		return fmt.Errorf("insert user post: %w", err)
	}

	return nil
}

// RemovePost implements Repository.RemovePost using SQLite.
func (r *SQLiteUserRepository) RemovePost(ctx context.Context, id string, postID string) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM user_posts WHERE user_id = ? AND post_id = ?", id, postID,
	); err != nil {
		return fmt.Errorf("delete user post: %w", err)
	}

	return nil
}

func (r *SQLiteUserRepository) expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("update user: %w", domain.ErrUserNotFound)
	}

	return nil
}

// Close implements Repository.Close. The shared database is closed by its owner.
func (r *SQLiteUserRepository) Close() error {
	return nil
}
