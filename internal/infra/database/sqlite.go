package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/mkrupp/feed/internal/infra/logging"
)

// SQLiteConfig holds configuration for the SQLite database.
type SQLiteConfig struct {
	// Path is the filesystem path to the database file, ":memory:" for a private in-memory database
	Path string `env:"PATH" default:"var/storage/feed.db"`

	// BusyTimeout is how long a writer waits for a locked database
	BusyTimeout time.Duration `env:"BUSY_TIMEOUT" default:"5s"`
}

// OpenSQLite opens the SQLite database at cfg.Path and creates the schema if needed.
//
// The pool is limited to a single connection: the driver does not support
// concurrent writers, and an in-memory database only lives as long as its connection.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (db *sql.DB, err error) {
	log := logging.GetLogger("infra.database.sqlite").With(logging.Group("db", "path", cfg.Path))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "open db failed", "error", err)
		} else {
			log.DebugContext(ctx, "db opened")
		}
	}()

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir all: %w", err)
		}
	}

	db, err = sql.Open("sqlite", sqliteDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping db: %w", err)
	}

	for _, stmt := range statements(sqliteSchema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()

			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return db, nil
}

func sqliteDSN(cfg SQLiteConfig) string {
	pragmas := url.Values{}
	pragmas.Add("_pragma", "foreign_keys(1)")
	pragmas.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))

	if cfg.Path != ":memory:" {
		pragmas.Add("_pragma", "journal_mode(WAL)")
	}

	return "file:" + strings.TrimPrefix(cfg.Path, "file:") + "?" + pragmas.Encode()
}
