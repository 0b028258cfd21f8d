package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDriver opens a SQLite-backed store. The path can be a file path
// or ":memory:" for an in-memory database.
func NewSQLiteDriver(ctx context.Context, dbPath string, opts ...Option) (*Driver, error) {
	// github.com/mattn/go-sqlite3 registers itself as "sqlite3"
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is its own database.
	if dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	d, err := New(ctx, db, DialectSQLite, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}
