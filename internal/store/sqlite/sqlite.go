// Package sqlite is the embedded storage gateway, for single-till installs and
// tests. Writers serialize on BEGIN IMMEDIATE, so row locks are not needed.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/mattn/go-sqlite3"

	"possystem/backend/internal/store"
	"possystem/backend/internal/store/sqlstore"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	*sqlstore.DB
}

// Open creates or opens the database file at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Set("_foreign_keys", "1")
	params.Set("_busy_timeout", "5000")
	params.Set("_journal_mode", "WAL")

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", path, params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one connection: sqlite has a single writer and the pool would only
	// trade SQLITE_BUSY for waiting
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{DB: sqlstore.New(db, Dialect())}
	if err := s.ApplySchema(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:        "sqlite",
		MaxAttempts: 1,
		Classify:    classify,
	}
}

func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %s", store.ErrIntegrityViolation, sqliteErr.Error())
	}
	return err
}
