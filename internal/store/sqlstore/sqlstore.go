// Package sqlstore implements the storage gateway on database/sql. The postgres
// and sqlite packages supply a Dialect and the schema; everything else is
// shared.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"possystem/backend/internal/store"
)

type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of "?".
	Numbered bool
	// ForUpdate is appended to row-locking selects. Empty when the engine
	// locks at transaction start instead.
	ForUpdate string
	TxOptions *sql.TxOptions
	// MaxAttempts bounds how often a unit of work runs when Retryable says
	// the failure was a serialization conflict.
	MaxAttempts int
	Retryable   func(err error) bool
	// Classify maps driver constraint errors onto store.ErrIntegrityViolation.
	Classify func(err error) error
}

func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) classify(err error) error {
	if err == nil || d.Classify == nil {
		return err
	}
	return d.Classify(err)
}

type DB struct {
	db      *sql.DB
	dialect Dialect
	queries
}

func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{
		db:      db,
		dialect: dialect,
		queries: queries{q: db, d: dialect},
	}
}

// SQL exposes the pool for migrations and test fixtures.
func (s *DB) SQL() *sql.DB {
	return s.db
}

func (s *DB) Close() error {
	return s.db.Close()
}

func (s *DB) ApplySchema(ctx context.Context, schema string) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply %s schema: %w", s.dialect.Name, err)
	}
	return nil
}

func (s *DB) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	attempts := s.dialect.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil || attempt >= attempts || s.dialect.Retryable == nil || !s.dialect.Retryable(err) {
			return err
		}
		log.Printf("[%s] WARN: serialization conflict, retrying unit of work (attempt %d/%d): %v", s.dialect.Name, attempt+1, attempts, err)
	}
}

func (s *DB) runTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&queries{q: sqlTx, d: s.dialect, inTx: true}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return err
		}
		return s.dialect.classify(err)
	}
	return nil
}
