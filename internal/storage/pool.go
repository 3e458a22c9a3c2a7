// Package storage provides the pooled embedded relational database that
// backs every other core component: a single sqlite file accessed through
// database/sql, migrated at open, with foreign keys and WAL mode enabled.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tron-run/tron/internal/logging"
)

// ErrNotFound is returned by Get-style lookups that find no row.
var ErrNotFound = errors.New("storage: not found")

// Pool wraps the sqlite connection pool. All reads/writes in the process
// go through one Pool per database file.
type Pool struct {
	db   *sql.DB
	path string
}

// Options configure pool construction.
type Options struct {
	// Path is the sqlite database file path, or ":memory:" for tests.
	Path string
	// MaxOpenConns bounds concurrent connections. sqlite tolerates many
	// concurrent readers in WAL mode but only one writer at a time; the
	// application-level locks in lock.go are what actually serialize
	// writes, this just bounds total connections to the OS.
	MaxOpenConns int
	// BusyTimeoutMS is passed to sqlite's busy_timeout pragma as a first
	// line of defense before the linear-backoff retry takes over.
	BusyTimeoutMS int
}

// DefaultOptions returns sane defaults for a single-process server.
func DefaultOptions(path string) Options {
	return Options{
		Path:          path,
		MaxOpenConns:  8,
		BusyTimeoutMS: 2000,
	}
}

// Open creates the pool, applies pragmas, and runs pending migrations.
func Open(ctx context.Context, opts Options) (*Pool, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(on)", opts.Path, opts.BusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	p := &Pool{db: db, path: opts.Path}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logging.Info().Str("path", opts.Path).Msg("storage pool opened")
	return p, nil
}

// Close releases the underlying connection pool.
func (p *Pool) Close() error {
	return p.db.Close()
}

// DB exposes the raw *sql.DB for components that need direct query access
// (taskstore, eventstore search) beyond the Tx/Exec/Query helpers below.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Tx runs fn inside a transaction, committing on nil error and rolling
// back otherwise. Callers never hold a transaction across this boundary,
// which is what makes the higher layers' "atomic operation" guarantee
// hold: a panic or early return always rolls back.
func (p *Pool) Tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// Now is the single time source writers stamp rows with, kept as a method
// so tests can substitute a fixed clock by embedding Pool in a fake.
func (p *Pool) Now() time.Time {
	return time.Now().UTC()
}
