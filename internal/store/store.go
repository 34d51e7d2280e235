// Package store handles all database interactions. This is our data access
// layer, keeping SQL queries separate from business logic.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a channel or video does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a natural key is already taken.
	ErrDuplicate = errors.New("already exists")
	// ErrStoreBusy is returned when the database stayed locked past the busy timeout.
	ErrStoreBusy = errors.New("store busy")
)

const (
	defaultBusyTimeout = 5 * time.Second
	minRetryDelay      = 10 * time.Millisecond
	maxRetryDelay      = 500 * time.Millisecond
)

// Store provides all functions to interact with the database.
type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithBusyTimeout bounds how long a locked database is retried.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a new Store instance.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, busyTimeout: defaultBusyTimeout, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) clock() time.Time {
	return s.now().UTC()
}

// retry runs op until it succeeds, fails with a non-busy error, or the busy
// timeout elapses. Delays grow exponentially between attempts.
func (s *Store) retry(ctx context.Context, op func() error) error {
	deadline := time.Now().Add(s.busyTimeout)
	delay := minRetryDelay
	for {
		err := op()
		if err == nil || !isBusy(err) {
			return err
		}
		if time.Now().Add(delay).After(deadline) {
			return fmt.Errorf("%w: %v", ErrStoreBusy, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// withTx runs fn inside a transaction, retrying the whole transaction while
// the database is busy. fn must not have side effects outside tx.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
