// Package store provides the data access layer for the invoice service.
//
// The service opens one sqlite database and hands the *sql.DB here. A
// Store can also be bound to an open transaction so a whole dispatch
// batch commits or rolls back as a unit.
package store

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps a database handle for invoice operations.
type Store struct {
	db DBTX
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// WithTx returns a Store bound to tx. Writes made through it are not
// visible outside the transaction until commit.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

// ApplySchema creates all tables and indexes. Safe to call on every start.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
