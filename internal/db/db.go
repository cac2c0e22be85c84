// Package db provides the sqlite bookkeeping layer: installed kegs, store
// reference counts, per-keg linked files, and the tap registry. It is the
// single source of truth for installed state; the filesystem is
// authoritative for content only.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/blackwell-systems/zerobrew/internal/zerrors"
)

// DB wraps the sqlite connection.
type DB struct {
	db *sql.DB
}

// Open opens (and initializes) the database at path. Use ":memory:" for
// in-memory databases in tests.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &zerrors.DatabaseError{Op: "open", Err: err}
	}

	// sqlite allows one writer at a time.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, &zerrors.DatabaseError{Op: "configure", Err: fmt.Errorf("%s: %w", pragma, err)}
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, &zerrors.DatabaseError{Op: "create schema", Err: err}
	}

	return &DB{db: conn}, nil
}

// Close closes the connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
