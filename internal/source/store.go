// Package source reads accounts, buckets and transactions from a Buckets
// budget file. A .buckets file is a SQLite database; it is opened read-only
// and never modified.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"buckets-migrator/pkg/errors"
	"buckets-migrator/pkg/logger"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// Store is an open handle on a Buckets file. Every query goes through an
// explicit Store value; there is no package-level connection.
type Store struct {
	db     *sql.DB
	path   string
	logger logger.Logger
}

// Open opens the Buckets file at path read-only and verifies it responds.
func Open(ctx context.Context, path string) (*Store, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.StoreUnavailable(path, err)
	}
	if info.IsDir() {
		return nil, errors.StoreUnavailable(path, fmt.Errorf("%s is a directory", path))
	}

	db, err := sql.Open(driverName, fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, errors.StoreUnavailable(path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.StoreUnavailable(path, err)
	}

	store := NewStore(db, path)
	store.logger.WithField("path", path).Info("Opened source store")
	return store, nil
}

// NewStore wraps an already opened database handle.
func NewStore(db *sql.DB, path string) *Store {
	return &Store{
		db:     db,
		path:   path,
		logger: logger.WithComponent("source"),
	}
}

// Path returns the location the store was opened from
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close releases the database handle. The store is unusable afterwards.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) conn() (*sql.DB, error) {
	if s == nil || s.db == nil {
		path := ""
		if s != nil {
			path = s.path
		}
		return nil, errors.StoreUnavailable(path, fmt.Errorf("store is not open"))
	}
	return s.db, nil
}
