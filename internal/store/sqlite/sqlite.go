// Package sqlite opens the ledger collections in a local SQLite file. The
// schema is migrated on open.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"stockledger/internal/store/sqlstore"
)

type Store struct {
	*sqlstore.Store
}

// New opens path with WAL journaling. Use ":memory:" for a throwaway database.
func New(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps change sets serialized and lets :memory: survive
	// across calls on the same pool.
	db.SetMaxOpenConns(1)

	s := &Store{Store: sqlstore.New(db, sqlstore.SQLite)}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}
