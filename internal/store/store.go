// Package store provides the authoritative menu record store: a database/sql
// implementation for SQLite and Postgres plus an in-memory one.
package store

import (
	"context"
	"fmt"

	"github.com/starford/menutree/internal/menutree"
	"github.com/starford/menutree/internal/models"
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// NewMenu is the input for Create. A nil SortOrder appends the record after
// its last sibling.
type NewMenu struct {
	Name      string
	ParentID  *int64
	SortOrder *int
	Visible   bool
	Type      string
	Path      string
}

// Store defines the record store operations. Consumers should depend on this
// interface rather than on a concrete implementation.
type Store interface {
	menutree.RecordStore

	Get(ctx context.Context, id int64) (models.MenuRecord, error)
	Create(ctx context.Context, in NewMenu) (models.MenuRecord, error)
	Update(ctx context.Context, rec models.MenuRecord) (models.MenuRecord, error)
	Delete(ctx context.Context, id int64) error
	// Upsert writes records with their ids as given, for seed import.
	Upsert(ctx context.Context, recs []models.MenuRecord) error

	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error
	Close() error
}

// Open opens the store for driver. dsn is the SQLite file path or the
// Postgres connection string and is ignored for the memory driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverSQLite:
		return OpenSQLite(ctx, dsn)
	case DriverPostgres:
		return OpenPostgres(ctx, dsn)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}
