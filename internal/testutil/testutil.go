// Package testutil provides shared test helpers for setting up stores and seed directories.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/menutree/internal/menutree"
	"github.com/starford/menutree/internal/models"
	"github.com/starford/menutree/internal/storage"
	"github.com/starford/menutree/internal/store"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestStore creates a temporary SQLite store, seeded with recs, that is
// automatically closed.
func TestStore(t *testing.T, recs ...models.MenuRecord) *store.SQL {
	t.Helper()
	ctx := context.Background()
	st, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "menutree-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Upsert(ctx, recs); err != nil {
		t.Fatal(err)
	}
	return st
}

// TestEngine returns an engine over st that has already loaded its first forest.
func TestEngine(t *testing.T, st menutree.RecordStore, opts ...menutree.EngineOption) *menutree.Engine {
	t.Helper()
	opts = append([]menutree.EngineOption{menutree.WithLogger(Logger())}, opts...)
	e := menutree.NewEngine(st, opts...)
	if err := e.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	return e
}

// TestSeedDir creates a temporary seed directory with a storage.Provider.
func TestSeedDir(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { fs.Close() })
	return dir, fs
}

// Example1 is the three-record collection used across tests: roots 2 then 1,
// with 3 under 1.
func Example1() []models.MenuRecord {
	return []models.MenuRecord{
		{ID: 1, Name: "About", SortOrder: 2, Visible: true, Type: models.TypeFolder},
		{ID: 2, Name: "News", SortOrder: 1, Visible: true, Type: models.TypeBoard},
		{ID: 3, Name: "History", ParentID: models.Int64Ptr(1), SortOrder: 1, Visible: true, Type: models.TypePage},
	}
}
