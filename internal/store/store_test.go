package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/starford/menutree/internal/apperr"
	"github.com/starford/menutree/internal/menutree"
	"github.com/starford/menutree/internal/models"
)

// backends returns every store implementation to run the contract against.
// Postgres joins when MENUTREE_TEST_POSTGRES_DSN points at a scratch database.
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	out := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "menus.db"))
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
	if dsn := os.Getenv("MENUTREE_TEST_POSTGRES_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T) Store {
			s, err := OpenPostgres(context.Background(), dsn)
			if err != nil {
				t.Fatalf("OpenPostgres: %v", err)
			}
			if _, err := s.db.Exec(`TRUNCATE menus, store_meta RESTART IDENTITY`); err != nil {
				t.Fatalf("truncate: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		}
	}
	return out
}

func eachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func mustCreate(t *testing.T, s Store, name string, parent *int64) models.MenuRecord {
	t.Helper()
	r, err := s.Create(context.Background(), NewMenu{Name: name, ParentID: parent, Visible: true})
	if err != nil {
		t.Fatalf("Create(%s): %v", name, err)
	}
	return r
}

func rootIDs(t *testing.T, s Store) []int64 {
	t.Helper()
	recs, err := s.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	return menutree.Build(recs).Forest.RootIDs()
}

func TestStore_CreateAppendsAfterLastSibling(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		a := mustCreate(t, s, "About", nil)
		b := mustCreate(t, s, "News", nil)
		c := mustCreate(t, s, "History", &a.ID)

		if a.SortOrder != 0 || b.SortOrder != 1 {
			t.Errorf("root orders = %d, %d, want 0, 1", a.SortOrder, b.SortOrder)
		}
		if c.SortOrder != 0 || c.ParentID == nil || *c.ParentID != a.ID {
			t.Errorf("child = %+v, want first child of %d", c, a.ID)
		}
		got, err := s.Get(context.Background(), c.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Name != "History" || !got.Visible {
			t.Errorf("Get = %+v", got)
		}
	})
}

func TestStore_CreateExplicitOrder(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		order := 42
		r, err := s.Create(context.Background(), NewMenu{Name: "Pinned", SortOrder: &order})
		if err != nil {
			t.Fatal(err)
		}
		if r.SortOrder != 42 {
			t.Errorf("sort order = %d, want 42", r.SortOrder)
		}
	})
}

func TestStore_CreateRejectsMissingParent(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		_, err := s.Create(context.Background(), NewMenu{Name: "Orphan", ParentID: models.Int64Ptr(99)})
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("err = %v, want ErrValidation", err)
		}
	})
}

func TestStore_GetNotFound(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		if _, err := s.Get(context.Background(), 7); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_Update(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := mustCreate(t, s, "About", nil)
		b := mustCreate(t, s, "Staff", nil)

		b.Name = "Our staff"
		b.ParentID = &a.ID
		b.Visible = false
		got, err := s.Update(ctx, b)
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if got.Name != "Our staff" || got.Visible || got.ParentID == nil || *got.ParentID != a.ID {
			t.Errorf("Update = %+v", got)
		}

		// Putting the parent under its own child is refused.
		a.ParentID = &b.ID
		if _, err := s.Update(ctx, a); !errors.Is(err, apperr.ErrCycle) {
			t.Errorf("cyclic update err = %v, want ErrCycle", err)
		}
		missing := models.MenuRecord{ID: 404, Name: "x"}
		if _, err := s.Update(ctx, missing); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("missing update err = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_DeleteRefusesParents(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := mustCreate(t, s, "About", nil)
		c := mustCreate(t, s, "History", &a.ID)

		if err := s.Delete(ctx, a.ID); !errors.Is(err, apperr.ErrConflict) {
			t.Errorf("delete parent err = %v, want ErrConflict", err)
		}
		if err := s.Delete(ctx, c.ID); err != nil {
			t.Fatalf("delete leaf: %v", err)
		}
		if err := s.Delete(ctx, a.ID); err != nil {
			t.Fatalf("delete emptied parent: %v", err)
		}
		if err := s.Delete(ctx, a.ID); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("second delete err = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_ApplyOrder(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		err := s.Upsert(ctx, []models.MenuRecord{
			{ID: 1, Name: "one", SortOrder: 2},
			{ID: 2, Name: "two", SortOrder: 1},
			{ID: 3, Name: "three", ParentID: models.Int64Ptr(1), SortOrder: 1},
		})
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}

		op := models.MoveOp{ID: 3, TargetID: models.Int64Ptr(2), Position: models.PositionBefore}
		if err := s.ApplyOrder(ctx, []models.MoveOp{op}); err != nil {
			t.Fatalf("ApplyOrder: %v", err)
		}
		if got := rootIDs(t, s); !slices.Equal(got, []int64{3, 2, 1}) {
			t.Errorf("roots = %v, want [3 2 1]", got)
		}

		// Back under 1, then promote through the top-level container.
		ops := []models.MoveOp{
			{ID: 3, TargetID: models.Int64Ptr(1), Position: models.PositionInside},
			{ID: 2, Position: models.PositionInside},
		}
		if err := s.ApplyOrder(ctx, ops); err != nil {
			t.Fatalf("ApplyOrder batch: %v", err)
		}
		if got := rootIDs(t, s); !slices.Equal(got, []int64{1, 2}) {
			t.Errorf("roots = %v, want [1 2]", got)
		}
		three, _ := s.Get(ctx, 3)
		if three.ParentID == nil || *three.ParentID != 1 {
			t.Errorf("parent of 3 = %v, want 1", three.ParentID)
		}
	})
}

func TestStore_ApplyOrderIsAtomic(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_ = s.Upsert(ctx, []models.MenuRecord{
			{ID: 1, Name: "a", SortOrder: 0},
			{ID: 2, Name: "b", ParentID: models.Int64Ptr(1), SortOrder: 0},
			{ID: 3, Name: "c", SortOrder: 1},
		})
		before, _ := s.FetchAll(ctx)

		ops := []models.MoveOp{
			{ID: 3, TargetID: models.Int64Ptr(1), Position: models.PositionBefore},
			{ID: 1, TargetID: models.Int64Ptr(2), Position: models.PositionInside},
		}
		if err := s.ApplyOrder(ctx, ops); !errors.Is(err, apperr.ErrCycle) {
			t.Fatalf("err = %v, want ErrCycle", err)
		}
		after, _ := s.FetchAll(ctx)
		for i := range before {
			if before[i].SortOrder != after[i].SortOrder {
				t.Errorf("record %d sort order changed to %d", after[i].ID, after[i].SortOrder)
			}
		}
	})
}

func TestStore_UpsertKeepsIDsAndAdvancesSequence(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Upsert(ctx, []models.MenuRecord{{ID: 10, Name: "ten", Visible: true}}); err != nil {
			t.Fatal(err)
		}
		if err := s.Upsert(ctx, []models.MenuRecord{{ID: 10, Name: "TEN", Visible: true}}); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, 10)
		if err != nil || got.Name != "TEN" {
			t.Fatalf("Get(10) = %+v, %v", got, err)
		}
		created := mustCreate(t, s, "next", nil)
		if created.ID <= 10 {
			t.Errorf("new id = %d, want > 10", created.ID)
		}
	})
}

func TestStore_DanglingParentSurvives(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_ = s.Upsert(ctx, []models.MenuRecord{{ID: 6, Name: "lost", ParentID: models.Int64Ptr(40)}})
		recs, err := s.FetchAll(ctx)
		if err != nil {
			t.Fatal(err)
		}
		res := menutree.Build(recs)
		if len(res.Anomalies) != 1 || res.Anomalies[0].Reason != models.ReasonDanglingParent {
			t.Errorf("anomalies = %+v, want one dangling-parent", res.Anomalies)
		}

		// Renaming keeps the dangling parent instead of failing validation.
		rec := recs[0]
		rec.Name = "still lost"
		if _, err := s.Update(ctx, rec); err != nil {
			t.Errorf("Update: %v", err)
		}
	})
}

func TestStore_ApplyOrderBesideLoopedRecords(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		// 1 and 2 name each other as parent; 1 renders at top level.
		if err := s.Upsert(ctx, []models.MenuRecord{
			{ID: 1, Name: "a", ParentID: models.Int64Ptr(2), SortOrder: 0},
			{ID: 2, Name: "b", ParentID: models.Int64Ptr(1), SortOrder: 0},
			{ID: 3, Name: "c", SortOrder: 5},
		}); err != nil {
			t.Fatal(err)
		}

		ops := []models.MoveOp{{ID: 3, TargetID: models.Int64Ptr(1), Position: models.PositionBefore}}
		if err := s.ApplyOrder(ctx, ops); err != nil {
			t.Fatalf("ApplyOrder: %v", err)
		}
		three, _ := s.Get(ctx, 3)
		if three.ParentID != nil {
			t.Errorf("parent of 3 = %d, want top level", *three.ParentID)
		}
		if three.SortOrder != -1 {
			t.Errorf("sort order of 3 = %d, want -1", three.SortOrder)
		}
	})
}

func TestStore_Meta(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if v, err := s.GetMeta(ctx, "seed_checksum"); err != nil || v != "" {
			t.Fatalf("GetMeta unset = %q, %v", v, err)
		}
		_ = s.SetMeta(ctx, "seed_checksum", "abc")
		_ = s.SetMeta(ctx, "seed_checksum", "def")
		if v, _ := s.GetMeta(ctx, "seed_checksum"); v != "def" {
			t.Errorf("GetMeta = %q, want def", v)
		}
	})
}

func TestRebind(t *testing.T) {
	got := postgresDialect.rebind(`UPDATE menus SET a = ?, b = ? WHERE id = ?`)
	want := `UPDATE menus SET a = $1, b = $2 WHERE id = $3`
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}
	if got := sqliteDialect.rebind(`id = ?`); got != `id = ?` {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "oracle", ""); err == nil {
		t.Error("expected error for unknown driver")
	}
}
