package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/menutree/internal/apperr"
	"github.com/starford/menutree/internal/menutree"
	"github.com/starford/menutree/internal/models"
)

// SQL is a database/sql backed Store.
type SQL struct {
	db *sql.DB
	d  dialect
}

// Verify *SQL satisfies Store at compile time.
var _ Store = (*SQL)(nil)

// OpenSQLite opens (or creates) the SQLite database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQL, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	return open(ctx, sqliteDialect, dsn)
}

// OpenPostgres connects to Postgres through the pgx stdlib driver and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*SQL, error) {
	if dsn == "" {
		return nil, errors.New("store: postgres dsn is empty")
	}
	return open(ctx, postgresDialect, dsn)
}

func open(ctx context.Context, d dialect, dsn string) (*SQL, error) {
	conn, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", d.name, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping %s: %w", d.name, err)
	}
	for _, stmt := range strings.Split(d.schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("store: apply %s schema: %w", d.name, err)
		}
	}
	return &SQL{db: conn, d: d}, nil
}

// Close closes the underlying database connection.
func (s *SQL) Close() error {
	return s.db.Close()
}

const selectMenus = `SELECT id, name, parent_id, sort_order, visible, type, path, updated_at FROM menus`

// queryer is the subset of *sql.DB and *sql.Tx used for reads.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMenu(sc scanner) (models.MenuRecord, error) {
	var (
		r      models.MenuRecord
		parent sql.NullInt64
	)
	if err := sc.Scan(&r.ID, &r.Name, &parent, &r.SortOrder, &r.Visible, &r.Type, &r.Path, &r.UpdatedAt); err != nil {
		return models.MenuRecord{}, err
	}
	if parent.Valid {
		r.ParentID = models.Int64Ptr(parent.Int64)
	}
	return r, nil
}

func nullable(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func (s *SQL) all(ctx context.Context, q queryer) ([]models.MenuRecord, error) {
	rows, err := q.QueryContext(ctx, selectMenus+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: fetch all: %w", err)
	}
	defer rows.Close()

	out := []models.MenuRecord{}
	for rows.Next() {
		r, err := scanMenu(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan menu: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQL) get(ctx context.Context, q queryer, id int64) (models.MenuRecord, error) {
	r, err := scanMenu(q.QueryRowContext(ctx, s.d.rebind(selectMenus+` WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.MenuRecord{}, fmt.Errorf("%w: menu %d", apperr.ErrNotFound, id)
	}
	if err != nil {
		return models.MenuRecord{}, fmt.Errorf("store: get menu %d: %w", id, err)
	}
	return r, nil
}

// FetchAll returns every record ordered by id.
func (s *SQL) FetchAll(ctx context.Context) ([]models.MenuRecord, error) {
	return s.all(ctx, s.db)
}

// Get returns a single record.
func (s *SQL) Get(ctx context.Context, id int64) (models.MenuRecord, error) {
	return s.get(ctx, s.db, id)
}

// withTx runs fn in a write transaction that holds the menus lock.
func (s *SQL) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if s.d.lockMenus != "" {
		if _, err := tx.ExecContext(ctx, s.d.lockMenus); err != nil {
			return fmt.Errorf("store: lock menus: %w", err)
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQL) requireParent(ctx context.Context, tx *sql.Tx, parent *int64) error {
	if parent == nil {
		return nil
	}
	var n int
	if err := tx.QueryRowContext(ctx, s.d.rebind(`SELECT COUNT(*) FROM menus WHERE id = ?`), *parent).Scan(&n); err != nil {
		return fmt.Errorf("store: check parent: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: parent menu %d does not exist", apperr.ErrValidation, *parent)
	}
	return nil
}

// Create inserts a new record and returns it with its assigned id.
func (s *SQL) Create(ctx context.Context, in NewMenu) (models.MenuRecord, error) {
	var out models.MenuRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireParent(ctx, tx, in.ParentID); err != nil {
			return err
		}
		order := 0
		if in.SortOrder != nil {
			order = *in.SortOrder
		} else {
			q := `SELECT COALESCE(MAX(sort_order) + 1, 0) FROM menus WHERE parent_id IS NULL`
			args := []any{}
			if in.ParentID != nil {
				q = `SELECT COALESCE(MAX(sort_order) + 1, 0) FROM menus WHERE parent_id = ?`
				args = append(args, *in.ParentID)
			}
			if err := tx.QueryRowContext(ctx, s.d.rebind(q), args...).Scan(&order); err != nil {
				return fmt.Errorf("store: next sort order: %w", err)
			}
		}

		now := time.Now().UTC()
		var id int64
		err := tx.QueryRowContext(ctx, s.d.rebind(`
			INSERT INTO menus (name, parent_id, sort_order, visible, type, path, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`), in.Name, nullable(in.ParentID), order, in.Visible, in.Type, in.Path, now).Scan(&id)
		if err != nil {
			return fmt.Errorf("store: insert menu: %w", err)
		}
		out, err = s.get(ctx, tx, id)
		return err
	})
	return out, err
}

// Update replaces the mutable fields of an existing record. A parent change
// goes through the same cycle guard as a move.
func (s *SQL) Update(ctx context.Context, rec models.MenuRecord) (models.MenuRecord, error) {
	var out models.MenuRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.get(ctx, tx, rec.ID); err != nil {
			return err
		}
		records, err := s.all(ctx, tx)
		if err != nil {
			return err
		}
		if err := checkReparent(records, rec); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.d.rebind(`
			UPDATE menus SET name = ?, parent_id = ?, sort_order = ?, visible = ?, type = ?, path = ?, updated_at = ?
			WHERE id = ?
		`), rec.Name, nullable(rec.ParentID), rec.SortOrder, rec.Visible, rec.Type, rec.Path, time.Now().UTC(), rec.ID)
		if err != nil {
			return fmt.Errorf("store: update menu %d: %w", rec.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: menu %d", apperr.ErrNotFound, rec.ID)
		}
		out, err = s.get(ctx, tx, rec.ID)
		return err
	})
	return out, err
}

// Delete removes a record. Records that still have children are refused.
func (s *SQL) Delete(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var children int
		if err := tx.QueryRowContext(ctx, s.d.rebind(`SELECT COUNT(*) FROM menus WHERE parent_id = ? AND id <> ?`), id, id).Scan(&children); err != nil {
			return fmt.Errorf("store: count children: %w", err)
		}
		if children > 0 {
			return fmt.Errorf("%w: menu %d still has %d children", apperr.ErrConflict, id, children)
		}
		res, err := tx.ExecContext(ctx, s.d.rebind(`DELETE FROM menus WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("store: delete menu %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: menu %d", apperr.ErrNotFound, id)
		}
		return nil
	})
}

// ApplyOrder applies move operations in order inside one transaction. Each
// operation is re-validated against the rows as they are at that point, so a
// move that became cyclic since it was planned is refused as a whole.
func (s *SQL) ApplyOrder(ctx context.Context, ops []models.MoveOp) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		records, err := s.all(ctx, tx)
		if err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, s.d.rebind(`UPDATE menus SET parent_id = ?, sort_order = ?, updated_at = ? WHERE id = ?`))
		if err != nil {
			return fmt.Errorf("store: prepare reorder: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, op := range ops {
			assignments, err := menutree.Place(records, op)
			if err != nil {
				return err
			}
			for _, a := range assignments {
				if _, err := stmt.ExecContext(ctx, nullable(a.ParentID), a.SortOrder, now, a.ID); err != nil {
					return fmt.Errorf("store: reorder menu %d: %w", a.ID, err)
				}
			}
			records = assign(records, assignments)
		}
		return nil
	})
}

// Upsert inserts or replaces records keeping their ids.
func (s *SQL) Upsert(ctx context.Context, recs []models.MenuRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.d.rebind(`
			INSERT INTO menus (id, name, parent_id, sort_order, visible, type, path, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name       = excluded.name,
				parent_id  = excluded.parent_id,
				sort_order = excluded.sort_order,
				visible    = excluded.visible,
				type       = excluded.type,
				path       = excluded.path,
				updated_at = excluded.updated_at
		`))
		if err != nil {
			return fmt.Errorf("store: prepare upsert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, r := range recs {
			if _, err := stmt.ExecContext(ctx, r.ID, r.Name, nullable(r.ParentID), r.SortOrder, r.Visible, r.Type, r.Path, now); err != nil {
				return fmt.Errorf("store: upsert menu %d: %w", r.ID, err)
			}
		}
		if s.d.afterUpsert != "" {
			if _, err := tx.ExecContext(ctx, s.d.afterUpsert); err != nil {
				return fmt.Errorf("store: realign id sequence: %w", err)
			}
		}
		return nil
	})
}

// GetMeta returns a stored metadata value, or "" when the key is unset.
func (s *SQL) GetMeta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT value FROM store_meta WHERE key = ?`), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get meta %q: %w", key, err)
	}
	return v, nil
}

// SetMeta stores a metadata value.
func (s *SQL) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.d.rebind(`
		INSERT INTO store_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`), key, value)
	if err != nil {
		return fmt.Errorf("store: set meta %q: %w", key, err)
	}
	return nil
}
