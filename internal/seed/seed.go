// Package seed imports menu records from YAML seed files and exports the
// current collection back to that format.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/menutree/internal/models"
	"github.com/starford/menutree/internal/storage"
	"github.com/starford/menutree/internal/store"
)

// metaPrefix keys the last imported checksum of each seed file in store meta.
const metaPrefix = "seed_checksum:"

// File is the on-disk seed format.
type File struct {
	Menus []models.MenuRecord `yaml:"menus"`
}

// Parse decodes and validates a seed file. Parent references are not checked
// here: a dangling parent is legal data that the tree builder reports.
func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("seed: decode: %w", err)
	}
	seen := make(map[int64]bool, len(f.Menus))
	for i, m := range f.Menus {
		err := validation.ValidateStruct(&m,
			validation.Field(&m.ID, validation.Required, validation.Min(int64(1))),
			validation.Field(&m.Name, validation.Required),
			validation.Field(&m.Type, validation.In(models.TypeLink, models.TypePage, models.TypeBoard, models.TypeFolder)),
		)
		if err != nil {
			return File{}, fmt.Errorf("seed: menus[%d]: %w", i, err)
		}
		if seen[m.ID] {
			return File{}, fmt.Errorf("seed: menus[%d]: duplicate id %d", i, m.ID)
		}
		seen[m.ID] = true
	}
	return f, nil
}

// Result summarises a Sync pass.
type Result struct {
	Files    []string
	Imported int
}

// Changed reports whether any record was written.
func (r Result) Changed() bool {
	return r.Imported > 0
}

// Sync imports every seed file whose checksum differs from the one recorded
// at its last import. Records are upserted by id; records missing from a seed
// file are left alone, so edits made through the API survive a restart.
func Sync(ctx context.Context, st store.Store, files storage.Provider, logger *slog.Logger) (Result, error) {
	metas, err := files.List("")
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, m := range metas {
		key := metaPrefix + m.Path
		prev, err := st.GetMeta(ctx, key)
		if err != nil {
			return res, err
		}
		if prev == m.Checksum {
			continue
		}

		data, err := files.Read(m.Path)
		if err != nil {
			logger.Warn("seed: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		f, err := Parse(data)
		if err != nil {
			logger.Warn("seed: invalid file", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := st.Upsert(ctx, f.Menus); err != nil {
			return res, fmt.Errorf("seed: import %s: %w", m.Path, err)
		}
		if err := st.SetMeta(ctx, key, m.Checksum); err != nil {
			return res, err
		}
		res.Files = append(res.Files, m.Path)
		res.Imported += len(f.Menus)
		logger.Info("seed: imported", slog.String("path", m.Path), slog.Int("menus", len(f.Menus)))
	}
	return res, nil
}

// Export writes the full record collection to path as a seed file.
func Export(ctx context.Context, st store.Store, files storage.Provider, path string) (int, error) {
	records, err := st.FetchAll(ctx)
	if err != nil {
		return 0, err
	}
	data, err := yaml.Marshal(File{Menus: records})
	if err != nil {
		return 0, fmt.Errorf("seed: encode: %w", err)
	}
	if err := files.Write(path, data); err != nil {
		return 0, err
	}
	return len(records), nil
}
