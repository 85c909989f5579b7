package storage

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/menutree/internal/checksum"
)

// ErrNotSeedFile is returned for paths without a YAML extension.
var ErrNotSeedFile = errors.New("storage: not a seed file")

const tempPrefix = ".menutree-tmp-"

// FS implements Provider over a seed directory. All access goes through an
// os.Root, so no path can resolve outside the directory, symlinks included.
// Only YAML files are visible: List skips everything else and Read and Write
// refuse it.
type FS struct {
	dir  string // absolute path, for watchers and logs
	root *os.Root
}

// NewFS opens the seed directory at dir, which must already exist.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: open seed dir: %w", err)
	}
	return &FS{dir: abs, root: root}, nil
}

// Root returns the absolute seed directory.
func (f *FS) Root() string {
	return f.dir
}

// Close releases the directory handle.
func (f *FS) Close() error {
	return f.root.Close()
}

// seedPath checks that p names a YAML file inside the seed directory and
// returns it in OS form.
func seedPath(p string) (string, error) {
	if !IsSeedFile(p) {
		return "", fmt.Errorf("%w: %s", ErrNotSeedFile, p)
	}
	name := filepath.FromSlash(p)
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("storage: path escapes seed root: %s", p)
	}
	return filepath.Clean(name), nil
}

// List returns every YAML file under dir (relative to the root) in lexical
// walk order. Hidden files and directories are skipped, which also hides
// in-flight temp files.
func (f *FS) List(dir string) ([]FileInfo, error) {
	start := "."
	if dir != "" {
		if !filepath.IsLocal(filepath.FromSlash(dir)) {
			return nil, fmt.Errorf("storage: path escapes seed root: %s", dir)
		}
		start = path.Clean(filepath.ToSlash(dir))
	}

	fsys := f.root.FS()
	var out []FileInfo
	err := fs.WalkDir(fsys, start, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		hidden := p != start && strings.HasPrefix(d.Name(), ".")
		switch {
		case d.IsDir() && hidden:
			return fs.SkipDir
		case d.IsDir(), hidden, !IsSeedFile(d.Name()):
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		out = append(out, FileInfo{Path: p, Checksum: checksum.Sum(data), UpdatedAt: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Read returns the raw bytes of a seed file.
func (f *FS) Read(p string) ([]byte, error) {
	name, err := seedPath(p)
	if err != nil {
		return nil, err
	}
	data, err := f.root.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", p, err)
	}
	return data, nil
}

// Write replaces a seed file atomically: the content lands in a hidden temp
// file next to the target, is synced, then renamed over it.
func (f *FS) Write(p string, content []byte) error {
	name, err := seedPath(p)
	if err != nil {
		return err
	}
	parent := filepath.Dir(name)
	if parent != "." {
		if err := f.root.MkdirAll(parent, 0o755); err != nil {
			return fmt.Errorf("storage: mkdir: %w", err)
		}
	}

	tmpName := filepath.Join(parent, tempPrefix+rand.Text())
	tmp, err := f.root.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	if err := writeSynced(tmp, content); err != nil {
		_ = f.root.Remove(tmpName)
		return err
	}
	if err := f.root.Rename(tmpName, name); err != nil {
		_ = f.root.Remove(tmpName)
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

func writeSynced(file *os.File, content []byte) error {
	_, err := file.Write(content)
	if err == nil {
		err = file.Sync()
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	return nil
}
