// Package storage defines the seed directory file-system abstraction.
package storage

import (
	"path"
	"time"
)

// FileInfo describes one seed file.
type FileInfo struct {
	Path      string
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the interface for seed directory file operations. Paths are
// slash-separated and relative to the seed directory.
type Provider interface {
	// List returns metadata for every seed file under dir.
	List(dir string) ([]FileInfo, error)
	// Read returns the raw bytes of the seed file at p.
	Read(p string) ([]byte, error)
	// Write atomically replaces the seed file at p.
	Write(p string, content []byte) error
}

// IsSeedFile reports whether name has a YAML extension.
func IsSeedFile(name string) bool {
	switch path.Ext(name) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
