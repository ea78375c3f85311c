package backend

import (
	"fmt"
	"path/filepath"
	"strings"

	"fsindex/internal/index/bleve"
	"fsindex/internal/index/sqlite"
	"fsindex/internal/index/store"
)

func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "bleve"
	}
	switch name {
	case "sqlite", "sqlite3":
		return "sqlite"
	case "bleve":
		return "bleve"
	default:
		return name
	}
}

// DefaultPath places the index inside the daemon's data directory.
func DefaultPath(dataDir string, backend string) string {
	backend = NormalizeName(backend)
	switch backend {
	case "sqlite":
		return filepath.Join(dataDir, "index.db")
	default:
		return filepath.Join(dataDir, "index.bleve")
	}
}

func Open(backend string, path string) (store.Store, error) {
	backend = NormalizeName(backend)
	switch backend {
	case "sqlite":
		return sqlite.Open(path)
	case "bleve":
		return bleve.Open(path)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
