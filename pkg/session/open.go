package session

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// StoreKind selects a Store implementation.
type StoreKind string

const (
	StoreFile   StoreKind = "file"
	StoreSQLite StoreKind = "sqlite"
	StoreMemory StoreKind = "memory"
)

// ParseStoreKind accepts the names above, case-insensitively.
func ParseStoreKind(s string) (StoreKind, error) {
	switch k := StoreKind(strings.ToLower(strings.TrimSpace(s))); k {
	case StoreFile, StoreSQLite, StoreMemory:
		return k, nil
	case "":
		return StoreFile, nil
	default:
		return "", errors.Errorf("unknown session store %q (want file, sqlite or memory)", s)
	}
}

// DefaultPath is where a store of the given kind lives inside dir.
func DefaultPath(kind StoreKind, dir string) string {
	switch kind {
	case StoreSQLite:
		return filepath.Join(dir, "session.db")
	default:
		return filepath.Join(dir, "session.yaml")
	}
}

// OpenStore opens a Store of the given kind at path. path is ignored for the
// memory store.
func OpenStore(kind StoreKind, path string) (Store, error) {
	switch kind {
	case StoreMemory:
		return NewMemoryStore(), nil
	case StoreSQLite:
		dsn, err := SQLiteDSNForFile(path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(dsn)
	case StoreFile, "":
		return NewFileStore(path)
	default:
		return nil, errors.Errorf("unknown session store %q", kind)
	}
}
