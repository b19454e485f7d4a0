package repository

import (
	"context"
	"fmt"
	"strings"
)

// Open builds the named backend. path is the JSON file and dsn the SQLite
// database; only the one matching backend is used.
func Open(ctx context.Context, backend, path, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendJSON:
		return NewFileStore(path), nil
	case BackendSQLite:
		s, err := NewSQLiteStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", ErrOpen, backend)
}
