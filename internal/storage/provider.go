// Package storage defines the durable key/value store that notes and the
// folder index are persisted in.
package storage

import (
	"context"
	"fmt"
)

// Store is an asynchronous key/value store keyed by opaque string ids.
// SetMany and RemoveMany are atomic per call on backends that support it.
type Store interface {
	// Get returns the value stored under key, or apperr.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// GetMany returns the values for the keys that exist; missing keys are omitted.
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
	// All returns every stored entry.
	All(ctx context.Context) (map[string][]byte, error)
	// SetMany writes every entry of values.
	SetMany(ctx context.Context, values map[string][]byte) error
	// RemoveMany deletes keys. Missing keys are ignored.
	RemoveMany(ctx context.Context, keys []string) error
	// Close releases the backend.
	Close() error
}

// Drivers.
const (
	DriverSQLite = "sqlite"
	DriverDiskv  = "diskv"
	DriverMemory = "memory"
)

// Open returns the backend named by driver rooted at path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case DriverSQLite, "":
		return OpenSQLite(path)
	case DriverDiskv:
		return OpenDiskv(path)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}
