package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterbourgon/diskv/v3"

	"github.com/starford/pagenote/internal/apperr"
	"github.com/starford/pagenote/internal/models"
)

// Diskv implements Store with one file per key.
//
// Each key is written atomically (temp file + rename) but a batch is applied
// key by key: note entries first, the folder index last. A crash mid-batch can
// therefore leave a note without its folder entry, which the next save repairs.
type Diskv struct {
	d        *diskv.Diskv
	basePath string
}

// OpenDiskv creates the base directory if needed and returns a Diskv store.
func OpenDiskv(basePath string) (*Diskv, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	tmp := filepath.Join(basePath, ".tmp")
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure temp dir: %w", err)
	}
	return &Diskv{
		d: diskv.New(diskv.Options{
			BasePath:     basePath,
			TempDir:      tmp,
			Transform:    func(string) []string { return []string{} },
			// No read cache: files may be rewritten by other processes.
			CacheSizeMax: 0,
		}),
		basePath: basePath,
	}, nil
}

// BasePath returns the directory holding the key files.
func (s *Diskv) BasePath() string { return s.basePath }

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("storage: invalid key %q", key)
	}
	return nil
}

// Get reads a single key.
func (s *Diskv) Get(_ context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	v, err := s.d.Read(key)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return v, nil
}

// GetMany reads the keys that exist.
func (s *Diskv) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, err := s.Get(ctx, k)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// All reads every key under the base path.
func (s *Diskv) All(ctx context.Context) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for key := range s.d.Keys(ctx.Done()) {
		if strings.HasPrefix(key, ".") {
			continue
		}
		v, err := s.d.Read(key)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("storage: read %s: %w", key, err)
		}
		out[key] = v
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetMany writes note keys first and the folder index last.
func (s *Diskv) SetMany(_ context.Context, values map[string][]byte) error {
	for k := range values {
		if err := validKey(k); err != nil {
			return err
		}
	}
	for k, v := range values {
		if k == models.FoldersKey {
			continue
		}
		if err := s.d.WriteStream(k, bytes.NewReader(v), true); err != nil {
			return fmt.Errorf("storage: write %s: %w", k, err)
		}
	}
	if v, ok := values[models.FoldersKey]; ok {
		if err := s.d.WriteStream(models.FoldersKey, bytes.NewReader(v), true); err != nil {
			return fmt.Errorf("storage: write %s: %w", models.FoldersKey, err)
		}
	}
	return nil
}

// RemoveMany erases keys, ignoring the ones that do not exist.
func (s *Diskv) RemoveMany(_ context.Context, keys []string) error {
	for _, k := range keys {
		if err := validKey(k); err != nil {
			return err
		}
		if !s.d.Has(k) {
			continue
		}
		if err := s.d.Erase(k); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: erase %s: %w", k, err)
		}
	}
	return nil
}

// Close is a no-op; diskv holds no open handles.
func (s *Diskv) Close() error { return nil }
