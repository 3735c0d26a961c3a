package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback is called for every key written or removed by another process.
// kind is one of "updated" or "deleted".
type ChangeCallback func(kind string, key string)

// Watch observes the base directory until ctx is cancelled and reports key
// changes made outside this process (or by another store handle). Temp files
// used for atomic writes are ignored.
func (s *Diskv) Watch(ctx context.Context, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(s.basePath); err != nil {
		return err
	}
	logger.Info("store watcher: started", slog.String("root", s.basePath))

	for {
		select {
		case <-ctx.Done():
			logger.Info("store watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			key := filepath.Base(ev.Name)
			if strings.HasPrefix(key, ".") || filepath.Dir(ev.Name) != filepath.Clean(s.basePath) {
				continue
			}
			var kind string
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				kind = "updated"
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				kind = "deleted"
			default:
				continue
			}
			logger.Debug("store watcher: change", slog.String("key", key), slog.String("op", kind))
			if cb != nil {
				cb(kind, key)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("store watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
