// Package background performs best-effort saves handed over by sessions that
// are closing. It outlives every session and runs for the life of the process.
package background

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/starford/pagenote/internal/apperr"
	"github.com/starford/pagenote/internal/models"
	"github.com/starford/pagenote/internal/noteservice"
)

// DefaultQueueSize is the teardown queue capacity used when none is configured.
const DefaultQueueSize = 64

// drainTimeout bounds the final flush after Run's context ends.
const drainTimeout = 5 * time.Second

// Publisher is notified after a draft was merged.
type Publisher interface {
	PublishNoteEvent(kind, id string)
}

// Worker receives teardown drafts and merges title and content into the
// stored note. Folder and urls are left untouched.
type Worker struct {
	svc       *noteservice.Service
	logger    *slog.Logger
	publisher Publisher

	queue   chan models.Draft
	dropped atomic.Int64
	saved   atomic.Int64
}

// NewWorker creates a worker with a bounded queue. publisher may be nil.
func NewWorker(svc *noteservice.Service, queueSize int, logger *slog.Logger, publisher Publisher) *Worker {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		svc:       svc,
		logger:    logger,
		publisher: publisher,
		queue:     make(chan models.Draft, queueSize),
	}
}

// Notify enqueues d without blocking. It reports false when the queue is full.
func (w *Worker) Notify(d models.Draft) bool {
	select {
	case w.queue <- d:
		return true
	default:
		w.dropped.Add(1)
		w.logger.Warn("teardown queue full, draft dropped", slog.String("id", d.NoteID))
		return false
	}
}

// Run processes drafts until ctx is done, then flushes what is still queued.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case d := <-w.queue:
			w.merge(ctx, d)
		}
	}
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case d := <-w.queue:
			w.merge(ctx, d)
		default:
			return
		}
	}
}

func (w *Worker) merge(ctx context.Context, d models.Draft) {
	note, err := w.svc.MergeSave(ctx, d.NoteID, d.Title, d.Content)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		w.logger.Warn("teardown save skipped, note is gone", slog.String("id", d.NoteID))
		return
	case err != nil:
		w.logger.Error("teardown save failed", slog.String("id", d.NoteID), slog.String("error", err.Error()))
		return
	}
	w.saved.Add(1)
	w.logger.Info("note saved from teardown", slog.String("id", note.ID))
	if w.publisher != nil {
		w.publisher.PublishNoteEvent("saved", note.ID)
	}
}

// Stats returns the number of merged and dropped drafts.
func (w *Worker) Stats() (saved, dropped int64) {
	return w.saved.Load(), w.dropped.Load()
}
