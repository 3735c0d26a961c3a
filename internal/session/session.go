// Package session implements the note lifecycle coordinator that backs one
// open popup session.
//
// Concurrency model: a single loop goroutine owns the session state. Every
// operation (user calls, debounced saves, auto-save ticks) is submitted to
// that loop and runs to completion before the next one starts, so a switch
// never begins loading its target before the source note's save settled.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/starford/pagenote/internal/apperr"
	"github.com/starford/pagenote/internal/cache"
	"github.com/starford/pagenote/internal/models"
	"github.com/starford/pagenote/internal/noteservice"
	"github.com/starford/pagenote/internal/pagecontext"
	"github.com/starford/pagenote/internal/scheduler"
)

// Event kinds passed to Publisher.
const (
	EventNoteSaved     = "saved"
	EventNoteDeleted   = "deleted"
	EventFolderRenamed = "renamed"
	EventFolderDeleted = "deleted"
	EventFolderCreated = "created"
)

// Publisher refreshes UI collaborators after a confirmed change.
type Publisher interface {
	PublishNoteEvent(kind, id string)
	PublishFolderEvent(kind, key string)
}

// TeardownNotifier hands a draft to a longer-lived collaborator.
// It must not block; it reports false when the draft was dropped.
type TeardownNotifier interface {
	Notify(d models.Draft) bool
}

// Config holds the tunables of a session.
type Config struct {
	CacheSize        int
	Debounce         time.Duration
	AutoSaveInterval time.Duration
}

// State is a snapshot of the session for the UI.
type State struct {
	CurrentNoteID string `json:"currentNoteId"`
	CurrentFolder string `json:"currentFolder"`
	NoteFolder    string `json:"noteFolder"`
	CurrentURL    string `json:"currentUrl"`
	Dirty         bool   `json:"dirty"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	// LastError is the message of the last failed background save.
	LastError string `json:"lastError,omitempty"`
}

// Deps are the collaborators of a Coordinator. Publisher and Teardown may be nil.
type Deps struct {
	Service   *noteservice.Service
	Pages     pagecontext.Resolver
	Publisher Publisher
	Teardown  TeardownNotifier
	Logger    *slog.Logger
}

type op struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// Coordinator sequences load, save, switch, delete and new-note operations
// for one session.
type Coordinator struct {
	svc       *noteservice.Service
	pages     pagecontext.Resolver
	publisher Publisher
	teardown  TeardownNotifier
	logger    *slog.Logger
	cache     *cache.Notes

	debouncer *scheduler.Debouncer
	ticker    *scheduler.Ticker

	ops     chan op
	quit    chan struct{}
	stopped chan struct{}
	closing atomic.Bool

	// base is the context of background-initiated saves.
	base   context.Context
	cancel context.CancelFunc

	// Owned by the loop goroutine.
	st State
}

// New starts a session: it resolves the page folder, picks the active folder,
// preloads the cache and starts the auto-save ticker.
func New(ctx context.Context, deps Deps, cfg Config) (*Coordinator, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		svc:       deps.Service,
		pages:     deps.Pages,
		publisher: deps.Publisher,
		teardown:  deps.Teardown,
		logger:    logger,
		cache:     cache.New(cfg.CacheSize),
		ops:       make(chan op),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
		base:      base,
		cancel:    cancel,
		st:        State{CurrentFolder: models.AllFolder},
	}
	c.debouncer = scheduler.NewDebouncer(cfg.Debounce, func() { c.backgroundSave("debounce") })

	go c.run()

	if err := c.do(ctx, c.open); err != nil {
		c.debouncer.Stop()
		close(c.quit)
		<-c.stopped
		cancel()
		return nil, err
	}
	c.ticker = scheduler.StartTicker(cfg.AutoSaveInterval, func() { c.backgroundSave("autosave") })
	return c, nil
}

func (c *Coordinator) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.quit:
			return
		case req := <-c.ops:
			req.done <- c.call(req)
		}
	}
}

// call runs one operation, turning a panic into an error so the loop and
// the session outlive it.
func (c *Coordinator) call(req op) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session operation panicked",
				slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("session: operation panicked: %v", r)
		}
	}()
	return req.fn(req.ctx)
}

// do runs fn on the loop goroutine and waits for it. If ctx ends first the
// call returns early but fn still runs to completion in order.
func (c *Coordinator) do(ctx context.Context, fn func(ctx context.Context) error) error {
	req := op{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case c.ops <- req:
	case <-c.stopped:
		return apperr.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backgroundSave is the entry point of the debounce timer and the auto-save
// ticker. Both funnel into the same save path.
func (c *Coordinator) backgroundSave(trigger string) {
	err := c.do(c.base, func(ctx context.Context) error {
		if !c.st.Dirty {
			return nil
		}
		if err := c.save(ctx); err != nil {
			c.st.LastError = userMessage(err)
			return err
		}
		return nil
	})
	if err != nil && !errors.Is(err, apperr.ErrClosed) && !errors.Is(err, context.Canceled) {
		c.logger.Warn("background save failed", slog.String("trigger", trigger), slog.String("error", err.Error()))
		return
	}
	c.logger.Debug("background save done", slog.String("trigger", trigger))
}

// Close stops the timers and, when unsaved edits of a saved note remain,
// fires the teardown notifier without waiting for its outcome.
func (c *Coordinator) Close(ctx context.Context) error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	c.debouncer.Stop()
	if c.ticker != nil {
		c.ticker.Stop()
	}
	err := c.do(ctx, func(context.Context) error {
		c.fireTeardown()
		return nil
	})
	close(c.quit)
	<-c.stopped
	c.cancel()
	return err
}

func (c *Coordinator) fireTeardown() {
	if !c.st.Dirty || c.st.CurrentNoteID == "" || c.teardown == nil {
		return
	}
	d := models.Draft{NoteID: c.st.CurrentNoteID, Title: c.st.Title, Content: c.st.Content}
	if !c.teardown.Notify(d) {
		c.logger.Warn("teardown save dropped", slog.String("id", d.NoteID))
		return
	}
	c.logger.Debug("teardown save queued", slog.String("id", d.NoteID))
}

// State returns a snapshot of the session.
func (c *Coordinator) State(ctx context.Context) (State, error) {
	var out State
	err := c.do(ctx, func(context.Context) error {
		out = c.st
		return nil
	})
	return out, err
}

// CacheStats returns the number of cached notes and the cache capacity.
func (c *Coordinator) CacheStats() (size, capacity int) {
	return c.cache.Len(), c.cache.Capacity()
}

// Cached returns the cached snapshot of id, if any.
func (c *Coordinator) Cached(id string) (models.Note, bool) {
	return c.cache.Get(id)
}

func (c *Coordinator) publishNote(kind, id string) {
	if c.publisher != nil {
		c.publisher.PublishNoteEvent(kind, id)
	}
}

func (c *Coordinator) publishFolder(kind, key string) {
	if c.publisher != nil {
		c.publisher.PublishFolderEvent(kind, key)
	}
}
