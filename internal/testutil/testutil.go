// Package testutil provides shared test helpers for stores and services.
package testutil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/pagenote/internal/noteservice"
	"github.com/starford/pagenote/internal/storage"
)

// ErrInjected is returned by FlakyStore while failures are switched on.
var ErrInjected = errors.New("injected store failure")

// TestStore creates a temporary SQLite store that is automatically cleaned up.
func TestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "pagenote-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	s, err := storage.OpenSQLite(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestService returns an initialized service over store.
func TestService(t *testing.T, store storage.Store, opts ...noteservice.Option) *noteservice.Service {
	t.Helper()
	opts = append([]noteservice.Option{noteservice.WithLogger(Logger())}, opts...)
	svc := noteservice.NewService(store, opts...)
	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return svc
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.UnixMilli(1_700_000_000_000)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// FlakyStore wraps a Store, counts writes and can be told to fail.
type FlakyStore struct {
	storage.Store

	failing atomic.Bool
	writes  atomic.Int64
	// gate, when set, blocks every SetMany until it is closed.
	gate atomic.Pointer[chan struct{}]
	// Entered receives a value each time SetMany is entered.
	Entered chan struct{}
}

// NewFlakyStore wraps inner.
func NewFlakyStore(inner storage.Store) *FlakyStore {
	return &FlakyStore{Store: inner, Entered: make(chan struct{}, 64)}
}

// Fail switches injected failures on or off.
func (f *FlakyStore) Fail(on bool) { f.failing.Store(on) }

// Writes returns the number of successful SetMany calls.
func (f *FlakyStore) Writes() int64 { return f.writes.Load() }

// Hold makes SetMany block until the returned release func is called.
func (f *FlakyStore) Hold() (release func()) {
	ch := make(chan struct{})
	f.gate.Store(&ch)
	var once sync.Once
	return func() {
		once.Do(func() {
			f.gate.Store(nil)
			close(ch)
		})
	}
}

func (f *FlakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failing.Load() {
		return nil, ErrInjected
	}
	return f.Store.Get(ctx, key)
}

func (f *FlakyStore) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	if f.failing.Load() {
		return nil, ErrInjected
	}
	return f.Store.GetMany(ctx, keys)
}

func (f *FlakyStore) All(ctx context.Context) (map[string][]byte, error) {
	if f.failing.Load() {
		return nil, ErrInjected
	}
	return f.Store.All(ctx)
}

func (f *FlakyStore) SetMany(ctx context.Context, values map[string][]byte) error {
	select {
	case f.Entered <- struct{}{}:
	default:
	}
	if g := f.gate.Load(); g != nil {
		<-*g
	}
	if f.failing.Load() {
		return ErrInjected
	}
	if err := f.Store.SetMany(ctx, values); err != nil {
		return err
	}
	f.writes.Add(1)
	return nil
}

func (f *FlakyStore) RemoveMany(ctx context.Context, keys []string) error {
	if f.failing.Load() {
		return ErrInjected
	}
	return f.Store.RemoveMany(ctx, keys)
}
