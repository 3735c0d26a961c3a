package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/pagenote/internal/apperr"
	"github.com/starford/pagenote/internal/noteservice"
	"github.com/starford/pagenote/internal/pagecontext"
	"github.com/starford/pagenote/internal/session"
)

// errNoSession is returned for an unknown session id.
var errNoSession = fmt.Errorf("session: %w", apperr.ErrNotFound)

type openSession struct {
	coord *session.Coordinator
	tab   *pagecontext.Tab
}

// Sessions tracks the open popup sessions by id.
type Sessions struct {
	svc       *noteservice.Service
	publisher session.Publisher
	teardown  session.TeardownNotifier
	cfg       session.Config
	logger    *slog.Logger

	mu   sync.RWMutex
	open map[string]openSession
}

// NewSessions creates an empty registry. publisher and teardown may be nil.
func NewSessions(svc *noteservice.Service, cfg session.Config, publisher session.Publisher, teardown session.TeardownNotifier, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		svc:       svc,
		publisher: publisher,
		teardown:  teardown,
		cfg:       cfg,
		logger:    logger,
		open:      make(map[string]openSession),
	}
}

// Create opens a session on the page at url.
func (s *Sessions) Create(ctx context.Context, url string) (string, *session.Coordinator, error) {
	if _, err := pagecontext.FolderKey(url); err != nil {
		return "", nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	id := uuid.NewString()
	tab := pagecontext.NewTab(url)
	coord, err := session.New(ctx, session.Deps{
		Service:   s.svc,
		Pages:     tab,
		Publisher: s.publisher,
		Teardown:  s.teardown,
		Logger:    s.logger.With(slog.String("session", id)),
	}, s.cfg)
	if err != nil {
		return "", nil, err
	}

	s.mu.Lock()
	s.open[id] = openSession{coord: coord, tab: tab}
	s.mu.Unlock()
	s.logger.Info("session opened", slog.String("session", id), slog.String("url", url))
	return id, coord, nil
}

// Get returns the coordinator of id.
func (s *Sessions) Get(id string) (*session.Coordinator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.open[id]
	if !ok {
		return nil, errNoSession
	}
	return o.coord, nil
}

// Navigate points the session's tab at url and lets the coordinator pick it up.
func (s *Sessions) Navigate(ctx context.Context, id, url string) (*session.Coordinator, error) {
	if _, err := pagecontext.FolderKey(url); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	s.mu.RLock()
	o, ok := s.open[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errNoSession
	}
	o.tab.Navigate(url)
	return o.coord, o.coord.PageChanged(ctx)
}

// Close tears down id.
func (s *Sessions) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	o, ok := s.open[id]
	delete(s.open, id)
	s.mu.Unlock()
	if !ok {
		return errNoSession
	}
	s.logger.Info("session closed", slog.String("session", id))
	return o.coord.Close(ctx)
}

// CloseAll tears down every open session.
func (s *Sessions) CloseAll(ctx context.Context) error {
	s.mu.Lock()
	all := s.open
	s.open = make(map[string]openSession)
	s.mu.Unlock()

	var errs []error
	for id, o := range all {
		if err := o.coord.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.open)
}
