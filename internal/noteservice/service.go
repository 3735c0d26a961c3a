// Package noteservice owns every read-modify-write sequence against the
// durable store: note saves, deletes with folder reclamation, folder rename
// and folder delete. Sequences are serialized process-wide so two sessions
// (or a session and the background worker) never interleave a folder index
// update.
package noteservice

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pagenote/internal/apperr"
	"github.com/starford/pagenote/internal/folders"
	"github.com/starford/pagenote/internal/models"
	"github.com/starford/pagenote/internal/storage"
)

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for ids and lastModified.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger. slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service coordinates the store and the folder secondary index.
type Service struct {
	store  storage.Store
	index  *folders.Index
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewService creates a note service. Call Init before use.
func NewService(store storage.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		index:  folders.New(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Index exposes the folder membership index (read-only use).
func (s *Service) Index() *folders.Index { return s.index }

// Init creates an empty folder index entry when none exists and rebuilds the
// membership index from one full scan.
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.store.All(ctx)
	if err != nil {
		return storeErr("init", err)
	}
	if _, ok := all[models.FoldersKey]; !ok {
		if err := s.store.SetMany(ctx, map[string][]byte{models.FoldersKey: []byte("{}")}); err != nil {
			return storeErr("init folders", err)
		}
		s.logger.Info("initialized empty folder index")
	}

	assignments := make(map[string]string, len(all))
	for key, raw := range all {
		if key == models.FoldersKey {
			continue
		}
		n, err := decodeNote(raw)
		if err != nil {
			s.logger.Warn("init: skipping undecodable note", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		assignments[key] = n.Folder
	}
	s.index.Reset(assignments)
	s.logger.Debug("folder index rebuilt", slog.Int("notes", len(assignments)))
	return nil
}

// SaveRequest carries everything a full save needs.
type SaveRequest struct {
	// ID is empty for a note that was never saved.
	ID      string
	Title   string
	Content string
	Folder  string
	URL     string
}

// SaveResult is the authoritative outcome of a confirmed save.
type SaveResult struct {
	Note          models.Note
	Created       bool
	FolderCreated bool
}

// Save writes the note and the folder index in one SetMany call.
func (s *Service) Save(ctx context.Context, req SaveRequest) (SaveResult, error) {
	if req.Folder == "" || req.Folder == models.AllFolder {
		return SaveResult{}, fmt.Errorf("noteservice: save: folder %q: %w", req.Folder, apperr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys := []string{models.FoldersKey}
	if req.ID != "" {
		keys = append(keys, req.ID)
	}
	existing, err := s.store.GetMany(ctx, keys)
	if err != nil {
		return SaveResult{}, storeErr("save: read", err)
	}
	names, err := decodeFolders(existing[models.FoldersKey])
	if err != nil {
		return SaveResult{}, fmt.Errorf("noteservice: save: %w", err)
	}

	id := req.ID
	if id == "" {
		id = s.mintID()
	}

	note := models.Note{
		ID:           id,
		Title:        cmp.Or(req.Title, models.DefaultTitle),
		Content:      req.Content,
		Folder:       req.Folder,
		LastModified: s.now().UnixMilli(),
	}

	var prev *models.Note
	if raw, ok := existing[id]; ok {
		p, err := decodeNote(raw)
		if err != nil {
			return SaveResult{}, fmt.Errorf("noteservice: save: %w", err)
		}
		prev = &p
	}
	if prev != nil {
		note.URLs = slices.Clone(prev.URLs)
		note.LastModified = max(note.LastModified, prev.LastModified)
	}
	note.AddURL(req.URL)
	if note.URLs == nil {
		note.URLs = []string{}
	}

	names, folderCreated := folders.Ensure(names, note.Folder)
	var orphaned string
	if prev != nil && prev.Folder != note.Folder && prev.Folder != models.AllFolder {
		// Moving the last note out of a folder reclaims it in the same write.
		if members := s.index.Members(prev.Folder); len(members) == 1 && members[0] == id {
			orphaned = prev.Folder
			delete(names, orphaned)
		}
	}

	noteJSON, err := json.Marshal(note)
	if err != nil {
		return SaveResult{}, fmt.Errorf("noteservice: encode note: %w", err)
	}
	namesJSON, err := json.Marshal(names)
	if err != nil {
		return SaveResult{}, fmt.Errorf("noteservice: encode folders: %w", err)
	}
	if err := s.store.SetMany(ctx, map[string][]byte{
		id:                noteJSON,
		models.FoldersKey: namesJSON,
	}); err != nil {
		return SaveResult{}, storeErr("save: write", err)
	}

	s.index.Track(id, note.Folder)
	s.logger.Debug("note saved",
		slog.String("id", id),
		slog.String("folder", note.Folder),
		slog.Bool("created", prev == nil))
	if orphaned != "" {
		s.logger.Info("empty folder reclaimed", slog.String("folder", orphaned))
	}
	return SaveResult{Note: note, Created: prev == nil, FolderCreated: folderCreated}, nil
}

// mintID derives a fresh id from the current time, bumping by one
// millisecond while the id is taken. Caller holds s.mu.
func (s *Service) mintID() string {
	ms := s.now().UnixMilli()
	for {
		id := fmt.Sprintf("note_%d", ms)
		if _, taken := s.index.FolderOf(id); !taken {
			return id
		}
		ms++
	}
}

// MergeSave is the reduced save used at teardown: only title and content are
// replaced, folder and urls are left untouched.
func (s *Service) MergeSave(ctx context.Context, id, title, content string) (models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.store.Get(ctx, id)
	if err != nil {
		return models.Note{}, storeErr("merge save: read", err)
	}
	note, err := decodeNote(raw)
	if err != nil {
		return models.Note{}, fmt.Errorf("noteservice: merge save: %w", err)
	}
	note.Title = cmp.Or(title, models.DefaultTitle)
	note.Content = content
	note.LastModified = max(s.now().UnixMilli(), note.LastModified)

	data, err := json.Marshal(note)
	if err != nil {
		return models.Note{}, fmt.Errorf("noteservice: encode note: %w", err)
	}
	if err := s.store.SetMany(ctx, map[string][]byte{id: data}); err != nil {
		return models.Note{}, storeErr("merge save: write", err)
	}
	return note, nil
}

// Get reads one note from the store.
func (s *Service) Get(ctx context.Context, id string) (models.Note, error) {
	if id == "" || id == models.FoldersKey {
		return models.Note{}, apperr.ErrNotFound
	}
	raw, err := s.store.Get(ctx, id)
	if err != nil {
		return models.Note{}, storeErr("get", err)
	}
	n, err := decodeNote(raw)
	if err != nil {
		return models.Note{}, fmt.Errorf("noteservice: get %s: %w", id, err)
	}
	return n, nil
}

// DeleteResult describes a confirmed delete.
type DeleteResult struct {
	ID            string
	Folder        string
	FolderRemoved bool
}

// Delete removes the note, then reclaims its folder when no note references
// it anymore. Reclamation is computed only after the removal succeeded.
func (s *Service) Delete(ctx context.Context, id string) (DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" || id == models.FoldersKey {
		return DeleteResult{}, apperr.ErrNotFound
	}
	raw, err := s.store.Get(ctx, id)
	if err != nil {
		return DeleteResult{}, storeErr("delete: read", err)
	}
	note, err := decodeNote(raw)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("noteservice: delete: %w", err)
	}
	if err := s.store.RemoveMany(ctx, []string{id}); err != nil {
		return DeleteResult{}, storeErr("delete: remove", err)
	}
	s.index.Untrack(id)

	res := DeleteResult{ID: id, Folder: note.Folder}
	if !s.index.Reclaimable(note.Folder) {
		return res, nil
	}
	removed, err := s.removeFolderEntry(ctx, note.Folder)
	if err != nil {
		return res, err
	}
	res.FolderRemoved = removed
	if removed {
		s.logger.Info("empty folder reclaimed", slog.String("folder", note.Folder))
	}
	return res, nil
}

// removeFolderEntry drops key from the persisted folder index. Caller holds s.mu.
func (s *Service) removeFolderEntry(ctx context.Context, key string) (bool, error) {
	names, err := s.readFolders(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := names[key]; !ok {
		return false, nil
	}
	delete(names, key)
	if err := s.writeFolders(ctx, names); err != nil {
		return false, err
	}
	return true, nil
}

// Folders returns the persisted folder index.
func (s *Service) Folders(ctx context.Context) (models.FolderIndex, error) {
	return s.readFolders(ctx)
}

// RenameFolder changes the display name of key. The key itself never changes.
func (s *Service) RenameFolder(ctx context.Context, key, name string) error {
	if key == "" || key == models.AllFolder {
		return fmt.Errorf("noteservice: rename %q: %w", key, apperr.ErrInvalidInput)
	}
	if err := validation.Validate(name, validation.Required, validation.Length(1, 200)); err != nil {
		return fmt.Errorf("noteservice: rename name: %w: %w", apperr.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.readFolders(ctx)
	if err != nil {
		return err
	}
	if _, ok := names[key]; !ok {
		return fmt.Errorf("noteservice: rename folder %q: %w", key, apperr.ErrNotFound)
	}
	names[key] = models.Folder{Name: name}
	return s.writeFolders(ctx, names)
}

// DeleteFolder removes every note in key and then the folder entry itself.
// It returns the ids of the removed notes.
func (s *Service) DeleteFolder(ctx context.Context, key string) ([]string, error) {
	if key == "" || key == models.AllFolder {
		return nil, fmt.Errorf("noteservice: delete folder %q: %w", key, apperr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.index.Members(key)
	if len(ids) > 0 {
		if err := s.store.RemoveMany(ctx, ids); err != nil {
			return nil, storeErr("delete folder: remove notes", err)
		}
		for _, id := range ids {
			s.index.Untrack(id)
		}
	}
	if _, err := s.removeFolderEntry(ctx, key); err != nil {
		return ids, err
	}
	s.logger.Info("folder deleted", slog.String("folder", key), slog.Int("notes", len(ids)))
	return ids, nil
}

// Notes returns the notes in folder (AllFolder for every note), most
// recently modified first.
func (s *Service) Notes(ctx context.Context, folder string) ([]models.Note, error) {
	ids := s.index.Members(folder)
	raw, err := s.store.GetMany(ctx, ids)
	if err != nil {
		return nil, storeErr("list", err)
	}
	out := make([]models.Note, 0, len(raw))
	for key, v := range raw {
		n, err := decodeNote(v)
		if err != nil {
			s.logger.Warn("list: skipping undecodable note", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b models.Note) int {
		if c := cmp.Compare(b.LastModified, a.LastModified); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

// List returns one page of list items for folder. page starts at 1.
func (s *Service) List(ctx context.Context, folder string, page, pageSize int) ([]models.ListItem, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	notes, err := s.Notes(ctx, folder)
	if err != nil {
		return nil, 0, err
	}
	total := len(notes)
	pageSize = min(pageSize, max(total, 1))
	if page-1 > total/pageSize {
		return []models.ListItem{}, total, nil
	}
	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)

	items := make([]models.ListItem, 0, end-start)
	for _, n := range notes[start:end] {
		items = append(items, toListItem(n))
	}
	return items, total, nil
}

// DefaultPageSize is the listing page size when none is given.
const DefaultPageSize = 50

// Refresh re-reads key after an out-of-process change and updates the
// membership index.
func (s *Service) Refresh(ctx context.Context, key string) error {
	if key == models.FoldersKey {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, apperr.ErrNotFound) {
		s.index.Untrack(key)
		return nil
	}
	if err != nil {
		return storeErr("refresh", err)
	}
	n, err := decodeNote(raw)
	if err != nil {
		return fmt.Errorf("noteservice: refresh %s: %w", key, err)
	}
	s.index.Track(key, n.Folder)
	return nil
}

func (s *Service) readFolders(ctx context.Context) (models.FolderIndex, error) {
	raw, err := s.store.Get(ctx, models.FoldersKey)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.FolderIndex{}, nil
	}
	if err != nil {
		return nil, storeErr("read folders", err)
	}
	return decodeFolders(raw)
}

func (s *Service) writeFolders(ctx context.Context, names models.FolderIndex) error {
	data, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("noteservice: encode folders: %w", err)
	}
	if err := s.store.SetMany(ctx, map[string][]byte{models.FoldersKey: data}); err != nil {
		return storeErr("write folders", err)
	}
	return nil
}

func toListItem(n models.Note) models.ListItem {
	item := models.ListItem{
		ID:           n.ID,
		Title:        cmp.Or(n.Title, models.DefaultTitle),
		Folder:       n.Folder,
		LastModified: n.LastModified,
	}
	if len(n.URLs) > 0 {
		item.URL = n.URLs[0]
	}
	return item
}

func decodeNote(raw []byte) (models.Note, error) {
	var n models.Note
	if err := json.Unmarshal(raw, &n); err != nil {
		return models.Note{}, fmt.Errorf("decode note: %w", err)
	}
	return n, nil
}

func decodeFolders(raw []byte) (models.FolderIndex, error) {
	names := models.FolderIndex{}
	if len(raw) == 0 {
		return names, nil
	}
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("decode folders: %w", err)
	}
	if names == nil {
		names = models.FolderIndex{}
	}
	return names, nil
}

// storeErr keeps ErrNotFound as is and tags every other failure as
// ErrStoreUnavailable.
func storeErr(op string, err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return fmt.Errorf("noteservice: %s: %w: %w", op, apperr.ErrStoreUnavailable, err)
}
