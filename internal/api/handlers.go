package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pagenote/internal/apperr"
	"github.com/starford/pagenote/internal/checksum"
	"github.com/starford/pagenote/internal/noteservice"
	"github.com/starford/pagenote/internal/session"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	sessions  *Sessions
	svc       *noteservice.Service
	publisher session.Publisher
}

// NewHandler creates a new Handler. publisher may be nil.
func NewHandler(sessions *Sessions, svc *noteservice.Service, publisher session.Publisher) *Handler {
	return &Handler{sessions: sessions, svc: svc, publisher: publisher}
}

// pathParam returns a URL parameter, decoding escaped slashes (folder keys
// are URLs themselves).
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// decode reads a JSON body into v and runs its validation, if any.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if vv, ok := v.(validation.Validatable); ok {
		if err := vv.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return false
		}
	}
	return true
}

// parseListQuery reads page and page_size. Missing values stay zero.
func parseListQuery(r *http.Request) (ListQuery, error) {
	var q ListQuery
	for name, dst := range map[string]*int{"page": &q.Page, "page_size": &q.PageSize} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, fmt.Errorf("%s: must be an integer", name)
		}
		*dst = n
	}
	return q, q.Validate()
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, errNoSession):
		writeJSON(w, http.StatusNotFound, errorBody("session not found"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(session.UserMessage(err)))
	case errors.Is(err, apperr.ErrValidationSkip):
		writeJSON(w, http.StatusConflict, errorBody(session.UserMessage(err)))
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrClosed):
		writeJSON(w, http.StatusGone, errorBody("session closed"))
	case errors.Is(err, apperr.ErrStoreUnavailable):
		slog.Error(op+" failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, errorBody(session.UserMessage(err)))
	default:
		slog.Error(op+" failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// writeState responds with the current state of a session.
func (h *Handler) writeState(w http.ResponseWriter, r *http.Request, status int, id string, c *session.Coordinator) {
	st, err := c.State(r.Context())
	if err != nil {
		writeError(w, r, "state", err)
		return
	}
	writeJSON(w, status, SessionResponse{ID: id, State: st})
}

// withSession resolves {id} and runs fn on its coordinator, answering with
// the resulting state.
func (h *Handler) withSession(op string, fn func(r *http.Request, c *session.Coordinator) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		c, err := h.sessions.Get(id)
		if err != nil {
			writeError(w, r, op, err)
			return
		}
		if err := fn(r, c); err != nil {
			writeError(w, r, op, err)
			return
		}
		h.writeState(w, r, http.StatusOK, id, c)
	}
}

// CreateSession handles POST /api/sessions.
//
//	@Summary		Open a session on a page
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateSessionRequest	true	"Active page"
//	@Success		201		{object}	SessionResponse
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions [post]
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decode(w, r, &req) {
		return
	}
	id, c, err := h.sessions.Create(r.Context(), req.URL)
	if err != nil {
		writeError(w, r, "create session", err)
		return
	}
	h.writeState(w, r, http.StatusCreated, id, c)
}

// GetSession handles GET /api/sessions/{id}.
//
//	@Summary		Get session state
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	SessionResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.withSession("get session", func(*http.Request, *session.Coordinator) error { return nil })(w, r)
}

// CloseSession handles DELETE /api/sessions/{id}.
//
//	@Summary		Close a session; unsaved edits go to the background saver
//	@Tags			sessions
//	@Param			id	path	string	true	"Session id"
//	@Success		204	"Session closed"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [delete]
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "close session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetPage handles PUT /api/sessions/{id}/page.
//
//	@Summary		Report the page the user is viewing
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Session id"
//	@Param			body	body		PageRequest	true	"Active page"
//	@Success		200		{object}	SessionResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/page [put]
func (h *Handler) SetPage(w http.ResponseWriter, r *http.Request) {
	var req PageRequest
	if !decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	c, err := h.sessions.Navigate(r.Context(), id, req.URL)
	if err != nil {
		writeError(w, r, "set page", err)
		return
	}
	h.writeState(w, r, http.StatusOK, id, c)
}

// UpdateDraft handles PUT /api/sessions/{id}/draft.
//
//	@Summary		Record editor contents; saved after the debounce window
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		DraftRequest	true	"Editor contents"
//	@Success		200		{object}	SessionResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/draft [put]
func (h *Handler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if !decode(w, r, &req) {
		return
	}
	h.withSession("update draft", func(r *http.Request, c *session.Coordinator) error {
		return c.Edit(r.Context(), req.Title, req.Content)
	})(w, r)
}

// Save handles POST /api/sessions/{id}/save.
//
//	@Summary		Save the open note now
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	SessionResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/save [post]
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	h.withSession("save", func(r *http.Request, c *session.Coordinator) error {
		return c.Save(r.Context())
	})(w, r)
}

// NewNote handles POST /api/sessions/{id}/new.
//
//	@Summary		Flush the open note and start a new one
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	SessionResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/new [post]
func (h *Handler) NewNote(w http.ResponseWriter, r *http.Request) {
	h.withSession("new note", func(r *http.Request, c *session.Coordinator) error {
		return c.NewNote(r.Context())
	})(w, r)
}

// Switch handles POST /api/sessions/{id}/switch.
//
//	@Summary		Save the open note, then open another
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		SwitchRequest	true	"Target note"
//	@Success		200		{object}	SessionResponse
//	@Failure		404		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/switch [post]
func (h *Handler) Switch(w http.ResponseWriter, r *http.Request) {
	var req SwitchRequest
	if !decode(w, r, &req) {
		return
	}
	h.withSession("switch", func(r *http.Request, c *session.Coordinator) error {
		return c.SwitchTo(r.Context(), req.ID)
	})(w, r)
}

// Navigate handles POST /api/sessions/{id}/navigate.
//
//	@Summary		Open the previous or next note of the active folder
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		NavigateRequest	true	"Direction"
//	@Success		200		{object}	SessionResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/navigate [post]
func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if !decode(w, r, &req) {
		return
	}
	h.withSession("navigate", func(r *http.Request, c *session.Coordinator) error {
		return c.Navigate(r.Context(), session.Direction(req.Direction))
	})(w, r)
}

// ListNotes handles GET /api/sessions/{id}/notes.
//
//	@Summary		List notes of the active folder, most recent first
//	@Tags			notes
//	@Produce		json
//	@Param			id			path		string	true	"Session id"
//	@Param			page		query		int		false	"Page number, from 1"
//	@Param			page_size	query		int		false	"Page size"
//	@Success		200			{object}	NoteListResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	c, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "list notes", err)
		return
	}
	query, err := parseListQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	items, total, err := c.List(r.Context(), query.Page, query.PageSize)
	if err != nil {
		writeError(w, r, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: total})
}

// LoadNote handles GET /api/sessions/{id}/notes/{noteID}.
//
//	@Summary		Open a note without saving the current one
//	@Tags			notes
//	@Produce		json
//	@Param			id		path		string	true	"Session id"
//	@Param			noteID	path		string	true	"Note id"
//	@Success		200		{object}	SessionResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/notes/{noteID} [get]
func (h *Handler) LoadNote(w http.ResponseWriter, r *http.Request) {
	h.withSession("load note", func(r *http.Request, c *session.Coordinator) error {
		return c.Load(r.Context(), chi.URLParam(r, "noteID"))
	})(w, r)
}

// DeleteNote handles DELETE /api/sessions/{id}/notes/{noteID}.
//
//	@Summary		Delete a note; its folder is removed once empty
//	@Tags			notes
//	@Param			id		path	string	true	"Session id"
//	@Param			noteID	path	string	true	"Note id"
//	@Success		204		"Note deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/notes/{noteID} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	c, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "delete note", err)
		return
	}
	if err := c.Delete(r.Context(), chi.URLParam(r, "noteID")); err != nil {
		writeError(w, r, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectFolder handles PUT /api/sessions/{id}/folder.
//
//	@Summary		Change the active folder filter
//	@Tags			folders
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Session id"
//	@Param			body	body		SelectFolderRequest	true	"Folder key or all"
//	@Success		200		{object}	SessionResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/folder [put]
func (h *Handler) SelectFolder(w http.ResponseWriter, r *http.Request) {
	var req SelectFolderRequest
	if !decode(w, r, &req) {
		return
	}
	h.withSession("select folder", func(r *http.Request, c *session.Coordinator) error {
		return c.SelectFolder(r.Context(), req.Key)
	})(w, r)
}

// DeleteFolder handles DELETE /api/sessions/{id}/folders/{key}.
//
//	@Summary		Delete a folder and every note in it
//	@Tags			folders
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Param			key	path		string	true	"Folder key, path-escaped"
//	@Success		200	{object}	SessionResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/folders/{key} [delete]
func (h *Handler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	h.withSession("delete folder", func(r *http.Request, c *session.Coordinator) error {
		return c.DeleteFolder(r.Context(), pathParam(r, "key"))
	})(w, r)
}

// Export handles GET /api/sessions/{id}/export.
//
//	@Summary		Return the saved copy of the open note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Param			If-None-Match	header	string	false	"ETag of a previous export"
//	@Success		200	{object}	models.Note
//	@Success		304	"Unchanged since If-None-Match"
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/export [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	c, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "export", err)
		return
	}
	note, err := c.Export(r.Context())
	if err != nil {
		writeError(w, r, "export", err)
		return
	}
	etag := `"` + checksum.Note(note) + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// ListFolders handles GET /api/folders.
//
//	@Summary		List the folder index
//	@Tags			folders
//	@Produce		json
//	@Success		200	{object}	FolderListResponse
//	@Security		BearerAuth
//	@Router			/folders [get]
func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.Folders(r.Context())
	if err != nil {
		writeError(w, r, "list folders", err)
		return
	}
	writeJSON(w, http.StatusOK, FolderListResponse{Folders: names})
}

// RenameFolder handles PUT /api/folders/{key}.
//
//	@Summary		Rename a folder; its key never changes
//	@Tags			folders
//	@Accept			json
//	@Produce		json
//	@Param			key		path		string				true	"Folder key, path-escaped"
//	@Param			body	body		RenameFolderRequest	true	"New display name"
//	@Success		200		{object}	FolderListResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders/{key} [put]
func (h *Handler) RenameFolder(w http.ResponseWriter, r *http.Request) {
	var req RenameFolderRequest
	if !decode(w, r, &req) {
		return
	}
	key := pathParam(r, "key")
	if err := h.svc.RenameFolder(r.Context(), key, req.Name); err != nil {
		writeError(w, r, "rename folder", err)
		return
	}
	if h.publisher != nil {
		h.publisher.PublishFolderEvent(session.EventFolderRenamed, key)
	}
	h.ListFolders(w, r)
}
