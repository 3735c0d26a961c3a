package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pagenote/internal/models"
	"github.com/starford/pagenote/internal/session"
)

// CreateSessionRequest is the request body for opening a session.
type CreateSessionRequest struct {
	URL string `json:"url" example:"https://go.dev/doc/effective_go"`
}

// Validate validates the request.
func (r CreateSessionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required, validation.Length(1, 4096)),
	)
}

// Listing bounds for GET /sessions/{id}/notes.
const (
	maxListPage     = 1 << 20
	maxListPageSize = 500
)

// ListQuery holds the paging parameters of a note listing. Zero means default.
type ListQuery struct {
	Page     int
	PageSize int
}

// Validate validates the query.
func (q ListQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Page, validation.Min(0), validation.Max(maxListPage)),
		validation.Field(&q.PageSize, validation.Min(0), validation.Max(maxListPageSize)),
	)
}

// PageRequest reports the page the user is now viewing.
type PageRequest struct {
	URL string `json:"url" example:"https://go.dev/doc/faq" validate:"required"`
}

// Validate validates the request.
func (r PageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required, validation.Length(1, 4096)),
	)
}

// DraftRequest carries the editor contents.
type DraftRequest struct {
	Title   string `json:"title" example:"Reading notes"`
	Content string `json:"content" example:"<p>Hello</p>"`
}

// SwitchRequest names the note to open.
type SwitchRequest struct {
	ID string `json:"id" example:"note_1700000000000" validate:"required"`
}

// Validate validates the request.
func (r SwitchRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required),
	)
}

// NavigateRequest moves to a neighbouring note.
type NavigateRequest struct {
	Direction string `json:"direction" example:"next" validate:"required"`
}

// Validate validates the request.
func (r NavigateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Direction, validation.Required, validation.In(string(session.Prev), string(session.Next))),
	)
}

// SelectFolderRequest changes the active folder filter.
type SelectFolderRequest struct {
	Key string `json:"key" example:"all" validate:"required"`
}

// Validate validates the request.
func (r SelectFolderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Key, validation.Required),
	)
}

// RenameFolderRequest sets a folder display name.
type RenameFolderRequest struct {
	Name string `json:"name" example:"Go docs" validate:"required"`
}

// Validate validates the request.
func (r RenameFolderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
	)
}

// SessionResponse is returned by every session operation.
type SessionResponse struct {
	ID    string        `json:"id" example:"8d5e0a44-2c3b-4a4e-9b61-0b1f4b0c2f10" validate:"required"`
	State session.State `json:"state" validate:"required"`
}

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []models.ListItem `json:"notes" validate:"required"`
	Total int               `json:"total" example:"42" validate:"required"`
}

// FolderListResponse lists the folder index.
type FolderListResponse struct {
	Folders models.FolderIndex `json:"folders" validate:"required"`
}
