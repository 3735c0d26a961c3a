package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/starford/pagenote/internal/apperr"
	"github.com/starford/pagenote/internal/models"
	"github.com/starford/pagenote/internal/noteservice"
)

// Direction selects the neighbour for Navigate.
type Direction string

const (
	Prev Direction = "prev"
	Next Direction = "next"
)

// Edit records new title and content, marks the session dirty and restarts
// the debounce window.
func (c *Coordinator) Edit(ctx context.Context, title, content string) error {
	return c.do(ctx, func(context.Context) error {
		c.st.Title = title
		c.st.Content = content
		c.st.Dirty = true
		c.debouncer.Trigger()
		return nil
	})
}

// Save persists the open note. It is a no-op when nothing is dirty.
func (c *Coordinator) Save(ctx context.Context) error {
	return c.do(ctx, c.save)
}

// Load displays id, always revalidating against the store.
func (c *Coordinator) Load(ctx context.Context, id string) error {
	return c.do(ctx, func(ctx context.Context) error { return c.load(ctx, id) })
}

// SwitchTo saves the open note and only then loads id. If that save fails
// the switch is abandoned: the source note stays open and dirty and the
// save error is returned.
func (c *Coordinator) SwitchTo(ctx context.Context, id string) error {
	return c.do(ctx, func(ctx context.Context) error { return c.switchTo(ctx, id) })
}

// NewNote flushes pending edits and starts an empty note bound to the
// folder of the current page.
func (c *Coordinator) NewNote(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		if err := c.save(ctx); err != nil {
			return err
		}
		c.resetToNew(ctx)
		return nil
	})
}

// Delete removes id and reclaims its folder when it became empty.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	return c.do(ctx, func(ctx context.Context) error { return c.deleteNote(ctx, id) })
}

// RenameFolder changes the display name of key.
func (c *Coordinator) RenameFolder(ctx context.Context, key, name string) error {
	return c.do(ctx, func(ctx context.Context) error {
		if err := c.svc.RenameFolder(ctx, key, name); err != nil {
			return c.fail("rename folder", err)
		}
		c.publishFolder(EventFolderRenamed, key)
		return nil
	})
}

// DeleteFolder removes key and every note in it.
func (c *Coordinator) DeleteFolder(ctx context.Context, key string) error {
	return c.do(ctx, func(ctx context.Context) error { return c.deleteFolder(ctx, key) })
}

// SelectFolder changes the folder the note list is filtered by.
func (c *Coordinator) SelectFolder(ctx context.Context, key string) error {
	return c.do(ctx, func(ctx context.Context) error {
		if key != models.AllFolder {
			names, err := c.svc.Folders(ctx)
			if err != nil {
				return c.fail("select folder", err)
			}
			if _, ok := names[key]; !ok {
				return fmt.Errorf("session: select folder %q: %w", key, apperr.ErrNotFound)
			}
		}
		c.st.CurrentFolder = key
		return nil
	})
}

// Navigate switches to the previous or next note of the active folder,
// wrapping around at both ends.
func (c *Coordinator) Navigate(ctx context.Context, dir Direction) error {
	return c.do(ctx, func(ctx context.Context) error {
		notes, err := c.svc.Notes(ctx, c.st.CurrentFolder)
		if err != nil {
			return c.fail("navigate", err)
		}
		if len(notes) == 0 {
			return nil
		}
		cur := slices.IndexFunc(notes, func(n models.Note) bool { return n.ID == c.st.CurrentNoteID })
		var next int
		switch dir {
		case Prev:
			if cur > 0 {
				next = cur - 1
			} else {
				next = len(notes) - 1
			}
		case Next:
			if cur < len(notes)-1 {
				next = cur + 1
			}
		default:
			return fmt.Errorf("session: direction %q: %w", dir, apperr.ErrInvalidInput)
		}
		return c.switchTo(ctx, notes[next].ID)
	})
}

// List returns one page of the active folder's notes.
func (c *Coordinator) List(ctx context.Context, page, pageSize int) (items []models.ListItem, total int, err error) {
	err = c.do(ctx, func(ctx context.Context) error {
		var lerr error
		items, total, lerr = c.svc.List(ctx, c.st.CurrentFolder, page, pageSize)
		if lerr != nil {
			return c.fail("list", lerr)
		}
		return nil
	})
	return items, total, err
}

// Export returns the stored copy of the open note. It is rejected without a
// store call when no note is open or the note has unsaved edits.
func (c *Coordinator) Export(ctx context.Context) (models.Note, error) {
	var out models.Note
	err := c.do(ctx, func(ctx context.Context) error {
		if c.st.CurrentNoteID == "" || c.st.Dirty {
			return fmt.Errorf("session: save the note before exporting: %w", apperr.ErrValidationSkip)
		}
		n, err := c.svc.Get(ctx, c.st.CurrentNoteID)
		if err != nil {
			return c.fail("export", err)
		}
		out = n
		return nil
	})
	return out, err
}

// PageChanged re-resolves the active page. Later saves append the new url;
// a note that was never saved also moves to the new page's folder.
func (c *Coordinator) PageChanged(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		url, key, err := c.resolveContext(ctx)
		if err != nil {
			return fmt.Errorf("session: page changed: %w: %w", apperr.ErrInvalidInput, err)
		}
		c.st.CurrentURL = url
		if c.st.CurrentNoteID == "" {
			c.st.NoteFolder = key
		}
		return nil
	})
}

func (c *Coordinator) open(ctx context.Context) error {
	url, key, err := c.resolveContext(ctx)
	if err != nil {
		c.logger.Warn("page context unavailable", slog.String("error", err.Error()))
	}
	names, err := c.svc.Folders(ctx)
	if err != nil {
		return c.fail("open", err)
	}
	c.st.CurrentURL = url
	c.st.NoteFolder = key
	c.st.CurrentFolder = models.AllFolder
	if _, ok := names[key]; ok {
		c.st.CurrentFolder = key
	}

	recent, err := c.svc.Notes(ctx, models.AllFolder)
	if err != nil {
		c.logger.Warn("cache preload failed", slog.String("error", err.Error()))
		return nil
	}
	for _, n := range recent[:min(len(recent), c.cache.Capacity())] {
		c.cache.Put(n.ID, n)
	}
	return nil
}

func (c *Coordinator) resolveContext(ctx context.Context) (url, folder string, err error) {
	if c.pages == nil {
		return "", "", fmt.Errorf("session: no page context resolver")
	}
	url, err = c.pages.CurrentURL(ctx)
	if err != nil {
		return "", "", err
	}
	folder, err = c.pages.CurrentFolderKey(ctx)
	if err != nil {
		return "", "", err
	}
	return url, folder, nil
}

func (c *Coordinator) save(ctx context.Context) error {
	if !c.st.Dirty {
		return nil
	}
	url, folder := c.st.CurrentURL, c.st.NoteFolder
	if url == "" || folder == "" {
		u, f, err := c.resolveContext(ctx)
		if err != nil {
			return c.fail("save: resolve page", err)
		}
		url = cmpOr(url, u)
		folder = cmpOr(folder, f)
	}

	res, err := c.svc.Save(ctx, noteservice.SaveRequest{
		ID:      c.st.CurrentNoteID,
		Title:   c.st.Title,
		Content: c.st.Content,
		Folder:  folder,
		URL:     url,
	})
	if err != nil {
		return c.fail("save", err)
	}

	c.st.Dirty = false
	c.st.LastError = ""
	c.st.CurrentNoteID = res.Note.ID
	c.st.CurrentFolder = res.Note.Folder
	c.st.NoteFolder = res.Note.Folder
	c.st.CurrentURL = url
	c.cache.Put(res.Note.ID, res.Note)

	if res.FolderCreated {
		c.publishFolder(EventFolderCreated, res.Note.Folder)
	}
	c.publishNote(EventNoteSaved, res.Note.ID)
	c.logger.Debug("note saved", slog.String("id", res.Note.ID), slog.Bool("created", res.Created))
	return nil
}

func (c *Coordinator) load(ctx context.Context, id string) error {
	stored, err := c.svc.Get(ctx, id)
	if err != nil {
		return c.fail("load", err)
	}
	note := stored
	if cached, ok := c.cache.Get(id); ok && cached.LastModified == stored.LastModified {
		note = cached
		c.logger.Debug("using cached note", slog.String("id", id))
	} else {
		c.cache.Put(id, stored)
		c.logger.Debug("using stored note", slog.String("id", id))
	}
	c.display(note)
	return nil
}

func (c *Coordinator) display(n models.Note) {
	c.debouncer.Cancel()
	c.st.CurrentNoteID = n.ID
	c.st.Title = n.Title
	c.st.Content = n.Content
	c.st.NoteFolder = n.Folder
	c.st.Dirty = false
}

func (c *Coordinator) switchTo(ctx context.Context, id string) error {
	if id == c.st.CurrentNoteID {
		return nil
	}
	if err := c.save(ctx); err != nil {
		return fmt.Errorf("session: switch aborted, open note not saved: %w", err)
	}
	return c.load(ctx, id)
}

// resetToNew starts an empty note. Without a page context the note stays
// unbound until the next save resolves one.
func (c *Coordinator) resetToNew(ctx context.Context) {
	c.debouncer.Cancel()
	c.st.CurrentNoteID = ""
	c.st.Title = ""
	c.st.Content = ""
	c.st.Dirty = false
	c.st.NoteFolder = ""

	url, key, err := c.resolveContext(ctx)
	if err != nil {
		c.logger.Warn("page context unavailable", slog.String("error", err.Error()))
		return
	}
	c.st.CurrentURL = url
	c.st.NoteFolder = key
	c.st.CurrentFolder = key
}

func (c *Coordinator) deleteNote(ctx context.Context, id string) error {
	res, err := c.svc.Delete(ctx, id)
	if res.ID == "" {
		return c.fail("delete", err)
	}
	// The note removal is durable from here on, even if reclaiming its
	// folder failed.
	c.cache.Remove(id)
	if res.FolderRemoved {
		if c.st.CurrentFolder == res.Folder {
			c.st.CurrentFolder = models.AllFolder
		}
		c.publishFolder(EventFolderDeleted, res.Folder)
	}
	if id == c.st.CurrentNoteID {
		c.resetToNew(ctx)
	}
	c.publishNote(EventNoteDeleted, id)
	if err != nil {
		return c.fail("delete: reclaim folder", err)
	}
	return nil
}

func (c *Coordinator) deleteFolder(ctx context.Context, key string) error {
	ids, err := c.svc.DeleteFolder(ctx, key)
	for _, id := range ids {
		c.cache.Remove(id)
		c.publishNote(EventNoteDeleted, id)
	}
	if len(ids) > 0 && slices.Contains(ids, c.st.CurrentNoteID) {
		c.resetToNew(ctx)
	}
	if err != nil {
		return c.fail("delete folder", err)
	}
	if c.st.CurrentFolder == key {
		c.st.CurrentFolder = models.AllFolder
	}
	c.publishFolder(EventFolderDeleted, key)
	return nil
}

// fail logs err and returns it wrapped with the operation name.
func (c *Coordinator) fail(op string, err error) error {
	level := slog.LevelError
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrInvalidInput) {
		level = slog.LevelWarn
	}
	c.logger.Log(context.Background(), level, op+" failed", slog.String("error", err.Error()))
	return fmt.Errorf("session: %s: %w", op, err)
}

// userMessage turns an error into the text shown to the user.
func userMessage(err error) string {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return "Note not found. It may have been deleted."
	case errors.Is(err, apperr.ErrStoreUnavailable):
		return "Failed to save note. Please try again."
	case errors.Is(err, apperr.ErrValidationSkip):
		return "Please save the note before exporting."
	default:
		return "Something went wrong. Please try again."
	}
}

// UserMessage is exported for the API layer.
func UserMessage(err error) string { return userMessage(err) }

func cmpOr(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
