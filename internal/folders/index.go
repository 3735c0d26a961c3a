// Package folders maintains the folder → note-id secondary index that sits
// alongside the persisted folder names.
//
// The index is rebuilt from one full scan at startup and then kept current by
// Track and Untrack after each confirmed write, so reclaiming an empty folder
// never needs another scan.
package folders

import (
	"maps"
	"slices"
	"sync"

	"github.com/starford/pagenote/internal/models"
)

// Index tracks which notes reference each folder key. Safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{}
	noteDir map[string]string
}

// New returns an empty index.
func New() *Index {
	return &Index{
		members: make(map[string]map[string]struct{}),
		noteDir: make(map[string]string),
	}
}

// Reset replaces the whole index with the given note → folder assignments.
func (x *Index) Reset(assignments map[string]string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.members = make(map[string]map[string]struct{})
	x.noteDir = make(map[string]string, len(assignments))
	for id, folder := range assignments {
		x.trackLocked(id, folder)
	}
}

// Track records that note id now lives in folder, moving it if needed.
func (x *Index) Track(id, folder string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.trackLocked(id, folder)
}

func (x *Index) trackLocked(id, folder string) {
	if old, ok := x.noteDir[id]; ok {
		if old == folder {
			return
		}
		x.untrackLocked(id)
	}
	set, ok := x.members[folder]
	if !ok {
		set = make(map[string]struct{})
		x.members[folder] = set
	}
	set[id] = struct{}{}
	x.noteDir[id] = folder
}

// Untrack forgets note id and returns the folder it was in.
func (x *Index) Untrack(id string) (string, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.untrackLocked(id)
}

func (x *Index) untrackLocked(id string) (string, bool) {
	folder, ok := x.noteDir[id]
	if !ok {
		return "", false
	}
	delete(x.noteDir, id)
	if set := x.members[folder]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(x.members, folder)
		}
	}
	return folder, true
}

// FolderOf returns the folder note id is tracked under.
func (x *Index) FolderOf(id string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	f, ok := x.noteDir[id]
	return f, ok
}

// Count returns the number of notes in folder. AllFolder counts every note.
func (x *Index) Count(folder string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if folder == models.AllFolder {
		return len(x.noteDir)
	}
	return len(x.members[folder])
}

// Members returns the sorted note ids in folder. AllFolder returns every note.
func (x *Index) Members(folder string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if folder == models.AllFolder {
		return slices.Sorted(maps.Keys(x.noteDir))
	}
	return slices.Sorted(maps.Keys(x.members[folder]))
}

// Reclaimable reports whether folder's index entry should be removed: it is
// not the reserved pseudo-folder and no tracked note references it.
func (x *Index) Reclaimable(folder string) bool {
	if folder == "" || folder == models.AllFolder {
		return false
	}
	return x.Count(folder) == 0
}

// Ensure returns a copy of names that contains key, creating it with
// name = key when absent. changed is false when nothing was added.
func Ensure(names models.FolderIndex, key string) (out models.FolderIndex, changed bool) {
	out = names.Clone()
	if key == "" || key == models.AllFolder {
		return out, false
	}
	if _, ok := out[key]; ok {
		return out, false
	}
	out[key] = models.Folder{Name: key}
	return out, true
}
