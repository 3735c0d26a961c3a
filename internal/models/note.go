// Package models defines the domain types for page notes.
package models

import "slices"

const (
	// AllFolder is the pseudo-folder meaning "no filter". It never has an
	// entry in the folder index.
	AllFolder = "all"
	// FoldersKey is the reserved store key holding the folder index.
	FoldersKey = "folders"
	// DefaultTitle is applied when a note is saved with an empty title.
	DefaultTitle = "Untitled"
)

// Note is a persisted page note.
type Note struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	Folder       string   `json:"folder"`
	LastModified int64    `json:"lastModified"`
	URLs         []string `json:"urls"`
}

// AddURL appends url unless it is empty or already present.
// It reports whether the list changed.
func (n *Note) AddURL(url string) bool {
	if url == "" || slices.Contains(n.URLs, url) {
		return false
	}
	n.URLs = append(n.URLs, url)
	return true
}

// Clone returns a deep copy so cached snapshots never alias session state.
func (n Note) Clone() Note {
	n.URLs = slices.Clone(n.URLs)
	return n
}

// Folder is the metadata stored for a folder key.
type Folder struct {
	Name string `json:"name"`
}

// FolderIndex maps folder keys to their metadata. It is persisted under FoldersKey.
type FolderIndex map[string]Folder

// Clone returns a shallow copy of the index.
func (f FolderIndex) Clone() FolderIndex {
	out := make(FolderIndex, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// ListItem is a lightweight row of a note listing.
type ListItem struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Folder       string `json:"folder"`
	LastModified int64  `json:"lastModified"`
	URL          string `json:"url,omitempty"`
}

// Draft is the reduced payload sent at teardown for a best-effort save of
// title and content only.
type Draft struct {
	NoteID  string `json:"noteId"`
	Title   string `json:"title"`
	Content string `json:"content"`
}
