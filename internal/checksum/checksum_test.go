package checksum

import (
	"testing"

	"github.com/starford/pagenote/internal/models"
)

func TestSum(t *testing.T) {
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != empty {
		t.Errorf("Sum(nil) = %s", got)
	}
}

func TestNote(t *testing.T) {
	n := models.Note{ID: "note_1", Title: "T", Content: "body", Folder: "https://go.dev/doc", LastModified: 1}
	same := n
	same.URLs = []string{"https://go.dev/doc/faq"}
	if Note(n) != Note(same) {
		t.Error("urls must not change the digest")
	}

	edited := n
	edited.Content = "body2"
	if Note(n) == Note(edited) {
		t.Error("content change must change the digest")
	}

	// Field boundaries are separated.
	a := models.Note{Title: "ab", Content: "c"}
	b := models.Note{Title: "a", Content: "bc"}
	if Note(a) == Note(b) {
		t.Error("digest must not depend on concatenation only")
	}
}
