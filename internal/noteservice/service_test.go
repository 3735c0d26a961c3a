package noteservice_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/starford/pagenote/internal/apperr"
	"github.com/starford/pagenote/internal/models"
	"github.com/starford/pagenote/internal/noteservice"
	"github.com/starford/pagenote/internal/storage"
	"github.com/starford/pagenote/internal/testutil"
)

const (
	pageX   = "https://go.dev/doc/effective_go"
	pageY   = "https://go.dev/doc/faq"
	folderX = "https://go.dev/doc"
)

func storedNote(t *testing.T, s storage.Store, id string) models.Note {
	t.Helper()
	raw, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("store get %s: %v", id, err)
	}
	var n models.Note
	if err := json.Unmarshal(raw, &n); err != nil {
		t.Fatal(err)
	}
	return n
}

func storedFolders(t *testing.T, s storage.Store) models.FolderIndex {
	t.Helper()
	raw, err := s.Get(context.Background(), models.FoldersKey)
	if err != nil {
		t.Fatalf("store get folders: %v", err)
	}
	var f models.FolderIndex
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestInitCreatesEmptyFolderIndex(t *testing.T) {
	store := testutil.TestStore(t)
	testutil.TestService(t, store)
	if got := storedFolders(t, store); len(got) != 0 {
		t.Errorf("folders = %v, want empty", got)
	}
}

func TestSaveNewNote(t *testing.T) {
	store := testutil.TestStore(t)
	clock := testutil.NewClock()
	svc := testutil.TestService(t, store, noteservice.WithClock(clock.Now))
	ctx := context.Background()

	res, err := svc.Save(ctx, noteservice.SaveRequest{Content: "<p>Hello</p>", Folder: folderX, URL: pageX})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !res.Created || !res.FolderCreated {
		t.Errorf("created=%v folderCreated=%v, want both true", res.Created, res.FolderCreated)
	}
	if res.Note.ID != "note_1700000000000" {
		t.Errorf("id = %q", res.Note.ID)
	}

	n := storedNote(t, store, res.Note.ID)
	if n.Title != models.DefaultTitle {
		t.Errorf("title = %q, want %q", n.Title, models.DefaultTitle)
	}
	if n.Folder != folderX || n.Content != "<p>Hello</p>" {
		t.Errorf("stored = %+v", n)
	}
	if len(n.URLs) != 1 || n.URLs[0] != pageX {
		t.Errorf("urls = %v, want [%s]", n.URLs, pageX)
	}
	if f := storedFolders(t, store); f[folderX].Name != folderX {
		t.Errorf("folder entry = %+v", f)
	}
}

func TestSaveExistingDeduplicatesURLs(t *testing.T) {
	store := testutil.TestStore(t)
	clock := testutil.NewClock()
	svc := testutil.TestService(t, store, noteservice.WithClock(clock.Now))
	ctx := context.Background()

	first, _ := svc.Save(ctx, noteservice.SaveRequest{Title: "t", Content: "a", Folder: folderX, URL: pageX})
	id := first.Note.ID

	clock.Advance(time.Second)
	if _, err := svc.Save(ctx, noteservice.SaveRequest{ID: id, Title: "t", Content: "b", Folder: folderX, URL: pageX}); err != nil {
		t.Fatal(err)
	}
	if got := storedNote(t, store, id).URLs; len(got) != 1 {
		t.Fatalf("same url saved twice grew urls: %v", got)
	}

	clock.Advance(time.Second)
	res, err := svc.Save(ctx, noteservice.SaveRequest{ID: id, Title: "t", Content: "c", Folder: folderX, URL: pageY})
	if err != nil {
		t.Fatal(err)
	}
	if res.Created {
		t.Error("existing note reported as created")
	}
	got := storedNote(t, store, id)
	if len(got.URLs) != 2 || got.URLs[0] != pageX || got.URLs[1] != pageY {
		t.Errorf("urls = %v, want [%s %s]", got.URLs, pageX, pageY)
	}
	if got.LastModified != clock.Now().UnixMilli() {
		t.Errorf("lastModified = %d, want %d", got.LastModified, clock.Now().UnixMilli())
	}
}

func TestSaveLastModifiedNeverDecreases(t *testing.T) {
	store := testutil.TestStore(t)
	clock := testutil.NewClock()
	svc := testutil.TestService(t, store, noteservice.WithClock(clock.Now))
	ctx := context.Background()

	first, _ := svc.Save(ctx, noteservice.SaveRequest{Content: "a", Folder: folderX, URL: pageX})
	clock.Advance(-time.Hour)
	second, err := svc.Save(ctx, noteservice.SaveRequest{ID: first.Note.ID, Content: "b", Folder: folderX, URL: pageX})
	if err != nil {
		t.Fatal(err)
	}
	if second.Note.LastModified < first.Note.LastModified {
		t.Errorf("lastModified went backwards: %d < %d", second.Note.LastModified, first.Note.LastModified)
	}
}

func TestSameMillisecondIDsDoNotCollide(t *testing.T) {
	store := testutil.TestStore(t)
	clock := testutil.NewClock()
	svc := testutil.TestService(t, store, noteservice.WithClock(clock.Now))
	ctx := context.Background()

	a, _ := svc.Save(ctx, noteservice.SaveRequest{Content: "a", Folder: folderX, URL: pageX})
	b, _ := svc.Save(ctx, noteservice.SaveRequest{Content: "b", Folder: folderX, URL: pageX})
	if a.Note.ID == b.Note.ID {
		t.Fatalf("duplicate id %q", a.Note.ID)
	}
	if storedNote(t, store, a.Note.ID).Content != "a" {
		t.Error("first note overwritten")
	}
}

func TestSaveRejectsReservedFolder(t *testing.T) {
	svc := testutil.TestService(t, testutil.TestStore(t))
	_, err := svc.Save(context.Background(), noteservice.SaveRequest{Content: "x", Folder: models.AllFolder})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestDeleteReclaimsEmptyFolder(t *testing.T) {
	store := testutil.TestStore(t)
	clock := testutil.NewClock()
	svc := testutil.TestService(t, store, noteservice.WithClock(clock.Now))
	ctx := context.Background()

	a, _ := svc.Save(ctx, noteservice.SaveRequest{Content: "a", Folder: folderX, URL: pageX})
	clock.Advance(time.Millisecond)
	b, _ := svc.Save(ctx, noteservice.SaveRequest{Content: "b", Folder: folderX, URL: pageY})

	res, err := svc.Delete(ctx, a.Note.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if res.FolderRemoved {
		t.Error("folder removed while another note remains")
	}
	if _, ok := storedFolders(t, store)[folderX]; !ok {
		t.Error("folder entry should remain")
	}

	res, err = svc.Delete(ctx, b.Note.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !res.FolderRemoved || res.Folder != folderX {
		t.Errorf("result = %+v, want folder %s removed", res, folderX)
	}
	if _, ok := storedFolders(t, store)[folderX]; ok {
		t.Error("empty folder entry should be reclaimed")
	}
}

func TestDeleteMissingNote(t *testing.T) {
	svc := testutil.TestService(t, testutil.TestStore(t))
	_, err := svc.Delete(context.Background(), "note_404")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMovingLastNoteReclaimsOldFolder(t *testing.T) {
	store := testutil.TestStore(t)
	svc := testutil.TestService(t, store)
	ctx := context.Background()

	a, _ := svc.Save(ctx, noteservice.SaveRequest{Content: "a", Folder: "old", URL: pageX})
	if _, err := svc.Save(ctx, noteservice.SaveRequest{ID: a.Note.ID, Content: "a", Folder: "new", URL: pageX}); err != nil {
		t.Fatal(err)
	}
	f := storedFolders(t, store)
	if _, ok := f["old"]; ok {
		t.Error("old folder should be reclaimed")
	}
	if _, ok := f["new"]; !ok {
		t.Error("new folder should exist")
	}
}

func TestRenameFolderKeepsKey(t *testing.T) {
	store := testutil.TestStore(t)
	svc := testutil.TestService(t, store)
	ctx := context.Background()

	a, _ := svc.Save(ctx, noteservice.SaveRequest{Content: "a", Folder: folderX, URL: pageX})
	if err := svc.RenameFolder(ctx, folderX, "Go docs"); err != nil {
		t.Fatalf("RenameFolder: %v", err)
	}
	if got := storedFolders(t, store)[folderX].Name; got != "Go docs" {
		t.Errorf("name = %q", got)
	}
	if got := storedNote(t, store, a.Note.ID).Folder; got != folderX {
		t.Errorf("note folder changed to %q", got)
	}

	// A later save must not reset the display name.
	if _, err := svc.Save(ctx, noteservice.SaveRequest{ID: a.Note.ID, Content: "b", Folder: folderX, URL: pageX}); err != nil {
		t.Fatal(err)
	}
	if got := storedFolders(t, store)[folderX].Name; got != "Go docs" {
		t.Errorf("name after save = %q", got)
	}
}

func TestRenameFolderValidation(t *testing.T) {
	svc := testutil.TestService(t, testutil.TestStore(t))
	ctx := context.Background()

	if err := svc.RenameFolder(ctx, models.AllFolder, "x"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("rename all: err = %v", err)
	}
	if err := svc.RenameFolder(ctx, "missing", "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("rename missing: err = %v", err)
	}
	_, _ = svc.Save(ctx, noteservice.SaveRequest{Content: "a", Folder: folderX, URL: pageX})
	if err := svc.RenameFolder(ctx, folderX, ""); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("empty name: err = %v", err)
	}
}

func TestDeleteFolderRemovesNotesAndEntry(t *testing.T) {
	store := testutil.TestStore(t)
	clock := testutil.NewClock()
	svc := testutil.TestService(t, store, noteservice.WithClock(clock.Now))
	ctx := context.Background()

	a, _ := svc.Save(ctx, noteservice.SaveRequest{Content: "a", Folder: folderX, URL: pageX})
	clock.Advance(time.Millisecond)
	b, _ := svc.Save(ctx, noteservice.SaveRequest{Content: "b", Folder: folderX, URL: pageY})
	clock.Advance(time.Millisecond)
	other, _ := svc.Save(ctx, noteservice.SaveRequest{Content: "c", Folder: "elsewhere", URL: "https://example.com/"})

	removed, err := svc.DeleteFolder(ctx, folderX)
	if err != nil {
		t.Fatalf("DeleteFolder: %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("removed = %v", removed)
	}
	for _, id := range []string{a.Note.ID, b.Note.ID} {
		if _, err := store.Get(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("%s still stored", id)
		}
	}
	if _, err := store.Get(ctx, other.Note.ID); err != nil {
		t.Errorf("note in other folder removed: %v", err)
	}
	f := storedFolders(t, store)
	if _, ok := f[folderX]; ok {
		t.Error("folder entry should be gone")
	}
	if _, err := svc.DeleteFolder(ctx, models.AllFolder); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("delete all: err = %v", err)
	}
}

func TestListSortedAndPaged(t *testing.T) {
	store := testutil.TestStore(t)
	clock := testutil.NewClock()
	svc := testutil.TestService(t, store, noteservice.WithClock(clock.Now))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		res, _ := svc.Save(ctx, noteservice.SaveRequest{Content: "x", Folder: folderX, URL: pageX})
		ids = append(ids, res.Note.ID)
		clock.Advance(time.Second)
	}
	_, _ = svc.Save(ctx, noteservice.SaveRequest{Content: "x", Folder: "other", URL: "https://example.com/"})

	items, total, err := svc.List(ctx, folderX, 1, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 || len(items) != 2 {
		t.Fatalf("total=%d len=%d", total, len(items))
	}
	if items[0].ID != ids[4] || items[1].ID != ids[3] {
		t.Errorf("order = %s,%s; want newest first", items[0].ID, items[1].ID)
	}
	if items[0].URL != pageX || items[0].Title != models.DefaultTitle {
		t.Errorf("item = %+v", items[0])
	}

	items, _, _ = svc.List(ctx, folderX, 3, 2)
	if len(items) != 1 || items[0].ID != ids[0] {
		t.Errorf("last page = %+v", items)
	}
	items, _, _ = svc.List(ctx, folderX, 9, 2)
	if len(items) != 0 {
		t.Errorf("past-the-end page = %+v", items)
	}

	_, total, _ = svc.List(ctx, models.AllFolder, 1, 0)
	if total != 6 {
		t.Errorf("all total = %d, want 6", total)
	}
}

func TestInitRebuildsMembershipFromStore(t *testing.T) {
	store := testutil.TestStore(t)
	ctx := context.Background()
	first := testutil.TestService(t, store)
	a, _ := first.Save(ctx, noteservice.SaveRequest{Content: "a", Folder: folderX, URL: pageX})

	second := testutil.TestService(t, store)
	if got := second.Index().Members(folderX); len(got) != 1 || got[0] != a.Note.ID {
		t.Errorf("members = %v", got)
	}
	res, err := second.Delete(ctx, a.Note.ID)
	if err != nil || !res.FolderRemoved {
		t.Errorf("delete via rebuilt index: res=%+v err=%v", res, err)
	}
}

func TestMergeSaveReplacesOnlyTitleAndContent(t *testing.T) {
	store := testutil.TestStore(t)
	clock := testutil.NewClock()
	svc := testutil.TestService(t, store, noteservice.WithClock(clock.Now))
	ctx := context.Background()

	a, _ := svc.Save(ctx, noteservice.SaveRequest{Title: "one", Content: "a", Folder: folderX, URL: pageX})
	clock.Advance(time.Second)
	merged, err := svc.MergeSave(ctx, a.Note.ID, "two", "b")
	if err != nil {
		t.Fatalf("MergeSave: %v", err)
	}
	got := storedNote(t, store, a.Note.ID)
	if got.Title != "two" || got.Content != "b" {
		t.Errorf("stored = %+v", got)
	}
	if got.Folder != folderX || len(got.URLs) != 1 {
		t.Errorf("folder/urls changed: %+v", got)
	}
	if merged.LastModified <= a.Note.LastModified {
		t.Error("merge save should advance lastModified")
	}

	if _, err := svc.MergeSave(ctx, "note_404", "x", "y"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing: err = %v", err)
	}
}

func TestStoreFailureIsTagged(t *testing.T) {
	flaky := testutil.NewFlakyStore(testutil.TestStore(t))
	svc := testutil.TestService(t, flaky)
	ctx := context.Background()

	flaky.Fail(true)
	_, err := svc.Save(ctx, noteservice.SaveRequest{Content: "a", Folder: folderX, URL: pageX})
	if !errors.Is(err, apperr.ErrStoreUnavailable) || !errors.Is(err, testutil.ErrInjected) {
		t.Errorf("err = %v, want ErrStoreUnavailable wrapping the cause", err)
	}
	if n := svc.Index().Count(models.AllFolder); n != 0 {
		t.Errorf("index tracked %d notes after failed save", n)
	}
}

func TestRefreshTracksExternalChanges(t *testing.T) {
	store := storage.NewMemory()
	svc := testutil.TestService(t, store)
	ctx := context.Background()

	raw, _ := json.Marshal(models.Note{ID: "note_9", Folder: "ext", LastModified: 1})
	_ = store.SetMany(ctx, map[string][]byte{"note_9": raw})
	if err := svc.Refresh(ctx, "note_9"); err != nil {
		t.Fatal(err)
	}
	if svc.Index().Count("ext") != 1 {
		t.Error("external note not tracked")
	}

	_ = store.RemoveMany(ctx, []string{"note_9"})
	if err := svc.Refresh(ctx, "note_9"); err != nil {
		t.Fatal(err)
	}
	if svc.Index().Count("ext") != 0 {
		t.Error("removed note still tracked")
	}
}

func TestListHugePagingDoesNotOverflow(t *testing.T) {
	store := testutil.TestStore(t)
	svc := testutil.TestService(t, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Save(ctx, noteservice.SaveRequest{Content: "x", Folder: folderX, URL: pageX}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	cases := []struct {
		name           string
		page, pageSize int
		want           int
	}{
		{"huge page", math.MaxInt/50 + 2, 50, 0},
		{"max page", math.MaxInt, 1, 0},
		{"huge page size", 2, math.MaxInt, 0},
		{"huge page size first page", 1, math.MaxInt, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			items, total, err := svc.List(ctx, models.AllFolder, tc.page, tc.pageSize)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if total != 3 || len(items) != tc.want {
				t.Errorf("total=%d len=%d, want 3 and %d", total, len(items), tc.want)
			}
		})
	}
}
