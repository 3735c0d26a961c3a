package background_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/pagenote/internal/background"
	"github.com/starford/pagenote/internal/models"
	"github.com/starford/pagenote/internal/noteservice"
	"github.com/starford/pagenote/internal/storage"
	"github.com/starford/pagenote/internal/testutil"
)

type published struct {
	mu  sync.Mutex
	ids []string
}

func (p *published) PublishNoteEvent(kind, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, kind+":"+id)
}

func (p *published) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

func seed(t *testing.T, svc *noteservice.Service) models.Note {
	t.Helper()
	res, err := svc.Save(context.Background(), noteservice.SaveRequest{
		Title:   "Before",
		Content: "old",
		Folder:  "https://example.com/docs",
		URL:     "https://example.com/docs/a",
	})
	require.NoError(t, err)
	return res.Note
}

func TestWorkerMergesTitleAndContent(t *testing.T) {
	svc := testutil.TestService(t, storage.NewMemory())
	note := seed(t, svc)
	pub := &published{}
	w := background.NewWorker(svc, 4, testutil.Logger(), pub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.True(t, w.Notify(models.Draft{NoteID: note.ID, Title: "After", Content: "new"}))
	require.Eventually(t, func() bool {
		saved, _ := w.Stats()
		return saved == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	got, err := svc.Get(context.Background(), note.ID)
	require.NoError(t, err)
	assert.Equal(t, "After", got.Title)
	assert.Equal(t, "new", got.Content)
	assert.Equal(t, note.Folder, got.Folder)
	assert.Equal(t, note.URLs, got.URLs)
	assert.Equal(t, []string{"saved:" + note.ID}, pub.all())
}

func TestWorkerSkipsMissingNote(t *testing.T) {
	svc := testutil.TestService(t, storage.NewMemory())
	w := background.NewWorker(svc, 4, testutil.Logger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.True(t, w.Notify(models.Draft{NoteID: "note_1", Title: "x"}))
	require.NoError(t, w.Run(ctx))

	saved, dropped := w.Stats()
	assert.Zero(t, saved)
	assert.Zero(t, dropped)
	_, err := svc.Get(context.Background(), "note_1")
	assert.Error(t, err)
}

func TestWorkerDropsWhenQueueFull(t *testing.T) {
	svc := testutil.TestService(t, storage.NewMemory())
	note := seed(t, svc)
	w := background.NewWorker(svc, 1, testutil.Logger(), nil)

	require.True(t, w.Notify(models.Draft{NoteID: note.ID, Title: "one"}))
	assert.False(t, w.Notify(models.Draft{NoteID: note.ID, Title: "two"}))

	_, dropped := w.Stats()
	assert.EqualValues(t, 1, dropped)
}

func TestWorkerFlushesQueueOnShutdown(t *testing.T) {
	svc := testutil.TestService(t, storage.NewMemory())
	note := seed(t, svc)
	w := background.NewWorker(svc, 4, testutil.Logger(), nil)

	require.True(t, w.Notify(models.Draft{NoteID: note.ID, Title: "Flushed", Content: "late"}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))

	got, err := svc.Get(context.Background(), note.ID)
	require.NoError(t, err)
	assert.Equal(t, "Flushed", got.Title)
}
