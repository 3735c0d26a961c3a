package pagecontext

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFolderKey(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"host and first segment", "https://go.dev/doc/effective_go", "https://go.dev/doc"},
		{"root path", "https://example.com/", "https://example.com"},
		{"no path", "https://example.com", "https://example.com"},
		{"query ignored", "http://news.ycombinator.com/item?id=1", "http://news.ycombinator.com/item"},
		{"port dropped", "http://localhost:8080/app/x", "http://localhost/app"},
		{"class central course", "https://www.classcentral.com/classroom/intro-to-go-123/lesson/4", "ClassCentral_intro-to-go-123"},
		{"class central other", "https://www.classcentral.com/course/foo", "https://www.classcentral.com/course"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FolderKey(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFolderKey_Invalid(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative/path", "://bad"} {
		_, err := FolderKey(raw)
		assert.Error(t, err, "url %q", raw)
	}
}

func TestTab(t *testing.T) {
	ctx := context.Background()
	tab := NewTab("")

	_, err := tab.CurrentURL(ctx)
	assert.True(t, errors.Is(err, ErrNoPage))
	_, err = tab.CurrentFolderKey(ctx)
	assert.True(t, errors.Is(err, ErrNoPage))

	tab.Navigate("https://go.dev/blog/intro")
	u, err := tab.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://go.dev/blog/intro", u)

	key, err := tab.CurrentFolderKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://go.dev/blog", key)
}
