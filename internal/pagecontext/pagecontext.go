// Package pagecontext maps the page a user is viewing to the folder its notes
// belong to.
package pagecontext

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// ErrNoPage is returned when no page URL is known yet.
var ErrNoPage = errors.New("pagecontext: no active page")

// Resolver reports the current page and the folder key derived from it.
type Resolver interface {
	CurrentURL(ctx context.Context) (string, error)
	CurrentFolderKey(ctx context.Context) (string, error)
}

// FolderKey derives a folder key from a page URL.
//
// Class Central classroom pages group by course (ClassCentral_<course>).
// Every other page groups by scheme, host and first path segment.
func FolderKey(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("pagecontext: parse %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("pagecontext: not an absolute url: %q", raw)
	}
	parts := strings.Split(u.Path, "/")
	first := ""
	if len(parts) > 1 {
		first = parts[1]
	}
	if u.Hostname() == "www.classcentral.com" && first == "classroom" && len(parts) > 2 {
		return "ClassCentral_" + parts[2], nil
	}
	key := u.Scheme + "://" + u.Hostname()
	if first != "" {
		key += "/" + first
	}
	return key, nil
}

// Tab is a Resolver backed by a settable active-tab URL.
type Tab struct {
	mu  sync.RWMutex
	url string
}

// NewTab returns a Tab pointing at rawURL (may be empty).
func NewTab(rawURL string) *Tab {
	return &Tab{url: rawURL}
}

// Navigate changes the active page.
func (t *Tab) Navigate(rawURL string) {
	t.mu.Lock()
	t.url = rawURL
	t.mu.Unlock()
}

// CurrentURL returns the active page URL.
func (t *Tab) CurrentURL(_ context.Context) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.url == "" {
		return "", ErrNoPage
	}
	return t.url, nil
}

// CurrentFolderKey returns FolderKey of the active page URL.
func (t *Tab) CurrentFolderKey(ctx context.Context) (string, error) {
	u, err := t.CurrentURL(ctx)
	if err != nil {
		return "", err
	}
	return FolderKey(u)
}
