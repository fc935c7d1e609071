// Package links manages the url-keyed user collections: dated links and
// custom titles.
package links

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tektrg/command-bar-extension-sub000/internal/analyzer"
	"github.com/tektrg/command-bar-extension-sub000/internal/applog"
	"github.com/tektrg/command-bar-extension-sub000/internal/host"
	"github.com/tektrg/command-bar-extension-sub000/internal/store"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// Persistence is the slice of the prefs gateway links need.
type Persistence interface {
	LoadDatedLinks(ctx context.Context) ([]types.DatedLinkEntry, error)
	SaveDatedLinks(ctx context.Context, entries []types.DatedLinkEntry) ([]types.DatedLinkEntry, error)
	LoadCustomTitles(ctx context.Context) (map[string]string, error)
	SaveCustomTitles(ctx context.Context, titles map[string]string) (map[string]string, error)
}

type Manager struct {
	store     *store.Store
	prefs     Persistence
	bookmarks host.BookmarkStore

	// Fetch returns a suggested title for a url.
	Fetch func(ctx context.Context, url string) (string, error)

	mu sync.Mutex
}

func New(s *store.Store, p Persistence, bookmarks host.BookmarkStore) *Manager {
	return &Manager{store: s, prefs: p, bookmarks: bookmarks, Fetch: FetchTitle}
}

// Load refreshes both collections in the store.
func (m *Manager) Load(ctx context.Context) error {
	dated, err := m.prefs.LoadDatedLinks(ctx)
	if err != nil {
		return err
	}
	titles, err := m.prefs.LoadCustomTitles(ctx)
	if err != nil {
		return err
	}
	m.store.SetDatedLinks(dated)
	m.store.SetCustomTitles(titles)
	return nil
}

// SetDate assigns date to url, replacing any earlier date.
func (m *Manager) SetDate(ctx context.Context, url, title string, date time.Time) error {
	if analyzer.NormalizeURL(url) == "" {
		return fmt.Errorf("set date: empty url")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, err := m.prefs.LoadDatedLinks(ctx)
	if err != nil {
		return err
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	entries = append(entries, types.DatedLinkEntry{URL: url, Title: title, Date: day})
	stored, err := m.prefs.SaveDatedLinks(ctx, entries)
	if err != nil {
		return err
	}
	m.store.SetDatedLinks(stored)
	return nil
}

// ClearDate removes url's date. It reports whether one existed.
func (m *Manager) ClearDate(ctx context.Context, url string) (bool, error) {
	key := analyzer.NormalizeURL(url)
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, err := m.prefs.LoadDatedLinks(ctx)
	if err != nil {
		return false, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if analyzer.NormalizeURL(e.URL) != key {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return false, nil
	}
	stored, err := m.prefs.SaveDatedLinks(ctx, kept)
	if err != nil {
		return false, err
	}
	m.store.SetDatedLinks(stored)
	return true, nil
}

// On returns the links dated on the same calendar day as day.
func (m *Manager) On(day time.Time) []types.DatedLinkEntry {
	var out []types.DatedLinkEntry
	y, mo, d := day.Date()
	for _, e := range m.store.DatedLinks() {
		if ey, em, ed := e.Date.Date(); ey == y && em == mo && ed == d {
			out = append(out, e)
		}
	}
	return out
}

// SetCustomTitle overrides the display title of url. An empty title clears
// the override.
func (m *Manager) SetCustomTitle(ctx context.Context, url, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setTitleLocked(ctx, url, title)
}

func (m *Manager) setTitleLocked(ctx context.Context, url, title string) error {
	titles, err := m.prefs.LoadCustomTitles(ctx)
	if err != nil {
		return err
	}
	key := analyzer.NormalizeURL(url)
	if title == "" {
		delete(titles, key)
	} else {
		titles[key] = title
	}
	stored, err := m.prefs.SaveCustomTitles(ctx, titles)
	if err != nil {
		return err
	}
	m.store.SetCustomTitles(stored)
	return nil
}

// RenameBookmark renames a bookmark in the browser. If its url carries a
// custom title, the custom title follows the rename.
func (m *Manager) RenameBookmark(ctx context.Context, id, title string) error {
	n, err := m.bookmarks.UpdateBookmark(ctx, id, host.BookmarkChange{Title: &title})
	if err != nil {
		return fmt.Errorf("rename bookmark %s: %w", id, err)
	}
	if n.URL == "" {
		return nil
	}
	if _, ok := m.store.CustomTitle(n.URL); !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.setTitleLocked(ctx, n.URL, title); err != nil {
		return fmt.Errorf("rename custom title: %w", err)
	}
	applog.Info("links.rename.cascade", "bookmark", id)
	return nil
}

// SuggestTitle fetches url and returns its readable title.
func (m *Manager) SuggestTitle(ctx context.Context, url string) (string, error) {
	return m.Fetch(ctx, url)
}
