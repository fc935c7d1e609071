// Package pinned keeps the persisted pinned-tab collection in step with the
// browser. Every read-modify-write of the collection runs under one Guard;
// inbound triggers are debounced into a single sync pass.
package pinned

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tektrg/command-bar-extension-sub000/internal/analyzer"
	"github.com/tektrg/command-bar-extension-sub000/internal/applog"
	"github.com/tektrg/command-bar-extension-sub000/internal/host"
	"github.com/tektrg/command-bar-extension-sub000/internal/prefs"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

const (
	DebounceWindow = 100 * time.Millisecond
	SyncInterval   = 15 * time.Second
	HandoffDelay   = 10 * time.Millisecond
)

// AddResult reports the outcome of Add. Rejections are results, not errors.
type AddResult int

const (
	Added AddResult = iota
	Duplicate
	Full
	Invalid
)

func (r AddResult) String() string {
	switch r {
	case Added:
		return "added"
	case Duplicate:
		return "duplicate"
	case Full:
		return "full"
	}
	return "invalid"
}

// Persistence is the slice of the prefs gateway the coordinator needs.
type Persistence interface {
	LoadPinned(ctx context.Context) ([]types.PinnedTabEntry, error)
	SavePinned(ctx context.Context, entries []types.PinnedTabEntry) ([]types.PinnedTabEntry, error)
}

// Coordinator serializes pinned-tab writes.
type Coordinator struct {
	tabs     host.TabDirectory
	store    Persistence
	guard    *Guard
	debounce *Debouncer
	runCtx   atomic.Pointer[context.Context]

	// Now stamps PinnedAt.
	Now func() time.Time
	// OnChange receives the collection after every successful save.
	OnChange func([]types.PinnedTabEntry)
}

func New(tabs host.TabDirectory, store Persistence) *Coordinator {
	c := &Coordinator{
		tabs:  tabs,
		store: store,
		guard: NewGuard(HandoffDelay),
		Now:   time.Now,
	}
	c.debounce = NewDebouncer(DebounceWindow, c.debouncedSync)
	return c
}

// Add pins url. A url whose normalized form is already pinned is rejected as
// Duplicate; a full collection is rejected as Full. Neither writes.
func (c *Coordinator) Add(ctx context.Context, url, title, favicon string, tabID *int) (AddResult, error) {
	key := analyzer.NormalizeURL(url)
	if key == "" {
		return Invalid, nil
	}
	result := Added
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		entries, err := c.store.LoadPinned(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if analyzer.NormalizeURL(e.URL) == key {
				result = Duplicate
				return nil
			}
		}
		if len(entries) >= prefs.MaxPinned {
			result = Full
			return nil
		}
		entries = append(entries, types.PinnedTabEntry{
			URL:      key,
			Title:    title,
			Favicon:  favicon,
			PinnedAt: c.Now(),
			TabID:    tabID,
		})
		return c.save(ctx, entries)
	})
	if err != nil {
		return Invalid, fmt.Errorf("add pinned %s: %w", key, err)
	}
	applog.Info("pinned.add", "url", key, "result", result)
	return result, nil
}

// Remove unpins url. It reports whether an entry was removed.
func (c *Coordinator) Remove(ctx context.Context, url string) (bool, error) {
	key := analyzer.NormalizeURL(url)
	removed := false
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		entries, err := c.store.LoadPinned(ctx)
		if err != nil {
			return err
		}
		kept := entries[:0]
		for _, e := range entries {
			if analyzer.NormalizeURL(e.URL) == key {
				removed = true
				continue
			}
			kept = append(kept, e)
		}
		if !removed {
			return nil
		}
		return c.save(ctx, kept)
	})
	if err != nil {
		return false, fmt.Errorf("remove pinned %s: %w", key, err)
	}
	return removed, nil
}

// UpdateURL follows the pinned tab tabID to a new url. If the new url is
// already pinned by another entry, the moved entry is dropped.
func (c *Coordinator) UpdateURL(ctx context.Context, tabID int, url, title string) (bool, error) {
	key := analyzer.NormalizeURL(url)
	changed := false
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		entries, err := c.store.LoadPinned(ctx)
		if err != nil {
			return err
		}
		idx := -1
		for i, e := range entries {
			if e.TabID != nil && *e.TabID == tabID {
				idx = i
				break
			}
		}
		if idx < 0 || entries[idx].URL == key {
			return nil
		}
		for i, e := range entries {
			if i != idx && analyzer.NormalizeURL(e.URL) == key {
				entries = append(entries[:idx], entries[idx+1:]...)
				changed = true
				return c.save(ctx, entries)
			}
		}
		entries[idx].URL = key
		if title != "" {
			entries[idx].Title = title
		}
		changed = true
		return c.save(ctx, entries)
	})
	if err != nil {
		return false, fmt.Errorf("update pinned tab %d: %w", tabID, err)
	}
	return changed, nil
}

// SyncNow adds host-pinned tabs that are not tracked yet, up to capacity,
// and refreshes each entry's transient tab id. Entries are never removed
// here: a closed tab keeps its entry.
func (c *Coordinator) SyncNow(ctx context.Context) (added int, err error) {
	err = c.guard.Do(ctx, func(ctx context.Context) error {
		tabs, err := c.tabs.QueryTabs(ctx, host.TabQuery{})
		if err != nil {
			return fmt.Errorf("query tabs: %w", err)
		}
		entries, err := c.store.LoadPinned(ctx)
		if err != nil {
			return err
		}

		tracked := make(map[string]bool, len(entries))
		for _, e := range entries {
			tracked[analyzer.NormalizeURL(e.URL)] = true
		}
		next := append([]types.PinnedTabEntry(nil), entries...)
		for _, t := range tabs {
			if !t.Pinned {
				continue
			}
			key := analyzer.NormalizeURL(t.URL)
			if key == "" || tracked[key] {
				continue
			}
			if len(next) >= prefs.MaxPinned {
				break
			}
			tracked[key] = true
			next = append(next, types.PinnedTabEntry{URL: key, Title: t.Title, Favicon: t.Favicon, PinnedAt: c.Now()})
			added++
		}

		for i := range next {
			next[i].TabID = matchTab(tabs, next[i].URL)
		}
		if added == 0 && sameEntries(entries, next) {
			return nil
		}
		return c.save(ctx, next)
	})
	if err != nil {
		return 0, fmt.Errorf("sync pinned: %w", err)
	}
	if added > 0 {
		applog.Info("pinned.sync", "added", added)
	}
	return added, nil
}

// Entries returns the persisted collection.
func (c *Coordinator) Entries(ctx context.Context) ([]types.PinnedTabEntry, error) {
	return c.store.LoadPinned(ctx)
}

// Trigger requests a debounced SyncNow.
func (c *Coordinator) Trigger() {
	c.debounce.Trigger()
}

// HandleUnpinned applies an explicit unpin from the browser.
func (c *Coordinator) HandleUnpinned(ctx context.Context, url string) {
	if _, err := c.Remove(ctx, url); err != nil {
		applog.Error("pinned.unpinned", err, "url", url)
	}
}

// URLChanged applies a navigation of a pinned tab.
func (c *Coordinator) URLChanged(ctx context.Context, tabID int, url, title string) {
	if _, err := c.UpdateURL(ctx, tabID, url, title); err != nil {
		applog.Error("pinned.url", err, "tab", tabID)
	}
}

// Run triggers a sync every SyncInterval until ctx is cancelled. Debounced
// syncs started by Trigger use ctx as well.
func (c *Coordinator) Run(ctx context.Context) {
	c.runCtx.Store(&ctx)
	ticker := time.NewTicker(SyncInterval)
	defer ticker.Stop()
	defer c.debounce.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Trigger()
		}
	}
}

func (c *Coordinator) debouncedSync() {
	ctx := context.Background()
	if p := c.runCtx.Load(); p != nil {
		ctx = *p
	}
	if _, err := c.SyncNow(ctx); err != nil {
		applog.Error("pinned.sync", err)
	}
}

func (c *Coordinator) save(ctx context.Context, entries []types.PinnedTabEntry) error {
	stored, err := c.store.SavePinned(ctx, entries)
	if err != nil {
		return err
	}
	if c.OnChange != nil {
		c.OnChange(stored)
	}
	return nil
}

func matchTab(tabs []types.TabRecord, key string) *int {
	var found *int
	for _, t := range tabs {
		if analyzer.NormalizeURL(t.URL) != key {
			continue
		}
		id := t.ID
		if t.Pinned {
			return &id
		}
		if found == nil {
			found = &id
		}
	}
	return found
}

func sameEntries(a, b []types.PinnedTabEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].URL != b[i].URL || a[i].Title != b[i].Title {
			return false
		}
		if (a[i].TabID == nil) != (b[i].TabID == nil) {
			return false
		}
		if a[i].TabID != nil && *a[i].TabID != *b[i].TabID {
			return false
		}
	}
	return true
}
