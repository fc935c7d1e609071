package surface

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tektrg/command-bar-extension-sub000/internal/analyzer"
	"github.com/tektrg/command-bar-extension-sub000/internal/applog"
	"github.com/tektrg/command-bar-extension-sub000/internal/drag"
	"github.com/tektrg/command-bar-extension-sub000/internal/host"
	"github.com/tektrg/command-bar-extension-sub000/internal/panel"
	"github.com/tektrg/command-bar-extension-sub000/internal/pinned"
	"github.com/tektrg/command-bar-extension-sub000/internal/prefs"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// fail reports a user-initiated failure and returns it wrapped.
func (s *Surface) fail(notice string, err error) error {
	if errors.Is(err, host.ErrUnsupported) {
		notice += " (read-only profile)"
	}
	s.Notify(notice)
	return fmt.Errorf("%s: %w", notice, err)
}

// OpenBookmark activates the live tab related to a bookmark, or opens the
// bookmark in a new tab and records the relationship.
func (s *Surface) OpenBookmark(ctx context.Context, id string) error {
	bm, ok := s.Store.Bookmark(id)
	if !ok || bm.IsFolder() {
		return s.fail("Bookmark not found", fmt.Errorf("open %s: %w", id, host.ErrNotFound))
	}
	if tabID, ok := s.Store.Relationship(id); ok {
		if _, live := s.Store.Tab(tabID); live {
			return s.ActivateTab(ctx, tabID)
		}
	}
	tab, err := s.host.CreateTab(ctx, host.NewTab{URL: bm.URL, Active: true})
	if err != nil {
		return s.fail("Could not open bookmark", err)
	}
	s.engine.Link(ctx, id, tab.ID)
	return nil
}

// ActivateTab focuses a tab.
func (s *Surface) ActivateTab(ctx context.Context, tabID int) error {
	active := true
	if _, err := s.host.UpdateTab(ctx, tabID, host.TabUpdate{Active: &active}); err != nil {
		if errors.Is(err, host.ErrNotFound) {
			applog.Warn("surface.tab.vanished", "tab", tabID)
			return nil
		}
		return s.fail("Could not switch to tab", err)
	}
	return nil
}

// CloseTab closes a tab. A tab that is already gone is not an error.
func (s *Surface) CloseTab(ctx context.Context, tabID int) error {
	if err := s.host.RemoveTab(ctx, tabID); err != nil {
		if errors.Is(err, host.ErrNotFound) {
			applog.Warn("surface.tab.vanished", "tab", tabID)
			return nil
		}
		return s.fail("Could not close tab", err)
	}
	return nil
}

// SetQuery filters every section. A non-empty query also searches recent
// history.
func (s *Surface) SetQuery(ctx context.Context, q string) {
	var items []types.HistoryItem
	if q != "" {
		var err error
		items, err = s.host.SearchHistory(ctx, q, time.Now().Add(-HistoryWindow), historyLimit)
		if err != nil {
			applog.Error("surface.history.search", err)
			items = nil
		}
	}
	if q != "" {
		// Reordering needs the unfiltered tree.
		s.drag.Cancel()
	}
	s.engine.Apply(func() {
		s.Store.SetQuery(q)
		s.Store.SetHistory(items)
		if s.Store.IsDragging() {
			return
		}
		if err := s.render.All(); err != nil {
			applog.Error("surface.render", err)
		}
	})
}

// SetViewMode switches the bookmark section between folder, active and
// domain views and persists the choice.
func (s *Surface) SetViewMode(ctx context.Context, mode types.BookmarkViewMode) error {
	if !prefs.ValidViewMode(mode) {
		return fmt.Errorf("unknown view mode %q", mode)
	}
	if mode != types.ViewFolder {
		s.drag.Cancel()
	}
	s.engine.Apply(func() {
		s.Store.SetViewMode(mode)
		s.renderBookmarks()
	})
	if err := s.prefs.SaveViewMode(ctx, mode); err != nil {
		applog.Error("surface.viewmode.save", err)
	}
	return nil
}

// SetSortMode changes the tab order and persists the choice.
func (s *Surface) SetSortMode(ctx context.Context, mode types.TabSortMode) error {
	if !prefs.ValidSortMode(mode) {
		return fmt.Errorf("unknown sort mode %q", mode)
	}
	s.engine.Apply(func() {
		s.Store.SetSortMode(mode)
		s.renderTabs()
	})
	if err := s.prefs.SaveSortMode(ctx, mode); err != nil {
		applog.Error("surface.sortmode.save", err)
	}
	return nil
}

// ToggleFolder expands or collapses a folder and persists the expanded set.
func (s *Surface) ToggleFolder(ctx context.Context, id string) (bool, error) {
	if bm, ok := s.Store.Bookmark(id); !ok || !bm.IsFolder() {
		return false, fmt.Errorf("toggle %s: %w", id, host.ErrNotFound)
	}
	var expanded bool
	s.engine.Apply(func() {
		expanded = s.Store.ToggleExpanded(id)
		s.Panel.SetExpanded(panel.BookmarkID(id), expanded)
	})
	if err := s.prefs.SaveExpanded(ctx, s.Store.Expanded()); err != nil {
		applog.Error("surface.expanded.save", err)
	}
	return expanded, nil
}

// PinTab adds a tab to the pinned collection.
func (s *Surface) PinTab(ctx context.Context, tabID int) (pinned.AddResult, error) {
	t, ok := s.Store.Tab(tabID)
	if !ok {
		return pinned.Invalid, s.fail("Tab not found", fmt.Errorf("pin %d: %w", tabID, host.ErrNotFound))
	}
	id := t.ID
	res, err := s.pinned.Add(ctx, t.URL, t.Title, t.Favicon, &id)
	if err != nil {
		return res, s.fail("Could not pin tab", err)
	}
	switch res {
	case pinned.Duplicate:
		s.Notify("Already pinned")
	case pinned.Full:
		s.Notify(fmt.Sprintf("Pinned tabs limit reached (%d)", prefs.MaxPinned))
	case pinned.Invalid:
		s.Notify("This tab cannot be pinned")
	}
	return res, nil
}

// Unpin removes url from the pinned collection and unpins its live tab.
func (s *Surface) Unpin(ctx context.Context, url string) error {
	entry, found := s.pinnedEntry(url)
	removed, err := s.pinned.Remove(ctx, url)
	if err != nil {
		return s.fail("Could not unpin", err)
	}
	if !removed || !found || entry.TabID == nil {
		return nil
	}
	if t, ok := s.Store.Tab(*entry.TabID); ok && t.Pinned {
		off := false
		if _, err := s.host.UpdateTab(ctx, t.ID, host.TabUpdate{Pinned: &off}); err != nil {
			applog.Error("surface.unpin.tab", err, "tab", t.ID)
		}
	}
	return nil
}

// OpenPinned activates the tab of a pinned entry, or opens it pinned.
func (s *Surface) OpenPinned(ctx context.Context, url string) error {
	entry, ok := s.pinnedEntry(url)
	if !ok {
		return s.fail("Not pinned", fmt.Errorf("open pinned %s: %w", url, host.ErrNotFound))
	}
	if entry.TabID != nil {
		if _, live := s.Store.Tab(*entry.TabID); live {
			return s.ActivateTab(ctx, *entry.TabID)
		}
	}
	if ids := s.Store.TabsByURL(entry.URL); len(ids) > 0 {
		return s.ActivateTab(ctx, ids[0])
	}
	if _, err := s.host.CreateTab(ctx, host.NewTab{URL: entry.URL, Active: true, Pinned: true}); err != nil {
		return s.fail("Could not open pinned tab", err)
	}
	s.pinned.Trigger()
	return nil
}

func (s *Surface) pinnedEntry(url string) (types.PinnedTabEntry, bool) {
	key := analyzer.NormalizeURL(url)
	for _, e := range s.Store.Pinned() {
		if analyzer.NormalizeURL(e.URL) == key {
			return e, true
		}
	}
	return types.PinnedTabEntry{}, false
}

// RenameBookmark renames a bookmark or folder.
func (s *Surface) RenameBookmark(ctx context.Context, id, title string) error {
	if err := s.links.RenameBookmark(ctx, id, title); err != nil {
		return s.fail("Could not rename bookmark", err)
	}
	return nil
}

// DeleteBookmark removes a bookmark, or a folder with its content.
func (s *Surface) DeleteBookmark(ctx context.Context, id string) error {
	bm, ok := s.Store.Bookmark(id)
	if !ok {
		return nil
	}
	if bm.ParentID == "" || s.Store.IsRoot(bm.ParentID) {
		return s.fail("Top-level folders cannot be deleted", fmt.Errorf("delete %s: %w", id, drag.ErrBadTarget))
	}
	var err error
	if bm.IsFolder() {
		err = s.host.RemoveBookmarkTree(ctx, id)
	} else {
		err = s.host.RemoveBookmark(ctx, id)
	}
	if err != nil && !errors.Is(err, host.ErrNotFound) {
		return s.fail("Could not delete bookmark", err)
	}
	return nil
}

// BookmarkActiveTab bookmarks the focused tab into parentID, or into the
// "other bookmarks" folder when parentID is empty.
func (s *Surface) BookmarkActiveTab(ctx context.Context, parentID string) error {
	var active *types.TabRecord
	for _, t := range s.Store.Tabs() {
		if t.Active {
			t := t
			active = &t
			break
		}
	}
	if active == nil {
		return s.fail("No active tab", host.ErrNotFound)
	}
	if parentID == "" {
		parentID = host.OtherFolderID
	}
	created, err := s.host.CreateBookmark(ctx, parentID, active.Title, active.URL)
	if err != nil {
		return s.fail("Could not create bookmark", err)
	}
	s.engine.Link(ctx, created.ID, active.ID)
	return nil
}

// DeleteHistory removes url from browser history and the history section.
func (s *Surface) DeleteHistory(ctx context.Context, url string) error {
	if err := s.host.DeleteHistoryURL(ctx, url); err != nil {
		return s.fail("Could not delete history entry", err)
	}
	s.engine.Apply(func() {
		if s.Store.RemoveHistory(url) && !s.Panel.Remove(panel.HistoryID(analyzer.NormalizeURL(url))) {
			if err := s.render.History(); err != nil {
				applog.Error("surface.render.history", err)
			}
		}
	})
	return nil
}

// SetDate assigns a date to url. A zero date clears it.
func (s *Surface) SetDate(ctx context.Context, url, title string, date time.Time) error {
	var err error
	if date.IsZero() {
		_, err = s.links.ClearDate(ctx, url)
	} else {
		err = s.links.SetDate(ctx, url, title, date)
	}
	if err != nil {
		return s.fail("Could not save date", err)
	}
	s.engine.Apply(s.renderDecorated)
	return nil
}

// DatedOn returns the links dated on day.
func (s *Surface) DatedOn(day time.Time) []types.DatedLinkEntry {
	return s.links.On(day)
}

// SetCustomTitle overrides the title shown for url. An empty title clears
// it.
func (s *Surface) SetCustomTitle(ctx context.Context, url, title string) error {
	if err := s.links.SetCustomTitle(ctx, url, title); err != nil {
		return s.fail("Could not save title", err)
	}
	s.engine.Apply(s.renderDecorated)
	return nil
}

// SuggestTitle proposes a custom title for url from its readable content.
func (s *Surface) SuggestTitle(ctx context.Context, url string) (string, error) {
	title, err := s.links.SuggestTitle(ctx, url)
	if err != nil {
		return "", s.fail("No title found", err)
	}
	return title, nil
}

// StartDrag begins reordering a bookmark.
func (s *Surface) StartDrag(id string) error {
	if err := s.drag.Start(id); err != nil {
		if errors.Is(err, drag.ErrUnavailable) {
			s.Notify("Clear the filter and use the folder view to reorder")
		}
		return err
	}
	return nil
}

// Drop completes a drag.
func (s *Surface) Drop(ctx context.Context, t drag.Target) (drag.Outcome, error) {
	return s.drag.Drop(ctx, t)
}

// CancelDrag abandons a drag.
func (s *Surface) CancelDrag() {
	s.drag.Cancel()
}

// Dragging reports whether a drag is in flight.
func (s *Surface) Dragging() bool {
	return s.Store.IsDragging()
}
