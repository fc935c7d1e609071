package reconcile

import (
	"context"

	"github.com/tektrg/command-bar-extension-sub000/internal/applog"
	"github.com/tektrg/command-bar-extension-sub000/internal/host"
	"github.com/tektrg/command-bar-extension-sub000/internal/panel"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// HandleBookmarkEvent applies one bookmark notification. While a drag is in
// flight the event is dropped; the reload that ends the drag resyncs.
func (e *Engine) HandleBookmarkEvent(ctx context.Context, ev host.BookmarkEvent) {
	if e.store.IsDragging() {
		applog.Info("reconcile.bookmark.dropped", "kind", ev.Kind, "bookmark", ev.ID)
		return
	}
	e.setPhase(Bookmarks, Applying)
	defer e.setPhase(Bookmarks, Idle)

	switch ev.Kind {
	case host.BookmarkCreated:
		e.bookmarkCreated(ctx, ev)
	case host.BookmarkMoved:
		e.bookmarkMoved(ctx, ev)
	case host.BookmarkChanged:
		e.bookmarkChanged(ctx, ev)
	case host.BookmarkRemoved:
		e.bookmarkRemoved(ctx, ev)
	}
}

// incremental reports whether the bookmark section mirrors the tree one to
// one, which is what positional inserts and single-node patches need.
func (e *Engine) incremental() bool {
	return e.store.Query() == "" && e.store.ViewMode() == types.ViewFolder
}

func (e *Engine) bookmarkCreated(ctx context.Context, ev host.BookmarkEvent) {
	node := ev.Node
	if node == nil {
		fetched, err := e.bookmarks.GetBookmark(ctx, ev.ID)
		if err != nil {
			applog.Warn("reconcile.bookmark.created.fetch", "bookmark", ev.ID, "err", err)
			e.reloadBookmarks(ctx)
			return
		}
		node = fetched
	}
	node = node.Clone()
	node.ParentID, node.Index = ev.ParentID, ev.Index

	if !e.lockIdle(Bookmarks) {
		return
	}
	if err := e.store.InsertBookmark(node); err != nil {
		e.mu.Unlock()
		applog.Warn("reconcile.bookmark.created.insert", "bookmark", ev.ID, "err", err)
		e.reloadBookmarks(ctx)
		return
	}
	var linked bool
	node.Walk(func(n *types.BookmarkNode) {
		if e.linkOpenTabLocked(n.ID, n.URL) {
			linked = true
		}
	})
	if !e.incremental() {
		e.renderBookmarksLocked()
		e.mu.Unlock()
	} else {
		e.mu.Unlock()
		e.positionalInsert(ctx, ev.ID, ev.ParentID)
	}
	if linked {
		e.saveRelationships(ctx)
	}
}

// linkOpenTabLocked links a bookmark that has no live tab to an open tab
// showing its url.
func (e *Engine) linkOpenTabLocked(id, url string) bool {
	if url == "" {
		return false
	}
	if cur, ok := e.store.Relationship(id); ok {
		if _, live := e.store.Tab(cur); live {
			return false
		}
	}
	tabs := e.store.TabsByURL(url)
	if len(tabs) == 0 {
		return false
	}
	return e.store.Link(id, tabs[0])
}

func (e *Engine) bookmarkMoved(ctx context.Context, ev host.BookmarkEvent) {
	if !e.lockIdle(Bookmarks) {
		return
	}
	if err := e.store.MoveBookmark(ev.ID, ev.ParentID, ev.Index); err != nil {
		e.mu.Unlock()
		applog.Warn("reconcile.bookmark.moved", "bookmark", ev.ID, "err", err)
		e.reloadBookmarks(ctx)
		return
	}
	if !e.incremental() {
		e.renderBookmarksLocked()
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.positionalInsert(ctx, ev.ID, ev.ParentID)
}

// positionalInsert mounts bookmark id under its parent's panel node before
// the sibling that follows it in the authoritative order. The parent's
// child order is fetched from the bookmark store, which is a suspension
// point: drag state and panel contents are re-read afterwards.
func (e *Engine) positionalInsert(ctx context.Context, id, parentID string) {
	parentPanel := panel.BookmarkID(parentID)
	if e.store.IsRoot(parentID) {
		parentPanel = panel.SectionBookmarks
	}
	if !e.panel.Has(parentPanel) {
		applog.Info("reconcile.bookmark.fallback", "bookmark", id, "reason", "parent not rendered")
		if e.lockIdle(Bookmarks) {
			e.renderBookmarksLocked()
			e.mu.Unlock()
		}
		return
	}

	siblings, err := e.bookmarks.GetChildren(ctx, parentID)
	if err != nil {
		applog.Warn("reconcile.bookmark.siblings", "parent", parentID, "err", err)
		if e.lockIdle(Bookmarks) {
			e.renderBookmarksLocked()
			e.mu.Unlock()
		}
		return
	}

	if !e.lockIdle(Bookmarks) {
		return
	}
	defer e.mu.Unlock()
	if !e.incremental() || !e.panel.Has(parentPanel) {
		e.renderBookmarksLocked()
		return
	}

	node, ok := e.render.BookmarkNode(id)
	if !ok {
		// Removed while the siblings were fetched.
		e.panel.Remove(panel.BookmarkID(id))
		e.changed()
		return
	}
	e.panel.Remove(node.ID)

	before := ""
	seen := false
	for _, s := range siblings {
		if s.ID == id {
			seen = true
			continue
		}
		if seen {
			if pid := panel.BookmarkID(s.ID); e.panel.Has(pid) {
				before = pid
				break
			}
		}
	}
	if !seen {
		e.renderBookmarksLocked()
		return
	}
	if err := e.panel.InsertBefore(parentPanel, node, before); err != nil {
		applog.Error("reconcile.bookmark.insert", err, "bookmark", id)
		e.renderBookmarksLocked()
		return
	}
	e.changed()
}

func (e *Engine) bookmarkChanged(ctx context.Context, ev host.BookmarkEvent) {
	if !e.lockIdle(Bookmarks) {
		return
	}
	changed, err := e.store.UpdateBookmark(ev.ID, ev.Title, ev.URL)
	if err != nil {
		e.mu.Unlock()
		applog.Warn("reconcile.bookmark.changed", "bookmark", ev.ID, "err", err)
		e.reloadBookmarks(ctx)
		return
	}
	if !changed {
		e.mu.Unlock()
		return
	}
	linked := ev.URL != nil && e.linkOpenTabLocked(ev.ID, *ev.URL)
	if e.incremental() {
		e.replaceBookmarkLocked(ev.ID)
		e.changed()
	} else {
		e.renderBookmarksLocked()
	}
	e.mu.Unlock()
	if linked {
		e.saveRelationships(ctx)
	}
}

func (e *Engine) bookmarkRemoved(ctx context.Context, ev host.BookmarkEvent) {
	if !e.lockIdle(Bookmarks) {
		return
	}
	removed := e.store.RemoveBookmark(ev.ID)
	if len(removed) == 0 && ev.Node != nil {
		ev.Node.Walk(func(n *types.BookmarkNode) { removed = append(removed, n.ID) })
	}
	if e.incremental() {
		if e.panel.Remove(panel.BookmarkID(ev.ID)) {
			e.changed()
		}
	} else {
		e.renderBookmarksLocked()
	}
	unlinked := e.store.UnlinkBookmarks(removed...)
	e.mu.Unlock()

	applog.Info("reconcile.bookmark.removed", "bookmark", ev.ID, "subtree", len(removed))
	if unlinked {
		e.saveRelationships(ctx)
	}
}
