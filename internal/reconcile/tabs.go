package reconcile

import (
	"context"

	"github.com/tektrg/command-bar-extension-sub000/internal/applog"
	"github.com/tektrg/command-bar-extension-sub000/internal/host"
	"github.com/tektrg/command-bar-extension-sub000/internal/panel"
	"github.com/tektrg/command-bar-extension-sub000/internal/store"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// HandleTabEvent applies one tab notification. While a drag is in flight
// the event is dropped.
func (e *Engine) HandleTabEvent(ctx context.Context, ev host.TabEvent) {
	if e.store.IsDragging() {
		applog.Info("reconcile.tab.dropped", "kind", ev.Kind, "tab", ev.TabID)
		return
	}
	e.setPhase(Tabs, Applying)
	defer e.setPhase(Tabs, Idle)

	switch ev.Kind {
	case host.TabCreated:
		e.tabCreated(ctx, ev)
	case host.TabRemoved:
		e.tabRemoved(ctx, ev)
	case host.TabUpdated:
		e.tabUpdated(ctx, ev)
	case host.TabActivated:
		e.tabActivated(ctx, ev)
	case host.TabMoved:
		e.tabMoved(ev)
	}
}

func (e *Engine) tabCreated(ctx context.Context, ev host.TabEvent) {
	if ev.Tab == nil {
		e.reloadTabs(ctx)
		return
	}
	if !e.lockIdle(Tabs) {
		return
	}
	_, tracked := e.store.Tab(ev.Tab.ID)
	cat := e.store.AddTab(*ev.Tab)
	if tracked {
		e.panel.Remove(panel.TabID(ev.Tab.ID))
	}
	e.insertTabLocked(*ev.Tab, cat)
	linked := e.autoLinkLocked(*ev.Tab)
	e.mu.Unlock()

	if len(linked) > 0 {
		e.saveRelationships(ctx)
	}
	if e.pins != nil {
		e.pins.Trigger()
	}
}

// tabRemoved unlinks the tab even when it was never mirrored, for example
// because its create event arrived during a drag, and prunes any other
// relationship left pointing at a tab the index does not hold.
func (e *Engine) tabRemoved(ctx context.Context, ev host.TabEvent) {
	if !e.lockIdle(Tabs) {
		return
	}
	removed, tracked := e.store.RemoveTab(ev.TabID)
	if tracked && e.panel.Remove(panel.TabID(ev.TabID)) {
		e.changed()
	}
	unlinked := e.store.UnlinkTab(ev.TabID)
	if stale := e.store.StaleRelationships(); len(stale) > 0 {
		e.store.UnlinkBookmarks(stale...)
		unlinked = append(unlinked, stale...)
	}
	e.refreshBookmarkNodesLocked(unlinked)
	e.mu.Unlock()

	applog.Info("reconcile.tab.removed", "tab", ev.TabID, "tracked", tracked, "url", removed.URL, "unlinked", len(unlinked))
	if len(unlinked) > 0 {
		e.saveRelationships(ctx)
	}
	if removed.Pinned && e.pins != nil {
		e.pins.Trigger()
	}
}

func (e *Engine) tabUpdated(ctx context.Context, ev host.TabEvent) {
	if ev.Tab == nil {
		e.reloadTabs(ctx)
		return
	}
	if !e.lockIdle(Tabs) {
		return
	}
	result := e.store.PatchTab(*ev.Tab)
	if result == store.Patched {
		e.patchTabsLocked(ev.TabID)
	}
	e.mu.Unlock()
	if result == store.Missing || result == store.Crossed {
		applog.Info("reconcile.tab.reload", "tab", ev.TabID, "reason", result)
		e.reloadTabs(ctx)
	}

	var linked []string
	if ev.Change != nil && ev.Change.URL != nil && e.lockIdle(Tabs) {
		linked = e.autoLinkLocked(*ev.Tab)
		e.mu.Unlock()
	}
	if len(linked) > 0 {
		e.saveRelationships(ctx)
	}

	if e.pins == nil || ev.Change == nil {
		return
	}
	if ev.Change.Pinned != nil {
		if *ev.Change.Pinned {
			e.pins.Trigger()
		} else {
			e.pins.HandleUnpinned(ctx, ev.Tab.URL)
		}
	}
	if ev.Change.URL != nil && ev.Tab.Pinned {
		e.pins.URLChanged(ctx, ev.TabID, ev.Tab.URL, ev.Tab.Title)
	}
}

func (e *Engine) tabActivated(ctx context.Context, ev host.TabEvent) {
	if !e.lockIdle(Tabs) {
		return
	}
	if _, ok := e.store.Tab(ev.TabID); !ok {
		e.mu.Unlock()
		e.reloadTabs(ctx)
		return
	}
	changed, crossed := e.store.ActivateTab(ev.TabID, ev.WindowID)
	if crossed {
		e.mu.Unlock()
		e.reloadTabs(ctx)
		return
	}
	e.patchTabsLocked(changed...)
	e.mu.Unlock()
}

func (e *Engine) tabMoved(ev host.TabEvent) {
	if !e.lockIdle(Tabs) {
		return
	}
	defer e.mu.Unlock()
	if e.store.MoveTab(ev.TabID, ev.FromIndex, ev.ToIndex) && e.store.SortMode() == types.SortByPosition {
		e.renderTabsLocked()
	}
}

// patchTabsLocked replaces the panel nodes of the given tabs. When the
// visible order may depend on the changed fields the sections are
// re-rendered instead.
func (e *Engine) patchTabsLocked(ids ...int) {
	if len(ids) == 0 {
		return
	}
	if e.store.Query() != "" || e.store.SortMode() != types.SortByPosition {
		e.renderTabsLocked()
		return
	}
	for _, id := range ids {
		t, ok := e.store.Tab(id)
		if !ok {
			continue
		}
		pid := panel.TabID(id)
		if !e.panel.Has(pid) {
			e.renderTabsLocked()
			return
		}
		if err := e.panel.Replace(pid, e.render.TabNode(t)); err != nil {
			applog.Error("reconcile.tab.patch", err, "tab", id)
		}
	}
	e.changed()
}

// insertTabLocked mounts a new tab at its visible position.
func (e *Engine) insertTabLocked(t types.TabRecord, cat store.Category) {
	section := panel.SectionActive
	list := e.store.ActiveTabs()
	if cat == store.Inactive {
		section = panel.SectionInactive
		list = e.store.InactiveTabs()
	}
	visible := e.render.VisibleTabs(list)
	pos := -1
	for i, v := range visible {
		if v.ID == t.ID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return
	}
	before := ""
	for _, v := range visible[pos+1:] {
		if id := panel.TabID(v.ID); e.panel.Has(id) {
			before = id
			break
		}
	}
	if err := e.panel.InsertBefore(section, e.render.TabNode(t), before); err != nil {
		applog.Error("reconcile.tab.insert", err, "tab", t.ID)
		e.renderTabsLocked()
		return
	}
	e.changed()
}

// autoLinkLocked links bookmarks with t's url that have no live tab yet.
// Bookmarks already linked to t are refreshed so they pick up its state.
func (e *Engine) autoLinkLocked(t types.TabRecord) []string {
	var linked, refresh []string
	for _, bm := range e.store.BookmarksByURL(t.URL) {
		if cur, ok := e.store.Relationship(bm); ok {
			if cur == t.ID {
				refresh = append(refresh, bm)
				continue
			}
			if _, live := e.store.Tab(cur); live {
				continue
			}
		}
		if e.store.Link(bm, t.ID) {
			linked = append(linked, bm)
		}
	}
	e.refreshBookmarkNodesLocked(append(refresh, linked...))
	return linked
}
