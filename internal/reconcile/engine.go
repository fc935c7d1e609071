// Package reconcile keeps a surface's store and panel in step with the
// browser. Each notification is applied as the smallest update that keeps
// both consistent: a single-node patch where possible, a section re-render
// or a reload where not.
package reconcile

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tektrg/command-bar-extension-sub000/internal/applog"
	"github.com/tektrg/command-bar-extension-sub000/internal/host"
	"github.com/tektrg/command-bar-extension-sub000/internal/panel"
	"github.com/tektrg/command-bar-extension-sub000/internal/store"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// Collection names an independent event stream.
type Collection int

const (
	Tabs Collection = iota
	Bookmarks
)

func (c Collection) String() string {
	if c == Bookmarks {
		return "bookmarks"
	}
	return "tabs"
}

// Phase is the state of one collection's handler.
type Phase int32

const (
	Idle Phase = iota
	Applying
	Reloading
)

func (p Phase) String() string {
	switch p {
	case Applying:
		return "applying"
	case Reloading:
		return "reloading"
	}
	return "idle"
}

// RelationshipSaver persists the relationship map.
type RelationshipSaver interface {
	SaveRelationships(ctx context.Context, rel types.Relationships) error
}

// PinHooks receives the tab events that concern pinned tabs.
type PinHooks interface {
	// Trigger requests a debounced pinned-tab sync.
	Trigger()
	// HandleUnpinned removes the entry for url after an explicit unpin.
	HandleUnpinned(ctx context.Context, url string)
	// URLChanged follows a pinned tab that navigated.
	URLChanged(ctx context.Context, tabID int, url, title string)
}

// Engine applies notifications. Handlers of one collection run in receipt
// order; the two collections are independent.
type Engine struct {
	store     *store.Store
	panel     *panel.Panel
	render    *Renderer
	bookmarks host.BookmarkStore
	rel       RelationshipSaver
	pins      PinHooks

	// OnChange is called after the panel was patched or re-rendered.
	OnChange func()

	// mu serializes the synchronous stretches of all handlers. It is never
	// held across a host or storage call.
	mu     sync.Mutex
	phases [2]atomic.Int32
}

// New wires an engine. rel and pins may be nil.
func New(s *store.Store, p *panel.Panel, r *Renderer, bookmarks host.BookmarkStore, rel RelationshipSaver, pins PinHooks) *Engine {
	return &Engine{store: s, panel: p, render: r, bookmarks: bookmarks, rel: rel, pins: pins}
}

// Phase reports what the collection's handler is doing.
func (e *Engine) Phase(c Collection) Phase {
	return Phase(e.phases[c].Load())
}

func (e *Engine) setPhase(c Collection, p Phase) {
	e.phases[c].Store(int32(p))
}

// Run consumes src until ctx is cancelled or both streams close.
func (e *Engine) Run(ctx context.Context, src host.EventSource) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-src.TabEvents():
				if !ok {
					return
				}
				e.HandleTabEvent(ctx, ev)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-src.BookmarkEvents():
				if !ok {
					return
				}
				e.HandleBookmarkEvent(ctx, ev)
			}
		}
	}()
	wg.Wait()
}

// Apply runs fn in the same critical section as the event handlers and
// reports a change afterwards. fn must not call the host.
func (e *Engine) Apply(fn func()) {
	e.mu.Lock()
	fn()
	e.mu.Unlock()
	e.changed()
}

// Read runs fn under the engine lock without signalling a change.
func (e *Engine) Read(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// Link records that bookmarkID is open in tabID for a user action outside
// the event stream, re-renders the bookmark and persists the map.
func (e *Engine) Link(ctx context.Context, bookmarkID string, tabID int) {
	e.mu.Lock()
	linked := e.store.Link(bookmarkID, tabID)
	if linked && !e.store.IsDragging() {
		e.refreshBookmarkNodesLocked([]string{bookmarkID})
	}
	e.mu.Unlock()
	if linked {
		e.saveRelationships(ctx)
	}
}

func (e *Engine) changed() {
	if e.OnChange != nil {
		e.OnChange()
	}
}

// lockIdle takes the engine lock unless a drag is in flight, and reports
// whether it did. Handlers call it before every mutation: a drag may have
// started while they were suspended in a host call.
func (e *Engine) lockIdle(c Collection) bool {
	e.mu.Lock()
	if e.store.IsDragging() {
		e.mu.Unlock()
		applog.Info("reconcile.suspended", "collection", c)
		return false
	}
	return true
}

// reloadTabs refetches the tab list and re-renders everything that shows
// tabs.
func (e *Engine) reloadTabs(ctx context.Context) {
	e.setPhase(Tabs, Reloading)
	tabs, err := e.store.FetchTabs(ctx)
	if err != nil {
		applog.Error("reconcile.tabs.reload", err)
		return
	}
	if !e.lockIdle(Tabs) {
		return
	}
	e.store.SetTabs(tabs)
	e.renderTabsLocked()
	e.mu.Unlock()
}

func (e *Engine) renderTabsLocked() {
	if err := e.render.Tabs(); err != nil {
		applog.Error("reconcile.render.tabs", err)
	}
	if e.store.ViewMode() == types.ViewActive {
		e.renderBookmarksLocked()
	}
	e.changed()
}

func (e *Engine) renderBookmarksLocked() {
	if err := e.render.Bookmarks(); err != nil {
		applog.Error("reconcile.render.bookmarks", err)
	}
	e.changed()
}

// reloadBookmarks refetches the tree and re-renders the bookmark section.
func (e *Engine) reloadBookmarks(ctx context.Context) {
	e.setPhase(Bookmarks, Reloading)
	roots, err := e.store.FetchTree(ctx)
	if err != nil {
		applog.Error("reconcile.bookmarks.reload", err)
		return
	}
	if !e.lockIdle(Bookmarks) {
		return
	}
	e.store.SetTree(roots)
	e.renderBookmarksLocked()
	e.mu.Unlock()
}

// refreshBookmarkNodes re-renders the given bookmarks in place after their
// relationship changed.
func (e *Engine) refreshBookmarkNodesLocked(ids []string) {
	if len(ids) == 0 {
		return
	}
	if e.store.ViewMode() == types.ViewActive {
		e.renderBookmarksLocked()
		return
	}
	for _, id := range ids {
		e.replaceBookmarkLocked(id)
	}
	e.changed()
}

func (e *Engine) replaceBookmarkLocked(id string) {
	pid := panel.BookmarkID(id)
	if !e.panel.Has(pid) {
		return
	}
	node, ok := e.render.BookmarkNode(id)
	if !ok {
		return
	}
	if err := e.panel.Replace(pid, node); err != nil {
		applog.Error("reconcile.replace", err, "bookmark", id)
	}
}

func (e *Engine) saveRelationships(ctx context.Context) {
	if e.rel == nil {
		return
	}
	if err := e.rel.SaveRelationships(ctx, e.store.Relationships()); err != nil {
		applog.Error("reconcile.relationships.save", err)
	}
}
