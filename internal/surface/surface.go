// Package surface is the composition root of one panel instance (popup,
// sidepanel or overlay). It owns the store and panel, wires the engine,
// the pinned-tab coordinator, links and drag handling to one host, and
// exposes the user actions the TUI and the HTTP API call.
package surface

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tektrg/command-bar-extension-sub000/internal/applog"
	"github.com/tektrg/command-bar-extension-sub000/internal/bus"
	"github.com/tektrg/command-bar-extension-sub000/internal/drag"
	"github.com/tektrg/command-bar-extension-sub000/internal/host"
	"github.com/tektrg/command-bar-extension-sub000/internal/links"
	"github.com/tektrg/command-bar-extension-sub000/internal/panel"
	"github.com/tektrg/command-bar-extension-sub000/internal/pinned"
	"github.com/tektrg/command-bar-extension-sub000/internal/prefs"
	"github.com/tektrg/command-bar-extension-sub000/internal/reconcile"
	"github.com/tektrg/command-bar-extension-sub000/internal/storage"
	"github.com/tektrg/command-bar-extension-sub000/internal/store"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// Kind names the surface type.
type Kind string

const (
	Popup     Kind = "popup"
	Sidepanel Kind = "sidepanel"
	Overlay   Kind = "overlay"
)

// ParseKind validates a surface name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case Popup, Sidepanel, Overlay:
		return k, nil
	}
	return "", fmt.Errorf("unknown surface %q (want popup, sidepanel or overlay)", s)
}

// HistoryWindow is how far back a query searches history.
const HistoryWindow = 7 * 24 * time.Hour

// historyLimit caps the rows a query pulls from history.
const historyLimit = 50

// Notifier shows a transient message to the user.
type Notifier func(msg string)

type Surface struct {
	ID   string
	Kind Kind

	Store *store.Store
	Panel *panel.Panel

	host   host.Host
	kv     *storage.KV
	prefs  *prefs.Gateway
	bus    *bus.Bus
	render *reconcile.Renderer
	engine *reconcile.Engine
	pinned *pinned.Coordinator
	links  *links.Manager
	drag   *drag.Protocol

	notify  Notifier
	changed chan struct{}
}

// New wires a surface over h and the shared state database db. b may be
// nil for a surface that does not share state with others in-process.
func New(kind Kind, h host.Host, db *sql.DB, b *bus.Bus) *Surface {
	id := uuid.NewString()
	kv := storage.NewKV(db, string(kind)+":"+id)
	s := &Surface{
		ID:      id,
		Kind:    kind,
		Store:   store.New(h, h),
		Panel:   panel.New(),
		host:    h,
		kv:      kv,
		prefs:   prefs.New(kv, b),
		bus:     b,
		changed: make(chan struct{}, 1),
	}
	s.render = reconcile.NewRenderer(s.Store, s.Panel)
	s.pinned = pinned.New(h, s.prefs)
	s.pinned.OnChange = s.pinnedChanged
	s.engine = reconcile.New(s.Store, s.Panel, s.render, h, s.prefs, s.pinned)
	s.engine.OnChange = s.signal
	s.links = links.New(s.Store, s.prefs, h)
	s.drag = drag.New(s.Store, s.Panel, h, s.render, s.engine)
	s.drag.Notify = s.Notify
	s.drag.OnReattach = s.signal
	return s
}

// SetNotifier routes user-visible messages to fn.
func (s *Surface) SetNotifier(fn Notifier) {
	s.notify = fn
}

// Notify shows msg to the user and logs it.
func (s *Surface) Notify(msg string) {
	applog.Warn("surface.notice", "surface", s.ID, "msg", msg)
	if s.notify != nil {
		s.notify(msg)
	}
}

// Changed delivers a value after the panel changed. Bursts are coalesced.
func (s *Surface) Changed() <-chan struct{} {
	return s.changed
}

func (s *Surface) signal() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// KV returns the surface's view of the state database.
func (s *Surface) KV() *storage.KV {
	return s.kv
}

// Prefs returns the persisted-state gateway the surface writes through.
func (s *Surface) Prefs() *prefs.Gateway {
	return s.prefs
}

// Pinned returns the pinned-tab coordinator.
func (s *Surface) Pinned() *pinned.Coordinator {
	return s.pinned
}

// View runs fn with the panel while no event handler is mutating it.
// fn must not keep references to nodes after it returns.
func (s *Surface) View(fn func(p *panel.Panel)) {
	s.engine.Read(func() { fn(s.Panel) })
}

// Boot loads the persisted slices, mirrors the browser, prunes stale
// relationships and renders every section.
func (s *Surface) Boot(ctx context.Context) error {
	log := applog.With("surface", s.ID, "kind", s.Kind)

	sortMode, err := s.prefs.LoadSortMode(ctx)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	viewMode, err := s.prefs.LoadViewMode(ctx)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	expanded, err := s.prefs.LoadExpanded(ctx)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	rel, err := s.prefs.LoadRelationships(ctx)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	pins, err := s.prefs.LoadPinned(ctx)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	if err := s.links.Load(ctx); err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	s.Store.SetSortMode(sortMode)
	s.Store.SetViewMode(viewMode)
	s.Store.SetExpanded(expanded)
	s.Store.SetRelationships(rel)
	s.Store.SetPinned(pins)

	if err := s.Store.FullReload(ctx); err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	if n := s.Store.PruneRelationships(); n > 0 {
		log.Info("surface.relationships.pruned", "count", n)
		if err := s.prefs.SaveRelationships(ctx, s.Store.Relationships()); err != nil {
			log.Error("surface.relationships.save", err)
		}
	}

	var renderErr error
	s.engine.Apply(func() { renderErr = s.render.All() })
	if renderErr != nil {
		return fmt.Errorf("boot: %w", renderErr)
	}
	log.Info("surface.boot", "tabs", len(s.Store.Tabs()), "pinned", len(pins))
	return nil
}

// Run applies browser notifications, runs the pinned-tab sync loop and
// follows changes made by other surfaces until ctx is cancelled.
func (s *Surface) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.engine.Run(ctx, s.host)
		return nil
	})
	g.Go(func() error {
		s.pinned.Run(ctx)
		return nil
	})
	if s.bus != nil {
		msgs, unsubscribe := s.bus.Subscribe()
		g.Go(func() error {
			defer unsubscribe()
			for {
				select {
				case <-ctx.Done():
					return nil
				case msg, ok := <-msgs:
					if !ok {
						return nil
					}
					s.HandleMessage(ctx, msg)
				}
			}
		})
	}
	changes, unsubscribe := s.kv.Subscribe()
	g.Go(func() error {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return nil
			case c, ok := <-changes:
				if !ok {
					return nil
				}
				if !c.External {
					continue
				}
				for _, name := range c.Names {
					s.ReloadSlice(ctx, name)
				}
			}
		}
	})
	s.pinned.Trigger()
	return g.Wait()
}

// HandleMessage applies a cross-surface notification. Messages this surface
// sent itself are ignored.
func (s *Surface) HandleMessage(ctx context.Context, msg bus.Message) {
	if msg.Origin == s.kv.Writer() {
		return
	}
	if msg.Topic == bus.TopicSliceChanged {
		s.ReloadSlice(ctx, msg.Slice)
	}
}

// ReloadSlice re-reads one persisted slice and re-renders the sections that
// show it.
func (s *Surface) ReloadSlice(ctx context.Context, name string) {
	log := applog.With("surface", s.ID, "slice", name)
	var err error
	switch name {
	case prefs.SliceExpandedFolders:
		var expanded map[string]bool
		if expanded, err = s.prefs.LoadExpanded(ctx); err == nil {
			s.engine.Apply(func() {
				s.Store.SetExpanded(expanded)
				s.renderBookmarks()
			})
		}
	case prefs.SliceRelationships:
		var rel types.Relationships
		if rel, err = s.prefs.LoadRelationships(ctx); err == nil {
			s.engine.Apply(func() {
				s.Store.SetRelationships(rel)
				s.renderBookmarks()
			})
		}
	case prefs.SliceTabSortMode:
		var mode types.TabSortMode
		if mode, err = s.prefs.LoadSortMode(ctx); err == nil {
			s.engine.Apply(func() {
				s.Store.SetSortMode(mode)
				s.renderTabs()
			})
		}
	case prefs.SliceViewMode:
		var mode types.BookmarkViewMode
		if mode, err = s.prefs.LoadViewMode(ctx); err == nil {
			s.engine.Apply(func() {
				s.Store.SetViewMode(mode)
				s.renderBookmarks()
			})
		}
	case prefs.SlicePinnedTabs:
		var entries []types.PinnedTabEntry
		if entries, err = s.prefs.LoadPinned(ctx); err == nil {
			s.pinnedChanged(entries)
		}
	case prefs.SliceDatedLinks, prefs.SliceCustomTitles:
		if err = s.links.Load(ctx); err == nil {
			s.engine.Apply(s.renderDecorated)
		}
	default:
		return
	}
	if err != nil {
		log.Error("surface.slice.reload", err)
		return
	}
	log.Info("surface.slice.reloaded")
}

func (s *Surface) pinnedChanged(entries []types.PinnedTabEntry) {
	s.engine.Apply(func() {
		s.Store.SetPinned(entries)
		if s.Store.IsDragging() {
			return
		}
		if err := s.render.Pinned(); err != nil {
			applog.Error("surface.render.pinned", err)
		}
	})
}

// The render helpers run under the engine lock. While a drag is in flight
// they only leave the store updated; ending the drag renders every section.

func (s *Surface) renderBookmarks() {
	if s.Store.IsDragging() {
		return
	}
	if err := s.render.Bookmarks(); err != nil {
		applog.Error("surface.render.bookmarks", err)
	}
}

func (s *Surface) renderTabs() {
	if s.Store.IsDragging() {
		return
	}
	if err := s.render.Tabs(); err != nil {
		applog.Error("surface.render.tabs", err)
	}
}

// renderDecorated re-renders the sections that carry titles and badges.
func (s *Surface) renderDecorated() {
	if s.Store.IsDragging() {
		return
	}
	s.renderBookmarks()
	s.renderTabs()
	if err := s.render.Pinned(); err != nil {
		applog.Error("surface.render.pinned", err)
	}
	if err := s.render.History(); err != nil {
		applog.Error("surface.render.history", err)
	}
}
