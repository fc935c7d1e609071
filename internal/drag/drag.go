// Package drag turns a bookmark drag gesture into an authoritative move.
// The panel is updated optimistically and rolled back if the move fails;
// reconciliation is suspended for as long as the drag is in flight.
package drag

import (
	"context"
	"errors"
	"fmt"

	"github.com/tektrg/command-bar-extension-sub000/internal/applog"
	"github.com/tektrg/command-bar-extension-sub000/internal/host"
	"github.com/tektrg/command-bar-extension-sub000/internal/panel"
	"github.com/tektrg/command-bar-extension-sub000/internal/reconcile"
	"github.com/tektrg/command-bar-extension-sub000/internal/store"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

var (
	ErrNotDragging = errors.New("no drag in progress")
	// ErrUnavailable is returned by Start when the bookmark section does not
	// show the plain folder tree.
	ErrUnavailable = errors.New("reordering needs the folder view without a filter")
	ErrBadTarget   = errors.New("invalid drop target")
)

// Outcome is the result of a drop.
type Outcome int

const (
	NoOp Outcome = iota
	Moved
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Moved:
		return "moved"
	case Failed:
		return "failed"
	}
	return "noop"
}

// Target is a drop position: the folder to drop into and the sibling to
// drop before. An empty BeforeID drops at the end.
type Target struct {
	ParentID string
	BeforeID string
}

// Serializer runs fn in the critical section the reconciliation handlers
// use. *reconcile.Engine implements it.
type Serializer interface {
	// Apply runs fn and reports a panel change afterwards.
	Apply(fn func())
	// Read runs fn without reporting a change.
	Read(fn func())
}

type Protocol struct {
	store     *store.Store
	panel     *panel.Panel
	bookmarks host.BookmarkStore
	render    *reconcile.Renderer
	sync      Serializer

	// Notify surfaces a failure to the user.
	Notify func(msg string)
	// OnReattach runs after a successful drop replaced the panel nodes.
	OnReattach func()
}

func New(s *store.Store, p *panel.Panel, bookmarks host.BookmarkStore, r *reconcile.Renderer, sync Serializer) *Protocol {
	return &Protocol{store: s, panel: p, bookmarks: bookmarks, render: r, sync: sync}
}

// Start begins dragging a bookmark or folder. Once it returns, no
// reconciliation handler mutates the store or the panel until the drag ends.
func (p *Protocol) Start(bookmarkID string) error {
	var err error
	p.sync.Read(func() { err = p.start(bookmarkID) })
	return err
}

func (p *Protocol) start(bookmarkID string) error {
	if p.store.Query() != "" || p.store.ViewMode() != types.ViewFolder {
		return ErrUnavailable
	}
	n, ok := p.store.Bookmark(bookmarkID)
	if !ok {
		return fmt.Errorf("drag %s: %w", bookmarkID, host.ErrNotFound)
	}
	if n.ParentID == "" || p.store.IsRoot(n.ParentID) {
		return fmt.Errorf("drag %s: top-level folders cannot move: %w", bookmarkID, ErrBadTarget)
	}
	_, index, ok := p.panel.Position(panel.BookmarkID(bookmarkID))
	if !ok {
		return fmt.Errorf("drag %s: not rendered: %w", bookmarkID, host.ErrNotFound)
	}
	typ := types.ItemBookmark
	if n.IsFolder() {
		typ = types.ItemFolder
	}
	if err := p.store.BeginDrag(types.DragItem{ID: n.ID, Type: typ, ParentID: n.ParentID, Index: index}); err != nil {
		return err
	}
	applog.Info("drag.start", "bookmark", n.ID, "parent", n.ParentID, "index", index)
	return nil
}

// Cancel ends a drag without a drop. Sections whose re-render was held back
// during the drag are rendered again.
func (p *Protocol) Cancel() {
	var err error
	p.sync.Apply(func() {
		if !p.store.IsDragging() {
			return
		}
		applog.Info("drag.cancel")
		p.store.EndDrag()
		err = p.render.All()
	})
	if err != nil {
		applog.Error("drag.render", err)
	}
}

// Drop completes the drag at t. The drag state is cleared on every path.
func (p *Protocol) Drop(ctx context.Context, t Target) (Outcome, error) {
	var (
		item    types.DragItem
		index   int
		outcome = Moved
		notice  string
		err     error
	)
	ended := false
	defer func() {
		if !ended {
			p.sync.Read(p.store.EndDrag)
		}
	}()

	// Optimistic move, in the same critical section as the target
	// computation so no handler reshapes the folder in between.
	p.sync.Apply(func() {
		d := p.store.Drag()
		if !d.IsDragging || d.Item == nil {
			outcome, err = NoOp, ErrNotDragging
			ended = true
			return
		}
		item = *d.Item
		if index, err = p.targetIndex(item.ID, t); err != nil {
			outcome, notice = Failed, fmt.Sprintf("Cannot drop here: %v", err)
			return
		}
		if t.ParentID == item.ParentID && index == item.Index {
			outcome = NoOp
			return
		}
		if mvErr := p.panel.Move(panel.BookmarkID(item.ID), panel.BookmarkID(t.ParentID), index); mvErr != nil {
			outcome, notice = Failed, "Cannot drop here"
			err = fmt.Errorf("drop %s: %w", item.ID, mvErr)
		}
	})
	if outcome != Moved {
		p.notify(notice)
		return outcome, err
	}

	if _, err := p.bookmarks.MoveBookmark(ctx, item.ID, host.Destination{ParentID: t.ParentID, Index: index}); err != nil {
		p.sync.Apply(func() {
			if rbErr := p.panel.Move(panel.BookmarkID(item.ID), panel.BookmarkID(item.ParentID), item.Index); rbErr != nil {
				applog.Error("drag.rollback", rbErr, "bookmark", item.ID)
			}
			p.store.EndDrag()
		})
		ended = true
		applog.Error("drag.drop.failed", err, "bookmark", item.ID, "parent", t.ParentID, "index", index)
		p.notify("Could not move bookmark")
		return Failed, fmt.Errorf("move %s: %w", item.ID, err)
	}

	p.sync.Read(p.store.EndDrag)
	ended = true
	tabs, roots, err := p.store.Fetch(ctx)
	if err != nil {
		// The optimistic panel already shows the move; keep it.
		applog.Error("drag.reload", err)
	} else {
		p.sync.Apply(func() {
			p.store.Replace(tabs, roots)
			err = p.render.All()
		})
		if err != nil {
			applog.Error("drag.render", err)
		}
	}
	if p.OnReattach != nil {
		p.OnReattach()
	}
	applog.Info("drag.drop", "bookmark", item.ID, "parent", t.ParentID, "index", index)
	return Moved, nil
}

// targetIndex converts t into a position in the target folder's child list
// after the dragged item has been taken out of it.
func (p *Protocol) targetIndex(id string, t Target) (int, error) {
	parent, ok := p.store.Bookmark(t.ParentID)
	if !ok || !parent.IsFolder() {
		return 0, fmt.Errorf("folder %s: %w", t.ParentID, ErrBadTarget)
	}
	if parent.ParentID == "" {
		return 0, fmt.Errorf("root %s: %w", t.ParentID, ErrBadTarget)
	}
	var inside bool
	if dragged, ok := p.store.Bookmark(id); ok {
		dragged.Walk(func(n *types.BookmarkNode) {
			if n.ID == t.ParentID {
				inside = true
			}
		})
	}
	if inside {
		return 0, fmt.Errorf("folder %s is inside the dragged item: %w", t.ParentID, ErrBadTarget)
	}

	siblings := p.panel.ChildIDs(panel.BookmarkID(t.ParentID))
	before := panel.BookmarkID(t.BeforeID)
	index := 0
	for _, sid := range siblings {
		if sid == panel.BookmarkID(id) {
			continue
		}
		if t.BeforeID != "" && sid == before {
			return index, nil
		}
		index++
	}
	return index, nil
}

func (p *Protocol) notify(msg string) {
	if msg != "" && p.Notify != nil {
		p.Notify(msg)
	}
}
