package firefox

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tektrg/command-bar-extension-sub000/internal/applog"
	"github.com/tektrg/command-bar-extension-sub000/internal/host"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// Offline serves a profile snapshot as a host. Reads come from the
// snapshot; every write fails with host.ErrUnsupported. No notifications
// are ever emitted.
type Offline struct {
	Profile types.Profile

	tabs    []types.TabRecord
	roots   []*types.BookmarkNode
	byID    map[string]*types.BookmarkNode
	history []types.HistoryItem

	tabEvents chan host.TabEvent
	bmEvents  chan host.BookmarkEvent
}

var _ host.Host = (*Offline)(nil)

// Open loads a profile. A missing session or bookmark backup is tolerated
// as long as one of them is present.
func Open(p types.Profile) (*Offline, error) {
	sess, sessErr := ReadSessionFile(p.Path)
	roots, bmErr := ReadBookmarks(p.Path)
	if sessErr != nil && bmErr != nil {
		return nil, fmt.Errorf("open profile %s: %w", p.Name, sessErr)
	}
	if sessErr != nil {
		applog.Warn("firefox.session.missing", "profile", p.Name, "error", sessErr.Error())
		sess = &Session{}
	}
	if bmErr != nil {
		applog.Warn("firefox.bookmarks.missing", "profile", p.Name, "error", bmErr.Error())
		roots = nil
	}
	o := NewOffline(p, sess, roots)
	applog.Info("firefox.open", "profile", p.Name, "tabs", len(o.tabs), "history", len(o.history))
	return o, nil
}

// NewOffline builds an offline host from parsed data.
func NewOffline(p types.Profile, sess *Session, roots []*types.BookmarkNode) *Offline {
	o := &Offline{
		Profile:   p,
		tabs:      sess.Tabs,
		history:   sess.History,
		byID:      make(map[string]*types.BookmarkNode),
		tabEvents: make(chan host.TabEvent),
		bmEvents:  make(chan host.BookmarkEvent),
	}
	for _, r := range roots {
		c := r.Clone()
		o.roots = append(o.roots, c)
		c.Walk(func(n *types.BookmarkNode) { o.byID[n.ID] = n })
	}
	return o
}

func readOnly(op string) error {
	return fmt.Errorf("%s: %w", op, host.ErrUnsupported)
}

func (o *Offline) TabEvents() <-chan host.TabEvent           { return o.tabEvents }
func (o *Offline) BookmarkEvents() <-chan host.BookmarkEvent { return o.bmEvents }

// --- TabDirectory ---

func (o *Offline) QueryTabs(ctx context.Context, q host.TabQuery) ([]types.TabRecord, error) {
	var out []types.TabRecord
	for _, t := range o.tabs {
		if q.Pinned != nil && t.Pinned != *q.Pinned {
			continue
		}
		if q.Active != nil && t.Active != *q.Active {
			continue
		}
		if q.WindowID != 0 && t.WindowID != q.WindowID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (o *Offline) GetTab(ctx context.Context, id int) (types.TabRecord, error) {
	for _, t := range o.tabs {
		if t.ID == id {
			return t, nil
		}
	}
	return types.TabRecord{}, fmt.Errorf("tab %d: %w", id, host.ErrNotFound)
}

func (o *Offline) UpdateTab(ctx context.Context, id int, u host.TabUpdate) (types.TabRecord, error) {
	return types.TabRecord{}, readOnly("update tab")
}

func (o *Offline) CreateTab(ctx context.Context, t host.NewTab) (types.TabRecord, error) {
	return types.TabRecord{}, readOnly("create tab")
}

func (o *Offline) RemoveTab(ctx context.Context, id int) error {
	return readOnly("remove tab")
}

// --- BookmarkStore ---

func (o *Offline) GetTree(ctx context.Context) ([]*types.BookmarkNode, error) {
	out := make([]*types.BookmarkNode, len(o.roots))
	for i, r := range o.roots {
		out[i] = r.Clone()
	}
	return out, nil
}

func (o *Offline) GetChildren(ctx context.Context, parentID string) ([]*types.BookmarkNode, error) {
	p, ok := o.byID[parentID]
	if !ok {
		return nil, fmt.Errorf("bookmark %s: %w", parentID, host.ErrNotFound)
	}
	out := make([]*types.BookmarkNode, len(p.Children))
	for i, c := range p.Children {
		shallow := *c
		shallow.Children = nil
		out[i] = &shallow
	}
	return out, nil
}

func (o *Offline) GetBookmark(ctx context.Context, id string) (*types.BookmarkNode, error) {
	n, ok := o.byID[id]
	if !ok {
		return nil, fmt.Errorf("bookmark %s: %w", id, host.ErrNotFound)
	}
	return n.Clone(), nil
}

func (o *Offline) CreateBookmark(ctx context.Context, parentID, title, url string) (*types.BookmarkNode, error) {
	return nil, readOnly("create bookmark")
}

func (o *Offline) UpdateBookmark(ctx context.Context, id string, c host.BookmarkChange) (*types.BookmarkNode, error) {
	return nil, readOnly("update bookmark")
}

func (o *Offline) MoveBookmark(ctx context.Context, id string, dest host.Destination) (*types.BookmarkNode, error) {
	return nil, readOnly("move bookmark")
}

func (o *Offline) RemoveBookmark(ctx context.Context, id string) error {
	return readOnly("remove bookmark")
}

func (o *Offline) RemoveBookmarkTree(ctx context.Context, id string) error {
	return readOnly("remove bookmark tree")
}

// --- HistoryIndex ---

func (o *Offline) SearchHistory(ctx context.Context, text string, since time.Time, max int) ([]types.HistoryItem, error) {
	needle := strings.ToLower(text)
	var out []types.HistoryItem
	for _, h := range o.history {
		if h.LastVisitTime.Before(since) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(h.Title), needle) && !strings.Contains(strings.ToLower(h.URL), needle) {
			continue
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastVisitTime.After(out[j].LastVisitTime) })
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (o *Offline) DeleteHistoryURL(ctx context.Context, url string) error {
	return readOnly("delete history")
}
