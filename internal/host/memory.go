package host

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// Root folder ids of a Memory host.
const (
	RootID        = "0"
	ToolbarID     = "1"
	OtherFolderID = "2"
)

// Operation names for Memory.FailNext.
const (
	OpMoveBookmark   = "moveBookmark"
	OpCreateBookmark = "createBookmark"
	OpUpdateBookmark = "updateBookmark"
	OpRemoveBookmark = "removeBookmark"
	OpGetChildren    = "getChildren"
	OpCreateTab      = "createTab"
	OpUpdateTab      = "updateTab"
	OpRemoveTab      = "removeTab"
	OpQueryTabs      = "queryTabs"
)

// Memory is an in-process host. Every mutation emits the notification a
// browser would. It backs tests and the demo surface.
type Memory struct {
	mu        sync.Mutex
	tabs      map[int]*types.TabRecord
	nextTab   int
	root      *types.BookmarkNode
	byID      map[string]*types.BookmarkNode
	nextBM    int
	history   []types.HistoryItem
	failures  map[string]error
	tabEvents chan TabEvent
	bmEvents  chan BookmarkEvent

	// Now is the host clock.
	Now func() time.Time
}

// NewMemory returns a host with an empty toolbar and "Other" folder.
func NewMemory() *Memory {
	root := &types.BookmarkNode{ID: RootID}
	toolbar := &types.BookmarkNode{ID: ToolbarID, ParentID: RootID, Title: "Bookmarks Toolbar"}
	other := &types.BookmarkNode{ID: OtherFolderID, ParentID: RootID, Index: 1, Title: "Other Bookmarks"}
	root.Children = []*types.BookmarkNode{toolbar, other}
	return &Memory{
		tabs:      make(map[int]*types.TabRecord),
		nextTab:   1,
		root:      root,
		byID:      map[string]*types.BookmarkNode{RootID: root, ToolbarID: toolbar, OtherFolderID: other},
		nextBM:    100,
		failures:  make(map[string]error),
		tabEvents: make(chan TabEvent, 256),
		bmEvents:  make(chan BookmarkEvent, 256),
		Now:       time.Now,
	}
}

func (m *Memory) TabEvents() <-chan TabEvent           { return m.tabEvents }
func (m *Memory) BookmarkEvents() <-chan BookmarkEvent { return m.bmEvents }

// FailNext makes the next call of op return err.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	m.failures[op] = err
	m.mu.Unlock()
}

func (m *Memory) takeFailure(op string) error {
	if err, ok := m.failures[op]; ok {
		delete(m.failures, op)
		return err
	}
	return nil
}

// EmitTab pushes a raw tab event, bypassing state.
func (m *Memory) EmitTab(ev TabEvent) { m.tabEvents <- ev }

// EmitBookmark pushes a raw bookmark event, bypassing state.
func (m *Memory) EmitBookmark(ev BookmarkEvent) { m.bmEvents <- ev }

// SeedTab adds a tab without emitting an event. A zero ID is assigned.
func (m *Memory) SeedTab(t types.TabRecord) types.TabRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		t.ID = m.nextTab
	}
	if t.ID >= m.nextTab {
		m.nextTab = t.ID + 1
	}
	if t.LastAccessed.IsZero() {
		t.LastAccessed = m.Now()
	}
	rec := t
	m.tabs[t.ID] = &rec
	return rec
}

// SeedBookmark adds a bookmark (url set) or folder without emitting an event.
func (m *Memory) SeedBookmark(parentID, title, url string) *types.BookmarkNode {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.insertLocked(parentID, title, url, -1)
	if err != nil {
		panic(err)
	}
	return n.Clone()
}

// SeedHistory adds history items.
func (m *Memory) SeedHistory(items ...types.HistoryItem) {
	m.mu.Lock()
	m.history = append(m.history, items...)
	m.mu.Unlock()
}

// --- TabDirectory ---

func (m *Memory) QueryTabs(ctx context.Context, q TabQuery) ([]types.TabRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(OpQueryTabs); err != nil {
		return nil, err
	}
	var out []types.TabRecord
	for _, t := range m.tabs {
		if q.Pinned != nil && t.Pinned != *q.Pinned {
			continue
		}
		if q.Active != nil && t.Active != *q.Active {
			continue
		}
		if q.WindowID != 0 && t.WindowID != q.WindowID {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WindowID != out[j].WindowID {
			return out[i].WindowID < out[j].WindowID
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func (m *Memory) GetTab(ctx context.Context, id int) (types.TabRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[id]
	if !ok {
		return types.TabRecord{}, fmt.Errorf("tab %d: %w", id, ErrNotFound)
	}
	return *t, nil
}

func (m *Memory) UpdateTab(ctx context.Context, id int, u TabUpdate) (types.TabRecord, error) {
	m.mu.Lock()
	if err := m.takeFailure(OpUpdateTab); err != nil {
		m.mu.Unlock()
		return types.TabRecord{}, err
	}
	t, ok := m.tabs[id]
	if !ok {
		m.mu.Unlock()
		return types.TabRecord{}, fmt.Errorf("tab %d: %w", id, ErrNotFound)
	}
	var events []TabEvent
	change := &TabChange{}
	changed := false
	if u.URL != nil && *u.URL != t.URL {
		t.URL = *u.URL
		url := t.URL
		change.URL = &url
		changed = true
	}
	if u.Pinned != nil && *u.Pinned != t.Pinned {
		t.Pinned = *u.Pinned
		pinned := t.Pinned
		change.Pinned = &pinned
		changed = true
	}
	if changed {
		snap := *t
		events = append(events, TabEvent{Kind: TabUpdated, TabID: id, WindowID: t.WindowID, Tab: &snap, Change: change})
	}
	if u.Active != nil && *u.Active && !t.Active {
		for _, other := range m.tabs {
			if other.WindowID == t.WindowID {
				other.Active = false
			}
		}
		t.Active = true
		t.LastAccessed = m.Now()
		events = append(events, TabEvent{Kind: TabActivated, TabID: id, WindowID: t.WindowID})
	}
	rec := *t
	m.mu.Unlock()

	for _, ev := range events {
		m.tabEvents <- ev
	}
	return rec, nil
}

func (m *Memory) CreateTab(ctx context.Context, nt NewTab) (types.TabRecord, error) {
	m.mu.Lock()
	if err := m.takeFailure(OpCreateTab); err != nil {
		m.mu.Unlock()
		return types.TabRecord{}, err
	}
	index := 0
	for _, t := range m.tabs {
		if t.WindowID == nt.WindowID {
			index++
		}
	}
	if nt.Active {
		for _, t := range m.tabs {
			if t.WindowID == nt.WindowID {
				t.Active = false
			}
		}
	}
	rec := types.TabRecord{
		ID:           m.nextTab,
		WindowID:     nt.WindowID,
		Index:        index,
		URL:          nt.URL,
		Title:        nt.URL,
		Active:       nt.Active,
		Pinned:       nt.Pinned,
		LastAccessed: m.Now(),
	}
	m.nextTab++
	stored := rec
	m.tabs[rec.ID] = &stored
	m.mu.Unlock()

	snap := rec
	m.tabEvents <- TabEvent{Kind: TabCreated, TabID: rec.ID, WindowID: rec.WindowID, Tab: &snap}
	return rec, nil
}

func (m *Memory) RemoveTab(ctx context.Context, id int) error {
	m.mu.Lock()
	if err := m.takeFailure(OpRemoveTab); err != nil {
		m.mu.Unlock()
		return err
	}
	t, ok := m.tabs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("tab %d: %w", id, ErrNotFound)
	}
	delete(m.tabs, id)
	for _, other := range m.tabs {
		if other.WindowID == t.WindowID && other.Index > t.Index {
			other.Index--
		}
	}
	windowID := t.WindowID
	m.mu.Unlock()

	m.tabEvents <- TabEvent{Kind: TabRemoved, TabID: id, WindowID: windowID}
	return nil
}

// --- BookmarkStore ---

func (m *Memory) GetTree(ctx context.Context) ([]*types.BookmarkNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return []*types.BookmarkNode{m.root.Clone()}, nil
}

func (m *Memory) GetChildren(ctx context.Context, parentID string) ([]*types.BookmarkNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(OpGetChildren); err != nil {
		return nil, err
	}
	p, ok := m.byID[parentID]
	if !ok {
		return nil, fmt.Errorf("bookmark %s: %w", parentID, ErrNotFound)
	}
	out := make([]*types.BookmarkNode, len(p.Children))
	for i, c := range p.Children {
		shallow := *c
		shallow.Children = nil
		out[i] = &shallow
	}
	return out, nil
}

func (m *Memory) GetBookmark(ctx context.Context, id string) (*types.BookmarkNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("bookmark %s: %w", id, ErrNotFound)
	}
	return n.Clone(), nil
}

func (m *Memory) CreateBookmark(ctx context.Context, parentID, title, url string) (*types.BookmarkNode, error) {
	m.mu.Lock()
	if err := m.takeFailure(OpCreateBookmark); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	n, err := m.insertLocked(parentID, title, url, -1)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	snap := n.Clone()
	m.mu.Unlock()

	m.bmEvents <- BookmarkEvent{Kind: BookmarkCreated, ID: snap.ID, Node: snap.Clone(), ParentID: snap.ParentID, Index: snap.Index}
	return snap, nil
}

func (m *Memory) UpdateBookmark(ctx context.Context, id string, c BookmarkChange) (*types.BookmarkNode, error) {
	m.mu.Lock()
	if err := m.takeFailure(OpUpdateBookmark); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	n, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("bookmark %s: %w", id, ErrNotFound)
	}
	ev := BookmarkEvent{Kind: BookmarkChanged, ID: id, ParentID: n.ParentID, Index: n.Index}
	if c.Title != nil {
		n.Title = *c.Title
		title := n.Title
		ev.Title = &title
	}
	if c.URL != nil && !n.IsFolder() {
		n.URL = *c.URL
		url := n.URL
		ev.URL = &url
	}
	snap := n.Clone()
	m.mu.Unlock()

	m.bmEvents <- ev
	return snap, nil
}

func (m *Memory) MoveBookmark(ctx context.Context, id string, dest Destination) (*types.BookmarkNode, error) {
	m.mu.Lock()
	if err := m.takeFailure(OpMoveBookmark); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	n, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("bookmark %s: %w", id, ErrNotFound)
	}
	newParent, ok := m.byID[dest.ParentID]
	if !ok || !newParent.IsFolder() {
		m.mu.Unlock()
		return nil, fmt.Errorf("bookmark folder %s: %w", dest.ParentID, ErrNotFound)
	}
	for p := newParent; p != nil; p = m.byID[p.ParentID] {
		if p.ID == id {
			m.mu.Unlock()
			return nil, fmt.Errorf("cannot move %s into its own subtree", id)
		}
		if p.ParentID == "" {
			break
		}
	}

	oldParent := m.byID[n.ParentID]
	oldIndex := n.Index
	oldParent.Children = removeChild(oldParent.Children, id)
	reindex(oldParent)

	idx := dest.Index
	if idx < 0 || idx > len(newParent.Children) {
		idx = len(newParent.Children)
	}
	newParent.Children = insertChild(newParent.Children, n, idx)
	n.ParentID = newParent.ID
	reindex(newParent)
	snap := n.Clone()
	m.mu.Unlock()

	m.bmEvents <- BookmarkEvent{
		Kind: BookmarkMoved, ID: id,
		ParentID: snap.ParentID, Index: snap.Index,
		OldParentID: oldParent.ID, OldIndex: oldIndex,
	}
	return snap, nil
}

func (m *Memory) RemoveBookmark(ctx context.Context, id string) error {
	return m.remove(id, false)
}

func (m *Memory) RemoveBookmarkTree(ctx context.Context, id string) error {
	return m.remove(id, true)
}

func (m *Memory) remove(id string, recursive bool) error {
	m.mu.Lock()
	if err := m.takeFailure(OpRemoveBookmark); err != nil {
		m.mu.Unlock()
		return err
	}
	n, ok := m.byID[id]
	if !ok || n.ParentID == "" {
		m.mu.Unlock()
		return fmt.Errorf("bookmark %s: %w", id, ErrNotFound)
	}
	if n.IsFolder() && len(n.Children) > 0 && !recursive {
		m.mu.Unlock()
		return fmt.Errorf("folder %s is not empty", id)
	}
	parent := m.byID[n.ParentID]
	parent.Children = removeChild(parent.Children, id)
	reindex(parent)
	n.Walk(func(c *types.BookmarkNode) { delete(m.byID, c.ID) })
	snap := n.Clone()
	m.mu.Unlock()

	m.bmEvents <- BookmarkEvent{Kind: BookmarkRemoved, ID: id, Node: snap, ParentID: snap.ParentID, Index: snap.Index}
	return nil
}

func (m *Memory) insertLocked(parentID, title, url string, index int) (*types.BookmarkNode, error) {
	parent, ok := m.byID[parentID]
	if !ok || !parent.IsFolder() {
		return nil, fmt.Errorf("bookmark folder %s: %w", parentID, ErrNotFound)
	}
	n := &types.BookmarkNode{
		ID:       strconv.Itoa(m.nextBM),
		ParentID: parentID,
		Title:    title,
		URL:      url,
	}
	m.nextBM++
	if index < 0 || index > len(parent.Children) {
		index = len(parent.Children)
	}
	parent.Children = insertChild(parent.Children, n, index)
	reindex(parent)
	m.byID[n.ID] = n
	return n, nil
}

func removeChild(children []*types.BookmarkNode, id string) []*types.BookmarkNode {
	for i, c := range children {
		if c.ID == id {
			return append(children[:i:i], children[i+1:]...)
		}
	}
	return children
}

func insertChild(children []*types.BookmarkNode, n *types.BookmarkNode, index int) []*types.BookmarkNode {
	children = append(children, nil)
	copy(children[index+1:], children[index:])
	children[index] = n
	return children
}

func reindex(parent *types.BookmarkNode) {
	for i, c := range parent.Children {
		c.Index = i
	}
}

// --- HistoryIndex ---

func (m *Memory) SearchHistory(ctx context.Context, text string, since time.Time, max int) ([]types.HistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(text)
	var out []types.HistoryItem
	for _, h := range m.history {
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

func (m *Memory) DeleteHistoryURL(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.history[:0]
	for _, h := range m.history {
		if h.URL != url {
			kept = append(kept, h)
		}
	}
	m.history = kept
	return nil
}
