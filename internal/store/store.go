// Package store is the canonical in-memory mirror of one surface: tab lists
// split into active and inactive, the bookmark tree with its filtered view,
// the id-indexed lookup tables, bookmark-tab relationships, drag state and
// the current query. All writes go through named operations.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tektrg/command-bar-extension-sub000/internal/analyzer"
	"github.com/tektrg/command-bar-extension-sub000/internal/host"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
	"github.com/tektrg/command-bar-extension-sub000/internal/view"
)

// ErrDragging is returned by BeginDrag when a drag is already in flight.
var ErrDragging = errors.New("a drag is already in progress")

// Category is the list a tab belongs to.
type Category int

const (
	Active Category = iota
	Inactive
)

func (c Category) String() string {
	if c == Inactive {
		return "inactive"
	}
	return "active"
}

// Store is safe for concurrent use.
type Store struct {
	tabs      host.TabDirectory
	bookmarks host.BookmarkStore

	// Now and Threshold drive active/inactive categorization.
	Now       func() time.Time
	Threshold time.Duration

	mu            sync.RWMutex
	active        []types.TabRecord
	inactive      []types.TabRecord
	tabsByID      map[int]types.TabRecord
	roots         []*types.BookmarkNode
	bookmarksByID map[string]*types.BookmarkNode
	filtered      []*types.BookmarkNode
	history       []types.HistoryItem
	historyByURL  map[string]types.HistoryItem
	rel           types.Relationships
	drag          types.DragState
	query         string
	viewMode      types.BookmarkViewMode
	sortMode      types.TabSortMode
	expanded      map[string]bool
	customTitles  map[string]string
	datedLinks    []types.DatedLinkEntry
	pinned        []types.PinnedTabEntry
}

// New returns an empty store reading from the given collaborators.
func New(tabs host.TabDirectory, bookmarks host.BookmarkStore) *Store {
	return &Store{
		tabs:          tabs,
		bookmarks:     bookmarks,
		Now:           time.Now,
		Threshold:     analyzer.InactiveAfter,
		tabsByID:      make(map[int]types.TabRecord),
		bookmarksByID: make(map[string]*types.BookmarkNode),
		historyByURL:  make(map[string]types.HistoryItem),
		rel:           types.Relationships{},
		viewMode:      types.ViewFolder,
		sortMode:      types.SortByPosition,
		expanded:      make(map[string]bool),
		customTitles:  make(map[string]string),
	}
}

// FullReload re-fetches tabs and the bookmark tree, rebuilds both index
// maps, recategorizes tabs and re-applies the query filter. The two fetches
// run concurrently; on error the store is left unchanged.
func (s *Store) FullReload(ctx context.Context) error {
	tabs, roots, err := s.Fetch(ctx)
	if err != nil {
		return err
	}
	s.Replace(tabs, roots)
	return nil
}

// Fetch queries tabs and the bookmark tree concurrently without touching
// the store. Callers that must apply the result at a point of their choosing
// pair it with Replace.
func (s *Store) Fetch(ctx context.Context) ([]types.TabRecord, []*types.BookmarkNode, error) {
	var tabs []types.TabRecord
	var roots []*types.BookmarkNode

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tabs, err = s.FetchTabs(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		roots, err = s.FetchTree(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return tabs, roots, nil
}

// Replace installs fetched tabs and tree in one step.
func (s *Store) Replace(tabs []types.TabRecord, roots []*types.BookmarkNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setTabsLocked(tabs)
	s.setTreeLocked(roots)
}

// FetchTabs queries the tab list without touching the store.
func (s *Store) FetchTabs(ctx context.Context) ([]types.TabRecord, error) {
	tabs, err := s.tabs.QueryTabs(ctx, host.TabQuery{})
	if err != nil {
		return nil, fmt.Errorf("query tabs: %w", err)
	}
	return tabs, nil
}

// SetTabs replaces the tab list and recategorizes it.
func (s *Store) SetTabs(tabs []types.TabRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setTabsLocked(tabs)
}

// FetchTree queries the bookmark tree without touching the store.
func (s *Store) FetchTree(ctx context.Context) ([]*types.BookmarkNode, error) {
	roots, err := s.bookmarks.GetTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("get bookmark tree: %w", err)
	}
	return roots, nil
}

// SetTree replaces the bookmark tree and re-applies the query filter.
func (s *Store) SetTree(roots []*types.BookmarkNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setTreeLocked(roots)
}

func (s *Store) setTabsLocked(tabs []types.TabRecord) {
	sorted := view.SortTabs(tabs, types.SortByPosition)
	s.active, s.inactive = analyzer.Categorize(sorted, s.Now(), s.Threshold)
	s.tabsByID = make(map[int]types.TabRecord, len(tabs))
	for _, t := range sorted {
		s.tabsByID[t.ID] = t
	}
}

func (s *Store) setTreeLocked(roots []*types.BookmarkNode) {
	s.roots = make([]*types.BookmarkNode, len(roots))
	s.bookmarksByID = make(map[string]*types.BookmarkNode)
	for i, r := range roots {
		s.roots[i] = r.Clone()
		s.roots[i].Walk(func(n *types.BookmarkNode) { s.bookmarksByID[n.ID] = n })
	}
	s.refilterLocked()
}

func (s *Store) refilterLocked() {
	s.filtered = view.FilterTree(s.roots, s.query)
}

func (s *Store) categorize(t types.TabRecord) Category {
	if analyzer.IsActive(t, s.Now(), s.Threshold) {
		return Active
	}
	return Inactive
}

// --- reads ---

// Tabs returns every tab, active list first.
func (s *Store) Tabs() []types.TabRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.TabRecord, 0, len(s.active)+len(s.inactive))
	out = append(out, s.active...)
	return append(out, s.inactive...)
}

// ActiveTabs returns a copy of the active list.
func (s *Store) ActiveTabs() []types.TabRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.TabRecord(nil), s.active...)
}

// InactiveTabs returns a copy of the inactive list.
func (s *Store) InactiveTabs() []types.TabRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.TabRecord(nil), s.inactive...)
}

// Tab looks a tab up in the index map.
func (s *Store) Tab(id int) (types.TabRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tabsByID[id]
	return t, ok
}

// TabCategory returns the list tab id is currently tracked in.
func (s *Store) TabCategory(id int) (Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categoryLocked(id)
}

func (s *Store) categoryLocked(id int) (Category, bool) {
	for _, t := range s.active {
		if t.ID == id {
			return Active, true
		}
	}
	for _, t := range s.inactive {
		if t.ID == id {
			return Inactive, true
		}
	}
	return Active, false
}

// LiveTabs returns the set of tab ids currently mirrored.
func (s *Store) LiveTabs() map[int]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]bool, len(s.tabsByID))
	for id := range s.tabsByID {
		out[id] = true
	}
	return out
}

// TabsByURL returns the ids of tabs whose normalized url equals url's.
func (s *Store) TabsByURL(url string) []int {
	key := analyzer.NormalizeURL(url)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int
	for id, t := range s.tabsByID {
		if analyzer.NormalizeURL(t.URL) == key {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

// BookmarkTree returns a copy of the canonical tree.
func (s *Store) BookmarkTree() []*types.BookmarkNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRoots(s.roots)
}

// FilteredTree returns a copy of the tree after the query filter.
func (s *Store) FilteredTree() []*types.BookmarkNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRoots(s.filtered)
}

func cloneRoots(roots []*types.BookmarkNode) []*types.BookmarkNode {
	out := make([]*types.BookmarkNode, len(roots))
	for i, r := range roots {
		out[i] = r.Clone()
	}
	return out
}

// Bookmark returns a copy of the node and its subtree.
func (s *Store) Bookmark(id string) (*types.BookmarkNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.bookmarksByID[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// IsRoot reports whether id is a root of the forest.
func (s *Store) IsRoot(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.bookmarksByID[id]
	return ok && n.ParentID == ""
}

// BookmarksByURL returns the ids of bookmarks whose normalized url equals
// url's, in tree order.
func (s *Store) BookmarksByURL(url string) []string {
	key := analyzer.NormalizeURL(url)
	if key == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, r := range s.roots {
		r.Walk(func(n *types.BookmarkNode) {
			if !n.IsFolder() && analyzer.NormalizeURL(n.URL) == key {
				out = append(out, n.ID)
			}
		})
	}
	return out
}

// --- query, modes, expanded set ---

// SetQuery replaces the query and recomputes the filtered tree.
func (s *Store) SetQuery(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = q
	s.refilterLocked()
}

func (s *Store) Query() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query
}

func (s *Store) ViewMode() types.BookmarkViewMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewMode
}

func (s *Store) SetViewMode(m types.BookmarkViewMode) {
	s.mu.Lock()
	s.viewMode = m
	s.mu.Unlock()
}

func (s *Store) SortMode() types.TabSortMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortMode
}

func (s *Store) SetSortMode(m types.TabSortMode) {
	s.mu.Lock()
	s.sortMode = m
	s.mu.Unlock()
}

// IsExpanded reports whether a folder is expanded.
func (s *Store) IsExpanded(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expanded[id]
}

// Expanded returns the expanded folder ids that still exist in the tree.
func (s *Store) Expanded() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.expanded))
	for id, open := range s.expanded {
		if _, ok := s.bookmarksByID[id]; open && ok {
			out[id] = true
		}
	}
	return out
}

func (s *Store) SetExpanded(ids map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expanded = make(map[string]bool, len(ids))
	for id, open := range ids {
		if open {
			s.expanded[id] = true
		}
	}
}

// ToggleExpanded flips a folder and returns its new state.
func (s *Store) ToggleExpanded(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expanded[id] {
		delete(s.expanded, id)
		return false
	}
	s.expanded[id] = true
	return true
}

// --- derived collections ---

func (s *Store) CustomTitles() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.customTitles))
	for k, v := range s.customTitles {
		out[k] = v
	}
	return out
}

// CustomTitle returns the user title for url, if any.
func (s *Store) CustomTitle(url string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.customTitles[analyzer.NormalizeURL(url)]
	return t, ok
}

func (s *Store) SetCustomTitles(titles map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customTitles = make(map[string]string, len(titles))
	for k, v := range titles {
		s.customTitles[k] = v
	}
}

func (s *Store) DatedLinks() []types.DatedLinkEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.DatedLinkEntry(nil), s.datedLinks...)
}

func (s *Store) SetDatedLinks(entries []types.DatedLinkEntry) {
	s.mu.Lock()
	s.datedLinks = append([]types.DatedLinkEntry(nil), entries...)
	s.mu.Unlock()
}

func (s *Store) Pinned() []types.PinnedTabEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.PinnedTabEntry(nil), s.pinned...)
}

func (s *Store) SetPinned(entries []types.PinnedTabEntry) {
	s.mu.Lock()
	s.pinned = append([]types.PinnedTabEntry(nil), entries...)
	s.mu.Unlock()
}

// --- drag state ---

// BeginDrag records an in-flight drag. Reconciliation no-ops until EndDrag.
func (s *Store) BeginDrag(item types.DragItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag.IsDragging {
		return ErrDragging
	}
	it := item
	s.drag = types.DragState{IsDragging: true, Item: &it, DraggedType: item.Type}
	return nil
}

// EndDrag clears the drag state. It is safe to call when not dragging.
func (s *Store) EndDrag() {
	s.mu.Lock()
	s.drag = types.DragState{}
	s.mu.Unlock()
}

func (s *Store) IsDragging() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.drag.IsDragging
}

// Drag returns a copy of the drag state.
func (s *Store) Drag() types.DragState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.drag
	if d.Item != nil {
		it := *d.Item
		d.Item = &it
	}
	return d
}

// --- invariants ---

// CheckInvariants verifies that every index map agrees with its canonical
// list or tree.
func (s *Store) CheckInvariants() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int]bool, len(s.tabsByID))
	for _, list := range [][]types.TabRecord{s.active, s.inactive} {
		for _, t := range list {
			if seen[t.ID] {
				return fmt.Errorf("tab %d listed twice", t.ID)
			}
			seen[t.ID] = true
			if idx, ok := s.tabsByID[t.ID]; !ok || idx != t {
				return fmt.Errorf("tab %d missing or stale in index", t.ID)
			}
		}
	}
	if len(seen) != len(s.tabsByID) {
		return fmt.Errorf("tab index has %d entries, lists have %d", len(s.tabsByID), len(seen))
	}

	reachable := 0
	var err error
	for _, r := range s.roots {
		r.Walk(func(n *types.BookmarkNode) {
			reachable++
			if s.bookmarksByID[n.ID] != n && err == nil {
				err = fmt.Errorf("bookmark %s missing from index", n.ID)
			}
			for i, c := range n.Children {
				if (c.ParentID != n.ID || c.Index != i) && err == nil {
					err = fmt.Errorf("bookmark %s has position %s/%d, want %s/%d", c.ID, c.ParentID, c.Index, n.ID, i)
				}
			}
		})
	}
	if err != nil {
		return err
	}
	if reachable != len(s.bookmarksByID) {
		return fmt.Errorf("bookmark index has %d entries, tree has %d", len(s.bookmarksByID), reachable)
	}

	if len(s.history) != len(s.historyByURL) {
		return fmt.Errorf("history index has %d entries, list has %d", len(s.historyByURL), len(s.history))
	}
	for _, h := range s.history {
		if _, ok := s.historyByURL[analyzer.NormalizeURL(h.URL)]; !ok {
			return fmt.Errorf("history %s missing from index", h.URL)
		}
	}
	return nil
}
