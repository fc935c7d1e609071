package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tektrg/command-bar-extension-sub000/internal/host"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *host.Memory) {
	t.Helper()
	h := host.NewMemory()
	h.Now = func() time.Time { return now }
	s := New(h, h)
	s.Now = func() time.Time { return now }
	return s, h
}

func TestFullReload(t *testing.T) {
	s, h := newTestStore(t)
	h.SeedTab(types.TabRecord{WindowID: 1, Index: 0, URL: "https://a.com", Active: true})
	h.SeedTab(types.TabRecord{WindowID: 1, Index: 1, URL: "https://b.com", LastAccessed: now.Add(-48 * time.Hour)})
	h.SeedTab(types.TabRecord{WindowID: 1, Index: 2, URL: "https://c.com", LastAccessed: now.Add(-time.Hour)})
	folder := h.SeedBookmark(host.ToolbarID, "Docs", "")
	h.SeedBookmark(folder.ID, "Go", "https://go.dev")

	if err := s.FullReload(context.Background()); err != nil {
		t.Fatalf("FullReload: %v", err)
	}

	if got := len(s.ActiveTabs()); got != 2 {
		t.Errorf("active = %d, want 2", got)
	}
	inactive := s.InactiveTabs()
	if len(inactive) != 1 || inactive[0].URL != "https://b.com" {
		t.Errorf("inactive = %+v", inactive)
	}
	if _, ok := s.Bookmark(folder.ID); !ok {
		t.Error("folder missing from index")
	}
	if !s.IsRoot(host.RootID) {
		t.Error("root not recognised")
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
}

func TestFullReloadErrorLeavesStateUnchanged(t *testing.T) {
	s, h := newTestStore(t)
	h.SeedTab(types.TabRecord{WindowID: 1, URL: "https://a.com", Active: true})
	if err := s.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.SeedTab(types.TabRecord{WindowID: 1, Index: 1, URL: "https://b.com"})
	h.FailNext(host.OpQueryTabs, errors.New("boom"))
	if err := s.FullReload(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := len(s.Tabs()); got != 1 {
		t.Errorf("tabs = %d, want 1", got)
	}
}

func TestReturnedTreeIsACopy(t *testing.T) {
	s, h := newTestStore(t)
	h.SeedBookmark(host.ToolbarID, "Go", "https://go.dev")
	if err := s.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}
	tree := s.BookmarkTree()
	tree[0].Children[0].Title = "mutated"
	tree[0].Children = nil
	if err := s.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
	n, _ := s.Bookmark(host.ToolbarID)
	if n.Title == "mutated" {
		t.Error("store tree was mutated through a copy")
	}
}

func TestAddRemoveTabShiftsIndices(t *testing.T) {
	s, h := newTestStore(t)
	h.SeedTab(types.TabRecord{ID: 1, WindowID: 1, Index: 0, URL: "https://a.com", Active: true})
	h.SeedTab(types.TabRecord{ID: 2, WindowID: 1, Index: 1, URL: "https://b.com"})
	if err := s.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.AddTab(types.TabRecord{ID: 3, WindowID: 1, Index: 1, URL: "https://c.com", LastAccessed: now})
	if tab, _ := s.Tab(2); tab.Index != 2 {
		t.Errorf("tab 2 index = %d, want 2", tab.Index)
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatal(err)
	}

	removed, ok := s.RemoveTab(1)
	if !ok || removed.ID != 1 {
		t.Fatalf("RemoveTab = %+v, %v", removed, ok)
	}
	if tab, _ := s.Tab(3); tab.Index != 0 {
		t.Errorf("tab 3 index = %d, want 0", tab.Index)
	}
	if _, ok := s.RemoveTab(1); ok {
		t.Error("second remove should report false")
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
}

func TestAddTabRedeliveredKeepsIndices(t *testing.T) {
	s, h := newTestStore(t)
	first := h.SeedTab(types.TabRecord{ID: 1, WindowID: 1, Index: 0, URL: "https://a.com", Active: true})
	h.SeedTab(types.TabRecord{ID: 2, WindowID: 1, Index: 1, URL: "https://b.com"})
	h.SeedTab(types.TabRecord{ID: 3, WindowID: 1, Index: 2, URL: "https://c.com"})
	if err := s.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.AddTab(first)
	s.AddTab(first)
	for id, want := range map[int]int{1: 0, 2: 1, 3: 2} {
		if tab, _ := s.Tab(id); tab.Index != want {
			t.Errorf("tab %d index = %d, want %d", id, tab.Index, want)
		}
	}

	// A re-delivered create carrying a new position moves the tab.
	moved := first
	moved.Index = 2
	s.AddTab(moved)
	for id, want := range map[int]int{2: 0, 3: 1, 1: 2} {
		if tab, _ := s.Tab(id); tab.Index != want {
			t.Errorf("after move: tab %d index = %d, want %d", id, tab.Index, want)
		}
	}
	if got := len(s.Tabs()); got != 3 {
		t.Errorf("tabs = %d, want 3", got)
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
}

func TestPatchTab(t *testing.T) {
	s, h := newTestStore(t)
	tab := h.SeedTab(types.TabRecord{ID: 1, WindowID: 1, URL: "https://a.com", Title: "A", LastAccessed: now})
	if err := s.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		rec  func() types.TabRecord
		want PatchResult
	}{
		{"identical", func() types.TabRecord { return tab }, Unchanged},
		{"title", func() types.TabRecord { r := tab; r.Title = "A2"; return r }, Patched},
		{"crosses threshold", func() types.TabRecord {
			r := tab
			r.Title = "A2"
			r.LastAccessed = now.Add(-72 * time.Hour)
			return r
		}, Crossed},
		{"unknown", func() types.TabRecord { r := tab; r.ID = 99; return r }, Missing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.PatchTab(tt.rec()); got != tt.want {
				t.Errorf("PatchTab = %v, want %v", got, tt.want)
			}
		})
	}
	if got, _ := s.Tab(1); got.Title != "A2" || !got.LastAccessed.Equal(now) {
		t.Errorf("tab after patches = %+v", got)
	}
}

func TestActivateTab(t *testing.T) {
	s, h := newTestStore(t)
	h.SeedTab(types.TabRecord{ID: 1, WindowID: 1, Index: 0, URL: "https://a.com", Active: true, LastAccessed: now})
	h.SeedTab(types.TabRecord{ID: 2, WindowID: 1, Index: 1, URL: "https://b.com", LastAccessed: now.Add(-time.Hour)})
	h.SeedTab(types.TabRecord{ID: 3, WindowID: 1, Index: 2, URL: "https://c.com", LastAccessed: now.Add(-72 * time.Hour)})
	if err := s.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}

	changed, crossed := s.ActivateTab(2, 1)
	if crossed || len(changed) != 2 {
		t.Fatalf("ActivateTab(2) = %v, %v", changed, crossed)
	}
	if a, _ := s.Tab(1); a.Active {
		t.Error("tab 1 still active")
	}

	if _, crossed := s.ActivateTab(3, 1); !crossed {
		t.Error("activating an inactive tab should cross lists")
	}
	if c, _ := s.Tab(3); c.Active {
		t.Error("crossed activation must not mutate")
	}
}

func TestBookmarkMutations(t *testing.T) {
	s, h := newTestStore(t)
	folder := h.SeedBookmark(host.ToolbarID, "Folder", "")
	a := h.SeedBookmark(folder.ID, "A", "https://a.com")
	b := h.SeedBookmark(folder.ID, "B", "https://b.com")
	if err := s.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := s.InsertBookmark(&types.BookmarkNode{ID: "500", ParentID: folder.ID, Index: 1, Title: "C", URL: "https://c.com"})
	if err != nil {
		t.Fatal(err)
	}
	if got := s.ChildIDs(folder.ID); !equal(got, []string{a.ID, "500", b.ID}) {
		t.Errorf("children after insert = %v", got)
	}

	if err := s.InsertBookmark(&types.BookmarkNode{ID: "501", ParentID: "nope"}); !errors.Is(err, ErrUnknownParent) {
		t.Errorf("insert under unknown parent err = %v", err)
	}

	if err := s.MoveBookmark(b.ID, host.OtherFolderID, 0); err != nil {
		t.Fatal(err)
	}
	if got := s.ChildIDs(host.OtherFolderID); !equal(got, []string{b.ID}) {
		t.Errorf("other children = %v", got)
	}
	if err := s.MoveBookmark(folder.ID, a.ID, 0); err == nil {
		t.Error("moving a folder under its own child should fail")
	}

	title := "A renamed"
	if changed, err := s.UpdateBookmark(a.ID, &title, nil); err != nil || !changed {
		t.Errorf("UpdateBookmark = %v, %v", changed, err)
	}
	if changed, _ := s.UpdateBookmark(a.ID, &title, nil); changed {
		t.Error("second identical update should report no change")
	}

	removed := s.RemoveBookmark(folder.ID)
	if len(removed) != 3 {
		t.Errorf("removed = %v, want folder and two children", removed)
	}
	if _, ok := s.Bookmark(a.ID); ok {
		t.Error("descendant still indexed")
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
}

func TestQueryRecomputesFilter(t *testing.T) {
	s, h := newTestStore(t)
	h.SeedBookmark(host.ToolbarID, "Go", "https://go.dev")
	h.SeedBookmark(host.ToolbarID, "Rust", "https://rust-lang.org")
	if err := s.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.SetQuery("rust")
	toolbar := s.FilteredTree()[0].Children[0]
	if len(toolbar.Children) != 1 || toolbar.Children[0].Title != "Rust" {
		t.Errorf("filtered toolbar = %+v", toolbar.Children)
	}
	if err := s.InsertBookmark(&types.BookmarkNode{ID: "900", ParentID: host.ToolbarID, Title: "Rustlings", URL: "https://rustlings.dev"}); err != nil {
		t.Fatal(err)
	}
	toolbar = s.FilteredTree()[0].Children[0]
	if len(toolbar.Children) != 2 {
		t.Errorf("filter not recomputed after insert: %+v", toolbar.Children)
	}
	if got := len(s.BookmarkTree()[0].Children[0].Children); got != 3 {
		t.Errorf("canonical toolbar children = %d, want 3", got)
	}
}

func TestRelationships(t *testing.T) {
	s, h := newTestStore(t)
	h.SeedTab(types.TabRecord{ID: 7, WindowID: 1, URL: "https://a.com", Active: true})
	a := h.SeedBookmark(host.ToolbarID, "A", "https://a.com/")
	b := h.SeedBookmark(host.ToolbarID, "B", "https://b.com")
	if err := s.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.SetRelationships(types.Relationships{a.ID: 7, b.ID: 8, "gone": 7})
	if n := s.PruneRelationships(); n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}
	if id, ok := s.Relationship(a.ID); !ok || id != 7 {
		t.Errorf("relationship a = %d, %v", id, ok)
	}

	if got := s.BookmarksByURL("https://a.com#top"); !equal(got, []string{a.ID}) {
		t.Errorf("BookmarksByURL = %v", got)
	}

	s.RemoveTab(7)
	if stale := s.StaleRelationships(); !equal(stale, []string{a.ID}) {
		t.Errorf("stale = %v", stale)
	}
	if got := s.UnlinkTab(7); !equal(got, []string{a.ID}) {
		t.Errorf("UnlinkTab = %v", got)
	}
	if len(s.Relationships()) != 0 {
		t.Errorf("relationships = %v", s.Relationships())
	}
}

func TestDragState(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.BeginDrag(types.DragItem{ID: "5", Type: types.ItemBookmark, ParentID: "1", Index: 2}); err != nil {
		t.Fatal(err)
	}
	if !s.IsDragging() {
		t.Fatal("not dragging")
	}
	if err := s.BeginDrag(types.DragItem{ID: "6"}); !errors.Is(err, ErrDragging) {
		t.Errorf("second BeginDrag err = %v", err)
	}
	d := s.Drag()
	d.Item.ID = "changed"
	if s.Drag().Item.ID != "5" {
		t.Error("Drag returned shared item")
	}
	s.EndDrag()
	s.EndDrag()
	if s.IsDragging() {
		t.Error("still dragging")
	}
}

func TestHistoryIndex(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetHistory([]types.HistoryItem{
		{URL: "https://a.com/", Title: "A"},
		{URL: "https://a.com", Title: "A again"},
		{URL: "https://b.com", Title: "B"},
	})
	if got := len(s.History()); got != 2 {
		t.Fatalf("history = %d, want 2", got)
	}
	if _, ok := s.HistoryItem("https://a.com#x"); !ok {
		t.Error("normalized lookup failed")
	}
	if !s.RemoveHistory("https://a.com") {
		t.Error("RemoveHistory = false")
	}
	if s.RemoveHistory("https://a.com") {
		t.Error("second RemoveHistory = true")
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
}

func TestExpandedDropsRemovedFolders(t *testing.T) {
	s, h := newTestStore(t)
	f := h.SeedBookmark(host.ToolbarID, "F", "")
	if err := s.FullReload(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.SetExpanded(map[string]bool{f.ID: true, "ghost": true})
	if got := s.Expanded(); len(got) != 1 || !got[f.ID] {
		t.Errorf("Expanded = %v", got)
	}
	if s.ToggleExpanded(f.ID) {
		t.Error("toggle should collapse")
	}
	if !s.ToggleExpanded(f.ID) {
		t.Error("toggle should expand")
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
