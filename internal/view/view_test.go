package view

import (
	"testing"
	"time"

	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

func sampleTree() []*types.BookmarkNode {
	return []*types.BookmarkNode{{
		ID: "0",
		Children: []*types.BookmarkNode{
			{ID: "1", ParentID: "0", Title: "Toolbar", Children: []*types.BookmarkNode{
				{ID: "10", ParentID: "1", Title: "Go docs", URL: "https://go.dev/doc"},
				{ID: "11", ParentID: "1", Index: 1, Title: "Recipes", Children: []*types.BookmarkNode{
					{ID: "20", ParentID: "11", Title: "Pasta", URL: "https://food.com/pasta"},
					{ID: "21", ParentID: "11", Index: 1, Title: "Bread", URL: "https://food.com/bread"},
				}},
			}},
			{ID: "2", ParentID: "0", Index: 1, Title: "Other", Children: []*types.BookmarkNode{
				{ID: "30", ParentID: "2", Title: "Go blog", URL: "https://go.dev/blog"},
				{ID: "31", ParentID: "2", Index: 1, Title: "about", URL: "about:config"},
			}},
		},
	}}
}

func ids(nodes []*types.BookmarkNode) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestFilterTree_KeepsAncestors(t *testing.T) {
	out := FilterTree(sampleTree(), "pasta")

	if len(out) != 1 {
		t.Fatalf("expected root to survive, got %d roots", len(out))
	}
	toolbar := out[0].Children
	if got := ids(toolbar); len(got) != 1 || got[0] != "1" {
		t.Fatalf("root children = %v, want [1]", got)
	}
	recipes := toolbar[0].Children
	if got := ids(recipes); len(got) != 1 || got[0] != "11" {
		t.Fatalf("toolbar children = %v, want [11]", got)
	}
	if got := ids(recipes[0].Children); len(got) != 1 || got[0] != "20" {
		t.Errorf("recipes children = %v, want [20]", got)
	}
}

func TestFilterTree_FolderTitleKeepsSubtree(t *testing.T) {
	out := FilterTree(sampleTree(), "RECIPES")
	recipes := out[0].Children[0].Children[0]
	if len(recipes.Children) != 2 {
		t.Errorf("matching folder should keep all children, got %v", ids(recipes.Children))
	}
}

func TestFilterTree_NoMatch(t *testing.T) {
	if out := FilterTree(sampleTree(), "zzz"); len(out) != 0 {
		t.Errorf("expected no roots, got %v", ids(out))
	}
}

func TestFilterTree_DoesNotMutateInput(t *testing.T) {
	in := sampleTree()
	out := FilterTree(in, "")
	out[0].Children[0].Title = "changed"
	if in[0].Children[0].Title != "Toolbar" {
		t.Error("input mutated through result")
	}
}

func TestActiveBookmarks(t *testing.T) {
	rel := types.Relationships{"10": 5, "20": 6, "30": 7}
	live := map[int]bool{5: true, 7: true}

	out := ActiveBookmarks(sampleTree(), rel, live)
	if len(out) != 1 || out[0].ID != ActiveRootID {
		t.Fatalf("expected synthetic root, got %v", ids(out))
	}
	if got := ids(out[0].Children); len(got) != 2 || got[0] != "10" || got[1] != "30" {
		t.Errorf("active = %v, want [10 30]", got)
	}
	for i, c := range out[0].Children {
		if c.ParentID != ActiveRootID || c.Index != i {
			t.Errorf("child %s parent=%q index=%d", c.ID, c.ParentID, c.Index)
		}
	}
}

func TestDomainGroups(t *testing.T) {
	out := DomainGroups(sampleTree())

	if got := ids(out); len(got) != 3 ||
		got[0] != DomainPrefix+"food.com" || got[1] != DomainPrefix+"go.dev" || got[2] != DomainPrefix+"other" {
		t.Fatalf("domains = %v", got)
	}
	food := out[0].Children
	if food[0].Title != "Bread" || food[1].Title != "Pasta" {
		t.Errorf("food.com not sorted by title: %q, %q", food[0].Title, food[1].Title)
	}
}

func TestBookmarks_ModeAndQuery(t *testing.T) {
	out := Bookmarks(sampleTree(), nil, nil, "go", types.ViewDomain)
	if len(out) != 1 || out[0].Title != "go.dev" {
		t.Fatalf("expected only go.dev group, got %v", ids(out))
	}
	if len(out[0].Children) != 2 {
		t.Errorf("go.dev children = %v", ids(out[0].Children))
	}
}

func TestSortTabs(t *testing.T) {
	now := time.Now()
	tabs := []types.TabRecord{
		{ID: 1, WindowID: 2, Index: 0, Title: "b", URL: "https://zeta.com", LastAccessed: now.Add(-3 * time.Hour)},
		{ID: 2, WindowID: 1, Index: 1, Title: "a", URL: "https://alpha.com", LastAccessed: now.Add(-1 * time.Hour)},
		{ID: 3, WindowID: 1, Index: 0, Title: "C", URL: "https://alpha.com/x", LastAccessed: now},
	}

	tests := []struct {
		mode types.TabSortMode
		want []int
	}{
		{types.SortByPosition, []int{3, 2, 1}},
		{types.SortByLastVisit, []int{3, 2, 1}},
		{types.SortByDomain, []int{2, 3, 1}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			got := SortTabs(tabs, tt.mode)
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Fatalf("order = %v, want %v", tabIDs(got), tt.want)
				}
			}
		})
	}

	if tabs[0].ID != 1 || tabs[1].ID != 2 || tabs[2].ID != 3 {
		t.Error("SortTabs mutated its input")
	}
}

func tabIDs(tabs []types.TabRecord) []int {
	var out []int
	for _, t := range tabs {
		out = append(out, t.ID)
	}
	return out
}

func TestFilterTabs(t *testing.T) {
	tabs := []types.TabRecord{{ID: 1, Title: "Inbox", URL: "https://mail.com"}, {ID: 2, Title: "News", URL: "https://news.com"}}
	got := FilterTabs(tabs, "MAIL")
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("got %v", tabIDs(got))
	}
}
