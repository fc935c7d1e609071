package reconcile

import (
	"sort"
	"strings"

	"github.com/tektrg/command-bar-extension-sub000/internal/analyzer"
	"github.com/tektrg/command-bar-extension-sub000/internal/panel"
	"github.com/tektrg/command-bar-extension-sub000/internal/store"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
	"github.com/tektrg/command-bar-extension-sub000/internal/view"
)

// Renderer builds panel nodes from store state. Full renders mount whole
// sections; the Node helpers build single items for incremental patches.
type Renderer struct {
	store *store.Store
	panel *panel.Panel
}

func NewRenderer(s *store.Store, p *panel.Panel) *Renderer {
	return &Renderer{store: s, panel: p}
}

// All re-renders every section.
func (r *Renderer) All() error {
	for _, fn := range []func() error{r.Pinned, r.Bookmarks, r.Tabs, r.History} {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// Bookmarks re-renders the bookmark section from the current projection.
func (r *Renderer) Bookmarks() error {
	mode := r.store.ViewMode()
	projected := view.Bookmarks(r.store.BookmarkTree(), r.store.Relationships(), r.store.LiveTabs(), r.store.Query(), mode)

	var top []*types.BookmarkNode
	switch mode {
	case types.ViewDomain:
		top = projected
	default:
		for _, root := range projected {
			top = append(top, root.Children...)
		}
	}
	nodes := make([]*panel.Node, 0, len(top))
	for _, n := range top {
		nodes = append(nodes, r.bookmarkNode(n))
	}
	return r.panel.Mount(panel.SectionBookmarks, nodes)
}

// BookmarkNode builds the panel node for a mirrored bookmark and its
// subtree.
func (r *Renderer) BookmarkNode(id string) (*panel.Node, bool) {
	n, ok := r.store.Bookmark(id)
	if !ok {
		return nil, false
	}
	return r.bookmarkNode(n), true
}

func (r *Renderer) bookmarkNode(n *types.BookmarkNode) *panel.Node {
	if n.IsFolder() {
		synthetic := strings.HasPrefix(n.ID, view.DomainPrefix) || n.ID == view.ActiveRootID
		node := &panel.Node{
			ID:       panel.BookmarkID(n.ID),
			Kind:     panel.KindFolder,
			Title:    n.Title,
			Expanded: synthetic || r.store.Query() != "" || r.store.IsExpanded(n.ID),
		}
		for _, c := range n.Children {
			node.Children = append(node.Children, r.bookmarkNode(c))
		}
		return node
	}
	node := &panel.Node{
		ID:    panel.BookmarkID(n.ID),
		Kind:  panel.KindBookmark,
		Title: r.displayTitle(n.Title, n.URL),
		URL:   n.URL,
	}
	if tabID, ok := r.store.Relationship(n.ID); ok {
		if _, live := r.store.Tab(tabID); live {
			node.Badges = append(node.Badges, "open")
		}
	}
	node.Badges = append(node.Badges, r.dateBadge(n.URL)...)
	return node
}

// Tabs re-renders both tab sections together. A tab that changed category
// moves between them.
func (r *Renderer) Tabs() error {
	return r.panel.MountSections(map[string][]*panel.Node{
		panel.SectionActive:   r.tabNodes(r.store.ActiveTabs()),
		panel.SectionInactive: r.tabNodes(r.store.InactiveTabs()),
	})
}

// VisibleTabs returns a list as displayed: filtered by the query and sorted
// by the sort mode.
func (r *Renderer) VisibleTabs(tabs []types.TabRecord) []types.TabRecord {
	return view.SortTabs(view.FilterTabs(tabs, r.store.Query()), r.store.SortMode())
}

func (r *Renderer) tabNodes(tabs []types.TabRecord) []*panel.Node {
	visible := r.VisibleTabs(tabs)
	nodes := make([]*panel.Node, 0, len(visible))
	for _, t := range visible {
		nodes = append(nodes, r.TabNode(t))
	}
	return nodes
}

// TabNode builds the panel node for a tab.
func (r *Renderer) TabNode(t types.TabRecord) *panel.Node {
	node := &panel.Node{
		ID:    panel.TabID(t.ID),
		Kind:  panel.KindTab,
		Title: r.displayTitle(t.Title, t.URL),
		URL:   t.URL,
	}
	if t.Active {
		node.Badges = append(node.Badges, "focused")
	}
	if t.Pinned {
		node.Badges = append(node.Badges, "pinned")
	}
	node.Badges = append(node.Badges, r.dateBadge(t.URL)...)
	return node
}

// Pinned re-renders the pinned section.
func (r *Renderer) Pinned() error {
	entries := r.store.Pinned()
	nodes := make([]*panel.Node, 0, len(entries))
	for _, e := range entries {
		node := &panel.Node{
			ID:    panel.PinnedID(e.URL),
			Kind:  panel.KindPinned,
			Title: r.displayTitle(e.Title, e.URL),
			URL:   e.URL,
		}
		if e.TabID != nil {
			if _, live := r.store.Tab(*e.TabID); live {
				node.Badges = append(node.Badges, "open")
			}
		}
		nodes = append(nodes, node)
	}
	return r.panel.Mount(panel.SectionPinned, nodes)
}

// History re-renders the history section. It is empty without a query.
func (r *Renderer) History() error {
	var nodes []*panel.Node
	if r.store.Query() != "" {
		for _, h := range r.store.History() {
			nodes = append(nodes, &panel.Node{
				ID:    panel.HistoryID(analyzer.NormalizeURL(h.URL)),
				Kind:  panel.KindHistory,
				Title: r.displayTitle(h.Title, h.URL),
				URL:   h.URL,
			})
		}
	}
	return r.panel.Mount(panel.SectionHistory, nodes)
}

func (r *Renderer) displayTitle(title, url string) string {
	if custom, ok := r.store.CustomTitle(url); ok {
		return custom
	}
	if title == "" {
		return url
	}
	return title
}

func (r *Renderer) dateBadge(url string) []string {
	if url == "" {
		return nil
	}
	key := analyzer.NormalizeURL(url)
	var out []string
	for _, d := range r.store.DatedLinks() {
		if d.URL == key {
			out = append(out, d.Date.Format("2006-01-02"))
		}
	}
	sort.Strings(out)
	return out
}
