// Package view derives renderable structures from mirror state. Every
// function here is pure: inputs are never mutated and results share no
// memory with them.
package view

import (
	"sort"
	"strings"

	"github.com/tektrg/command-bar-extension-sub000/internal/analyzer"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// Synthetic node ids produced by the flattened view modes.
const (
	ActiveRootID = "view:active"
	DomainPrefix = "view:domain:"
)

// FilterTree keeps the nodes matching query (case-insensitive, title or
// url) together with their ancestor chain. A folder whose own title matches
// is kept whole. An empty query returns a copy of roots.
func FilterTree(roots []*types.BookmarkNode, query string) []*types.BookmarkNode {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]*types.BookmarkNode, 0, len(roots))
	for _, r := range roots {
		if q == "" {
			out = append(out, r.Clone())
			continue
		}
		if kept := filterNode(r, q); kept != nil {
			out = append(out, kept)
		}
	}
	return out
}

func filterNode(n *types.BookmarkNode, q string) *types.BookmarkNode {
	if Matches(n, q) {
		return n.Clone()
	}
	if !n.IsFolder() {
		return nil
	}
	var kids []*types.BookmarkNode
	for _, c := range n.Children {
		if kept := filterNode(c, q); kept != nil {
			kids = append(kids, kept)
		}
	}
	if len(kids) == 0 {
		return nil
	}
	c := *n
	c.Children = kids
	return &c
}

// Matches reports whether n's title or url contains the lower-cased query.
func Matches(n *types.BookmarkNode, lowerQuery string) bool {
	if lowerQuery == "" {
		return true
	}
	if strings.Contains(strings.ToLower(n.Title), lowerQuery) {
		return true
	}
	return n.URL != "" && strings.Contains(strings.ToLower(n.URL), lowerQuery)
}

// Leaves returns copies of every bookmark (url-bearing node) under roots in
// depth-first order.
func Leaves(roots []*types.BookmarkNode) []*types.BookmarkNode {
	var out []*types.BookmarkNode
	for _, r := range roots {
		r.Walk(func(n *types.BookmarkNode) {
			if !n.IsFolder() {
				c := *n
				c.Children = nil
				out = append(out, &c)
			}
		})
	}
	return out
}

// ActiveBookmarks flattens roots to the bookmarks with a relationship whose
// tab is still live, wrapped in a synthetic root.
func ActiveBookmarks(roots []*types.BookmarkNode, rel types.Relationships, live map[int]bool) []*types.BookmarkNode {
	root := &types.BookmarkNode{ID: ActiveRootID, Title: "Active bookmarks"}
	for _, leaf := range Leaves(roots) {
		tabID, ok := rel[leaf.ID]
		if !ok || !live[tabID] {
			continue
		}
		leaf.ParentID = ActiveRootID
		leaf.Index = len(root.Children)
		root.Children = append(root.Children, leaf)
	}
	return []*types.BookmarkNode{root}
}

// DomainGroups flattens roots and groups the bookmarks by hostname into
// synthetic folders, sorted by domain and then by title.
func DomainGroups(roots []*types.BookmarkNode) []*types.BookmarkNode {
	groups := make(map[string][]*types.BookmarkNode)
	for _, leaf := range Leaves(roots) {
		host := analyzer.Hostname(leaf.URL)
		groups[host] = append(groups[host], leaf)
	}
	domains := make([]string, 0, len(groups))
	for d := range groups {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	out := make([]*types.BookmarkNode, 0, len(domains))
	for i, d := range domains {
		leaves := groups[d]
		sort.SliceStable(leaves, func(a, b int) bool {
			return strings.ToLower(leaves[a].Title) < strings.ToLower(leaves[b].Title)
		})
		folder := &types.BookmarkNode{ID: DomainPrefix + d, Title: d, Index: i}
		for j, leaf := range leaves {
			leaf.ParentID = folder.ID
			leaf.Index = j
		}
		folder.Children = leaves
		out = append(out, folder)
	}
	return out
}

// Bookmarks projects the bookmark tree for the given mode after applying
// the query filter.
func Bookmarks(roots []*types.BookmarkNode, rel types.Relationships, live map[int]bool, query string, mode types.BookmarkViewMode) []*types.BookmarkNode {
	filtered := FilterTree(roots, query)
	switch mode {
	case types.ViewActive:
		return ActiveBookmarks(filtered, rel, live)
	case types.ViewDomain:
		return DomainGroups(filtered)
	default:
		return filtered
	}
}

// SortTabs returns a sorted copy of tabs. The input order is untouched.
func SortTabs(tabs []types.TabRecord, mode types.TabSortMode) []types.TabRecord {
	out := make([]types.TabRecord, len(tabs))
	copy(out, tabs)
	switch mode {
	case types.SortByLastVisit:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].LastAccessed.After(out[j].LastAccessed)
		})
	case types.SortByDomain:
		sort.SliceStable(out, func(i, j int) bool {
			hi, hj := analyzer.Hostname(out[i].URL), analyzer.Hostname(out[j].URL)
			if hi != hj {
				return hi < hj
			}
			return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].WindowID != out[j].WindowID {
				return out[i].WindowID < out[j].WindowID
			}
			return out[i].Index < out[j].Index
		})
	}
	return out
}

// TabMatches reports whether a tab's title or url contains the query.
func TabMatches(t types.TabRecord, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), q) || strings.Contains(strings.ToLower(t.URL), q)
}

// FilterTabs returns the tabs matching query, preserving order.
func FilterTabs(tabs []types.TabRecord, query string) []types.TabRecord {
	out := make([]types.TabRecord, 0, len(tabs))
	for _, t := range tabs {
		if TabMatches(t, query) {
			out = append(out, t)
		}
	}
	return out
}
