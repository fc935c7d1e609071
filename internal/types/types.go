package types

import "time"

// TabRecord is a snapshot of a single browser tab. The host owns the tab;
// the mirror only ever holds copies.
type TabRecord struct {
	ID           int
	WindowID     int
	Index        int
	Title        string
	URL          string
	Favicon      string
	Active       bool
	Pinned       bool
	LastAccessed time.Time
}

// BookmarkNode is a bookmark (URL set) or a folder (URL empty).
type BookmarkNode struct {
	ID       string
	ParentID string // empty for roots
	Index    int
	Title    string
	URL      string
	Children []*BookmarkNode
}

// IsFolder reports whether the node is a folder.
func (n *BookmarkNode) IsFolder() bool {
	return n.URL == ""
}

// Clone returns a deep copy of the node and its subtree.
func (n *BookmarkNode) Clone() *BookmarkNode {
	if n == nil {
		return nil
	}
	c := *n
	if n.Children != nil {
		c.Children = make([]*BookmarkNode, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return &c
}

// Walk visits n and every descendant in depth-first order.
func (n *BookmarkNode) Walk(fn func(*BookmarkNode)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// HistoryItem is a single visited url.
type HistoryItem struct {
	URL           string
	Title         string
	VisitCount    int
	LastVisitTime time.Time
}

// PinnedTabEntry is a persisted pinned tab. TabID is transient: it is set
// only while a matching tab is open.
type PinnedTabEntry struct {
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Favicon  string    `json:"favicon,omitempty"`
	PinnedAt time.Time `json:"pinnedAt"`
	TabID    *int      `json:"tabId,omitempty"`
}

// DatedLinkEntry assigns a user date to a url.
type DatedLinkEntry struct {
	URL   string    `json:"url"`
	Title string    `json:"title"`
	Date  time.Time `json:"date"`
}

// ItemType identifies what is being dragged.
type ItemType string

const (
	ItemBookmark ItemType = "bookmark"
	ItemFolder   ItemType = "folder"
	ItemTab      ItemType = "tab"
)

// DragItem describes the dragged entity.
type DragItem struct {
	ID       string
	Type     ItemType
	ParentID string
	Index    int
}

// DragState tracks an in-flight drag.
type DragState struct {
	IsDragging  bool
	Item        *DragItem
	DraggedType ItemType
}

// TabSortMode controls tab ordering.
type TabSortMode string

const (
	SortByPosition  TabSortMode = "position"
	SortByLastVisit TabSortMode = "lastVisit"
	SortByDomain    TabSortMode = "domain"
)

// BookmarkViewMode controls how the bookmark tree is projected.
type BookmarkViewMode string

const (
	ViewFolder BookmarkViewMode = "folder"
	ViewActive BookmarkViewMode = "active"
	ViewDomain BookmarkViewMode = "domain"
)

// Relationships maps bookmark id to the id of its live tab.
type Relationships map[string]int

// Profile is a Firefox profile used by the offline host.
type Profile struct {
	Name       string
	Path       string // absolute path to profile directory
	IsDefault  bool
	IsRelative bool
}
