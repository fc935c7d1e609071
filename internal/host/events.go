package host

import (
	"fmt"

	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

type TabEventKind int

const (
	TabCreated TabEventKind = iota
	TabRemoved
	TabUpdated
	TabActivated
	TabMoved
)

func (k TabEventKind) String() string {
	switch k {
	case TabCreated:
		return "created"
	case TabRemoved:
		return "removed"
	case TabUpdated:
		return "updated"
	case TabActivated:
		return "activated"
	case TabMoved:
		return "moved"
	}
	return fmt.Sprintf("tab-event-%d", int(k))
}

// TabChange lists the fields an update touched. Nil means unchanged.
type TabChange struct {
	Title   *string
	URL     *string
	Favicon *string
	Pinned  *bool
}

// TabEvent is a tab change notification. Tab carries the full post-change
// state when the host provides it (created, updated).
type TabEvent struct {
	Kind     TabEventKind
	TabID    int
	WindowID int
	Tab      *types.TabRecord
	Change   *TabChange
	// FromIndex and ToIndex are set for moves.
	FromIndex int
	ToIndex   int
}

type BookmarkEventKind int

const (
	BookmarkCreated BookmarkEventKind = iota
	BookmarkMoved
	BookmarkChanged
	BookmarkRemoved
)

func (k BookmarkEventKind) String() string {
	switch k {
	case BookmarkCreated:
		return "created"
	case BookmarkMoved:
		return "moved"
	case BookmarkChanged:
		return "changed"
	case BookmarkRemoved:
		return "removed"
	}
	return fmt.Sprintf("bookmark-event-%d", int(k))
}

// BookmarkEvent is a bookmark change notification.
type BookmarkEvent struct {
	Kind BookmarkEventKind
	ID   string
	// Node is the created node, or the removed subtree.
	Node        *types.BookmarkNode
	ParentID    string
	Index       int
	OldParentID string
	OldIndex    int
	// Title and URL are set for changes.
	Title *string
	URL   *string
}
