// Package host defines the browser capabilities the mirror consumes: the
// tab directory, the bookmark store, the history index and the stream of
// change notifications they emit.
package host

import (
	"context"
	"errors"
	"time"

	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

var (
	// ErrNotFound means the entity vanished between read and write.
	ErrNotFound = errors.New("not found")
	// ErrUnsupported is returned by read-only hosts for writes.
	ErrUnsupported = errors.New("not supported by this host")
	// ErrDisconnected means no browser is attached to the bridge.
	ErrDisconnected = errors.New("browser not connected")
)

// TabQuery filters QueryTabs. Nil fields match everything.
type TabQuery struct {
	Pinned   *bool
	Active   *bool
	WindowID int
}

// TabUpdate is a partial update: activate, pin/unpin or navigate.
type TabUpdate struct {
	Active *bool
	Pinned *bool
	URL    *string
}

// NewTab describes a tab to create.
type NewTab struct {
	URL      string
	WindowID int
	Active   bool
	Pinned   bool
}

// Destination is the target of a bookmark move. Index is the position in
// the destination's child list after the move.
type Destination struct {
	ParentID string
	Index    int
}

// BookmarkChange is a partial bookmark update.
type BookmarkChange struct {
	Title *string
	URL   *string
}

type TabDirectory interface {
	QueryTabs(ctx context.Context, q TabQuery) ([]types.TabRecord, error)
	GetTab(ctx context.Context, id int) (types.TabRecord, error)
	UpdateTab(ctx context.Context, id int, u TabUpdate) (types.TabRecord, error)
	CreateTab(ctx context.Context, t NewTab) (types.TabRecord, error)
	RemoveTab(ctx context.Context, id int) error
}

type BookmarkStore interface {
	GetTree(ctx context.Context) ([]*types.BookmarkNode, error)
	GetChildren(ctx context.Context, parentID string) ([]*types.BookmarkNode, error)
	GetBookmark(ctx context.Context, id string) (*types.BookmarkNode, error)
	CreateBookmark(ctx context.Context, parentID, title, url string) (*types.BookmarkNode, error)
	UpdateBookmark(ctx context.Context, id string, c BookmarkChange) (*types.BookmarkNode, error)
	MoveBookmark(ctx context.Context, id string, dest Destination) (*types.BookmarkNode, error)
	RemoveBookmark(ctx context.Context, id string) error
	RemoveBookmarkTree(ctx context.Context, id string) error
}

type HistoryIndex interface {
	SearchHistory(ctx context.Context, text string, since time.Time, max int) ([]types.HistoryItem, error)
	DeleteHistoryURL(ctx context.Context, url string) error
}

// EventSource delivers change notifications, one ordered stream per
// collection.
type EventSource interface {
	TabEvents() <-chan TabEvent
	BookmarkEvents() <-chan BookmarkEvent
}

// Host is everything a surface needs from the browser.
type Host interface {
	TabDirectory
	BookmarkStore
	HistoryIndex
	EventSource
}
