package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tektrg/command-bar-extension-sub000/internal/host"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// Event types sent by the extension. They follow the WebExtension event
// names.
const (
	EventTabCreated      = "tabs.onCreated"
	EventTabRemoved      = "tabs.onRemoved"
	EventTabUpdated      = "tabs.onUpdated"
	EventTabActivated    = "tabs.onActivated"
	EventTabMoved        = "tabs.onMoved"
	EventBookmarkCreated = "bookmarks.onCreated"
	EventBookmarkMoved   = "bookmarks.onMoved"
	EventBookmarkChanged = "bookmarks.onChanged"
	EventBookmarkRemoved = "bookmarks.onRemoved"
)

type wireTab struct {
	ID           int     `json:"id"`
	WindowID     int     `json:"windowId"`
	Index        int     `json:"index"`
	URL          string  `json:"url"`
	Title        string  `json:"title"`
	FavIconURL   string  `json:"favIconUrl,omitempty"`
	Active       bool    `json:"active"`
	Pinned       bool    `json:"pinned"`
	LastAccessed float64 `json:"lastAccessed"`
}

type wireChange struct {
	URL        *string `json:"url,omitempty"`
	Title      *string `json:"title,omitempty"`
	FavIconURL *string `json:"favIconUrl,omitempty"`
	Pinned     *bool   `json:"pinned,omitempty"`
}

type wireBookmark struct {
	ID       string         `json:"id"`
	ParentID string         `json:"parentId,omitempty"`
	Index    int            `json:"index"`
	Title    string         `json:"title"`
	URL      string         `json:"url,omitempty"`
	Children []wireBookmark `json:"children,omitempty"`
}

type wireHistory struct {
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	VisitCount    int     `json:"visitCount"`
	LastVisitTime float64 `json:"lastVisitTime"`
}

func millis(ms float64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms))
}

func (w wireTab) record() types.TabRecord {
	return types.TabRecord{
		ID:           w.ID,
		WindowID:     w.WindowID,
		Index:        w.Index,
		URL:          w.URL,
		Title:        w.Title,
		Favicon:      w.FavIconURL,
		Active:       w.Active,
		Pinned:       w.Pinned,
		LastAccessed: millis(w.LastAccessed),
	}
}

func (w wireBookmark) node() *types.BookmarkNode {
	n := &types.BookmarkNode{
		ID:       w.ID,
		ParentID: w.ParentID,
		Index:    w.Index,
		Title:    w.Title,
		URL:      w.URL,
	}
	for _, c := range w.Children {
		child := c.node()
		if child.ParentID == "" {
			child.ParentID = n.ID
		}
		n.Children = append(n.Children, child)
	}
	return n
}

// ParseTab converts a raw JSON tab into a TabRecord.
func ParseTab(raw json.RawMessage) (types.TabRecord, error) {
	var wt wireTab
	if err := json.Unmarshal(raw, &wt); err != nil {
		return types.TabRecord{}, fmt.Errorf("parse tab: %w", err)
	}
	return wt.record(), nil
}

// ParseTabs converts a raw JSON tab list.
func ParseTabs(raw json.RawMessage) ([]types.TabRecord, error) {
	var wts []wireTab
	if err := json.Unmarshal(raw, &wts); err != nil {
		return nil, fmt.Errorf("parse tabs: %w", err)
	}
	out := make([]types.TabRecord, 0, len(wts))
	for _, wt := range wts {
		out = append(out, wt.record())
	}
	return out, nil
}

// ParseBookmark converts a raw JSON bookmark node and its children.
func ParseBookmark(raw json.RawMessage) (*types.BookmarkNode, error) {
	var wb wireBookmark
	if err := json.Unmarshal(raw, &wb); err != nil {
		return nil, fmt.Errorf("parse bookmark: %w", err)
	}
	return wb.node(), nil
}

// ParseBookmarks converts a raw JSON bookmark list, such as the result of
// getTree or getChildren.
func ParseBookmarks(raw json.RawMessage) ([]*types.BookmarkNode, error) {
	var wbs []wireBookmark
	if err := json.Unmarshal(raw, &wbs); err != nil {
		return nil, fmt.Errorf("parse bookmarks: %w", err)
	}
	out := make([]*types.BookmarkNode, 0, len(wbs))
	for _, wb := range wbs {
		out = append(out, wb.node())
	}
	return out, nil
}

// ParseHistory converts a raw JSON history result.
func ParseHistory(raw json.RawMessage) ([]types.HistoryItem, error) {
	var whs []wireHistory
	if err := json.Unmarshal(raw, &whs); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	out := make([]types.HistoryItem, 0, len(whs))
	for _, wh := range whs {
		out = append(out, types.HistoryItem{
			URL:           wh.URL,
			Title:         wh.Title,
			VisitCount:    wh.VisitCount,
			LastVisitTime: millis(wh.LastVisitTime),
		})
	}
	return out, nil
}

// ParseTabEvent converts an incoming tab notification.
func ParseTabEvent(msg IncomingMsg) (host.TabEvent, error) {
	ev := host.TabEvent{
		TabID:     msg.TabID,
		WindowID:  msg.WindowID,
		FromIndex: msg.FromIndex,
		ToIndex:   msg.ToIndex,
	}
	switch msg.Type {
	case EventTabCreated:
		ev.Kind = host.TabCreated
	case EventTabRemoved:
		ev.Kind = host.TabRemoved
	case EventTabUpdated:
		ev.Kind = host.TabUpdated
	case EventTabActivated:
		ev.Kind = host.TabActivated
	case EventTabMoved:
		ev.Kind = host.TabMoved
	default:
		return ev, fmt.Errorf("unknown tab event %q", msg.Type)
	}
	if len(msg.Tab) > 0 {
		t, err := ParseTab(msg.Tab)
		if err != nil {
			return ev, err
		}
		ev.Tab = &t
		if ev.TabID == 0 {
			ev.TabID = t.ID
		}
		if ev.WindowID == 0 {
			ev.WindowID = t.WindowID
		}
	}
	if len(msg.Change) > 0 {
		var wc wireChange
		if err := json.Unmarshal(msg.Change, &wc); err != nil {
			return ev, fmt.Errorf("parse change: %w", err)
		}
		ev.Change = &host.TabChange{Title: wc.Title, URL: wc.URL, Favicon: wc.FavIconURL, Pinned: wc.Pinned}
	}
	return ev, nil
}

// ParseBookmarkEvent converts an incoming bookmark notification.
func ParseBookmarkEvent(msg IncomingMsg) (host.BookmarkEvent, error) {
	ev := host.BookmarkEvent{
		ID:          msg.BookmarkID,
		ParentID:    msg.ParentID,
		Index:       msg.Index,
		OldParentID: msg.OldParentID,
		OldIndex:    msg.OldIndex,
		Title:       msg.Title,
		URL:         msg.URL,
	}
	switch msg.Type {
	case EventBookmarkCreated:
		ev.Kind = host.BookmarkCreated
	case EventBookmarkMoved:
		ev.Kind = host.BookmarkMoved
	case EventBookmarkChanged:
		ev.Kind = host.BookmarkChanged
	case EventBookmarkRemoved:
		ev.Kind = host.BookmarkRemoved
	default:
		return ev, fmt.Errorf("unknown bookmark event %q", msg.Type)
	}
	if len(msg.Node) > 0 {
		n, err := ParseBookmark(msg.Node)
		if err != nil {
			return ev, err
		}
		ev.Node = n
		if ev.ID == "" {
			ev.ID = n.ID
		}
	}
	return ev, nil
}
