package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tektrg/command-bar-extension-sub000/internal/host"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// Command actions understood by the extension.
const (
	ActionQueryTabs          = "tabs.query"
	ActionGetTab             = "tabs.get"
	ActionUpdateTab          = "tabs.update"
	ActionCreateTab          = "tabs.create"
	ActionRemoveTab          = "tabs.remove"
	ActionGetTree            = "bookmarks.getTree"
	ActionGetChildren        = "bookmarks.getChildren"
	ActionGetBookmark        = "bookmarks.get"
	ActionCreateBookmark     = "bookmarks.create"
	ActionUpdateBookmark     = "bookmarks.update"
	ActionMoveBookmark       = "bookmarks.move"
	ActionRemoveBookmark     = "bookmarks.remove"
	ActionRemoveBookmarkTree = "bookmarks.removeTree"
	ActionSearchHistory      = "history.search"
	ActionDeleteHistoryURL   = "history.deleteUrl"
)

var _ host.Host = (*Server)(nil)

func (s *Server) QueryTabs(ctx context.Context, q host.TabQuery) ([]types.TabRecord, error) {
	params := map[string]any{}
	if q.Pinned != nil {
		params["pinned"] = *q.Pinned
	}
	if q.Active != nil {
		params["active"] = *q.Active
	}
	if q.WindowID != 0 {
		params["windowId"] = q.WindowID
	}
	var raw json.RawMessage
	if err := s.call(ctx, ActionQueryTabs, params, &raw); err != nil {
		return nil, err
	}
	return ParseTabs(raw)
}

func (s *Server) GetTab(ctx context.Context, id int) (types.TabRecord, error) {
	var raw json.RawMessage
	if err := s.call(ctx, ActionGetTab, map[string]any{"tabId": id}, &raw); err != nil {
		return types.TabRecord{}, err
	}
	return ParseTab(raw)
}

func (s *Server) UpdateTab(ctx context.Context, id int, u host.TabUpdate) (types.TabRecord, error) {
	props := map[string]any{}
	if u.Active != nil {
		props["active"] = *u.Active
	}
	if u.Pinned != nil {
		props["pinned"] = *u.Pinned
	}
	if u.URL != nil {
		props["url"] = *u.URL
	}
	var raw json.RawMessage
	if err := s.call(ctx, ActionUpdateTab, map[string]any{"tabId": id, "props": props}, &raw); err != nil {
		return types.TabRecord{}, err
	}
	return ParseTab(raw)
}

func (s *Server) CreateTab(ctx context.Context, t host.NewTab) (types.TabRecord, error) {
	params := map[string]any{"url": t.URL, "active": t.Active, "pinned": t.Pinned}
	if t.WindowID != 0 {
		params["windowId"] = t.WindowID
	}
	var raw json.RawMessage
	if err := s.call(ctx, ActionCreateTab, params, &raw); err != nil {
		return types.TabRecord{}, err
	}
	return ParseTab(raw)
}

func (s *Server) RemoveTab(ctx context.Context, id int) error {
	return s.call(ctx, ActionRemoveTab, map[string]any{"tabId": id}, nil)
}

func (s *Server) GetTree(ctx context.Context) ([]*types.BookmarkNode, error) {
	var raw json.RawMessage
	if err := s.call(ctx, ActionGetTree, nil, &raw); err != nil {
		return nil, err
	}
	return ParseBookmarks(raw)
}

func (s *Server) GetChildren(ctx context.Context, parentID string) ([]*types.BookmarkNode, error) {
	var raw json.RawMessage
	if err := s.call(ctx, ActionGetChildren, map[string]any{"id": parentID}, &raw); err != nil {
		return nil, err
	}
	return ParseBookmarks(raw)
}

func (s *Server) GetBookmark(ctx context.Context, id string) (*types.BookmarkNode, error) {
	var raw json.RawMessage
	if err := s.call(ctx, ActionGetBookmark, map[string]any{"id": id}, &raw); err != nil {
		return nil, err
	}
	return ParseBookmark(raw)
}

func (s *Server) CreateBookmark(ctx context.Context, parentID, title, url string) (*types.BookmarkNode, error) {
	params := map[string]any{"parentId": parentID, "title": title}
	if url != "" {
		params["url"] = url
	}
	var raw json.RawMessage
	if err := s.call(ctx, ActionCreateBookmark, params, &raw); err != nil {
		return nil, err
	}
	return ParseBookmark(raw)
}

func (s *Server) UpdateBookmark(ctx context.Context, id string, c host.BookmarkChange) (*types.BookmarkNode, error) {
	changes := map[string]any{}
	if c.Title != nil {
		changes["title"] = *c.Title
	}
	if c.URL != nil {
		changes["url"] = *c.URL
	}
	var raw json.RawMessage
	if err := s.call(ctx, ActionUpdateBookmark, map[string]any{"id": id, "changes": changes}, &raw); err != nil {
		return nil, err
	}
	return ParseBookmark(raw)
}

func (s *Server) MoveBookmark(ctx context.Context, id string, dest host.Destination) (*types.BookmarkNode, error) {
	params := map[string]any{"id": id, "parentId": dest.ParentID, "index": dest.Index}
	var raw json.RawMessage
	if err := s.call(ctx, ActionMoveBookmark, params, &raw); err != nil {
		return nil, err
	}
	return ParseBookmark(raw)
}

func (s *Server) RemoveBookmark(ctx context.Context, id string) error {
	return s.call(ctx, ActionRemoveBookmark, map[string]any{"id": id}, nil)
}

func (s *Server) RemoveBookmarkTree(ctx context.Context, id string) error {
	return s.call(ctx, ActionRemoveBookmarkTree, map[string]any{"id": id}, nil)
}

func (s *Server) SearchHistory(ctx context.Context, text string, since time.Time, max int) ([]types.HistoryItem, error) {
	params := map[string]any{"text": text, "startTime": since.UnixMilli(), "maxResults": max}
	var raw json.RawMessage
	if err := s.call(ctx, ActionSearchHistory, params, &raw); err != nil {
		return nil, err
	}
	return ParseHistory(raw)
}

func (s *Server) DeleteHistoryURL(ctx context.Context, url string) error {
	return s.call(ctx, ActionDeleteHistoryURL, map[string]any{"url": url}, nil)
}
