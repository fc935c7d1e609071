package server

import (
	"encoding/json"
	"testing"

	"github.com/tektrg/command-bar-extension-sub000/internal/host"
)

func TestParseBookmarksTree(t *testing.T) {
	raw := json.RawMessage(`[{
		"id": "0", "title": "",
		"children": [
			{"id": "1", "parentId": "0", "index": 0, "title": "Bookmarks Toolbar", "children": [
				{"id": "10", "index": 0, "title": "Go", "url": "https://go.dev"}
			]},
			{"id": "2", "parentId": "0", "index": 1, "title": "Other Bookmarks"}
		]
	}]`)

	roots, err := ParseBookmarks(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(roots) != 1 || len(roots[0].Children) != 2 {
		t.Fatalf("roots = %+v", roots)
	}
	toolbar := roots[0].Children[0]
	if toolbar.Title != "Bookmarks Toolbar" || len(toolbar.Children) != 1 {
		t.Fatalf("toolbar = %+v", toolbar)
	}
	leaf := toolbar.Children[0]
	if leaf.ParentID != "1" {
		t.Errorf("missing parentId not filled from parent: %q", leaf.ParentID)
	}
	if leaf.URL != "https://go.dev" {
		t.Errorf("url = %q", leaf.URL)
	}
}

func TestParseHistory(t *testing.T) {
	raw := json.RawMessage(`[
		{"url": "https://a.com", "title": "A", "visitCount": 3, "lastVisitTime": 1700000000000.5},
		{"url": "https://b.com", "title": "B"}
	]`)
	items, err := ParseHistory(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d", len(items))
	}
	if items[0].VisitCount != 3 || items[0].LastVisitTime.UnixMilli() != 1700000000000 {
		t.Errorf("first = %+v", items[0])
	}
	if !items[1].LastVisitTime.IsZero() {
		t.Errorf("missing visit time should stay zero, got %v", items[1].LastVisitTime)
	}
}

func TestParseTabEvent(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want host.TabEventKind
		id   int
	}{
		{"created", `{"type":"tabs.onCreated","tab":{"id":4,"windowId":2,"url":"https://x.com"}}`, host.TabCreated, 4},
		{"removed", `{"type":"tabs.onRemoved","tabId":4,"windowId":2}`, host.TabRemoved, 4},
		{"activated", `{"type":"tabs.onActivated","tabId":5,"windowId":2}`, host.TabActivated, 5},
		{"moved", `{"type":"tabs.onMoved","tabId":6,"windowId":1,"fromIndex":0,"toIndex":3}`, host.TabMoved, 6},
		{"updated", `{"type":"tabs.onUpdated","tabId":7,"change":{"url":"https://y.com","pinned":true}}`, host.TabUpdated, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg IncomingMsg
			if err := json.Unmarshal([]byte(tt.msg), &msg); err != nil {
				t.Fatal(err)
			}
			ev, err := ParseTabEvent(msg)
			if err != nil {
				t.Fatal(err)
			}
			if ev.Kind != tt.want || ev.TabID != tt.id {
				t.Errorf("got kind=%v id=%d, want %v %d", ev.Kind, ev.TabID, tt.want, tt.id)
			}
		})
	}
}

func TestParseTabEventDetails(t *testing.T) {
	var msg IncomingMsg
	json.Unmarshal([]byte(`{"type":"tabs.onCreated","tab":{"id":4,"windowId":2,"url":"https://x.com","favIconUrl":"https://x.com/f.ico"}}`), &msg)
	ev, err := ParseTabEvent(msg)
	if err != nil {
		t.Fatal(err)
	}
	if ev.WindowID != 2 || ev.Tab == nil || ev.Tab.Favicon != "https://x.com/f.ico" {
		t.Errorf("created = %+v", ev)
	}

	msg = IncomingMsg{}
	json.Unmarshal([]byte(`{"type":"tabs.onUpdated","tabId":7,"change":{"url":"https://y.com","pinned":false}}`), &msg)
	ev, err = ParseTabEvent(msg)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Change == nil || ev.Change.URL == nil || *ev.Change.URL != "https://y.com" {
		t.Fatalf("change = %+v", ev.Change)
	}
	if ev.Change.Pinned == nil || *ev.Change.Pinned {
		t.Errorf("pinned=false must survive as a non-nil false")
	}
	if ev.Change.Title != nil {
		t.Errorf("absent title should be nil")
	}
}

func TestParseBookmarkEvent(t *testing.T) {
	var msg IncomingMsg
	json.Unmarshal([]byte(`{"type":"bookmarks.onCreated","node":{"id":"30","parentId":"2","index":1,"title":"New","url":"https://n.com"}}`), &msg)
	ev, err := ParseBookmarkEvent(msg)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != host.BookmarkCreated || ev.ID != "30" || ev.Node == nil || ev.Node.URL != "https://n.com" {
		t.Errorf("created = %+v", ev)
	}

	msg = IncomingMsg{}
	json.Unmarshal([]byte(`{"type":"bookmarks.onChanged","bookmarkId":"30","title":"Renamed"}`), &msg)
	ev, err = ParseBookmarkEvent(msg)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != host.BookmarkChanged || ev.Title == nil || *ev.Title != "Renamed" || ev.URL != nil {
		t.Errorf("changed = %+v", ev)
	}
}

func TestParseUnknownEvent(t *testing.T) {
	if _, err := ParseTabEvent(IncomingMsg{Type: "tabs.onZoomChange"}); err == nil {
		t.Error("expected error for unknown tab event")
	}
	if _, err := ParseBookmarkEvent(IncomingMsg{Type: "bookmarks.onImportEnded"}); err == nil {
		t.Error("expected error for unknown bookmark event")
	}
}
