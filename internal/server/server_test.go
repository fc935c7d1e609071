package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/tektrg/command-bar-extension-sub000/internal/bus"
	"github.com/tektrg/command-bar-extension-sub000/internal/host"
)

// dialExtension connects a fake extension to srv and waits until the
// server has registered it.
func dialExtension(t *testing.T, srv *Server) (*websocket.Conn, context.Context) {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	deadline := time.Now().Add(2 * time.Second)
	for !srv.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("server never registered the connection")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn, ctx
}

func readCommand(t *testing.T, ctx context.Context, conn *websocket.Conn) OutgoingMsg {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Errorf("read: %v", err)
		return OutgoingMsg{}
	}
	var got OutgoingMsg
	if err := json.Unmarshal(data, &got); err != nil {
		t.Errorf("unmarshal: %v", err)
	}
	return got
}

func reply(t *testing.T, ctx context.Context, conn *websocket.Conn, v any) {
	t.Helper()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Errorf("write: %v", err)
	}
}

func TestCallRoundTrip(t *testing.T) {
	srv := New(0)
	conn, ctx := dialExtension(t, srv)

	go func() {
		cmd := readCommand(t, ctx, conn)
		if cmd.Action != ActionQueryTabs {
			t.Errorf("action = %q, want %q", cmd.Action, ActionQueryTabs)
		}
		ok := true
		reply(t, ctx, conn, map[string]any{
			"id": cmd.ID,
			"ok": ok,
			"result": []map[string]any{
				{"id": 7, "windowId": 1, "url": "https://go.dev", "title": "Go", "pinned": true, "lastAccessed": 1700000000000},
			},
		})
	}()

	pinned := true
	tabs, err := srv.QueryTabs(ctx, host.TabQuery{Pinned: &pinned})
	if err != nil {
		t.Fatalf("QueryTabs: %v", err)
	}
	if len(tabs) != 1 || tabs[0].ID != 7 || !tabs[0].Pinned {
		t.Fatalf("tabs = %+v", tabs)
	}
	if tabs[0].LastAccessed.UnixMilli() != 1700000000000 {
		t.Errorf("lastAccessed = %v", tabs[0].LastAccessed)
	}
}

func TestCallNotFound(t *testing.T) {
	srv := New(0)
	conn, ctx := dialExtension(t, srv)

	go func() {
		cmd := readCommand(t, ctx, conn)
		reply(t, ctx, conn, map[string]any{"id": cmd.ID, "ok": false, "code": ErrorCodeNotFound, "error": "No tab with id: 9"})
	}()

	err := srv.RemoveTab(ctx, 9)
	if !errors.Is(err, host.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCallPlainError(t *testing.T) {
	srv := New(0)
	conn, ctx := dialExtension(t, srv)

	go func() {
		cmd := readCommand(t, ctx, conn)
		reply(t, ctx, conn, map[string]any{"id": cmd.ID, "ok": false, "error": "Can't move root"})
	}()

	_, err := srv.MoveBookmark(ctx, "1", host.Destination{ParentID: "2"})
	if err == nil || errors.Is(err, host.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "Can't move root") {
		t.Errorf("err = %v", err)
	}
}

func TestCallWithoutExtension(t *testing.T) {
	srv := New(0)
	_, err := srv.GetTree(context.Background())
	if !errors.Is(err, host.ErrDisconnected) {
		t.Fatalf("err = %v, want ErrDisconnected", err)
	}
}

func TestPendingCallsFailOnDisconnect(t *testing.T) {
	srv := New(0)
	conn, ctx := dialExtension(t, srv)

	go func() {
		readCommand(t, ctx, conn)
		conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	_, err := srv.GetBookmark(ctx, "5")
	if !errors.Is(err, host.ErrDisconnected) {
		t.Fatalf("err = %v, want ErrDisconnected", err)
	}
}

func TestCallTimeout(t *testing.T) {
	srv := New(0)
	srv.CallTimeout = 50 * time.Millisecond
	conn, ctx := dialExtension(t, srv)

	go readCommand(t, ctx, conn)

	err := srv.DeleteHistoryURL(context.Background(), "https://a.com")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestEventsDispatched(t *testing.T) {
	srv := New(0)
	conn, ctx := dialExtension(t, srv)

	reply(t, ctx, conn, map[string]any{
		"type":  EventTabUpdated,
		"tabId": 3,
		"change": map[string]any{
			"title": "New title",
		},
	})
	reply(t, ctx, conn, map[string]any{
		"type":        EventBookmarkMoved,
		"bookmarkId":  "12",
		"parentId":    "2",
		"index":       0,
		"oldParentId": "1",
		"oldIndex":    4,
	})

	select {
	case ev := <-srv.TabEvents():
		if ev.Kind != host.TabUpdated || ev.TabID != 3 || ev.Change == nil || *ev.Change.Title != "New title" {
			t.Errorf("tab event = %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for tab event")
	}
	select {
	case ev := <-srv.BookmarkEvents():
		if ev.Kind != host.BookmarkMoved || ev.ID != "12" || ev.OldIndex != 4 {
			t.Errorf("bookmark event = %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for bookmark event")
	}
}

func TestForwardRelaysBus(t *testing.T) {
	srv := New(0)
	conn, ctx := dialExtension(t, srv)

	b := bus.New()
	defer b.Close()
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go srv.Forward(fctx, b)

	deadline := time.Now().Add(2 * time.Second)
	for b.Publish(bus.Message{Topic: bus.TopicSliceChanged, Slice: "pinnedTabs"}) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("forwarder never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := readCommand(t, ctx, conn)
	if got.Action != "notify" || got.Topic != bus.TopicSliceChanged || got.Slice != "pinnedTabs" {
		t.Errorf("got %+v", got)
	}
}

func TestWaitConnected(t *testing.T) {
	srv := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := srv.WaitConnected(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitConnected without extension = %v", err)
	}

	dialExtension(t, srv)
	if err := srv.WaitConnected(context.Background()); err != nil {
		t.Fatalf("WaitConnected = %v", err)
	}
}
