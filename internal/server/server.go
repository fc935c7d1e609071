package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/tektrg/command-bar-extension-sub000/internal/applog"
	"github.com/tektrg/command-bar-extension-sub000/internal/bus"
	"github.com/tektrg/command-bar-extension-sub000/internal/host"
)

// IncomingMsg is a message from the extension: a browser notification
// (Type set) or the response to a command (ID set).
type IncomingMsg struct {
	Type string `json:"type,omitempty"`

	// Command response fields
	ID     string          `json:"id,omitempty"`
	OK     *bool           `json:"ok,omitempty"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`

	// Tab notification fields
	Tab       json.RawMessage `json:"tab,omitempty"`
	Change    json.RawMessage `json:"change,omitempty"`
	TabID     int             `json:"tabId,omitempty"`
	WindowID  int             `json:"windowId,omitempty"`
	FromIndex int             `json:"fromIndex,omitempty"`
	ToIndex   int             `json:"toIndex,omitempty"`

	// Bookmark notification fields
	Node        json.RawMessage `json:"node,omitempty"`
	BookmarkID  string          `json:"bookmarkId,omitempty"`
	ParentID    string          `json:"parentId,omitempty"`
	Index       int             `json:"index,omitempty"`
	OldParentID string          `json:"oldParentId,omitempty"`
	OldIndex    int             `json:"oldIndex,omitempty"`
	Title       *string         `json:"title,omitempty"`
	URL         *string         `json:"url,omitempty"`
}

// OutgoingMsg is a command to the extension, or a fire-and-forget
// notification when ID is empty.
type OutgoingMsg struct {
	ID     string `json:"id,omitempty"`
	Action string `json:"action"`
	Params any    `json:"params,omitempty"`
	Topic  string `json:"topic,omitempty"`
	Slice  string `json:"slice,omitempty"`
}

// ErrorCodeNotFound is the response code for a vanished entity.
const ErrorCodeNotFound = "notFound"

// DefaultCallTimeout bounds a command round trip.
const DefaultCallTimeout = 10 * time.Second

// Server manages the WebSocket connection to the extension and exposes the
// browser behind it as a host.Host.
type Server struct {
	port    int
	mu      sync.Mutex
	conn    *websocket.Conn
	connCtx context.Context
	pending map[string]chan IncomingMsg
	seq     atomic.Uint64

	tabEvents chan host.TabEvent
	bmEvents  chan host.BookmarkEvent

	// CallTimeout bounds each command when the caller's context has no
	// deadline.
	CallTimeout time.Duration
}

// New creates a new Server. Port 0 means the caller manages the listener.
func New(port int) *Server {
	return &Server{
		port:        port,
		pending:     make(map[string]chan IncomingMsg),
		tabEvents:   make(chan host.TabEvent, 256),
		bmEvents:    make(chan host.BookmarkEvent, 256),
		CallTimeout: DefaultCallTimeout,
	}
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

func (s *Server) TabEvents() <-chan host.TabEvent           { return s.tabEvents }
func (s *Server) BookmarkEvents() <-chan host.BookmarkEvent { return s.bmEvents }

// Connected reports whether an extension is connected.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// WaitConnected blocks until an extension connects or ctx is done.
func (s *Server) WaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for !s.Connected() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Send writes msg to the connected extension.
func (s *Server) Send(msg OutgoingMsg) error {
	s.mu.Lock()
	conn := s.conn
	ctx := s.connCtx
	s.mu.Unlock()

	if conn == nil {
		return host.ErrDisconnected
	}

	applog.Info("ws.send", "action", msg.Action, "id", msg.ID)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// call sends a command and waits for its response. A non-nil out receives
// the decoded result.
func (s *Server) call(ctx context.Context, action string, params any, out any) error {
	if _, ok := ctx.Deadline(); !ok && s.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.CallTimeout)
		defer cancel()
	}

	id := "cmd-" + strconv.FormatUint(s.seq.Add(1), 10)
	resp := make(chan IncomingMsg, 1)
	s.mu.Lock()
	s.pending[id] = resp
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.Send(OutgoingMsg{ID: id, Action: action, Params: params}); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", action, ctx.Err())
	case msg, ok := <-resp:
		if !ok {
			return fmt.Errorf("%s: %w", action, host.ErrDisconnected)
		}
		if msg.OK != nil && !*msg.OK {
			if msg.Code == ErrorCodeNotFound {
				return fmt.Errorf("%s: %s: %w", action, msg.Error, host.ErrNotFound)
			}
			return fmt.Errorf("%s: %s", action, msg.Error)
		}
		if out != nil && len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, out); err != nil {
				return fmt.Errorf("%s: decode result: %w", action, err)
			}
		}
		return nil
	}
}

// Forward relays bus notifications to the extension until ctx is cancelled,
// so browser-side surfaces can invalidate their state too.
func (s *Server) Forward(ctx context.Context, b *bus.Bus) {
	msgs, unsubscribe := b.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			err := s.Send(OutgoingMsg{Action: "notify", Topic: msg.Topic, Slice: msg.Slice})
			if err != nil && !errors.Is(err, host.ErrDisconnected) {
				applog.Error("ws.forward", err, "topic", msg.Topic)
			}
		}
	}
}

func (s *Server) dispatch(ctx context.Context, msg IncomingMsg) {
	if msg.Type == "" {
		s.mu.Lock()
		resp, ok := s.pending[msg.ID]
		s.mu.Unlock()
		if !ok {
			applog.Warn("ws.response.orphan", "id", msg.ID)
			return
		}
		resp <- msg
		return
	}

	switch {
	case strings.HasPrefix(msg.Type, "tabs."):
		ev, err := ParseTabEvent(msg)
		if err != nil {
			applog.Error("ws.parse.tab", err)
			return
		}
		select {
		case s.tabEvents <- ev:
		case <-ctx.Done():
		}
	case strings.HasPrefix(msg.Type, "bookmarks."):
		ev, err := ParseBookmarkEvent(msg)
		if err != nil {
			applog.Error("ws.parse.bookmark", err)
			return
		}
		select {
		case s.bmEvents <- ev:
		case <-ctx.Done():
		}
	default:
		applog.Warn("ws.unknown", "type", msg.Type)
	}
}

// Handler returns an http.Handler that accepts WebSocket upgrades.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			applog.Error("ws.accept", err)
			return
		}

		conn.SetReadLimit(16 << 20) // bookmark trees can be large

		ctx := r.Context()
		s.mu.Lock()
		if s.conn != nil {
			applog.Info("ws.replaced")
			s.conn.CloseNow()
		}
		s.conn = conn
		s.connCtx = ctx
		s.mu.Unlock()

		applog.Info("ws.connected", "remote", r.RemoteAddr)

		defer func() {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
				s.connCtx = nil
				for id, ch := range s.pending {
					close(ch)
					delete(s.pending, id)
				}
			}
			s.mu.Unlock()
			conn.CloseNow()
			applog.Info("ws.disconnected")
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg IncomingMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				applog.Error("ws.parse", err)
				continue
			}
			applog.Info("ws.recv", "type", msg.Type, "id", msg.ID)
			s.dispatch(ctx, msg)
		}
	})
}

// ListenAndServe serves handler on the configured port until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context, handler http.Handler) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	applog.Info("server.start", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: handler}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
