// Package hub multiplexes live rollout tailers to WebSocket subscribers and
// announces newly created sessions.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"

	"github.com/codex-agent/codexd/internal/index"
	"github.com/codex-agent/codexd/internal/tail"
)

const sendBufferSize = 32

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The server binds to loopback; browser clients are local tools.
	CheckOrigin: func(*http.Request) bool { return true },
}

// inboundMsg is one client control message.
type inboundMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
}

// outboundMsg is one server-to-client message.
type outboundMsg struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Path      string          `json:"path,omitempty"`
	Line      json.RawMessage `json:"line,omitempty"`
}

type conn struct {
	ws   *websocket.Conn
	send chan outboundMsg

	mu       sync.Mutex
	sessions map[string]bool // subscribed session ids
	wantsNew bool
	closed   bool
}

// enqueue delivers a message with drop-oldest backpressure: when the buffer
// is full the oldest pending message is discarded to make room.
func (c *conn) enqueue(msg outboundMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- msg:
		default:
		}
	}
}

type tailerRef struct {
	tailer      *tail.Tailer
	listenerID  int
	sessionID   string
	subscribers map[*conn]bool
}

// Hub owns the per-path tailers and the connection registry.
type Hub struct {
	idx    *index.Index
	logger *slog.Logger

	mu      sync.Mutex
	conns   map[*conn]bool
	tailers map[string]*tailerRef // rollout path -> ref

	watchCancel context.CancelFunc
}

// New creates a hub over the given session index.
func New(idx *index.Index, logger *slog.Logger) *Hub {
	return &Hub{
		idx:     idx,
		logger:  logger.With("component", "hub"),
		conns:   make(map[*conn]bool),
		tailers: make(map[string]*tailerRef),
	}
}

// Start launches the new-session directory watch.
func (h *Hub) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.watchCancel = cancel
	go h.watchNewSessions(ctx)
}

// Stop tears down the directory watch and all tailers.
func (h *Hub) Stop() {
	if h.watchCancel != nil {
		h.watchCancel()
	}
	h.mu.Lock()
	refs := make([]*tailerRef, 0, len(h.tailers))
	for _, ref := range h.tailers {
		refs = append(refs, ref)
	}
	h.tailers = make(map[string]*tailerRef)
	h.mu.Unlock()
	for _, ref := range refs {
		ref.tailer.RemoveListener(ref.listenerID)
		ref.tailer.Stop()
	}
}

// ServeWS upgrades the request and runs the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &conn{
		ws:       ws,
		send:     make(chan outboundMsg, sendBufferSize),
		sessions: make(map[string]bool),
	}
	h.mu.Lock()
	h.conns[c] = true
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(r.Context(), c)
	h.dropConn(c)
}

func (h *Hub) writePump(c *conn) {
	for msg := range c.send {
		if err := c.ws.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (h *Hub) readPump(ctx context.Context, c *conn) {
	c.ws.SetReadLimit(64 * 1024)
	for {
		var msg inboundMsg
		if err := c.ws.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "subscribe_session":
			if msg.SessionID != "" {
				h.subscribeSession(ctx, c, msg.SessionID)
			}
		case "unsubscribe_session":
			h.unsubscribeSession(c, msg.SessionID)
		case "subscribe_new_sessions":
			c.mu.Lock()
			c.wantsNew = true
			c.mu.Unlock()
		case "unsubscribe_new_sessions":
			c.mu.Lock()
			c.wantsNew = false
			c.mu.Unlock()
		default:
			h.logger.Debug("unknown client message", "type", msg.Type)
		}
	}
}

func (h *Hub) subscribeSession(ctx context.Context, c *conn, sessionID string) {
	sess, err := h.idx.FindByID(ctx, sessionID)
	if err != nil {
		c.enqueue(outboundMsg{Type: "error", SessionID: sessionID})
		return
	}

	c.mu.Lock()
	c.sessions[sessionID] = true
	c.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	ref, ok := h.tailers[sess.RolloutPath]
	if !ok {
		t := tail.New(sess.RolloutPath, h.logger)
		ref = &tailerRef{tailer: t, sessionID: sessionID, subscribers: make(map[*conn]bool)}
		path := sess.RolloutPath
		ref.listenerID = t.AddListener(func(ev tail.Event) { h.fanOut(path, ev) })
		h.tailers[sess.RolloutPath] = ref
		t.Start()
	}
	ref.subscribers[c] = true
}

func (h *Hub) unsubscribeSession(c *conn, sessionID string) {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()

	h.mu.Lock()
	var stop *tailerRef
	for path, ref := range h.tailers {
		if ref.sessionID != sessionID {
			continue
		}
		delete(ref.subscribers, c)
		if len(ref.subscribers) == 0 {
			delete(h.tailers, path)
			stop = ref
		}
	}
	h.mu.Unlock()

	if stop != nil {
		stop.tailer.RemoveListener(stop.listenerID)
		stop.tailer.Stop()
	}
}

func (h *Hub) dropConn(c *conn) {
	c.mu.Lock()
	sessions := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		sessions = append(sessions, id)
	}
	c.closed = true
	c.mu.Unlock()

	for _, id := range sessions {
		h.unsubscribeSession(c, id)
	}

	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()

	close(c.send)
	_ = c.ws.Close()
}

// fanOut forwards one tailer event to every subscriber of its session.
func (h *Hub) fanOut(path string, ev tail.Event) {
	if ev.Type != tail.EventLine {
		return
	}

	h.mu.Lock()
	ref, ok := h.tailers[path]
	if !ok {
		h.mu.Unlock()
		return
	}
	sessionID := ref.sessionID
	subs := make([]*conn, 0, len(ref.subscribers))
	for c := range ref.subscribers {
		subs = append(subs, c)
	}
	h.mu.Unlock()

	msg := outboundMsg{Type: "session_event", SessionID: sessionID, Line: ev.Line.Raw}
	for _, c := range subs {
		c.enqueue(msg)
	}
}

// watchNewSessions announces rollout files created under the sessions tree.
// New day directories appear over time, so directory creations are added to
// the watch as they happen.
func (h *Hub) watchNewSessions(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		h.logger.Warn("new-session watch unavailable", "error", err)
		return
	}
	defer func() { _ = watcher.Close() }()

	sessionsDir := filepath.Join(h.idx.Home(), "sessions")
	addTree(watcher, sessionsDir)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(ev.Name)
			if strings.HasPrefix(name, "rollout-") && strings.HasSuffix(name, ".jsonl") {
				h.broadcastNewSession(ev.Name)
				continue
			}
			// Likely a new date directory; extend the watch.
			addTree(watcher, ev.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			h.logger.Debug("session watch error", "error", err)
		}
	}
}

func addTree(watcher *fsnotify.Watcher, root string) {
	_ = watcher.Add(root)
	entries, err := filepath.Glob(filepath.Join(root, "*"))
	if err != nil {
		return
	}
	for _, e := range entries {
		if isDir(e) {
			addTree(watcher, e)
		}
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (h *Hub) broadcastNewSession(path string) {
	h.mu.Lock()
	subs := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		c.mu.Lock()
		if c.wantsNew {
			subs = append(subs, c)
		}
		c.mu.Unlock()
	}
	h.mu.Unlock()

	msg := outboundMsg{Type: "new_session", Path: path}
	for _, c := range subs {
		c.enqueue(msg)
	}
}
