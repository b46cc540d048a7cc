package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codex-agent/codexd/internal/index"
)

const testSessionID = "0191b2c3-d4e5-7f60-8192-a3b4c5d6e7f8"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeSessionFile(t *testing.T, home string) string {
	t.Helper()
	dir := filepath.Join(home, "sessions", "2026", "08", "26")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "rollout-2026-08-26T10-00-00-"+testSessionID+".jsonl")
	header := fmt.Sprintf(`{"timestamp":"2026-08-26T10:00:00Z","type":"session_meta","payload":{"meta":{"id":%q,"timestamp":"2026-08-26T10:00:00Z","cwd":"/work","source":"cli","cli_version":"1.0.0"}}}`, testSessionID)
	if err := os.WriteFile(path, []byte(header+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatal(err)
	}
}

func httpHandlerFunc(h *Hub) http.HandlerFunc {
	return h.ServeWS
}

func TestSubscribeSessionReceivesAppendedLines(t *testing.T) {
	home := t.TempDir()
	path := writeSessionFile(t, home)

	idx := index.New(home, testLogger())
	h := New(idx, testLogger())
	defer h.Stop()

	srv := httptest.NewServer(httpHandlerFunc(h))
	defer srv.Close()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = ws.Close() }()

	if err := ws.WriteJSON(map[string]string{"type": "subscribe_session", "sessionId": testSessionID}); err != nil {
		t.Fatal(err)
	}

	// The tailer starts at EOF; give it a moment before appending.
	time.Sleep(300 * time.Millisecond)
	appendLine(t, path, `{"timestamp":"2026-08-26T10:00:01Z","type":"event_msg","payload":{"type":"AgentMessage","message":"hello"}}`)

	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg struct {
		Type      string          `json:"type"`
		SessionID string          `json:"sessionId"`
		Line      json.RawMessage `json:"line"`
	}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "session_event" || msg.SessionID != testSessionID {
		t.Fatalf("msg = %+v", msg)
	}
	if !strings.Contains(string(msg.Line), "hello") {
		t.Fatalf("line = %s", msg.Line)
	}
}

func TestSubscribeUnknownSession(t *testing.T) {
	home := t.TempDir()
	idx := index.New(home, testLogger())
	h := New(idx, testLogger())
	defer h.Stop()

	srv := httptest.NewServer(httpHandlerFunc(h))
	defer srv.Close()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ws.Close() }()

	if err := ws.WriteJSON(map[string]string{"type": "subscribe_session", "sessionId": "no-such-id"}); err != nil {
		t.Fatal(err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg map[string]any
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg["type"] != "error" {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	c := &conn{
		send:     make(chan outboundMsg, sendBufferSize),
		sessions: make(map[string]bool),
	}

	total := sendBufferSize + 5
	for i := 0; i < total; i++ {
		c.enqueue(outboundMsg{Type: "session_event", SessionID: fmt.Sprintf("s%d", i)})
	}

	if n := len(c.send); n != sendBufferSize {
		t.Fatalf("buffered = %d, want %d", n, sendBufferSize)
	}

	var got []string
	for len(c.send) > 0 {
		got = append(got, (<-c.send).SessionID)
	}
	// The five oldest were discarded to make room; the newest survives.
	if got[0] != "s5" {
		t.Errorf("oldest retained = %s, want s5", got[0])
	}
	if last := got[len(got)-1]; last != fmt.Sprintf("s%d", total-1) {
		t.Errorf("newest retained = %s, want s%d", last, total-1)
	}
}

func TestEnqueueAfterCloseIsNoop(t *testing.T) {
	c := &conn{
		send:     make(chan outboundMsg, sendBufferSize),
		sessions: make(map[string]bool),
	}
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.enqueue(outboundMsg{Type: "session_event", SessionID: "late"})
	if n := len(c.send); n != 0 {
		t.Fatalf("buffered = %d, want 0", n)
	}
}

func TestNewSessionBroadcast(t *testing.T) {
	home := t.TempDir()
	// Pre-create the date tree so the watch covers the leaf directory
	// before the rollout file lands in it.
	if err := os.MkdirAll(filepath.Join(home, "sessions", "2026", "08", "26"), 0o755); err != nil {
		t.Fatal(err)
	}

	idx := index.New(home, testLogger())
	h := New(idx, testLogger())
	h.Start()
	defer h.Stop()

	srv := httptest.NewServer(httpHandlerFunc(h))
	defer srv.Close()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ws.Close() }()

	if err := ws.WriteJSON(map[string]string{"type": "subscribe_new_sessions"}); err != nil {
		t.Fatal(err)
	}
	// Let the subscription land before creating the file.
	time.Sleep(300 * time.Millisecond)

	writeSessionFile(t, home)

	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg struct {
		Type string `json:"type"`
		Path string `json:"path"`
	}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "new_session" || !strings.Contains(msg.Path, "rollout-") {
		t.Fatalf("msg = %+v", msg)
	}
}
