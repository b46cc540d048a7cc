// Package tail follows a growing rollout file and emits each newly appended
// complete line as a parsed rollout record.
package tail

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codex-agent/codexd/internal/rollout"
)

// pollInterval is the fallback poll cadence when fsnotify delivers nothing.
const pollInterval = 500 * time.Millisecond

// EventType distinguishes tailer emissions.
type EventType string

const (
	// EventLine carries one newly appended parsed rollout line.
	EventLine EventType = "line"
	// EventError reports a non-fatal filesystem error; tailing continues.
	EventError EventType = "error"
)

// Event is one tailer emission.
type Event struct {
	Type EventType
	Line *rollout.Line
	Err  error
}

// Listener receives tailer events. Removal is eventually consistent: a
// listener may observe one more event after RemoveListener returns.
type Listener func(Event)

// Tailer watches a single rollout file. It tracks the last observed byte
// offset and file identity, keeps trailing incomplete bytes in a partial
// buffer, resets on truncation, and reopens on rotation. Parse failures are
// dropped silently so a corrupt line never stalls the stream.
type Tailer struct {
	path   string
	logger *slog.Logger

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int

	offset    int64
	ident     fileIdent
	haveIdent bool
	partial   []byte
	statOK    bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a tailer for path. Call Start to begin watching.
func New(path string, logger *slog.Logger) *Tailer {
	return &Tailer{
		path:      path,
		logger:    logger.With("component", "tailer", "path", path),
		listeners: make(map[int]Listener),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// AddListener registers a listener and returns its handle.
func (t *Tailer) AddListener(fn Listener) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	return id
}

// RemoveListener unregisters a listener by handle.
func (t *Tailer) RemoveListener(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.listeners, id)
}

// ListenerCount returns the number of registered listeners.
func (t *Tailer) ListenerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}

// Start launches the watch loop. The tailer begins at the current end of
// file, so only lines appended after Start are emitted.
func (t *Tailer) Start() {
	if info, err := os.Stat(t.path); err == nil {
		t.statOK = true
		t.offset = info.Size()
		if id, ok := identFromInfo(info); ok {
			t.ident = id
			t.haveIdent = true
		}
	}
	go t.run()
}

// StartAt launches the watch loop from a specific byte offset instead of the
// current end of file.
func (t *Tailer) StartAt(offset int64) {
	if info, err := os.Stat(t.path); err == nil {
		t.statOK = true
		if id, ok := identFromInfo(info); ok {
			t.ident = id
			t.haveIdent = true
		}
	}
	t.offset = offset
	go t.run()
}

// Stop terminates the watch loop and waits for it to exit.
func (t *Tailer) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}

func (t *Tailer) run() {
	defer close(t.done)

	// Directory-level watch so a not-yet-created file is picked up on its
	// first write. Watcher failure is non-fatal; the poll loop covers it.
	var events <-chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer func() { _ = watcher.Close() }()
		if err := watcher.Add(filepath.Dir(t.path)); err == nil {
			events = watcher.Events
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case ev := <-events:
			if ev.Name != t.path {
				continue
			}
			if !t.poll() {
				return
			}
		case <-ticker.C:
			if !t.poll() {
				return
			}
		}
	}
}

// poll reads any new bytes. Returns false when the watch should terminate.
func (t *Tailer) poll() bool {
	info, err := os.Stat(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if !t.statOK {
				// Never seen the file: terminal.
				t.emit(Event{Type: EventError, Err: err})
				return false
			}
			// The file may be mid-rotation; keep waiting.
			return true
		}
		t.emit(Event{Type: EventError, Err: err})
		return true
	}
	t.statOK = true

	if id, ok := identFromInfo(info); ok {
		if t.haveIdent && id != t.ident {
			// Rotation: same name, different file. Start over.
			t.offset = 0
			t.partial = nil
		}
		t.ident = id
		t.haveIdent = true
	}

	if info.Size() < t.offset {
		// Truncation.
		t.offset = 0
		t.partial = nil
	}
	if info.Size() == t.offset {
		return true
	}

	f, err := os.Open(t.path)
	if err != nil {
		t.emit(Event{Type: EventError, Err: err})
		return true
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		t.emit(Event{Type: EventError, Err: err})
		return true
	}

	data, err := io.ReadAll(f)
	if err != nil {
		t.emit(Event{Type: EventError, Err: err})
		return true
	}
	t.offset += int64(len(data))

	buf := append(t.partial, data...)
	for {
		nl := bytes.IndexByte(buf, '\n')
		if nl < 0 {
			break
		}
		lineBytes := buf[:nl]
		buf = buf[nl+1:]
		if line, ok := rollout.ParseLine(lineBytes); ok {
			t.emit(Event{Type: EventLine, Line: line})
		}
	}
	t.partial = append([]byte(nil), buf...)
	return true
}

func (t *Tailer) emit(ev Event) {
	t.mu.Lock()
	fns := make([]Listener, 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
