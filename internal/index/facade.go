package index

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codex-agent/codexd/internal/rollout"
)

// ErrSessionNotFound is returned when neither the state database nor a
// filesystem scan can resolve a session.
var ErrSessionNotFound = errors.New("session not found")

// headerScanLimit caps how many lines are read past the header when looking
// for the first user message during a scan.
const headerScanLimit = 50

// Index resolves sessions through the agent's state database when it is
// usable and through a rollout-file scan otherwise. State database failures
// never surface; they devolve to the scan.
type Index struct {
	home   string
	logger *slog.Logger

	mu      sync.Mutex
	db      *StateDB
	dbTried bool
}

// New creates an index over the given Codex home directory.
func New(home string, logger *slog.Logger) *Index {
	return &Index{home: home, logger: logger.With("component", "index")}
}

// Close releases the state database handle if one was opened.
func (ix *Index) Close() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.db != nil {
		_ = ix.db.Close()
		ix.db = nil
	}
	ix.dbTried = false
}

// Home returns the Codex home directory this index reads.
func (ix *Index) Home() string { return ix.home }

func (ix *Index) stateDB() *StateDB {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.dbTried {
		return ix.db
	}
	ix.dbTried = true
	db, err := OpenStateDB(filepath.Join(ix.home, "state"))
	if err != nil {
		ix.logger.Debug("state database unavailable, using scan", "error", err)
		return nil
	}
	ix.db = db
	return db
}

// List returns one page of sessions matching the filter.
func (ix *Index) List(ctx context.Context, f Filter, srt Sort, page Page) (*ListResult, error) {
	if db := ix.stateDB(); db != nil {
		if res, err := db.List(ctx, f, srt, page); err == nil {
			return res, nil
		} else {
			ix.logger.Debug("state list failed, falling back to scan", "error", err)
		}
	}
	return ix.scanList(f, srt, page), nil
}

// FindByID resolves a session by its UUID.
func (ix *Index) FindByID(ctx context.Context, id string) (*Session, error) {
	if db := ix.stateDB(); db != nil {
		if sess, err := db.FindByID(ctx, id); err == nil {
			return sess, nil
		}
	}

	// The UUID is embedded in the filename, so match on the name before
	// opening any file.
	for _, path := range rollout.DiscoverPaths(ix.home) {
		if !strings.Contains(filepath.Base(path), id) {
			continue
		}
		if sess := ix.sessionFromPath(path); sess != nil && sess.ID == id {
			return sess, nil
		}
	}

	// Filename mismatch is possible for hand-renamed files; fall through to
	// a header scan.
	for _, path := range rollout.DiscoverPaths(ix.home) {
		if sess := ix.sessionFromPath(path); sess != nil && sess.ID == id {
			return sess, nil
		}
	}
	return nil, ErrSessionNotFound
}

// FindLatest resolves the most recently updated session, optionally limited
// to an exact working directory. Cwd equality uses resolved absolute paths.
func (ix *Index) FindLatest(ctx context.Context, cwd string) (*Session, error) {
	resolved := resolvePath(cwd)
	if db := ix.stateDB(); db != nil {
		if sess, err := db.FindLatest(ctx, resolved); err == nil {
			return sess, nil
		}
	}

	var latest *Session
	for _, path := range rollout.DiscoverPaths(ix.home) {
		sess := ix.sessionFromPath(path)
		if sess == nil {
			continue
		}
		if cwd != "" && resolvePath(sess.Cwd) != resolved {
			continue
		}
		if latest == nil || sess.UpdatedAt.After(latest.UpdatedAt) {
			latest = sess
		}
	}
	if latest == nil {
		return nil, ErrSessionNotFound
	}
	return latest, nil
}

// FindByFile resolves a session by its rollout path. Paths are compared
// after cleaning and absolutizing both sides.
func (ix *Index) FindByFile(ctx context.Context, path string) (*Session, error) {
	want := resolvePath(path)
	for _, p := range rollout.DiscoverPaths(ix.home) {
		if resolvePath(p) != want {
			continue
		}
		if sess := ix.sessionFromPath(p); sess != nil {
			return sess, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (ix *Index) scanList(f Filter, srt Sort, page Page) *ListResult {
	var sessions []Session
	for _, path := range rollout.DiscoverPaths(ix.home) {
		sess := ix.sessionFromPath(path)
		if sess == nil {
			continue
		}
		if f.Source != "" && sess.Source != f.Source {
			continue
		}
		if f.Cwd != "" && resolvePath(sess.Cwd) != resolvePath(f.Cwd) {
			continue
		}
		if f.GitBranch != "" && (sess.Git == nil || sess.Git.Branch != f.GitBranch) {
			continue
		}
		sessions = append(sessions, *sess)
	}

	key := func(s Session) time.Time { return s.UpdatedAt }
	if srt.Key == "created_at" {
		key = func(s Session) time.Time { return s.CreatedAt }
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		if srt.Desc {
			return key(sessions[i]).After(key(sessions[j]))
		}
		return key(sessions[i]).Before(key(sessions[j]))
	})

	total := len(sessions)
	if page.Offset > 0 {
		if page.Offset >= len(sessions) {
			sessions = nil
		} else {
			sessions = sessions[page.Offset:]
		}
	}
	if page.Limit > 0 && len(sessions) > page.Limit {
		sessions = sessions[:page.Limit]
	}
	if sessions == nil {
		sessions = []Session{}
	}
	return &ListResult{Sessions: sessions, Total: total}
}

// sessionFromPath builds a Session from the rollout header plus file stat.
// Returns nil when the file is unreadable or headerless.
func (ix *Index) sessionFromPath(path string) *Session {
	header, ok := rollout.ReadHeader(path)
	if !ok {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}

	sess := &Session{
		ID:            header.Meta.ID,
		RolloutPath:   path,
		UpdatedAt:     info.ModTime(),
		Source:        normalizeSource(header.Meta.Source),
		Cwd:           header.Meta.Cwd,
		CLIVersion:    header.Meta.CLIVersion,
		ModelProvider: header.Meta.ModelProvider,
		Git:           header.Git,
		ForkedFromID:  header.Meta.ForkedFromID,
	}
	if t, err := time.Parse(time.RFC3339Nano, header.Meta.Timestamp); err == nil {
		sess.CreatedAt = t
	} else if t, err := time.Parse(time.RFC3339, header.Meta.Timestamp); err == nil {
		sess.CreatedAt = t
	}
	if rollout.IsArchivedPath(ix.home, path) {
		t := info.ModTime()
		sess.ArchivedAt = &t
	}

	sess.FirstUserMessage = firstUserMessage(path)
	sess.Title = sess.FirstUserMessage
	if sess.Title == "" {
		sess.Title = sess.ID
	}
	return sess
}

// firstUserMessage scans a bounded number of lines for the first user
// message so scan-built sessions get a usable title.
func firstUserMessage(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for i := 0; scanner.Scan() && i < headerScanLimit; i++ {
		line, ok := rollout.ParseLine(scanner.Bytes())
		if !ok {
			continue
		}
		switch {
		case line.EventMsg != nil && line.EventMsg.UserMessage != nil:
			return truncate(line.EventMsg.UserMessage.Message, 200)
		case line.ResponseItem != nil && line.ResponseItem.Message != nil &&
			line.ResponseItem.Message.Role == "user":
			for _, c := range line.ResponseItem.Message.Content {
				if c.Type == "input_text" && c.Text != "" {
					return truncate(c.Text, 200)
				}
			}
		}
	}
	return ""
}

func resolvePath(p string) string {
	if p == "" {
		return ""
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return filepath.Clean(abs)
}

// truncate limits s to at most n bytes, cutting on a rune boundary so a
// multibyte character is never split.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return s[:cut] + "..."
}
