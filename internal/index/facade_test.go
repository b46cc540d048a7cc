package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	id     string
	day    string
	stamp  string
	cwd    string
	branch string
	lines  []string
}

func writeFixture(t *testing.T, home string, fx fixture) string {
	t.Helper()
	dir := filepath.Join(home, "sessions", "2026", "08", fx.day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	git := ""
	if fx.branch != "" {
		git = fmt.Sprintf(`,"git":{"branch":%q}`, fx.branch)
	}
	header := fmt.Sprintf(`{"timestamp":%q,"type":"session_meta","payload":{"meta":{"id":%q,"timestamp":%q,"cwd":%q,"source":"cli","cli_version":"1.0.0"}%s}}`,
		fx.stamp, fx.id, fx.stamp, fx.cwd, git)

	content := header + "\n"
	for _, l := range fx.lines {
		content += l + "\n"
	}

	path := filepath.Join(dir, fmt.Sprintf("rollout-2026-08-%sT10-00-00-%s.jsonl", fx.day, fx.id))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const (
	idA = "11111111-1111-7111-8111-111111111111"
	idB = "22222222-2222-7222-8222-222222222222"
)

func seedHome(t *testing.T) (string, string, string) {
	t.Helper()
	home := t.TempDir()
	pathA := writeFixture(t, home, fixture{
		id: idA, day: "25", stamp: "2026-08-25T10:00:00Z", cwd: "/proj/a", branch: "main",
		lines: []string{`{"timestamp":"2026-08-25T10:00:01Z","type":"event_msg","payload":{"type":"UserMessage","message":"refactor the scanner"}}`},
	})
	pathB := writeFixture(t, home, fixture{
		id: idB, day: "26", stamp: "2026-08-26T10:00:00Z", cwd: "/proj/b", branch: "dev",
	})

	// Make modification order deterministic: B newer than A.
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(pathA, old, old); err != nil {
		t.Fatal(err)
	}
	return home, pathA, pathB
}

func TestListScanSortAndPaginate(t *testing.T) {
	home, _, _ := seedHome(t)
	ix := New(home, testLogger())
	defer ix.Close()

	res, err := ix.List(context.Background(), Filter{}, Sort{Desc: true}, Page{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 2 || len(res.Sessions) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Sessions[0].ID != idB || res.Sessions[1].ID != idA {
		t.Fatalf("order = %s, %s", res.Sessions[0].ID, res.Sessions[1].ID)
	}

	res, err = ix.List(context.Background(), Filter{}, Sort{Desc: true}, Page{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 2 || len(res.Sessions) != 1 || res.Sessions[0].ID != idA {
		t.Fatalf("page = %+v", res)
	}
}

func TestListScanFilters(t *testing.T) {
	home, _, _ := seedHome(t)
	ix := New(home, testLogger())
	defer ix.Close()

	res, err := ix.List(context.Background(), Filter{Cwd: "/proj/a"}, Sort{}, Page{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Sessions) != 1 || res.Sessions[0].ID != idA {
		t.Fatalf("cwd filter = %+v", res.Sessions)
	}

	res, err = ix.List(context.Background(), Filter{GitBranch: "dev"}, Sort{}, Page{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Sessions) != 1 || res.Sessions[0].ID != idB {
		t.Fatalf("branch filter = %+v", res.Sessions)
	}
}

func TestFindByID(t *testing.T) {
	home, _, _ := seedHome(t)
	ix := New(home, testLogger())
	defer ix.Close()

	sess, err := ix.FindByID(context.Background(), idA)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Cwd != "/proj/a" {
		t.Fatalf("session = %+v", sess)
	}
	// Titles come from the first user message when the scan finds one.
	if sess.Title != "refactor the scanner" {
		t.Fatalf("title = %q", sess.Title)
	}

	if _, err := ix.FindByID(context.Background(), "99999999-9999-7999-8999-999999999999"); err != ErrSessionNotFound {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 4, "abcd..."},
		{"héllo wörld", 7, "héllo ..."}, // the ö spans bytes 8-9 and must not be split
		{"日本語のタイトル", 7, "日本..."},
		{"日本語", 9, "日本語"},
	}
	for _, tc := range cases {
		got := truncate(tc.in, tc.n)
		if got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8: %q", tc.in, tc.n, got)
		}
	}
}

func TestFindLatest(t *testing.T) {
	home, _, _ := seedHome(t)
	ix := New(home, testLogger())
	defer ix.Close()

	sess, err := ix.FindLatest(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if sess.ID != idB {
		t.Fatalf("latest = %s, want %s", sess.ID, idB)
	}

	sess, err = ix.FindLatest(context.Background(), "/proj/a")
	if err != nil {
		t.Fatal(err)
	}
	if sess.ID != idA {
		t.Fatalf("latest for cwd = %s, want %s", sess.ID, idA)
	}
}

func TestFindByFile(t *testing.T) {
	home, pathA, _ := seedHome(t)
	ix := New(home, testLogger())
	defer ix.Close()

	sess, err := ix.FindByFile(context.Background(), pathA)
	if err != nil {
		t.Fatal(err)
	}
	if sess.ID != idA {
		t.Fatalf("session = %s, want %s", sess.ID, idA)
	}

	if _, err := ix.FindByFile(context.Background(), filepath.Join(home, "nope.jsonl")); err != ErrSessionNotFound {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestArchivedSessionsAreMarked(t *testing.T) {
	home := t.TempDir()
	dir := filepath.Join(home, "archived_sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	header := fmt.Sprintf(`{"timestamp":"2026-08-20T10:00:00Z","type":"session_meta","payload":{"meta":{"id":%q,"timestamp":"2026-08-20T10:00:00Z","cwd":"/old","source":"cli","cli_version":"1.0.0"}}}`, idA)
	path := filepath.Join(dir, "rollout-2026-08-20T10-00-00-"+idA+".jsonl")
	if err := os.WriteFile(path, []byte(header+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ix := New(home, testLogger())
	defer ix.Close()

	sess, err := ix.FindByID(context.Background(), idA)
	if err != nil {
		t.Fatal(err)
	}
	if sess.ArchivedAt == nil {
		t.Fatal("archived session missing ArchivedAt")
	}
}
