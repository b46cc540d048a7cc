package rollout

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	rolloutPrefix = "rollout-"
	rolloutSuffix = ".jsonl"
)

// DiscoverPaths enumerates rollout files under {home}/sessions/YYYY/MM/DD,
// newest-first. Filenames embed timestamps, so lexicographic descending order
// within a day directory is chronological descending. The flat
// {home}/archived_sessions directory is yielded last. Missing directories
// produce an empty result, not an error.
func DiscoverPaths(home string) []string {
	var paths []string

	sessionsDir := filepath.Join(home, "sessions")
	for _, year := range sortedSubdirsDesc(sessionsDir) {
		yearDir := filepath.Join(sessionsDir, year)
		for _, month := range sortedSubdirsDesc(yearDir) {
			monthDir := filepath.Join(yearDir, month)
			for _, day := range sortedSubdirsDesc(monthDir) {
				dayDir := filepath.Join(monthDir, day)
				for _, name := range rolloutNamesDesc(dayDir) {
					paths = append(paths, filepath.Join(dayDir, name))
				}
			}
		}
	}

	archivedDir := filepath.Join(home, "archived_sessions")
	for _, name := range rolloutNamesDesc(archivedDir) {
		paths = append(paths, filepath.Join(archivedDir, name))
	}

	return paths
}

// IsArchivedPath reports whether a rollout path sits under the archived
// subtree of the given home.
func IsArchivedPath(home, path string) bool {
	archived := filepath.Join(home, "archived_sessions")
	rel, err := filepath.Rel(archived, path)
	if err != nil {
		return false
	}
	return !strings.HasPrefix(rel, "..")
}

// SessionIDFromPath extracts the UUID embedded in a rollout filename
// (rollout-<timestamp>-<uuid>.jsonl). Returns "" when the name does not
// match. The UUID is the last five dash-separated groups of the stem.
func SessionIDFromPath(path string) string {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, rolloutPrefix) || !strings.HasSuffix(name, rolloutSuffix) {
		return ""
	}
	stem := strings.TrimSuffix(strings.TrimPrefix(name, rolloutPrefix), rolloutSuffix)
	parts := strings.Split(stem, "-")
	if len(parts) < 5 {
		return ""
	}
	return strings.Join(parts[len(parts)-5:], "-")
}

// ReadHeader parses only the first line of a rollout file. The second return
// is false when the file cannot be opened or its first line is not a valid
// session_meta record.
func ReadHeader(path string) (*SessionMetaPayload, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return nil, false
	}

	line, ok := ParseLine(scanner.Bytes())
	if !ok || line.Kind != KindSessionMeta {
		return nil, false
	}
	return line.SessionMeta, true
}

// ReadAll parses every well-formed line of a rollout file, skipping
// malformed records.
func ReadAll(path string) ([]*Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lines []*Line
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if line, ok := ParseLine(scanner.Bytes()); ok {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func sortedSubdirsDesc(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names
}

func rolloutNamesDesc(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, rolloutPrefix) || !strings.HasSuffix(name, rolloutSuffix) {
			continue
		}
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names
}
