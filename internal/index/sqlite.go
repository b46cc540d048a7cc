package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codex-agent/codexd/internal/rollout"
	_ "modernc.org/sqlite"
)

// ErrStateUnavailable is returned when the agent's state database is absent,
// unreadable, or missing the threads table. Callers fall back to a scan.
var ErrStateUnavailable = errors.New("state database unavailable")

// StateDB is a read-only view of the agent's own sqlite state file. It never
// writes; schema changes on the agent side devolve to ErrStateUnavailable.
type StateDB struct {
	db *sql.DB
}

// OpenStateDB opens {home}/state read-only and probes for the threads table.
func OpenStateDB(path string) (*StateDB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateUnavailable, err)
	}

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='threads'`).Scan(&name)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: no threads table", ErrStateUnavailable)
	}

	return &StateDB{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *StateDB) Close() error {
	return s.db.Close()
}

const threadColumns = `id, rollout_path, created_at, updated_at, source, cwd,
	cli_version, model_provider, title, first_user_message, archived_at,
	git_sha, git_branch, git_origin_url, forked_from_id`

// List queries threads with the given filter, sort, and pagination, and the
// unpaginated total count.
func (s *StateDB) List(ctx context.Context, f Filter, sort Sort, page Page) (*ListResult, error) {
	where, args := buildWhere(f)

	var total int
	countQuery := "SELECT COUNT(*) FROM threads" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("%w: count: %v", ErrStateUnavailable, err)
	}

	key := "updated_at"
	if sort.Key == "created_at" {
		key = "created_at"
	}
	dir := "ASC"
	if sort.Desc {
		dir = "DESC"
	}

	query := fmt.Sprintf("SELECT %s FROM threads%s ORDER BY %s %s", threadColumns, where, key, dir)
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, page.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrStateUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrStateUnavailable, err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", ErrStateUnavailable, err)
	}

	return &ListResult{Sessions: sessions, Total: total}, nil
}

// FindByID looks up one thread row. A miss is reported as
// ErrStateUnavailable so the facade proceeds to a scan.
func (s *StateDB) FindByID(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM threads WHERE id = ?", threadColumns), id)
	sess, err := scanThread(row)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateUnavailable, err)
	}
	return sess, nil
}

// FindLatest returns the most recently updated thread, optionally filtered
// by exact cwd.
func (s *StateDB) FindLatest(ctx context.Context, cwd string) (*Session, error) {
	query := fmt.Sprintf("SELECT %s FROM threads", threadColumns)
	var args []any
	if cwd != "" {
		query += " WHERE cwd = ?"
		args = append(args, cwd)
	}
	query += " ORDER BY updated_at DESC LIMIT 1"

	sess, err := scanThread(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateUnavailable, err)
	}
	return sess, nil
}

func buildWhere(f Filter) (string, []any) {
	var conds []string
	var args []any
	if f.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, f.Source)
	}
	if f.Cwd != "" {
		conds = append(conds, "cwd = ?")
		args = append(args, f.Cwd)
	}
	if f.GitBranch != "" {
		conds = append(conds, "git_branch = ?")
		args = append(args, f.GitBranch)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (*Session, error) {
	var (
		sess                             Session
		createdAt, updatedAt, archivedAt sql.NullString
		modelProvider, firstUserMessage  sql.NullString
		gitSHA, gitBranch, gitOriginURL  sql.NullString
		forkedFromID                     sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.RolloutPath, &createdAt, &updatedAt,
		&sess.Source, &sess.Cwd, &sess.CLIVersion, &modelProvider,
		&sess.Title, &firstUserMessage, &archivedAt,
		&gitSHA, &gitBranch, &gitOriginURL, &forkedFromID)
	if err != nil {
		return nil, err
	}

	sess.Source = normalizeSource(sess.Source)
	sess.CreatedAt = parseDBTime(createdAt.String)
	sess.UpdatedAt = parseDBTime(updatedAt.String)
	sess.ModelProvider = modelProvider.String
	sess.FirstUserMessage = firstUserMessage.String
	sess.ForkedFromID = forkedFromID.String
	if archivedAt.Valid && archivedAt.String != "" {
		t := parseDBTime(archivedAt.String)
		sess.ArchivedAt = &t
	}
	if gitSHA.String != "" || gitBranch.String != "" || gitOriginURL.String != "" {
		sess.Git = &rollout.GitInfo{SHA: gitSHA.String, Branch: gitBranch.String, OriginURL: gitOriginURL.String}
	}
	if sess.Title == "" {
		sess.Title = sess.ID
	}
	return &sess, nil
}

func parseDBTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
