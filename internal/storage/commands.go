package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anivar/termbrain-sub001/internal/cmdutil"
)

// defaultQueryLimit bounds queries that don't set a limit.
const defaultQueryLimit = 1000

var (
	// ErrCommandNotFound is returned when a command event is not found.
	ErrCommandNotFound = errors.New("command not found")

	// ErrAlreadyFinalized is returned when an event already has an exit code.
	ErrAlreadyFinalized = errors.New("command already finalized")
)

const eventColumns = `
	id, session_id, ts_unix_ms, command, command_norm, semantic_type, intent,
	complexity, cwd, git_branch, project_type, exit_code, duration_ms, is_sensitive
`

// Append records a provisional event. The exit code and duration are
// attached later by Finalize. The assigned id is returned and set on e.
func (s *SQLiteStore) Append(ctx context.Context, e *CommandEvent) (int64, error) {
	if e == nil {
		return 0, errors.New("event cannot be nil")
	}
	if e.SessionID == "" {
		return 0, errors.New("session_id is required")
	}
	if strings.TrimSpace(e.Command) == "" {
		return 0, errors.New("command is required")
	}
	if e.CommandNorm == "" {
		e.CommandNorm = cmdutil.NormalizeCommand(e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if e.Complexity == 0 {
		e.Complexity = 1
	}
	if e.ProjectType == "" {
		e.ProjectType = "unknown"
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO commands (
			session_id, ts_unix_ms, command, command_norm, semantic_type, intent,
			complexity, cwd, git_branch, project_type, exit_code, duration_ms, is_sensitive
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.SessionID,
		e.Timestamp.UnixMilli(),
		e.Command,
		e.CommandNorm,
		e.SemanticType,
		e.Intent,
		e.Complexity,
		e.CWD,
		e.GitBranch,
		e.ProjectType,
		e.ExitCode,
		e.DurationMs,
		boolToInt(e.Sensitive),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append command: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read command id: %w", err)
	}
	e.ID = id
	return id, nil
}

// Finalize attaches the exit code and duration to a provisional event.
// It succeeds at most once per event.
func (s *SQLiteStore) Finalize(ctx context.Context, id int64, exitCode int, durationMs int64) error {
	if id <= 0 {
		return errors.New("id is required")
	}
	if durationMs < 0 {
		durationMs = 0
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE commands
		SET exit_code = ?, duration_ms = ?
		WHERE id = ? AND exit_code IS NULL
	`, exitCode, durationMs, id)
	if err != nil {
		return fmt.Errorf("failed to finalize command: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	// Distinguish a missing row from a second finalize.
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM commands WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCommandNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up command: %w", err)
	}
	return ErrAlreadyFinalized
}

// Get returns a single event, including sensitive ones. It is the only read
// path that exposes sensitive command text.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*CommandEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM commands WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCommandNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get command: %w", err)
	}
	return e, nil
}

// Query returns non-sensitive events matching f, newest first.
func (s *SQLiteStore) Query(ctx context.Context, f EventFilter) ([]CommandEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM commands WHERE is_sensitive = 0`
	args := make([]interface{}, 0)

	if f.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, f.SessionID)
	}
	if f.CWD != "" {
		query += " AND cwd = ?"
		args = append(args, f.CWD)
	}
	if f.SemanticType != "" {
		query += " AND semantic_type = ?"
		args = append(args, f.SemanticType)
	}
	if f.Contains != "" {
		query += " AND command LIKE ? ESCAPE '\\'"
		args = append(args, "%"+escapeLike(f.Contains)+"%")
	}
	if !f.Since.IsZero() {
		query += " AND ts_unix_ms >= ?"
		args = append(args, f.Since.UnixMilli())
	}
	if !f.Until.IsZero() {
		query += " AND ts_unix_ms < ?"
		args = append(args, f.Until.UnixMilli())
	}
	if f.SuccessOnly {
		query += " AND exit_code = 0"
	}
	if f.FailureOnly {
		query += " AND exit_code != 0"
	}

	query += " ORDER BY ts_unix_ms DESC, id DESC LIMIT ?"
	args = append(args, limitOrDefault(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}
	defer rows.Close()

	var events []CommandEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating commands: %w", err)
	}
	return events, nil
}

// RecentTypes returns the semantic types of the last n events of a session,
// most recent first.
func (s *SQLiteStore) RecentTypes(ctx context.Context, sessionID string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT semantic_type FROM commands
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// LatestMatch returns the timestamp of the newest event matching m. Only the
// timestamp is returned, so sensitive events are considered too.
func (s *SQLiteStore) LatestMatch(ctx context.Context, m EventMatch) (time.Time, bool, error) {
	query := `SELECT MAX(ts_unix_ms) FROM commands WHERE 1=1`
	args := make([]interface{}, 0)

	if m.CWD != "" {
		query += " AND cwd = ?"
		args = append(args, m.CWD)
	}
	if m.SemanticType != "" {
		query += " AND semantic_type = ?"
		args = append(args, m.SemanticType)
	}
	if len(m.Prefixes) > 0 {
		clauses := make([]string, 0, len(m.Prefixes))
		for _, p := range m.Prefixes {
			clauses = append(clauses, "command_norm LIKE ? ESCAPE '\\'")
			args = append(args, escapeLike(strings.ToLower(p))+"%")
		}
		query += " AND (" + strings.Join(clauses, " OR ") + ")"
	}
	if !m.Since.IsZero() {
		query += " AND ts_unix_ms >= ?"
		args = append(args, m.Since.UnixMilli())
	}
	if m.SuccessOnly {
		query += " AND exit_code = 0"
	}

	var ts sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&ts); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to match command: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return fromUnixMs(ts.Int64), true, nil
}

// Timeline returns the timestamp and exit code of every event of a session
// in [since, until), oldest first. Sensitive events are included since no
// command text is returned.
func (s *SQLiteStore) Timeline(ctx context.Context, sessionID string, since, until time.Time) ([]TimelinePoint, error) {
	query := `SELECT ts_unix_ms, exit_code FROM commands WHERE session_id = ? AND ts_unix_ms >= ?`
	args := []interface{}{sessionID, sinceMs(since)}
	if !until.IsZero() {
		query += " AND ts_unix_ms < ?"
		args = append(args, until.UnixMilli())
	}
	query += " ORDER BY ts_unix_ms ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline: %w", err)
	}
	defer rows.Close()

	var points []TimelinePoint
	for rows.Next() {
		var ts int64
		var exitCode sql.NullInt64
		if err := rows.Scan(&ts, &exitCode); err != nil {
			return nil, fmt.Errorf("failed to scan timeline: %w", err)
		}
		p := TimelinePoint{Timestamp: fromUnixMs(ts)}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			p.ExitCode = &code
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(r rowScanner) (*CommandEvent, error) {
	var e CommandEvent
	var ts int64
	var branch sql.NullString
	var exitCode sql.NullInt64
	var duration sql.NullInt64
	var sensitive int

	err := r.Scan(
		&e.ID,
		&e.SessionID,
		&ts,
		&e.Command,
		&e.CommandNorm,
		&e.SemanticType,
		&e.Intent,
		&e.Complexity,
		&e.CWD,
		&branch,
		&e.ProjectType,
		&exitCode,
		&duration,
		&sensitive,
	)
	if err != nil {
		return nil, err
	}

	e.Timestamp = fromUnixMs(ts)
	if branch.Valid {
		e.GitBranch = &branch.String
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		e.ExitCode = &code
	}
	if duration.Valid {
		e.DurationMs = &duration.Int64
	}
	e.Sensitive = sensitive != 0
	return &e, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	return limit
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
