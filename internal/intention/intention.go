// Package intention journals the goals a user sets for a session and how
// they turned out.
package intention

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anivar/termbrain-sub001/internal/session"
	"github.com/anivar/termbrain-sub001/internal/storage"
)

var (
	// ErrEmptyGoal is returned when starting an intention without a goal.
	ErrEmptyGoal = errors.New("goal is required")

	// ErrIntentionOpen is returned when the session already has an open intention.
	ErrIntentionOpen = errors.New("session already has an open intention")

	// ErrNoOpenIntention is returned when the session has no open intention.
	ErrNoOpenIntention = errors.New("no open intention for session")
)

// Snapshot is the session context captured when an intention starts.
type Snapshot struct {
	CWD         string   `json:"cwd,omitempty"`
	GitBranch   string   `json:"git_branch,omitempty"`
	ProjectType string   `json:"project_type,omitempty"`
	RecentTypes []string `json:"recent_types,omitempty"`
}

// Intention is a goal and its outcome.
type Intention struct {
	ID          int64
	SessionID   string
	Goal        string
	Context     Snapshot
	StartedAt   time.Time
	CompletedAt *time.Time
	Success     *bool
	Learnings   string
	Elapsed     time.Duration
}

// Open reports whether the intention has not been completed.
func (i *Intention) Open() bool {
	return i.CompletedAt == nil
}

// Stats summarizes completed intentions.
type Stats struct {
	Total      int64
	Completed  int64
	Succeeded  int64
	AvgElapsed time.Duration
}

// SuccessRate is the share of completed intentions that succeeded.
func (s Stats) SuccessRate() float64 {
	if s.Completed == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Completed)
}

// Tracker stores intentions.
type Tracker struct {
	db  *sql.DB
	now func() time.Time
}

// NewTracker creates a tracker over db.
func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db, now: time.Now}
}

const intentionColumns = `id, session_id, goal, context, started_at_unix_ms, completed_at_unix_ms, success, learnings, elapsed_ms`

// Start opens an intention for the session, capturing its context and the
// recent command types.
func (t *Tracker) Start(ctx context.Context, sess session.Context, goal string, recentTypes []string) (*Intention, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, ErrEmptyGoal
	}
	if sess.SessionID == "" {
		return nil, errors.New("session_id is required")
	}

	snap := Snapshot{
		CWD:         sess.CWD,
		GitBranch:   sess.GitBranch,
		ProjectType: sess.ProjectType,
		RecentTypes: recentTypes,
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode context: %w", err)
	}

	result, err := t.db.ExecContext(ctx, `
		INSERT INTO intentions (session_id, goal, context, started_at_unix_ms)
		VALUES (?, ?, ?, ?)
	`, sess.SessionID, goal, string(raw), t.now().UnixMilli())
	if err != nil {
		if storage.IsDuplicateKeyError(err) {
			return nil, ErrIntentionOpen
		}
		return nil, fmt.Errorf("failed to start intention: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read intention id: %w", err)
	}
	return t.get(ctx, id)
}

// Complete closes the session's open intention with its outcome.
func (t *Tracker) Complete(ctx context.Context, sessionID string, success bool, learnings string) (*Intention, error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM intentions WHERE session_id = ? AND completed_at_unix_ms IS NULL
	`, sessionID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoOpenIntention
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open intention: %w", err)
	}

	nowMs := t.now().UnixMilli()
	result, err := tx.ExecContext(ctx, `
		UPDATE intentions
		SET completed_at_unix_ms = ?,
		    success = ?,
		    learnings = ?,
		    elapsed_ms = MAX(0, ? - started_at_unix_ms)
		WHERE id = ? AND completed_at_unix_ms IS NULL
	`, nowMs, boolToInt(success), strings.TrimSpace(learnings), nowMs, id)
	if err != nil {
		return nil, fmt.Errorf("failed to complete intention: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return nil, ErrNoOpenIntention
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return t.get(ctx, id)
}

// Current returns the session's open intention.
func (t *Tracker) Current(ctx context.Context, sessionID string) (*Intention, error) {
	row := t.db.QueryRowContext(ctx, `
		SELECT `+intentionColumns+` FROM intentions
		WHERE session_id = ? AND completed_at_unix_ms IS NULL
	`, sessionID)
	i, err := scanIntention(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoOpenIntention
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get intention: %w", err)
	}
	return i, nil
}

// List returns intentions across sessions, newest first.
func (t *Tracker) List(ctx context.Context, limit int) ([]Intention, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.db.QueryContext(ctx, `
		SELECT `+intentionColumns+` FROM intentions
		ORDER BY started_at_unix_ms DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list intentions: %w", err)
	}
	defer rows.Close()

	var out []Intention
	for rows.Next() {
		i, err := scanIntention(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intention: %w", err)
		}
		out = append(out, *i)
	}
	return out, rows.Err()
}

// Stats summarizes all intentions.
func (t *Tracker) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	var avg sql.NullFloat64
	err := t.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(completed_at_unix_ms),
		       COALESCE(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END), 0),
		       AVG(elapsed_ms)
		FROM intentions
	`).Scan(&s.Total, &s.Completed, &s.Succeeded, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to compute intention stats: %w", err)
	}
	if avg.Valid {
		s.AvgElapsed = time.Duration(avg.Float64) * time.Millisecond
	}
	return &s, nil
}

func (t *Tracker) get(ctx context.Context, id int64) (*Intention, error) {
	row := t.db.QueryRowContext(ctx, `SELECT `+intentionColumns+` FROM intentions WHERE id = ?`, id)
	i, err := scanIntention(row)
	if err != nil {
		return nil, fmt.Errorf("failed to read intention: %w", err)
	}
	return i, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIntention(r rowScanner) (*Intention, error) {
	var i Intention
	var raw string
	var started int64
	var completed, success, elapsed sql.NullInt64
	if err := r.Scan(&i.ID, &i.SessionID, &i.Goal, &raw, &started, &completed, &success, &i.Learnings, &elapsed); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &i.Context); err != nil {
		return nil, fmt.Errorf("failed to decode context: %w", err)
	}
	i.StartedAt = time.UnixMilli(started)
	if completed.Valid {
		t := time.UnixMilli(completed.Int64)
		i.CompletedAt = &t
	}
	if success.Valid {
		ok := success.Int64 != 0
		i.Success = &ok
	}
	i.Elapsed = time.Duration(elapsed.Int64) * time.Millisecond
	return &i, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
