// Package flow scores focused work periods from the commands run while a
// flow was active.
package flow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anivar/termbrain-sub001/internal/session"
	"github.com/anivar/termbrain-sub001/internal/storage"
)

// ErrNoActiveFlow is returned when ending a flow that was never started.
var ErrNoActiveFlow = errors.New("no active flow")

const (
	// InterruptionGap is the idle time between two commands that counts as an
	// interruption.
	InterruptionGap = 5 * time.Minute

	// DefaultEnergy is used when the caller does not rate their energy.
	DefaultEnergy = 5

	minScore = 1
	maxScore = 10
)

// Timeline reads the events of a session in a time window.
type Timeline interface {
	Timeline(ctx context.Context, sessionID string, since, until time.Time) ([]storage.TimelinePoint, error)
}

// Sample is one scored flow period.
type Sample struct {
	ID            int64
	SessionID     string
	Focus         string
	Productivity  int
	Interruptions int
	Energy        int
	Commands      int
	StartedAt     time.Time
	EndedAt       time.Time
}

// Duration is the length of the flow period.
func (s Sample) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

// FocusSummary averages samples for one focus area.
type FocusSummary struct {
	Focus            string
	Sessions         int64
	AvgProductivity  float64
	AvgInterruptions float64
	TotalTime        time.Duration
}

// Tracker scores and stores flow periods.
type Tracker struct {
	db     *sql.DB
	events Timeline
	now    func() time.Time
}

// NewTracker creates a tracker that stores samples in db and reads events
// from events.
func NewTracker(db *sql.DB, events Timeline) *Tracker {
	return &Tracker{db: db, events: events, now: time.Now}
}

// Start marks a flow as active in sess and returns the updated context.
// Starting while a flow is active restarts it with the new focus.
func (t *Tracker) Start(sess session.Context, focus string) session.Context {
	focus = strings.TrimSpace(focus)
	if focus == "" {
		focus = "general"
	}
	started := t.now()
	sess.FlowFocus = focus
	sess.FlowStartedAt = &started
	return sess
}

// End scores the active flow in sess, stores the sample and returns it with
// the cleared context. Energy outside [1,10] falls back to DefaultEnergy.
func (t *Tracker) End(ctx context.Context, sess session.Context, energy int) (*Sample, session.Context, error) {
	if !sess.InFlow() {
		return nil, sess, ErrNoActiveFlow
	}
	if energy < minScore || energy > maxScore {
		energy = DefaultEnergy
	}

	started := *sess.FlowStartedAt
	ended := t.now()
	if ended.Before(started) {
		ended = started
	}

	// Include events stamped in the same millisecond as the end.
	points, err := t.events.Timeline(ctx, sess.SessionID, started, ended.Add(time.Millisecond))
	if err != nil {
		return nil, sess, fmt.Errorf("failed to read flow events: %w", err)
	}

	s := Sample{
		SessionID:     sess.SessionID,
		Focus:         sess.FlowFocus,
		Productivity:  Productivity(points),
		Interruptions: Interruptions(points),
		Energy:        energy,
		Commands:      len(points),
		StartedAt:     started,
		EndedAt:       ended,
	}

	result, err := t.db.ExecContext(ctx, `
		INSERT INTO cognitive_state (
			session_id, focus_area, productivity, interruptions, energy, commands,
			started_at_unix_ms, ended_at_unix_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.SessionID, s.Focus, s.Productivity, s.Interruptions, s.Energy, s.Commands,
		s.StartedAt.UnixMilli(), s.EndedAt.UnixMilli())
	if err != nil {
		return nil, sess, fmt.Errorf("failed to store flow sample: %w", err)
	}
	if s.ID, err = result.LastInsertId(); err != nil {
		return nil, sess, fmt.Errorf("failed to read sample id: %w", err)
	}

	sess.FlowFocus = ""
	sess.FlowStartedAt = nil
	return &s, sess, nil
}

// Productivity scores a flow period in [1,10]: up to six points for the
// success ratio of finalized commands and up to three for volume.
func Productivity(points []storage.TimelinePoint) int {
	if len(points) == 0 {
		return minScore
	}
	var finalized, succeeded int
	for _, p := range points {
		if p.ExitCode == nil {
			continue
		}
		finalized++
		if *p.ExitCode == 0 {
			succeeded++
		}
	}
	ratio := 0.0
	if finalized > 0 {
		ratio = float64(succeeded) / float64(finalized)
	}
	score := 1 + int(math.Round(6*ratio)) + min(3, len(points)/10)
	return max(minScore, min(maxScore, score))
}

// Interruptions counts gaps longer than InterruptionGap between consecutive
// events.
func Interruptions(points []storage.TimelinePoint) int {
	n := 0
	for i := 1; i < len(points); i++ {
		if points[i].Timestamp.Sub(points[i-1].Timestamp) > InterruptionGap {
			n++
		}
	}
	return n
}

// List returns stored samples, newest first.
func (t *Tracker) List(ctx context.Context, limit int) ([]Sample, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, session_id, focus_area, productivity, interruptions, energy, commands,
		       started_at_unix_ms, ended_at_unix_ms
		FROM cognitive_state
		ORDER BY ended_at_unix_ms DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list flow samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		var started, ended int64
		if err := rows.Scan(&s.ID, &s.SessionID, &s.Focus, &s.Productivity, &s.Interruptions,
			&s.Energy, &s.Commands, &started, &ended); err != nil {
			return nil, fmt.Errorf("failed to scan flow sample: %w", err)
		}
		s.StartedAt = time.UnixMilli(started)
		s.EndedAt = time.UnixMilli(ended)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Summary averages samples per focus area, most productive first.
func (t *Tracker) Summary(ctx context.Context) ([]FocusSummary, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT focus_area,
		       COUNT(*),
		       AVG(productivity),
		       AVG(interruptions),
		       SUM(ended_at_unix_ms - started_at_unix_ms)
		FROM cognitive_state
		GROUP BY focus_area
		ORDER BY AVG(productivity) DESC, focus_area ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize flow samples: %w", err)
	}
	defer rows.Close()

	var out []FocusSummary
	for rows.Next() {
		var fs FocusSummary
		var totalMs int64
		if err := rows.Scan(&fs.Focus, &fs.Sessions, &fs.AvgProductivity, &fs.AvgInterruptions, &totalMs); err != nil {
			return nil, fmt.Errorf("failed to scan flow summary: %w", err)
		}
		fs.TotalTime = time.Duration(totalMs) * time.Millisecond
		out = append(out, fs)
	}
	return out, rows.Err()
}
