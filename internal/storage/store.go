// Package storage provides the SQLite-backed event store: the append-only
// log of classified shell commands, the failures recorded against them, and
// the schema shared by the other components.
package storage

import (
	"context"
	"time"
)

// EventStore defines the event log operations.
type EventStore interface {
	// Capture
	Append(ctx context.Context, e *CommandEvent) (int64, error)
	Finalize(ctx context.Context, id int64, exitCode int, durationMs int64) error

	// Reads
	Get(ctx context.Context, id int64) (*CommandEvent, error)
	Query(ctx context.Context, f EventFilter) ([]CommandEvent, error)
	Aggregate(ctx context.Context, q AggregateQuery) ([]Bucket, error)
	Totals(ctx context.Context, since time.Time) (*Totals, error)
	RecentTypes(ctx context.Context, sessionID string, n int) ([]string, error)
	LatestMatch(ctx context.Context, m EventMatch) (time.Time, bool, error)
	Sessions(ctx context.Context, limit int) ([]SessionSummary, error)
	Timeline(ctx context.Context, sessionID string, since, until time.Time) ([]TimelinePoint, error)

	// Errors
	RecordError(ctx context.Context, commandID int64) (int64, error)
	SolveError(ctx context.Context, errorID int64, solution string) error
	GetError(ctx context.Context, errorID int64) (*ErrorRecord, error)
	LatestUnsolvedError(ctx context.Context, sessionID, semanticType string, since time.Time) (*ErrorRecord, error)
	QueryErrors(ctx context.Context, f ErrorFilter) ([]ErrorRecord, error)

	// Lifecycle
	Close() error
}

// CommandEvent is one executed shell command.
type CommandEvent struct {
	ID           int64
	SessionID    string
	Timestamp    time.Time
	Command      string
	CommandNorm  string
	SemanticType string
	Intent       string
	Complexity   int
	CWD          string
	GitBranch    *string
	ProjectType  string

	// Set by Finalize; nil while the command is still running.
	ExitCode   *int
	DurationMs *int64

	Sensitive bool
}

// Finalized reports whether the exit code has been recorded.
func (e *CommandEvent) Finalized() bool {
	return e.ExitCode != nil
}

// Succeeded reports whether the event finalized with exit code 0.
func (e *CommandEvent) Succeeded() bool {
	return e.ExitCode != nil && *e.ExitCode == 0
}

// EventFilter selects events for Query. Sensitive events are never returned.
type EventFilter struct {
	SessionID    string
	CWD          string
	SemanticType string
	Contains     string // substring of the raw command
	Since        time.Time
	Until        time.Time
	SuccessOnly  bool
	FailureOnly  bool
	Limit        int // 0 = default (1000)
}

// EventMatch selects the newest event for LatestMatch. Prefixes are matched
// against the normalized command; any prefix may match.
type EventMatch struct {
	CWD          string
	SemanticType string
	Prefixes     []string
	Since        time.Time
	SuccessOnly  bool
}

// GroupBy names an aggregation key.
type GroupBy string

// Supported aggregation keys.
const (
	GroupBySemanticType GroupBy = "semantic_type"
	GroupByIntent       GroupBy = "intent"
	GroupByProjectType  GroupBy = "project_type"
	GroupByHour         GroupBy = "hour"
	GroupByDay          GroupBy = "day"
	GroupBySession      GroupBy = "session"
	GroupByCommand      GroupBy = "command"
)

// AggregateQuery configures Aggregate.
type AggregateQuery struct {
	GroupBy   GroupBy
	Since     time.Time      // zero = all time
	SessionID string         // optional
	Location  *time.Location // hour/day bucketing; nil = time.Local
	Limit     int            // 0 = no limit
}

// Bucket is one aggregation group.
type Bucket struct {
	Key           string
	Count         int64
	Failures      int64
	AvgDurationMs float64
}

// Totals summarizes the event log.
type Totals struct {
	Commands  int64
	Finalized int64 // commands with a recorded exit code
	Failures  int64
	Sessions  int64
	Sensitive int64
	First     *time.Time
	Last      *time.Time
}

// SessionSummary is a session derived from its events.
type SessionSummary struct {
	SessionID string
	FirstSeen time.Time
	LastSeen  time.Time
	Commands  int64
	Failures  int64
}

// TimelinePoint is an event reduced to its time and outcome.
type TimelinePoint struct {
	Timestamp time.Time
	ExitCode  *int
}

// ErrorRecord is a failed command awaiting or having a solution.
type ErrorRecord struct {
	ID           int64
	CommandID    int64
	SessionID    string
	Command      string // empty when the command is sensitive
	SemanticType string
	ExitCode     int
	Timestamp    time.Time
	Solved       bool
	Solution     string
	SolvedAt     *time.Time
}

// ErrorFilter selects error records.
type ErrorFilter struct {
	SessionID    string
	SemanticType string
	SolvedOnly   bool
	UnsolvedOnly bool
	Limit        int
}

func fromUnixMs(ms int64) time.Time {
	return time.UnixMilli(ms)
}
