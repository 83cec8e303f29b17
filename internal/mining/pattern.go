// Package mining detects recurring structure in the command log: adjacent
// command-type sequences, time-of-day habits, error/fix pairs and the
// workflow candidates derived from sequences.
package mining

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type names a pattern kind.
type Type string

// Pattern kinds. Each kind is produced by one mining pass.
const (
	TypeSequence          Type = "sequence"
	TypeTime              Type = "time"
	TypeErrorFix          Type = "error-fix"
	TypeWorkflowCandidate Type = "workflow-candidate"
)

// Types returns every pattern kind in pass order.
func Types() []Type {
	return []Type{TypeSequence, TypeTime, TypeErrorFix, TypeWorkflowCandidate}
}

// ParseType validates a pattern type name.
func ParseType(s string) (Type, error) {
	for _, t := range Types() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown pattern type %q", s)
}

// ErrPatternNotFound is returned when a pattern does not exist.
var ErrPatternNotFound = errors.New("pattern not found")

// Pattern is a detected recurring structure. Exactly one payload is set,
// matching Type.
type Pattern struct {
	ID        int64
	Type      Type
	Key       string
	Frequency int64
	FirstSeen time.Time
	LastSeen  time.Time

	Sequence  *SequencePayload
	Time      *TimePayload
	ErrorFix  *ErrorFixPayload
	Candidate *CandidatePayload
}

// SequencePayload is an adjacent pair of semantic types within a session.
type SequencePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TimePayload is a semantic type that recurs at an hour of the day.
type TimePayload struct {
	Hour         int    `json:"hour"`
	SemanticType string `json:"semantic_type"`
}

// ErrorFixPayload is a solution that repeatedly resolved errors of a type.
type ErrorFixPayload struct {
	ErrorType string `json:"error_type"`
	Solution  string `json:"solution"`
}

// CandidatePayload is a sequence worth saving as a workflow. Example holds
// the most frequent concrete commands for the steps, when any were
// non-sensitive.
type CandidatePayload struct {
	Steps   []string `json:"steps"`
	Example []string `json:"example,omitempty"`
}

func sequenceKey(from, to string) string {
	return from + "->" + to
}

func timeKey(hour int, semanticType string) string {
	return fmt.Sprintf("%02d|%s", hour, semanticType)
}

func errorFixKey(errorType, solution string) string {
	return errorType + "|" + solution
}

func (p *Pattern) payload() any {
	switch p.Type {
	case TypeSequence:
		return p.Sequence
	case TypeTime:
		return p.Time
	case TypeErrorFix:
		return p.ErrorFix
	case TypeWorkflowCandidate:
		return p.Candidate
	}
	return nil
}

func (p *Pattern) decodePayload(raw string) error {
	var dst any
	switch p.Type {
	case TypeSequence:
		p.Sequence = &SequencePayload{}
		dst = p.Sequence
	case TypeTime:
		p.Time = &TimePayload{}
		dst = p.Time
	case TypeErrorFix:
		p.ErrorFix = &ErrorFixPayload{}
		dst = p.ErrorFix
	case TypeWorkflowCandidate:
		p.Candidate = &CandidatePayload{}
		dst = p.Candidate
	default:
		return fmt.Errorf("unknown pattern type %q", p.Type)
	}
	return json.Unmarshal([]byte(raw), dst)
}

// Store reads the patterns table.
type Store struct {
	db *sql.DB
}

// NewStore creates a pattern reader over db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const patternColumns = `id, pattern_type, pattern_key, payload, frequency, first_seen_unix_ms, last_seen_unix_ms`

// List returns patterns of the given type (empty = all), most frequent
// first, then by key.
func (s *Store) List(ctx context.Context, typ Type, limit int) ([]Pattern, error) {
	query := `SELECT ` + patternColumns + ` FROM patterns`
	args := make([]interface{}, 0)
	if typ != "" {
		query += " WHERE pattern_type = ?"
		args = append(args, string(typ))
	}
	query += " ORDER BY frequency DESC, pattern_type ASC, pattern_key ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

// Get returns a single pattern by type and key.
func (s *Store) Get(ctx context.Context, typ Type, key string) (*Pattern, error) {
	patterns, err := s.query(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE pattern_type = ? AND pattern_key = ?`,
		string(typ), key)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return nil, ErrPatternNotFound
	}
	return &patterns[0], nil
}

// NextAfter returns the sequence patterns starting at semanticType, most
// frequent first.
func (s *Store) NextAfter(ctx context.Context, semanticType string, limit int) ([]Pattern, error) {
	prefix := sequenceKey(semanticType, "")
	query := `SELECT ` + patternColumns + ` FROM patterns
		WHERE pattern_type = ? AND substr(pattern_key, 1, ?) = ?
		ORDER BY frequency DESC, pattern_key ASC`
	args := []interface{}{string(TypeSequence), len(prefix), prefix}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) ([]Pattern, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []Pattern
	for rows.Next() {
		var p Pattern
		var typ, payload string
		var first, last int64
		if err := rows.Scan(&p.ID, &typ, &p.Key, &payload, &p.Frequency, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		p.Type = Type(typ)
		p.FirstSeen = time.UnixMilli(first)
		p.LastSeen = time.UnixMilli(last)
		if err := p.decodePayload(payload); err != nil {
			return nil, fmt.Errorf("failed to decode %s pattern %q: %w", typ, p.Key, err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patterns: %w", err)
	}
	return patterns, nil
}
