// Package knowledge stores confidence-scored insights grouped by topic.
// Entries start at a baseline confidence and only gain confidence when an
// outcome reinforces them.
package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sources of an insight.
const (
	SourceExperience    = "experience"
	SourceError         = "error"
	SourceDocumentation = "documentation"
)

// DefaultTopic is used when no topic can be derived.
const DefaultTopic = "general"

var (
	// ErrInvalid is returned for an empty topic or insight or an unknown source.
	ErrInvalid = errors.New("invalid knowledge entry")

	// ErrNotFound is returned when an entry does not exist.
	ErrNotFound = errors.New("knowledge entry not found")
)

// Config holds the confidence bounds.
type Config struct {
	BaselineConfidence int
	MaxConfidence      int
}

// DefaultConfig returns the default confidence bounds.
func DefaultConfig() Config {
	return Config{
		BaselineConfidence: 1,
		MaxConfidence:      10,
	}
}

// Entry is a single insight.
type Entry struct {
	ID         int64
	Topic      string
	Insight    string
	Source     string
	Confidence int
	Verified   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Base is the knowledge store.
type Base struct {
	db  *sql.DB
	cfg Config
	now func() time.Time
}

// NewBase creates a knowledge base over db. Invalid bounds fall back to the
// defaults.
func NewBase(db *sql.DB, cfg Config) *Base {
	def := DefaultConfig()
	if cfg.MaxConfidence <= 0 {
		cfg.MaxConfidence = def.MaxConfidence
	}
	if cfg.BaselineConfidence < 0 || cfg.BaselineConfidence > cfg.MaxConfidence {
		cfg.BaselineConfidence = def.BaselineConfidence
	}
	return &Base{db: db, cfg: cfg, now: time.Now}
}

func isValidSource(source string) bool {
	switch source {
	case SourceExperience, SourceError, SourceDocumentation:
		return true
	}
	return false
}

const entryColumns = `id, topic, insight, source, confidence, verified, created_at_unix_ms, updated_at_unix_ms`

// Record stores an insight at baseline confidence. Recording an existing
// (topic, insight) pair returns the existing entry unchanged.
func (b *Base) Record(ctx context.Context, topic, insight, source string) (*Entry, error) {
	topic = strings.TrimSpace(topic)
	insight = strings.TrimSpace(insight)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalid)
	}
	if insight == "" {
		return nil, fmt.Errorf("%w: insight is required", ErrInvalid)
	}
	if !isValidSource(source) {
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalid, source)
	}

	nowMs := b.now().UnixMilli()
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO knowledge (topic, insight, source, confidence, verified, created_at_unix_ms, updated_at_unix_ms)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(topic, insight) DO NOTHING
	`, topic, insight, source, b.cfg.BaselineConfidence, nowMs, nowMs)
	if err != nil {
		return nil, fmt.Errorf("failed to record knowledge: %w", err)
	}

	row := b.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM knowledge WHERE topic = ? AND insight = ?`, topic, insight)
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge: %w", err)
	}
	return e, nil
}

// Get returns an entry by id.
func (b *Base) Get(ctx context.Context, id int64) (*Entry, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM knowledge WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get knowledge: %w", err)
	}
	return e, nil
}

// Reinforce raises the confidence of every entry of topic whose insight
// contains substr by one, capped at the maximum, and marks it verified. It
// returns the number of entries updated; zero means nothing matched.
func (b *Base) Reinforce(ctx context.Context, topic, substr string) (int64, error) {
	topic = strings.TrimSpace(topic)
	substr = strings.TrimSpace(substr)
	if topic == "" || substr == "" {
		return 0, fmt.Errorf("%w: topic and insight are required", ErrInvalid)
	}

	result, err := b.db.ExecContext(ctx, `
		UPDATE knowledge
		SET confidence = MIN(?, confidence + 1),
		    verified = 1,
		    updated_at_unix_ms = ?
		WHERE topic = ? AND instr(insight, ?) > 0
	`, b.cfg.MaxConfidence, b.now().UnixMilli(), topic, substr)
	if err != nil {
		return 0, fmt.Errorf("failed to reinforce knowledge: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// FindByTopic returns entries whose topic or insight contains query
// (case-insensitive), most confident first, then most recently updated.
// An empty query lists every entry.
func (b *Base) FindByTopic(ctx context.Context, query string, limit int) ([]Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM knowledge`
	args := make([]interface{}, 0)
	if query = strings.TrimSpace(query); query != "" {
		pattern := "%" + escapeLike(query) + "%"
		q += ` WHERE topic LIKE ? ESCAPE '\' OR insight LIKE ? ESCAPE '\'`
		args = append(args, pattern, pattern)
	}
	q += " ORDER BY confidence DESC, updated_at_unix_ms DESC, id DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := b.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan knowledge: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// DeriveTopic picks the most common semantic type of recent, which is
// ordered most recent first. Ties go to the type seen most recently.
func DeriveTopic(recent []string) string {
	counts := make(map[string]int)
	firstIdx := make(map[string]int)
	for i, t := range recent {
		if t == "" {
			continue
		}
		if _, ok := counts[t]; !ok {
			firstIdx[t] = i
		}
		counts[t]++
	}

	best := ""
	for t, n := range counts {
		switch {
		case best == "":
			best = t
		case n > counts[best]:
			best = t
		case n == counts[best] && firstIdx[t] < firstIdx[best]:
			best = t
		}
	}
	if best == "" {
		return DefaultTopic
	}
	return best
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(r rowScanner) (*Entry, error) {
	var e Entry
	var verified int
	var created, updated int64
	if err := r.Scan(&e.ID, &e.Topic, &e.Insight, &e.Source, &e.Confidence, &verified, &created, &updated); err != nil {
		return nil, err
	}
	e.Verified = verified != 0
	e.CreatedAt = time.UnixMilli(created)
	e.UpdatedAt = time.UnixMilli(updated)
	return &e, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
