package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Aggregate groups events by q.GroupBy. Grouping by anything but the raw
// command surfaces only the group key, so every event is counted; grouping
// by command skips sensitive events. Buckets are ordered by count
// descending, then key.
func (s *SQLiteStore) Aggregate(ctx context.Context, q AggregateQuery) ([]Bucket, error) {
	loc := q.Location
	if loc == nil {
		loc = time.Local
	}
	_, offset := s.now().In(loc).Zone()

	var keyExpr string
	args := make([]interface{}, 0)
	where := "WHERE 1=1"

	switch q.GroupBy {
	case GroupBySemanticType:
		keyExpr = "semantic_type"
	case GroupByIntent:
		keyExpr = "intent"
	case GroupByProjectType:
		keyExpr = "project_type"
	case GroupBySession:
		keyExpr = "session_id"
	case GroupByHour:
		keyExpr = "strftime('%H', ts_unix_ms / 1000 + ?, 'unixepoch')"
		args = append(args, offset)
	case GroupByDay:
		keyExpr = "strftime('%Y-%m-%d', ts_unix_ms / 1000 + ?, 'unixepoch')"
		args = append(args, offset)
	case GroupByCommand:
		keyExpr = "command"
		where += " AND is_sensitive = 0"
	default:
		return nil, fmt.Errorf("unsupported group by: %q", q.GroupBy)
	}

	if !q.Since.IsZero() {
		where += " AND ts_unix_ms >= ?"
		args = append(args, q.Since.UnixMilli())
	}
	if q.SessionID != "" {
		where += " AND session_id = ?"
		args = append(args, q.SessionID)
	}

	query := fmt.Sprintf(`
		SELECT %s AS k,
		       COUNT(*),
		       SUM(CASE WHEN exit_code IS NOT NULL AND exit_code != 0 THEN 1 ELSE 0 END),
		       COALESCE(AVG(duration_ms), 0)
		FROM commands
		%s
		GROUP BY k
		ORDER BY COUNT(*) DESC, k ASC
	`, keyExpr, where)
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate commands: %w", err)
	}
	defer rows.Close()

	var buckets []Bucket
	for rows.Next() {
		var b Bucket
		var key sql.NullString
		if err := rows.Scan(&key, &b.Count, &b.Failures, &b.AvgDurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		b.Key = key.String
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating buckets: %w", err)
	}
	return buckets, nil
}

// Totals summarizes all events since the given time (zero = all time).
func (s *SQLiteStore) Totals(ctx context.Context, since time.Time) (*Totals, error) {
	var t Totals
	var first, last sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(exit_code),
		       COALESCE(SUM(CASE WHEN exit_code IS NOT NULL AND exit_code != 0 THEN 1 ELSE 0 END), 0),
		       COUNT(DISTINCT session_id),
		       COALESCE(SUM(is_sensitive), 0),
		       MIN(ts_unix_ms),
		       MAX(ts_unix_ms)
		FROM commands
		WHERE ts_unix_ms >= ?
	`, sinceMs(since)).Scan(&t.Commands, &t.Finalized, &t.Failures, &t.Sessions, &t.Sensitive, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to compute totals: %w", err)
	}
	if first.Valid {
		ft := fromUnixMs(first.Int64)
		t.First = &ft
	}
	if last.Valid {
		lt := fromUnixMs(last.Int64)
		t.Last = &lt
	}
	return &t, nil
}

// Sessions lists sessions derived from their events, most recently active
// first.
func (s *SQLiteStore) Sessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id,
		       MIN(ts_unix_ms),
		       MAX(ts_unix_ms),
		       COUNT(*),
		       SUM(CASE WHEN exit_code IS NOT NULL AND exit_code != 0 THEN 1 ELSE 0 END)
		FROM commands
		GROUP BY session_id
		ORDER BY MAX(ts_unix_ms) DESC, session_id ASC
		LIMIT ?
	`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		var ss SessionSummary
		var first, last int64
		if err := rows.Scan(&ss.SessionID, &first, &last, &ss.Commands, &ss.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		ss.FirstSeen = fromUnixMs(first)
		ss.LastSeen = fromUnixMs(last)
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}

func sinceMs(since time.Time) int64 {
	if since.IsZero() {
		return 0
	}
	return since.UnixMilli()
}
