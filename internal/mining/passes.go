package mining

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// sequenceCTE pairs each event with the next event of the same session.
const sequenceCTE = `
	WITH pairs AS (
		SELECT semantic_type AS from_type,
		       exit_code AS from_exit,
		       command AS from_cmd,
		       is_sensitive AS from_sensitive,
		       LEAD(semantic_type) OVER w AS to_type,
		       LEAD(command) OVER w AS to_cmd,
		       LEAD(is_sensitive) OVER w AS to_sensitive,
		       LEAD(ts_unix_ms) OVER w AS to_ts
		FROM commands
		WINDOW w AS (PARTITION BY session_id ORDER BY id)
	)
`

// mineSequences counts adjacent (type, next type) pairs whose first
// command succeeded.
func (m *Miner) mineSequences(ctx context.Context) ([]Pattern, error) {
	var patterns []Pattern
	err := m.readTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, sequenceCTE+`
			SELECT from_type, to_type, COUNT(*), MIN(to_ts), MAX(to_ts)
			FROM pairs
			WHERE to_type IS NOT NULL AND from_exit = 0
			GROUP BY from_type, to_type
			HAVING COUNT(*) >= ?
			ORDER BY COUNT(*) DESC, from_type || '->' || to_type ASC
		`, m.cfg.SequenceMinFrequency)
		if err != nil {
			return fmt.Errorf("query sequences: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var from, to string
			var freq, first, last int64
			if err := rows.Scan(&from, &to, &freq, &first, &last); err != nil {
				return fmt.Errorf("scan sequence: %w", err)
			}
			patterns = append(patterns, Pattern{
				Type:      TypeSequence,
				Key:       sequenceKey(from, to),
				Frequency: freq,
				FirstSeen: time.UnixMilli(first),
				LastSeen:  time.UnixMilli(last),
				Sequence:  &SequencePayload{From: from, To: to},
			})
		}
		return rows.Err()
	})
	return patterns, err
}

type timeBucket struct {
	hour         int
	semanticType string
	count        int64
	first, last  int64
}

// mineTimes counts events in the trailing window by (local hour, type).
// Hours are bucketed in Go so that DST changes inside the window land in the
// right hour.
func (m *Miner) mineTimes(ctx context.Context) ([]Pattern, error) {
	since := m.now().Add(-m.cfg.TimeWindow).UnixMilli()
	buckets := make(map[string]*timeBucket)

	err := m.readTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT ts_unix_ms, semantic_type FROM commands WHERE ts_unix_ms >= ?
		`, since)
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var ts int64
			var typ string
			if err := rows.Scan(&ts, &typ); err != nil {
				return fmt.Errorf("scan event: %w", err)
			}
			hour := time.UnixMilli(ts).In(m.cfg.Location).Hour()
			key := timeKey(hour, typ)
			b, ok := buckets[key]
			if !ok {
				b = &timeBucket{hour: hour, semanticType: typ, first: ts, last: ts}
				buckets[key] = b
			}
			b.count++
			if ts < b.first {
				b.first = ts
			}
			if ts > b.last {
				b.last = ts
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	var patterns []Pattern
	for key, b := range buckets {
		if b.count < int64(m.cfg.TimeMinFrequency) {
			continue
		}
		patterns = append(patterns, Pattern{
			Type:      TypeTime,
			Key:       key,
			Frequency: b.count,
			FirstSeen: time.UnixMilli(b.first),
			LastSeen:  time.UnixMilli(b.last),
			Time:      &TimePayload{Hour: b.hour, SemanticType: b.semanticType},
		})
	}
	sortPatterns(patterns)
	return patterns, nil
}

// mineErrorFixes counts solved errors by (error type, solution).
func (m *Miner) mineErrorFixes(ctx context.Context) ([]Pattern, error) {
	var patterns []Pattern
	err := m.readTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT c.semantic_type, e.solution, COUNT(*),
			       MIN(COALESCE(e.solved_at_unix_ms, e.ts_unix_ms)),
			       MAX(COALESCE(e.solved_at_unix_ms, e.ts_unix_ms))
			FROM errors e
			JOIN commands c ON c.id = e.command_id
			WHERE e.solved = 1 AND e.solution IS NOT NULL AND TRIM(e.solution) != ''
			GROUP BY c.semantic_type, e.solution
			HAVING COUNT(*) >= ?
			ORDER BY COUNT(*) DESC, c.semantic_type ASC, e.solution ASC
		`, m.cfg.ErrorFixMinFrequency)
		if err != nil {
			return fmt.Errorf("query error fixes: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var errType, solution string
			var freq, first, last int64
			if err := rows.Scan(&errType, &solution, &freq, &first, &last); err != nil {
				return fmt.Errorf("scan error fix: %w", err)
			}
			patterns = append(patterns, Pattern{
				Type:      TypeErrorFix,
				Key:       errorFixKey(errType, solution),
				Frequency: freq,
				FirstSeen: time.UnixMilli(first),
				LastSeen:  time.UnixMilli(last),
				ErrorFix:  &ErrorFixPayload{ErrorType: errType, Solution: solution},
			})
		}
		return rows.Err()
	})
	return patterns, err
}

// mineCandidates turns each detected sequence into a workflow candidate,
// attaching the most frequent non-sensitive concrete command pair as an
// example.
func (m *Miner) mineCandidates(ctx context.Context, sequences []Pattern) ([]Pattern, error) {
	if len(sequences) == 0 {
		return nil, nil
	}

	examples := make(map[string][]string)
	err := m.readTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, sequenceCTE+`
			SELECT from_type, to_type, from_cmd, to_cmd, COUNT(*)
			FROM pairs
			WHERE to_type IS NOT NULL AND from_exit = 0
			  AND from_sensitive = 0 AND to_sensitive = 0
			GROUP BY from_type, to_type, from_cmd, to_cmd
			ORDER BY COUNT(*) DESC, from_cmd ASC, to_cmd ASC
		`)
		if err != nil {
			return fmt.Errorf("query examples: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var from, to, fromCmd, toCmd string
			var n int64
			if err := rows.Scan(&from, &to, &fromCmd, &toCmd, &n); err != nil {
				return fmt.Errorf("scan example: %w", err)
			}
			key := sequenceKey(from, to)
			if _, ok := examples[key]; !ok {
				examples[key] = []string{fromCmd, toCmd}
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	patterns := make([]Pattern, 0, len(sequences))
	for _, seq := range sequences {
		patterns = append(patterns, Pattern{
			Type:      TypeWorkflowCandidate,
			Key:       seq.Key,
			Frequency: seq.Frequency,
			FirstSeen: seq.FirstSeen,
			LastSeen:  seq.LastSeen,
			Candidate: &CandidatePayload{
				Steps:   []string{seq.Sequence.From, seq.Sequence.To},
				Example: examples[seq.Key],
			},
		})
	}
	return patterns, nil
}

// sortPatterns orders by frequency descending, then key.
func sortPatterns(patterns []Pattern) {
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Frequency != patterns[j].Frequency {
			return patterns[i].Frequency > patterns[j].Frequency
		}
		return patterns[i].Key < patterns[j].Key
	})
}
