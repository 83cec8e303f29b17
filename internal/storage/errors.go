package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrErrorNotFound is returned when an error record is not found.
var ErrErrorNotFound = errors.New("error record not found")

const errorColumns = `
	e.id, e.command_id, c.session_id, c.command, c.is_sensitive, c.semantic_type,
	COALESCE(c.exit_code, 0), e.ts_unix_ms, e.solved, e.solution, e.solved_at_unix_ms
`

// RecordError records the failure of a finalized command.
func (s *SQLiteStore) RecordError(ctx context.Context, commandID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO errors (command_id, ts_unix_ms)
		SELECT id, ts_unix_ms FROM commands WHERE id = ?
	`, commandID)
	if err != nil {
		if isForeignKeyError(err) {
			return 0, ErrCommandNotFound
		}
		return 0, fmt.Errorf("failed to record error: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return 0, ErrCommandNotFound
	}
	return result.LastInsertId()
}

// SolveError marks an error solved with the given solution text.
func (s *SQLiteStore) SolveError(ctx context.Context, errorID int64, solution string) error {
	solution = strings.TrimSpace(solution)
	if solution == "" {
		return errors.New("solution is required")
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE errors
		SET solved = 1, solution = ?, solved_at_unix_ms = ?
		WHERE id = ?
	`, solution, s.now().UnixMilli(), errorID)
	if err != nil {
		return fmt.Errorf("failed to solve error: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrErrorNotFound
	}
	return nil
}

// GetError returns an error record by id.
func (s *SQLiteStore) GetError(ctx context.Context, errorID int64) (*ErrorRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+errorColumns+`
		FROM errors e
		JOIN commands c ON c.id = e.command_id
		WHERE e.id = ?
	`, errorID)

	rec, err := scanError(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get error: %w", err)
	}
	return rec, nil
}

// LatestUnsolvedError returns the newest unsolved error of a session whose
// command had the given semantic type and failed at or after since.
func (s *SQLiteStore) LatestUnsolvedError(ctx context.Context, sessionID, semanticType string, since time.Time) (*ErrorRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+errorColumns+`
		FROM errors e
		JOIN commands c ON c.id = e.command_id
		WHERE e.solved = 0
		  AND c.session_id = ?
		  AND c.semantic_type = ?
		  AND e.ts_unix_ms >= ?
		ORDER BY e.ts_unix_ms DESC, e.id DESC
		LIMIT 1
	`, sessionID, semanticType, sinceMs(since))

	rec, err := scanError(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unsolved error: %w", err)
	}
	return rec, nil
}

// QueryErrors lists error records, newest first.
func (s *SQLiteStore) QueryErrors(ctx context.Context, f ErrorFilter) ([]ErrorRecord, error) {
	query := `SELECT ` + errorColumns + ` FROM errors e JOIN commands c ON c.id = e.command_id WHERE 1=1`
	args := make([]interface{}, 0)

	if f.SessionID != "" {
		query += " AND c.session_id = ?"
		args = append(args, f.SessionID)
	}
	if f.SemanticType != "" {
		query += " AND c.semantic_type = ?"
		args = append(args, f.SemanticType)
	}
	if f.SolvedOnly {
		query += " AND e.solved = 1"
	}
	if f.UnsolvedOnly {
		query += " AND e.solved = 0"
	}
	query += " ORDER BY e.ts_unix_ms DESC, e.id DESC LIMIT ?"
	args = append(args, limitOrDefault(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query errors: %w", err)
	}
	defer rows.Close()

	var records []ErrorRecord
	for rows.Next() {
		rec, err := scanError(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan error: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanError(r rowScanner) (*ErrorRecord, error) {
	var rec ErrorRecord
	var command string
	var sensitive, solved int
	var ts int64
	var solution sql.NullString
	var solvedAt sql.NullInt64

	err := r.Scan(
		&rec.ID,
		&rec.CommandID,
		&rec.SessionID,
		&command,
		&sensitive,
		&rec.SemanticType,
		&rec.ExitCode,
		&ts,
		&solved,
		&solution,
		&solvedAt,
	)
	if err != nil {
		return nil, err
	}

	if sensitive == 0 {
		rec.Command = command
	}
	rec.Timestamp = fromUnixMs(ts)
	rec.Solved = solved != 0
	rec.Solution = solution.String
	if solvedAt.Valid {
		t := fromUnixMs(solvedAt.Int64)
		rec.SolvedAt = &t
	}
	return &rec, nil
}
