package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anivar/termbrain-sub001/internal/logging"
	"github.com/anivar/termbrain-sub001/internal/storage"
	"github.com/anivar/termbrain-sub001/internal/telemetry"
)

// Engine manages workflows and runs them.
type Engine struct {
	db       *sql.DB
	executor StepExecutor
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time
}

// NewEngine creates an engine over db. A nil executor uses a ShellExecutor
// with default settings.
func NewEngine(db *sql.DB, executor StepExecutor) *Engine {
	if executor == nil {
		executor = NewShellExecutor(ShellConfig{})
	}
	return &Engine{
		db:       db,
		executor: executor,
		logger:   logging.Discard(),
		now:      time.Now,
	}
}

// SetLogger sets the logger for run results.
func (e *Engine) SetLogger(l *slog.Logger) {
	e.logger = logging.OrDiscard(l)
}

// SetMetrics sets the metrics recorder. Nil disables metrics.
func (e *Engine) SetMetrics(m *telemetry.Metrics) {
	e.metrics = m
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Reason: "workflow name is required"}
	}
	return nil
}

func validateCommands(commands []string) error {
	if len(commands) == 0 {
		return &ValidationError{Field: "commands", Reason: "workflow must have at least one command"}
	}
	for i, c := range commands {
		if strings.TrimSpace(c) == "" {
			return &ValidationError{
				Field:  fmt.Sprintf("commands[%d]", i),
				Reason: "command must not be empty",
			}
		}
	}
	return nil
}

// Create stores a new workflow. Nothing is written when validation fails.
func (e *Engine) Create(ctx context.Context, name, description string, commands []string) (*Workflow, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateCommands(commands); err != nil {
		return nil, err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	nowMs := e.now().UnixMilli()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO workflows (name, description, times_used, success_rate, created_at_unix_ms, updated_at_unix_ms)
		VALUES (?, ?, 0, 0, ?, ?)
	`, name, strings.TrimSpace(description), nowMs, nowMs)
	if err != nil {
		if storage.IsDuplicateKeyError(err) {
			return nil, &ValidationError{Field: "name", Reason: fmt.Sprintf("workflow %q already exists", name), Err: ErrWorkflowExists}
		}
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow id: %w", err)
	}

	if err := insertSteps(ctx, tx, id, commands); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return e.Get(ctx, name)
}

// Update replaces the commands of an existing workflow.
func (e *Engine) Update(ctx context.Context, name string, commands []string) (*Workflow, error) {
	name = strings.TrimSpace(name)
	if err := validateCommands(commands); err != nil {
		return nil, err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM workflows WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up workflow: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_steps WHERE workflow_id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to clear steps: %w", err)
	}
	if err := insertSteps(ctx, tx, id, commands); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE workflows SET updated_at_unix_ms = ? WHERE id = ?`, e.now().UnixMilli(), id); err != nil {
		return nil, fmt.Errorf("failed to touch workflow: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return e.Get(ctx, name)
}

func insertSteps(ctx context.Context, tx *sql.Tx, workflowID int64, commands []string) error {
	for i, c := range commands {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_steps (workflow_id, position, command) VALUES (?, ?, ?)
		`, workflowID, i+1, strings.TrimSpace(c)); err != nil {
			return fmt.Errorf("failed to insert step %d: %w", i+1, err)
		}
	}
	return nil
}

const workflowColumns = `id, name, description, times_used, success_rate, created_at_unix_ms, updated_at_unix_ms`

// Get returns a workflow with its commands.
func (e *Engine) Get(ctx context.Context, name string) (*Workflow, error) {
	name = strings.TrimSpace(name)
	row := e.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE name = ?`, name)
	w, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	steps, err := e.loadSteps(ctx, []int64{w.ID})
	if err != nil {
		return nil, err
	}
	w.Commands = steps[w.ID]
	return w, nil
}

// List returns every workflow ordered by name.
func (e *Engine) List(ctx context.Context) ([]Workflow, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT `+workflowColumns+` FROM workflows ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	var workflows []Workflow
	var ids []int64
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, *w)
		ids = append(ids, w.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}
	rows.Close()

	steps, err := e.loadSteps(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range workflows {
		workflows[i].Commands = steps[workflows[i].ID]
	}
	return workflows, nil
}

func (e *Engine) loadSteps(ctx context.Context, ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := e.db.QueryContext(ctx, `
		SELECT workflow_id, command FROM workflow_steps
		WHERE workflow_id IN (`+placeholders+`)
		ORDER BY workflow_id, position ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var cmd string
		if err := rows.Scan(&id, &cmd); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		out[id] = append(out[id], cmd)
	}
	return out, rows.Err()
}

// Delete removes a workflow with its steps and run history.
func (e *Engine) Delete(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	result, err := e.db.ExecContext(ctx, `DELETE FROM workflows WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

// Run executes the workflow's commands in order and stops at the first
// failing step, returning a *StepError alongside the result. Statistics are
// updated once per real run.
func (e *Engine) Run(ctx context.Context, name string, opts RunOptions) (*RunResult, error) {
	w, err := e.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:       uuid.NewString(),
		Workflow:    w.Name,
		State:       StateDefined,
		DryRun:      opts.DryRun,
		Planned:     append([]string(nil), w.Commands...),
		TimesUsed:   w.TimesUsed,
		SuccessRate: w.SuccessRate,
	}
	if opts.DryRun {
		return result, nil
	}

	started := e.now()
	if err := result.transition(StateRunning); err != nil {
		return nil, err
	}
	if _, err := e.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (run_id, workflow_id, workflow_name, status, started_at_unix_ms)
		VALUES (?, ?, ?, ?, ?)
	`, result.RunID, w.ID, w.Name, string(StateRunning), started.UnixMilli()); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	stepErr := e.runSteps(ctx, w, opts, result)

	final := StateCompleted
	if stepErr != nil {
		final = StateFailed
	}
	if err := result.transition(final); err != nil {
		return nil, err
	}
	ended := e.now()
	result.Duration = ended.Sub(started)

	// The run record and statistics are written even if ctx was cancelled
	// mid-run.
	if err := e.finishRun(context.WithoutCancel(ctx), w, result, stepErr, ended); err != nil {
		return result, err
	}

	failedStep := 0
	if stepErr != nil {
		failedStep = stepErr.Position
	}
	logging.LogWorkflowRun(e.logger, w.Name, result.RunID, string(result.State), failedStep, result.Duration)
	e.metrics.WorkflowRun(ctx, string(result.State), result.Duration)

	if stepErr != nil {
		return result, stepErr
	}
	return result, nil
}

func (r *RunResult) transition(next RunState) error {
	if !r.State.CanTransition(next) {
		return fmt.Errorf("invalid run transition %s -> %s", r.State, next)
	}
	r.State = next
	return nil
}

// runSteps executes steps strictly in order. No step runs after a failure.
func (e *Engine) runSteps(ctx context.Context, w *Workflow, opts RunOptions, result *RunResult) *StepError {
	for i, command := range w.Commands {
		step := Step{Position: i + 1, Command: command, WorkDir: opts.WorkDir}

		if err := ctx.Err(); err != nil {
			return &StepError{Position: step.Position, Command: command, ExitCode: -1, Err: err}
		}

		res, err := e.executor.Execute(ctx, step)
		if err != nil {
			return &StepError{Position: step.Position, Command: command, ExitCode: -1, Err: err}
		}
		result.Steps = append(result.Steps, *res)
		if !res.Succeeded() {
			return &StepError{Position: step.Position, Command: command, ExitCode: res.ExitCode}
		}
	}
	return nil
}

// finishRun closes the run record and folds the outcome into the success
// rate using the pre-increment usage count.
func (e *Engine) finishRun(ctx context.Context, w *Workflow, result *RunResult, stepErr *StepError, ended time.Time) error {
	success := 1
	var failedStep interface{}
	if stepErr != nil {
		success = 0
		failedStep = stepErr.Position
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		UPDATE workflow_runs
		SET status = ?, failed_step = ?, ended_at_unix_ms = ?, duration_ms = ?
		WHERE run_id = ?
	`, string(result.State), failedStep, ended.UnixMilli(), result.Duration.Milliseconds(), result.RunID); err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE workflows
		SET success_rate = CASE WHEN ? = 1 THEN (success_rate * times_used + 1.0) / (times_used + 1)
		                        ELSE (success_rate * times_used) / (times_used + 1) END,
		    times_used = times_used + 1
		WHERE id = ?
	`, success, w.ID); err != nil {
		return fmt.Errorf("failed to update statistics: %w", err)
	}

	if err := tx.QueryRowContext(ctx,
		`SELECT times_used, success_rate FROM workflows WHERE id = ?`, w.ID,
	).Scan(&result.TimesUsed, &result.SuccessRate); err != nil {
		return fmt.Errorf("failed to read statistics: %w", err)
	}
	return tx.Commit()
}

// Runs returns the run history of a workflow, newest first.
func (e *Engine) Runs(ctx context.Context, name string, limit int) ([]Run, error) {
	name = strings.TrimSpace(name)
	if limit <= 0 {
		limit = 20
	}
	rows, err := e.db.QueryContext(ctx, `
		SELECT r.run_id, r.workflow_name, r.status, r.failed_step,
		       r.started_at_unix_ms, r.ended_at_unix_ms, r.duration_ms
		FROM workflow_runs r
		JOIN workflows w ON w.id = r.workflow_id
		WHERE w.name = ?
		ORDER BY r.started_at_unix_ms DESC, r.rowid DESC
		LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var state string
		var failedStep, ended, duration sql.NullInt64
		var started int64
		if err := rows.Scan(&r.RunID, &r.Workflow, &state, &failedStep, &started, &ended, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.State = RunState(state)
		r.FailedStep = int(failedStep.Int64)
		r.StartedAt = time.UnixMilli(started)
		if ended.Valid {
			t := time.UnixMilli(ended.Int64)
			r.EndedAt = &t
		}
		r.Duration = time.Duration(duration.Int64) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflow(r rowScanner) (*Workflow, error) {
	var w Workflow
	var created, updated int64
	if err := r.Scan(&w.ID, &w.Name, &w.Description, &w.TimesUsed, &w.SuccessRate, &created, &updated); err != nil {
		return nil, err
	}
	w.CreatedAt = time.UnixMilli(created)
	w.UpdatedAt = time.UnixMilli(updated)
	return &w, nil
}
