// Package workflow stores named command sequences and runs them step by
// step, stopping at the first failing step and tracking each workflow's
// success rate across runs.
package workflow

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrWorkflowNotFound is returned when no workflow has the given name.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowExists is returned when creating a workflow whose name is taken.
	ErrWorkflowExists = errors.New("workflow already exists")
)

// Workflow is a named, ordered list of commands.
type Workflow struct {
	ID          int64
	Name        string
	Description string
	Commands    []string
	TimesUsed   int64
	SuccessRate float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidationError reports a rejected workflow definition.
type ValidationError struct {
	Field  string // e.g. "name", "commands[2]"
	Reason string
	Err    error // optional sentinel, e.g. ErrWorkflowExists
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// RunState is the lifecycle state of a workflow run.
type RunState string

// Run states.
const (
	StateDefined   RunState = "defined"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateFailed    RunState = "failed"
)

// CanTransition reports whether a run may move from s to next.
func (s RunState) CanTransition(next RunState) bool {
	switch s {
	case StateDefined:
		return next == StateRunning
	case StateRunning:
		return next == StateCompleted || next == StateFailed
	}
	return false
}

// Terminal reports whether s is a final state.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// RunOptions configures Engine.Run.
type RunOptions struct {
	// DryRun reports the plan without executing steps or touching statistics.
	DryRun bool

	// WorkDir is the directory steps run in. Empty means the current directory.
	WorkDir string
}

// Step is one command handed to a StepExecutor. Position is 1-based.
type Step struct {
	Position int
	Command  string
	WorkDir  string
}

// StepResult is the outcome of one executed step.
type StepResult struct {
	Position int
	Command  string
	ExitCode int
	Duration time.Duration
	Output   string // sanitized tail of combined stdout and stderr
}

// Succeeded reports whether the step exited with status 0.
func (r *StepResult) Succeeded() bool {
	return r.ExitCode == 0
}

// StepError is returned by Run when a step fails. Later steps are not run.
type StepError struct {
	Position int
	Command  string
	ExitCode int
	Err      error // set when the step could not be executed at all
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %d (%s) failed: %v", e.Position, e.Command, e.Err)
	}
	return fmt.Sprintf("step %d (%s) exited with status %d", e.Position, e.Command, e.ExitCode)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// RunResult is the outcome of Engine.Run.
type RunResult struct {
	RunID    string
	Workflow string
	State    RunState
	DryRun   bool
	Planned  []string // commands in execution order
	Steps    []StepResult
	Duration time.Duration

	// Statistics after the run; unchanged for a dry run.
	TimesUsed   int64
	SuccessRate float64
}

// Run is a persisted run history entry.
type Run struct {
	RunID      string
	Workflow   string
	State      RunState
	FailedStep int // 0 when no step failed
	StartedAt  time.Time
	EndedAt    *time.Time
	Duration   time.Duration
}
