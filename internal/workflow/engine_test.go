package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anivar/termbrain-sub001/internal/storage"
)

// fakeExecutor returns scripted exit codes by step position and records
// every command it was asked to run.
type fakeExecutor struct {
	mu    sync.Mutex
	exits map[int]int
	err   map[int]error
	ran   []string
}

func (f *fakeExecutor) Execute(_ context.Context, step Step) (*StepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, step.Command)
	if err := f.err[step.Position]; err != nil {
		return nil, err
	}
	return &StepResult{
		Position: step.Position,
		Command:  step.Command,
		ExitCode: f.exits[step.Position],
		Duration: time.Millisecond,
	}, nil
}

func (f *fakeExecutor) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ran...)
}

func newTestEngine(t *testing.T, exec StepExecutor) *Engine {
	t.Helper()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewEngine(store.DB(), exec)
}

func TestEngine_CreateAndGet(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &fakeExecutor{})
	ctx := context.Background()

	w, err := e.Create(ctx, "release", "tag and push", []string{"go test ./...", "git tag v1", "git push --tags"})
	require.NoError(t, err)
	assert.NotZero(t, w.ID)
	assert.Equal(t, "release", w.Name)
	assert.Equal(t, "tag and push", w.Description)
	assert.Equal(t, []string{"go test ./...", "git tag v1", "git push --tags"}, w.Commands)
	assert.Zero(t, w.TimesUsed)
	assert.Zero(t, w.SuccessRate)

	got, err := e.Get(ctx, "release")
	require.NoError(t, err)
	assert.Equal(t, w, got)
}

func TestEngine_Create_Validation(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &fakeExecutor{})
	ctx := context.Background()

	tests := []struct {
		name     string
		wfName   string
		commands []string
		field    string
	}{
		{"empty name", " ", []string{"ls"}, "name"},
		{"no commands", "a", nil, "commands"},
		{"blank step", "a", []string{"ls", "  "}, "commands[1]"},
	}
	for _, tt := range tests {
		_, err := e.Create(ctx, tt.wfName, "", tt.commands)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, tt.name)
		assert.Equal(t, tt.field, verr.Field, tt.name)
	}

	list, err := e.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEngine_Create_Duplicate(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &fakeExecutor{})
	ctx := context.Background()

	_, err := e.Create(ctx, "deploy", "", []string{"make deploy"})
	require.NoError(t, err)

	_, err = e.Create(ctx, "deploy", "other", []string{"echo other"})
	assert.ErrorIs(t, err, ErrWorkflowExists)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	w, err := e.Get(ctx, "deploy")
	require.NoError(t, err)
	assert.Equal(t, []string{"make deploy"}, w.Commands)
	assert.Empty(t, w.Description)
}

func TestEngine_Update(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &fakeExecutor{})
	ctx := context.Background()

	_, err := e.Create(ctx, "ci", "", []string{"make", "make test"})
	require.NoError(t, err)

	w, err := e.Update(ctx, "ci", []string{"make lint", "make", "make test"})
	require.NoError(t, err)
	assert.Equal(t, []string{"make lint", "make", "make test"}, w.Commands)

	_, err = e.Update(ctx, "missing", []string{"ls"})
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	_, err = e.Update(ctx, "ci", nil)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestEngine_ListAndDelete(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &fakeExecutor{})
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := e.Create(ctx, name, "", []string{"echo " + name})
		require.NoError(t, err)
	}

	list, err := e.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, []string{"echo alpha"}, list[0].Commands)
	assert.Equal(t, "zeta", list[2].Name)

	require.NoError(t, e.Delete(ctx, "mid"))
	assert.ErrorIs(t, e.Delete(ctx, "mid"), ErrWorkflowNotFound)
	_, err = e.Get(ctx, "mid")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestEngine_NamesAreTrimmed(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	e := newTestEngine(t, exec)
	ctx := context.Background()

	w, err := e.Create(ctx, " ship ", "", []string{"make"})
	require.NoError(t, err)
	assert.Equal(t, "ship", w.Name)

	got, err := e.Get(ctx, " ship ")
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)

	updated, err := e.Update(ctx, "ship\t", []string{"make", "make install"})
	require.NoError(t, err)
	assert.Equal(t, []string{"make", "make install"}, updated.Commands)

	res, err := e.Run(ctx, " ship ", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, []string{"make", "make install"}, exec.commands())

	runs, err := e.Runs(ctx, " ship", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	require.NoError(t, e.Delete(ctx, "ship "))
	_, err = e.Get(ctx, "ship")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestEngine_Run_Success(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	e := newTestEngine(t, exec)
	ctx := context.Background()

	_, err := e.Create(ctx, "build", "", []string{"make", "make test"})
	require.NoError(t, err)

	res, err := e.Run(ctx, "build", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.Steps, 2)
	assert.Equal(t, int64(1), res.TimesUsed)
	assert.InDelta(t, 1.0, res.SuccessRate, 1e-9)
	assert.Equal(t, []string{"make", "make test"}, exec.commands())
}

func TestEngine_Run_FailFast(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{exits: map[int]int{2: 3}}
	e := newTestEngine(t, exec)
	ctx := context.Background()

	_, err := e.Create(ctx, "pipeline", "", []string{"one", "two", "three", "four"})
	require.NoError(t, err)

	res, err := e.Run(ctx, "pipeline", RunOptions{})
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 2, stepErr.Position)
	assert.Equal(t, "two", stepErr.Command)
	assert.Equal(t, 3, stepErr.ExitCode)

	require.NotNil(t, res)
	assert.Equal(t, StateFailed, res.State)
	assert.Len(t, res.Steps, 2)
	assert.Equal(t, []string{"one", "two"}, exec.commands())
	assert.Equal(t, int64(1), res.TimesUsed)
	assert.Zero(t, res.SuccessRate)
}

func TestEngine_Run_ExecutorError(t *testing.T) {
	t.Parallel()

	boom := errors.New("fork failed")
	e := newTestEngine(t, &fakeExecutor{err: map[int]error{1: boom}})
	ctx := context.Background()

	_, err := e.Create(ctx, "w", "", []string{"a", "b"})
	require.NoError(t, err)

	res, err := e.Run(ctx, "w", RunOptions{})
	assert.ErrorIs(t, err, boom)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1, stepErr.Position)
	assert.Equal(t, StateFailed, res.State)
}

func TestEngine_Run_SuccessRate(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	e := newTestEngine(t, exec)
	ctx := context.Background()

	_, err := e.Create(ctx, "flaky", "", []string{"step"})
	require.NoError(t, err)

	// success, failure, success
	outcomes := []int{0, 1, 0}
	for _, exit := range outcomes {
		exec.mu.Lock()
		exec.exits = map[int]int{1: exit}
		exec.mu.Unlock()
		_, _ = e.Run(ctx, "flaky", RunOptions{})
	}

	w, err := e.Get(ctx, "flaky")
	require.NoError(t, err)
	assert.Equal(t, int64(3), w.TimesUsed)
	assert.InDelta(t, 2.0/3.0, w.SuccessRate, 1e-9)
}

func TestEngine_Run_DryRun(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	e := newTestEngine(t, exec)
	ctx := context.Background()

	_, err := e.Create(ctx, "plan", "", []string{"a", "b"})
	require.NoError(t, err)

	res, err := e.Run(ctx, "plan", RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, StateDefined, res.State)
	assert.Equal(t, []string{"a", "b"}, res.Planned)
	assert.Empty(t, res.Steps)
	assert.Empty(t, exec.commands())

	w, err := e.Get(ctx, "plan")
	require.NoError(t, err)
	assert.Zero(t, w.TimesUsed)

	runs, err := e.Runs(ctx, "plan", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestEngine_Run_NotFound(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &fakeExecutor{})
	_, err := e.Run(context.Background(), "nope", RunOptions{})
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

// cancelExecutor cancels the run from inside the first step.
type cancelExecutor struct {
	fakeExecutor
	cancel context.CancelFunc
}

func (c *cancelExecutor) Execute(ctx context.Context, step Step) (*StepResult, error) {
	c.cancel()
	return c.fakeExecutor.Execute(ctx, step)
}

func TestEngine_Run_CancelledMidRun(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec := &cancelExecutor{cancel: cancel}
	e := newTestEngine(t, exec)

	_, err := e.Create(ctx, "w", "", []string{"a", "b"})
	require.NoError(t, err)

	res, err := e.Run(ctx, "w", RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 2, stepErr.Position)
	require.NotNil(t, res)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, []string{"a"}, exec.commands())

	w, err := e.Get(context.Background(), "w")
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.TimesUsed)
	assert.Zero(t, w.SuccessRate)
}

func TestEngine_Runs(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{exits: map[int]int{2: 1}}
	e := newTestEngine(t, exec)
	ctx := context.Background()
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	e.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	_, err := e.Create(ctx, "w", "", []string{"a", "b"})
	require.NoError(t, err)
	_, _ = e.Run(ctx, "w", RunOptions{})
	exec.mu.Lock()
	exec.exits = nil
	exec.mu.Unlock()
	_, err = e.Run(ctx, "w", RunOptions{})
	require.NoError(t, err)

	runs, err := e.Runs(ctx, "w", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, StateCompleted, runs[0].State)
	assert.Zero(t, runs[0].FailedStep)
	assert.Equal(t, StateFailed, runs[1].State)
	assert.Equal(t, 2, runs[1].FailedStep)
	require.NotNil(t, runs[1].EndedAt)
	assert.Equal(t, time.Second, runs[1].Duration)
}

func TestRunState_CanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to RunState
		want     bool
	}{
		{StateDefined, StateRunning, true},
		{StateDefined, StateCompleted, false},
		{StateRunning, StateCompleted, true},
		{StateRunning, StateFailed, true},
		{StateRunning, StateDefined, false},
		{StateCompleted, StateRunning, false},
		{StateFailed, StateCompleted, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateRunning.Terminal())
}
