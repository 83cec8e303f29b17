package core

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anivar/termbrain-sub001/internal/advisor"
	"github.com/anivar/termbrain-sub001/internal/config"
	"github.com/anivar/termbrain-sub001/internal/intention"
	"github.com/anivar/termbrain-sub001/internal/knowledge"
	"github.com/anivar/termbrain-sub001/internal/mining"
	"github.com/anivar/termbrain-sub001/internal/session"
	"github.com/anivar/termbrain-sub001/internal/storage"
	"github.com/anivar/termbrain-sub001/internal/telemetry"
	"github.com/anivar/termbrain-sub001/internal/workflow"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type recordingExecutor struct {
	mu  sync.Mutex
	ran []string
}

func (r *recordingExecutor) Execute(_ context.Context, step workflow.Step) (*workflow.StepResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, step.Command)
	return &workflow.StepResult{Position: step.Position, Command: step.Command}, nil
}

type testEngine struct {
	*Engine
	clock    time.Time
	executor *recordingExecutor
}

func newTestEngine(t *testing.T, mutate func(*config.Config)) *testEngine {
	t.Helper()

	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	exec := &recordingExecutor{}
	e, err := Open(filepath.Join(t.TempDir(), "test.db"), Options{
		Config:       cfg,
		Executor:     exec,
		Location:     time.UTC,
		BranchLookup: func(string) string { return "" },
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	te := &testEngine{Engine: e, clock: base, executor: exec}
	e.now = func() time.Time { return te.clock }
	return te
}

// run captures one command that finishes with exitCode one minute later.
func (te *testEngine) run(t *testing.T, sess session.Context, command string, exitCode int) *EndResult {
	t.Helper()
	ctx := context.Background()

	id, err := te.Start(ctx, sess, command)
	require.NoError(t, err)
	require.NotZero(t, id, "command %q was not recorded", command)

	res, err := te.End(ctx, sess, id, exitCode, 50)
	require.NoError(t, err)
	te.clock = te.clock.Add(time.Minute)
	return res
}

func sess(id string) session.Context {
	return session.Context{SessionID: id, CWD: "/repo"}
}

func TestEngine_CaptureClassifies(t *testing.T) {
	t.Parallel()

	te := newTestEngine(t, nil)
	ctx := context.Background()

	s := session.Context{SessionID: "s1", CWD: "/repo", GitBranch: "feature", ProjectType: "go"}
	res := te.run(t, s, "go test ./...", 0)
	assert.Zero(t, res.ErrorID)

	ev, err := te.Store().Get(ctx, res.EventID)
	require.NoError(t, err)
	assert.Equal(t, "testing", ev.SemanticType)
	assert.Equal(t, "go", ev.ProjectType)
	require.NotNil(t, ev.GitBranch)
	assert.Equal(t, "feature", *ev.GitBranch)
	assert.True(t, ev.Succeeded())
	assert.Equal(t, int64(50), *ev.DurationMs)
	assert.True(t, ev.Timestamp.Equal(base))
}

func TestEngine_Capture_BranchLookup(t *testing.T) {
	t.Parallel()

	e, err := Open(filepath.Join(t.TempDir(), "test.db"), Options{
		BranchLookup: func(cwd string) string { return "main@" + cwd },
	})
	require.NoError(t, err)
	defer e.Close()

	id, err := e.Start(context.Background(), sess("s"), "ls")
	require.NoError(t, err)
	ev, err := e.Store().Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, ev.GitBranch)
	assert.Equal(t, "main@/repo", *ev.GitBranch)
}

func TestEngine_Capture_Skipped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("exclude prefix", func(t *testing.T) {
		t.Parallel()
		te := newTestEngine(t, func(c *config.Config) {
			c.Capture.ExcludePrefixes = []string{" ", "history"}
		})
		for _, cmd := range []string{" secret thing", "history | tail", "   "} {
			id, err := te.Start(ctx, sess("s"), cmd)
			require.NoError(t, err)
			assert.Zero(t, id, cmd)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		te := newTestEngine(t, func(c *config.Config) { c.Capture.Enabled = false })
		id, err := te.Start(ctx, sess("s"), "ls")
		require.NoError(t, err)
		assert.Zero(t, id)
	})

	t.Run("missing session", func(t *testing.T) {
		t.Parallel()
		te := newTestEngine(t, nil)
		_, err := te.Start(ctx, session.Context{}, "ls")
		assert.ErrorIs(t, err, session.ErrInvalidID)
	})
}

func TestEngine_End_Twice(t *testing.T) {
	t.Parallel()

	te := newTestEngine(t, nil)
	ctx := context.Background()

	id, err := te.Start(ctx, sess("s"), "make")
	require.NoError(t, err)
	_, err = te.End(ctx, sess("s"), id, 0, 1)
	require.NoError(t, err)
	_, err = te.End(ctx, sess("s"), id, 0, 1)
	assert.ErrorIs(t, err, storage.ErrAlreadyFinalized)

	_, err = te.End(ctx, sess("s"), id+99, 0, 1)
	assert.ErrorIs(t, err, storage.ErrCommandNotFound)
}

func TestEngine_SensitiveHiddenFromSearchAndStats(t *testing.T) {
	t.Parallel()

	te := newTestEngine(t, nil)
	ctx := context.Background()

	te.run(t, sess("s"), "export DB_PASSWORD=hunter2", 0)
	te.run(t, sess("s"), "ls -la", 0)

	events, err := te.Search(ctx, storage.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ls -la", events[0].Command)

	events, err = te.Search(ctx, storage.EventFilter{Contains: "hunter2"})
	require.NoError(t, err)
	assert.Empty(t, events)

	stats, err := te.Stats(ctx, StatsQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Totals.Commands)
	assert.Equal(t, int64(1), stats.Totals.Sensitive)
	for _, b := range stats.TopCommands {
		assert.NotContains(t, b.Key, "hunter2")
	}
	require.Len(t, stats.TopCommands, 1)
}

func TestEngine_Stats(t *testing.T) {
	t.Parallel()

	te := newTestEngine(t, nil)
	ctx := context.Background()

	te.run(t, sess("s"), "go test ./...", 1)
	te.run(t, sess("s"), "go test ./...", 0)
	te.run(t, sess("s"), "git status", 0)
	te.run(t, sess("s"), "go build ./...", 2)

	stats, err := te.Stats(ctx, StatsQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Totals.Commands)
	assert.Equal(t, int64(2), stats.Totals.Failures)
	assert.InDelta(t, 0.5, stats.SuccessRate(), 1e-9)

	require.NotEmpty(t, stats.ByType)
	assert.Equal(t, "testing", stats.ByType[0].Key)
	assert.Equal(t, int64(2), stats.ByType[0].Count)

	require.Len(t, stats.ByHour, 1)
	assert.Equal(t, "09", stats.ByHour[0].Key)

	require.NotEmpty(t, stats.TopCommands)
	assert.Equal(t, "go test ./...", stats.TopCommands[0].Key)

	// The failed build is still unsolved; the failed test was resolved.
	assert.Equal(t, 1, stats.OpenErrors)

	sessions, err := te.Sessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, int64(4), sessions[0].Commands)
}

func TestEngine_Stats_SuccessRateIgnoresRunning(t *testing.T) {
	t.Parallel()

	te := newTestEngine(t, nil)
	ctx := context.Background()

	te.run(t, sess("s"), "make", 1)
	_, err := te.Start(ctx, sess("s"), "sleep 100")
	require.NoError(t, err)

	stats, err := te.Stats(ctx, StatsQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Totals.Commands)
	assert.Equal(t, int64(1), stats.Totals.Finalized)
	assert.Zero(t, stats.SuccessRate())
}

func TestEngine_AutoResolveFeedsKnowledge(t *testing.T) {
	t.Parallel()

	te := newTestEngine(t, nil)
	ctx := context.Background()

	failed := te.run(t, sess("s"), "go test ./...", 1)
	require.NotZero(t, failed.ErrorID)

	// A success of another type does not resolve it.
	other := te.run(t, sess("s"), "git status", 0)
	assert.Zero(t, other.ResolvedErrorID)

	fixed := te.run(t, sess("s"), "go test -count=1 ./...", 0)
	assert.Equal(t, failed.ErrorID, fixed.ResolvedErrorID)

	errs, err := te.Errors(ctx, storage.ErrorFilter{SolvedOnly: true})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "go test -count=1 ./...", errs[0].Solution)

	entries, err := te.Ask(ctx, "testing", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "go test -count=1 ./...", entries[0].Insight)
	assert.Equal(t, knowledge.SourceError, entries[0].Source)
	assert.Equal(t, 1, entries[0].Confidence)

	// The same fix again reinforces instead of duplicating.
	te.run(t, sess("s"), "go test ./...", 1)
	te.run(t, sess("s"), "go test -count=1 ./...", 0)

	entries, err = te.Ask(ctx, "testing", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Confidence)
	assert.True(t, entries[0].Verified)
}

func TestEngine_AutoResolve_Scoping(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("other session", func(t *testing.T) {
		t.Parallel()
		te := newTestEngine(t, nil)
		te.run(t, sess("a"), "make test", 1)
		res := te.run(t, sess("b"), "make test", 0)
		assert.Zero(t, res.ResolvedErrorID)
	})

	t.Run("outside window", func(t *testing.T) {
		t.Parallel()
		te := newTestEngine(t, nil)
		te.run(t, sess("a"), "make test", 1)
		te.clock = te.clock.Add(time.Hour)
		res := te.run(t, sess("a"), "make test", 0)
		assert.Zero(t, res.ResolvedErrorID)
	})

	t.Run("sensitive fix", func(t *testing.T) {
		t.Parallel()
		te := newTestEngine(t, nil)
		te.run(t, sess("a"), "psql postgres://db/prod", 2)
		res := te.run(t, sess("a"), "psql postgres://admin:pw@db/prod", 0)
		assert.Zero(t, res.ResolvedErrorID)

		entries, err := te.Ask(ctx, "", 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		te := newTestEngine(t, func(c *config.Config) { c.Capture.AutoResolveErrors = false })
		te.run(t, sess("a"), "make test", 1)
		res := te.run(t, sess("a"), "make test", 0)
		assert.Zero(t, res.ResolvedErrorID)
	})
}

func TestEngine_SolveError(t *testing.T) {
	t.Parallel()

	te := newTestEngine(t, nil)
	ctx := context.Background()

	failed := te.run(t, sess("s"), "docker compose up", 1)
	rec, err := te.SolveError(ctx, failed.ErrorID, "docker compose up --build")
	require.NoError(t, err)
	assert.True(t, rec.Solved)

	entries, err := te.Ask(ctx, "containerization", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "docker compose up --build", entries[0].Insight)

	_, err = te.SolveError(ctx, 999, "x")
	assert.ErrorIs(t, err, storage.ErrErrorNotFound)
}

func TestEngine_MineAndPromote(t *testing.T) {
	t.Parallel()

	te := newTestEngine(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s := sess(fmt.Sprintf("s%d", i))
		te.run(t, s, "git commit -m wip", 0)
		te.run(t, s, "git push", 0)
	}

	report := te.Mine(ctx)
	require.NoError(t, report.Err())

	seq, err := te.Patterns(ctx, mining.TypeSequence, 0)
	require.NoError(t, err)
	require.Len(t, seq, 1)
	assert.Equal(t, "version_control->version_control", seq[0].Key)
	assert.Equal(t, int64(3), seq[0].Frequency)

	// Mining again does not inflate counts.
	require.NoError(t, te.Mine(ctx).Err())
	seq, err = te.Patterns(ctx, mining.TypeSequence, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), seq[0].Frequency)

	// Candidates are not workflows until promoted.
	wfs, err := te.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Empty(t, wfs)

	wf, err := te.PromoteCandidate(ctx, "version_control->version_control", "ship")
	require.NoError(t, err)
	assert.Equal(t, []string{"git commit -m wip", "git push"}, wf.Commands)

	result, err := te.RunWorkflow(ctx, "ship", workflow.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCompleted, result.State)
	assert.Equal(t, []string{"git commit -m wip", "git push"}, te.executor.ran)

	next, err := te.SuggestNext(ctx, "version_control", 0)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, advisor.Suggestion{SemanticType: "version_control", Frequency: 3}, next[0])

	_, err = te.PromoteCandidate(ctx, "nope->nope", "x")
	assert.ErrorIs(t, err, mining.ErrPatternNotFound)
}

func TestEngine_WorkflowImportExport(t *testing.T) {
	t.Parallel()

	te := newTestEngine(t, nil)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "release.yaml")
	def := &workflow.Definition{Name: "release", Description: "cut a release", Commands: []string{"make test", "make dist"}}
	var buf bytes.Buffer
	require.NoError(t, workflow.Export(&buf, def, workflow.FormatYAML))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	wf, err := te.ImportWorkflow(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, def.Commands, wf.Commands)

	var out bytes.Buffer
	require.NoError(t, te.ExportWorkflow(ctx, "release", &out, workflow.FormatYAML))
	assert.Equal(t, buf.String(), out.String())

	_, err = te.ImportWorkflow(ctx, path)
	assert.ErrorIs(t, err, workflow.ErrWorkflowExists)
}

func TestEngine_AssessRisk(t *testing.T) {
	t.Parallel()

	te := newTestEngine(t, nil)

	critical := te.AssessRisk("rm -rf /")
	assert.Equal(t, advisor.LevelCritical, critical.Level)
	assert.NotEmpty(t, critical.Warnings)

	low := te.AssessRisk("ls -la")
	assert.Equal(t, advisor.LevelLow, low.Level)
	assert.Empty(t, low.Warnings)
}

func TestEngine_Advise(t *testing.T) {
	t.Parallel()

	te := newTestEngine(t, nil)
	ctx := context.Background()

	adv, err := te.Advise(ctx, "git push", "/repo")
	require.NoError(t, err)
	require.Len(t, adv.Checks, 1)
	assert.False(t, adv.Checks[0].Satisfied)

	te.clock = time.Now().Add(-5 * time.Minute)
	te.run(t, sess("s"), "go test ./...", 0)

	checks, err := te.CheckPreconditions(ctx, "git push", "/repo")
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.True(t, checks[0].Satisfied)
}

func TestEngine_IntentionSeedsKnowledge(t *testing.T) {
	t.Parallel()

	te := newTestEngine(t, nil)
	ctx := context.Background()
	s := sess("s")

	te.run(t, s, "go test ./...", 0)
	i, err := te.Intend(ctx, s, "fix the flaky parser test")
	require.NoError(t, err)
	assert.Equal(t, []string{"testing"}, i.Context.RecentTypes)

	_, err = te.Intend(ctx, s, "another")
	assert.ErrorIs(t, err, intention.ErrIntentionOpen)

	te.run(t, s, "go test -run Parser ./...", 0)
	done, err := te.Achieve(ctx, s, true, "run with -race to reproduce")
	require.NoError(t, err)
	require.NotNil(t, done.Success)
	assert.True(t, *done.Success)

	entries, err := te.Ask(ctx, "testing", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, knowledge.SourceExperience, entries[0].Source)
	assert.Equal(t, 1, entries[0].Confidence)

	// Succeeding again with the same learning reinforces it.
	_, err = te.Intend(ctx, s, "again")
	require.NoError(t, err)
	_, err = te.Achieve(ctx, s, true, "run with -race to reproduce")
	require.NoError(t, err)

	entries, err = te.Ask(ctx, "testing", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Confidence)

	stats, err := te.IntentionStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Succeeded)

	_, err = te.Achieve(ctx, s, true, "")
	assert.ErrorIs(t, err, intention.ErrNoOpenIntention)
}

func TestEngine_Flow(t *testing.T) {
	t.Parallel()

	te := newTestEngine(t, nil)
	ctx := context.Background()

	s := te.StartFlow(sess("s"), "docs")
	require.True(t, s.InFlow())

	sample, s, err := te.EndFlow(ctx, s, 7)
	require.NoError(t, err)
	assert.False(t, s.InFlow())
	assert.Equal(t, "docs", sample.Focus)

	_, _, err = te.EndFlow(ctx, s, 7)
	assert.Error(t, err)

	samples, err := te.Flows(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, samples, 1)

	summary, err := te.FlowSummary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, "docs", summary[0].Focus)
}

func TestEngine_Status(t *testing.T) {
	t.Parallel()

	te := newTestEngine(t, nil)
	ctx := context.Background()

	te.run(t, sess("s"), "ls", 0)
	_, err := te.CreateWorkflow(ctx, "w", "", []string{"ls"})
	require.NoError(t, err)

	st, err := te.Status(ctx)
	require.NoError(t, err)
	assert.Greater(t, st.SchemaVersion, 0)
	assert.Equal(t, int64(1), st.Totals.Commands)
	assert.Equal(t, 1, st.Workflows)
}

func TestEngine_Metrics(t *testing.T) {
	t.Parallel()

	m, err := telemetry.New()
	require.NoError(t, err)
	e, err := Open(filepath.Join(t.TempDir(), "test.db"), Options{
		Metrics:      m,
		BranchLookup: func(string) string { return "" },
	})
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	id, err := e.Start(ctx, sess("s"), "make")
	require.NoError(t, err)
	_, err = e.End(ctx, sess("s"), id, 2, 10)
	require.NoError(t, err)

	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap["termbrain_events_captured_total"])
	assert.Equal(t, int64(1), snap["termbrain_events_finalized_total"])
	assert.Equal(t, int64(1), snap["termbrain_errors_recorded_total"])
}
