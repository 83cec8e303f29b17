package cmd

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, 130, ExitCode(&ExitError{Message: "cancelled", Code: 130}))
}

func TestParseSince(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"", time.Time{}, false},
		{"all", time.Time{}, false},
		{"2h", now.Add(-2 * time.Hour), false},
		{"7d", now.AddDate(0, 0, -7), false},
		{"0d", time.Time{}, true},
		{"-1h", time.Time{}, true},
		{"soon", time.Time{}, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := parseSince(tt.in, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func TestRootCommands(t *testing.T) {
	t.Parallel()

	want := []string{
		"search", "stats", "mine", "patterns", "learn", "ask", "solve", "errors",
		"workflow", "intend", "achieved", "flow", "check", "sessions", "config", "status", "version",
	}
	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, registered[name], "missing command %s", name)
	}
}

func TestVersionCmd(t *testing.T) {
	setupEnv(t, "")
	out, err := runTB(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tb dev")
}

func TestSearchCmd_JSON(t *testing.T) {
	dbPath := setupEnv(t, "s1")
	seed(t, dbPath, "s1",
		seeded{"make test", 0},
		seeded{"make build", 2},
		seeded{"export API_TOKEN=abc123", 0},
		seeded{"git status", 0},
	)

	out, err := runTB(t, "search", "make", "--json")
	require.NoError(t, err)

	var resp searchResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "make build", resp.Results[0].Command)
	require.NotNil(t, resp.Results[0].ExitCode)
	assert.Equal(t, 2, *resp.Results[0].ExitCode)

	out, err = runTB(t, "search", "API", "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Zero(t, resp.Total)

	out, err = runTB(t, "search", "--failed")
	require.NoError(t, err)
	assert.Contains(t, out, "make build")
	assert.NotContains(t, out, "git status")
}

func TestStatsCmd_JSON(t *testing.T) {
	dbPath := setupEnv(t, "s1")
	seed(t, dbPath, "s1", seeded{"git status", 0}, seeded{"go test ./...", 1})

	out, err := runTB(t, "stats", "--json")
	require.NoError(t, err)

	var stats statsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(2), stats.Commands)
	assert.Equal(t, int64(2), stats.Finalized)
	assert.Equal(t, int64(1), stats.Failures)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
	assert.Equal(t, 1, stats.OpenErrors)
}

func TestErrorsAndSolveCmd(t *testing.T) {
	dbPath := setupEnv(t, "s1")
	seed(t, dbPath, "s1", seeded{"make build", 2})

	out, err := runTB(t, "errors")
	require.NoError(t, err)
	assert.Contains(t, out, "#1")
	assert.Contains(t, out, "make build")

	out, err = runTB(t, "solve", "1", "run", "make", "clean")
	require.NoError(t, err)
	assert.Contains(t, out, "Solved #1")

	out, err = runTB(t, "errors")
	require.NoError(t, err)
	assert.Contains(t, out, "No errors found.")

	out, err = runTB(t, "errors", "--solved")
	require.NoError(t, err)
	assert.Contains(t, out, "run make clean")

	_, err = runTB(t, "solve", "99", "anything")
	assert.ErrorContains(t, err, "not found")
}

func TestLearnAndAskCmd(t *testing.T) {
	setupEnv(t, "s1")

	out, err := runTB(t, "learn", "--topic", "docker", "compose needs --build after Dockerfile changes")
	require.NoError(t, err)
	assert.Contains(t, out, "docker")

	out, err = runTB(t, "ask", "docker")
	require.NoError(t, err)
	assert.Contains(t, out, "compose needs --build")

	out, err = runTB(t, "ask", "kubernetes")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing learned")
}

func TestWorkflowCmd(t *testing.T) {
	setupEnv(t, "s1")

	out, err := runTB(t, "workflow", "create", "release", "-d", "ship it", "make test", "git push")
	require.NoError(t, err)
	assert.Contains(t, out, "2 steps")

	out, err = runTB(t, "workflow", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "release")
	assert.Contains(t, out, "ship it")

	out, err = runTB(t, "workflow", "run", "release", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run of release")
	assert.Contains(t, out, "2. git push")

	out, err = runTB(t, "workflow", "export", "release", "--format", "json")
	require.NoError(t, err)
	var def struct {
		Name     string   `json:"name"`
		Commands []string `json:"commands"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &def))
	assert.Equal(t, []string{"make test", "git push"}, def.Commands)

	_, err = runTB(t, "workflow", "create", "release", "ls")
	assert.Equal(t, ExitValidationError, ExitCode(err))

	_, err = runTB(t, "workflow", "delete", "release")
	require.NoError(t, err)
	out, err = runTB(t, "workflow", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No workflows")
}

func TestWorkflowCmd_RunFails(t *testing.T) {
	setupEnv(t, "s1")

	_, err := runTB(t, "workflow", "create", "broken", "false", "true")
	require.NoError(t, err)

	out, err := runTB(t, "workflow", "run", "broken")
	assert.Equal(t, ExitStepFailed, ExitCode(err))
	assert.Contains(t, out, "exit 1")
	assert.Contains(t, out, "1 steps not run")
}

func TestCheckCmd(t *testing.T) {
	setupEnv(t, "s1")

	out, err := runTB(t, "check", "--", "rm", "-rf", "/")
	require.NoError(t, err)
	assert.Contains(t, out, "critical")

	_, err = runTB(t, "check", "--strict", "--", "rm", "-rf", "/")
	assert.Equal(t, 1, ExitCode(err))

	out, err = runTB(t, "check", "--strict", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "low")
}

func TestIntentionCmd(t *testing.T) {
	setupEnv(t, "s1")

	out, err := runTB(t, "intend", "upgrade", "postgres")
	require.NoError(t, err)
	assert.Contains(t, out, "Intention set: upgrade postgres")

	out, err = runTB(t, "intend")
	require.NoError(t, err)
	assert.Contains(t, out, "Working on: upgrade postgres")

	_, err = runTB(t, "intend", "something else")
	assert.Error(t, err)

	out, err = runTB(t, "achieved", "pg_upgrade needs both binaries")
	require.NoError(t, err)
	assert.Contains(t, out, "achieved")

	out, err = runTB(t, "intend", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "1 of 1 completed intentions succeeded")
}

func TestIntentionCmd_NoSession(t *testing.T) {
	setupEnv(t, "")

	_, err := runTB(t, "intend", "anything")
	assert.ErrorIs(t, err, errNoSession)
}

func TestFlowCmd(t *testing.T) {
	setupEnv(t, "s1")

	out, err := runTB(t, "flow", "start", "review")
	require.NoError(t, err)
	assert.Contains(t, out, "Flow started: review")

	_, err = runTB(t, "flow", "start", "again")
	assert.Error(t, err)

	out, err = runTB(t, "flow", "end", "--energy", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "review")
	assert.Contains(t, out, "productivity")

	_, err = runTB(t, "flow", "end")
	assert.Error(t, err)

	out, err = runTB(t, "flow", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "By focus:")
}

func TestConfigCmd(t *testing.T) {
	setupEnv(t, "")

	out, err := runTB(t, "config", "set", "mining.sequence_min_frequency", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "mining.sequence_min_frequency = 5")

	out, err = runTB(t, "config", "get", "mining.sequence_min_frequency")
	require.NoError(t, err)
	assert.Equal(t, "5\n", out)

	out, err = runTB(t, "config", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "capture.enabled")

	_, err = runTB(t, "config", "get", "nope.key")
	assert.Error(t, err)
}

func TestStatusAndSessionsCmd(t *testing.T) {
	dbPath := setupEnv(t, "s1")
	seed(t, dbPath, "s1", seeded{"ls", 0})

	out, err := runTB(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema:")
	assert.Contains(t, out, "Session: s1")

	out, err = runTB(t, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "s1")
}

func TestMineAndPatternsCmd(t *testing.T) {
	dbPath := setupEnv(t, "s1")
	for _, id := range []string{"a", "b", "c"} {
		seed(t, dbPath, id, seeded{"git commit -m wip", 0}, seeded{"git push", 0})
	}

	out, err := runTB(t, "mine")
	require.NoError(t, err)
	assert.Contains(t, out, "patterns updated")

	out, err = runTB(t, "patterns", "sequence")
	require.NoError(t, err)
	assert.Contains(t, out, "git -> git")

	_, err = runTB(t, "patterns", "bogus")
	assert.Error(t, err)
}
