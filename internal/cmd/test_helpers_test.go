package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/anivar/termbrain-sub001/internal/config"
	"github.com/anivar/termbrain-sub001/internal/core"
	"github.com/anivar/termbrain-sub001/internal/session"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() failed: %v", err)
	}
	os.Stdout = w

	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()

	fn()
	_ = w.Close()
	os.Stdout = old
	out := <-outC
	_ = r.Close()
	return out
}

// setupEnv points every termbrain path into a temp dir and returns the
// database path.
func setupEnv(t *testing.T, sessionID string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("XDG_RUNTIME_DIR", filepath.Join(dir, "run"))
	t.Setenv("TB_SESSION_ID", sessionID)
	t.Setenv("NO_COLOR", "1")
	dbPath := filepath.Join(dir, "tb.db")
	t.Setenv("TB_DB_PATH", dbPath)
	return dbPath
}

type seeded struct {
	command string
	exit    int
}

// seed records commands through the engine, as the hook would.
func seed(t *testing.T, dbPath, sessionID string, commands ...seeded) {
	t.Helper()
	eng, err := core.Open(dbPath, core.Options{
		Config:       config.DefaultConfig(),
		BranchLookup: func(string) string { return "" },
	})
	require.NoError(t, err)
	defer eng.Close()

	ctx := context.Background()
	sess := session.Context{SessionID: sessionID, CWD: "/repo"}
	for _, c := range commands {
		id, err := eng.Start(ctx, sess, c.command)
		require.NoError(t, err)
		_, err = eng.End(ctx, sess, id, c.exit, 15)
		require.NoError(t, err)
	}
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runTB executes the CLI with args and returns its stdout.
func runTB(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)
	var err error
	out := captureStdout(t, func() {
		err = Execute()
	})
	return out, err
}
