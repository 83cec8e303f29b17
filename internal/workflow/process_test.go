package workflow

import (
	"context"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sleepCmd() *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.Command("cmd", "/c", "ping", "-n", "60", "127.0.0.1")
	}
	return exec.Command("sleep", "60")
}

func echoCmd() *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.Command("cmd", "/c", "echo", "hello")
	}
	return exec.Command("echo", "hello")
}

func TestProcessGroup_Start(t *testing.T) {
	t.Parallel()

	var pg processGroup
	cmd := sleepCmd()
	require.NoError(t, pg.start(cmd))
	t.Cleanup(func() {
		_ = pg.kill(cmd)
		_ = cmd.Wait()
	})

	assert.NotNil(t, cmd.Process)
	assert.NotNil(t, cmd.SysProcAttr)
}

func TestProcessGroup_Wait(t *testing.T) {
	t.Parallel()

	var pg processGroup
	cmd := echoCmd()
	require.NoError(t, pg.start(cmd))
	assert.NoError(t, pg.wait(context.Background(), cmd, DefaultGracePeriod))
}

func TestProcessGroup_WaitCancelled(t *testing.T) {
	t.Parallel()

	var pg processGroup
	cmd := sleepCmd()
	require.NoError(t, pg.start(cmd))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	assert.Error(t, pg.wait(ctx, cmd, time.Second))
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestProcessGroup_NotStarted(t *testing.T) {
	t.Parallel()

	var pg processGroup
	cmd := sleepCmd()

	assert.ErrorIs(t, pg.interrupt(cmd), errNotStarted)
	assert.ErrorIs(t, pg.kill(cmd), errNotStarted)
	assert.ErrorIs(t, pg.wait(context.Background(), cmd, DefaultGracePeriod), errNotStarted)
}

func TestProcessGroup_Kill(t *testing.T) {
	t.Parallel()

	var pg processGroup
	cmd := sleepCmd()
	require.NoError(t, pg.start(cmd))
	require.NoError(t, pg.kill(cmd))
	assert.Error(t, cmd.Wait())
}
