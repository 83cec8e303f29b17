package workflow

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// DefaultGracePeriod separates the interrupt from the kill when a run is
// cancelled.
const DefaultGracePeriod = 5 * time.Second

var errNotStarted = errors.New("process not started")

// processGroup runs each step as the leader of its own process group, so
// cancelling a step also stops everything it spawned.
type processGroup struct{}

// wait blocks until cmd exits. On cancellation the group is interrupted
// and, if still alive after grace, killed.
func (pg processGroup) wait(ctx context.Context, cmd *exec.Cmd, grace time.Duration) error {
	if cmd.Process == nil {
		return errNotStarted
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	_ = pg.interrupt(cmd)
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		_ = pg.kill(cmd)
		return <-done
	}
}
