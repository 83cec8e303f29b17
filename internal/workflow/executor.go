package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/shlex"

	"github.com/anivar/termbrain-sub001/internal/cmdutil"
	"github.com/anivar/termbrain-sub001/internal/sanitize"
)

// exitNotFound mirrors the shell's status for an unknown command.
const exitNotFound = 127

// StepExecutor runs a single workflow step. A non-zero exit code is a
// result, not an error; the error return is reserved for steps that could
// not be run at all.
type StepExecutor interface {
	Execute(ctx context.Context, step Step) (*StepResult, error)
}

// ShellConfig configures ShellExecutor.
type ShellConfig struct {
	Shell           string        // interpreter for steps using shell syntax; default /bin/sh
	OutputTailBytes int           // output bytes kept per step; default 64 KiB
	GracePeriod     time.Duration // interrupt-to-kill delay on cancel; default 5s
	Env             []string      // extra KEY=value pairs appended to the process environment
}

// ShellExecutor runs steps as child processes. Plain commands are split
// into argv with POSIX shell rules and executed directly; commands using
// pipes, redirection, globbing, substitution or shell builtins go through
// the configured shell.
type ShellExecutor struct {
	cfg     ShellConfig
	process processGroup
}

// NewShellExecutor creates a ShellExecutor.
func NewShellExecutor(cfg ShellConfig) *ShellExecutor {
	if cfg.Shell == "" {
		cfg.Shell = defaultShell
	}
	if cfg.OutputTailBytes <= 0 {
		cfg.OutputTailBytes = DefaultOutputTail
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	return &ShellExecutor{cfg: cfg}
}

// shellBuiltins only work inside a shell.
var shellBuiltins = map[string]bool{
	"cd": true, "export": true, "source": true, ".": true, "alias": true,
	"set": true, "unset": true, "exit": true, "eval": true, "ulimit": true, "umask": true,
}

// buildCommand chooses argv or shell mode for a step.
func (e *ShellExecutor) buildCommand(step Step) (*exec.Cmd, error) {
	if !cmdutil.HasShellMeta(step.Command) {
		argv, err := shlex.Split(step.Command)
		if err != nil {
			return nil, fmt.Errorf("splitting command: %w", err)
		}
		if len(argv) == 0 {
			return nil, errors.New("command produced empty argv")
		}
		if !shellBuiltins[argv[0]] {
			return exec.Command(argv[0], argv[1:]...), nil
		}
	}
	return exec.Command(e.cfg.Shell, shellFlag, step.Command), nil
}

// Execute runs the step and waits for it, honouring ctx cancellation.
func (e *ShellExecutor) Execute(ctx context.Context, step Step) (*StepResult, error) {
	start := time.Now()
	res := &StepResult{Position: step.Position, Command: step.Command}

	cmd, err := e.buildCommand(step)
	if err != nil {
		return nil, err
	}
	cmd.Dir = step.WorkDir
	cmd.Env = append(os.Environ(), e.cfg.Env...)

	out := newTailBuffer(e.cfg.OutputTailBytes)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := e.process.start(cmd); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			res.ExitCode = exitNotFound
			res.Output = err.Error()
			res.Duration = time.Since(start)
			return res, nil
		}
		return nil, fmt.Errorf("starting process: %w", err)
	}

	waitErr := e.process.wait(ctx, cmd, e.cfg.GracePeriod)
	res.Duration = time.Since(start)
	res.Output = sanitize.Sanitize(out.String())

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("waiting for process: %w", waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode == 0 || res.ExitCode == -1 {
			// Killed by a signal.
			res.ExitCode = 1
		}
	}
	return res, nil
}
