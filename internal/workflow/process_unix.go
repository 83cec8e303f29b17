//go:build !windows

package workflow

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	defaultShell = "/bin/sh"
	shellFlag    = "-c"
)

func (processGroup) start(cmd *exec.Cmd) error {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	setPdeathsig(cmd.SysProcAttr)
	return cmd.Start()
}

// A negative pid addresses the whole group.
func (processGroup) signal(cmd *exec.Cmd, sig unix.Signal) error {
	if cmd.Process == nil {
		return errNotStarted
	}
	return unix.Kill(-cmd.Process.Pid, sig)
}

func (pg processGroup) interrupt(cmd *exec.Cmd) error { return pg.signal(cmd, unix.SIGINT) }

func (pg processGroup) kill(cmd *exec.Cmd) error { return pg.signal(cmd, unix.SIGKILL) }
