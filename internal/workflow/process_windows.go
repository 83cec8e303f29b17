//go:build windows

package workflow

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

const (
	defaultShell = "cmd.exe"
	shellFlag    = "/C"
)

func (processGroup) start(cmd *exec.Cmd) error {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
	return cmd.Start()
}

// interrupt delivers CTRL_BREAK to the group; CTRL_C cannot target one.
func (processGroup) interrupt(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return errNotStarted
	}
	return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(cmd.Process.Pid))
}

func (processGroup) kill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return errNotStarted
	}
	return cmd.Process.Kill()
}
