//go:build linux

package workflow

import "syscall"

// Steps die with the runner.
func setPdeathsig(attr *syscall.SysProcAttr) {
	attr.Pdeathsig = syscall.SIGKILL
}
