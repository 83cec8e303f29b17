//go:build !windows && !linux

package workflow

import "syscall"

func setPdeathsig(*syscall.SysProcAttr) {}
