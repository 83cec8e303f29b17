//go:build !windows

package cmd

import (
	"os"

	"golang.org/x/sys/unix"
)

// getTermWidthIoctl asks the kernel for the stdout window size. It returns 0
// when stdout is not a terminal.
func getTermWidthIoctl() int {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 0
	}
	return int(ws.Col)
}
