//go:build windows

package cmd

// getTermWidthIoctl is unavailable on Windows; terminalWidth uses $COLUMNS.
func getTermWidthIoctl() int {
	return 0
}
