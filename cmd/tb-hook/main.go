// tb-hook is the shell hook binary that records command events.
// The shell calls it before and after every command with the command
// data in environment variables.
//
// It never blocks or breaks the prompt: storage failures are written to
// the log file and the hook still exits 0. Only malformed invocations
// exit 1.
//
// Subcommands:
//   - start: record a command about to run and print its event id
//   - end: attach the exit code and duration to an event
//   - session-start: create a session and print its id
//   - session-end: forget the session context
package main

import (
	"fmt"
	"io"
	"os"
)

// Version info - injected at build time via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "start":
		return runStart(cmdArgs, stdin, stdout, stderr)
	case "end":
		return runEnd(cmdArgs, stderr)
	case "session-start":
		return runSessionStart(cmdArgs, stdout, stderr)
	case "session-end":
		return runSessionEnd(cmdArgs, stderr)
	case "version", "--version", "-v":
		printVersion(stdout)
		return 0
	case "help", "--help", "-h":
		printUsage(stderr)
		return 0
	default:
		fmt.Fprintf(stderr, "tb-hook: unknown command: %s\n", cmd)
		printUsage(stderr)
		return 1
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "tb-hook %s (commit: %s, built: %s)\n", Version, GitCommit, BuildDate)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `tb-hook - Shell hook for termbrain command capture

Usage: tb-hook <command> [flags...]

Commands:
  start            Record a command about to run; prints the event id
  end              Finalize an event with its exit code and duration
  session-start    Create a session; prints the session id
  session-end      Forget the session context

Environment variables for 'start':
  TB_CMD           Raw command string (required unless --cmd-stdin)
  TB_SESSION_ID    Session identifier (required)
  TB_CWD           Working directory (default: current directory)
  TB_NO_RECORD     If "1", skip recording entirely

Environment variables for 'end':
  TB_SESSION_ID    Session identifier (required)
  TB_EVENT_ID      Event id printed by 'start' (empty: nothing to do)
  TB_EXIT          Exit code of the command (required)
  TB_DURATION_MS   Command duration in milliseconds (optional)

Flags for 'start':
  --cmd-stdin      Read command from stdin instead of TB_CMD

Exit codes:
  0  Success (storage failures are logged, not reported)
  1  Invalid arguments`)
}
