package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

// Command groups shown in help output.
const (
	groupCore    = "core"
	groupInsight = "insight"
	groupSetup   = "setup"
)

var sessionFlag string

var rootCmd = &cobra.Command{
	Use:   "tb",
	Short: "a memory for your terminal",
	Long: `tb - a memory for your terminal
  - learns what your commands do and how they fail
  - mines recurring sequences into reusable workflows
  - warns before destructive commands`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Message string
	Code    int
}

func (e *ExitError) Error() string {
	return e.Message
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupCore, Title: "Core Commands:"},
		&cobra.Group{ID: groupInsight, Title: "Insight Commands:"},
		&cobra.Group{ID: groupSetup, Title: "Setup Commands:"},
	)
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "session id (default $TB_SESSION_ID)")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "color output: auto, always, or never")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		applyColorMode()
	}
}
