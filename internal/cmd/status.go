package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show termbrain status",
	GroupID: groupSetup,
	Long: `Show where termbrain keeps its files, whether capture is on, and how
much has been recorded.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		st, err := a.engine.Status(ctx)
		if err != nil {
			return err
		}

		printHeader("termbrain Status")

		fmt.Printf("\n%sConfiguration:%s\n", colorBold, colorReset)
		configFile := a.paths.ConfigFile()
		if _, err := os.Stat(configFile); err == nil {
			fmt.Printf("  File:      %s\n", configFile)
		} else {
			fmt.Printf("  File:      %s (not found, using defaults)\n", configFile)
		}
		fmt.Printf("  Capture:   %s\n", formatBool(a.cfg.Capture.Enabled))
		fmt.Printf("  Telemetry: %s\n", formatBool(a.cfg.Telemetry.Enabled))

		fmt.Printf("\n%sStorage:%s\n", colorBold, colorReset)
		dbFile := a.cfg.DatabasePath(a.paths)
		if info, err := os.Stat(dbFile); err == nil {
			fmt.Printf("  Database:  %s (%s)\n", dbFile, humanize.Bytes(uint64(info.Size())))
		} else {
			fmt.Printf("  Database:  %s\n", dbFile)
		}
		fmt.Printf("  Schema:    v%d\n", st.SchemaVersion)
		fmt.Printf("  Log:       %s\n", a.cfg.LogPath(a.paths))

		fmt.Printf("\n%sRecorded:%s\n", colorBold, colorReset)
		fmt.Printf("  Commands:  %s\n", humanize.Comma(st.Totals.Commands))
		fmt.Printf("  Sessions:  %s\n", humanize.Comma(st.Totals.Sessions))
		fmt.Printf("  Patterns:  %d\n", st.Patterns)
		fmt.Printf("  Workflows: %d\n", st.Workflows)
		if st.Totals.Last != nil {
			fmt.Printf("  Last:      %s\n", ago(*st.Totals.Last))
		}

		if id := sessionID(); id != "" {
			fmt.Printf("\n%sSession:%s %s\n", colorBold, colorReset, id)
			if sess, err := a.sessions.Load(id); err == nil && sess.InFlow() {
				fmt.Printf("  Flow:      %s (%s)\n", sess.FlowFocus, ago(*sess.FlowStartedAt))
			}
		} else {
			fmt.Printf("\n%sSession:%s none (hook not active in this shell)\n", colorBold, colorReset)
		}
		return nil
	})
}
