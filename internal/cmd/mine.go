package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anivar/termbrain-sub001/internal/mining"
)

var (
	mineWatch bool

	patternsLimit int
	patternsJSON  bool
)

var mineCmd = &cobra.Command{
	Use:     "mine",
	Short:   "Detect recurring patterns in the history",
	GroupID: groupInsight,
	Long: `Run the sequence, time-of-day, error-fix and workflow-candidate passes.

With --watch the passes repeat every mining.interval_mins until interrupted;
failures are written to the log file.`,
	Args: cobra.NoArgs,
	RunE: runMine,
}

var patternsCmd = &cobra.Command{
	Use:       "patterns [sequence|time|error-fix|workflow-candidate]",
	Short:     "List mined patterns",
	GroupID:   groupInsight,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"sequence", "time", "error-fix", "workflow-candidate"},
	RunE:      runPatterns,
}

func init() {
	mineCmd.Flags().BoolVarP(&mineWatch, "watch", "w", false, "keep mining in the foreground")

	patternsCmd.Flags().IntVarP(&patternsLimit, "limit", "n", 20, "maximum number of patterns")
	patternsCmd.Flags().BoolVar(&patternsJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(mineCmd)
	rootCmd.AddCommand(patternsCmd)
}

func runMine(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if mineWatch {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("Mining every %d minutes. Press Ctrl+C to stop.\n", a.cfg.Mining.IntervalMins)
			a.engine.StartMiner()
			<-ctx.Done()
			a.engine.StopMiner()
			return nil
		}

		report := a.engine.Mine(ctx)
		for _, p := range report.Passes {
			status := colorGreen + "ok" + colorReset
			if p.Err != nil {
				status = colorRed + p.Err.Error() + colorReset
			}
			fmt.Printf("  %-20s %4d patterns  %8s  %s\n", p.Pass, p.Patterns, p.Elapsed.Round(time.Millisecond), status)
		}
		if err := report.Err(); err != nil {
			return &ExitError{Message: err.Error(), Code: 1}
		}
		fmt.Printf("%d patterns updated.\n", report.Patterns())
		return nil
	})
}

func runPatterns(cmd *cobra.Command, args []string) error {
	var typ mining.Type
	if len(args) == 1 {
		t, err := mining.ParseType(args[0])
		if err != nil {
			return err
		}
		typ = t
	}

	return withApp(func(ctx context.Context, a *app) error {
		patterns, err := a.engine.Patterns(ctx, typ, patternsLimit)
		if err != nil {
			return err
		}
		if patternsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetEscapeHTML(false)
			return enc.Encode(patterns)
		}
		if len(patterns) == 0 {
			fmt.Println("No patterns yet. Run 'tb mine' after recording some history.")
			return nil
		}
		for _, p := range patterns {
			fmt.Printf("  %s%-18s%s %4dx  %s  %s%s%s\n",
				colorCyan, p.Type, colorReset, p.Frequency, describePattern(p),
				colorDim, ago(p.LastSeen), colorReset)
		}
		return nil
	})
}

// describePattern renders the payload of p on one line.
func describePattern(p mining.Pattern) string {
	switch {
	case p.Sequence != nil:
		return p.Sequence.From + " -> " + p.Sequence.To
	case p.Time != nil:
		return fmt.Sprintf("%s around %02d:00", p.Time.SemanticType, p.Time.Hour)
	case p.ErrorFix != nil:
		return fmt.Sprintf("%s fixed by %q", p.ErrorFix.ErrorType, p.ErrorFix.Solution)
	case p.Candidate != nil:
		s := strings.Join(p.Candidate.Steps, " -> ")
		if len(p.Candidate.Example) > 0 {
			s += fmt.Sprintf(" (e.g. %s; promote with 'tb workflow promote %s <name>')",
				strings.Join(p.Candidate.Example, " && "), p.Key)
		}
		return s
	default:
		return p.Key
	}
}
