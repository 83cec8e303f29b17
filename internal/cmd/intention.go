package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anivar/termbrain-sub001/internal/intention"
)

var (
	achievedFailed bool
	intendList     bool
)

var intendCmd = &cobra.Command{
	Use:     "intend [goal]",
	Short:   "Set the goal of this session",
	GroupID: groupCore,
	Long: `Record what you are about to do. Close it with 'tb achieved'; what you
learned is kept in the knowledge base.

Examples:
  tb intend "upgrade postgres to 16"
  tb intend             # Show the open intention
  tb intend --list      # Past intentions and success rate`,
	RunE: runIntend,
}

var achievedCmd = &cobra.Command{
	Use:     "achieved [learnings]",
	Short:   "Close the open intention",
	GroupID: groupCore,
	RunE:    runAchieved,
}

func init() {
	intendCmd.Flags().BoolVarP(&intendList, "list", "l", false, "list past intentions")
	achievedCmd.Flags().BoolVar(&achievedFailed, "failed", false, "the goal was not reached")

	rootCmd.AddCommand(intendCmd)
	rootCmd.AddCommand(achievedCmd)
}

func runIntend(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")
	return withApp(func(ctx context.Context, a *app) error {
		if intendList {
			return printIntentions(ctx, a)
		}

		sess, err := a.loadSession()
		if err != nil {
			return err
		}

		if goal == "" {
			current, err := a.engine.CurrentIntention(ctx, sess.SessionID)
			if errors.Is(err, intention.ErrNoOpenIntention) {
				fmt.Println("No open intention. Set one with 'tb intend <goal>'.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("Working on: %s%s%s %s(since %s)%s\n", colorBold, current.Goal, colorReset, colorDim, ago(current.StartedAt), colorReset)
			return nil
		}

		in, err := a.engine.Intend(ctx, sess, goal)
		if errors.Is(err, intention.ErrIntentionOpen) {
			return fmt.Errorf("%w; close it first with 'tb achieved'", err)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Intention set: %s%s%s\n", colorBold, in.Goal, colorReset)
		return nil
	})
}

func runAchieved(cmd *cobra.Command, args []string) error {
	learnings := strings.Join(args, " ")
	return withApp(func(ctx context.Context, a *app) error {
		sess, err := a.loadSession()
		if err != nil {
			return err
		}
		in, err := a.engine.Achieve(ctx, sess, !achievedFailed, learnings)
		if errors.Is(err, intention.ErrNoOpenIntention) {
			return fmt.Errorf("%w; set one with 'tb intend <goal>'", err)
		}
		if err != nil {
			return err
		}

		outcome := colorGreen + "achieved" + colorReset
		if achievedFailed {
			outcome = colorYellow + "not achieved" + colorReset
		}
		fmt.Printf("%s: %s after %s\n", in.Goal, outcome, in.Elapsed.Round(time.Second))
		if in.Learnings != "" {
			fmt.Printf("%sSaved to knowledge:%s %s\n", colorDim, colorReset, in.Learnings)
		}
		return nil
	})
}

func printIntentions(ctx context.Context, a *app) error {
	list, err := a.engine.Intentions(ctx, 20)
	if err != nil {
		return err
	}
	stats, err := a.engine.IntentionStats(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No intentions recorded yet.")
		return nil
	}

	for _, in := range list {
		status := colorCyan + "open" + colorReset
		switch {
		case in.Success != nil && *in.Success:
			status = colorGreen + "done" + colorReset
		case in.Success != nil:
			status = colorRed + "missed" + colorReset
		}
		fmt.Printf("  %-6s %s %s(%s)%s\n", status, in.Goal, colorDim, ago(in.StartedAt), colorReset)
	}
	fmt.Printf("\n%d of %d completed intentions succeeded (%.0f%%), average %s\n",
		stats.Succeeded, stats.Completed, stats.SuccessRate()*100, stats.AvgElapsed.Round(time.Second))
	return nil
}
