package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anivar/termbrain-sub001/internal/flow"
)

var flowEnergy int

var flowCmd = &cobra.Command{
	Use:     "flow",
	Short:   "Track focused work periods",
	GroupID: groupInsight,
}

var flowStartCmd = &cobra.Command{
	Use:   "start [focus]",
	Short: "Start a flow period",
	RunE:  runFlowStart,
}

var flowEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the flow period and score it",
	Args:  cobra.NoArgs,
	RunE:  runFlowEnd,
}

var flowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List flow periods and per-focus averages",
	Args:  cobra.NoArgs,
	RunE:  runFlowList,
}

func init() {
	flowEndCmd.Flags().IntVarP(&flowEnergy, "energy", "e", flow.DefaultEnergy, "how you feel, 1-10")

	flowCmd.AddCommand(flowStartCmd, flowEndCmd, flowListCmd)
	rootCmd.AddCommand(flowCmd)
}

func runFlowStart(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		sess, err := a.loadSession()
		if err != nil {
			return err
		}
		if sess.InFlow() {
			return fmt.Errorf("flow %q already running since %s", sess.FlowFocus, ago(*sess.FlowStartedAt))
		}
		sess = a.engine.StartFlow(sess, strings.Join(args, " "))
		if err := a.saveSession(sess); err != nil {
			return err
		}
		fmt.Printf("Flow started: %s%s%s\n", colorCyan, sess.FlowFocus, colorReset)
		return nil
	})
}

func runFlowEnd(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		sess, err := a.loadSession()
		if err != nil {
			return err
		}
		sample, sess, err := a.engine.EndFlow(ctx, sess, flowEnergy)
		if errors.Is(err, flow.ErrNoActiveFlow) {
			return fmt.Errorf("%w; start one with 'tb flow start'", err)
		}
		if err != nil {
			return err
		}
		if err := a.saveSession(sess); err != nil {
			return err
		}
		fmt.Printf("%s%s%s for %s: %d commands, %d interruptions, productivity %d/10\n",
			colorCyan, sample.Focus, colorReset, sample.Duration().Round(time.Second),
			sample.Commands, sample.Interruptions, sample.Productivity)
		return nil
	})
}

func runFlowList(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		samples, err := a.engine.Flows(ctx, 20)
		if err != nil {
			return err
		}
		if len(samples) == 0 {
			fmt.Println("No flow periods recorded yet.")
			return nil
		}
		for _, s := range samples {
			fmt.Printf("  %-16s %8s  productivity %2d  energy %2d  interruptions %d  %s%s%s\n",
				s.Focus, s.Duration().Round(time.Minute), s.Productivity, s.Energy, s.Interruptions,
				colorDim, ago(s.StartedAt), colorReset)
		}

		summary, err := a.engine.FlowSummary(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("\n%sBy focus:%s\n", colorBold, colorReset)
		for _, f := range summary {
			fmt.Printf("  %-16s %3d periods  avg productivity %.1f  avg interruptions %.1f  total %s\n",
				f.Focus, f.Sessions, f.AvgProductivity, f.AvgInterruptions, f.TotalTime.Round(time.Minute))
		}
		return nil
	})
}
