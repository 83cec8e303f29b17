package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anivar/termbrain-sub001/internal/advisor"
)

var checkStrict bool

var checkCmd = &cobra.Command{
	Use:     "check <command>",
	Short:   "Assess a command before running it",
	GroupID: groupCore,
	Long: `Report the risk of a command, the preconditions it expects (recent
passing tests, a clean worktree, a version bump), and what usually follows it.

With --strict the exit status is 1 when the risk is high or critical, or a
precondition is unmet, so it can guard scripts:

  tb check --strict -- npm publish && npm publish`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkStrict, "strict", false, "fail on high risk or unmet preconditions")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	command := strings.Join(args, " ")
	cwd, _ := os.Getwd()

	return withApp(func(ctx context.Context, a *app) error {
		advice, err := a.engine.Advise(ctx, command, cwd)
		if err != nil {
			return err
		}
		printAdvice(advice)

		if checkStrict && (advice.Risk.Level.Rank() >= advisor.LevelHigh.Rank() || len(advice.Unmet()) > 0) {
			return &ExitError{Message: "check failed", Code: 1}
		}
		return nil
	})
}

func printAdvice(a *advisor.Advice) {
	fmt.Printf("%s  %s %s(%s)%s\n", renderRisk(a.Risk.Level), a.Command, colorDim, a.SemanticType, colorReset)
	for _, w := range a.Risk.Warnings {
		fmt.Printf("  %s!%s %s\n", colorYellow, colorReset, w)
	}

	if len(a.Checks) > 0 {
		fmt.Printf("\n%sPreconditions:%s\n", colorBold, colorReset)
		for _, c := range a.Checks {
			mark := colorGreen + "✓" + colorReset
			if !c.Satisfied {
				mark = colorRed + "✗" + colorReset
			}
			seen := ""
			if c.LastSeen != nil {
				seen = fmt.Sprintf(" %s(%s)%s", colorDim, ago(*c.LastSeen), colorReset)
			}
			fmt.Printf("  %s %s%s\n", mark, c.Description, seen)
		}
	}

	if len(a.Next) > 0 {
		next := make([]string, len(a.Next))
		for i, s := range a.Next {
			next[i] = fmt.Sprintf("%s (%dx)", s.SemanticType, s.Frequency)
		}
		fmt.Printf("\n%sUsually followed by:%s %s\n", colorBold, colorReset, strings.Join(next, ", "))
	}
}
