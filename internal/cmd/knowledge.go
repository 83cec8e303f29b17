package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anivar/termbrain-sub001/internal/knowledge"
	"github.com/anivar/termbrain-sub001/internal/storage"
)

var (
	learnTopic  string
	learnSource string

	askLimit int

	errorsAll         bool
	errorsSolved      bool
	errorsThisSession bool
	errorsType        string
	errorsLimit       int
)

var learnCmd = &cobra.Command{
	Use:     "learn <insight>",
	Short:   "Record something you learned",
	GroupID: groupCore,
	Long: `Record an insight in the knowledge base. Without --topic the topic is
derived from what this session has been doing.

Examples:
  tb learn "docker compose needs --build after changing the Dockerfile"
  tb learn --topic git "use rebase --onto to move a branch"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLearn,
}

var askCmd = &cobra.Command{
	Use:     "ask <query>",
	Short:   "Look up recorded insights",
	GroupID: groupCore,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runAsk,
}

var errorsCmd = &cobra.Command{
	Use:     "errors",
	Short:   "List failed commands",
	GroupID: groupInsight,
	Long: `List recorded failures. Unsolved failures are shown by default.
Mark one solved with 'tb solve <id> <solution>'.`,
	Args: cobra.NoArgs,
	RunE: runErrors,
}

var solveCmd = &cobra.Command{
	Use:     "solve <error-id> <solution>",
	Short:   "Record how a failure was solved",
	GroupID: groupCore,
	Args:    cobra.MinimumNArgs(2),
	RunE:    runSolve,
}

func init() {
	learnCmd.Flags().StringVar(&learnTopic, "topic", "", "topic (default: derived from recent commands)")
	learnCmd.Flags().StringVar(&learnSource, "source", knowledge.SourceExperience, "experience, error, or documentation")

	askCmd.Flags().IntVarP(&askLimit, "limit", "n", 10, "maximum number of insights")

	errorsCmd.Flags().BoolVar(&errorsAll, "all", false, "include solved errors")
	errorsCmd.Flags().BoolVar(&errorsSolved, "solved", false, "only solved errors")
	errorsCmd.Flags().BoolVar(&errorsThisSession, "this-session", false, "only the current session")
	errorsCmd.Flags().StringVarP(&errorsType, "type", "t", "", "semantic type")
	errorsCmd.Flags().IntVarP(&errorsLimit, "limit", "n", 20, "maximum number of errors")

	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(errorsCmd)
	rootCmd.AddCommand(solveCmd)
}

func runLearn(cmd *cobra.Command, args []string) error {
	insight := strings.Join(args, " ")
	return withApp(func(ctx context.Context, a *app) error {
		sess, err := a.loadSession()
		if err != nil && !errors.Is(err, errNoSession) {
			return err
		}

		entry, err := a.engine.Learn(ctx, sess, learnTopic, insight, learnSource)
		if err != nil {
			return err
		}
		fmt.Printf("Learned under %s%s%s (confidence %d)\n", colorCyan, entry.Topic, colorReset, entry.Confidence)
		return nil
	})
}

func runAsk(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	return withApp(func(ctx context.Context, a *app) error {
		entries, err := a.engine.Ask(ctx, query, askLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Printf("Nothing learned about %q yet.\n", query)
			return nil
		}
		for _, e := range entries {
			verified := ""
			if e.Verified {
				verified = colorGreen + " verified" + colorReset
			}
			fmt.Printf("  %s[%s]%s %s\n", colorCyan, e.Topic, colorReset, e.Insight)
			fmt.Printf("    %sconfidence %d, %s, %s%s%s\n", colorDim, e.Confidence, e.Source, ago(e.UpdatedAt), colorReset, verified)
		}
		return nil
	})
}

func runErrors(cmd *cobra.Command, args []string) error {
	f := storage.ErrorFilter{
		SemanticType: errorsType,
		SolvedOnly:   errorsSolved,
		UnsolvedOnly: !errorsAll && !errorsSolved,
		Limit:        errorsLimit,
	}
	if errorsThisSession {
		if f.SessionID = sessionID(); f.SessionID == "" {
			return errNoSession
		}
	}

	return withApp(func(ctx context.Context, a *app) error {
		records, err := a.engine.Errors(ctx, f)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No errors found.")
			return nil
		}
		for _, r := range records {
			command := r.Command
			if command == "" {
				command = colorDim + "(sensitive)" + colorReset
			}
			fmt.Printf("  %s#%d%s %-10s %s  %sexit %d, %s%s\n",
				colorBold, r.ID, colorReset, r.SemanticType, command,
				colorDim, r.ExitCode, ago(r.Timestamp), colorReset)
			if r.Solved {
				fmt.Printf("      %ssolved:%s %s\n", colorGreen, colorReset, r.Solution)
			}
		}
		return nil
	})
}

func runSolve(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid error id %q", args[0])
	}
	solution := strings.Join(args[1:], " ")

	return withApp(func(ctx context.Context, a *app) error {
		rec, err := a.engine.SolveError(ctx, id, solution)
		if errors.Is(err, storage.ErrErrorNotFound) {
			return fmt.Errorf("error #%d not found", id)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Solved #%d (%s): %s\n", rec.ID, rec.SemanticType, rec.Solution)
		return nil
	})
}
