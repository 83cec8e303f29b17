package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anivar/termbrain-sub001/internal/core"
	"github.com/anivar/termbrain-sub001/internal/mining"
	"github.com/anivar/termbrain-sub001/internal/workflow"
)

// Exit codes of 'tb workflow run'.
const (
	ExitStepFailed      = 1
	ExitValidationError = 2
	ExitCancelled       = 130
)

var (
	workflowDescription string
	workflowDryRun      bool
	workflowDir         string
	workflowVerbose     bool
	workflowFormat      string
	workflowOutput      string
	workflowRunsLimit   int
)

var workflowCmd = &cobra.Command{
	Use:     "workflow",
	Aliases: []string{"wf"},
	Short:   "Manage and run named command sequences",
	GroupID: groupCore,
}

var workflowCreateCmd = &cobra.Command{
	Use:   "create <name> <command>...",
	Short: "Create a workflow from commands",
	Long: `Create a workflow. Each argument is one step.

Examples:
  tb workflow create release "make test" "git push" "npm publish"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runWorkflowCreate,
}

var workflowUpdateCmd = &cobra.Command{
	Use:   "update <name> <command>...",
	Short: "Replace the steps of a workflow",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runWorkflowUpdate,
}

var workflowListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List workflows",
	Args:    cobra.NoArgs,
	RunE:    runWorkflowList,
}

var workflowShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show the steps and recent runs of a workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowShow,
}

var workflowRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run a workflow, stopping at the first failing step",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowRun,
}

var workflowDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a workflow and its run history",
	Args:    cobra.ExactArgs(1),
	RunE:    runWorkflowDelete,
}

var workflowImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Create a workflow from a YAML, JSON or JSONC file",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowImport,
}

var workflowExportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Write a workflow definition as YAML or JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowExport,
}

var workflowPromoteCmd = &cobra.Command{
	Use:   "promote <candidate-key> <name>",
	Short: "Save a mined workflow candidate as a workflow",
	Long: `Save a mined workflow candidate under a name. Candidate keys are listed
by 'tb patterns workflow-candidate'.`,
	Args: cobra.ExactArgs(2),
	RunE: runWorkflowPromote,
}

func init() {
	workflowCreateCmd.Flags().StringVarP(&workflowDescription, "description", "d", "", "workflow description")

	workflowRunCmd.Flags().BoolVar(&workflowDryRun, "dry-run", false, "print the steps without running them")
	workflowRunCmd.Flags().StringVarP(&workflowDir, "dir", "C", "", "directory to run the steps in")
	workflowRunCmd.Flags().BoolVarP(&workflowVerbose, "verbose", "v", false, "print the output of every step")

	workflowShowCmd.Flags().IntVarP(&workflowRunsLimit, "runs", "n", 5, "recent runs to show")

	workflowExportCmd.Flags().StringVarP(&workflowFormat, "format", "f", "yaml", "yaml or json")
	workflowExportCmd.Flags().StringVarP(&workflowOutput, "output", "o", "", "file to write (default stdout)")

	workflowCmd.AddCommand(
		workflowCreateCmd,
		workflowUpdateCmd,
		workflowListCmd,
		workflowShowCmd,
		workflowRunCmd,
		workflowDeleteCmd,
		workflowImportCmd,
		workflowExportCmd,
		workflowPromoteCmd,
	)
	rootCmd.AddCommand(workflowCmd)
}

// workflowError turns validation and lookup failures into exit code 2.
func workflowError(err error) error {
	var verr *workflow.ValidationError
	if errors.As(err, &verr) {
		return &ExitError{Message: verr.Error(), Code: ExitValidationError}
	}
	return err
}

func runWorkflowCreate(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		wf, err := a.engine.CreateWorkflow(ctx, args[0], workflowDescription, args[1:])
		if err != nil {
			return workflowError(err)
		}
		fmt.Printf("Created workflow %s%s%s with %d steps\n", colorCyan, wf.Name, colorReset, len(wf.Commands))
		return nil
	})
}

func runWorkflowUpdate(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		wf, err := a.engine.UpdateWorkflow(ctx, args[0], args[1:])
		if err != nil {
			return workflowError(err)
		}
		fmt.Printf("Updated workflow %s%s%s: %d steps\n", colorCyan, wf.Name, colorReset, len(wf.Commands))
		return nil
	})
}

func runWorkflowList(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		workflows, err := a.engine.ListWorkflows(ctx)
		if err != nil {
			return err
		}
		if len(workflows) == 0 {
			fmt.Println("No workflows. Create one with 'tb workflow create' or promote a mined candidate.")
			return nil
		}
		for _, w := range workflows {
			fmt.Printf("  %s%-20s%s %2d steps  used %3d  success %5.1f%%  %s%s%s\n",
				colorCyan, w.Name, colorReset, len(w.Commands), w.TimesUsed, w.SuccessRate*100,
				colorDim, w.Description, colorReset)
		}
		return nil
	})
}

func runWorkflowShow(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		w, err := a.engine.GetWorkflow(ctx, args[0])
		if err != nil {
			return workflowError(err)
		}
		printHeader(w.Name)
		if w.Description != "" {
			fmt.Println(w.Description)
		}
		for i, c := range w.Commands {
			fmt.Printf("  %d. %s\n", i+1, c)
		}
		fmt.Printf("\nUsed %d times, %.1f%% successful\n", w.TimesUsed, w.SuccessRate*100)

		runs, err := a.engine.WorkflowRuns(ctx, w.Name, workflowRunsLimit)
		if err != nil {
			return err
		}
		for _, r := range runs {
			state := colorGreen + string(r.State) + colorReset
			if r.State == workflow.StateFailed {
				state = fmt.Sprintf("%sfailed at step %d%s", colorRed, r.FailedStep, colorReset)
			}
			fmt.Printf("  %s%s%s  %s  %s\n", colorDim, ago(r.StartedAt), colorReset, state, r.Duration.Round(time.Millisecond))
		}
		return nil
	})
}

func runWorkflowRun(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()

		result, err := a.engine.RunWorkflow(ctx, args[0], workflow.RunOptions{
			DryRun:  workflowDryRun,
			WorkDir: workflowDir,
		})
		if result == nil {
			return workflowError(err)
		}
		printRunResult(os.Stdout, result)

		var stepErr *workflow.StepError
		switch {
		case ctx.Err() != nil:
			return &ExitError{Message: "workflow cancelled", Code: ExitCancelled}
		case errors.As(err, &stepErr):
			return &ExitError{Message: stepErr.Error(), Code: ExitStepFailed}
		case err != nil:
			return err
		}
		return nil
	})
}

func printRunResult(w io.Writer, r *workflow.RunResult) {
	if r.DryRun {
		fmt.Fprintf(w, "Dry run of %s:\n", r.Workflow)
		for i, c := range r.Planned {
			fmt.Fprintf(w, "  %d. %s\n", i+1, c)
		}
		return
	}

	for _, s := range r.Steps {
		mark := colorGreen + "ok" + colorReset
		if !s.Succeeded() {
			mark = fmt.Sprintf("%sexit %d%s", colorRed, s.ExitCode, colorReset)
		}
		fmt.Fprintf(w, "  %d. %s  %s  %s%s%s\n", s.Position, s.Command, mark, colorDim, s.Duration.Round(time.Millisecond), colorReset)
		if (workflowVerbose || !s.Succeeded()) && strings.TrimSpace(s.Output) != "" {
			for _, line := range strings.Split(strings.TrimRight(s.Output, "\n"), "\n") {
				fmt.Fprintf(w, "     %s|%s %s\n", colorDim, colorReset, line)
			}
		}
	}
	if skipped := len(r.Planned) - len(r.Steps); skipped > 0 {
		fmt.Fprintf(w, "  %s%d steps not run%s\n", colorDim, skipped, colorReset)
	}
	fmt.Fprintf(w, "%s %s in %s (used %d times, %.1f%% successful)\n",
		r.Workflow, r.State, r.Duration.Round(time.Millisecond), r.TimesUsed, r.SuccessRate*100)
}

func runWorkflowDelete(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if err := a.engine.DeleteWorkflow(ctx, args[0]); err != nil {
			return workflowError(err)
		}
		fmt.Printf("Deleted workflow %s\n", args[0])
		return nil
	})
}

func runWorkflowImport(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		wf, err := a.engine.ImportWorkflow(ctx, args[0])
		if err != nil {
			return workflowError(err)
		}
		fmt.Printf("Imported workflow %s%s%s with %d steps\n", colorCyan, wf.Name, colorReset, len(wf.Commands))
		return nil
	})
}

func runWorkflowExport(cmd *cobra.Command, args []string) error {
	format := workflow.Format(strings.ToLower(workflowFormat))
	if format != workflow.FormatYAML && format != workflow.FormatJSON {
		return fmt.Errorf("unsupported format %q (use yaml or json)", workflowFormat)
	}

	return withApp(func(ctx context.Context, a *app) error {
		var out io.Writer = os.Stdout
		if workflowOutput != "" {
			f, err := os.Create(workflowOutput)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", workflowOutput, err)
			}
			defer f.Close()
			out = f
		}
		return workflowError(a.engine.ExportWorkflow(ctx, args[0], out, format))
	})
}

func runWorkflowPromote(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		wf, err := a.engine.PromoteCandidate(ctx, args[0], args[1])
		switch {
		case errors.Is(err, mining.ErrPatternNotFound):
			return fmt.Errorf("no workflow candidate %q; see 'tb patterns workflow-candidate'", args[0])
		case errors.Is(err, core.ErrNoExample):
			return fmt.Errorf("candidate %q was only seen as sensitive commands; create the workflow by hand", args[0])
		case err != nil:
			return workflowError(err)
		}
		fmt.Printf("Promoted %s to workflow %s%s%s:\n", args[0], colorCyan, wf.Name, colorReset)
		for i, c := range wf.Commands {
			fmt.Printf("  %d. %s\n", i+1, c)
		}
		return nil
	})
}
