package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anivar/termbrain-sub001/internal/picker"
	"github.com/anivar/termbrain-sub001/internal/storage"
)

var (
	searchJSON        bool
	searchInteractive bool
	searchHere        bool
	searchThisSession bool
	searchFailed      bool
	searchType        string
	searchSince       string
	searchLimit       int
)

var searchCmd = &cobra.Command{
	Use:     "search [query]",
	Short:   "Search command history",
	GroupID: groupCore,
	Long: `Search recorded commands by substring. Sensitive commands are never shown.

Examples:
  tb search docker                # Commands containing "docker"
  tb search --type git --here     # git commands run in this directory
  tb search --failed --since 2d   # Failures of the last two days
  tb search -i                    # Interactive picker; prints the chosen command`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().BoolVarP(&searchInteractive, "interactive", "i", false, "pick a command interactively")
	searchCmd.Flags().BoolVar(&searchHere, "here", false, "only commands run in the current directory")
	searchCmd.Flags().BoolVar(&searchThisSession, "this-session", false, "only commands of the current session")
	searchCmd.Flags().BoolVar(&searchFailed, "failed", false, "only failed commands")
	searchCmd.Flags().StringVarP(&searchType, "type", "t", "", "semantic type, e.g. git, testing")
	searchCmd.Flags().StringVar(&searchSince, "since", "", "time window, e.g. 2h or 7d")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "maximum number of results")

	rootCmd.AddCommand(searchCmd)
}

type searchOutput struct {
	ID           int64  `json:"id"`
	Command      string `json:"command"`
	SemanticType string `json:"semantic_type"`
	Intent       string `json:"intent"`
	CWD          string `json:"cwd"`
	SessionID    string `json:"session_id"`
	Ts           int64  `json:"ts"`
	ExitCode     *int   `json:"exit_code,omitempty"`
	DurationMs   *int64 `json:"duration_ms,omitempty"`
}

type searchResponse struct {
	Results   []searchOutput `json:"results"`
	Total     int            `json:"total"`
	Truncated bool           `json:"truncated"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := ""
	if len(args) == 1 {
		query = args[0]
	}

	return withApp(func(ctx context.Context, a *app) error {
		if searchInteractive {
			return runPicker(ctx, a, query)
		}

		filter, err := buildSearchFilter(query, time.Now())
		if err != nil {
			return err
		}
		events, err := a.engine.Search(ctx, filter)
		if err != nil {
			return err
		}

		if searchJSON {
			return writeSearchJSON(events)
		}
		if len(events) == 0 {
			fmt.Println("No results found.")
			return nil
		}
		printEvents(events)
		return nil
	})
}

func buildSearchFilter(query string, now time.Time) (storage.EventFilter, error) {
	since, err := parseSince(searchSince, now)
	if err != nil {
		return storage.EventFilter{}, err
	}
	f := storage.EventFilter{
		Contains:     query,
		SemanticType: searchType,
		Since:        since,
		FailureOnly:  searchFailed,
		Limit:        searchLimit,
	}
	if searchHere {
		if cwd, err := os.Getwd(); err == nil {
			f.CWD = cwd
		}
	}
	if searchThisSession {
		if f.SessionID = sessionID(); f.SessionID == "" {
			return storage.EventFilter{}, errNoSession
		}
	}
	return f, nil
}

func runPicker(ctx context.Context, a *app, query string) error {
	cwd, _ := os.Getwd()
	result, err := picker.Run(ctx, picker.DefaultTabs(sessionID(), cwd), picker.NewEventProvider(a.engine), query)
	if errors.Is(err, picker.ErrCancelled) {
		return &ExitError{Message: "cancelled", Code: 130}
	}
	if err != nil {
		return err
	}
	if result != "" {
		fmt.Println(result)
	}
	return nil
}

func printEvents(events []storage.CommandEvent) {
	width := terminalWidth()
	for _, e := range events {
		line := picker.MiddleTruncate(picker.DisplayCommand(e.Command), max(20, width-40))
		fmt.Printf("%s%5d%s  %-10s %s  %s%s%s\n",
			colorDim, e.ID, colorReset,
			e.SemanticType,
			line,
			colorDim, strings.TrimSpace(ago(e.Timestamp)+" "+formatExit(e.ExitCode)), colorReset,
		)
	}
}

func writeSearchJSON(events []storage.CommandEvent) error {
	output := make([]searchOutput, len(events))
	for i, e := range events {
		output[i] = searchOutput{
			ID:           e.ID,
			Command:      e.Command,
			SemanticType: e.SemanticType,
			Intent:       e.Intent,
			CWD:          e.CWD,
			SessionID:    e.SessionID,
			Ts:           e.Timestamp.UnixMilli(),
			ExitCode:     e.ExitCode,
			DurationMs:   e.DurationMs,
		}
	}

	resp := searchResponse{
		Results:   output,
		Total:     len(output),
		Truncated: searchLimit > 0 && len(output) >= searchLimit,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}
