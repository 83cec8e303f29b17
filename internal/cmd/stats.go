package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/anivar/termbrain-sub001/internal/core"
	"github.com/anivar/termbrain-sub001/internal/picker"
	"github.com/anivar/termbrain-sub001/internal/storage"
)

var (
	statsSince       string
	statsThisSession bool
	statsTop         int
	statsJSON        bool

	sessionsLimit int
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Summarize recorded commands",
	GroupID: groupInsight,
	Long: `Show totals, success rate, and the busiest semantic types, hours,
project types and commands.

Examples:
  tb stats                  # All time
  tb stats --since 7d       # Last week
  tb stats --this-session   # Current shell only`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Short:   "List shell sessions",
	GroupID: groupInsight,
	Args:    cobra.NoArgs,
	RunE:    runSessions,
}

func init() {
	statsCmd.Flags().StringVar(&statsSince, "since", "", "time window, e.g. 24h or 7d")
	statsCmd.Flags().BoolVar(&statsThisSession, "this-session", false, "only the current session")
	statsCmd.Flags().IntVar(&statsTop, "top", 10, "entries per ranking")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")

	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "maximum number of sessions")

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(sessionsCmd)
}

type bucketOutput struct {
	Key           string  `json:"key"`
	Count         int64   `json:"count"`
	Failures      int64   `json:"failures"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

type statsOutput struct {
	Commands    int64          `json:"commands"`
	Finalized   int64          `json:"finalized"`
	Failures    int64          `json:"failures"`
	Sessions    int64          `json:"sessions"`
	Sensitive   int64          `json:"sensitive"`
	SuccessRate float64        `json:"success_rate"`
	OpenErrors  int            `json:"open_errors"`
	ByType      []bucketOutput `json:"by_type"`
	ByHour      []bucketOutput `json:"by_hour"`
	ByProject   []bucketOutput `json:"by_project"`
	TopCommands []bucketOutput `json:"top_commands"`
}

func runStats(cmd *cobra.Command, args []string) error {
	since, err := parseSince(statsSince, time.Now())
	if err != nil {
		return err
	}
	q := core.StatsQuery{Since: since, Top: statsTop}
	if statsThisSession {
		if q.SessionID = sessionID(); q.SessionID == "" {
			return errNoSession
		}
	}

	return withApp(func(ctx context.Context, a *app) error {
		stats, err := a.engine.Stats(ctx, q)
		if err != nil {
			return err
		}
		if statsJSON {
			return writeStatsJSON(stats)
		}
		printStats(stats)
		return nil
	})
}

func toBucketOutput(buckets []storage.Bucket) []bucketOutput {
	out := make([]bucketOutput, len(buckets))
	for i, b := range buckets {
		out[i] = bucketOutput{Key: b.Key, Count: b.Count, Failures: b.Failures, AvgDurationMs: b.AvgDurationMs}
	}
	return out
}

func writeStatsJSON(s *core.Stats) error {
	out := statsOutput{
		Commands:    s.Totals.Commands,
		Finalized:   s.Totals.Finalized,
		Failures:    s.Totals.Failures,
		Sessions:    s.Totals.Sessions,
		Sensitive:   s.Totals.Sensitive,
		SuccessRate: s.SuccessRate(),
		OpenErrors:  s.OpenErrors,
		ByType:      toBucketOutput(s.ByType),
		ByHour:      toBucketOutput(s.ByHour),
		ByProject:   toBucketOutput(s.ByProject),
		TopCommands: toBucketOutput(s.TopCommands),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printStats(s *core.Stats) {
	printHeader("Command Statistics")
	if s.Totals.Commands == 0 {
		fmt.Println("No commands recorded yet.")
		return
	}

	fmt.Printf("  Commands:     %s\n", humanize.Comma(s.Totals.Commands))
	fmt.Printf("  Sessions:     %s\n", humanize.Comma(s.Totals.Sessions))
	fmt.Printf("  Success rate: %.1f%%\n", s.SuccessRate()*100)
	if s.OpenErrors > 0 {
		fmt.Printf("  Open errors:  %s%d%s\n", colorYellow, s.OpenErrors, colorReset)
	}
	if s.Totals.Sensitive > 0 {
		fmt.Printf("  Sensitive:    %s (hidden)\n", humanize.Comma(s.Totals.Sensitive))
	}
	if s.Totals.First != nil {
		fmt.Printf("  Since:        %s\n", ago(*s.Totals.First))
	}

	printBuckets("By type", s.ByType, s.Totals.Commands)
	printBuckets("By project", s.ByProject, s.Totals.Commands)
	printBuckets("Top commands", s.TopCommands, s.Totals.Commands)
	printHours(s.ByHour)
}

func printBuckets(title string, buckets []storage.Bucket, total int64) {
	if len(buckets) == 0 {
		return
	}
	fmt.Printf("\n%s%s:%s\n", colorBold, title, colorReset)
	width := max(20, terminalWidth()-30)
	for _, b := range buckets {
		pct := float64(b.Count) / float64(max(total, 1)) * 100
		fail := ""
		if b.Failures > 0 {
			fail = fmt.Sprintf(" %s%d failed%s", colorRed, b.Failures, colorReset)
		}
		fmt.Printf("  %6s %5.1f%%  %s%s\n", humanize.Comma(b.Count), pct, picker.MiddleTruncate(b.Key, width), fail)
	}
}

// printHours draws a bar per active hour of the day.
func printHours(buckets []storage.Bucket) {
	if len(buckets) == 0 {
		return
	}
	hours := slices.Clone(buckets)
	slices.SortFunc(hours, func(a, b storage.Bucket) int { return strings.Compare(a.Key, b.Key) })

	var peak int64
	for _, b := range hours {
		peak = max(peak, b.Count)
	}
	fmt.Printf("\n%sBy hour:%s\n", colorBold, colorReset)
	for _, b := range hours {
		bar := strings.Repeat("#", int(max(1, b.Count*30/max(peak, 1))))
		fmt.Printf("  %sh %s%s%s %d\n", b.Key, colorCyan, bar, colorReset, b.Count)
	}
}

func runSessions(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		sessions, err := a.engine.Sessions(ctx, sessionsLimit)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions recorded yet.")
			return nil
		}
		current := sessionID()
		for _, s := range sessions {
			marker := " "
			if s.SessionID == current {
				marker = colorGreen + "*" + colorReset
			}
			fmt.Printf("%s %s  %4d commands  %3d failed  %s%s - %s%s\n",
				marker, s.SessionID, s.Commands, s.Failures,
				colorDim, s.FirstSeen.Format(time.DateTime), ago(s.LastSeen), colorReset)
		}
		return nil
	})
}
