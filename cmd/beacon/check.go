package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/beacon/internal/config"
	"github.com/goodtune/beacon/internal/sink"
	"github.com/goodtune/beacon/internal/sink/redis"
	"github.com/spf13/cobra"
)

var (
	checkDay    string
	checkRecent int64
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the event sink",
	Long:  `Connect to the configured event sink and show what beacon has recorded.`,
	Example: `  beacon -c config.yaml check
  beacon check --day 2024-06-01 --recent 20`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkDay, "day", "", "Day to count events for (YYYY-MM-DD) - defaults to today (UTC)")
	checkCmd.Flags().Int64Var(&checkRecent, "recent", 10, "Number of recent events to show")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	day := time.Now().UTC()
	if checkDay != "" {
		parsed, err := time.Parse("2006-01-02", checkDay)
		if err != nil {
			return fmt.Errorf("invalid day %q (expected YYYY-MM-DD)", checkDay)
		}
		day = parsed
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Sink.Type != "redis" {
		_, _ = color.New(color.FgYellow).Fprintf(out, "Sink type %q keeps no history; nothing to check.\n", cfg.Sink.Type)
		return nil
	}

	ttl, err := cfg.Sink.CountsTTLDuration()
	if err != nil {
		return err
	}
	w, err := redis.Open(cfg.Sink.Redis, cfg.Sink.Stream, cfg.Sink.MaxLen)
	if err != nil {
		return fmt.Errorf("failed to open redis sink: %w", err)
	}
	defer w.Close()
	w.SetCountsTTL(ttl)

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	return checkSink(ctx, out, w, day, checkRecent)
}

// checkSink prints the event counts for day and the newest records.
func checkSink(ctx context.Context, out io.Writer, w *redis.Writer, day time.Time, recent int64) error {
	if err := w.Ping(ctx); err != nil {
		return fmt.Errorf("sink unreachable: %w", err)
	}

	var (
		counts  map[string]int64
		records []sink.Record
		err     error
	)
	if w.CountsEnabled() {
		counts, err = w.Counts(ctx, day)
		if err != nil {
			return fmt.Errorf("failed to read counts: %w", err)
		}
	}

	if recent > 0 {
		records, err = w.Recent(ctx, recent)
		if err != nil {
			return fmt.Errorf("failed to read recent events: %w", err)
		}
	}

	printCheckResult(out, day, w.CountsEnabled(), counts, records)
	return nil
}

// printCheckResult prints the check result with colors
func printCheckResult(out io.Writer, day time.Time, counting bool, counts map[string]int64, records []sink.Record) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)

	fmt.Fprintln(out)
	_, _ = cyan.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	_, _ = cyan.Fprintln(out, "EVENT SINK CHECK")
	_, _ = cyan.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintln(out)

	_, _ = cyan.Fprint(out, "Status:     ")
	_, _ = green.Fprintln(out, "REACHABLE")
	fmt.Fprintf(out, "Day:        %s\n", day.Format("2006-01-02"))
	fmt.Fprintln(out)

	if !counting {
		_, _ = yellow.Fprintln(out, "Daily counters are disabled (sink.counts_ttl is 0)")
	} else if len(counts) == 0 {
		_, _ = yellow.Fprintln(out, "No events recorded on this day")
	} else {
		names := make([]string, 0, len(counts))
		var total int64
		for name, n := range counts {
			names = append(names, name)
			total += n
		}
		sort.Strings(names)

		_, _ = cyan.Fprintln(out, "Events:")
		for _, name := range names {
			fmt.Fprintf(out, "  %-28s %d\n", name, counts[name])
		}
		fmt.Fprintf(out, "  %-28s %d\n", "total", total)
	}

	if len(records) > 0 {
		fmt.Fprintln(out)
		_, _ = cyan.Fprintln(out, "Recent:")
		for _, rec := range records {
			fmt.Fprintf(out, "  %s  %-24s page=%s\n", rec.Time.UTC().Format(time.RFC3339), rec.Name, rec.Page)
		}
	}

	fmt.Fprintln(out)
}
