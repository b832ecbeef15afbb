package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/beacon/internal/clock"
	"github.com/goodtune/beacon/internal/config"
	"github.com/goodtune/beacon/internal/session"
	"github.com/goodtune/beacon/internal/sink"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	replayDrain time.Duration
	replayJSON  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay [flags] FILE",
	Short: "Replay recorded page signals",
	Long: `Replay a JSON lines recording of page signals against a simulated clock
and print every event beacon would emit. Use "-" to read from stdin.`,
	Example: `  beacon replay session.jsonl
  beacon -c config.yaml replay --json --drain 30s session.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().DurationVar(&replayDrain, "drain", 5*time.Second, "Simulated time to run after the last line before closing pages")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Print events as JSON lines")
	rootCmd.AddCommand(replayCmd)
}

// replayLine is one line of a recording. At is the offset from the start
// of the recording; a line without one runs at the current simulated time.
type replayLine struct {
	At     string            `json:"at,omitempty"`
	Page   string            `json:"page"`
	Open   *session.PageInit `json:"open,omitempty"`
	Signal *session.Signal   `json:"signal,omitempty"`
	Close  bool              `json:"close,omitempty"`
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if errors.Is(err, config.ErrNoMeasurementID) {
		cfg = config.Defaults()
		cfg.MeasurementID = "G-REPLAY"
	} else if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open recording: %w", err)
		}
		defer f.Close()
		in = f
	}

	// Create a quiet logger for replay mode
	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()

	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := clock.NewFake(start)
	out := newPrintWriter(cmd.OutOrStdout(), start, replayJSON)

	manager, err := newManager(cfg, out, fc, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize session manager: %w", err)
	}

	r := &replayer{manager: manager, clock: fc, start: start, logger: logger}
	err = r.run(in)

	fc.Advance(replayDrain)
	manager.Shutdown()

	return err
}

// replayer drives a session manager from a recording.
type replayer struct {
	manager *session.Manager
	clock   *clock.Fake
	start   time.Time
	logger  zerolog.Logger
}

func (r *replayer) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)

	n := 0
	for scanner.Scan() {
		n++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var line replayLine
		if err := json.Unmarshal([]byte(text), &line); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		if err := r.apply(line); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return scanner.Err()
}

func (r *replayer) apply(line replayLine) error {
	if line.At != "" {
		at, err := time.ParseDuration(line.At)
		if err != nil {
			return fmt.Errorf("invalid offset %q: %w", line.At, err)
		}
		r.clock.AdvanceTo(r.start.Add(at))
	}

	if line.Open != nil {
		init := *line.Open
		if init.ID == "" {
			init.ID = line.Page
		}
		p, err := r.manager.Open(init)
		if err != nil {
			return err
		}
		line.Page = p.ID()
	}

	if line.Signal != nil {
		p, err := r.manager.Get(line.Page)
		if err != nil {
			return fmt.Errorf("page %q: %w", line.Page, err)
		}
		if err := p.Dispatch(*line.Signal); err != nil {
			r.logger.Warn().Err(err).Str("page", line.Page).Str("kind", line.Signal.Kind).Msg("Signal rejected")
		}
	}

	if line.Close {
		if err := r.manager.Close(line.Page); err != nil {
			return fmt.Errorf("page %q: %w", line.Page, err)
		}
	}
	return nil
}

// printWriter is a sink.Writer that prints records for a human.
type printWriter struct {
	mu    sync.Mutex
	out   io.Writer
	start time.Time
	json  bool
}

func newPrintWriter(out io.Writer, start time.Time, asJSON bool) *printWriter {
	return &printWriter{out: out, start: start, json: asJSON}
}

func (w *printWriter) Write(_ context.Context, rec sink.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.json {
		return json.NewEncoder(w.out).Encode(rec)
	}

	cyan := color.New(color.FgCyan, color.Bold)
	faint := color.New(color.Faint)

	_, _ = faint.Fprintf(w.out, "%10s ", "+"+rec.Time.Sub(w.start).String())
	_, _ = cyan.Fprintf(w.out, "%-24s", rec.Name)

	keys := make([]string, 0, len(rec.Params))
	for k := range rec.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w.out, " %s=%v", k, rec.Params[k])
	}
	_, err := fmt.Fprintln(w.out)
	return err
}

func (w *printWriter) Close() error { return nil }

var _ sink.Writer = (*printWriter)(nil)
