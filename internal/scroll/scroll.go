// Package scroll reports scroll-depth milestones for one page.
package scroll

import (
	"math"
	"time"

	"github.com/goodtune/beacon/internal/clock"
	"github.com/goodtune/beacon/internal/event"
	"github.com/goodtune/beacon/internal/milestone"
	"github.com/rs/zerolog"
)

const (
	// EventName is the emitted event.
	EventName = "scroll_depth"

	DefaultDebounce = 250 * time.Millisecond

	// resetDelay lets the new route render before depth is re-measured.
	resetDelay = 50 * time.Millisecond
)

// DefaultThresholds are the percentages reported when none are configured.
var DefaultThresholds = []int{25, 50, 75, 90}

// Metrics is one measurement of the viewport.
type Metrics struct {
	ScrollTop      float64 `json:"scroll_top"`
	DocumentHeight float64 `json:"document_height"`
	ViewportHeight float64 `json:"viewport_height"`
}

// Percent returns how far down the document the viewport has reached,
// floored and clamped to 0..100. A document that fits the viewport is fully
// scrolled.
func (m Metrics) Percent() int {
	scrollable := m.DocumentHeight - m.ViewportHeight
	if scrollable <= 0 {
		return 100
	}
	p := math.Floor(m.ScrollTop / scrollable * 100)
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 100:
		return 100
	}
	return int(p)
}

// Viewport supplies the latest measurement for evaluations the tracker
// schedules itself.
type Viewport interface {
	Metrics() Metrics
}

// ViewportFunc adapts a function to Viewport.
type ViewportFunc func() Metrics

func (f ViewportFunc) Metrics() Metrics { return f() }

// Config configures a Tracker.
type Config struct {
	Sink       event.Sink
	Viewport   Viewport
	Clock      clock.Clock
	Thresholds []int
	Debounce   time.Duration
	// ScrollEnd reports that the browser emits scrollend, in which case
	// scroll signals are evaluated immediately.
	ScrollEnd  bool
	Logger     zerolog.Logger
}

// Tracker emits one scroll_depth event per newly crossed threshold.
type Tracker struct {
	sink       event.Sink
	viewport   Viewport
	clock      clock.Clock
	milestones *milestone.Tracker
	state      milestone.State
	debounce   time.Duration
	scrollEnd  bool
	pending    clock.Timer
	logger     zerolog.Logger
}

// New creates a Tracker. Thresholds outside 1..100 are dropped.
func New(cfg Config) *Tracker {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = DefaultThresholds
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Tracker{
		sink:       cfg.Sink,
		viewport:   cfg.Viewport,
		clock:      cfg.Clock,
		milestones: milestone.New(cfg.Thresholds),
		debounce:   cfg.Debounce,
		scrollEnd:  cfg.ScrollEnd,
		logger:     cfg.Logger.With().Str("component", "scroll").Logger(),
	}
}

// Scroll handles a scroll signal. Without scrollend support the evaluation
// runs once scrolling has been quiet for the debounce interval.
func (t *Tracker) Scroll(m Metrics) {
	if t.scrollEnd {
		t.Evaluate(m)
		return
	}
	t.cancel()
	t.pending = t.clock.AfterFunc(t.debounce, func() {
		t.pending = nil
		t.Evaluate(m)
	})
}

// ScrollEnd handles a scrollend signal.
func (t *Tracker) ScrollEnd(m Metrics) {
	t.cancel()
	t.Evaluate(m)
}

// Evaluate checks m against the thresholds immediately.
func (t *Tracker) Evaluate(m Metrics) {
	for _, threshold := range t.milestones.Check(&t.state, m.Percent()) {
		t.sink.Emit(EventName, event.Params{"percent_scrolled": threshold})
	}
}

// Reset forgets every crossed threshold, as on a route change, and
// re-measures shortly after.
func (t *Tracker) Reset() {
	t.cancel()
	t.state.Reset()
	t.pending = t.clock.AfterFunc(resetDelay, func() {
		t.pending = nil
		t.remeasure()
	})
}

// Reached returns the thresholds crossed since the last reset.
func (t *Tracker) Reached() []int {
	var out []int
	for _, threshold := range t.milestones.Thresholds() {
		if t.state.Reached[threshold] {
			out = append(out, threshold)
		}
	}
	return out
}

// Close cancels any pending evaluation.
func (t *Tracker) Close() {
	t.cancel()
}

func (t *Tracker) remeasure() {
	if t.viewport == nil {
		t.logger.Debug().Msg("No viewport to re-measure")
		return
	}
	t.Evaluate(t.viewport.Metrics())
}

func (t *Tracker) cancel() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}
