package vitals

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goodtune/beacon/internal/clock"
	"github.com/goodtune/beacon/internal/event"
	"github.com/rs/zerolog"
)

const (
	// EventName is the emitted event.
	EventName = "web_vitals"

	// restoreFrames approximates two animation frames after a
	// back/forward cache restore.
	restoreFrames = 32 * time.Millisecond

	maxTargetLen = 100
)

// Config configures a Collector.
type Config struct {
	Sink  event.Sink
	Clock clock.Clock

	// Origin is the page's performance time origin.
	Origin           time.Time
	Metrics          []Name
	ReportAllChanges []Name

	// Hidden reports that the page was hidden when collection started.
	Hidden bool
	Logger zerolog.Logger
}

type metricState struct {
	metric   Metric
	reporter *reporter
	// done marks a one-shot metric as measured or closed.
	done bool
}

// Collector turns performance entries and page lifecycle signals into
// web_vitals events. It is not safe for concurrent use.
type Collector struct {
	sink      event.Sink
	clock     clock.Clock
	origin    time.Time
	enabled   map[Name]bool
	reportAll map[Name]bool
	metrics   map[Name]*metricState
	seq       int

	firstHidden float64
	restoreTime float64
	restored    bool
	navigation  *Entry

	clsSession      []Entry
	clsSessionValue float64
	interactions    interactions
	interactionCnt  int

	frames []clock.Timer
	logger zerolog.Logger
}

// New creates a Collector and initialises every enabled metric.
func New(cfg Config) *Collector {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Origin.IsZero() {
		cfg.Origin = cfg.Clock.Now()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = DefaultMetrics
	}
	if cfg.ReportAllChanges == nil {
		cfg.ReportAllChanges = DefaultReportAllChanges
	}
	c := &Collector{
		sink:        cfg.Sink,
		clock:       cfg.Clock,
		origin:      cfg.Origin,
		enabled:     make(map[Name]bool),
		reportAll:   make(map[Name]bool),
		metrics:     make(map[Name]*metricState),
		firstHidden: math.Inf(1),
		restoreTime: -1,
		logger:      cfg.Logger.With().Str("component", "vitals").Logger(),
	}
	for _, n := range cfg.Metrics {
		c.enabled[n] = true
	}
	for _, n := range cfg.ReportAllChanges {
		c.reportAll[n] = true
	}
	if cfg.Hidden {
		c.firstHidden = 0
	}
	for _, n := range []Name{CLS, FCP, LCP, INP, TTFB, FID} {
		if c.enabled[n] {
			c.init(n, initialValue(n))
		}
	}
	return c
}

func initialValue(n Name) float64 {
	if n == CLS {
		return 0
	}
	return -1
}

// Now returns the current time relative to the page's time origin in
// milliseconds.
func (c *Collector) Now() float64 {
	return float64(c.clock.Now().Sub(c.origin)) / float64(time.Millisecond)
}

// Metric returns the current state of metric n.
func (c *Collector) Metric(n Name) (Metric, bool) {
	ms, ok := c.metrics[n]
	if !ok {
		return Metric{}, false
	}
	return ms.metric, true
}

// SetInteractionCount records the browser's interaction count. Without it
// the number of distinct interactions observed is used.
func (c *Collector) SetInteractionCount(n int) {
	c.interactionCnt = n
}

// Observe processes a batch of entries of one type.
func (c *Collector) Observe(entryType string, entries []Entry) {
	switch entryType {
	case EntryPaint:
		for _, e := range entries {
			c.observeFCP(e)
		}
	case EntryLCP:
		for _, e := range entries {
			c.observeLCP(e)
		}
	case EntryLayoutShift:
		for _, e := range entries {
			c.observeCLS(e)
		}
	case EntryEvent:
		c.observeINP(entries, false)
	case EntryFirstInput:
		c.observeINP(entries, true)
		for _, e := range entries {
			c.observeFID(e)
		}
	case EntryNavigation:
		for _, e := range entries {
			c.observeNavigation(e)
		}
	default:
		c.logger.Debug().Str("entry_type", entryType).Msg("Ignoring unsupported entry type")
	}
}

// Hidden handles the page becoming hidden or being unloaded at t
// milliseconds. Pending values are finalised.
func (c *Collector) Hidden(t float64) {
	if math.IsInf(c.firstHidden, 1) {
		c.firstHidden = t
	}
	if ms := c.metrics[CLS]; ms != nil {
		ms.reporter.report(true)
	}
	if ms := c.metrics[LCP]; ms != nil && !ms.done {
		ms.done = true
		ms.reporter.report(true)
	}
	if ms := c.metrics[INP]; ms != nil {
		ms.reporter.report(true)
	}
	if ms := c.metrics[FID]; ms != nil {
		ms.done = true
	}
}

// Restore handles a page shown from the back/forward cache at t
// milliseconds. Every metric restarts under a new id.
func (c *Collector) Restore(t float64) {
	c.restoreTime = t
	c.restored = true
	c.cancelFrames()

	if c.enabled[CLS] {
		c.clsSession = nil
		c.clsSessionValue = 0
		ms := c.init(CLS, 0)
		c.afterFrames(func() { ms.reporter.report(false) })
	}
	if c.enabled[FCP] {
		ms := c.init(FCP, -1)
		ms.done = true
		c.afterFrames(func() {
			ms.metric.Value = c.Now() - c.restoreTime
			ms.reporter.report(true)
		})
	}
	if c.enabled[LCP] {
		ms := c.init(LCP, -1)
		ms.done = true
		c.afterFrames(func() {
			ms.metric.Value = c.Now() - c.restoreTime
			ms.reporter.report(true)
		})
	}
	if c.enabled[INP] {
		c.interactions.reset()
		c.interactionCnt = 0
		c.init(INP, -1)
	}
	if c.enabled[TTFB] {
		ms := c.init(TTFB, 0)
		ms.done = true
		ms.reporter.report(true)
	}
	if c.enabled[FID] {
		// first-input is not dispatched again after a restore
		ms := c.init(FID, -1)
		ms.done = true
	}
}

// Close cancels pending frame callbacks.
func (c *Collector) Close() {
	c.cancelFrames()
}

func (c *Collector) init(n Name, value float64) *metricState {
	c.seq++
	ms := &metricState{
		metric: Metric{
			Name:           n,
			Value:          value,
			ID:             fmt.Sprintf("v3-%d-%d", c.clock.Now().UnixMilli(), c.seq),
			Rating:         Good,
			NavigationType: c.navigationType(),
		},
	}
	ms.reporter = newReporter(&ms.metric, c.reportAll[n], c.emit)
	c.metrics[n] = ms
	return ms
}

func (c *Collector) navigationType() string {
	if c.restored {
		return NavigationBackForwardCache
	}
	if c.navigation != nil {
		if c.navigation.ActivationStart > 0 {
			return NavigationPrerender
		}
		if c.navigation.Type != "" {
			return strings.ReplaceAll(c.navigation.Type, "_", "-")
		}
	}
	return NavigationNavigate
}

func (c *Collector) activationStart() float64 {
	if c.navigation == nil {
		return 0
	}
	return c.navigation.ActivationStart
}

// ttfbMargin is how far, in ms, the response start must trail the page clock.
const ttfbMargin = 1000

func (c *Collector) observeNavigation(e Entry) {
	if c.navigation != nil {
		return
	}
	c.navigation = &e
	// metrics created before the navigation entry arrived inherit its type
	for _, ms := range c.metrics {
		if !ms.reporter.reported {
			ms.metric.NavigationType = c.navigationType()
		}
	}

	ms := c.metrics[TTFB]
	if ms == nil || ms.done {
		return
	}
	// the response must have started at least a second before now
	value := math.Max(e.ResponseStart-c.activationStart(), 0)
	if value > 0 && value < c.Now()-ttfbMargin {
		ms.done = true
		ms.metric.Value = value
		ms.metric.Entries = append(ms.metric.Entries, e)
		ms.reporter.report(true)
	}
}

func (c *Collector) observeFCP(e Entry) {
	ms := c.metrics[FCP]
	if ms == nil || ms.done || e.Name != "first-contentful-paint" {
		return
	}
	ms.done = true
	if e.StartTime < c.firstHidden {
		ms.metric.Value = math.Max(e.StartTime-c.activationStart(), 0)
		ms.metric.Entries = append(ms.metric.Entries, e)
		ms.reporter.report(true)
	}
}

func (c *Collector) observeLCP(e Entry) {
	ms := c.metrics[LCP]
	if ms == nil || ms.done {
		return
	}
	if e.StartTime < c.firstHidden {
		ms.metric.Value = math.Max(e.StartTime-c.activationStart(), 0)
		ms.metric.Entries = append(ms.metric.Entries, e)
	}
	ms.reporter.report(false)
}

func (c *Collector) observeCLS(e Entry) {
	ms := c.metrics[CLS]
	if ms == nil || e.HadRecentInput {
		return
	}
	if n := len(c.clsSession); c.clsSessionValue != 0 && n > 0 &&
		e.StartTime-c.clsSession[n-1].StartTime < 1000 &&
		e.StartTime-c.clsSession[0].StartTime < 5000 {
		c.clsSessionValue += e.Value
		c.clsSession = append(c.clsSession, e)
	} else {
		c.clsSessionValue = e.Value
		c.clsSession = []Entry{e}
	}
	if c.clsSessionValue > ms.metric.Value {
		ms.metric.Value = c.clsSessionValue
		ms.metric.Entries = append([]Entry(nil), c.clsSession...)
		ms.reporter.report(false)
	}
}

func (c *Collector) observeINP(entries []Entry, firstInput bool) {
	ms := c.metrics[INP]
	if ms == nil {
		return
	}
	for _, e := range entries {
		switch {
		case firstInput:
			if c.interactions.hasFirstInput(e) {
				continue
			}
		case e.Duration < durationThreshold:
			continue
		}
		c.interactions.add(e)
	}
	if !math.IsInf(c.firstHidden, 1) {
		c.interactions.dropAfter(c.firstHidden)
	}

	total := c.interactionCnt
	if total < c.interactions.count {
		total = c.interactions.count
	}
	p98 := c.interactions.p98(total)
	if p98 != nil && p98.latency != ms.metric.Value {
		ms.metric.Value = p98.latency
		ms.metric.Entries = p98.entries
		ms.reporter.report(false)
	}
}

func (c *Collector) observeFID(e Entry) {
	ms := c.metrics[FID]
	if ms == nil || ms.done {
		return
	}
	if e.ProcessingStart > 0 && e.StartTime < c.firstHidden {
		ms.done = true
		ms.metric.Value = e.ProcessingStart - e.StartTime
		ms.metric.Entries = append(ms.metric.Entries, e)
		ms.reporter.report(true)
	}
}

func (c *Collector) afterFrames(fn func()) {
	var t clock.Timer
	t = c.clock.AfterFunc(restoreFrames, func() {
		c.dropFrame(t)
		fn()
	})
	c.frames = append(c.frames, t)
}

func (c *Collector) dropFrame(t clock.Timer) {
	for i, f := range c.frames {
		if f == t {
			c.frames = append(c.frames[:i], c.frames[i+1:]...)
			return
		}
	}
}

func (c *Collector) cancelFrames() {
	for _, t := range c.frames {
		t.Stop()
	}
	c.frames = nil
}

func (c *Collector) emit(m Metric) {
	params := event.Params{
		"metric_name":           string(m.Name),
		"metric_value":          Round(m.Name, m.Value),
		"metric_id":             m.ID,
		"metric_rating":         string(m.Rating),
		"metric_delta":          Round(m.Name, m.Delta),
		"debug_navigation_type": m.NavigationType,
	}
	if target, eventType := attribution(m); target != "" {
		params["debug_target"] = target
		if eventType != "" {
			params["debug_event_type"] = eventType
		}
	}
	c.logger.Debug().
		Str("metric", string(m.Name)).
		Float64("value", m.Value).
		Str("rating", string(m.Rating)).
		Msg("Reporting web vital")
	c.sink.Emit(EventName, params)
}

// attribution picks the element most responsible for m.
func attribution(m Metric) (target, eventType string) {
	if len(m.Entries) == 0 {
		return "", ""
	}
	var e Entry
	switch m.Name {
	case CLS:
		e = m.Entries[0]
		for _, x := range m.Entries[1:] {
			if x.Value > e.Value {
				e = x
			}
		}
	case INP, FID:
		e = m.Entries[0]
		eventType = e.Name
	default:
		e = m.Entries[len(m.Entries)-1]
	}
	return truncate(e.Target, maxTargetLen), eventType
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
