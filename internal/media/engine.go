package media

import (
	"math"

	"github.com/goodtune/beacon/internal/event"
	"github.com/goodtune/beacon/internal/milestone"
)

// Canonical lifecycle actions. Emitted event names are "<kind>_<action>".
const (
	ActionStart      = "start"
	ActionPlay       = "play"
	ActionPause      = "pause"
	ActionSeek       = "seek"
	ActionProgress   = "progress"
	ActionComplete   = "complete"
	ActionRateChange = "playback_rate_change"
	ActionError      = "error"
)

// Phase is the coarse lifecycle position of an entity.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePlaying
	PhasePaused
)

func (p Phase) String() string {
	switch p {
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	default:
		return "idle"
	}
}

// State is the lifecycle record of one media entity. It is owned by exactly
// one Engine.
type State struct {
	Started      bool
	Phase        Phase
	ContentID    string
	Duration     float64
	LastPosition float64
	Seeked       bool
	Live         bool
	PlaybackRate float64
	Muted        bool
	Milestones   milestone.State

	// DurationPending is set while a zero or NaN duration is standing in
	// for one the provider has not loaded yet.
	DurationPending bool

	// last good sample for the current item, used to describe it on
	// completion after it has been swapped out
	last Sample
}

// EngineConfig describes the entity an Engine reports on.
type EngineConfig struct {
	Kind     Kind
	Provider string
	// Milestones defaults to an empty tracker.
	Milestones *milestone.Tracker
	// SeekThreshold is the largest position change, in seconds, that is
	// still treated as continuous playback.
	SeekThreshold float64
}

// Engine is the per-entity lifecycle state machine. It is not safe for
// concurrent use; callers serialise signals per entity.
type Engine struct {
	kind          Kind
	provider      string
	milestones    *milestone.Tracker
	seekThreshold float64
	sink          event.Sink
	state         State
}

// NewEngine returns an idle Engine that emits into sink.
func NewEngine(cfg EngineConfig, sink event.Sink) *Engine {
	if cfg.Kind == "" {
		cfg.Kind = KindVideo
	}
	if cfg.Milestones == nil {
		cfg.Milestones = milestone.New(nil)
	}
	if cfg.SeekThreshold <= 0 {
		cfg.SeekThreshold = 2
	}
	return &Engine{
		kind:          cfg.Kind,
		provider:      cfg.Provider,
		milestones:    cfg.Milestones,
		seekThreshold: cfg.SeekThreshold,
		sink:          sink,
	}
}

// State returns a snapshot of the entity state.
func (e *Engine) State() State {
	return e.state
}

// Kind returns the media kind the engine reports as.
func (e *Engine) Kind() Kind {
	return e.kind
}

// Play handles a play or playing signal.
func (e *Engine) Play(s Sample) {
	st := &e.state
	if s.Err != nil {
		if !st.Started {
			st.Started = true
			st.Phase = PhasePlaying
			e.emit(ActionStart, e.degraded(s))
		} else if st.Phase != PhasePlaying {
			st.Phase = PhasePlaying
			e.emit(ActionPlay, e.degraded(s))
		}
		return
	}

	if e.contentChanged(s) {
		e.swap(s, true)
		return
	}
	if !st.Started {
		e.begin(s)
		return
	}

	e.observe(s)
	wasPlaying := st.Phase == PhasePlaying
	st.Phase = PhasePlaying
	if st.Seeked {
		st.Seeked = false
		e.emit(ActionSeek, e.params(s))
	}
	if !wasPlaying {
		e.emit(ActionPlay, e.params(s))
	}
}

// Pause handles a pause signal. Redundant pauses are ignored.
func (e *Engine) Pause(s Sample) {
	st := &e.state
	if !st.Started || st.Phase != PhasePlaying {
		return
	}
	st.Phase = PhasePaused
	if s.Err != nil {
		e.emit(ActionPause, e.degraded(s))
		return
	}
	st.LastPosition = s.Position
	st.last = s
	e.emit(ActionPause, e.params(s))
}

// Position handles a polled or pushed position sample while playing.
func (e *Engine) Position(s Sample) {
	st := &e.state
	if s.Err != nil || !st.Started || st.Phase != PhasePlaying {
		return
	}
	if e.contentChanged(s) {
		e.swap(s, true)
		return
	}
	e.learnDuration(s)
	if st.Live {
		st.LastPosition = s.Position
		st.last = s
		return
	}

	e.observe(s)
	percent := Percent(s.Position, st.Duration, false)
	for _, m := range e.milestones.Check(&st.Milestones, percent) {
		params := e.params(s)
		params[e.key("percent")] = m
		e.emit(ActionProgress, params)
	}
}

// Seek handles an explicit seek notification from providers that have one.
// The seek event is emitted immediately when playing and deferred to the
// next resume when paused.
func (e *Engine) Seek(s Sample) {
	st := &e.state
	if s.Err != nil || !st.Started || st.Live {
		return
	}
	e.milestones.ResetOnSeek(&st.Milestones, Percent(s.Position, st.Duration, false))
	st.LastPosition = s.Position
	st.last = s
	if st.Phase == PhasePlaying {
		st.Seeked = false
		e.emit(ActionSeek, e.params(s))
		return
	}
	st.Seeked = true
}

// End handles an end-of-content signal.
func (e *Engine) End(s Sample) {
	st := &e.state
	if !st.Started {
		return
	}
	var params event.Params
	if s.Err != nil {
		params = e.degraded(s)
	} else {
		params = e.params(s)
		params[e.key("percent")] = 100
		if !st.Live {
			params[e.key("current_time")] = wholeSeconds(st.Duration)
		}
	}
	e.emit(ActionComplete, params)
	e.Reset()
}

// RateChange handles a playback-rate change. It does not affect the
// lifecycle.
func (e *Engine) RateChange(s Sample) {
	st := &e.state
	if !st.Started {
		return
	}
	if s.Err != nil {
		e.emit(ActionRateChange, e.degraded(s))
		return
	}
	st.PlaybackRate = s.Rate
	e.emit(ActionRateChange, e.params(s))
}

// Fail reports a provider error with detail merged into the payload and
// returns the entity to idle.
func (e *Engine) Fail(s Sample, detail event.Params) {
	var params event.Params
	if s.Err != nil {
		params = e.degraded(s)
	} else {
		params = e.params(s)
	}
	for k, v := range detail {
		params[k] = v
	}
	e.emit(ActionError, params)
	e.Reset()
}

// SwapContent handles a provider that announces a new item directly. When
// the previous item had started it is completed first. If startNew is set the
// new item starts immediately. It reports whether a swap happened.
func (e *Engine) SwapContent(s Sample, startNew bool) bool {
	if s.Err != nil || !e.contentChanged(s) {
		return false
	}
	e.swap(s, startNew)
	return true
}

// Reset returns the entity to idle without emitting anything.
func (e *Engine) Reset() {
	e.state = State{}
}

func (e *Engine) contentChanged(s Sample) bool {
	st := &e.state
	return st.Started && st.ContentID != "" && s.ContentID != "" && s.ContentID != st.ContentID
}

// swap completes the current item and optionally starts the next one with no
// other emission in between.
func (e *Engine) swap(next Sample, startNew bool) {
	st := &e.state
	prev := st.last
	params := e.params(prev)
	params[e.key("percent")] = 100
	if !st.Live {
		params[e.key("current_time")] = wholeSeconds(st.Duration)
	}
	e.emit(ActionComplete, params)
	e.Reset()
	if startNew {
		e.begin(next)
	}
}

func (e *Engine) begin(s Sample) {
	e.Reset()
	st := &e.state
	st.Started = true
	st.Phase = PhasePlaying
	st.ContentID = s.ContentID
	st.Live = s.Live || IsLiveDuration(s.Duration)
	st.DurationPending = !s.Live && !math.IsInf(s.Duration, 0) && IsLiveDuration(s.Duration)
	if !st.Live {
		st.Duration = s.Duration
	}
	st.LastPosition = s.Position
	st.PlaybackRate = s.Rate
	st.Muted = s.Muted
	st.last = s
	e.emit(ActionStart, e.params(s))
}

// learnDuration adopts the first finite duration reported for an item that
// started without one.
func (e *Engine) learnDuration(s Sample) {
	st := &e.state
	if !st.DurationPending || s.Live || IsLiveDuration(s.Duration) {
		return
	}
	st.DurationPending = false
	st.Live = false
	st.Duration = s.Duration
}

// observe records a sample and flags a discontinuity.
func (e *Engine) observe(s Sample) {
	e.learnDuration(s)
	st := &e.state
	if !st.Live && math.Abs(s.Position-st.LastPosition) > e.seekThreshold {
		st.Seeked = true
		e.milestones.ResetOnSeek(&st.Milestones, Percent(s.Position, st.Duration, false))
	}
	st.LastPosition = s.Position
	st.PlaybackRate = s.Rate
	st.Muted = s.Muted
	st.last = s
}

func (e *Engine) params(s Sample) event.Params {
	live := s.Live || IsLiveDuration(s.Duration)
	duration := s.Duration
	if e.state.Started {
		live = e.state.Live
		if !live {
			duration = e.state.Duration
		}
	}
	reportedDuration := 0
	if !live {
		reportedDuration = wholeSeconds(duration)
	}
	return event.Params{
		e.key("title"):         nonEmpty(s.Title),
		e.key("url"):           nonEmpty(s.URL),
		e.key("duration"):      reportedDuration,
		e.key("current_time"):  wholeSeconds(s.Position),
		e.key("percent"):       Percent(s.Position, duration, live),
		e.key("provider"):      e.provider,
		e.key("id"):            nonEmpty(s.ID, s.ContentID),
		e.key("is_muted"):      s.Muted,
		e.key("is_live"):       live,
		e.key("playback_rate"): s.Rate,
	}
}

func (e *Engine) degraded(s Sample) event.Params {
	return event.Params{
		e.key("provider"): e.provider,
		e.key("error"):    s.Err.Error(),
	}
}

func (e *Engine) key(name string) string {
	return string(e.kind) + "_" + name
}

func (e *Engine) emit(action string, params event.Params) {
	e.sink.Emit(string(e.kind)+"_"+action, params)
}

func nonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return event.NotSet
}
