package media

import (
	"fmt"
	"time"

	"github.com/goodtune/beacon/internal/clock"
	"github.com/goodtune/beacon/internal/event"
	"github.com/goodtune/beacon/internal/milestone"
	"github.com/rs/zerolog"
)

const (
	// DefaultPollInterval is the position sampling period for providers
	// without position push.
	DefaultPollInterval = time.Second

	// DefaultSeekThreshold is the largest continuous position change.
	DefaultSeekThreshold = 2 * time.Second
)

// DefaultMilestones are the progress thresholds used when none are configured.
var DefaultMilestones = []int{10, 25, 50, 75, 90, 95}

// Options are shared by every entity of one adapter.
type Options struct {
	Sink          event.Sink
	Milestones    *milestone.Tracker
	Clock         clock.Clock
	PollInterval  time.Duration
	SeekThreshold time.Duration
	Logger        zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.Milestones == nil {
		o.Milestones = milestone.New(DefaultMilestones)
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.SeekThreshold <= 0 {
		o.SeekThreshold = DefaultSeekThreshold
	}
	return o
}

// EntityConfig identifies one tracked player.
type EntityConfig struct {
	Key      string
	Kind     Kind
	Provider string
	Source   Source
	// Poll enables periodic position sampling while playing.
	Poll bool
	// OnClose releases provider subscriptions.
	OnClose func()
}

// Entity binds an Engine to the Source it samples and owns the entity's
// polling loop.
type Entity struct {
	key      string
	provider string
	engine   *Engine
	source   Source
	clock    clock.Clock
	interval time.Duration
	poll     bool
	poller   clock.Timer
	onClose  func()
	closed   bool
	logger   zerolog.Logger
}

// NewEntity creates an idle entity.
func NewEntity(cfg EntityConfig, opts Options) *Entity {
	opts = opts.withDefaults()
	return &Entity{
		key:      cfg.Key,
		provider: cfg.Provider,
		engine: NewEngine(EngineConfig{
			Kind:          cfg.Kind,
			Provider:      cfg.Provider,
			Milestones:    opts.Milestones,
			SeekThreshold: opts.SeekThreshold.Seconds(),
		}, opts.Sink),
		source:   cfg.Source,
		clock:    opts.Clock,
		interval: opts.PollInterval,
		poll:     cfg.Poll && !opts.Milestones.Empty(),
		onClose:  cfg.OnClose,
		logger: opts.Logger.With().
			Str("provider", cfg.Provider).
			Str("entity", cfg.Key).
			Logger(),
	}
}

// Key returns the registry key.
func (e *Entity) Key() string { return e.key }

// State returns the engine state.
func (e *Entity) State() State { return e.engine.State() }

// Polling reports whether the sampling loop is running.
func (e *Entity) Polling() bool { return e.poller != nil }

func (e *Entity) Play() {
	e.engine.Play(e.sample())
	e.syncPolling()
}

func (e *Entity) Pause() {
	e.engine.Pause(e.sample())
	e.syncPolling()
}

func (e *Entity) Position() {
	e.engine.Position(e.sample())
	e.syncPolling()
}

func (e *Entity) Seek() {
	e.engine.Seek(e.sample())
}

func (e *Entity) End() {
	e.engine.End(e.sample())
	e.syncPolling()
}

func (e *Entity) RateChange() {
	e.engine.RateChange(e.sample())
}

func (e *Entity) Fail(detail event.Params) {
	e.engine.Fail(e.sample(), detail)
	e.syncPolling()
}

// SwapContent forwards a provider-announced item change.
func (e *Entity) SwapContent(startNew bool) bool {
	swapped := e.engine.SwapContent(e.sample(), startNew)
	e.syncPolling()
	return swapped
}

// Reset drops lifecycle state and stops polling without emitting.
func (e *Entity) Reset() {
	e.engine.Reset()
	e.syncPolling()
}

// Close stops polling and releases the provider subscriptions. The entity
// must not be used afterwards.
func (e *Entity) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.engine.Reset()
	e.stopPolling()
	if e.onClose != nil {
		e.onClose()
	}
}

func (e *Entity) sample() (s Sample) {
	defer func() {
		if r := recover(); r != nil {
			s = Sample{Err: fmt.Errorf("read %s player: %v", e.provider, r)}
		}
		if s.Err != nil {
			e.logger.Debug().Err(s.Err).Msg("Degraded media sample")
		}
	}()
	return e.source.Sample()
}

func (e *Entity) syncPolling() {
	st := e.engine.State()
	want := e.poll && !e.closed && st.Started && st.Phase == PhasePlaying && (!st.Live || st.DurationPending)
	switch {
	case want && e.poller == nil:
		e.poller = clock.Every(e.clock, e.interval, e.Position)
		e.logger.Debug().Dur("interval", e.interval).Msg("Started position polling")
	case !want && e.poller != nil:
		e.stopPolling()
	}
}

func (e *Entity) stopPolling() {
	if e.poller == nil {
		return
	}
	e.poller.Stop()
	e.poller = nil
	e.logger.Debug().Msg("Stopped position polling")
}
