// Package youtube tracks embedded YouTube IFrame players. The IFrame API has
// no position push and no playlist-advance callback, so position is polled
// and content swaps are inferred from the video id.
package youtube

import (
	"github.com/goodtune/beacon/internal/event"
	"github.com/goodtune/beacon/internal/media"
	"github.com/rs/zerolog"
)

// Player states reported through onStateChange.
const (
	StateUnstarted = -1
	StateEnded     = 0
	StatePlaying   = 1
	StatePaused    = 2
	StateBuffering = 3
	StateCued      = 5
)

// Player event names.
const (
	EventStateChange        = "onStateChange"
	EventPlaybackRateChange = "onPlaybackRateChange"
	EventError              = "onError"
)

// VideoData is the result of getVideoData().
type VideoData struct {
	VideoID string
	Title   string
}

// Player is the subset of YT.Player the tracker uses. Every read can fail
// when the iframe is gone or not yet ready.
type Player interface {
	CurrentTime() (float64, error)
	Duration() (float64, error)
	PlaybackRate() (float64, error)
	IsMuted() (bool, error)
	VideoData() (VideoData, error)
	VideoURL() (string, error)
	AddEventListener(name string, fn func(data float64)) (remove func())
}

// Tracker owns the state of every attached player.
type Tracker struct {
	registry *media.Registry
	opts     media.Options
	logger   zerolog.Logger
}

// New creates a Tracker.
func New(opts media.Options) *Tracker {
	return &Tracker{
		registry: media.NewRegistry("youtube"),
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "youtube").Logger(),
	}
}

// Attach starts tracking the player embedded in the iframe identified by
// key. Re-attaching a known key is a no-op and reports false.
func (t *Tracker) Attach(key string, p Player) bool {
	if _, ok := t.registry.Lookup(key); ok {
		return false
	}

	var removers []func()
	entity := media.NewEntity(media.EntityConfig{
		Key:      key,
		Kind:     media.KindVideo,
		Provider: "youtube",
		Source:   media.SourceFunc(func() media.Sample { return sample(p) }),
		Poll:     true,
		OnClose: func() {
			for _, remove := range removers {
				remove()
			}
		},
	}, t.opts)

	removers = append(removers,
		p.AddEventListener(EventStateChange, func(state float64) {
			t.stateChange(entity, int(state))
		}),
		p.AddEventListener(EventPlaybackRateChange, func(float64) {
			entity.RateChange()
		}),
		p.AddEventListener(EventError, func(code float64) {
			entity.Fail(event.Params{"error_code": int(code)})
		}),
	)
	t.registry.Insert(entity)

	t.logger.Debug().Str("entity", key).Msg("Attached YouTube player")
	return true
}

// Detach stops tracking key.
func (t *Tracker) Detach(key string) bool {
	return t.registry.Remove(key)
}

// Entity returns the tracked entity for key.
func (t *Tracker) Entity(key string) (*media.Entity, bool) {
	return t.registry.Lookup(key)
}

// Len returns the number of tracked players.
func (t *Tracker) Len() int {
	return t.registry.Len()
}

// Close detaches every player.
func (t *Tracker) Close() {
	t.registry.Close()
}

func (t *Tracker) stateChange(e *media.Entity, state int) {
	switch state {
	case StatePlaying:
		e.Play()
	case StatePaused:
		e.Pause()
	case StateEnded:
		e.End()
	case StateCued:
		e.Reset()
	}
}

func sample(p Player) media.Sample {
	var s media.Sample
	var err error
	if s.Duration, err = p.Duration(); err != nil {
		return media.Sample{Err: err}
	}
	if s.Position, err = p.CurrentTime(); err != nil {
		return media.Sample{Err: err}
	}
	if s.Rate, err = p.PlaybackRate(); err != nil {
		return media.Sample{Err: err}
	}
	if s.Muted, err = p.IsMuted(); err != nil {
		return media.Sample{Err: err}
	}
	data, err := p.VideoData()
	if err != nil {
		return media.Sample{Err: err}
	}
	if s.URL, err = p.VideoURL(); err != nil {
		return media.Sample{Err: err}
	}
	s.ContentID = data.VideoID
	s.Title = data.Title
	s.Live = media.IsLiveDuration(s.Duration)
	return s
}
