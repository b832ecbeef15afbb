// Package jwplayer tracks JW Player instances. JW pushes lifecycle and
// playlist changes but position is polled.
package jwplayer

import (
	"github.com/goodtune/beacon/internal/event"
	"github.com/goodtune/beacon/internal/media"
	"github.com/rs/zerolog"
)

// Item is a playlist entry.
type Item struct {
	MediaID string
	File    string
	Title   string
}

// Event is the payload JW passes to callbacks. Fields not relevant to an
// event are zero.
type Event struct {
	// Offset is the seek target for "seek".
	Offset  float64
	Code    int
	Message string
	Index   int
}

// Player is the subset of the JW Player API the tracker uses.
type Player interface {
	Position() float64
	Duration() float64
	PlaybackRate() float64
	Mute() bool
	PlaylistItem() Item
	On(name string, fn func(Event)) (off func())
}

// Events are the player events the tracker listens to.
var Events = []string{"play", "pause", "complete", "seek", "playbackRateChanged", "error", "playlistItem"}

// Tracker owns the state of every attached player.
type Tracker struct {
	registry *media.Registry
	opts     media.Options
	logger   zerolog.Logger
}

// New creates a Tracker.
func New(opts media.Options) *Tracker {
	return &Tracker{
		registry: media.NewRegistry("jwplayer"),
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "jwplayer").Logger(),
	}
}

type source struct {
	p Player
	// seekTarget overrides the position while a seek is being reported,
	// since getPosition still returns the pre-seek value at that point.
	seekTarget *float64
}

func (s *source) Sample() media.Sample {
	item := s.p.PlaylistItem()
	pos := s.p.Position()
	if s.seekTarget != nil {
		pos = *s.seekTarget
	}
	id := item.MediaID
	if id == "" {
		id = item.File
	}
	duration := s.p.Duration()
	return media.Sample{
		Position:  pos,
		Duration:  duration,
		Live:      media.IsLiveDuration(duration),
		Rate:      s.p.PlaybackRate(),
		Muted:     s.p.Mute(),
		ContentID: id,
		Title:     item.Title,
		URL:       item.File,
	}
}

// Attach starts tracking the player in container key. Re-attaching a known
// key is a no-op and reports false.
func (t *Tracker) Attach(key string, p Player) bool {
	if _, ok := t.registry.Lookup(key); ok {
		return false
	}

	src := &source{p: p}
	var removers []func()
	entity := media.NewEntity(media.EntityConfig{
		Key:      key,
		Kind:     media.KindVideo,
		Provider: "jwplayer",
		Source:   src,
		Poll:     true,
		OnClose: func() {
			for _, off := range removers {
				off()
			}
		},
	}, t.opts)

	for _, name := range Events {
		name := name
		removers = append(removers, p.On(name, func(ev Event) {
			t.handle(entity, src, name, ev)
		}))
	}
	t.registry.Insert(entity)

	t.logger.Debug().Str("entity", key).Msg("Attached JW player")
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

func (t *Tracker) handle(e *media.Entity, src *source, name string, ev Event) {
	switch name {
	case "play":
		e.Play()
	case "pause":
		e.Pause()
	case "complete":
		e.End()
	case "seek":
		target := ev.Offset
		src.seekTarget = &target
		e.Seek()
		src.seekTarget = nil
	case "playbackRateChanged":
		e.RateChange()
	case "error":
		e.Fail(event.Params{"error_code": ev.Code, "error_message": ev.Message})
	case "playlistItem":
		e.SwapContent(false)
	}
}
