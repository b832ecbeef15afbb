// Package vimeo tracks embedded Vimeo players. The Vimeo SDK pushes every
// signal, including position, so entities never poll.
package vimeo

import (
	"context"
	"time"

	"github.com/goodtune/beacon/internal/event"
	"github.com/goodtune/beacon/internal/media"
	"github.com/rs/zerolog"
)

// Data is the payload Vimeo passes to event callbacks. Fields not relevant
// to an event are zero.
type Data struct {
	Seconds      float64
	Percent      float64
	Duration     float64
	Volume       float64
	PlaybackRate float64
	ID           string
	Name         string
	Message      string
}

// Metadata is what the player reports once ready.
type Metadata struct {
	ID           string
	Title        string
	URL          string
	Duration     float64
	Volume       float64
	PlaybackRate float64
}

// Player is the subset of Vimeo.Player the tracker uses.
type Player interface {
	Metadata(ctx context.Context) (Metadata, error)
	On(name string, fn func(Data)) (off func())
}

// Events are the player events the tracker listens to.
var Events = []string{"play", "pause", "ended", "timeupdate", "seeked", "playbackratechange", "volumechange", "error", "loaded"}

// DefaultFetchTimeout bounds a metadata fetch.
const DefaultFetchTimeout = 5 * time.Second

// Tracker owns the state of every attached player.
type Tracker struct {
	registry     *media.Registry
	opts         media.Options
	fetchTimeout time.Duration
	logger       zerolog.Logger
}

// New creates a Tracker.
func New(opts media.Options) *Tracker {
	return &Tracker{
		registry:     media.NewRegistry("vimeo"),
		opts:         opts,
		fetchTimeout: DefaultFetchTimeout,
		logger:       opts.Logger.With().Str("component", "vimeo").Logger(),
	}
}

// player caches metadata and the latest event payload for one embed.
type player struct {
	p    Player
	meta Metadata
	last Data
}

func (v *player) Sample() media.Sample {
	duration := v.meta.Duration
	if duration <= 0 {
		duration = v.last.Duration
	}
	return media.Sample{
		Position:  v.last.Seconds,
		Duration:  duration,
		Rate:      v.meta.PlaybackRate,
		Muted:     v.meta.Volume == 0,
		ContentID: v.meta.ID,
		Title:     v.meta.Title,
		URL:       v.meta.URL,
	}
}

// Attach starts tracking the player for key, fetching its metadata first.
// A failed fetch is logged and tracking continues with placeholders.
// Re-attaching a known key is a no-op and reports false.
func (t *Tracker) Attach(ctx context.Context, key string, p Player) bool {
	if _, ok := t.registry.Lookup(key); ok {
		return false
	}

	v := &player{p: p, meta: Metadata{Volume: 1, PlaybackRate: 1}}
	t.refresh(ctx, key, v)

	var removers []func()
	entity := media.NewEntity(media.EntityConfig{
		Key:      key,
		Kind:     media.KindVideo,
		Provider: "vimeo",
		Source:   v,
		OnClose: func() {
			for _, off := range removers {
				off()
			}
		},
	}, t.opts)

	for _, name := range Events {
		name := name
		removers = append(removers, p.On(name, func(d Data) {
			t.handle(entity, v, key, name, d)
		}))
	}
	t.registry.Insert(entity)

	t.logger.Debug().Str("entity", key).Str("video_id", v.meta.ID).Msg("Attached Vimeo player")
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

func (t *Tracker) refresh(ctx context.Context, key string, v *player) {
	ctx, cancel := context.WithTimeout(ctx, t.fetchTimeout)
	defer cancel()

	meta, err := v.p.Metadata(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Str("entity", key).Msg("Vimeo player data fetch failed")
		return
	}
	if meta.PlaybackRate == 0 {
		meta.PlaybackRate = 1
	}
	v.meta = meta
}

func (t *Tracker) handle(e *media.Entity, v *player, key, name string, d Data) {
	switch name {
	case "play":
		v.last = d
		if d.Duration > 0 {
			v.meta.Duration = d.Duration
		}
		e.Play()
	case "pause":
		v.last = d
		e.Pause()
	case "ended":
		v.last = d
		e.End()
	case "timeupdate":
		v.last = d
		e.Position()
	case "seeked":
		v.last = d
		e.Seek()
	case "playbackratechange":
		v.meta.PlaybackRate = d.PlaybackRate
		e.RateChange()
	case "volumechange":
		v.meta.Volume = d.Volume
	case "error":
		e.Fail(event.Params{"error_message": d.Message, "error_name": d.Name})
	case "loaded":
		if d.ID == "" || d.ID == v.meta.ID {
			return
		}
		t.refresh(context.Background(), key, v)
		if v.meta.ID != d.ID {
			v.meta = Metadata{ID: d.ID, Volume: v.meta.Volume, PlaybackRate: 1}
		}
		v.last = Data{}
		e.SwapContent(false)
	}
}
