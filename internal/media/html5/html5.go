// Package html5 tracks native <video> and <audio> elements.
package html5

import (
	"strings"

	"github.com/goodtune/beacon/internal/event"
	"github.com/goodtune/beacon/internal/media"
	"github.com/rs/zerolog"
)

// Element is the subset of HTMLMediaElement the tracker reads.
type Element interface {
	ID() string
	TagName() string
	CurrentTime() float64
	Duration() float64
	PlaybackRate() float64
	Muted() bool
	Ended() bool
	CurrentSrc() string
	Attribute(name string) string
	// MediaError returns the element's current error, if any.
	MediaError() (code int, message string, ok bool)
	AddEventListener(eventType string, fn func()) (remove func())
}

// Events are the element events the tracker listens to.
var Events = []string{"loadstart", "playing", "pause", "ended", "timeupdate", "error", "seeking", "seeked", "ratechange"}

// Tracker owns the state of every attached media element. Position arrives
// by timeupdate push, so entities never poll.
type Tracker struct {
	registry *media.Registry
	opts     media.Options
	logger   zerolog.Logger
}

// New creates a Tracker.
func New(opts media.Options) *Tracker {
	return &Tracker{
		registry: media.NewRegistry("html5"),
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "html5-media").Logger(),
	}
}

// Attach starts tracking el. Attaching an element that is already tracked is
// a no-op and reports false.
func (t *Tracker) Attach(el Element) bool {
	key := el.ID()
	if key == "" {
		t.logger.Warn().Msg("Media element without id, not tracked")
		return false
	}
	if _, ok := t.registry.Lookup(key); ok {
		return false
	}

	kind := kindOf(el)
	var removers []func()
	entity := media.NewEntity(media.EntityConfig{
		Key:      key,
		Kind:     kind,
		Provider: "html5 " + string(kind),
		Source:   media.SourceFunc(func() media.Sample { return sample(el) }),
		OnClose: func() {
			for _, remove := range removers {
				remove()
			}
		},
	}, t.opts)

	for _, eventType := range Events {
		eventType := eventType
		removers = append(removers, el.AddEventListener(eventType, func() {
			t.handle(entity, el, eventType)
		}))
	}
	t.registry.Insert(entity)

	t.logger.Debug().Str("entity", key).Str("kind", string(kind)).Msg("Attached media element")
	return true
}

// Detach stops tracking the element with the given id.
func (t *Tracker) Detach(id string) bool {
	return t.registry.Remove(id)
}

// Entity returns the tracked entity for id.
func (t *Tracker) Entity(id string) (*media.Entity, bool) {
	return t.registry.Lookup(id)
}

// Len returns the number of tracked elements.
func (t *Tracker) Len() int {
	return t.registry.Len()
}

// Close detaches every element.
func (t *Tracker) Close() {
	t.registry.Close()
}

func (t *Tracker) handle(e *media.Entity, el Element, eventType string) {
	switch eventType {
	case "loadstart":
		e.SwapContent(false)
	case "playing":
		e.Play()
	case "pause":
		// pause also fires right before ended
		if !el.Ended() {
			e.Pause()
		}
	case "ended":
		e.End()
	case "timeupdate", "seeked":
		e.Position()
	case "seeking":
		e.Seek()
	case "ratechange":
		e.RateChange()
	case "error":
		detail := event.Params{"error_code": event.NotSet, "error_message": "Unknown Error"}
		if code, msg, ok := el.MediaError(); ok {
			detail["error_code"] = code
			if msg != "" {
				detail["error_message"] = msg
			}
		}
		e.Fail(detail)
	}
}

func kindOf(el Element) media.Kind {
	if strings.EqualFold(el.TagName(), "video") {
		return media.KindVideo
	}
	return media.KindAudio
}

func sample(el Element) media.Sample {
	src := el.CurrentSrc()
	return media.Sample{
		Position:  el.CurrentTime(),
		Duration:  el.Duration(),
		Live:      media.IsLiveDuration(el.Duration()),
		Rate:      el.PlaybackRate(),
		Muted:     el.Muted(),
		ContentID: src,
		ID:        el.ID(),
		Title:     title(el, src),
		URL:       src,
	}
}

func title(el Element, src string) string {
	if v := el.Attribute("title"); v != "" {
		return v
	}
	if v := el.Attribute("aria-label"); v != "" {
		return v
	}
	if i := strings.LastIndexByte(src, '/'); i >= 0 {
		return src[i+1:]
	}
	return src
}
