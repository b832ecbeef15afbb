package session

import (
	"context"
	"errors"
	"math"

	"github.com/goodtune/beacon/internal/media/jwplayer"
	"github.com/goodtune/beacon/internal/media/vimeo"
	"github.com/goodtune/beacon/internal/media/youtube"
)

var errPlayerUnavailable = errors.New("player API unavailable")

// listeners is a named event subscription table.
type listeners[T any] struct {
	next int
	fns  map[string]map[int]func(T)
}

func (l *listeners[T]) add(name string, fn func(T)) func() {
	if l.fns == nil {
		l.fns = make(map[string]map[int]func(T))
	}
	if l.fns[name] == nil {
		l.fns[name] = make(map[int]func(T))
	}
	l.next++
	id := l.next
	l.fns[name][id] = fn
	return func() { delete(l.fns[name], id) }
}

func (l *listeners[T]) fire(name string, v T) {
	for _, fn := range l.fns[name] {
		fn(v)
	}
}

func (l *listeners[T]) count() int {
	n := 0
	for _, m := range l.fns {
		n += len(m)
	}
	return n
}

// remote is the server-side stand-in for a player living in the browser.
// Every media signal refreshes its snapshot before the native event fires.
type remote interface {
	update(s PlayerState)
	fire(name string)
	subscriptions() int
}

type snapshot struct {
	state PlayerState
}

func (s *snapshot) update(st PlayerState) { s.state = st }

func (s *snapshot) duration() float64 {
	if s.state.Live {
		return math.Inf(1)
	}
	return s.state.Duration
}

func (s *snapshot) rate() float64 {
	if s.state.PlaybackRate == 0 {
		return 1
	}
	return s.state.PlaybackRate
}

func (s *snapshot) volume() float64 {
	if s.state.Volume == nil {
		return 1
	}
	return *s.state.Volume
}

// remoteElement implements html5.Element.
type remoteElement struct {
	snapshot
	id string
	on listeners[struct{}]
}

func (e *remoteElement) ID() string                { return e.id }
func (e *remoteElement) TagName() string           { return e.state.Tag }
func (e *remoteElement) CurrentTime() float64      { return e.state.CurrentTime }
func (e *remoteElement) Duration() float64         { return e.duration() }
func (e *remoteElement) PlaybackRate() float64     { return e.rate() }
func (e *remoteElement) Muted() bool               { return e.state.Muted }
func (e *remoteElement) Ended() bool               { return e.state.Ended }
func (e *remoteElement) CurrentSrc() string        { return e.state.Src }
func (e *remoteElement) Attribute(n string) string { return e.state.Attributes[n] }

func (e *remoteElement) MediaError() (int, string, bool) {
	if e.state.ErrorCode == 0 && e.state.ErrorMessage == "" {
		return 0, "", false
	}
	return e.state.ErrorCode, e.state.ErrorMessage, true
}

func (e *remoteElement) AddEventListener(eventType string, fn func()) func() {
	return e.on.add(eventType, func(struct{}) { fn() })
}

func (e *remoteElement) fire(name string)   { e.on.fire(name, struct{}{}) }
func (e *remoteElement) subscriptions() int { return e.on.count() }

// remoteYouTube implements youtube.Player.
type remoteYouTube struct {
	snapshot
	on listeners[float64]
}

func (p *remoteYouTube) read() error {
	if p.state.Unavailable {
		return errPlayerUnavailable
	}
	return nil
}

func (p *remoteYouTube) CurrentTime() (float64, error)  { return p.state.CurrentTime, p.read() }
func (p *remoteYouTube) Duration() (float64, error)     { return p.duration(), p.read() }
func (p *remoteYouTube) PlaybackRate() (float64, error) { return p.rate(), p.read() }
func (p *remoteYouTube) IsMuted() (bool, error)         { return p.state.Muted, p.read() }
func (p *remoteYouTube) VideoURL() (string, error)      { return p.state.URL, p.read() }

func (p *remoteYouTube) VideoData() (youtube.VideoData, error) {
	return youtube.VideoData{VideoID: p.state.ID, Title: p.state.Title}, p.read()
}

func (p *remoteYouTube) AddEventListener(name string, fn func(float64)) func() {
	return p.on.add(name, fn)
}

func (p *remoteYouTube) fire(name string) {
	var data float64
	switch name {
	case youtube.EventStateChange:
		data = float64(p.state.PlayerState)
	case youtube.EventError:
		data = float64(p.state.ErrorCode)
	case youtube.EventPlaybackRateChange:
		data = p.rate()
	}
	p.on.fire(name, data)
}

func (p *remoteYouTube) subscriptions() int { return p.on.count() }

// remoteVimeo implements vimeo.Player.
type remoteVimeo struct {
	snapshot
	on listeners[vimeo.Data]
}

func (p *remoteVimeo) Metadata(ctx context.Context) (vimeo.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return vimeo.Metadata{}, err
	}
	if p.state.Unavailable {
		return vimeo.Metadata{}, errPlayerUnavailable
	}
	return vimeo.Metadata{
		ID:           p.state.ID,
		Title:        p.state.Title,
		URL:          p.state.URL,
		Duration:     p.state.Duration,
		Volume:       p.volume(),
		PlaybackRate: p.rate(),
	}, nil
}

func (p *remoteVimeo) On(name string, fn func(vimeo.Data)) func() {
	return p.on.add(name, fn)
}

func (p *remoteVimeo) fire(name string) {
	var percent float64
	if p.state.Duration > 0 {
		percent = p.state.CurrentTime / p.state.Duration
	}
	p.on.fire(name, vimeo.Data{
		Seconds:      p.state.CurrentTime,
		Percent:      percent,
		Duration:     p.state.Duration,
		Volume:       p.volume(),
		PlaybackRate: p.rate(),
		ID:           p.state.ID,
		Name:         p.state.ErrorName,
		Message:      p.state.ErrorMessage,
	})
}

func (p *remoteVimeo) subscriptions() int { return p.on.count() }

// remoteJW implements jwplayer.Player.
type remoteJW struct {
	snapshot
	on listeners[jwplayer.Event]
}

func (p *remoteJW) Position() float64     { return p.state.CurrentTime }
func (p *remoteJW) Duration() float64     { return p.duration() }
func (p *remoteJW) PlaybackRate() float64 { return p.rate() }
func (p *remoteJW) Mute() bool            { return p.state.Muted }

func (p *remoteJW) PlaylistItem() jwplayer.Item {
	file := p.state.URL
	if file == "" {
		file = p.state.Src
	}
	return jwplayer.Item{MediaID: p.state.ID, File: file, Title: p.state.Title}
}

func (p *remoteJW) On(name string, fn func(jwplayer.Event)) func() {
	return p.on.add(name, fn)
}

func (p *remoteJW) fire(name string) {
	p.on.fire(name, jwplayer.Event{
		Offset:  p.state.Offset,
		Code:    p.state.ErrorCode,
		Message: p.state.ErrorMessage,
		Index:   p.state.Index,
	})
}

func (p *remoteJW) subscriptions() int { return p.on.count() }
