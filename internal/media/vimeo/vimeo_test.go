package vimeo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/beacon/internal/clock"
	"github.com/goodtune/beacon/internal/event"
	"github.com/goodtune/beacon/internal/media"
	"github.com/goodtune/beacon/internal/milestone"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

type fakePlayer struct {
	meta      map[string]Metadata
	current   string
	fetchErr  error
	fetches   int
	listeners map[string][]func(Data)
}

func newPlayer() *fakePlayer {
	return &fakePlayer{
		meta: map[string]Metadata{
			"111": {ID: "111", Title: "Launch", URL: "https://vimeo.com/111", Duration: 60, Volume: 1, PlaybackRate: 1},
			"222": {ID: "222", Title: "Follow-up", URL: "https://vimeo.com/222", Duration: 30, Volume: 1, PlaybackRate: 1},
		},
		current:   "111",
		listeners: map[string][]func(Data){},
	}
}

func (p *fakePlayer) Metadata(ctx context.Context) (Metadata, error) {
	p.fetches++
	if p.fetchErr != nil {
		return Metadata{}, p.fetchErr
	}
	return p.meta[p.current], nil
}

func (p *fakePlayer) On(name string, fn func(Data)) func() {
	p.listeners[name] = append(p.listeners[name], fn)
	return func() { delete(p.listeners, name) }
}

func (p *fakePlayer) emit(name string, d Data) {
	for _, fn := range p.listeners[name] {
		fn(d)
	}
}

func setup(t *testing.T, p *fakePlayer, thresholds ...int) (*Tracker, *event.Recorder) {
	t.Helper()
	rec := &event.Recorder{}
	tr := New(media.Options{
		Sink:       rec,
		Milestones: milestone.New(thresholds),
		Clock:      clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Logger:     zerolog.Nop(),
	})
	tr.Attach(context.Background(), "vimeoPlayer_111", p)
	return tr, rec
}

func at(seconds float64) Data {
	return Data{Seconds: seconds, Duration: 60, Percent: seconds / 60}
}

func TestPushedLifecycle(t *testing.T) {
	p := newPlayer()
	_, rec := setup(t, p, 25, 50)

	p.emit("play", at(0))
	for s := 1.0; s <= 16; s++ {
		p.emit("timeupdate", at(s))
	}
	p.emit("pause", at(16))
	p.emit("volumechange", Data{Volume: 0})
	p.emit("play", at(16))
	p.emit("seeked", at(45))
	p.emit("timeupdate", at(45.5))
	p.emit("ended", at(60))

	want := []string{"video_start", "video_progress", "video_pause", "video_play", "video_seek", "video_complete"}
	if diff := cmp.Diff(want, rec.Names()); diff != "" {
		t.Fatalf("Event sequence mismatch (-want +got):\n%s", diff)
	}

	start := rec.Events()[0].Params
	if start["video_title"] != "Launch" || start["video_id"] != "111" || start["video_is_live"] != false {
		t.Errorf("Unexpected start params %v", start)
	}
	play := rec.Named("video_play")[0].Params
	if play["video_is_muted"] != true {
		t.Errorf("Expected muted after volume 0, got %v", play["video_is_muted"])
	}
}

func TestLoadedNewVideoCompletesPrevious(t *testing.T) {
	p := newPlayer()
	_, rec := setup(t, p, 50)

	p.emit("play", at(0))
	p.emit("timeupdate", at(1))

	p.current = "222"
	p.emit("loaded", Data{ID: "222"})
	p.emit("play", Data{Seconds: 0, Duration: 30})

	events := rec.Events()
	want := []string{"video_start", "video_complete", "video_start"}
	if diff := cmp.Diff(want, rec.Names()); diff != "" {
		t.Fatalf("Event sequence mismatch (-want +got):\n%s", diff)
	}
	if events[1].Params["video_id"] != "111" || events[1].Params["video_current_time"] != 60 {
		t.Errorf("Expected complete for 111, got %v", events[1].Params)
	}
	if events[2].Params["video_title"] != "Follow-up" {
		t.Errorf("Expected start for follow-up, got %v", events[2].Params)
	}
}

func TestMetadataFailureIsNotFatal(t *testing.T) {
	p := newPlayer()
	p.fetchErr = errors.New("timeout")
	_, rec := setup(t, p, 50)

	p.emit("play", at(0))
	for s := 1.0; s <= 31; s++ {
		p.emit("timeupdate", at(s))
	}

	if diff := cmp.Diff([]string{"video_start", "video_progress"}, rec.Names()); diff != "" {
		t.Fatalf("Event sequence mismatch (-want +got):\n%s", diff)
	}
	if got := rec.Events()[0].Params["video_title"]; got != event.NotSet {
		t.Errorf("Expected placeholder title, got %v", got)
	}
}

func TestErrorCarriesNameAndMessage(t *testing.T) {
	p := newPlayer()
	_, rec := setup(t, p, 50)

	p.emit("play", at(0))
	p.emit("error", Data{Name: "PrivacyError", Message: "video is private"})

	errs := rec.Named("video_error")
	if len(errs) != 1 {
		t.Fatalf("Expected one error, got %v", rec.Names())
	}
	if errs[0].Params["error_name"] != "PrivacyError" || errs[0].Params["error_message"] != "video is private" {
		t.Errorf("Unexpected error params %v", errs[0].Params)
	}
}

func TestAttachOnce(t *testing.T) {
	p := newPlayer()
	tr, _ := setup(t, p, 50)

	if tr.Attach(context.Background(), "vimeoPlayer_111", p) {
		t.Error("Expected re-attach to be rejected")
	}
	if p.fetches != 1 {
		t.Errorf("Expected a single metadata fetch, got %d", p.fetches)
	}
	for _, name := range Events {
		if got := len(p.listeners[name]); got != 1 {
			t.Errorf("Expected one %s listener, got %d", name, got)
		}
	}

	tr.Detach("vimeoPlayer_111")
	if len(p.listeners) != 0 {
		t.Errorf("Expected listeners removed, got %d", len(p.listeners))
	}
}
