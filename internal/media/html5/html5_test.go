package html5

import (
	"math"
	"testing"
	"time"

	"github.com/goodtune/beacon/internal/clock"
	"github.com/goodtune/beacon/internal/event"
	"github.com/goodtune/beacon/internal/media"
	"github.com/goodtune/beacon/internal/milestone"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

type fakeElement struct {
	id, tag   string
	time, dur float64
	rate      float64
	muted     bool
	ended     bool
	src       string
	attrs     map[string]string
	errCode   int
	errMsg    string
	listeners map[string][]func()
}

func newElement(id, tag string) *fakeElement {
	return &fakeElement{id: id, tag: tag, dur: 100, rate: 1, src: "https://cdn.example.com/media/intro.mp4", attrs: map[string]string{}, listeners: map[string][]func(){}}
}

func (f *fakeElement) ID() string                   { return f.id }
func (f *fakeElement) TagName() string              { return f.tag }
func (f *fakeElement) CurrentTime() float64         { return f.time }
func (f *fakeElement) Duration() float64            { return f.dur }
func (f *fakeElement) PlaybackRate() float64        { return f.rate }
func (f *fakeElement) Muted() bool                  { return f.muted }
func (f *fakeElement) Ended() bool                  { return f.ended }
func (f *fakeElement) CurrentSrc() string           { return f.src }
func (f *fakeElement) Attribute(name string) string { return f.attrs[name] }
func (f *fakeElement) MediaError() (int, string, bool) {
	return f.errCode, f.errMsg, f.errCode != 0
}

func (f *fakeElement) AddEventListener(eventType string, fn func()) func() {
	f.listeners[eventType] = append(f.listeners[eventType], fn)
	idx := len(f.listeners[eventType]) - 1
	return func() { f.listeners[eventType][idx] = nil }
}

func (f *fakeElement) fire(eventType string) {
	for _, fn := range f.listeners[eventType] {
		if fn != nil {
			fn()
		}
	}
}

func (f *fakeElement) listenerCount() int {
	n := 0
	for _, fns := range f.listeners {
		for _, fn := range fns {
			if fn != nil {
				n++
			}
		}
	}
	return n
}

func newTracker(rec *event.Recorder, thresholds ...int) *Tracker {
	return New(media.Options{
		Sink:       rec,
		Milestones: milestone.New(thresholds),
		Clock:      clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Logger:     zerolog.Nop(),
	})
}

func TestLifecycle(t *testing.T) {
	rec := &event.Recorder{}
	tr := newTracker(rec, 25, 50)
	el := newElement("hero", "VIDEO")
	tr.Attach(el)

	el.fire("loadstart")
	el.fire("playing")
	for _, pos := range []float64{1, 2, 3} {
		el.time = pos
		el.fire("timeupdate")
	}
	el.time = 30
	el.fire("seeking")
	el.fire("seeked")
	for _, pos := range []float64{31, 32, 33, 34, 35, 36, 37, 38, 39, 40, 41, 42, 43, 44, 45, 46, 47, 48, 49, 50} {
		el.time = pos
		el.fire("timeupdate")
	}
	el.rate = 2
	el.fire("ratechange")
	el.time = 100
	el.ended = true
	el.fire("pause")
	el.fire("ended")

	want := []string{"video_start", "video_seek", "video_progress", "video_playback_rate_change", "video_complete"}
	if diff := cmp.Diff(want, rec.Names()); diff != "" {
		t.Fatalf("Event sequence mismatch (-want +got):\n%s", diff)
	}

	start := rec.Events()[0].Params
	if start["video_provider"] != "html5 video" || start["video_title"] != "intro.mp4" || start["video_id"] != "hero" {
		t.Errorf("Unexpected start params %v", start)
	}
	if p := rec.Named("video_progress")[0].Params["video_percent"]; p != 50 {
		t.Errorf("Expected progress 50 after seek past 25, got %v", p)
	}
}

func TestAudioElementTitleFromAria(t *testing.T) {
	rec := &event.Recorder{}
	tr := newTracker(rec, 50)
	el := newElement("podcast", "audio")
	el.attrs["aria-label"] = "Episode 4"
	tr.Attach(el)

	el.fire("playing")

	ev := rec.Events()[0]
	if ev.Name != "audio_start" || ev.Params["audio_title"] != "Episode 4" || ev.Params["audio_provider"] != "html5 audio" {
		t.Errorf("Unexpected event %s %v", ev.Name, ev.Params)
	}
}

func TestAttachIsIdempotent(t *testing.T) {
	rec := &event.Recorder{}
	tr := newTracker(rec, 50)
	el := newElement("hero", "video")

	if !tr.Attach(el) {
		t.Fatal("Expected first attach to succeed")
	}
	if tr.Attach(el) {
		t.Error("Expected second attach to be a no-op")
	}
	if got := el.listenerCount(); got != len(Events) {
		t.Errorf("Expected %d listeners, got %d", len(Events), got)
	}

	el.fire("playing")
	if got := len(rec.Events()); got != 1 {
		t.Errorf("Expected one start, got %d events", got)
	}
}

func TestDetachRemovesListeners(t *testing.T) {
	rec := &event.Recorder{}
	tr := newTracker(rec, 50)
	el := newElement("hero", "video")
	tr.Attach(el)

	if !tr.Detach("hero") {
		t.Fatal("Expected detach to find the element")
	}
	if got := el.listenerCount(); got != 0 {
		t.Errorf("Expected listeners removed, got %d", got)
	}
	el.fire("playing")
	if len(rec.Events()) != 0 {
		t.Error("Expected no events after detach")
	}
}

func TestSourceSwapCompletesPreviousItem(t *testing.T) {
	rec := &event.Recorder{}
	tr := newTracker(rec, 50)
	el := newElement("hero", "video")
	tr.Attach(el)

	el.fire("loadstart")
	el.fire("playing")
	el.src = "https://cdn.example.com/media/second.mp4"
	el.time = 0
	el.fire("loadstart")
	el.fire("playing")

	want := []string{"video_start", "video_complete", "video_start"}
	if diff := cmp.Diff(want, rec.Names()); diff != "" {
		t.Fatalf("Event sequence mismatch (-want +got):\n%s", diff)
	}
	if got := rec.Events()[1].Params["video_url"]; got != "https://cdn.example.com/media/intro.mp4" {
		t.Errorf("Expected complete for previous source, got %v", got)
	}
}

func TestErrorEvent(t *testing.T) {
	rec := &event.Recorder{}
	tr := newTracker(rec, 50)
	el := newElement("hero", "video")
	tr.Attach(el)

	el.fire("playing")
	el.errCode, el.errMsg = 4, "MEDIA_ERR_SRC_NOT_SUPPORTED"
	el.fire("error")

	errs := rec.Named("video_error")
	if len(errs) != 1 {
		t.Fatalf("Expected one error event, got %v", rec.Names())
	}
	if errs[0].Params["error_code"] != 4 || errs[0].Params["error_message"] != "MEDIA_ERR_SRC_NOT_SUPPORTED" {
		t.Errorf("Unexpected error params %v", errs[0].Params)
	}
	e, _ := tr.Entity("hero")
	if e.State().Started {
		t.Error("Expected entity reset after error")
	}
}

func TestLiveStreamSuppressesProgress(t *testing.T) {
	rec := &event.Recorder{}
	tr := newTracker(rec, 10, 50)
	el := newElement("live", "video")
	el.dur = math.Inf(1)
	tr.Attach(el)

	el.fire("playing")
	for pos := 0.0; pos < 200; pos += 40 {
		el.time = pos
		el.fire("timeupdate")
		el.fire("seeking")
	}

	if diff := cmp.Diff([]string{"video_start"}, rec.Names()); diff != "" {
		t.Errorf("Event sequence mismatch (-want +got):\n%s", diff)
	}
}
