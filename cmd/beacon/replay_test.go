package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/beacon/internal/clock"
	"github.com/goodtune/beacon/internal/config"
	"github.com/goodtune/beacon/internal/event"
	"github.com/goodtune/beacon/internal/session"
	"github.com/goodtune/beacon/internal/sink"
	"github.com/rs/zerolog"
)

type recordWriter struct {
	mu      sync.Mutex
	records []sink.Record
}

func (w *recordWriter) Write(_ context.Context, rec sink.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, rec)
	return nil
}

func (w *recordWriter) Close() error { return nil }

var replayStart = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

func setupReplayer(t *testing.T) (*replayer, *recordWriter) {
	t.Helper()

	cfg := config.Defaults()
	cfg.MeasurementID = "G-REPLAY"

	fc := clock.NewFake(replayStart)
	w := &recordWriter{}
	m, err := newManager(cfg, w, fc, zerolog.Nop())
	if err != nil {
		t.Fatalf("newManager failed: %v", err)
	}
	t.Cleanup(m.Shutdown)

	return &replayer{manager: m, clock: fc, start: replayStart, logger: zerolog.Nop()}, w
}

const recording = `
# landing page, one scroll, then leave
{"at":"0s","page":"p1","open":{"href":"https://example.com/","title":"Home"}}
{"at":"1s","page":"p1","signal":{"kind":"scroll","data":{"scroll_top":600,"document_height":2000,"viewport_height":1000,"scrollend":true}}}
{"at":"3s","page":"p1","close":true}
`

func TestReplayRecording(t *testing.T) {
	r, w := setupReplayer(t)

	if err := r.run(strings.NewReader(recording)); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var names []string
	for _, rec := range w.records {
		names = append(names, rec.Name)
	}
	// closing the page flushes CLS
	want := []string{"page_view", "scroll_depth", "scroll_depth", "web_vitals"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("Expected events %v, got %v", want, names)
	}

	if got := w.records[0].Params["page_location"]; got != "https://example.com/" {
		t.Errorf("Expected page_location https://example.com/, got %v", got)
	}
	if got := w.records[1].Time.Sub(replayStart); got != time.Second {
		t.Errorf("Expected scroll_depth at +1s, got +%v", got)
	}
	if got := w.records[2].Params["percent_scrolled"]; got != 50 {
		t.Errorf("Expected second milestone 50, got %v", got)
	}
	if got := w.records[3].Params["metric_name"]; got != "CLS" {
		t.Errorf("Expected CLS on close, got %v", got)
	}
	if r.manager.Len() != 0 {
		t.Errorf("Expected page closed, %d still open", r.manager.Len())
	}
}

func TestReplayErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"malformed", "{\"page\":\"p1\"}\nnot json\n", "line 2"},
		{"bad offset", `{"at":"soon","page":"p1"}`, "invalid offset"},
		{"unknown page", `{"page":"nope","signal":{"kind":"scroll","data":{}}}`, "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := setupReplayer(t)
			err := r.run(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	r, _ := setupReplayer(t)
	err := r.run(strings.NewReader(`{"page":"nope","close":true}`))
	if !errors.Is(err, session.ErrPageNotFound) {
		t.Errorf("Expected ErrPageNotFound, got %v", err)
	}
}

func TestPrintWriter(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	w := newPrintWriter(&buf, replayStart, false)
	err := w.Write(context.Background(), sink.Record{
		Name:   "video_progress",
		Params: event.Params{"video_percent": 25, "video_provider": "html5"},
		Time:   replayStart.Add(1500 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got := buf.String()
	for _, want := range []string{"+1.5s", "video_progress", "video_percent=25 video_provider=html5"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected output to contain %q, got %q", want, got)
		}
	}

	buf.Reset()
	w = newPrintWriter(&buf, replayStart, true)
	if err := w.Write(context.Background(), sink.Record{Name: "page_view", Time: replayStart}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"event":"page_view"`) {
		t.Errorf("Expected JSON record, got %q", buf.String())
	}
}
