package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/beacon/internal/config"
	"github.com/goodtune/beacon/internal/event"
	"github.com/goodtune/beacon/internal/sink"
	"github.com/rs/zerolog"
)

func setupTestWriter(t *testing.T, maxLen int64) (*Writer, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so Port stays 0
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	w, err := Open(cfg, "beacon:events", maxLen)
	if err != nil {
		t.Fatalf("Failed to open Redis writer: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	return w, mr
}

func TestWriterAppendsAndCounts(t *testing.T) {
	w, mr := setupTestWriter(t, 100)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	records := []sink.Record{
		{Page: "p1", MeasurementID: "G-TEST", Name: "page_view", Params: event.Params{"page_path": "/"}, Time: at},
		{Page: "p1", MeasurementID: "G-TEST", Name: "video_start", Params: event.Params{"video_percent": 0}, Time: at},
		{Page: "p1", MeasurementID: "G-TEST", Name: "page_view", Params: event.Params{"page_path": "/next"}, Time: at},
	}
	for _, rec := range records {
		if err := w.Write(ctx, rec); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	counts, err := w.Counts(ctx, at)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts["page_view"] != 2 || counts["video_start"] != 1 {
		t.Errorf("Unexpected counts: %v", counts)
	}

	if ttl := mr.TTL("beacon:events:counts:2024-01-01"); ttl != DefaultCountsTTL {
		t.Errorf("Expected counts TTL %v, got %v", DefaultCountsTTL, ttl)
	}

	recent, err := w.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 recent records, got %d", len(recent))
	}
	if recent[0].Params["page_path"] != "/next" {
		t.Errorf("Expected newest record first, got %+v", recent[0])
	}
	if recent[1].Name != "video_start" || recent[1].Params["video_percent"] != float64(0) {
		t.Errorf("Unexpected second record: %+v", recent[1])
	}
	if !recent[0].Time.Equal(at) || recent[0].MeasurementID != "G-TEST" {
		t.Errorf("Expected round-tripped metadata, got %+v", recent[0])
	}
}

func TestWriterCountsTTL(t *testing.T) {
	w, mr := setupTestWriter(t, 100)
	ctx := context.Background()
	at := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)

	w.SetCountsTTL(48 * time.Hour)
	if err := w.Write(ctx, sink.Record{Page: "p1", Name: "page_view", Time: at}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if ttl := mr.TTL("beacon:events:counts:2024-01-02"); ttl != 48*time.Hour {
		t.Errorf("Expected counts TTL 48h, got %v", ttl)
	}

	mr.FastForward(49 * time.Hour)
	if mr.Exists("beacon:events:counts:2024-01-02") {
		t.Error("Expected counters to expire")
	}
}

func TestWriterCountsDisabled(t *testing.T) {
	w, mr := setupTestWriter(t, 100)
	ctx := context.Background()
	at := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

	w.SetCountsTTL(0)
	if w.CountsEnabled() {
		t.Fatal("Expected counters disabled")
	}
	if err := w.Write(ctx, sink.Record{Page: "p1", Name: "page_view", Time: at}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if mr.Exists("beacon:events:counts:2024-01-03") {
		t.Error("Expected no counters key when disabled")
	}
	entries, err := mr.Stream("beacon:events")
	if err != nil {
		t.Fatalf("Failed to read stream: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected event still appended, got %d entries", len(entries))
	}
}

func TestWriterTrimsStream(t *testing.T) {
	w, mr := setupTestWriter(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := sink.Record{Page: "p1", Name: fmt.Sprintf("event_%d", i), Time: time.Now()}
		if err := w.Write(ctx, rec); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	entries, err := mr.Stream("beacon:events")
	if err != nil {
		t.Fatalf("Failed to read stream: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("Expected stream trimmed to 3 entries, got %d", len(entries))
	}
}

func TestOpenFailsWithoutServer(t *testing.T) {
	_, err := Open(config.RedisConfig{
		Host:         "127.0.0.1:1",
		DialTimeout:  "200ms",
		ReadTimeout:  "200ms",
		WriteTimeout: "200ms",
	}, "beacon:events", 10)
	if err == nil {
		t.Fatal("Expected connection error")
	}
}

func TestOpenRejectsBadTimeout(t *testing.T) {
	_, err := Open(config.RedisConfig{Host: "localhost", DialTimeout: "soon"}, "beacon:events", 10)
	if err == nil {
		t.Fatal("Expected error for invalid dial_timeout")
	}
}

func TestAsyncWriterDeliversToStream(t *testing.T) {
	w, mr := setupTestWriter(t, 100)
	a := sink.NewAsync(w, "redis", 8, zerolog.Nop())
	s := sink.ForPage(a, "p2", "G-TEST", nil, zerolog.Nop())

	s.Emit("scroll_depth", event.Params{"percent_scrolled": 25})
	s.Emit("scroll_depth", event.Params{"percent_scrolled": 50})
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := mr.Stream("beacon:events")
	if err != nil {
		t.Fatalf("Failed to read stream: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 stream entries after drain, got %d", len(entries))
	}
}
