package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beacon.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "measurement_id: G-TEST\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.IngestPort != 8080 || cfg.Server.MetricsPort != 9090 {
		t.Errorf("Expected default ports 8080/9090, got %d/%d", cfg.Server.IngestPort, cfg.Server.MetricsPort)
	}
	if cfg.Sink.Type != "log" {
		t.Errorf("Expected log sink, got %s", cfg.Sink.Type)
	}
	if diff := cmp.Diff([]int{10, 25, 50, 75, 90, 95}, cfg.Tracking.Media.Milestones); diff != "" {
		t.Errorf("Milestones mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"CLS", "FCP", "LCP", "INP", "TTFB"}, cfg.Tracking.Vitals.Metrics); diff != "" {
		t.Errorf("Vitals mismatch (-want +got):\n%s", diff)
	}
	if !cfg.Tracking.Navigation.InitialPageView {
		t.Error("Expected initial page view enabled by default")
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", cfg.Warnings)
	}
}

func TestLoadRequiresMeasurementID(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n")

	_, err := Load(path)
	if !errors.Is(err, ErrNoMeasurementID) {
		t.Fatalf("Expected ErrNoMeasurementID, got %v", err)
	}
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("BEACON_MEASUREMENT_ID", "G-ENV")
	t.Setenv("BEACON_SINK_TYPE", "redis")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MeasurementID != "G-ENV" {
		t.Errorf("Expected G-ENV, got %s", cfg.MeasurementID)
	}
	if cfg.Sink.Type != "redis" {
		t.Errorf("Expected redis sink from environment, got %s", cfg.Sink.Type)
	}
}

func TestLoadRejectsUnknownSink(t *testing.T) {
	path := writeConfig(t, "measurement_id: G-TEST\nsink:\n  type: kafka\n")

	if _, err := Load(path); err == nil {
		t.Fatal("Expected error for unknown sink type")
	}
}

func TestSinkCountsTTL(t *testing.T) {
	tests := []struct {
		body    string
		want    time.Duration
		wantErr bool
	}{
		{"measurement_id: G-TEST\n", 7 * 24 * time.Hour, false},
		{"measurement_id: G-TEST\nsink:\n  counts_ttl: 48h\n", 48 * time.Hour, false},
		{"measurement_id: G-TEST\nsink:\n  counts_ttl: \"0\"\n", 0, false},
		{"measurement_id: G-TEST\nsink:\n  counts_ttl: forever\n", 0, true},
		{"measurement_id: G-TEST\nsink:\n  counts_ttl: -1h\n", 0, true},
	}

	for _, tt := range tests {
		cfg, err := Load(writeConfig(t, tt.body))
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.body)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: Load failed: %v", tt.body, err)
		}
		got, err := cfg.Sink.CountsTTLDuration()
		if err != nil || got != tt.want {
			t.Errorf("%q: expected %v, got %v (%v)", tt.body, tt.want, got, err)
		}
	}
}

func TestInteractionTrackingDefaults(t *testing.T) {
	cfg := Defaults()
	if !cfg.Tracking.Links.Enabled || cfg.Tracking.Forms.Enabled || cfg.Tracking.Twitter.Enabled {
		t.Errorf("Expected links on, forms and twitter off, got %+v %+v %+v", cfg.Tracking.Links, cfg.Tracking.Forms, cfg.Tracking.Twitter)
	}
	if diff := cmp.Diff(defaultDownloadExtensions, cfg.Tracking.Links.DownloadExtensions); diff != "" {
		t.Errorf("Download extensions mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadNormalizesDownloadExtensions(t *testing.T) {
	path := writeConfig(t, `measurement_id: G-TEST
tracking:
  links:
    download_extensions: [".PDF", "tar.gz", " dmg ", ""]
  forms:
    enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff([]string{"pdf", "dmg"}, cfg.Tracking.Links.DownloadExtensions); diff != "" {
		t.Errorf("Download extensions mismatch (-want +got):\n%s", diff)
	}
	if !cfg.Tracking.Forms.Enabled {
		t.Error("Expected form tracking enabled")
	}
	if len(cfg.Warnings) != 2 {
		t.Errorf("Expected 2 warnings, got %v", cfg.Warnings)
	}
}

func TestLoadNormalizesTracking(t *testing.T) {
	path := writeConfig(t, `measurement_id: G-TEST
redaction:
  level: paranoid
tracking:
  media:
    milestones: [0, 25, 150, 50]
    poll_interval: soon
  scroll:
    thresholds: [200]
  vitals:
    metrics: [cls, lcp, XYZ]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if diff := cmp.Diff([]int{25, 50}, cfg.Tracking.Media.Milestones); diff != "" {
		t.Errorf("Milestones mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{25, 50, 75, 90}, cfg.Tracking.Scroll.Thresholds); diff != "" {
		t.Errorf("Scroll thresholds mismatch (-want +got):\n%s", diff)
	}
	if cfg.Tracking.Media.PollInterval != "1s" {
		t.Errorf("Expected poll interval fallback 1s, got %s", cfg.Tracking.Media.PollInterval)
	}
	if diff := cmp.Diff([]string{"CLS", "LCP"}, cfg.Tracking.Vitals.Metrics); diff != "" {
		t.Errorf("Vitals mismatch (-want +got):\n%s", diff)
	}
	if cfg.Redaction.Level != "basic" {
		t.Errorf("Expected basic redaction level, got %s", cfg.Redaction.Level)
	}

	joined := strings.Join(cfg.Warnings, "\n")
	for _, want := range []string{"tracking.media.milestones", "tracking.media.poll_interval", "tracking.scroll.thresholds", "XYZ", "redaction.level"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected a warning mentioning %q, got:\n%s", want, joined)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Second},
		{"250ms", 250 * time.Millisecond},
		{"garbage", time.Second},
		{"-5s", time.Second},
	}

	for _, tt := range tests {
		if got := ParseDuration(tt.in, time.Second); got != tt.want {
			t.Errorf("ParseDuration(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Sink.Redis.DialTimeout != "5s" {
		t.Errorf("Expected dial timeout 5s, got %s", cfg.Sink.Redis.DialTimeout)
	}
	if cfg.Sessions.MaxPages != 10000 {
		t.Errorf("Expected 10000 max pages, got %d", cfg.Sessions.MaxPages)
	}
}

func TestKeys(t *testing.T) {
	keys := make(map[string]bool)
	for _, k := range Keys() {
		keys[k] = true
	}

	for _, want := range []string{"measurement_id", "sink.redis.host", "tracking.vitals.report_all_changes", "ingest.max_body_bytes"} {
		if !keys[want] {
			t.Errorf("Expected %s to be a known key", want)
		}
	}
	if keys["sink.redis"] {
		t.Error("Expected only leaf keys")
	}
}
