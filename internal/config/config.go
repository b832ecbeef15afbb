package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrNoMeasurementID is returned when no measurement id is configured.
var ErrNoMeasurementID = errors.New("measurement_id is required")

// Config holds the complete application configuration
type Config struct {
	MeasurementID string          `mapstructure:"measurement_id"`
	Server        ServerConfig    `mapstructure:"server"`
	Logging       LoggingConfig   `mapstructure:"logging"`
	Ingest        IngestConfig    `mapstructure:"ingest"`
	Sessions      SessionsConfig  `mapstructure:"sessions"`
	Sink          SinkConfig      `mapstructure:"sink"`
	Redaction     RedactionConfig `mapstructure:"redaction"`
	Tracking      TrackingConfig  `mapstructure:"tracking"`

	// Warnings lists the settings that were invalid and replaced by
	// their defaults during Load.
	Warnings []string `mapstructure:"-"`
}

// ServerConfig defines listener ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	IngestPort  int    `mapstructure:"ingest_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// IngestConfig defines the signal ingest API
type IngestConfig struct {
	RateLimit      int      `mapstructure:"rate_limit"`
	RateWindow     string   `mapstructure:"rate_window"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
}

// SessionsConfig bounds the page session registry
type SessionsConfig struct {
	MaxPages    int    `mapstructure:"max_pages"`
	IdleTimeout string `mapstructure:"idle_timeout"`
}

// SinkConfig selects where emitted events are delivered
type SinkConfig struct {
	Type      string      `mapstructure:"type"` // "log" or "redis"
	Stream    string      `mapstructure:"stream"`
	MaxLen    int64       `mapstructure:"max_len"`
	QueueSize int         `mapstructure:"queue_size"`
	CountsTTL string      `mapstructure:"counts_ttl"` // "0" disables daily counters
	Redis     RedisConfig `mapstructure:"redis"`
}

// CountsTTLDuration parses CountsTTL. Zero disables daily counters.
func (s SinkConfig) CountsTTLDuration() (time.Duration, error) {
	if s.CountsTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.CountsTTL)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid sink.counts_ttl: %q", s.CountsTTL)
	}
	return d, nil
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// RedactionConfig defines PII redaction of outgoing parameters
type RedactionConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Level              string   `mapstructure:"level"`
	AllowedQueryParams []string `mapstructure:"allowed_query_params"`
}

// TrackingConfig groups the per-tracker settings
type TrackingConfig struct {
	Media      MediaTracking      `mapstructure:"media"`
	Scroll     ScrollTracking     `mapstructure:"scroll"`
	Navigation NavigationTracking `mapstructure:"navigation"`
	Search     SearchTracking     `mapstructure:"search"`
	Vitals     VitalsTracking     `mapstructure:"vitals"`
	Links      LinksTracking      `mapstructure:"links"`
	Forms      FormsTracking      `mapstructure:"forms"`
	Twitter    TwitterTracking    `mapstructure:"twitter"`
}

// MediaTracking configures the media lifecycle engine and its providers
type MediaTracking struct {
	Milestones    []int  `mapstructure:"milestones"`
	PollInterval  string `mapstructure:"poll_interval"`
	SeekThreshold string `mapstructure:"seek_threshold"`
	HTML5         bool   `mapstructure:"html5"`
	YouTube       bool   `mapstructure:"youtube"`
	Vimeo         bool   `mapstructure:"vimeo"`
	JWPlayer      bool   `mapstructure:"jwplayer"`
}

// ScrollTracking configures scroll depth milestones
type ScrollTracking struct {
	Enabled    bool   `mapstructure:"enabled"`
	Thresholds []int  `mapstructure:"thresholds"`
	Debounce   string `mapstructure:"debounce"`
}

// NavigationTracking configures virtual page views
type NavigationTracking struct {
	Enabled         bool   `mapstructure:"enabled"`
	SettleDelay     string `mapstructure:"settle_delay"`
	IgnoreHash      bool   `mapstructure:"ignore_hash"`
	IgnoreQuery     bool   `mapstructure:"ignore_query"`
	InitialPageView bool   `mapstructure:"initial_page_view"`
}

// SearchTracking configures search result detection
type SearchTracking struct {
	Enabled bool     `mapstructure:"enabled"`
	Params  []string `mapstructure:"params"`
}

// VitalsTracking configures the performance metrics collector
type VitalsTracking struct {
	Enabled          bool     `mapstructure:"enabled"`
	Metrics          []string `mapstructure:"metrics"`
	ReportAllChanges []string `mapstructure:"report_all_changes"`
}

// LinksTracking configures link click classification
type LinksTracking struct {
	Enabled            bool     `mapstructure:"enabled"`
	DownloadExtensions []string `mapstructure:"download_extensions"`
}

// FormsTracking configures form start and submit events
type FormsTracking struct {
	Enabled bool `mapstructure:"enabled"`
}

// TwitterTracking configures Twitter embed events
type TwitterTracking struct {
	Enabled bool `mapstructure:"enabled"`
}

var (
	defaultMilestones       = []int{10, 25, 50, 75, 90, 95}
	defaultScrollThresholds = []int{25, 50, 75, 90}
	defaultVitals           = []string{"CLS", "FCP", "LCP", "INP", "TTFB"}
	knownVitals             = []string{"CLS", "FCP", "LCP", "INP", "TTFB", "FID"}

	defaultDownloadExtensions = []string{
		"pdf", "zip", "doc", "docx", "xls", "xlsx", "xlsm", "ppt", "pptx", "exe",
		"js", "txt", "csv", "dxf", "dwgd", "rfa", "rvt", "dwfx", "dwg", "wmv",
		"jpg", "msi", "7z", "gz", "tgz", "tar", "wma", "mov", "avi", "mp3", "mp4",
		"mobi", "epub", "swf", "rar",
	}
)

// Load loads configuration from file and environment variables. A missing
// file is not an error: defaults and BEACON_* variables apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetEnvPrefix("BEACON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	normalize(&config)

	return &config, nil
}

// Defaults returns the configuration produced by the defaults alone.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Keys returns every recognised configuration key.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	return v.AllKeys()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("measurement_id", "")

	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.ingest_port", 8080)
	v.SetDefault("server.metrics_port", 9090)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Ingest defaults
	v.SetDefault("ingest.rate_limit", 600)
	v.SetDefault("ingest.rate_window", "1m")
	v.SetDefault("ingest.allowed_origins", []string{"*"})
	v.SetDefault("ingest.max_body_bytes", 1<<20)

	// Session defaults
	v.SetDefault("sessions.max_pages", 10000)
	v.SetDefault("sessions.idle_timeout", "30m")

	// Sink defaults
	v.SetDefault("sink.type", "log")
	v.SetDefault("sink.stream", "beacon:events")
	v.SetDefault("sink.max_len", 100000)
	v.SetDefault("sink.queue_size", 1024)
	v.SetDefault("sink.counts_ttl", "168h")
	v.SetDefault("sink.redis.host", "localhost")
	v.SetDefault("sink.redis.port", 6379)
	v.SetDefault("sink.redis.password", "")
	v.SetDefault("sink.redis.db", 0)
	v.SetDefault("sink.redis.pool_size", 10)
	v.SetDefault("sink.redis.min_idle_conns", 5)
	v.SetDefault("sink.redis.dial_timeout", "5s")
	v.SetDefault("sink.redis.read_timeout", "3s")
	v.SetDefault("sink.redis.write_timeout", "3s")

	// Redaction defaults
	v.SetDefault("redaction.enabled", false)
	v.SetDefault("redaction.level", "basic")
	v.SetDefault("redaction.allowed_query_params", []string{"utm_*", "gclid", "dclid", "_gl", "gclsrc", "wbraid", "gbraid"})

	// Tracking defaults
	v.SetDefault("tracking.media.milestones", defaultMilestones)
	v.SetDefault("tracking.media.poll_interval", "1s")
	v.SetDefault("tracking.media.seek_threshold", "2s")
	v.SetDefault("tracking.media.html5", true)
	v.SetDefault("tracking.media.youtube", true)
	v.SetDefault("tracking.media.vimeo", false)
	v.SetDefault("tracking.media.jwplayer", false)

	v.SetDefault("tracking.scroll.enabled", true)
	v.SetDefault("tracking.scroll.thresholds", defaultScrollThresholds)
	v.SetDefault("tracking.scroll.debounce", "250ms")

	v.SetDefault("tracking.navigation.enabled", true)
	v.SetDefault("tracking.navigation.settle_delay", "150ms")
	v.SetDefault("tracking.navigation.ignore_hash", false)
	v.SetDefault("tracking.navigation.ignore_query", false)
	v.SetDefault("tracking.navigation.initial_page_view", true)

	v.SetDefault("tracking.search.enabled", true)
	v.SetDefault("tracking.search.params", []string{
		"q", "query", "s", "search", "keyword", "search_term", "search_query", "searchtext", "search_keywords",
	})

	v.SetDefault("tracking.vitals.enabled", true)
	v.SetDefault("tracking.vitals.metrics", defaultVitals)
	v.SetDefault("tracking.vitals.report_all_changes", []string{"CLS"})

	v.SetDefault("tracking.links.enabled", true)
	v.SetDefault("tracking.links.download_extensions", defaultDownloadExtensions)
	v.SetDefault("tracking.forms.enabled", false)
	v.SetDefault("tracking.twitter.enabled", false)
}

// validate rejects configurations that cannot start
func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.MeasurementID) == "" {
		return ErrNoMeasurementID
	}
	if cfg.Server.IngestPort <= 0 || cfg.Server.IngestPort > 65535 {
		return fmt.Errorf("invalid ingest port: %d", cfg.Server.IngestPort)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	switch cfg.Sink.Type {
	case "log", "redis":
	case "":
		cfg.Sink.Type = "log"
	default:
		return fmt.Errorf("unknown sink type: %q", cfg.Sink.Type)
	}
	if cfg.Sink.Type == "redis" && cfg.Sink.Stream == "" {
		return fmt.Errorf("sink stream is required for the redis sink")
	}
	if _, err := cfg.Sink.CountsTTLDuration(); err != nil {
		return err
	}

	if cfg.Sessions.MaxPages <= 0 {
		return fmt.Errorf("sessions.max_pages must be positive")
	}
	return nil
}

// normalize replaces invalid tracking settings with their defaults and
// records a warning for each replacement.
func normalize(cfg *Config) {
	warn := func(format string, args ...any) {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf(format, args...))
	}

	t := &cfg.Tracking
	t.Media.Milestones = percentages(t.Media.Milestones, defaultMilestones, "tracking.media.milestones", warn)
	t.Scroll.Thresholds = percentages(t.Scroll.Thresholds, defaultScrollThresholds, "tracking.scroll.thresholds", warn)

	durations := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"tracking.media.poll_interval", &t.Media.PollInterval, "1s"},
		{"tracking.media.seek_threshold", &t.Media.SeekThreshold, "2s"},
		{"tracking.scroll.debounce", &t.Scroll.Debounce, "250ms"},
		{"tracking.navigation.settle_delay", &t.Navigation.SettleDelay, "150ms"},
		{"sessions.idle_timeout", &cfg.Sessions.IdleTimeout, "30m"},
		{"ingest.rate_window", &cfg.Ingest.RateWindow, "1m"},
	}
	for _, d := range durations {
		if parsed, err := time.ParseDuration(*d.value); err != nil || parsed <= 0 {
			warn("%s: invalid duration %q, using %s", d.key, *d.value, d.fallback)
			*d.value = d.fallback
		}
	}

	t.Vitals.Metrics = vitalNames(t.Vitals.Metrics, defaultVitals, "tracking.vitals.metrics", warn)
	t.Vitals.ReportAllChanges = vitalNames(t.Vitals.ReportAllChanges, nil, "tracking.vitals.report_all_changes", warn)

	switch strings.ToLower(cfg.Redaction.Level) {
	case "none", "basic", "strict":
		cfg.Redaction.Level = strings.ToLower(cfg.Redaction.Level)
	default:
		warn("redaction.level: unknown level %q, using basic", cfg.Redaction.Level)
		cfg.Redaction.Level = "basic"
	}

	if len(t.Search.Params) == 0 && t.Search.Enabled {
		warn("tracking.search.params: empty, search results tracking disabled")
		t.Search.Enabled = false
	}

	t.Links.DownloadExtensions = extensions(t.Links.DownloadExtensions, "tracking.links.download_extensions", warn)
}

func extensions(in []string, key string, warn func(string, ...any)) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "."))
		if ext == "" || strings.ContainsAny(ext, "./") {
			warn("%s: dropping invalid extension %q", key, raw)
			continue
		}
		out = append(out, ext)
	}
	if len(out) == 0 {
		warn("%s: no valid extensions, using defaults", key)
		return append([]string(nil), defaultDownloadExtensions...)
	}
	return out
}

func percentages(in, fallback []int, key string, warn func(string, ...any)) []int {
	out := make([]int, 0, len(in))
	for _, p := range in {
		if p < 1 || p > 100 {
			warn("%s: dropping out of range value %d", key, p)
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		warn("%s: no valid values, using defaults", key)
		return append([]int(nil), fallback...)
	}
	return out
}

func vitalNames(in, fallback []string, key string, warn func(string, ...any)) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		name := strings.ToUpper(strings.TrimSpace(raw))
		known := false
		for _, k := range knownVitals {
			if k == name {
				known = true
				break
			}
		}
		if !known {
			warn("%s: dropping unknown metric %q", key, raw)
			continue
		}
		out = append(out, name)
	}
	if len(out) == 0 && len(in) > 0 && fallback != nil {
		warn("%s: no valid metrics, using defaults", key)
		return append([]string(nil), fallback...)
	}
	return out
}

// ParseDuration parses s, returning fallback when s is empty or invalid.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
