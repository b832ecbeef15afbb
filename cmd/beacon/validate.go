package main

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/beacon/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the beacon configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys (always, not just with --dump)
	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(out, "✅ Configuration is valid: %s\n", configPath)

	if len(cfg.Warnings) > 0 {
		yellow := color.New(color.FgYellow)
		fmt.Fprintln(out)
		for _, w := range cfg.Warnings {
			_, _ = yellow.Fprintf(out, "⚠️  %s\n", w)
		}
	}

	// Warn about unknown keys
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(out)
		_, _ = red.Fprintf(out, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(out, "   - %s\n", key)
		}
		fmt.Fprintln(out, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	// If dump requested, show full configuration with defaults highlighted
	if validateDump {
		_, _ = fmt.Fprintln(out, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(out, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(out, strings.Repeat("=", 80))

		dumpConfig(out, cfg, config.Defaults(), unknownKeys)
	}

	return nil
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	validKeys := getValidKeys()

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !validKeys[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)

	return unknown, nil
}

// getValidKeys returns a set of all valid configuration keys
func getValidKeys() map[string]bool {
	keys := make(map[string]bool)
	for _, k := range config.Keys() {
		keys[k] = true
	}
	return keys
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(out io.Writer, cfg, defaultCfg *config.Config, unknownKeys []string) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	field := func(name string, value, defaultValue interface{}) {
		dumpField(out, name, value, defaultValue, yellow, green)
	}

	field("measurement_id", cfg.MeasurementID, defaultCfg.MeasurementID)

	// Server
	_, _ = cyan.Fprintln(out, "\n[server]")
	field("  bind_address", cfg.Server.BindAddress, defaultCfg.Server.BindAddress)
	field("  ingest_port", cfg.Server.IngestPort, defaultCfg.Server.IngestPort)
	field("  metrics_port", cfg.Server.MetricsPort, defaultCfg.Server.MetricsPort)

	// Logging
	_, _ = cyan.Fprintln(out, "\n[logging]")
	field("  level", cfg.Logging.Level, defaultCfg.Logging.Level)
	field("  format", cfg.Logging.Format, defaultCfg.Logging.Format)

	// Ingest
	_, _ = cyan.Fprintln(out, "\n[ingest]")
	field("  rate_limit", cfg.Ingest.RateLimit, defaultCfg.Ingest.RateLimit)
	field("  rate_window", cfg.Ingest.RateWindow, defaultCfg.Ingest.RateWindow)
	field("  allowed_origins", cfg.Ingest.AllowedOrigins, defaultCfg.Ingest.AllowedOrigins)
	field("  max_body_bytes", cfg.Ingest.MaxBodyBytes, defaultCfg.Ingest.MaxBodyBytes)

	// Sessions
	_, _ = cyan.Fprintln(out, "\n[sessions]")
	field("  max_pages", cfg.Sessions.MaxPages, defaultCfg.Sessions.MaxPages)
	field("  idle_timeout", cfg.Sessions.IdleTimeout, defaultCfg.Sessions.IdleTimeout)

	// Sink
	_, _ = cyan.Fprintln(out, "\n[sink]")
	field("  type", cfg.Sink.Type, defaultCfg.Sink.Type)
	field("  stream", cfg.Sink.Stream, defaultCfg.Sink.Stream)
	field("  max_len", cfg.Sink.MaxLen, defaultCfg.Sink.MaxLen)
	field("  queue_size", cfg.Sink.QueueSize, defaultCfg.Sink.QueueSize)
	field("  counts_ttl", cfg.Sink.CountsTTL, defaultCfg.Sink.CountsTTL)
	_, _ = cyan.Fprintln(out, "  [sink.redis]")
	field("    host", cfg.Sink.Redis.Host, defaultCfg.Sink.Redis.Host)
	field("    port", cfg.Sink.Redis.Port, defaultCfg.Sink.Redis.Port)
	field("    password", redactPassword(cfg.Sink.Redis.Password), redactPassword(defaultCfg.Sink.Redis.Password))
	field("    db", cfg.Sink.Redis.DB, defaultCfg.Sink.Redis.DB)
	field("    pool_size", cfg.Sink.Redis.PoolSize, defaultCfg.Sink.Redis.PoolSize)
	field("    min_idle_conns", cfg.Sink.Redis.MinIdleConns, defaultCfg.Sink.Redis.MinIdleConns)
	field("    dial_timeout", cfg.Sink.Redis.DialTimeout, defaultCfg.Sink.Redis.DialTimeout)
	field("    read_timeout", cfg.Sink.Redis.ReadTimeout, defaultCfg.Sink.Redis.ReadTimeout)
	field("    write_timeout", cfg.Sink.Redis.WriteTimeout, defaultCfg.Sink.Redis.WriteTimeout)

	// Redaction
	_, _ = cyan.Fprintln(out, "\n[redaction]")
	field("  enabled", cfg.Redaction.Enabled, defaultCfg.Redaction.Enabled)
	field("  level", cfg.Redaction.Level, defaultCfg.Redaction.Level)
	field("  allowed_query_params", cfg.Redaction.AllowedQueryParams, defaultCfg.Redaction.AllowedQueryParams)

	// Tracking
	t, d := cfg.Tracking, defaultCfg.Tracking
	_, _ = cyan.Fprintln(out, "\n[tracking.media]")
	field("  milestones", t.Media.Milestones, d.Media.Milestones)
	field("  poll_interval", t.Media.PollInterval, d.Media.PollInterval)
	field("  seek_threshold", t.Media.SeekThreshold, d.Media.SeekThreshold)
	field("  html5", t.Media.HTML5, d.Media.HTML5)
	field("  youtube", t.Media.YouTube, d.Media.YouTube)
	field("  vimeo", t.Media.Vimeo, d.Media.Vimeo)
	field("  jwplayer", t.Media.JWPlayer, d.Media.JWPlayer)

	_, _ = cyan.Fprintln(out, "\n[tracking.scroll]")
	field("  enabled", t.Scroll.Enabled, d.Scroll.Enabled)
	field("  thresholds", t.Scroll.Thresholds, d.Scroll.Thresholds)
	field("  debounce", t.Scroll.Debounce, d.Scroll.Debounce)

	_, _ = cyan.Fprintln(out, "\n[tracking.navigation]")
	field("  enabled", t.Navigation.Enabled, d.Navigation.Enabled)
	field("  settle_delay", t.Navigation.SettleDelay, d.Navigation.SettleDelay)
	field("  ignore_hash", t.Navigation.IgnoreHash, d.Navigation.IgnoreHash)
	field("  ignore_query", t.Navigation.IgnoreQuery, d.Navigation.IgnoreQuery)
	field("  initial_page_view", t.Navigation.InitialPageView, d.Navigation.InitialPageView)

	_, _ = cyan.Fprintln(out, "\n[tracking.search]")
	field("  enabled", t.Search.Enabled, d.Search.Enabled)
	field("  params", t.Search.Params, d.Search.Params)

	_, _ = cyan.Fprintln(out, "\n[tracking.vitals]")
	field("  enabled", t.Vitals.Enabled, d.Vitals.Enabled)
	field("  metrics", t.Vitals.Metrics, d.Vitals.Metrics)
	field("  report_all_changes", t.Vitals.ReportAllChanges, d.Vitals.ReportAllChanges)

	_, _ = cyan.Fprintln(out, "\n[tracking.links]")
	field("  enabled", t.Links.Enabled, d.Links.Enabled)
	field("  download_extensions", t.Links.DownloadExtensions, d.Links.DownloadExtensions)

	_, _ = cyan.Fprintln(out, "\n[tracking.forms]")
	field("  enabled", t.Forms.Enabled, d.Forms.Enabled)

	_, _ = cyan.Fprintln(out, "\n[tracking.twitter]")
	field("  enabled", t.Twitter.Enabled, d.Twitter.Enabled)

	// Display unknown keys if any
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)

		_, _ = cyan.Fprintln(out, "\n[UNKNOWN KEYS - These will be ignored!]")
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(out, "  %s = (unknown key - check for typos)\n", key)
		}
	}

	_, _ = fmt.Fprintln(out, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(out io.Writer, name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := fmt.Sprintf("%v", value)

	if isDefault {
		_, _ = defaultColor.Fprintf(out, "%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Fprintf(out, "%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactPassword redacts password if not empty
func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}
