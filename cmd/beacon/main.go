package main

import (
	"fmt"
	"os"

	"github.com/goodtune/beacon/internal/clock"
	"github.com/goodtune/beacon/internal/config"
	"github.com/goodtune/beacon/internal/redact"
	"github.com/goodtune/beacon/internal/session"
	"github.com/goodtune/beacon/internal/sink"
	"github.com/goodtune/beacon/internal/sink/redis"
	"github.com/rs/zerolog"
)

func main() {
	Execute()
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// openWriter opens the configured event sink.
func openWriter(cfg config.SinkConfig, logger zerolog.Logger) (sink.Writer, error) {
	sinkType := cfg.Type
	if sinkType == "" {
		sinkType = "log"
	}

	switch sinkType {
	case "log":
		return sink.NewLog(logger), nil
	case "redis":
		ttl, err := cfg.CountsTTLDuration()
		if err != nil {
			return nil, err
		}
		w, err := redis.Open(cfg.Redis, cfg.Stream, cfg.MaxLen)
		if err != nil {
			return nil, err
		}
		w.SetCountsTTL(ttl)
		return w, nil
	default:
		return nil, fmt.Errorf("unsupported sink type: %s (expected 'log' or 'redis')", sinkType)
	}
}

// newManager builds the page session manager from cfg.
func newManager(cfg *config.Config, w sink.Writer, clk clock.Clock, logger zerolog.Logger) (*session.Manager, error) {
	level, err := redact.ParseLevel(cfg.Redaction.Level)
	if err != nil {
		level = redact.LevelBasic
	}
	redactor := redact.New(redact.Config{
		Enabled:            cfg.Redaction.Enabled,
		Level:              level,
		AllowedQueryParams: cfg.Redaction.AllowedQueryParams,
	})

	return session.NewManager(session.Config{
		MeasurementID: cfg.MeasurementID,
		Writer:        w,
		Sanitizer:     redactor,
		ScrubQuery:    redactor.ScrubQuery,
		Clock:         clk,
		MaxPages:      cfg.Sessions.MaxPages,
		IdleTimeout:   config.ParseDuration(cfg.Sessions.IdleTimeout, session.DefaultIdleTimeout),
		Tracking:      session.TrackingFromConfig(cfg.Tracking),
		Logger:        logger,
	})
}
