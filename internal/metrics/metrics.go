package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Event metrics
	EventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_events_emitted_total",
			Help: "Total normalised events emitted to the sink",
		},
		[]string{"event"},
	)

	SinkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_sink_errors_total",
			Help: "Events the sink failed to deliver",
		},
		[]string{"sink"},
	)

	// Signal metrics
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_signals_total",
			Help: "Total browser signals dispatched to pages",
		},
		[]string{"kind"},
	)

	SignalErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_signal_errors_total",
			Help: "Signals rejected or recovered from a panic",
		},
		[]string{"kind"},
	)

	// Session metrics
	PagesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_pages_active",
			Help: "Number of open page sessions",
		},
	)

	PagesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_pages_closed_total",
			Help: "Page sessions closed",
		},
		[]string{"reason"},
	)

	MediaEntitiesActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beacon_media_entities_active",
			Help: "Number of tracked media players",
		},
		[]string{"provider"},
	)

	// Ingest metrics
	IngestRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_ingest_request_duration_seconds",
			Help:    "Ingest request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		EventsEmitted,
		SinkErrors,
		SignalsTotal,
		SignalErrors,
		PagesActive,
		PagesClosed,
		MediaEntitiesActive,
		IngestRequestDuration,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: Handler(),
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler serves /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
