package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/beacon/internal/clock"
	"github.com/goodtune/beacon/internal/config"
	"github.com/goodtune/beacon/internal/event"
	"github.com/goodtune/beacon/internal/media"
	"github.com/goodtune/beacon/internal/metrics"
	"github.com/goodtune/beacon/internal/navigation"
	"github.com/goodtune/beacon/internal/scroll"
	"github.com/goodtune/beacon/internal/sink"
	"github.com/goodtune/beacon/internal/vitals"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxPages bounds the number of open pages
	DefaultMaxPages = 10000

	// DefaultIdleTimeout is how long a page may stay silent before it is closed
	DefaultIdleTimeout = 30 * time.Minute

	maxSweepInterval = time.Minute
)

var (
	// ErrPageNotFound is returned for unknown or closed page ids.
	ErrPageNotFound = errors.New("page not found")

	// ErrAlreadyOpen is returned when a page id is opened twice.
	ErrAlreadyOpen = errors.New("page already open")

	// ErrNoSink is returned when the manager has nowhere to deliver events.
	ErrNoSink = errors.New("no event sink configured")
)

// Tracking is the resolved per-page tracker configuration.
type Tracking struct {
	Milestones    []int
	PollInterval  time.Duration
	SeekThreshold time.Duration
	HTML5         bool
	YouTube       bool
	Vimeo         bool
	JWPlayer      bool

	Scroll           bool
	ScrollThresholds []int
	ScrollDebounce   time.Duration

	Navigation      bool
	SettleDelay     time.Duration
	IgnoreHash      bool
	IgnoreQuery     bool
	InitialPageView bool

	Search       bool
	SearchParams []string

	Vitals           bool
	VitalsMetrics    []vitals.Name
	ReportAllChanges []vitals.Name

	Links              bool
	DownloadExtensions []string
	Forms              bool
	Twitter            bool
}

// DefaultTracking enables every tracker with its default settings.
func DefaultTracking() Tracking {
	return TrackingFromConfig(config.Defaults().Tracking)
}

// TrackingFromConfig resolves the configured tracking section.
func TrackingFromConfig(t config.TrackingConfig) Tracking {
	return Tracking{
		Milestones:    t.Media.Milestones,
		PollInterval:  config.ParseDuration(t.Media.PollInterval, media.DefaultPollInterval),
		SeekThreshold: config.ParseDuration(t.Media.SeekThreshold, media.DefaultSeekThreshold),
		HTML5:         t.Media.HTML5,
		YouTube:       t.Media.YouTube,
		Vimeo:         t.Media.Vimeo,
		JWPlayer:      t.Media.JWPlayer,

		Scroll:           t.Scroll.Enabled,
		ScrollThresholds: t.Scroll.Thresholds,
		ScrollDebounce:   config.ParseDuration(t.Scroll.Debounce, scroll.DefaultDebounce),

		Navigation:      t.Navigation.Enabled,
		SettleDelay:     config.ParseDuration(t.Navigation.SettleDelay, navigation.DefaultSettleDelay),
		IgnoreHash:      t.Navigation.IgnoreHash,
		IgnoreQuery:     t.Navigation.IgnoreQuery,
		InitialPageView: t.Navigation.InitialPageView,

		Search:       t.Search.Enabled,
		SearchParams: t.Search.Params,

		Vitals:           t.Vitals.Enabled,
		VitalsMetrics:    vitalNames(t.Vitals.Metrics),
		ReportAllChanges: vitalNames(t.Vitals.ReportAllChanges),

		Links:              t.Links.Enabled,
		DownloadExtensions: t.Links.DownloadExtensions,
		Forms:              t.Forms.Enabled,
		Twitter:            t.Twitter.Enabled,
	}
}

func vitalNames(names []string) []vitals.Name {
	out := make([]vitals.Name, 0, len(names))
	for _, s := range names {
		if n, err := vitals.ParseName(s); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// Config configures a Manager.
type Config struct {
	MeasurementID string
	Writer        sink.Writer
	// Sanitizer is applied to outgoing parameters when set.
	Sanitizer event.Sanitizer
	// ScrubQuery normalises query strings before route comparison.
	ScrubQuery  func(string) string
	Clock       clock.Clock
	MaxPages    int
	IdleTimeout time.Duration
	Tracking    Tracking
	Logger      zerolog.Logger
}

// Manager owns every open page.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	pages   *lru.Cache[string, *Page]
	sweeper clock.Timer
	logger  zerolog.Logger
}

// NewManager creates a Manager and starts its idle sweep.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Writer == nil {
		return nil, ErrNoSink
	}
	if cfg.MeasurementID == "" {
		return nil, config.ErrNoMeasurementID
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}

	m := &Manager{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "sessions").Logger(),
	}

	pages, err := lru.NewWithEvict[string, *Page](cfg.MaxPages, func(id string, p *Page) {
		if p.close(ReasonEvicted) {
			m.logger.Debug().Str("page", id).Msg("Page evicted")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create page cache: %w", err)
	}
	m.pages = pages

	interval := cfg.IdleTimeout / 2
	if interval > maxSweepInterval {
		interval = maxSweepInterval
	}
	m.sweeper = clock.Every(cfg.Clock, interval, m.sweep)

	return m, nil
}

// Open creates a page for init and reports its landing view.
func (m *Manager) Open(init PageInit) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := init.ID
	if id == "" {
		id = uuid.NewString()
	}
	if m.pages.Contains(id) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, id)
	}

	logger := m.logger.With().Str("page", id).Logger()
	var s event.Sink = sink.ForPage(m.cfg.Writer, id, m.cfg.MeasurementID, m.cfg.Clock.Now, logger)
	if m.cfg.Sanitizer != nil {
		s = event.Sanitizing(s, m.cfg.Sanitizer)
	}

	metrics.PagesActive.Inc()
	p := newPage(id, init, s, m.cfg)
	m.pages.Add(id, p)

	m.logger.Debug().Str("page", id).Str("href", init.Href).Msg("Page opened")
	return p, nil
}

// Get returns the open page with id.
func (m *Manager) Get(id string) (*Page, error) {
	p, ok := m.pages.Get(id)
	if !ok {
		return nil, ErrPageNotFound
	}
	return p, nil
}

// Dispatch delivers signals to page id in order. It returns the number of
// signals accepted; rejected signals do not stop the batch.
func (m *Manager) Dispatch(id string, signals []Signal) (int, error) {
	p, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	accepted := 0
	for _, sig := range signals {
		switch err := p.Dispatch(sig); {
		case err == nil:
			accepted++
		case errors.Is(err, ErrPageClosed):
			return accepted, ErrPageNotFound
		}
	}
	return accepted, nil
}

// Close closes page id.
func (m *Manager) Close(id string) error {
	p, ok := m.pages.Peek(id)
	if !ok {
		return ErrPageNotFound
	}
	p.close(ReasonClosed)
	m.pages.Remove(id)
	return nil
}

// Len returns the number of open pages.
func (m *Manager) Len() int {
	return m.pages.Len()
}

// Shutdown closes every page and stops the idle sweep.
func (m *Manager) Shutdown() {
	m.sweeper.Stop()
	for _, id := range m.pages.Keys() {
		if p, ok := m.pages.Peek(id); ok {
			p.close(ReasonShutdown)
		}
		m.pages.Remove(id)
	}
	m.logger.Info().Msg("All pages closed")
}

// sweep closes pages that have been idle longer than the idle timeout.
func (m *Manager) sweep() {
	now := m.cfg.Clock.Now()
	for _, id := range m.pages.Keys() {
		p, ok := m.pages.Peek(id)
		if !ok {
			continue
		}
		if idle := p.idleFor(now); idle > m.cfg.IdleTimeout {
			m.logger.Debug().Str("page", id).Dur("idle", idle).Msg("Closing idle page")
			p.close(ReasonIdle)
			m.pages.Remove(id)
		}
	}
}
