// Package navigation detects single-page-app route changes and reports each
// distinct route once.
package navigation

import (
	"fmt"
	"net/url"
	"time"

	"github.com/goodtune/beacon/internal/clock"
	"github.com/goodtune/beacon/internal/event"
	"github.com/rs/zerolog"
)

const (
	EventPageView      = "page_view"
	EventSearchResults = "view_search_results"

	DefaultSettleDelay = 150 * time.Millisecond
)

// DefaultSearchParams are the query parameters inspected for a site-search
// term, in priority order.
var DefaultSearchParams = []string{"q", "query", "s", "search", "keyword", "search_term", "search_query", "searchtext", "search_keywords"}

// Kind is the history mutation that triggered a signal.
type Kind string

const (
	Push    Kind = "push"
	Replace Kind = "replace"
	Pop     Kind = "pop"
)

// ParseKind validates a history signal kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case Push, Replace, Pop:
		return k, nil
	}
	return "", fmt.Errorf("unknown history signal %q", s)
}

// Location is the document's current address and title.
type Location struct {
	Href  string
	Title string
}

// Locator reports the current Location.
type Locator interface {
	Location() Location
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func() Location

func (f LocatorFunc) Location() Location { return f() }

// Config configures a Tracker.
type Config struct {
	Sink         event.Sink
	Locator      Locator
	Clock        clock.Clock
	SettleDelay  time.Duration
	IgnoreHash   bool
	IgnoreQuery  bool
	// Scrub normalises a path before comparison, typically by dropping
	// non-allowed query parameters.
	Scrub        func(string) string
	// SearchParams enables view_search_results when non-empty.
	SearchParams []string
	Logger       zerolog.Logger
}

// Tracker deduplicates route changes. It is not safe for concurrent use.
type Tracker struct {
	sink         event.Sink
	locator      Locator
	clock        clock.Clock
	settleDelay  time.Duration
	ignoreHash   bool
	ignoreQuery  bool
	scrub        func(string) string
	searchParams []string
	dependents   []func()
	lastPath     string
	pending      clock.Timer
	logger       zerolog.Logger
}

// New creates a Tracker.
func New(cfg Config) *Tracker {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Scrub == nil {
		cfg.Scrub = func(s string) string { return s }
	}
	return &Tracker{
		sink:         cfg.Sink,
		locator:      cfg.Locator,
		clock:        cfg.Clock,
		settleDelay:  cfg.SettleDelay,
		ignoreHash:   cfg.IgnoreHash,
		ignoreQuery:  cfg.IgnoreQuery,
		scrub:        cfg.Scrub,
		searchParams: cfg.SearchParams,
		logger:       cfg.Logger.With().Str("component", "navigation").Logger(),
	}
}

// OnChange registers fn to run after every reported route change.
func (t *Tracker) OnChange(fn func()) {
	t.dependents = append(t.dependents, fn)
}

// Start records the landing route. With pageView set it is reported as
// the first page_view.
func (t *Tracker) Start(pageView bool) {
	loc := t.locator.Location()
	t.lastPath = t.Normalize(loc.Href)
	if pageView {
		t.report(t.lastPath, loc)
	}
}

// Signal handles a history mutation. The route is re-read once the
// settle delay has passed without further signals.
func (t *Tracker) Signal(kind Kind) {
	t.logger.Debug().Str("kind", string(kind)).Msg("History signal")
	t.cancel()
	t.pending = t.clock.AfterFunc(t.settleDelay, t.settle)
}

// Path returns the last reported normalised path.
func (t *Tracker) Path() string {
	return t.lastPath
}

// Close cancels a pending settle.
func (t *Tracker) Close() {
	t.cancel()
}

// Normalize reduces href to path, query and fragment, applies the
// ignore options and scrubs the result.
func (t *Tracker) Normalize(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return t.scrub(href)
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if !t.ignoreQuery && u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	if !t.ignoreHash && u.Fragment != "" {
		path += "#" + u.EscapedFragment()
	}
	return t.scrub(path)
}

func (t *Tracker) settle() {
	t.pending = nil
	loc := t.locator.Location()
	path := t.Normalize(loc.Href)
	if path == t.lastPath {
		return
	}
	t.lastPath = path
	t.report(path, loc)
	for _, fn := range t.dependents {
		fn()
	}
}

func (t *Tracker) report(path string, loc Location) {
	t.sink.Emit(EventPageView, event.Params{
		"page_path":     path,
		"page_title":    loc.Title,
		"page_location": loc.Href,
	})
	if term := t.searchTerm(loc.Href); term != "" {
		t.sink.Emit(EventSearchResults, event.Params{"search_term": term})
	}
}

func (t *Tracker) searchTerm(href string) string {
	if len(t.searchParams) == 0 {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		t.logger.Debug().Err(err).Msg("Unparseable location for search check")
		return ""
	}
	q := u.Query()
	for _, name := range t.searchParams {
		if v := q.Get(name); v != "" {
			return v
		}
	}
	return ""
}

func (t *Tracker) cancel() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}
