package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goodtune/beacon/internal/clock"
	"github.com/goodtune/beacon/internal/event"
	"github.com/goodtune/beacon/internal/forms"
	"github.com/goodtune/beacon/internal/links"
	"github.com/goodtune/beacon/internal/media"
	"github.com/goodtune/beacon/internal/media/html5"
	"github.com/goodtune/beacon/internal/media/jwplayer"
	"github.com/goodtune/beacon/internal/media/vimeo"
	"github.com/goodtune/beacon/internal/media/youtube"
	"github.com/goodtune/beacon/internal/metrics"
	"github.com/goodtune/beacon/internal/milestone"
	"github.com/goodtune/beacon/internal/navigation"
	"github.com/goodtune/beacon/internal/scroll"
	"github.com/goodtune/beacon/internal/twitter"
	"github.com/goodtune/beacon/internal/vitals"
	"github.com/rs/zerolog"
)

// Providers.
const (
	ProviderHTML5    = "html5"
	ProviderYouTube  = "youtube"
	ProviderVimeo    = "vimeo"
	ProviderJWPlayer = "jwplayer"
)

// Close reasons.
const (
	ReasonClosed   = "closed"
	ReasonIdle     = "idle"
	ReasonEvicted  = "evicted"
	ReasonShutdown = "shutdown"
)

var (
	// ErrPageClosed is returned when dispatching to a closed page.
	ErrPageClosed = errors.New("page closed")

	// ErrUnknownEntity is returned for media events on an entity that was
	// never attached.
	ErrUnknownEntity = errors.New("unknown media entity")
)

// sdkWait is how long each provider SDK is waited for.
var sdkWait = map[string]struct {
	interval time.Duration
	attempts int
}{
	ProviderYouTube:  {500 * time.Millisecond, 20},
	ProviderVimeo:    {time.Second, 10},
	ProviderJWPlayer: {time.Second, 10},
}

// Page is the server-side state of one browser document. Signals and timer
// callbacks are serialised on the page mutex.
type Page struct {
	id     string
	mu     sync.Mutex
	closed bool

	clock    clock.Clock
	lastSeen atomic.Int64
	logger   zerolog.Logger

	location navigation.Location
	viewport scroll.Metrics

	nav     *navigation.Tracker
	scroll  *scroll.Tracker
	vitals  *vitals.Collector
	links   *links.Tracker
	forms   *forms.Tracker
	twitter *twitter.Tracker

	tracking Tracking
	html5    *html5.Tracker
	youtube  *youtube.Tracker
	vimeo    *vimeo.Tracker
	jw       *jwplayer.Tracker

	remotes map[string]remote
	pending map[string]map[string]remote
	loaders map[string]clock.Timer
	sdk     map[string]bool
}

// pageClock runs every timer callback under the page lock.
type pageClock struct {
	base clock.Clock
	page *Page
}

func (c *pageClock) Now() time.Time { return c.base.Now() }

func (c *pageClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	return c.base.AfterFunc(d, func() { c.page.run(f) })
}

// newPage builds the trackers for a page and reports the landing view.
func newPage(id string, init PageInit, sink event.Sink, cfg Config) *Page {
	p := &Page{
		id:       id,
		tracking: cfg.Tracking,
		logger:   cfg.Logger.With().Str("component", "page").Str("page", id).Logger(),
		location: navigation.Location{Href: init.Href, Title: init.Title},
		viewport: init.Viewport,
		remotes:  make(map[string]remote),
		pending:  make(map[string]map[string]remote),
		loaders:  make(map[string]clock.Timer),
		sdk:      make(map[string]bool),
	}
	p.clock = &pageClock{base: cfg.Clock, page: p}
	p.touch()

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, name := range init.SDKs {
		p.sdk[name] = true
	}

	t := cfg.Tracking
	logger := p.logger

	if t.Vitals {
		// the browser's time origin, in server time
		origin := cfg.Clock.Now().Add(-time.Duration(init.Now * float64(time.Millisecond)))
		p.vitals = vitals.New(vitals.Config{
			Sink:             sink,
			Clock:            p.clock,
			Origin:           origin,
			Metrics:          t.VitalsMetrics,
			ReportAllChanges: t.ReportAllChanges,
			Hidden:           init.Hidden,
			Logger:           logger,
		})
		if init.Navigation != nil {
			p.vitals.Observe(vitals.EntryNavigation, []vitals.Entry{*init.Navigation})
		}
	}

	if t.Scroll {
		p.scroll = scroll.New(scroll.Config{
			Sink:       sink,
			Viewport:   scroll.ViewportFunc(func() scroll.Metrics { return p.viewport }),
			Clock:      p.clock,
			Thresholds: t.ScrollThresholds,
			Debounce:   t.ScrollDebounce,
			ScrollEnd:  init.ScrollEnd,
			Logger:     logger,
		})
	}

	opts := media.Options{
		Sink:          sink,
		Milestones:    milestone.New(t.Milestones),
		Clock:         p.clock,
		PollInterval:  t.PollInterval,
		SeekThreshold: t.SeekThreshold,
		Logger:        logger,
	}
	if t.HTML5 {
		p.html5 = html5.New(opts)
	}
	if t.YouTube {
		p.youtube = youtube.New(opts)
	}
	if t.Vimeo {
		p.vimeo = vimeo.New(opts)
	}
	if t.JWPlayer {
		p.jw = jwplayer.New(opts)
	}

	if t.Links {
		p.links = links.New(links.Config{
			Sink:               sink,
			DownloadExtensions: t.DownloadExtensions,
			Logger:             logger,
		})
	}
	if t.Forms {
		p.forms = forms.New(forms.Config{Sink: sink, Scrub: cfg.ScrubQuery, Logger: logger})
	}
	if t.Twitter {
		p.twitter = twitter.New(twitter.Config{Sink: sink, Scrub: cfg.ScrubQuery, Logger: logger})
	}

	if t.Navigation {
		var search []string
		if t.Search {
			search = t.SearchParams
		}
		p.nav = navigation.New(navigation.Config{
			Sink:         sink,
			Locator:      navigation.LocatorFunc(func() navigation.Location { return p.location }),
			Clock:        p.clock,
			SettleDelay:  t.SettleDelay,
			IgnoreHash:   t.IgnoreHash,
			IgnoreQuery:  t.IgnoreQuery,
			Scrub:        cfg.ScrubQuery,
			SearchParams: search,
			Logger:       logger,
		})
		p.nav.OnChange(p.rescanMedia)
		if p.scroll != nil {
			p.nav.OnChange(p.scroll.Reset)
		}
		if p.forms != nil {
			p.nav.OnChange(p.forms.Reset)
		}
		p.nav.Start(t.InitialPageView)
	}

	return p
}

// ID returns the page id.
func (p *Page) ID() string { return p.id }

func (p *Page) touch() {
	p.lastSeen.Store(p.clock.Now().UnixNano())
}

// idleFor reports how long the page has gone without signals.
func (p *Page) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, p.lastSeen.Load()))
}

// run executes a timer callback under the page lock.
func (p *Page) run(f func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	defer p.recover("timer")
	f()
}

func (p *Page) recover(kind string) {
	if r := recover(); r != nil {
		metrics.SignalErrors.WithLabelValues(kind).Inc()
		p.logger.Error().Interface("panic", r).Str("kind", kind).Msg("Recovered from panic")
	}
}

// Dispatch routes one signal to the trackers.
func (p *Page) Dispatch(sig Signal) (err error) {
	kind := metricKind(sig.Kind)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPageClosed
	}
	p.touch()
	metrics.SignalsTotal.WithLabelValues(kind).Inc()

	defer func() {
		if r := recover(); r != nil {
			metrics.SignalErrors.WithLabelValues(kind).Inc()
			p.logger.Error().Interface("panic", r).Str("kind", sig.Kind).Msg("Recovered from panic")
			err = fmt.Errorf("signal %s: handler panicked", sig.Kind)
		}
	}()

	if err = p.dispatch(sig); err != nil {
		metrics.SignalErrors.WithLabelValues(kind).Inc()
		p.logger.Debug().Err(err).Str("kind", sig.Kind).Msg("Signal rejected")
	}
	return err
}

func (p *Page) dispatch(sig Signal) error {
	switch sig.Kind {
	case KindMedia:
		var m MediaSignal
		if err := decode(sig, &m); err != nil {
			return err
		}
		return p.media(m)

	case KindHistory:
		var h HistorySignal
		if err := decode(sig, &h); err != nil {
			return err
		}
		return p.history(h)

	case KindScroll:
		var s ScrollSignal
		if err := decode(sig, &s); err != nil {
			return err
		}
		p.viewport = s.Metrics
		if p.scroll == nil {
			return nil
		}
		if s.ScrollEnd {
			p.scroll.ScrollEnd(s.Metrics)
		} else {
			p.scroll.Scroll(s.Metrics)
		}
		return nil

	case KindPerformance:
		var perf PerformanceSignal
		if err := decode(sig, &perf); err != nil {
			return err
		}
		if p.vitals == nil {
			return nil
		}
		if perf.InteractionCount != nil {
			p.vitals.SetInteractionCount(*perf.InteractionCount)
		}
		if perf.EntryType != "" {
			p.vitals.Observe(perf.EntryType, perf.Entries)
		}
		return nil

	case KindVisibility:
		var v VisibilitySignal
		if err := decode(sig, &v); err != nil {
			return err
		}
		if v.State == "hidden" && p.vitals != nil {
			p.vitals.Hidden(p.vitalsTime(v.Time))
		}
		return nil

	case KindPageShow:
		var ps PageShowSignal
		if err := decode(sig, &ps); err != nil {
			return err
		}
		if ps.Persisted && p.vitals != nil {
			p.vitals.Restore(p.vitalsTime(ps.Time))
		}
		return nil

	case KindSDKReady:
		var s SDKReadySignal
		if err := decode(sig, &s); err != nil {
			return err
		}
		p.sdk[s.Provider] = true
		return nil

	case KindLink:
		var l LinkSignal
		if err := decode(sig, &l); err != nil {
			return err
		}
		if p.links == nil {
			return nil
		}
		if interaction, ok := links.Interaction(l.Type, l.Button, l.Key); ok {
			p.links.Interact(p.location.Href, l.Link, interaction)
		}
		return nil

	case KindForm:
		var f FormSignal
		if err := decode(sig, &f); err != nil {
			return err
		}
		if p.forms == nil {
			return nil
		}
		switch f.Type {
		case "focusin":
			p.forms.Focus(p.location.Href, f.Form)
		case "submit":
			p.forms.Submit(p.location.Href, f.Form)
		default:
			return fmt.Errorf("unknown form event %q", f.Type)
		}
		return nil

	case KindTwitter:
		var tw TwitterSignal
		if err := decode(sig, &tw); err != nil {
			return err
		}
		if p.twitter == nil {
			return nil
		}
		return p.twitter.Handle(p.location.Href, tw)
	}
	return fmt.Errorf("unknown signal kind %q", sig.Kind)
}

func decode(sig Signal, v any) error {
	if len(sig.Data) == 0 {
		return fmt.Errorf("%s signal without data", sig.Kind)
	}
	if err := json.Unmarshal(sig.Data, v); err != nil {
		return fmt.Errorf("invalid %s signal: %w", sig.Kind, err)
	}
	return nil
}

func (p *Page) vitalsTime(t float64) float64 {
	if t > 0 {
		return t
	}
	return p.vitals.Now()
}

func (p *Page) history(h HistorySignal) error {
	kind, err := navigation.ParseKind(h.Kind)
	if err != nil {
		return err
	}
	target := h.Href
	if target == "" {
		target = h.Path
	}
	if target != "" {
		p.location.Href = resolve(p.location.Href, target)
	}
	if h.Title != "" {
		p.location.Title = h.Title
	}
	if p.nav != nil {
		p.nav.Signal(kind)
	}
	return nil
}

// resolve interprets ref relative to base, the way the browser does.
func resolve(base, ref string) string {
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return r.String()
	}
	return b.ResolveReference(r).String()
}

func (p *Page) media(m MediaSignal) error {
	if m.Entity == "" {
		return errors.New("media signal without entity")
	}
	if !p.providerEnabled(m.Provider) {
		p.logger.Debug().Str("provider", m.Provider).Msg("Provider not tracked, ignoring")
		return nil
	}
	key := m.Provider + "/" + m.Entity

	switch m.Type {
	case "attach":
		if r, ok := p.remotes[key]; ok {
			r.update(m.State)
			return nil
		}
		r := newRemote(m.Provider, m.Entity)
		r.update(m.State)
		p.remotes[key] = r
		if m.Provider == ProviderHTML5 || p.sdk[m.Provider] {
			p.attach(m.Provider, m.Entity, r)
			return nil
		}
		if p.pending[m.Provider] == nil {
			p.pending[m.Provider] = make(map[string]remote)
		}
		p.pending[m.Provider][m.Entity] = r
		p.waitSDK(m.Provider)
		return nil

	case "detach":
		delete(p.remotes, key)
		delete(p.pending[m.Provider], m.Entity)
		p.detach(m.Provider, m.Entity)
		return nil
	}

	r, ok := p.remotes[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, key)
	}
	r.update(m.State)
	r.fire(m.Type)
	return nil
}

func (p *Page) providerEnabled(provider string) bool {
	switch provider {
	case ProviderHTML5:
		return p.html5 != nil
	case ProviderYouTube:
		return p.youtube != nil
	case ProviderVimeo:
		return p.vimeo != nil
	case ProviderJWPlayer:
		return p.jw != nil
	}
	return false
}

func newRemote(provider, entity string) remote {
	switch provider {
	case ProviderHTML5:
		return &remoteElement{id: entity}
	case ProviderYouTube:
		return &remoteYouTube{}
	case ProviderVimeo:
		return &remoteVimeo{}
	default:
		return &remoteJW{}
	}
}

func (p *Page) attach(provider, entity string, r remote) {
	switch provider {
	case ProviderHTML5:
		p.html5.Attach(r.(*remoteElement))
	case ProviderYouTube:
		p.youtube.Attach(entity, r.(*remoteYouTube))
	case ProviderVimeo:
		p.vimeo.Attach(context.Background(), entity, r.(*remoteVimeo))
	case ProviderJWPlayer:
		p.jw.Attach(entity, r.(*remoteJW))
	}
}

func (p *Page) detach(provider, entity string) {
	switch provider {
	case ProviderHTML5:
		p.html5.Detach(entity)
	case ProviderYouTube:
		p.youtube.Detach(entity)
	case ProviderVimeo:
		p.vimeo.Detach(entity)
	case ProviderJWPlayer:
		p.jw.Detach(entity)
	}
}

// waitSDK (re)starts a bounded wait for provider's SDK, attaching every
// pending embed once it is ready.
func (p *Page) waitSDK(provider string) {
	if t := p.loaders[provider]; t != nil {
		t.Stop()
		delete(p.loaders, provider)
	}
	w := sdkWait[provider]
	loader := media.Loader{
		Name:     provider,
		Clock:    p.clock,
		Interval: w.interval,
		Attempts: w.attempts,
		Logger:   p.logger,
	}
	timer := loader.Wait(
		func() bool { return p.sdk[provider] },
		func() {
			delete(p.loaders, provider)
			for entity, r := range p.pending[provider] {
				p.attach(provider, entity, r)
			}
			delete(p.pending, provider)
		},
	)
	if timer != nil {
		p.loaders[provider] = timer
	}
}

// rescanMedia gives embeds still waiting for their SDK a fresh wait after
// a route change.
func (p *Page) rescanMedia() {
	for provider, embeds := range p.pending {
		if len(embeds) > 0 {
			p.waitSDK(provider)
		}
	}
}

// close stops every tracker. It reports false when the page was already
// closed.
func (p *Page) close(reason string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	defer p.recover("close")

	if reason == ReasonClosed && p.vitals != nil {
		// an explicit close is the page going away
		p.vitals.Hidden(p.vitals.Now())
	}
	p.closed = true

	for provider, t := range p.loaders {
		t.Stop()
		delete(p.loaders, provider)
	}
	if p.nav != nil {
		p.nav.Close()
	}
	if p.scroll != nil {
		p.scroll.Close()
	}
	if p.vitals != nil {
		p.vitals.Close()
	}
	if p.html5 != nil {
		p.html5.Close()
	}
	if p.youtube != nil {
		p.youtube.Close()
	}
	if p.vimeo != nil {
		p.vimeo.Close()
	}
	if p.jw != nil {
		p.jw.Close()
	}

	metrics.PagesActive.Dec()
	metrics.PagesClosed.WithLabelValues(reason).Inc()
	p.logger.Debug().Str("reason", reason).Msg("Page closed")
	return true
}

// Path returns the last reported route, or "" when navigation is off.
func (p *Page) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nav == nil {
		return ""
	}
	return p.nav.Path()
}

// Entity returns the lifecycle state of an attached media entity.
func (p *Page) Entity(provider, entity string) (media.State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		e  *media.Entity
		ok bool
	)
	switch provider {
	case ProviderHTML5:
		if p.html5 != nil {
			e, ok = p.html5.Entity(entity)
		}
	case ProviderYouTube:
		if p.youtube != nil {
			e, ok = p.youtube.Entity(entity)
		}
	case ProviderVimeo:
		if p.vimeo != nil {
			e, ok = p.vimeo.Entity(entity)
		}
	case ProviderJWPlayer:
		if p.jw != nil {
			e, ok = p.jw.Entity(entity)
		}
	}
	if !ok {
		return media.State{}, false
	}
	return e.State(), true
}
