package navigation

import (
	"testing"
	"time"

	"github.com/goodtune/beacon/internal/clock"
	"github.com/goodtune/beacon/internal/event"
	"github.com/goodtune/beacon/internal/redact"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

type browser struct {
	loc Location
}

func (b *browser) Location() Location { return b.loc }

func (b *browser) navigate(href, title string) {
	b.loc = Location{Href: href, Title: title}
}

func setup(t *testing.T, cfg Config) (*Tracker, *browser, *clock.Fake, *event.Recorder) {
	t.Helper()
	c := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	rec := &event.Recorder{}
	b := &browser{loc: Location{Href: "https://example.com/", Title: "Home"}}
	cfg.Sink = rec
	cfg.Locator = b
	cfg.Clock = c
	cfg.Logger = zerolog.Nop()
	if cfg.Scrub == nil {
		cfg.Scrub = redact.New(redact.Config{}).ScrubQuery
	}
	return New(cfg), b, c, rec
}

func TestStartReportsLandingPage(t *testing.T) {
	tr, _, _, rec := setup(t, Config{})
	tr.Start(true)

	views := rec.Named(EventPageView)
	if len(views) != 1 {
		t.Fatalf("Expected one page view, got %v", rec.Names())
	}
	want := event.Params{"page_path": "/", "page_title": "Home", "page_location": "https://example.com/"}
	if diff := cmp.Diff(want, views[0].Params); diff != "" {
		t.Errorf("Params mismatch (-want +got):\n%s", diff)
	}
}

func TestStartWithoutPageView(t *testing.T) {
	tr, _, _, rec := setup(t, Config{})
	tr.Start(false)

	if len(rec.Events()) != 0 {
		t.Errorf("Expected no events, got %v", rec.Names())
	}
	if tr.Path() != "/" {
		t.Errorf("Expected landing path recorded, got %q", tr.Path())
	}
}

func TestSignalsWithinSettleWindowCollapse(t *testing.T) {
	tr, b, c, rec := setup(t, Config{})
	tr.Start(false)

	b.navigate("https://example.com/products", "Products")
	tr.Signal(Push)
	c.Advance(100 * time.Millisecond)
	b.navigate("https://example.com/products?page=2", "Products")
	tr.Signal(Replace)
	c.Advance(100 * time.Millisecond)

	if len(rec.Events()) != 0 {
		t.Fatalf("Expected nothing before settling, got %v", rec.Names())
	}

	c.Advance(50 * time.Millisecond)
	views := rec.Named(EventPageView)
	if len(views) != 1 {
		t.Fatalf("Expected exactly one page view, got %d", len(views))
	}
	// page is not an allowed parameter
	if got := views[0].Params["page_path"]; got != "/products" {
		t.Errorf("Expected /products, got %v", got)
	}
}

func TestSameRouteIsNotReported(t *testing.T) {
	tr, b, c, rec := setup(t, Config{})
	tr.Start(false)

	b.navigate("https://example.com/?fbclid=abc", "Home")
	tr.Signal(Replace)
	c.Advance(time.Second)

	tr.Signal(Pop)
	c.Advance(time.Second)

	if len(rec.Events()) != 0 {
		t.Errorf("Expected no page views, got %v", rec.Names())
	}
}

func TestDependentsRunAfterReport(t *testing.T) {
	tr, b, c, rec := setup(t, Config{})
	tr.Start(false)

	var order []string
	tr.OnChange(func() {
		order = append(order, "rescan:"+rec.Names()[len(rec.Names())-1])
	})
	tr.OnChange(func() { order = append(order, "scroll-reset") })

	b.navigate("https://example.com/about", "About")
	tr.Signal(Push)
	c.Advance(DefaultSettleDelay)

	if diff := cmp.Diff([]string{"rescan:page_view", "scroll-reset"}, order); diff != "" {
		t.Errorf("Dependent order mismatch (-want +got):\n%s", diff)
	}
}

func TestIgnoreHashAndQuery(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		href string
		want string
	}{
		{"keeps hash", Config{}, "https://example.com/a?utm_source=x#top", "/a?utm_source=x#top"},
		{"ignore hash", Config{IgnoreHash: true}, "https://example.com/a?utm_source=x#top", "/a?utm_source=x"},
		{"ignore query", Config{IgnoreQuery: true}, "https://example.com/a?utm_source=x#top", "/a#top"},
		{"scrubs query", Config{}, "https://example.com/a?email=a@b.c&gclid=1", "/a?gclid=1"},
		{"empty path", Config{}, "https://example.com", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _, _, _ := setup(t, tt.cfg)
			if got := tr.Normalize(tt.href); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestHashOnlyChangeIgnored(t *testing.T) {
	tr, b, c, rec := setup(t, Config{IgnoreHash: true})
	tr.Start(false)

	b.navigate("https://example.com/#section-2", "Home")
	tr.Signal(Push)
	c.Advance(time.Second)

	if len(rec.Events()) != 0 {
		t.Errorf("Expected hash change to be ignored, got %v", rec.Names())
	}
}

func TestSearchResults(t *testing.T) {
	tr, b, c, rec := setup(t, Config{SearchParams: DefaultSearchParams})
	tr.Start(false)

	b.navigate("https://example.com/search?s=&query=red+shoes", "Search")
	tr.Signal(Push)
	c.Advance(DefaultSettleDelay)

	want := []string{EventPageView, EventSearchResults}
	if diff := cmp.Diff(want, rec.Names()); diff != "" {
		t.Fatalf("Event sequence mismatch (-want +got):\n%s", diff)
	}
	if got := rec.Named(EventSearchResults)[0].Params["search_term"]; got != "red shoes" {
		t.Errorf("Expected red shoes, got %v", got)
	}
}

func TestCloseCancelsSettle(t *testing.T) {
	tr, b, c, rec := setup(t, Config{})
	tr.Start(false)

	b.navigate("https://example.com/next", "Next")
	tr.Signal(Push)
	tr.Close()
	c.Advance(time.Second)

	if len(rec.Events()) != 0 {
		t.Errorf("Expected no events after close, got %v", rec.Names())
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("pop"); err != nil || k != Pop {
		t.Errorf("Expected pop, got %q, %v", k, err)
	}
	if _, err := ParseKind("reload"); err == nil {
		t.Error("Expected error for unknown kind")
	}
}
