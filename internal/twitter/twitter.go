// Package twitter reports Twitter (X) embed widgets loading and rendering.
package twitter

import (
	"fmt"
	"strings"

	"github.com/goodtune/beacon/internal/event"
	"github.com/rs/zerolog"
)

// Emitted events.
const (
	EventLoaded        = "twitter_embed_loaded"
	EventRendered      = "twitter_embed_rendered"
	EventTweetRendered = "twitter_tweet_rendered"
)

// Widget events raised by the widgets SDK.
const (
	TypeLoaded   = "loaded"
	TypeRendered = "rendered"
	TypeTweet    = "tweet"
)

// Widget types.
const (
	WidgetSingleTweet       = "single_tweet"
	WidgetTimeline          = "timeline"
	WidgetSingleTweetIframe = "single_tweet_iframe"
	WidgetTimelineIframe    = "timeline_iframe"
	WidgetTimelineTweet     = "timeline_tweet"
	WidgetUnknown           = "unknown"
)

const (
	classTweet    = "twitter-tweet"
	classTimeline = "twitter-timeline"
	notAvailable  = "N/A"
)

// Widget describes a widget element. Parent is the closest enclosing
// element carrying a twitter-tweet or twitter-timeline class, if any.
type Widget struct {
	ID      string   `json:"id,omitempty"`
	Tag     string   `json:"tag,omitempty"`
	Classes []string `json:"classes,omitempty"`
	Src     string   `json:"src,omitempty"`
	Parent  *Widget  `json:"parent,omitempty"`
}

func (w Widget) hasClass(class string) bool {
	for _, c := range w.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// within returns the id of the enclosing element with class.
func (w Widget) within(class string) (string, bool) {
	if w.Parent == nil || !w.Parent.hasClass(class) {
		return "", false
	}
	return w.Parent.ID, true
}

// Type classifies the widget.
func (w Widget) Type() string {
	switch {
	case w.hasClass(classTweet):
		return WidgetSingleTweet
	case w.hasClass(classTimeline):
		return WidgetTimeline
	case !strings.EqualFold(w.Tag, "iframe"):
		return WidgetUnknown
	case strings.Contains(w.Src, "/widget/") && strings.Contains(w.Src, "tweet"):
		return WidgetSingleTweetIframe
	case strings.Contains(w.Src, "/widget/") && strings.Contains(w.Src, "timeline"):
		return WidgetTimelineIframe
	}
	if _, ok := w.within(classTweet); ok {
		return WidgetSingleTweet
	}
	if _, ok := w.within(classTimeline); ok {
		return WidgetTimeline
	}
	return WidgetUnknown
}

// Event is one widgets SDK event.
type Event struct {
	Type    string   `json:"type"`
	Widgets []Widget `json:"widgets,omitempty"`
	Target  *Widget  `json:"target,omitempty"`
	TweetID string   `json:"tweet_id,omitempty"`
}

// Config configures a Tracker.
type Config struct {
	Sink event.Sink
	// Scrub normalises the page location. Optional.
	Scrub  func(string) string
	Logger zerolog.Logger
}

// Tracker turns widgets SDK events into embed events.
type Tracker struct {
	sink   event.Sink
	scrub  func(string) string
	logger zerolog.Logger
}

// New creates a Tracker.
func New(cfg Config) *Tracker {
	return &Tracker{
		sink:   cfg.Sink,
		scrub:  cfg.Scrub,
		logger: cfg.Logger.With().Str("tracker", "twitter").Logger(),
	}
}

// Handle reports ev raised on the page at pageHref. Events without a
// target are ignored.
func (t *Tracker) Handle(pageHref string, ev Event) error {
	location := pageHref
	if t.scrub != nil {
		location = t.scrub(location)
	}

	switch ev.Type {
	case TypeLoaded:
		for _, w := range ev.Widgets {
			t.sink.Emit(EventLoaded, event.Params{
				"widget_id":     orNotAvailable(w.ID),
				"widget_type":   w.Type(),
				"page_location": location,
			})
		}
		return nil

	case TypeRendered:
		if ev.Target == nil {
			return nil
		}
		id := ev.Target.ID
		if id == "" {
			id, _ = ev.Target.within(classTweet)
		}
		t.sink.Emit(EventRendered, event.Params{
			"widget_id":     orNotAvailable(id),
			"widget_type":   ev.Target.Type(),
			"page_location": location,
		})
		return nil

	case TypeTweet:
		if ev.Target == nil || ev.TweetID == "" {
			return nil
		}
		id := ev.Target.ID
		if id == "" {
			id, _ = ev.Target.within(classTimeline)
		}
		t.sink.Emit(EventTweetRendered, event.Params{
			"tweet_id":      ev.TweetID,
			"widget_id":     orNotAvailable(id),
			"widget_type":   WidgetTimelineTweet,
			"page_location": location,
		})
		return nil
	}
	return fmt.Errorf("unknown twitter event %q", ev.Type)
}

func orNotAvailable(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
