// Package forms reports when a visitor starts filling in a form and when
// they submit it.
package forms

import (
	"github.com/goodtune/beacon/internal/event"
	"github.com/rs/zerolog"
)

// Emitted events.
const (
	EventStart  = "form_start"
	EventSubmit = "form_submit"
)

const notAvailable = "N/A"

// Form describes the form element an event bubbled from. Key identifies
// the element within the document; it falls back to ID, then Name.
type Form struct {
	Key    string `json:"key,omitempty"`
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Action string `json:"action,omitempty"`
	Method string `json:"method,omitempty"`
}

func (f Form) key() string {
	switch {
	case f.Key != "":
		return f.Key
	case f.ID != "":
		return f.ID
	}
	return f.Name
}

// Config configures a Tracker.
type Config struct {
	Sink event.Sink
	// Scrub normalises the destination URL. Optional.
	Scrub  func(string) string
	Logger zerolog.Logger
}

// Tracker emits form_start on the first focus inside each form and
// form_submit on every submission.
type Tracker struct {
	sink    event.Sink
	scrub   func(string) string
	started map[string]bool
	logger  zerolog.Logger
}

// New creates a Tracker.
func New(cfg Config) *Tracker {
	return &Tracker{
		sink:    cfg.Sink,
		scrub:   cfg.Scrub,
		started: make(map[string]bool),
		logger:  cfg.Logger.With().Str("tracker", "forms").Logger(),
	}
}

// Focus handles focus moving into f on the page at pageHref.
func (t *Tracker) Focus(pageHref string, f Form) {
	k := f.key()
	if t.started[k] {
		return
	}
	t.started[k] = true
	t.sink.Emit(EventStart, t.params(pageHref, f))
}

// Submit handles a submission of f on the page at pageHref.
func (t *Tracker) Submit(pageHref string, f Form) {
	t.sink.Emit(EventSubmit, t.params(pageHref, f))
}

// Reset forgets which forms were started, for a new route.
func (t *Tracker) Reset() {
	if len(t.started) > 0 {
		t.logger.Debug().Int("forms", len(t.started)).Msg("Form start state reset")
	}
	t.started = make(map[string]bool)
}

func (t *Tracker) params(pageHref string, f Form) event.Params {
	id := f.ID
	if id == "" {
		id = f.Name
	}
	if id == "" {
		id = notAvailable
	}
	name := f.Name
	if name == "" {
		name = id
	}
	destination := f.Action
	if destination == "" {
		destination = pageHref
	}
	if t.scrub != nil {
		destination = t.scrub(destination)
	}
	return event.Params{
		"form_id":          id,
		"form_name":        name,
		"form_action":      orNotAvailable(f.Action),
		"form_method":      orNotAvailable(f.Method),
		"form_destination": destination,
	}
}

func orNotAvailable(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
