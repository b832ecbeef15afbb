package event

import (
	"sort"
	"strings"
	"sync"
)

// NotSet is the placeholder for parameters a provider could not supply.
const NotSet = "N/A"

// Params is the flat key/value payload of an analytics event.
type Params map[string]any

// Clone returns a shallow copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Event is one named emission.
type Event struct {
	Name   string
	Params Params
}

// Sink receives normalized events. Delivery is best-effort: a Sink never
// reports failure back to the tracker that emitted the event.
type Sink interface {
	Emit(name string, params Params)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(name string, params Params)

// Emit calls f.
func (f SinkFunc) Emit(name string, params Params) {
	f(name, params)
}

// Fanout delivers every event to each sink in order.
type Fanout []Sink

// Emit forwards the event to all sinks.
func (f Fanout) Emit(name string, params Params) {
	for _, s := range f {
		s.Emit(name, params)
	}
}

// Recorder keeps every event it receives. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records the event.
func (r *Recorder) Emit(name string, params Params) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Name: name, Params: params.Clone()})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Names returns the recorded event names in emission order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name
	}
	return out
}

// Named returns the recorded events with the given name.
func (r *Recorder) Named(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Sanitizer is the string-transform collaborator applied to outgoing
// parameters.
type Sanitizer interface {
	URL(raw string) string
	Text(raw string) string
}

// Sanitizing wraps next so that URL-like and free-text string parameters
// pass through s before delivery.
func Sanitizing(next Sink, s Sanitizer) Sink {
	return &sanitizingSink{next: next, sanitizer: s}
}

type sanitizingSink struct {
	next      Sink
	sanitizer Sanitizer
}

func (s *sanitizingSink) Emit(name string, params Params) {
	out := make(Params, len(params))
	for k, v := range params {
		str, ok := v.(string)
		if !ok || str == "" || str == NotSet {
			out[k] = v
			continue
		}
		switch classify(k) {
		case urlKey:
			out[k] = s.sanitizer.URL(str)
		case textKey:
			out[k] = s.sanitizer.Text(str)
		default:
			out[k] = v
		}
	}
	s.next.Emit(name, out)
}

type keyClass int

const (
	plainKey keyClass = iota
	urlKey
	textKey
)

func classify(key string) keyClass {
	k := strings.ToLower(key)
	switch k {
	case "page_location", "page_referrer", "page_path", "file_name", "form_action", "form_destination":
		return urlKey
	case "value", "debug_target", "link_text":
		return textKey
	case "link_id", "link_classes", "link_domain":
		return plainKey
	}
	if strings.Contains(k, "url") || strings.Contains(k, "link") || strings.Contains(k, "href") {
		return urlKey
	}
	for _, frag := range []string{"text", "label", "term", "title"} {
		if strings.Contains(k, frag) {
			return textKey
		}
	}
	return plainKey
}
