// Package media normalizes playback signals from heterogeneous players into
// one start/play/pause/seek/progress/complete lifecycle per entity.
package media

import (
	"math"
)

// Kind prefixes event and parameter names.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Sample is one canonical observation of a player.
type Sample struct {
	Position float64 // seconds
	Duration float64 // seconds, meaningless when Live
	Live     bool
	Rate     float64
	Muted    bool

	// ContentID identifies the loaded item. A change while started is a
	// content swap.
	ContentID string
	// ID is the reported identifier when it differs from ContentID (an
	// HTML element id, for example).
	ID    string
	Title string
	URL   string

	// Err marks a degraded sample: the provider could not be read.
	Err error
}

// Source is the capability set every provider adapter exposes to its entity.
type Source interface {
	Sample() Sample
}

// SourceFunc adapts a function to Source.
type SourceFunc func() Sample

// Sample calls f.
func (f SourceFunc) Sample() Sample {
	return f()
}

// IsLiveDuration reports whether a provider duration denotes a live or
// indeterminate stream.
func IsLiveDuration(d float64) bool {
	return d <= 0 || math.IsNaN(d) || math.IsInf(d, 0)
}

// Percent converts a position into an integer 0..100. Live or unknown
// durations yield 0.
func Percent(position, duration float64, live bool) int {
	if live || IsLiveDuration(duration) || math.IsNaN(position) {
		return 0
	}
	// the epsilon absorbs float artifacts such as 0.3*100 = 29.999...
	p := int(math.Floor(position/duration*100 + 1e-9))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func wholeSeconds(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(v))
}
