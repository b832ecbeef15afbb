// Package vitals computes the web performance metrics for one page from
// the performance entries the browser observes.
package vitals

import (
	"fmt"
	"math"
	"strings"
)

// Name identifies a metric.
type Name string

const (
	CLS  Name = "CLS"
	FCP  Name = "FCP"
	LCP  Name = "LCP"
	INP  Name = "INP"
	TTFB Name = "TTFB"
	// FID is superseded by INP and only collected when enabled explicitly.
	FID  Name = "FID"
)

// DefaultMetrics are collected when none are configured.
var DefaultMetrics = []Name{CLS, FCP, LCP, INP, TTFB}

// DefaultReportAllChanges are the metrics re-reported on every change.
var DefaultReportAllChanges = []Name{CLS}

// ParseName validates a metric name, case-insensitively.
func ParseName(s string) (Name, error) {
	n := Name(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := thresholds[n]; !ok {
		return "", fmt.Errorf("unknown metric %q", s)
	}
	return n, nil
}

// Thresholds is the [good_max, poor_min] pair for a metric.
type Thresholds [2]float64

var thresholds = map[Name]Thresholds{
	CLS:  {0.1, 0.25},
	FCP:  {1800, 3000},
	LCP:  {2500, 4000},
	INP:  {200, 500},
	TTFB: {800, 1800},
	FID:  {100, 300},
}

// ThresholdsFor returns the rating thresholds of n.
func ThresholdsFor(n Name) Thresholds {
	return thresholds[n]
}

// Rating classifies a value.
type Rating string

const (
	Good             Rating = "good"
	NeedsImprovement Rating = "needs_improvement"
	Poor             Rating = "poor"
)

// Rate classifies value against t.
func Rate(value float64, t Thresholds) Rating {
	switch {
	case value > t[1]:
		return Poor
	case value > t[0]:
		return NeedsImprovement
	default:
		return Good
	}
}

// Navigation types reported with each metric.
const (
	NavigationNavigate         = "navigate"
	NavigationPrerender        = "prerender"
	NavigationBackForwardCache = "back-forward-cache"
)

// Metric is one reported measurement.
type Metric struct {
	Name           Name
	Value          float64
	ID             string
	Rating         Rating
	Delta          float64
	NavigationType string
	Entries        []Entry
}

// Round rounds v to the precision reported for metric n.
func Round(n Name, v float64) float64 {
	scale := 100.0
	if n == CLS {
		scale = 10000
	}
	return math.Round(v*scale) / scale
}

// reporter decides whether a metric change is worth reporting.
type reporter struct {
	metric   *Metric
	all      bool
	prev     float64
	reported bool
	onReport func(Metric)
}

func newReporter(m *Metric, all bool, onReport func(Metric)) *reporter {
	return &reporter{metric: m, all: all, onReport: onReport}
}

func (r *reporter) report(force bool) {
	m := r.metric
	if m.Value < 0 || !(force || r.all) {
		return
	}
	delta := m.Value - r.prev
	if delta == 0 && r.reported {
		return
	}
	r.prev = m.Value
	r.reported = true
	m.Delta = delta
	m.Rating = Rate(m.Value, thresholds[m.Name])
	r.onReport(*m)
}
