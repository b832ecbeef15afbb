// Package milestone detects percentage thresholds crossed by a monotonic
// progress value, with support for backwards jumps.
package milestone

import "sort"

// State is the per-entity crossing record.
type State struct {
	Reached      map[int]bool
	LastReported int
}

// Reset forgets every crossing.
func (s *State) Reset() {
	s.Reached = nil
	s.LastReported = 0
}

// Tracker holds an immutable, ascending threshold set.
type Tracker struct {
	thresholds []int
}

// New returns a Tracker for the given thresholds. Values outside 1..100 are
// dropped, duplicates collapse and the result is sorted.
func New(thresholds []int) *Tracker {
	seen := make(map[int]bool, len(thresholds))
	var out []int
	for _, m := range thresholds {
		if m <= 0 || m > 100 || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Ints(out)
	return &Tracker{thresholds: out}
}

// Thresholds returns a copy of the configured thresholds.
func (t *Tracker) Thresholds() []int {
	out := make([]int, len(t.thresholds))
	copy(out, t.thresholds)
	return out
}

// Empty reports whether there is nothing to track.
func (t *Tracker) Empty() bool {
	return len(t.thresholds) == 0
}

// Check marks and returns, in ascending order, every threshold that is at or
// below percent, not yet reached, and above the last reported threshold.
func (t *Tracker) Check(s *State, percent int) []int {
	var crossed []int
	for _, m := range t.thresholds {
		if m > percent {
			break
		}
		if s.Reached[m] || m <= s.LastReported {
			continue
		}
		if s.Reached == nil {
			s.Reached = make(map[int]bool, len(t.thresholds))
		}
		s.Reached[m] = true
		s.LastReported = m
		crossed = append(crossed, m)
	}
	return crossed
}

// ResetOnSeek rebases the state after a discontinuous jump to percent:
// thresholds strictly below percent count as reached, the rest become
// eligible again.
func (t *Tracker) ResetOnSeek(s *State, percent int) {
	s.LastReported = 0
	s.Reached = make(map[int]bool, len(t.thresholds))
	for _, m := range t.thresholds {
		if m < percent {
			s.Reached[m] = true
		}
	}
}
