package milestone

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewNormalizesThresholds(t *testing.T) {
	tr := New([]int{75, 25, 0, 50, 25, 150, -3, 100})
	if diff := cmp.Diff([]int{25, 50, 75, 100}, tr.Thresholds()); diff != "" {
		t.Errorf("Thresholds mismatch (-want +got):\n%s", diff)
	}
	if New(nil).Empty() != true {
		t.Error("Expected empty tracker")
	}
}

func TestCheck(t *testing.T) {
	tr := New([]int{10, 25, 50, 75, 90})

	tests := []struct {
		name    string
		percent int
		want    []int
	}{
		{"below first", 5, nil},
		{"first", 10, []int{10}},
		{"repeat", 12, nil},
		{"jump over two", 55, []int{25, 50}},
		{"going backwards", 30, nil},
		{"all the rest", 100, []int{75, 90}},
	}

	var s State
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tr.Check(&s, tt.percent)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Check(%d) mismatch (-want +got):\n%s", tt.percent, diff)
			}
		})
	}
}

func TestMonotonicOverAnySequence(t *testing.T) {
	tr := New([]int{10, 25, 50, 75, 90, 95})
	samples := []int{0, 3, 40, 12, 60, 60, 59, 99, 20, 100}

	var s State
	seen := map[int]bool{}
	last := 0
	for _, p := range samples {
		for _, m := range tr.Check(&s, p) {
			if seen[m] {
				t.Fatalf("Threshold %d emitted twice", m)
			}
			if m <= last {
				t.Fatalf("Threshold %d emitted after %d", m, last)
			}
			seen[m] = true
			last = m
		}
	}
	if len(seen) != 6 {
		t.Errorf("Expected all 6 thresholds, got %d", len(seen))
	}
}

func TestResetOnSeek(t *testing.T) {
	tr := New([]int{25, 50, 75})

	var s State
	tr.Check(&s, 80)

	tr.ResetOnSeek(&s, 30)
	if s.LastReported != 0 {
		t.Errorf("Expected LastReported 0, got %d", s.LastReported)
	}
	if got := tr.Check(&s, 30); got != nil {
		t.Errorf("Expected nothing at 30, got %v", got)
	}
	if diff := cmp.Diff([]int{50, 75}, tr.Check(&s, 76)); diff != "" {
		t.Errorf("Refire mismatch (-want +got):\n%s", diff)
	}
}

func TestResetOnSeekIdempotent(t *testing.T) {
	tr := New([]int{25, 50, 75})

	var a, b State
	tr.ResetOnSeek(&a, 60)
	tr.ResetOnSeek(&b, 60)
	tr.ResetOnSeek(&b, 60)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("Expected identical states (-once +twice):\n%s", diff)
	}
}

func TestResetOnSeekExactThreshold(t *testing.T) {
	tr := New([]int{25, 50, 75})

	var s State
	tr.ResetOnSeek(&s, 50)
	if diff := cmp.Diff([]int{50}, tr.Check(&s, 50)); diff != "" {
		t.Errorf("Expected threshold equal to seek target to fire (-want +got):\n%s", diff)
	}
}

func TestStateReset(t *testing.T) {
	tr := New([]int{25})

	var s State
	tr.Check(&s, 30)
	s.Reset()
	if diff := cmp.Diff([]int{25}, tr.Check(&s, 30)); diff != "" {
		t.Errorf("Expected refire after reset (-want +got):\n%s", diff)
	}
}
