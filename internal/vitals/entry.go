package vitals

// Entry types understood by the collector.
const (
	EntryPaint       = "paint"
	EntryLCP         = "largest-contentful-paint"
	EntryLayoutShift = "layout-shift"
	EntryEvent       = "event"
	EntryFirstInput  = "first-input"
	EntryNavigation  = "navigation"
)

// Entry is a performance entry as observed in the browser. Times are
// milliseconds since the page's time origin.
type Entry struct {
	EntryType string  `json:"entry_type"`
	Name      string  `json:"name,omitempty"`
	StartTime float64 `json:"start_time"`
	Duration  float64 `json:"duration,omitempty"`

	// layout-shift
	Value          float64 `json:"value,omitempty"`
	HadRecentInput bool    `json:"had_recent_input,omitempty"`

	// event, first-input
	InteractionID   int64   `json:"interaction_id,omitempty"`
	ProcessingStart float64 `json:"processing_start,omitempty"`

	// navigation
	ResponseStart   float64 `json:"response_start,omitempty"`
	ActivationStart float64 `json:"activation_start,omitempty"`
	Type            string  `json:"type,omitempty"`

	// Target describes the element the entry is attributed to.
	Target string `json:"target,omitempty"`
}

// durationThreshold drops event entries too short to matter for INP.
const durationThreshold = 40

// interaction groups the entries of one user interaction.
type interaction struct {
	id      int64
	latency float64
	entries []Entry
}

// maxInteractions is the number of slowest interactions retained.
const maxInteractions = 10

// interactions keeps the slowest interactions seen, slowest first.
type interactions struct {
	byID  map[int64]*interaction
	top   []*interaction
	count int
}

func (l *interactions) reset() {
	*l = interactions{}
}

func (l *interactions) add(e Entry) {
	if e.InteractionID == 0 {
		return
	}
	if l.byID == nil {
		l.byID = make(map[int64]*interaction)
	}
	it, ok := l.byID[e.InteractionID]
	if !ok {
		it = &interaction{id: e.InteractionID}
		l.byID[e.InteractionID] = it
		l.count++
	}
	it.entries = append(it.entries, e)
	if e.Duration > it.latency {
		it.latency = e.Duration
	}

	idx := -1
	for i, cur := range l.top {
		if cur.id == it.id {
			idx = i
			break
		}
	}
	if idx < 0 && len(l.top) >= maxInteractions && it.latency <= l.top[len(l.top)-1].latency {
		return
	}
	if idx >= 0 {
		l.top = append(l.top[:idx], l.top[idx+1:]...)
	}

	// insert keeping latency order, stable for equal latencies
	pos := len(l.top)
	for i, cur := range l.top {
		if it.latency > cur.latency {
			pos = i
			break
		}
	}
	l.top = append(l.top, nil)
	copy(l.top[pos+1:], l.top[pos:])
	l.top[pos] = it
	if len(l.top) > maxInteractions {
		l.top = l.top[:maxInteractions]
	}
}

// hasFirstInput reports whether e is already part of a retained interaction.
func (l *interactions) hasFirstInput(e Entry) bool {
	for _, it := range l.top {
		for _, x := range it.entries {
			if x.EntryType == EntryFirstInput && x.StartTime == e.StartTime && x.Duration == e.Duration {
				return true
			}
		}
	}
	return false
}

// dropAfter discards interactions that started at or after t.
func (l *interactions) dropAfter(t float64) {
	kept := l.top[:0]
	for _, it := range l.top {
		if it.entries[0].StartTime < t {
			kept = append(kept, it)
		}
	}
	l.top = kept
}

// p98 returns the interaction approximating the 98th percentile given
// total interactions on the page.
func (l *interactions) p98(total int) *interaction {
	if len(l.top) == 0 {
		return nil
	}
	i := total / 50
	if i > len(l.top)-1 {
		i = len(l.top) - 1
	}
	return l.top[i]
}
