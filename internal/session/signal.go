package session

import (
	"encoding/json"

	"github.com/goodtune/beacon/internal/forms"
	"github.com/goodtune/beacon/internal/links"
	"github.com/goodtune/beacon/internal/scroll"
	"github.com/goodtune/beacon/internal/twitter"
	"github.com/goodtune/beacon/internal/vitals"
)

// Signal kinds accepted by Page.Dispatch.
const (
	KindMedia       = "media"
	KindHistory     = "history"
	KindScroll      = "scroll"
	KindPerformance = "performance"
	KindVisibility  = "visibility"
	KindPageShow    = "pageshow"
	KindSDKReady    = "sdk_ready"
	KindLink        = "link"
	KindForm        = "form"
	KindTwitter     = "twitter"
)

var knownKinds = map[string]bool{
	KindMedia:       true,
	KindHistory:     true,
	KindScroll:      true,
	KindPerformance: true,
	KindVisibility:  true,
	KindPageShow:    true,
	KindSDKReady:    true,
	KindLink:        true,
	KindForm:        true,
	KindTwitter:     true,
}

// metricKind bounds the label values used for signal metrics.
func metricKind(kind string) string {
	if knownKinds[kind] {
		return kind
	}
	return "unknown"
}

// Signal is one raw browser observation forwarded by the page shim. Data
// holds the kind-specific payload.
type Signal struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewSignal encodes data as a Signal of the given kind.
func NewSignal(kind string, data any) (Signal, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Signal{}, err
	}
	return Signal{Kind: kind, Data: raw}, nil
}

// PageInit describes a document when it first reports in.
type PageInit struct {
	// ID is generated when empty.
	ID       string `json:"page_id,omitempty"`
	Href     string `json:"href"`
	Title    string `json:"title,omitempty"`
	Referrer string `json:"referrer,omitempty"`
	// Now is performance.now() at the time the page reported, in ms.
	Now       float64        `json:"now"`
	Hidden    bool           `json:"hidden,omitempty"`
	ScrollEnd bool           `json:"scrollend,omitempty"`
	Viewport  scroll.Metrics `json:"viewport"`
	// SDKs lists provider SDKs already loaded in the page.
	SDKs []string `json:"sdks,omitempty"`
	// Navigation is the page's navigation timing entry, when available.
	Navigation *vitals.Entry `json:"navigation,omitempty"`
}

// MediaSignal reports a player event. Type is "attach", "detach" or the
// provider's native event name.
type MediaSignal struct {
	Provider string      `json:"provider"`
	Entity   string      `json:"entity"`
	Type     string      `json:"type"`
	State    PlayerState `json:"state"`
}

// PlayerState is a snapshot of the remote player taken when the event
// fired. Infinite durations cannot be encoded in JSON, so live content sets
// Live instead.
type PlayerState struct {
	Tag          string            `json:"tag,omitempty"`
	CurrentTime  float64           `json:"current_time"`
	Duration     float64           `json:"duration"`
	Live         bool              `json:"live,omitempty"`
	PlaybackRate float64           `json:"playback_rate,omitempty"`
	Muted        bool              `json:"muted,omitempty"`
	Volume       *float64          `json:"volume,omitempty"`
	Ended        bool              `json:"ended,omitempty"`
	Src          string            `json:"src,omitempty"`
	ID           string            `json:"id,omitempty"`
	Title        string            `json:"title,omitempty"`
	URL          string            `json:"url,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`

	// PlayerState is the YouTube state code carried by onStateChange.
	PlayerState int `json:"player_state,omitempty"`
	// Offset is the JW Player seek target.
	Offset float64 `json:"offset,omitempty"`
	Index  int     `json:"index,omitempty"`

	ErrorCode    int    `json:"error_code,omitempty"`
	ErrorName    string `json:"error_name,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Unavailable marks a player whose API calls failed in the browser.
	Unavailable bool `json:"unavailable,omitempty"`
}

// HistorySignal reports a history mutation. Href may be relative.
type HistorySignal struct {
	Kind  string `json:"kind"`
	Href  string `json:"href,omitempty"`
	Path  string `json:"path,omitempty"`
	Title string `json:"title,omitempty"`
}

// ScrollSignal reports the scroll position.
type ScrollSignal struct {
	scroll.Metrics
	ScrollEnd bool `json:"scrollend,omitempty"`
}

// PerformanceSignal carries PerformanceObserver entries.
type PerformanceSignal struct {
	EntryType        string         `json:"entry_type"`
	Entries          []vitals.Entry `json:"entries"`
	InteractionCount *int           `json:"interaction_count,omitempty"`
}

// VisibilitySignal reports a visibilitychange. Time is in ms since the
// time origin; zero means now.
type VisibilitySignal struct {
	State string  `json:"state"`
	Time  float64 `json:"time,omitempty"`
}

// PageShowSignal reports a pageshow event.
type PageShowSignal struct {
	Persisted bool    `json:"persisted"`
	Time      float64 `json:"time,omitempty"`
}

// SDKReadySignal reports that a provider SDK finished loading.
type SDKReadySignal struct {
	Provider string `json:"provider"`
}

// LinkSignal reports a mousedown or keydown that landed on a link.
type LinkSignal struct {
	Type   string `json:"type"`
	Button int    `json:"button,omitempty"`
	Key    string `json:"key,omitempty"`
	links.Link
}

// FormSignal reports a focusin or submit inside a form.
type FormSignal struct {
	Type string `json:"type"`
	forms.Form
}

// TwitterSignal carries a Twitter widgets SDK event.
type TwitterSignal = twitter.Event
