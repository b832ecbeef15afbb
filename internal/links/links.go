// Package links classifies link interactions into download, contact,
// outbound and navigation click events.
package links

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/goodtune/beacon/internal/event"
	"github.com/rs/zerolog"
)

// Emitted events.
const (
	EventClick           = "click"
	EventNavigationClick = "navigation_click"
	EventFileDownload    = "file_download"
	EventEmailClick      = "email_click"
	EventTelephoneClick  = "telephone_click"
	EventError           = "analytics_error"
)

// Interaction types.
const (
	InteractionClick = "click"
	InteractionEnter = "enter_key"
)

// notAvailable fills link attributes the element does not carry.
const notAvailable = "N/A"

// DefaultDownloadExtensions are the file extensions reported as downloads
// when none are configured.
var DefaultDownloadExtensions = []string{
	"pdf", "zip", "doc", "docx", "xls", "xlsx", "xlsm", "ppt", "pptx", "exe",
	"js", "txt", "csv", "dxf", "dwgd", "rfa", "rvt", "dwfx", "dwg", "wmv",
	"jpg", "msi", "7z", "gz", "tgz", "tar", "wma", "mov", "avi", "mp3", "mp4",
	"mobi", "epub", "swf", "rar",
}

var whitespace = regexp.MustCompile(`\s+`)

// Link is the anchor element an interaction landed on. Href is absolute.
type Link struct {
	Href    string `json:"href"`
	Text    string `json:"text,omitempty"`
	ID      string `json:"id,omitempty"`
	Classes string `json:"classes,omitempty"`
}

// Config configures a Tracker.
type Config struct {
	Sink event.Sink
	// DownloadExtensions defaults to DefaultDownloadExtensions.
	DownloadExtensions []string
	Logger             zerolog.Logger
}

// Tracker reports primary clicks and Enter presses on links.
type Tracker struct {
	sink       event.Sink
	extensions map[string]bool
	logger     zerolog.Logger
}

// New creates a Tracker.
func New(cfg Config) *Tracker {
	exts := cfg.DownloadExtensions
	if len(exts) == 0 {
		exts = DefaultDownloadExtensions
	}
	t := &Tracker{
		sink:       cfg.Sink,
		extensions: make(map[string]bool, len(exts)),
		logger:     cfg.Logger.With().Str("tracker", "links").Logger(),
	}
	for _, ext := range exts {
		t.extensions[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return t
}

// Interaction maps a raw DOM event to an interaction type. Only primary
// mouse buttons and the Enter key count.
func Interaction(eventType string, button int, key string) (string, bool) {
	switch {
	case eventType == "mousedown" && button == 0:
		return InteractionClick, true
	case eventType == "keydown" && key == "Enter":
		return InteractionEnter, true
	}
	return "", false
}

// Interact reports an interaction with l on the page at pageHref.
func (t *Tracker) Interact(pageHref string, l Link, interaction string) {
	if l.Href == "" {
		return
	}
	name, params, err := t.classify(siteDomain(pageHref), l, interaction)
	if err != nil {
		t.logger.Debug().Err(err).Str("href", l.Href).Msg("Unparseable link")
		t.sink.Emit(EventError, event.Params{
			"error_type":    "link_tracking",
			"error_message": err.Error(),
			"link_href":     l.Href,
		})
		return
	}
	t.sink.Emit(name, params)
}

func (t *Tracker) classify(domain string, l Link, interaction string) (string, event.Params, error) {
	params := event.Params{
		"link_url":         l.Href,
		"link_text":        whitespace.ReplaceAllString(strings.TrimSpace(l.Text), " "),
		"link_id":          orNotAvailable(l.ID),
		"link_classes":     orNotAvailable(l.Classes),
		"interaction_type": interaction,
		"outbound":         false,
	}

	u, err := url.Parse(l.Href)
	if err != nil {
		return "", nil, err
	}
	scheme := strings.ToLower(u.Scheme)

	switch {
	case scheme == "mailto":
		mailDomain := ""
		if i := strings.Index(l.Href, "@"); i >= 0 {
			mailDomain = l.Href[i+1:]
		}
		params["link_domain"] = mailDomain
		return EventEmailClick, params, nil

	case scheme == "tel":
		params["link_url"] = l.Href[len("tel:"):]
		return EventTelephoneClick, params, nil

	case strings.HasPrefix(scheme, "http"):
		name := EventClick
		host := stripWWW(u.Hostname())
		params["link_domain"] = host
		if ext := t.extension(u.Path); ext != "" {
			name = EventFileDownload
			params["file_extension"] = ext
			params["file_name"] = path.Base(u.Path)
		}
		if host != domain && !strings.HasSuffix(host, "."+domain) {
			params["outbound"] = true
		} else if name == EventClick {
			name = EventNavigationClick
		}
		return name, params, nil
	}

	params["link_domain"] = notAvailable
	params["outbound"] = true
	return EventClick, params, nil
}

// extension returns the lower-cased download extension of p, if any.
func (t *Tracker) extension(p string) string {
	i := strings.LastIndexByte(p, '.')
	if i < 0 || strings.ContainsRune(p[i:], '/') {
		return ""
	}
	ext := strings.ToLower(p[i+1:])
	if !t.extensions[ext] {
		return ""
	}
	return ext
}

// siteDomain is the host of pageHref without a leading www.
func siteDomain(pageHref string) string {
	u, err := url.Parse(pageHref)
	if err != nil {
		return ""
	}
	return stripWWW(u.Hostname())
}

func stripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func orNotAvailable(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
