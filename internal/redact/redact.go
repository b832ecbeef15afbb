// Package redact scrubs personal data out of outgoing event parameters.
// Patterns are RE2 (Go's regexp), so matching stays linear in input size.
package redact

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Level selects how aggressive text redaction is.
type Level string

const (
	LevelNone   Level = "none"
	LevelBasic  Level = "basic"
	LevelStrict Level = "strict"
)

// DefaultAllowedQueryParams are the campaign and click-id parameters that
// survive URL scrubbing. A trailing '*' matches by prefix.
var DefaultAllowedQueryParams = []string{"utm_*", "gclid", "dclid", "_gl", "gclsrc", "wbraid", "gbraid"}

type pattern struct {
	name  string
	regex *regexp.Regexp
	// param patterns keep the captured key and replace only the value
	param bool
}

func (p pattern) apply(s string) string {
	if p.param {
		return p.regex.ReplaceAllString(s, "${1}=[REDACTED_"+p.name+"]")
	}
	return p.regex.ReplaceAllLiteralString(s, "[REDACTED_"+p.name+"]")
}

var (
	emailPattern = pattern{name: "EMAIL", regex: regexp.MustCompile(`(?i)[a-z0-9._+-]+@[a-z0-9.-]+\.[a-z]{2,}`)}

	patternsByLevel = map[Level][]pattern{
		LevelBasic: {
			emailPattern,
			{name: "NAME", param: true, regex: regexp.MustCompile(`(?i)((?:first|last|full|user)[_-]?name)=[^&]+`)},
			{name: "PWD", param: true, regex: regexp.MustCompile(`(?i)(password|passwd|pwd)=[^&]+`)},
		},
		LevelStrict: {
			emailPattern,
			{name: "PHONE", regex: regexp.MustCompile(`(?:(?:\+|00)\d{1,3}[\s.-]?)?(?:\(\d{3}\)|\d{3})[\s.-]?\d{3}[\s.-]?\d{4}`)},
			{name: "SSN", regex: regexp.MustCompile(`\d{3}[\s.-]?\d{2}[\s.-]?\d{4}`)},
			{name: "NAME", param: true, regex: regexp.MustCompile(`(?i)((?:first|last|middle|full|user|sur)[_-]?name)=[^&]+`)},
			{name: "PWD", param: true, regex: regexp.MustCompile(`(?i)((?:confirm[_-]?)?password|passwd|pwd)=[^&]+`)},
			{name: "ADDR", param: true, regex: regexp.MustCompile(`(?i)((?:address|street|addr)[1-2]?)=[^&]+`)},
			{name: "ZIP", param: true, regex: regexp.MustCompile(`(?i)((?:zip|postal)[_-]?code)=[^&]+`)},
			{name: "DOB", param: true, regex: regexp.MustCompile(`(?i)(dob|birth[_-]?date)=(?:\d{1,4}[-/.\s]){2}\d{1,4}`)},
		},
	}
)

// ParseLevel validates a configured level name.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelNone, LevelBasic, LevelStrict:
		return l, nil
	case "":
		return LevelBasic, nil
	default:
		return "", fmt.Errorf("unknown redaction level %q", s)
	}
}

// Config controls a Redactor.
type Config struct {
	// Enabled turns on pattern redaction. Query parameter scrubbing is
	// always applied to URLs.
	Enabled            bool
	Level              Level
	AllowedQueryParams []string
}

// Redactor implements event.Sanitizer. It is safe for concurrent use.
type Redactor struct {
	enabled bool
	level   Level
	allowed []string
}

// New builds a Redactor.
func New(cfg Config) *Redactor {
	allowed := cfg.AllowedQueryParams
	if allowed == nil {
		allowed = DefaultAllowedQueryParams
	}
	lower := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			lower = append(lower, a)
		}
	}
	level := cfg.Level
	if level == "" {
		level = LevelBasic
	}
	return &Redactor{enabled: cfg.Enabled, level: level, allowed: lower}
}

// Redact applies the patterns for level to text. It is a no-op when
// redaction is disabled.
func (r *Redactor) Redact(text string, level Level) string {
	if !r.enabled || level == LevelNone {
		return text
	}
	for _, p := range patternsByLevel[level] {
		text = p.apply(text)
	}
	return text
}

// Text redacts free text at the basic level.
func (r *Redactor) Text(raw string) string {
	return r.Redact(raw, LevelBasic)
}

// URL drops every query parameter that is not allow-listed, then redacts the
// result at the configured level.
func (r *Redactor) URL(raw string) string {
	return r.Redact(r.ScrubQuery(raw), r.level)
}

// ScrubQuery keeps only allow-listed query parameters, preserving their
// order. A query that cannot be decoded is dropped entirely.
func (r *Redactor) ScrubQuery(raw string) string {
	q := strings.IndexByte(raw, '?')
	if q < 0 {
		return raw
	}
	base, rest := raw[:q], raw[q+1:]

	fragment := ""
	if h := strings.IndexByte(rest, '#'); h >= 0 {
		rest, fragment = rest[:h], rest[h:]
	}

	var kept []string
	for _, pair := range strings.Split(rest, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			return base + fragment
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return base + fragment
		}
		if !r.allowedParam(k) {
			continue
		}
		v = r.Redact(v, r.level)
		kept = append(kept, url.QueryEscape(k)+"="+url.QueryEscape(v))
	}

	if len(kept) == 0 {
		return base + fragment
	}
	return base + "?" + strings.Join(kept, "&") + fragment
}

func (r *Redactor) allowedParam(key string) bool {
	k := strings.ToLower(key)
	for _, a := range r.allowed {
		if prefix, ok := strings.CutSuffix(a, "*"); ok {
			if strings.HasPrefix(k, prefix) {
				return true
			}
			continue
		}
		if k == a {
			return true
		}
	}
	return false
}
