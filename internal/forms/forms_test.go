package forms

import (
	"strings"
	"testing"

	"github.com/goodtune/beacon/internal/event"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

const page = "https://example.com/contact?ref=nav"

func newTracker(scrub func(string) string) (*Tracker, *event.Recorder) {
	rec := &event.Recorder{}
	return New(Config{Sink: rec, Scrub: scrub, Logger: zerolog.Nop()}), rec
}

func TestFormStartOncePerForm(t *testing.T) {
	tr, rec := newTracker(nil)
	contact := Form{Key: "form-0", ID: "contact", Action: "https://example.com/send", Method: "post"}
	search := Form{Key: "form-1", Name: "search"}

	tr.Focus(page, contact)
	tr.Focus(page, contact)
	tr.Focus(page, search)
	tr.Submit(page, contact)
	tr.Submit(page, contact)

	want := []string{EventStart, EventStart, EventSubmit, EventSubmit}
	if diff := cmp.Diff(want, rec.Names()); diff != "" {
		t.Errorf("Event sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestFormStartResetOnNavigation(t *testing.T) {
	tr, rec := newTracker(nil)
	f := Form{ID: "signup"}

	tr.Focus(page, f)
	tr.Reset()
	tr.Focus(page, f)

	if got := len(rec.Named(EventStart)); got != 2 {
		t.Errorf("Expected form_start again after reset, got %d", got)
	}
}

func TestFormParams(t *testing.T) {
	tests := []struct {
		name string
		form Form
		want event.Params
	}{
		{
			name: "full",
			form: Form{ID: "contact", Name: "contact_form", Action: "https://example.com/send?token=abc", Method: "post"},
			want: event.Params{
				"form_id":          "contact",
				"form_name":        "contact_form",
				"form_action":      "https://example.com/send?token=abc",
				"form_method":      "post",
				"form_destination": "https://example.com/send",
			},
		},
		{
			name: "name only",
			form: Form{Name: "newsletter"},
			want: event.Params{
				"form_id":          "newsletter",
				"form_name":        "newsletter",
				"form_action":      "N/A",
				"form_method":      "N/A",
				"form_destination": "https://example.com/contact",
			},
		},
		{
			name: "anonymous",
			form: Form{Key: "form-3"},
			want: event.Params{
				"form_id":          "N/A",
				"form_name":        "N/A",
				"form_action":      "N/A",
				"form_method":      "N/A",
				"form_destination": "https://example.com/contact",
			},
		},
	}

	dropQuery := func(s string) string {
		if i := strings.IndexByte(s, '?'); i >= 0 {
			return s[:i]
		}
		return s
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, rec := newTracker(dropQuery)
			tr.Submit(page, tt.form)
			if diff := cmp.Diff(tt.want, rec.Events()[0].Params); diff != "" {
				t.Errorf("Params mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
