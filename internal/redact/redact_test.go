package redact

import "testing"

func TestScrubQuery(t *testing.T) {
	r := New(Config{})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no query", "https://example.com/a", "https://example.com/a"},
		{"drops unknown", "https://example.com/a?email=x@y.com&ref=1", "https://example.com/a"},
		{"keeps utm prefix", "/p?utm_source=news&session=abc&UTM_Medium=mail", "/p?utm_source=news&UTM_Medium=mail"},
		{"keeps click ids", "/p?gclid=123&fbclid=9", "/p?gclid=123"},
		{"keeps fragment", "/p?x=1&gbraid=2#top", "/p?gbraid=2#top"},
		{"bad escape drops query", "/p?utm_source=%zz", "/p"},
		{"empty query", "/p?", "/p"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.ScrubQuery(tt.in); got != tt.want {
				t.Errorf("ScrubQuery(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCustomAllowList(t *testing.T) {
	r := New(Config{AllowedQueryParams: []string{"page", "sort_*"}})

	got := r.ScrubQuery("/list?page=2&sort_by=name&utm_source=x")
	if want := "/list?page=2&sort_by=name"; got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestRedactBasic(t *testing.T) {
	r := New(Config{Enabled: true, Level: LevelBasic})

	tests := []struct {
		in   string
		want string
	}{
		{"contact jane.doe+news@example.co.uk today", "contact [REDACTED_EMAIL] today"},
		{"first_name=Jane&city=Paris", "first_name=[REDACTED_NAME]&city=Paris"},
		{"password=hunter2&x=1", "password=[REDACTED_PWD]&x=1"},
		{"call 555-123-4567", "call 555-123-4567"},
	}

	for _, tt := range tests {
		if got := r.Redact(tt.in, LevelBasic); got != tt.want {
			t.Errorf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactStrict(t *testing.T) {
	r := New(Config{Enabled: true, Level: LevelStrict})

	tests := []struct {
		in   string
		want string
	}{
		{"call 555-123-4567", "call [REDACTED_PHONE]"},
		{"zip_code=90210", "zip_code=[REDACTED_ZIP]"},
		{"address2=1 Main St&ok=1", "address2=[REDACTED_ADDR]&ok=1"},
		{"dob=1990-01-31", "dob=[REDACTED_DOB]"},
		{"surname=Doe", "surname=[REDACTED_NAME]"},
	}

	for _, tt := range tests {
		if got := r.Redact(tt.in, LevelStrict); got != tt.want {
			t.Errorf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDisabledRedactionStillScrubsURLs(t *testing.T) {
	r := New(Config{Enabled: false})

	if got := r.Text("jane@example.com"); got != "jane@example.com" {
		t.Errorf("Expected text untouched, got %q", got)
	}
	if got := r.URL("/a?utm_source=jane@example.com&secret=1"); got != "/a?utm_source=jane%40example.com" {
		t.Errorf("Expected scrubbed URL, got %q", got)
	}
}

func TestURLRedactsAllowedValues(t *testing.T) {
	r := New(Config{Enabled: true})

	got := r.URL("/a?utm_content=jane@example.com")
	if want := "/a?utm_content=%5BREDACTED_EMAIL%5D"; got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel("STRICT"); err != nil || l != LevelStrict {
		t.Errorf("Expected strict, got %q (%v)", l, err)
	}
	if l, err := ParseLevel(""); err != nil || l != LevelBasic {
		t.Errorf("Expected basic default, got %q (%v)", l, err)
	}
	if _, err := ParseLevel("paranoid"); err == nil {
		t.Error("Expected error for unknown level")
	}
}
