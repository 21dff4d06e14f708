package runid

import (
	"regexp"
	"testing"
	"time"
)

var runIDPattern = regexp.MustCompile(`^run_\d{8}T\d{6}Z_[0-9a-f]{8}$`)

func TestNew(t *testing.T) {
	id := New()
	if !runIDPattern.MatchString(id) {
		t.Fatalf("New() = %q, want run_<timestamp>_<8hex>", id)
	}

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := New()
		if seen[id] {
			t.Fatalf("duplicate run ID %q", id)
		}
		seen[id] = true
	}
}

func TestNewAtRoundTrip(t *testing.T) {
	at := time.Date(2026, 10, 18, 9, 30, 15, 0, time.FixedZone("CEST", 2*3600))
	id := NewAt(at)

	got, err := Parse(id)
	if err != nil {
		t.Fatalf("Parse(%q): %v", id, err)
	}
	if !got.Equal(at) {
		t.Errorf("Parse(%q) = %v, want %v", id, got, at)
	}
	if want := "run_20261018T073015Z_"; id[:len(want)] != want {
		t.Errorf("NewAt() = %q, want prefix %q", id, want)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"empty", ""},
		{"wrong prefix", "dep_20261018T073015Z_6f2c9a1b"},
		{"no suffix", "run_20261018T073015Z"},
		{"bad timestamp", "run_yesterday_6f2c9a1b"},
		{"short suffix", "run_20261018T073015Z_6f2c"},
		{"non hex suffix", "run_20261018T073015Z_zzzzzzzz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.id); err == nil {
				t.Errorf("Parse(%q) returned nil error", tt.id)
			}
			if IsValid(tt.id) {
				t.Errorf("IsValid(%q) = true", tt.id)
			}
		})
	}
}
