// Package runid generates the identifiers under which task execution reports
// are archived.
//
// A run ID looks like run_20261018T093015Z_6f2c9a1b: the UTC time the run
// started followed by 8 random hex characters.
package runid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	prefix = "run_"
	layout = "20060102T150405Z"
	nonce  = 4
)

// New returns a run ID stamped with the current time.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a run ID stamped with t.
func NewAt(t time.Time) string {
	b := make([]byte, nonce)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("runid: crypto/rand: %v", err))
	}
	return prefix + t.UTC().Format(layout) + "_" + hex.EncodeToString(b)
}

// Parse returns the time encoded in a run ID.
func Parse(id string) (time.Time, error) {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return time.Time{}, fmt.Errorf("runid: %q does not start with %q", id, prefix)
	}
	stamp, random, ok := strings.Cut(rest, "_")
	if !ok {
		return time.Time{}, fmt.Errorf("runid: %q has no random suffix", id)
	}
	ts, err := time.Parse(layout, stamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("runid: timestamp of %q: %w", id, err)
	}
	if len(random) != nonce*2 {
		return time.Time{}, fmt.Errorf("runid: suffix of %q must be %d hex characters", id, nonce*2)
	}
	if _, err := hex.DecodeString(random); err != nil {
		return time.Time{}, fmt.Errorf("runid: suffix of %q: %w", id, err)
	}
	return ts, nil
}

// IsValid reports whether id is a well-formed run ID.
func IsValid(id string) bool {
	_, err := Parse(id)
	return err == nil
}
