package session

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

// RepeatConfig describes interval bells repeated across the tail of a
// session.
type RepeatConfig struct {
	Enabled bool
	// Count is the number of repeat bells.
	Count int
	// BeforeEnd is the window at the end of the session across which
	// the repeats are spread.
	BeforeEnd time.Duration
}

// Valid reports whether the config can produce repeats for a session
// of the given total duration. Callers should validate and warn before
// starting; BuildSchedule itself degrades silently to the completion
// bell only.
func (c RepeatConfig) Valid(total time.Duration) bool {
	return c.Enabled && c.Count > 0 && c.BeforeEnd > 0 && c.BeforeEnd < total
}

// BuildSchedule derives the bell offsets for a session: the repeats
// (when configured and valid) plus the completion bell at exactly
// total. Repeats are evenly spaced across the last BeforeEnd of the
// session so that the final repeat lands exactly at the end, where it
// merges with the completion bell rather than doubling it.
//
// The result is sorted, deduplicated, and always ends with total.
func BuildSchedule(total time.Duration, cfg RepeatConfig) []time.Duration {
	offsets := []time.Duration{total}
	if cfg.Valid(total) {
		spacing := cfg.BeforeEnd / time.Duration(max(cfg.Count-1, 1))
		for i := range cfg.Count {
			offsets = append(offsets, total-cfg.BeforeEnd+time.Duration(i)*spacing)
		}
	}
	slices.Sort(offsets)
	return lo.Uniq(offsets)
}
