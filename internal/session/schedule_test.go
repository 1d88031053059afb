package session

import (
	"slices"
	"testing"
	"time"
)

func TestBuildSchedule_NoRepeats(t *testing.T) {
	got := BuildSchedule(20*time.Minute, RepeatConfig{})

	want := []time.Duration{20 * time.Minute}
	if !slices.Equal(got, want) {
		t.Errorf("BuildSchedule() = %v, want %v", got, want)
	}
}

func TestBuildSchedule_SpreadsRepeatsAcrossWindow(t *testing.T) {
	got := BuildSchedule(20*time.Minute, RepeatConfig{
		Enabled:   true,
		Count:     3,
		BeforeEnd: 3 * time.Minute,
	})

	// 3 bells across the last 3 minutes: 17:00, 18:30, 20:00. The last
	// one coincides with the completion bell and is deduplicated.
	want := []time.Duration{
		17 * time.Minute,
		18*time.Minute + 30*time.Second,
		20 * time.Minute,
	}
	if !slices.Equal(got, want) {
		t.Errorf("BuildSchedule() = %v, want %v", got, want)
	}
}

func TestBuildSchedule_SingleRepeat(t *testing.T) {
	got := BuildSchedule(10*time.Minute, RepeatConfig{
		Enabled:   true,
		Count:     1,
		BeforeEnd: 2 * time.Minute,
	})

	want := []time.Duration{8 * time.Minute, 10 * time.Minute}
	if !slices.Equal(got, want) {
		t.Errorf("BuildSchedule() = %v, want %v", got, want)
	}
}

func TestBuildSchedule_CountMatchesConfigWhenValid(t *testing.T) {
	for count := 1; count <= 6; count++ {
		cfg := RepeatConfig{Enabled: true, Count: count, BeforeEnd: 3 * time.Minute}
		got := BuildSchedule(20*time.Minute, cfg)

		// For two or more repeats the last one lands at the session end
		// and merges with the completion bell. A single repeat sits at
		// the start of the window, so the completion bell stays separate.
		want := count
		if count == 1 {
			want = 2
		}
		if len(got) != want {
			t.Errorf("count=%d: len = %d, want %d (%v)", count, len(got), want, got)
		}
	}
}

func TestBuildSchedule_DegradesWhenWindowInvalid(t *testing.T) {
	cases := []struct {
		name string
		cfg  RepeatConfig
	}{
		{"window equals duration", RepeatConfig{Enabled: true, Count: 3, BeforeEnd: 10 * time.Minute}},
		{"window exceeds duration", RepeatConfig{Enabled: true, Count: 3, BeforeEnd: time.Hour}},
		{"zero count", RepeatConfig{Enabled: true, Count: 0, BeforeEnd: 3 * time.Minute}},
		{"zero window", RepeatConfig{Enabled: true, Count: 3, BeforeEnd: 0}},
		{"disabled", RepeatConfig{Enabled: false, Count: 3, BeforeEnd: 3 * time.Minute}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := BuildSchedule(10*time.Minute, tc.cfg)
			want := []time.Duration{10 * time.Minute}
			if !slices.Equal(got, want) {
				t.Errorf("BuildSchedule() = %v, want completion bell only", got)
			}
		})
	}
}

func TestBuildSchedule_SortedAndEndsAtTotal(t *testing.T) {
	got := BuildSchedule(45*time.Minute, RepeatConfig{
		Enabled:   true,
		Count:     5,
		BeforeEnd: 10 * time.Minute,
	})

	if !slices.IsSorted(got) {
		t.Errorf("schedule not sorted: %v", got)
	}
	if got[len(got)-1] != 45*time.Minute {
		t.Errorf("last offset = %v, want total", got[len(got)-1])
	}
}

func TestRepeatConfig_Valid(t *testing.T) {
	valid := RepeatConfig{Enabled: true, Count: 2, BeforeEnd: time.Minute}
	if !valid.Valid(10 * time.Minute) {
		t.Error("Valid() = false for a valid config")
	}
	if valid.Valid(time.Minute) {
		t.Error("Valid() = true when window equals duration")
	}
}
