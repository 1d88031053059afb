package audio

import (
	"context"
	"testing"
	"time"
)

func fadeHandle(t *testing.T) *MockHandle {
	t.Helper()
	engine := NewMockEngine()
	h, err := engine.LoadSilence(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("LoadSilence() error: %v", err)
	}
	return h.(*MockHandle)
}

func TestFade_InstantWhenDurationZero(t *testing.T) {
	h := fadeHandle(t)

	Fade(context.Background(), h, 1, 0, nil)

	if h.Volume() != 1 {
		t.Errorf("Volume() = %v, want 1", h.Volume())
	}
}

func TestFade_ReachesTarget(t *testing.T) {
	h := fadeHandle(t)

	Fade(context.Background(), h, 1, 100*time.Millisecond, nil)

	if h.Volume() != 1 {
		t.Errorf("Volume() = %v, want 1", h.Volume())
	}
}

func TestFade_RampsDownToo(t *testing.T) {
	h := fadeHandle(t)
	h.SetVolume(1)

	Fade(context.Background(), h, 0, 100*time.Millisecond, nil)

	if h.Volume() != 0 {
		t.Errorf("Volume() = %v, want 0", h.Volume())
	}
}

func TestFade_AbandonsWhenSuperseded(t *testing.T) {
	h := fadeHandle(t)

	Fade(context.Background(), h, 1, 100*time.Millisecond, func() bool { return false })

	if h.Volume() != 0 {
		t.Errorf("Volume() = %v, want 0 (fade abandoned, volume untouched)", h.Volume())
	}
}

func TestFade_StopsOnContextCancel(t *testing.T) {
	h := fadeHandle(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	Fade(ctx, h, 1, time.Second, nil)

	if h.Volume() == 1 {
		t.Error("fade ran to completion despite cancelled context")
	}
}
