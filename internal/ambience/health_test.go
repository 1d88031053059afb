package ambience

import (
	"context"
	"errors"
	"testing"

	"github.com/stillmind/stillmind/internal/audio"
)

func TestCheckHealth_HealthyIsNoOp(t *testing.T) {
	p, engine := newTestPlayer(t)
	p.Play(context.Background(), "rain")
	handle := engine.LastHandle()

	if err := p.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth() error: %v", err)
	}
	if got := engine.LoadCalls(); len(got) != 1 {
		t.Errorf("loads = %v, want 1", got)
	}
	if got := handle.Seeks(); len(got) != 0 {
		t.Errorf("seeks = %v, want none", got)
	}
}

func TestCheckHealth_ResumesSilentlyStoppedInstance(t *testing.T) {
	p, engine := newTestPlayer(t)
	p.Play(context.Background(), "rain")
	handle := engine.LastHandle()

	// The host paused the instance without telling anyone.
	handle.MarkStalled()

	if err := p.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth() error: %v", err)
	}

	if handle.State() != audio.Playing {
		t.Errorf("State() = %v, want Playing", handle.State())
	}
	seeks := handle.Seeks()
	if len(seeks) != 1 || seeks[0] != 0 {
		t.Errorf("Seeks() = %v, want [0] (cheap repair restarts the cycle)", seeks)
	}
	if got := engine.LoadCalls(); len(got) != 1 {
		t.Errorf("loads = %v, want no recreation for the cheap path", got)
	}
}

func TestCheckHealth_RecreatesGoneInstance(t *testing.T) {
	p, engine := newTestPlayer(t)
	p.Play(context.Background(), "rain")
	handle := engine.LastHandle()
	waitFor(t, "fade-in never finished", func() bool { return handle.Volume() == 1 })

	handle.MarkGone()

	if err := p.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth() error: %v", err)
	}

	replacement := engine.LastHandle()
	if replacement == handle {
		t.Fatal("gone instance not recreated")
	}
	if replacement.State() != audio.Playing {
		t.Errorf("replacement State() = %v, want Playing", replacement.State())
	}
	if replacement.Volume() != 1 {
		t.Errorf("replacement Volume() = %v, want the old instance's level", replacement.Volume())
	}
	waitFor(t, "gone instance never unloaded", handle.Closed)
	if p.Current() != "rain" {
		t.Errorf("Current() = %q, want rain", p.Current())
	}
}

func TestCheckHealth_UnrecoverableAfterTwoFailedRecreations(t *testing.T) {
	p, engine := newTestPlayer(t)
	p.Play(context.Background(), "rain")
	handle := engine.LastHandle()

	handle.MarkGone()
	engine.FailLoad(rainURI, errors.New("device lost"))

	if err := p.CheckHealth(context.Background()); err != nil {
		t.Fatalf("first CheckHealth() error: %v, want nil (one retry left)", err)
	}
	err := p.CheckHealth(context.Background())
	if !errors.Is(err, ErrUnrecoverable) {
		t.Errorf("second CheckHealth() error = %v, want ErrUnrecoverable", err)
	}
}

func TestCheckHealth_SuccessResetsFailureCount(t *testing.T) {
	p, engine := newTestPlayer(t)
	p.Play(context.Background(), "rain")
	handle := engine.LastHandle()

	handle.MarkGone()
	engine.FailLoad(rainURI, errors.New("device lost"))
	if err := p.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth() error: %v", err)
	}

	// The device comes back: recreation succeeds and the failure count
	// starts over.
	engine.FailLoad(rainURI, nil)
	if err := p.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth() after recovery error: %v", err)
	}

	replacement := engine.LastHandle()
	replacement.MarkGone()
	engine.FailLoad(rainURI, errors.New("device lost again"))
	if err := p.CheckHealth(context.Background()); err != nil {
		t.Errorf("CheckHealth() = %v, want nil (failure count was reset)", err)
	}
}

func TestCheckHealth_IgnoresPausedInstance(t *testing.T) {
	p, engine := newTestPlayer(t)
	p.Play(context.Background(), "rain")
	handle := engine.LastHandle()

	p.Pause()
	if err := p.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth() error: %v", err)
	}
	if got := handle.Seeks(); len(got) != 0 {
		t.Errorf("seeks = %v, want none while paused", got)
	}
}
