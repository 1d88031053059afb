package bell

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stillmind/stillmind/internal/audio"
	"github.com/stillmind/stillmind/internal/source"
)

const bowlURI = "file:///sounds/bowl.mp3"

func newTestPlayer(t *testing.T) (*Player, *audio.MockEngine) {
	t.Helper()
	engine := audio.NewMockEngine()
	resolver := source.NewStatic()
	resolver.Add(source.Bell, "bowl", source.LocalFile{Path: "/sounds/bowl.mp3"})

	cfg := Config{FadeIn: 0, DefaultDuration: 5 * time.Second}
	p := New(engine, resolver, cfg, nil)
	t.Cleanup(p.StopAll)
	return p, engine
}

func TestPlayer_PlayFiresAndForgets(t *testing.T) {
	p, engine := newTestPlayer(t)

	if err := p.Play(context.Background(), "bowl"); err != nil {
		t.Fatalf("Play() error: %v", err)
	}

	handle := engine.LastHandle()
	if handle.State() != audio.Playing {
		t.Errorf("State() = %v, want Playing", handle.State())
	}
	if p.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", p.ActiveCount())
	}

	handle.FinishNaturally()
	if !handle.Closed() {
		t.Error("bell not unloaded after natural completion")
	}
	if p.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0 after completion", p.ActiveCount())
	}
}

func TestPlayer_ConcurrentBells(t *testing.T) {
	p, engine := newTestPlayer(t)

	p.Play(context.Background(), "bowl")
	p.Play(context.Background(), "bowl")

	if p.ActiveCount() != 2 {
		t.Errorf("ActiveCount() = %d, want 2", p.ActiveCount())
	}
	for _, h := range engine.Handles() {
		if h.State() != audio.Playing {
			t.Errorf("handle %s State() = %v, want Playing", h.URI(), h.State())
		}
	}
}

func TestPlayer_UnknownAsset(t *testing.T) {
	p, _ := newTestPlayer(t)

	err := p.Play(context.Background(), "gong")
	if !errors.Is(err, source.ErrNotFound) {
		t.Errorf("Play() error = %v, want ErrNotFound", err)
	}
}

func TestPlayer_PlayWithCompletionReportsDuration(t *testing.T) {
	p, engine := newTestPlayer(t)
	engine.SetDuration(bowlURI, 8*time.Second)

	dur, err := p.PlayWithCompletion(context.Background(), "bowl", func() {})
	if err != nil {
		t.Fatalf("PlayWithCompletion() error: %v", err)
	}
	if dur != 8*time.Second {
		t.Errorf("duration = %v, want 8s", dur)
	}
}

func TestPlayer_PlayWithCompletionFallsBackToDefaultDuration(t *testing.T) {
	p, engine := newTestPlayer(t)
	// The decoder could not determine a duration.
	engine.SetDuration(bowlURI, -1)

	dur, err := p.PlayWithCompletion(context.Background(), "bowl", func() {})
	if err != nil {
		t.Fatalf("PlayWithCompletion() error: %v", err)
	}
	if dur != 5*time.Second {
		t.Errorf("duration = %v, want the 5s default", dur)
	}
}

func TestPlayer_CompletionCallbackFiresExactlyOnce(t *testing.T) {
	p, engine := newTestPlayer(t)

	calls := 0
	_, err := p.PlayWithCompletion(context.Background(), "bowl", func() { calls++ })
	if err != nil {
		t.Fatalf("PlayWithCompletion() error: %v", err)
	}

	handle := engine.LastHandle()
	handle.FinishNaturally()
	handle.FinishNaturally()

	if calls != 1 {
		t.Errorf("completion calls = %d, want 1", calls)
	}
}

func TestPlayer_StopAllSilencesEverything(t *testing.T) {
	p, engine := newTestPlayer(t)

	completed := false
	p.Play(context.Background(), "bowl")
	p.PlayWithCompletion(context.Background(), "bowl", func() { completed = true })

	p.StopAll()

	if p.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", p.ActiveCount())
	}
	for _, h := range engine.Handles() {
		if !h.Closed() {
			t.Errorf("handle %s left open", h.URI())
		}
	}
	if completed {
		t.Error("completion callback fired for a stopped bell")
	}
}

func TestPlayer_StopAllCancelsInFlightLoad(t *testing.T) {
	p, engine := newTestPlayer(t)
	release := engine.HoldLoads(bowlURI)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Play(context.Background(), "bowl")
	}()
	deadline := time.Now().Add(2 * time.Second)
	for len(engine.LoadCalls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	p.StopAll()
	release()
	wg.Wait()

	handle := engine.LastHandle()
	if handle.PlayCalls() != 0 {
		t.Error("bell loaded after StopAll was started")
	}
	if !handle.Closed() {
		t.Error("bell loaded after StopAll was not unloaded")
	}
	if p.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", p.ActiveCount())
	}
}
