// Package bell plays one-shot bell sounds. Multiple bells may be in
// flight at once; each instance is tracked and cleaned up
// independently.
package bell

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stillmind/stillmind/internal/audio"
	"github.com/stillmind/stillmind/internal/source"
)

// Config tunes bell playback.
type Config struct {
	// FadeIn is the volume ramp applied to each bell.
	FadeIn time.Duration
	// DefaultDuration is reported when a sound's real duration is
	// unknown, so completion-timed fades still have a number to work
	// with.
	DefaultDuration time.Duration
}

// DefaultConfig returns the stock bell tuning.
func DefaultConfig() Config {
	return Config{
		FadeIn:          2 * time.Second,
		DefaultDuration: 5 * time.Second,
	}
}

// Player fires one-shot bells.
type Player struct {
	mu       sync.Mutex
	log      *slog.Logger
	engine   audio.Engine
	resolver source.Resolver
	cfg      Config
	active   map[audio.Handle]struct{}
	gen      uint64 // bumped by StopAll to cancel in-flight loads
}

// New creates a bell player.
func New(engine audio.Engine, resolver source.Resolver, cfg Config, log *slog.Logger) *Player {
	if log == nil {
		log = slog.Default()
	}
	return &Player{
		log:      log.With("component", "bell"),
		engine:   engine,
		resolver: resolver,
		cfg:      cfg,
		active:   map[audio.Handle]struct{}{},
	}
}

// Play fires a bell and forgets it; the instance unloads itself on
// natural completion.
func (p *Player) Play(ctx context.Context, assetID string) error {
	_, err := p.play(ctx, assetID, nil)
	return err
}

// PlayWithCompletion fires a bell and reports its duration (falling
// back to the configured default when unknown). onComplete runs
// exactly once, when playback naturally finishes. Callers use the
// returned duration to time a concurrent ambience fade-out so both
// end together.
func (p *Player) PlayWithCompletion(ctx context.Context, assetID string, onComplete func()) (time.Duration, error) {
	return p.play(ctx, assetID, onComplete)
}

func (p *Player) play(ctx context.Context, assetID string, onComplete func()) (time.Duration, error) {
	src, err := p.resolver.Resolve(assetID, source.Bell)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	gen := p.gen
	p.mu.Unlock()

	handle, err := p.engine.Load(ctx, src)
	if err != nil {
		return 0, fmt.Errorf("load bell %s: %w", assetID, err)
	}

	p.mu.Lock()
	if gen != p.gen {
		// StopAll ran while the load was in flight.
		p.mu.Unlock()
		handle.Close()
		return 0, nil
	}
	p.active[handle] = struct{}{}
	p.mu.Unlock()

	dur := handle.Duration()
	if dur <= 0 {
		dur = p.cfg.DefaultDuration
	}

	var once sync.Once
	handle.SetOnFinished(func() {
		p.release(handle)
		if onComplete != nil {
			once.Do(onComplete)
		}
	})

	handle.SetVolume(0)
	if err := handle.Play(); err != nil {
		p.release(handle)
		return 0, fmt.Errorf("start bell %s: %w", assetID, err)
	}
	go audio.Fade(ctx, handle, 1, p.cfg.FadeIn, nil)

	return dur, nil
}

// StopAll silences and unloads every in-flight bell immediately. Used
// on session abort; completion callbacks of stopped bells never fire.
func (p *Player) StopAll() {
	p.mu.Lock()
	p.gen++
	handles := make([]audio.Handle, 0, len(p.active))
	for h := range p.active {
		handles = append(handles, h)
	}
	p.active = map[audio.Handle]struct{}{}
	p.mu.Unlock()

	for _, h := range handles {
		h.SetOnFinished(nil)
		h.Close()
	}
}

// ActiveCount returns the number of bells currently in flight.
func (p *Player) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

func (p *Player) release(handle audio.Handle) {
	p.mu.Lock()
	delete(p.active, handle)
	p.mu.Unlock()
	handle.Close()
}
