// Package ambience owns the looping background sound of a meditation
// session: at most one audible track, manual loop transitions via a
// pre-loaded second instance, and self-healing when the host silently
// pauses or destroys the underlying player.
package ambience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stillmind/stillmind/internal/audio"
	"github.com/stillmind/stillmind/internal/source"
)

// ErrUnrecoverable is returned by CheckHealth after instance
// recreation has failed twice in a row; the session should abort.
var ErrUnrecoverable = errors.New("ambience: playback unrecoverable")

// Config tunes the fade and loop-transition windows.
type Config struct {
	// FadeIn is the 0→1 volume ramp applied when a track starts.
	FadeIn time.Duration
	// PreloadWindow is how long before the end of a cycle the next
	// instance is pre-loaded.
	PreloadWindow time.Duration
	// OverlapWindow is how long before the end of a cycle the
	// pre-loaded instance starts playing.
	OverlapWindow time.Duration
}

// DefaultConfig returns the stock windows.
func DefaultConfig() Config {
	return Config{
		FadeIn:        1500 * time.Millisecond,
		PreloadWindow: 3 * time.Second,
		OverlapWindow: 500 * time.Millisecond,
	}
}

// current is the live ambience instance. At most one exists; next is
// only non-nil during a loop transition and is never exposed.
type current struct {
	assetID   string
	src       source.Source
	handle    audio.Handle
	next      audio.Handle
	preparing bool
	paused    bool
	failures  int // consecutive recreation failures
}

// Player is the ambience player. All methods are safe for concurrent
// use; in-flight loads and fades re-check the request token at every
// suspension point and abandon when superseded.
type Player struct {
	mu       sync.Mutex
	log      *slog.Logger
	engine   audio.Engine
	resolver source.Resolver
	cfg      Config

	token     uint64
	pendingID string // asset being loaded, before cur exists
	cur       *current
}

// New creates an ambience player.
func New(engine audio.Engine, resolver source.Resolver, cfg Config, log *slog.Logger) *Player {
	if log == nil {
		log = slog.Default()
	}
	return &Player{
		log:      log.With("component", "ambience"),
		engine:   engine,
		resolver: resolver,
		cfg:      cfg,
	}
}

// Play starts looping the given ambience asset, tearing down any
// current one first. Re-playing the asset that is already current (or
// already loading) is a no-op. A source.ErrNotFound is non-fatal: the
// caller decides what to surface.
func (p *Player) Play(ctx context.Context, assetID string) error {
	p.mu.Lock()
	if (p.cur != nil && p.cur.assetID == assetID) || p.pendingID == assetID {
		p.mu.Unlock()
		return nil
	}
	src, err := p.resolver.Resolve(assetID, source.Ambience)
	if err != nil {
		p.mu.Unlock()
		return err
	}

	p.token++
	tok := p.token
	p.pendingID = assetID
	old := p.detachLocked()
	p.mu.Unlock()

	teardown(old)

	handle, err := p.engine.Load(ctx, src)

	p.mu.Lock()
	if tok != p.token {
		p.mu.Unlock()
		// Superseded while loading; discard the result.
		if handle != nil {
			handle.Close()
		}
		return nil
	}
	p.pendingID = ""
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("load ambience %s: %w", assetID, err)
	}

	c := &current{assetID: assetID, src: src, handle: handle}
	p.cur = c
	handle.SetVolume(0)
	handle.SetOnFinished(func() { p.loopRestart(tok) })
	if err := handle.Play(); err != nil {
		p.cur = nil
		p.mu.Unlock()
		handle.Close()
		return fmt.Errorf("start ambience %s: %w", assetID, err)
	}
	p.mu.Unlock()

	go audio.Fade(ctx, handle, 1, p.cfg.FadeIn, p.stillCurrent(tok))
	return nil
}

// Stop tears down the current ambience immediately, including any
// pending loop transition. Idempotent.
func (p *Player) Stop() {
	p.mu.Lock()
	p.token++
	p.pendingID = ""
	old := p.detachLocked()
	p.mu.Unlock()
	teardown(old)
}

// FadeOutAndStop ramps the ambience to silence over d and then stops
// it. Non-blocking; used at session completion to end together with
// the final bell.
func (p *Player) FadeOutAndStop(ctx context.Context, d time.Duration) {
	p.mu.Lock()
	if p.cur == nil {
		p.mu.Unlock()
		return
	}
	tok := p.token
	handle := p.cur.handle
	p.mu.Unlock()

	go func() {
		audio.Fade(ctx, handle, 0, d, p.stillCurrent(tok))
		p.mu.Lock()
		if tok != p.token {
			p.mu.Unlock()
			return
		}
		p.token++
		old := p.detachLocked()
		p.mu.Unlock()
		teardown(old)
	}()
}

// Pause suspends playback in place.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil || p.cur.paused {
		return
	}
	p.cur.paused = true
	if err := p.cur.handle.Pause(); err != nil {
		p.log.Warn("pause failed", "error", err)
	}
}

// Resume continues paused playback. The loop transition needs no
// rescheduling: its windows are derived from the reported playback
// position, which did not advance while paused.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil || !p.cur.paused {
		return
	}
	p.cur.paused = false
	if err := p.cur.handle.Resume(); err != nil {
		p.log.Warn("resume failed", "error", err)
	}
}

// Current returns the asset id of the current (or loading) ambience,
// or "".
func (p *Player) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur != nil {
		return p.cur.assetID
	}
	return p.pendingID
}

// IsActive reports whether an ambience is current (playing or paused).
func (p *Player) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur != nil
}

// detachLocked removes and returns the current instance. Caller holds
// p.mu and tears the result down outside the lock.
func (p *Player) detachLocked() *current {
	c := p.cur
	p.cur = nil
	return c
}

// teardown cancels callbacks before unloading so a superseded
// instance's completion can never fire after a new instance has taken
// over the slot.
func teardown(c *current) {
	if c == nil {
		return
	}
	c.handle.SetOnFinished(nil)
	c.handle.Close()
	if c.next != nil {
		c.next.Close()
	}
}

// stillCurrent returns a guard that reports whether tok is still the
// live request token.
func (p *Player) stillCurrent(tok uint64) func() bool {
	return func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return tok == p.token
	}
}

// loopRestart is the fallback when a cycle ends before the transition
// windows got a chance to run (very short sources, or a stall right at
// the end): rewind and play again.
func (p *Player) loopRestart(tok uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok != p.token || p.cur == nil || p.cur.paused {
		return
	}
	h := p.cur.handle
	if err := h.SeekTo(0); err != nil {
		p.log.Warn("loop restart seek failed", "asset", p.cur.assetID, "error", err)
		return
	}
	h.SetOnFinished(func() { p.loopRestart(tok) })
	if err := h.Play(); err != nil {
		p.log.Warn("loop restart play failed", "asset", p.cur.assetID, "error", err)
	}
}
