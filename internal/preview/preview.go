// Package preview auditions ambience and bell sounds on selection
// screens. It shares no state with the session engine: previews have
// their own resource slot and their own request tokens.
package preview

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stillmind/stillmind/internal/audio"
	"github.com/stillmind/stillmind/internal/source"
)

// duckedLevel is the ambience preview volume while a bell preview
// plays over it: fully silenced, restored when the bell ends.
const duckedLevel = 0

// Config tunes preview playback.
type Config struct {
	FadeIn time.Duration
}

// DefaultConfig returns the stock preview tuning.
func DefaultConfig() Config {
	return Config{FadeIn: time.Second}
}

// Player is the preview player. A single ambience preview may be
// active at a time; starting a new one stops the previous one, and
// selecting the same asset again toggles it off. A bell preview
// silences, but does not stop, an active ambience preview.
type Player struct {
	mu       sync.Mutex
	log      *slog.Logger
	engine   audio.Engine
	resolver source.Resolver
	cfg      Config

	token     uint64
	pendingID string
	assetID   string
	handle    audio.Handle

	bell audio.Handle
}

// New creates a preview player.
func New(engine audio.Engine, resolver source.Resolver, cfg Config, log *slog.Logger) *Player {
	if log == nil {
		log = slog.Default()
	}
	return &Player{
		log:      log.With("component", "preview"),
		engine:   engine,
		resolver: resolver,
		cfg:      cfg,
	}
}

// Ambience previews an ambience asset. Selecting the asset that is
// already playing (or loading) toggles it off. A load superseded by a
// later selection is discarded: its instance is unloaded, never
// started.
func (p *Player) Ambience(ctx context.Context, assetID string) error {
	p.mu.Lock()
	if p.assetID == assetID || p.pendingID == assetID {
		p.mu.Unlock()
		p.Stop()
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
	old := p.handle
	p.assetID = ""
	p.handle = nil
	p.mu.Unlock()

	if old != nil {
		old.SetOnFinished(nil)
		old.Close()
	}

	handle, err := p.engine.Load(ctx, src)

	p.mu.Lock()
	if tok != p.token {
		p.mu.Unlock()
		if handle != nil {
			handle.Close()
		}
		return nil
	}
	p.pendingID = ""
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("load preview %s: %w", assetID, err)
	}

	p.assetID = assetID
	p.handle = handle
	handle.SetVolume(0)
	handle.SetOnFinished(func() { p.restart(tok) })
	if err := handle.Play(); err != nil {
		p.assetID = ""
		p.handle = nil
		p.mu.Unlock()
		handle.Close()
		return fmt.Errorf("start preview %s: %w", assetID, err)
	}
	bellActive := p.bell != nil
	p.mu.Unlock()

	target := 1.0
	if bellActive {
		target = duckedLevel
	}
	go audio.Fade(ctx, handle, target, p.cfg.FadeIn, p.still(tok))
	return nil
}

// Bell previews a bell asset over any active ambience preview,
// silencing the ambience while the bell rings and restoring it after.
func (p *Player) Bell(ctx context.Context, assetID string) error {
	src, err := p.resolver.Resolve(assetID, source.Bell)
	if err != nil {
		return err
	}

	handle, err := p.engine.Load(ctx, src)
	if err != nil {
		return fmt.Errorf("load bell preview %s: %w", assetID, err)
	}

	p.mu.Lock()
	tok := p.token
	if p.bell != nil {
		old := p.bell
		old.SetOnFinished(nil)
		go old.Close()
	}
	p.bell = handle
	ambience := p.handle
	p.mu.Unlock()

	if ambience != nil {
		ambience.SetVolume(duckedLevel)
	}

	handle.SetOnFinished(func() { p.bellDone(tok, handle) })
	handle.SetVolume(1)
	if err := handle.Play(); err != nil {
		p.bellDone(tok, handle)
		return fmt.Errorf("start bell preview %s: %w", assetID, err)
	}
	return nil
}

// bellDone cleans up a finished bell preview and restores the
// ambience preview volume if that preview is still the same one.
func (p *Player) bellDone(tok uint64, handle audio.Handle) {
	p.mu.Lock()
	if p.bell == handle {
		p.bell = nil
	}
	ambience := p.handle
	restore := tok == p.token && ambience != nil
	p.mu.Unlock()

	handle.Close()
	if restore {
		ambience.SetVolume(1)
	}
}

// Stop halts any preview playback. Idempotent; safe to call on every
// screen-exit transition.
func (p *Player) Stop() {
	p.mu.Lock()
	p.token++
	p.pendingID = ""
	p.assetID = ""
	ambience := p.handle
	bellH := p.bell
	p.handle = nil
	p.bell = nil
	p.mu.Unlock()

	for _, h := range []audio.Handle{ambience, bellH} {
		if h != nil {
			h.SetOnFinished(nil)
			h.Close()
		}
	}
}

// IsPlaying reports whether the given asset is the active ambience
// preview.
func (p *Player) IsPlaying(assetID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.assetID == assetID && p.handle != nil && p.handle.State() == audio.Playing
}

func (p *Player) still(tok uint64) func() bool {
	return func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return tok == p.token
	}
}

// restart loops the ambience preview when it reaches its natural end.
func (p *Player) restart(tok uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok != p.token || p.handle == nil {
		return
	}
	h := p.handle
	if err := h.SeekTo(0); err != nil {
		return
	}
	h.SetOnFinished(func() { p.restart(tok) })
	if err := h.Play(); err != nil {
		p.log.Warn("preview loop restart failed", "error", err)
	}
}
