package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stillmind/stillmind/internal/source"
)

// AmbienceAdapter drives ambience playback through the native bridge
// behind the same contract the scheduler uses for the portable
// player. Looping, fading and background survival are the native
// service's responsibility, so the tick and health duties are no-ops
// here.
type AmbienceAdapter struct {
	mu       sync.Mutex
	bridge   Bridge
	resolver source.Resolver
	log      *slog.Logger
	active   bool
}

// NewAmbienceAdapter wraps the bridge for ambience duty.
func NewAmbienceAdapter(b Bridge, resolver source.Resolver, log *slog.Logger) *AmbienceAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &AmbienceAdapter{
		bridge:   b,
		resolver: resolver,
		log:      log.With("component", "bridge-ambience"),
	}
}

// Play resolves the asset and hands the URI to the native service.
func (a *AmbienceAdapter) Play(ctx context.Context, assetID string) error {
	src, err := a.resolver.Resolve(assetID, source.Ambience)
	if err != nil {
		return err
	}
	if err := a.bridge.LoadAndPlay(ctx, src.URI()); err != nil {
		return err
	}
	a.mu.Lock()
	a.active = true
	a.mu.Unlock()
	return nil
}

// Stop halts native playback. Idempotent.
func (a *AmbienceAdapter) Stop() {
	a.mu.Lock()
	active := a.active
	a.active = false
	a.mu.Unlock()
	if !active {
		return
	}
	if err := a.bridge.Stop(context.Background()); err != nil {
		a.log.Warn("native stop failed", "error", err)
	}
}

// Pause suspends native playback.
func (a *AmbienceAdapter) Pause() {
	if err := a.bridge.Pause(context.Background()); err != nil {
		a.log.Warn("native pause failed", "error", err)
	}
}

// Resume continues native playback.
func (a *AmbienceAdapter) Resume() {
	if err := a.bridge.Resume(context.Background()); err != nil {
		a.log.Warn("native resume failed", "error", err)
	}
}

// FadeOutAndStop delegates the timed fade to the native service.
func (a *AmbienceAdapter) FadeOutAndStop(ctx context.Context, d time.Duration) {
	a.mu.Lock()
	a.active = false
	a.mu.Unlock()
	if err := a.bridge.FadeOutAndStop(ctx, d); err != nil {
		a.log.Warn("native fade-out failed", "error", err)
	}
}

// OnTick is a no-op: the native service loops on its own.
func (a *AmbienceAdapter) OnTick(context.Context) {}

// CheckHealth is a no-op: the native service owns its player
// lifecycle.
func (a *AmbienceAdapter) CheckHealth(context.Context) error { return nil }

// BellAdapter exposes the bridge's bell scheduling behind the
// scheduler's NativeScheduler contract.
type BellAdapter struct {
	bridge   Bridge
	resolver source.Resolver
}

// NewBellAdapter wraps the bridge for bell scheduling.
func NewBellAdapter(b Bridge, resolver source.Resolver) *BellAdapter {
	return &BellAdapter{bridge: b, resolver: resolver}
}

// ScheduleBells resolves the bell asset and schedules every offset.
func (a *BellAdapter) ScheduleBells(ctx context.Context, bellAssetID string, offsets []time.Duration) error {
	src, err := a.resolver.Resolve(bellAssetID, source.Bell)
	if err != nil {
		return err
	}
	return a.bridge.ScheduleBells(ctx, src.URI(), offsets)
}

// CancelBells cancels all scheduled bells.
func (a *BellAdapter) CancelBells(ctx context.Context) error {
	return a.bridge.CancelBells(ctx)
}
