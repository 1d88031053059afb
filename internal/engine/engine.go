// Package engine is the session layer's single entry point to the
// audio/timer machinery. One Engine is created at app start and
// passed by reference to its consumers; there is no process-wide
// state.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/stillmind/stillmind/internal/ambience"
	"github.com/stillmind/stillmind/internal/audio"
	"github.com/stillmind/stillmind/internal/bell"
	"github.com/stillmind/stillmind/internal/bridge"
	"github.com/stillmind/stillmind/internal/preview"
	"github.com/stillmind/stillmind/internal/session"
	"github.com/stillmind/stillmind/internal/source"
)

// Config aggregates the tuning of every engine component.
type Config struct {
	Ambience  ambience.Config
	Bell      bell.Config
	Preview   preview.Config
	Scheduler session.Config
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Ambience:  ambience.DefaultConfig(),
		Bell:      bell.DefaultConfig(),
		Preview:   preview.DefaultConfig(),
		Scheduler: session.DefaultConfig(),
	}
}

// Engine owns the ambience, bell and preview players and the session
// scheduler, behind the surface the UI layer consumes. It behaves
// identically whether or not the native bridge is present.
type Engine struct {
	log     *slog.Logger
	audio   audio.Engine
	bells   *bell.Player
	preview *preview.Player
	sched   *session.Scheduler

	subsMu sync.Mutex
	subs   []*Subscription
	closed bool
}

// New assembles an engine. br may be nil; the portable path is used
// then.
func New(aud audio.Engine, resolver source.Resolver, br bridge.Bridge, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}

	bells := bell.New(aud, resolver, cfg.Bell, log)

	var amb session.Ambience
	var native session.NativeScheduler
	if br != nil {
		amb = bridge.NewAmbienceAdapter(br, resolver, log)
		native = bridge.NewBellAdapter(br, resolver)
	} else {
		amb = ambience.New(aud, resolver, cfg.Ambience, log)
	}

	hb := session.NewAudioHeartbeat(aud, log)
	sched := session.New(amb, bells, hb, native, cfg.Scheduler, log)

	e := &Engine{
		log:     log,
		audio:   aud,
		bells:   bells,
		preview: preview.New(aud, resolver, cfg.Preview, log),
		sched:   sched,
	}
	sched.SetOnComplete(func(elapsed time.Duration) {
		e.publish(func(s *Subscription) { s.sendCompleted(SessionCompleted{Elapsed: elapsed}) })
	})
	sched.SetOnAbort(func(elapsed time.Duration) {
		e.publish(func(s *Subscription) { s.sendAborted(SessionAborted{Elapsed: elapsed}) })
	})
	return e
}

// StartSession starts a meditation session, stopping any running
// preview and any previous session first. ambienceID may be empty for
// a silent session. Returns false on an unrecoverable start failure;
// a missing ambience asset is not one (the timer still runs).
func (e *Engine) StartSession(ctx context.Context, ambienceID, bellID string, duration time.Duration, repeat session.RepeatConfig) bool {
	e.preview.Stop()

	err := e.sched.Start(ctx, session.Options{
		AmbienceID: ambienceID,
		BellID:     bellID,
		Duration:   duration,
		Repeat:     repeat,
	})
	if err != nil {
		e.log.Error("could not start session", "error", err)
		return false
	}
	return true
}

// Pause suspends the running session.
func (e *Engine) Pause(ctx context.Context) { e.sched.Pause(ctx) }

// Resume continues a paused session.
func (e *Engine) Resume(ctx context.Context) { e.sched.Resume(ctx) }

// Stop aborts the running session without a completion bell.
func (e *Engine) Stop(ctx context.Context) { e.sched.Stop(ctx) }

// IsCompleted reports whether the last session ran to completion.
func (e *Engine) IsCompleted() bool { return e.sched.IsCompleted() }

// Status returns the scheduler state.
func (e *Engine) Status() session.Status { return e.sched.Status() }

// Elapsed returns the meditated time of the current session.
func (e *Engine) Elapsed() time.Duration { return e.sched.Elapsed() }

// PreviewAmbience auditions an ambience sound; previewing the one
// already playing toggles it off. Returns false when the asset cannot
// be resolved.
func (e *Engine) PreviewAmbience(ctx context.Context, assetID string) bool {
	if err := e.preview.Ambience(ctx, assetID); err != nil {
		e.logPreviewErr(assetID, err)
		return false
	}
	return true
}

// PreviewBell auditions a bell sound over any active ambience
// preview. Returns false when the asset cannot be resolved.
func (e *Engine) PreviewBell(ctx context.Context, assetID string) bool {
	if err := e.preview.Bell(ctx, assetID); err != nil {
		e.logPreviewErr(assetID, err)
		return false
	}
	return true
}

func (e *Engine) logPreviewErr(assetID string, err error) {
	if errors.Is(err, source.ErrNotFound) {
		e.log.Warn("preview asset not found", "asset", assetID)
		return
	}
	e.log.Error("preview failed", "asset", assetID, "error", err)
}

// StopPreview halts preview playback. Idempotent.
func (e *Engine) StopPreview() { e.preview.Stop() }

// IsPreviewPlaying reports whether the given asset is the active
// ambience preview.
func (e *Engine) IsPreviewPlaying(assetID string) bool {
	return e.preview.IsPlaying(assetID)
}

// Subscribe creates a new event subscription.
func (e *Engine) Subscribe() *Subscription {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	sub := newSubscription()
	e.subs = append(e.subs, sub)
	return sub
}

func (e *Engine) publish(send func(*Subscription)) {
	e.subsMu.Lock()
	subs := append([]*Subscription(nil), e.subs...)
	e.subsMu.Unlock()
	for _, sub := range subs {
		send(sub)
	}
}

// Close tears the engine down: session aborted, previews stopped, all
// sounds unloaded, subscribers released.
func (e *Engine) Close() error {
	e.subsMu.Lock()
	if e.closed {
		e.subsMu.Unlock()
		return nil
	}
	e.closed = true
	subs := e.subs
	e.subs = nil
	e.subsMu.Unlock()

	e.sched.Stop(context.Background())
	e.preview.Stop()
	e.bells.StopAll()
	for _, sub := range subs {
		sub.close()
	}
	return e.audio.Close()
}
