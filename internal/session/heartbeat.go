package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stillmind/stillmind/internal/audio"
)

// Heartbeat is the scheduler's recurring clock source.
type Heartbeat interface {
	// Start begins ticking, invoking onTick on every beat.
	Start(ctx context.Context, onTick func()) error
	// Pause suspends ticking without losing the source.
	Pause()
	// Resume continues ticking after Pause.
	Resume()
	// Stop tears the source down. Idempotent.
	Stop()
	// LastTick returns when the last beat was observed.
	LastTick() time.Time
	// Repair attempts to revive a stalled source: resume it when it is
	// merely stopped, recreate it when the player object is gone.
	Repair(ctx context.Context) error
}

// silenceLoopLen is the length of the synthesized silent source the
// audio heartbeat loops. The length is irrelevant as long as it is
// comfortably longer than the tick interval.
const silenceLoopLen = 30 * time.Second

// audioHeartbeat derives ticks from a silent, inaudibly-looping audio
// handle. Host platforms routinely suspend software timers in the
// background but keep the audio pipeline pulling samples, so this is
// the one clock the scheduler can trust with the screen off.
type audioHeartbeat struct {
	mu     sync.Mutex
	log    *slog.Logger
	engine audio.Engine

	handle   audio.Handle
	onTick   func()
	lastTick time.Time
	running  bool
}

var _ Heartbeat = (*audioHeartbeat)(nil)

// NewAudioHeartbeat creates the portable heartbeat over the given
// engine.
func NewAudioHeartbeat(engine audio.Engine, log *slog.Logger) Heartbeat {
	if log == nil {
		log = slog.Default()
	}
	return &audioHeartbeat{
		log:    log.With("component", "heartbeat"),
		engine: engine,
	}
}

// Start implements Heartbeat.
func (h *audioHeartbeat) Start(ctx context.Context, onTick func()) error {
	h.Stop()

	handle, err := h.engine.LoadSilence(ctx, silenceLoopLen)
	if err != nil {
		return fmt.Errorf("load heartbeat source: %w", err)
	}

	h.mu.Lock()
	h.handle = handle
	h.onTick = onTick
	h.lastTick = time.Now()
	h.running = true
	h.mu.Unlock()

	h.wire(handle)
	handle.SetVolume(0)
	if err := handle.Play(); err != nil {
		h.Stop()
		return fmt.Errorf("start heartbeat source: %w", err)
	}
	return nil
}

// wire attaches the tick and loop callbacks to a heartbeat handle.
func (h *audioHeartbeat) wire(handle audio.Handle) {
	handle.SetOnTick(func() {
		h.mu.Lock()
		h.lastTick = time.Now()
		fn := h.onTick
		running := h.running
		h.mu.Unlock()
		if running && fn != nil {
			fn()
		}
	})
	handle.SetOnFinished(func() {
		// The silent source ran out; rewind and keep ticking.
		h.mu.Lock()
		cur := h.handle
		running := h.running
		h.mu.Unlock()
		if !running || cur != handle {
			return
		}
		if err := handle.SeekTo(0); err == nil {
			h.wire(handle)
			_ = handle.Play()
		}
	})
}

// Pause implements Heartbeat.
func (h *audioHeartbeat) Pause() {
	h.mu.Lock()
	handle := h.handle
	h.mu.Unlock()
	if handle != nil {
		_ = handle.Pause()
	}
}

// Resume implements Heartbeat.
func (h *audioHeartbeat) Resume() {
	h.mu.Lock()
	handle := h.handle
	h.lastTick = time.Now()
	h.mu.Unlock()
	if handle != nil {
		_ = handle.Resume()
	}
}

// Stop implements Heartbeat.
func (h *audioHeartbeat) Stop() {
	h.mu.Lock()
	handle := h.handle
	h.handle = nil
	h.onTick = nil
	h.running = false
	h.mu.Unlock()
	if handle != nil {
		handle.SetOnFinished(nil)
		handle.SetOnTick(nil)
		handle.Close()
	}
}

// LastTick implements Heartbeat.
func (h *audioHeartbeat) LastTick() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastTick
}

// Repair implements Heartbeat.
func (h *audioHeartbeat) Repair(ctx context.Context) error {
	h.mu.Lock()
	handle := h.handle
	running := h.running
	h.mu.Unlock()
	if !running {
		return nil
	}

	if handle != nil && !errors.Is(handle.Err(), audio.ErrPlayerGone) {
		// Repair only runs after a stall was observed, so a handle that
		// still claims Playing is not trusted: pause it first so the
		// replay below restarts the pipeline instead of no-opping.
		if handle.State() == audio.Playing {
			_ = handle.Pause()
		}
		h.log.Info("heartbeat stalled, restarting playback")
		if err := handle.Play(); err == nil {
			h.mu.Lock()
			h.lastTick = time.Now()
			h.mu.Unlock()
			return nil
		}
	}

	// Player object gone; recreate the silent source.
	h.log.Warn("heartbeat player gone, recreating")
	newHandle, err := h.engine.LoadSilence(ctx, silenceLoopLen)
	if err != nil {
		return fmt.Errorf("recreate heartbeat source: %w", err)
	}

	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		newHandle.Close()
		return nil
	}
	old := h.handle
	h.handle = newHandle
	h.lastTick = time.Now()
	h.mu.Unlock()

	if old != nil {
		old.SetOnFinished(nil)
		old.SetOnTick(nil)
		old.Close()
	}
	h.wire(newHandle)
	newHandle.SetVolume(0)
	if err := newHandle.Play(); err != nil {
		return fmt.Errorf("restart heartbeat source: %w", err)
	}
	return nil
}
