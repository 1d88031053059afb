// Package audio abstracts the sound engine behind Engine and Handle
// interfaces so the players and the scheduler can be driven by a real
// beep-backed engine in the app and by a scripted mock in tests.
package audio

import (
	"context"
	"errors"
	"time"

	"github.com/stillmind/stillmind/internal/source"
)

// ErrPlayerGone signals that the underlying platform player object no
// longer exists (host reclaimed audio resources). The instance cannot
// be repaired in place and must be recreated from its asset id.
var ErrPlayerGone = errors.New("audio: player gone")

// ErrUnsupportedFormat is returned when a source's format cannot be
// decoded.
var ErrUnsupportedFormat = errors.New("audio: unsupported format")

// State represents the playback state of one handle.
//
// Valid transitions:
//   - Stopped → Playing (via Play)
//   - Playing → Paused  (via Pause)
//   - Paused  → Playing (via Resume)
//   - Playing → Stopped (natural end, or Close)
//   - Paused  → Stopped (via Close)
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

// String returns the state name for debugging.
func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// IsActive returns true if playback is active (Playing or Paused).
func (s State) IsActive() bool {
	return s == Playing || s == Paused
}

// Handle is one loaded, playable sound instance. A handle is owned
// exclusively by the component that loaded it and is never shared.
type Handle interface {
	// Play starts (or restarts after a natural end) playback.
	Play() error
	// Pause suspends playback, keeping the position.
	Pause() error
	// Resume continues paused playback.
	Resume() error
	// SeekTo moves the playback position.
	SeekTo(pos time.Duration) error

	// SetVolume sets the volume level (0.0 to 1.0). Level 0 is silent.
	SetVolume(level float64)
	// Volume returns the current volume level.
	Volume() float64

	// Position returns the current playback position.
	Position() time.Duration
	// Duration returns the total length, or 0 if unknown.
	Duration() time.Duration
	// State returns the current playback state.
	State() State
	// Err returns the handle's failure state, if any. ErrPlayerGone
	// means the instance must be recreated rather than repaired.
	Err() error

	// SetOnFinished registers fn to run once when playback ends
	// naturally. A nil fn clears the callback; Close never fires it.
	SetOnFinished(fn func())
	// SetOnTick registers fn to run periodically while samples are
	// actually being consumed by the audio pipeline. This is the only
	// callback that keeps firing when software timers are throttled.
	SetOnTick(fn func())

	// Close stops playback and unloads the instance. Idempotent, and
	// safe to call from any state.
	Close() error
}

// Engine loads sources into playable handles.
type Engine interface {
	// Load resolves src into a ready-to-play handle, initially muted
	// and not playing.
	Load(ctx context.Context, src source.Source) (Handle, error)
	// LoadSilence returns a handle over d of synthesized silence,
	// used as the scheduler's heartbeat source.
	LoadSilence(ctx context.Context, d time.Duration) (Handle, error)
	// Close stops all playback and releases the audio device.
	Close() error
}
