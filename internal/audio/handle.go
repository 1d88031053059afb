package audio

import (
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
)

// tickInterval is how much consumed audio separates two tick
// callbacks. Ticks only advance while the pipeline actually pulls
// samples, which is what makes them usable as a background clock.
const tickInterval = 500 * time.Millisecond

type beepHandle struct {
	mu sync.Mutex

	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	vol      *effects.Volume
	kill     *killSwitch

	file    io.Closer // backing file, nil for synthesized sources
	tmpPath string    // temp download to delete on Close

	level      float64
	state      State
	started    bool // stream currently submitted to the speaker mixer
	closed     bool
	onFinished func()
	onTick     func()

	ticks chan struct{}
	done  chan struct{}
}

var _ Handle = (*beepHandle)(nil)

func newBeepHandle(streamer beep.StreamSeekCloser, format beep.Format, file io.Closer, tmpPath string) *beepHandle {
	h := &beepHandle{
		streamer: streamer,
		format:   format,
		file:     file,
		tmpPath:  tmpPath,
		state:    Stopped,
		ticks:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	var upstream beep.Streamer = streamer
	if format.SampleRate != speakerRate {
		upstream = beep.Resample(4, format.SampleRate, speakerRate, streamer)
	}
	upstream = &tickStreamer{
		inner: upstream,
		every: speakerRate.N(tickInterval),
		ticks: h.ticks,
	}
	h.kill = &killSwitch{inner: upstream}
	h.ctrl = &beep.Ctrl{Streamer: h.kill}
	h.vol = &effects.Volume{Streamer: h.ctrl, Base: 2, Volume: 0, Silent: true}

	go h.forwardTicks()
	return h
}

// forwardTicks delivers tick callbacks outside the speaker goroutine
// so callbacks may safely call back into the handle.
func (h *beepHandle) forwardTicks() {
	for {
		select {
		case <-h.done:
			return
		case <-h.ticks:
			h.mu.Lock()
			fn := h.onTick
			h.mu.Unlock()
			if fn != nil {
				fn()
			}
		}
	}
}

// Play implements Handle.
func (h *beepHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrPlayerGone
	}
	if h.state == Playing {
		return nil
	}

	speaker.Lock()
	h.ctrl.Paused = false
	speaker.Unlock()
	h.state = Playing

	if !h.started {
		h.started = true
		// The callback fires on the speaker goroutine with the speaker
		// lock held; hop off it before touching the handle mutex.
		speaker.Play(beep.Seq(h.vol, beep.Callback(func() {
			go h.finished()
		})))
	}
	return nil
}

// finished runs when the stream ends, either naturally or because the
// kill switch drained it.
func (h *beepHandle) finished() {
	h.mu.Lock()
	killed := h.kill.isKilled()
	h.state = Stopped
	// The mixer drops an exhausted stream, so the next Play must
	// re-submit it; callers rewind with SeekTo first.
	h.started = false
	fn := h.onFinished
	h.onFinished = nil
	h.mu.Unlock()

	if killed || fn == nil {
		return
	}
	fn()
}

// Pause implements Handle.
func (h *beepHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrPlayerGone
	}
	if h.state != Playing {
		return nil
	}
	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()
	h.state = Paused
	return nil
}

// Resume implements Handle.
func (h *beepHandle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrPlayerGone
	}
	if h.state != Paused {
		return nil
	}
	speaker.Lock()
	h.ctrl.Paused = false
	speaker.Unlock()
	h.state = Playing
	return nil
}

// SeekTo implements Handle.
func (h *beepHandle) SeekTo(pos time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrPlayerGone
	}
	n := h.format.SampleRate.N(pos)
	n = max(n, 0)
	if l := h.streamer.Len(); l > 0 {
		n = min(n, l-1)
	}
	speaker.Lock()
	err := h.streamer.Seek(n)
	speaker.Unlock()
	return err
}

// SetVolume implements Handle.
func (h *beepHandle) SetVolume(level float64) {
	level = math.Min(math.Max(level, 0), 1)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.level = level
	speaker.Lock()
	h.vol.Silent = level <= 0
	h.vol.Volume = levelToVolume(level)
	speaker.Unlock()
}

// Volume implements Handle.
func (h *beepHandle) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

// Position implements Handle.
func (h *beepHandle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0
	}
	// Read without the speaker lock; may be slightly stale, which is
	// fine for window checks at this timing tolerance.
	return h.format.SampleRate.D(h.streamer.Position())
}

// Duration implements Handle.
func (h *beepHandle) Duration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0
	}
	l := h.streamer.Len()
	if l <= 0 {
		return 0
	}
	return h.format.SampleRate.D(l)
}

// State implements Handle.
func (h *beepHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err implements Handle.
func (h *beepHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrPlayerGone
	}
	return h.streamer.Err()
}

// SetOnFinished implements Handle.
func (h *beepHandle) SetOnFinished(fn func()) {
	h.mu.Lock()
	h.onFinished = fn
	h.mu.Unlock()
}

// SetOnTick implements Handle.
func (h *beepHandle) SetOnTick(fn func()) {
	h.mu.Lock()
	h.onTick = fn
	h.mu.Unlock()
}

// Close implements Handle.
func (h *beepHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.onFinished = nil
	h.onTick = nil
	h.state = Stopped
	close(h.done)
	h.mu.Unlock()

	// Drain the stream out of the mixer; the speaker drops exhausted
	// streamers on its own.
	speaker.Lock()
	h.kill.doKill()
	speaker.Unlock()

	h.streamer.Close()
	if h.file != nil {
		h.file.Close()
	}
	if h.tmpPath != "" {
		os.Remove(h.tmpPath)
	}
	return nil
}

// levelToVolume converts a 0.0-1.0 level to beep's Volume value.
// beep uses a logarithmic scale with base 2: 0 means unchanged,
// -1 half volume, -2 quarter, and so on.
func levelToVolume(level float64) float64 {
	if level <= 0 {
		return -10
	}
	if level >= 1 {
		return 0
	}
	return math.Log2(level)
}

// killSwitch drains its stream when killed so the speaker's mixer
// drops it without taking the whole mixer down (speaker.Clear would
// silence every other handle too).
type killSwitch struct {
	mu     sync.Mutex
	inner  beep.Streamer
	killed bool
}

func (k *killSwitch) Stream(samples [][2]float64) (int, bool) {
	k.mu.Lock()
	killed := k.killed
	k.mu.Unlock()
	if killed {
		return 0, false
	}
	return k.inner.Stream(samples)
}

func (k *killSwitch) Err() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.killed {
		return nil
	}
	return k.inner.Err()
}

func (k *killSwitch) doKill() {
	k.mu.Lock()
	k.killed = true
	k.mu.Unlock()
}

func (k *killSwitch) isKilled() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.killed
}

// tickStreamer signals the handle's tick channel for every chunk of
// consumed samples. The send is non-blocking: tick delivery may
// coalesce but never stalls the audio pipeline.
type tickStreamer struct {
	inner beep.Streamer
	every int
	since int
	ticks chan<- struct{}
}

func (t *tickStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = t.inner.Stream(samples)
	t.since += n
	if t.since >= t.every {
		t.since -= t.every
		select {
		case t.ticks <- struct{}{}:
		default:
		}
	}
	return n, ok
}

func (t *tickStreamer) Err() error { return t.inner.Err() }
