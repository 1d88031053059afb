package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stillmind/stillmind/internal/source"
)

// MockEngine is a scriptable test double for Engine. Loads can be
// held open to exercise races, fail with configured errors, and every
// created handle stays inspectable after the code under test is done
// with it.
type MockEngine struct {
	mu        sync.Mutex
	loadErrs  map[string]error
	durations map[string]time.Duration
	gates     map[string]chan struct{}
	loads     []string
	open      map[*MockHandle]struct{}
	all       []*MockHandle
}

var _ Engine = (*MockEngine)(nil)

// NewMockEngine creates an empty mock engine.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		loadErrs:  map[string]error{},
		durations: map[string]time.Duration{},
		gates:     map[string]chan struct{}{},
		open:      map[*MockHandle]struct{}{},
	}
}

// Load implements Engine.
func (e *MockEngine) Load(ctx context.Context, src source.Source) (Handle, error) {
	uri := src.URI()

	e.mu.Lock()
	e.loads = append(e.loads, uri)
	gate := e.gates[uri]
	err := e.loadErrs[uri]
	dur := e.durations[uri]
	e.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if dur == 0 {
		dur = time.Minute
	}
	return e.newHandle(uri, dur), nil
}

// LoadSilence implements Engine.
func (e *MockEngine) LoadSilence(_ context.Context, d time.Duration) (Handle, error) {
	e.mu.Lock()
	uri := fmt.Sprintf("silence:%s", d)
	e.loads = append(e.loads, uri)
	e.mu.Unlock()
	return e.newHandle(uri, d), nil
}

// Close implements Engine.
func (e *MockEngine) Close() error {
	e.mu.Lock()
	handles := make([]*MockHandle, 0, len(e.open))
	for h := range e.open {
		handles = append(handles, h)
	}
	e.mu.Unlock()
	for _, h := range handles {
		h.Close()
	}
	return nil
}

func (e *MockEngine) newHandle(uri string, dur time.Duration) *MockHandle {
	h := &MockHandle{engine: e, uri: uri, dur: dur}
	e.mu.Lock()
	e.open[h] = struct{}{}
	e.all = append(e.all, h)
	e.mu.Unlock()
	return h
}

// FailLoad makes subsequent loads of uri return err.
func (e *MockEngine) FailLoad(uri string, err error) {
	e.mu.Lock()
	e.loadErrs[uri] = err
	e.mu.Unlock()
}

// SetDuration sets the reported duration for handles loaded from uri.
func (e *MockEngine) SetDuration(uri string, d time.Duration) {
	e.mu.Lock()
	e.durations[uri] = d
	e.mu.Unlock()
}

// HoldLoads blocks loads of uri until the returned release function
// is called. Used to script slow loads in race tests.
func (e *MockEngine) HoldLoads(uri string) (release func()) {
	gate := make(chan struct{})
	e.mu.Lock()
	e.gates[uri] = gate
	e.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// LoadCalls returns every load issued so far, in order, by URI.
func (e *MockEngine) LoadCalls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.loads...)
}

// OpenHandles returns the handles that have not been closed yet.
func (e *MockEngine) OpenHandles() []*MockHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	handles := make([]*MockHandle, 0, len(e.open))
	for h := range e.open {
		handles = append(handles, h)
	}
	return handles
}

// Handles returns every handle ever created, open or closed.
func (e *MockEngine) Handles() []*MockHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*MockHandle(nil), e.all...)
}

// LastHandle returns the most recently created handle, or nil.
func (e *MockEngine) LastHandle() *MockHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.all) == 0 {
		return nil
	}
	return e.all[len(e.all)-1]
}

func (e *MockEngine) forget(h *MockHandle) {
	e.mu.Lock()
	delete(e.open, h)
	e.mu.Unlock()
}

// MockHandle is the handle companion of MockEngine. Position never
// advances on its own; tests move it with SetPosition and fire
// lifecycle events with Tick, FinishNaturally, MarkStalled and
// MarkGone.
type MockHandle struct {
	mu sync.Mutex

	engine *MockEngine
	uri    string

	state  State
	level  float64
	pos    time.Duration
	dur    time.Duration
	gone   bool
	closed bool

	onFinished func()
	onTick     func()

	playCalls   int
	resumeCalls int
	seeks       []time.Duration
}

var _ Handle = (*MockHandle)(nil)

// URI returns the source URI this handle was loaded from.
func (h *MockHandle) URI() string { return h.uri }

// Play implements Handle.
func (h *MockHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.gone {
		return ErrPlayerGone
	}
	h.playCalls++
	h.state = Playing
	return nil
}

// Pause implements Handle.
func (h *MockHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.gone {
		return ErrPlayerGone
	}
	if h.state == Playing {
		h.state = Paused
	}
	return nil
}

// Resume implements Handle.
func (h *MockHandle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.gone {
		return ErrPlayerGone
	}
	h.resumeCalls++
	h.state = Playing
	return nil
}

// SeekTo implements Handle.
func (h *MockHandle) SeekTo(pos time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.gone {
		return ErrPlayerGone
	}
	h.seeks = append(h.seeks, pos)
	h.pos = pos
	return nil
}

// SetVolume implements Handle.
func (h *MockHandle) SetVolume(level float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.level = level
}

// Volume implements Handle.
func (h *MockHandle) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

// Position implements Handle.
func (h *MockHandle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

// Duration implements Handle.
func (h *MockHandle) Duration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dur
}

// State implements Handle.
func (h *MockHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.gone {
		return Stopped
	}
	return h.state
}

// Err implements Handle.
func (h *MockHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gone {
		return ErrPlayerGone
	}
	return nil
}

// SetOnFinished implements Handle.
func (h *MockHandle) SetOnFinished(fn func()) {
	h.mu.Lock()
	h.onFinished = fn
	h.mu.Unlock()
}

// SetOnTick implements Handle.
func (h *MockHandle) SetOnTick(fn func()) {
	h.mu.Lock()
	h.onTick = fn
	h.mu.Unlock()
}

// Close implements Handle.
func (h *MockHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.state = Stopped
	h.onFinished = nil
	h.onTick = nil
	h.mu.Unlock()
	h.engine.forget(h)
	return nil
}

// Closed reports whether Close has been called.
func (h *MockHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// PlayCalls returns how many times Play was invoked.
func (h *MockHandle) PlayCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playCalls
}

// ResumeCalls returns how many times Resume was invoked.
func (h *MockHandle) ResumeCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resumeCalls
}

// Seeks returns every SeekTo target in order.
func (h *MockHandle) Seeks() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.seeks...)
}

// SetPosition moves the simulated playback position.
func (h *MockHandle) SetPosition(pos time.Duration) {
	h.mu.Lock()
	h.pos = pos
	h.mu.Unlock()
}

// Tick fires the tick callback n times, as the audio pipeline would
// while consuming samples.
func (h *MockHandle) Tick(n int) {
	for range n {
		h.mu.Lock()
		fn := h.onTick
		h.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
}

// FinishNaturally simulates playback reaching the end of the stream.
func (h *MockHandle) FinishNaturally() {
	h.mu.Lock()
	h.state = Stopped
	h.pos = h.dur
	fn := h.onFinished
	h.onFinished = nil
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// MarkStalled simulates the host silently pausing the instance:
// stopped, position preserved, no finish callback, no error.
func (h *MockHandle) MarkStalled() {
	h.mu.Lock()
	h.state = Stopped
	h.mu.Unlock()
}

// MarkGone simulates the host destroying the underlying player
// object; every subsequent operation fails with ErrPlayerGone.
func (h *MockHandle) MarkGone() {
	h.mu.Lock()
	h.gone = true
	h.state = Stopped
	h.mu.Unlock()
}
