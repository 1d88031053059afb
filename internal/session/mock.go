package session

import (
	"context"
	"sync"
	"time"
)

// ManualHeartbeat is a hand-cranked Heartbeat for tests: the test
// drives time by calling Tick.
type ManualHeartbeat struct {
	mu       sync.Mutex
	onTick   func()
	lastTick time.Time
	running  bool
	paused   bool

	StartErr    error
	StartCalls  int
	RepairCalls int
	StopCalls   int
}

var _ Heartbeat = (*ManualHeartbeat)(nil)

func (m *ManualHeartbeat) Start(_ context.Context, onTick func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StartCalls++
	if m.StartErr != nil {
		return m.StartErr
	}
	m.onTick = onTick
	m.lastTick = time.Now()
	m.running = true
	m.paused = false
	return nil
}

// Tick fires one heartbeat, as the audio pipeline would.
func (m *ManualHeartbeat) Tick() {
	m.mu.Lock()
	fn := m.onTick
	fire := m.running && !m.paused
	if fire {
		m.lastTick = time.Now()
	}
	m.mu.Unlock()
	if fire && fn != nil {
		fn()
	}
}

// SetLastTick backdates the last observed beat, to simulate a stall.
func (m *ManualHeartbeat) SetLastTick(t time.Time) {
	m.mu.Lock()
	m.lastTick = t
	m.mu.Unlock()
}

func (m *ManualHeartbeat) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
}

func (m *ManualHeartbeat) Resume() {
	m.mu.Lock()
	m.paused = false
	m.lastTick = time.Now()
	m.mu.Unlock()
}

func (m *ManualHeartbeat) Stop() {
	m.mu.Lock()
	m.running = false
	m.onTick = nil
	m.StopCalls++
	m.mu.Unlock()
}

func (m *ManualHeartbeat) LastTick() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTick
}

func (m *ManualHeartbeat) Repair(context.Context) error {
	m.mu.Lock()
	m.RepairCalls++
	m.lastTick = time.Now()
	m.mu.Unlock()
	return nil
}

// Running reports whether the heartbeat has been started and not
// stopped.
func (m *ManualHeartbeat) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// MockAmbience records the scheduler's ambience calls.
type MockAmbience struct {
	mu sync.Mutex

	PlayErr   error
	HealthErr error

	PlayCalls    []string
	StopCalls    int
	PauseCalls   int
	ResumeCalls  int
	FadeOutCalls []time.Duration
	TickCalls    int
	HealthCalls  int
}

var _ Ambience = (*MockAmbience)(nil)

func (m *MockAmbience) Play(_ context.Context, assetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlayCalls = append(m.PlayCalls, assetID)
	return m.PlayErr
}

func (m *MockAmbience) Stop() {
	m.mu.Lock()
	m.StopCalls++
	m.mu.Unlock()
}

func (m *MockAmbience) Pause() {
	m.mu.Lock()
	m.PauseCalls++
	m.mu.Unlock()
}

func (m *MockAmbience) Resume() {
	m.mu.Lock()
	m.ResumeCalls++
	m.mu.Unlock()
}

func (m *MockAmbience) FadeOutAndStop(_ context.Context, d time.Duration) {
	m.mu.Lock()
	m.FadeOutCalls = append(m.FadeOutCalls, d)
	m.mu.Unlock()
}

func (m *MockAmbience) OnTick(context.Context) {
	m.mu.Lock()
	m.TickCalls++
	m.mu.Unlock()
}

func (m *MockAmbience) CheckHealth(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HealthCalls++
	return m.HealthErr
}

// Played returns a copy of the Play call log.
func (m *MockAmbience) Played() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.PlayCalls...)
}

// MockBells records bell requests. Completion callbacks are captured,
// not invoked; tests fire them explicitly.
type MockBells struct {
	mu sync.Mutex

	PlayErr       error
	CompletionErr error
	// Duration is returned from PlayWithCompletion.
	Duration time.Duration

	PlayCalls       []string
	CompletionCalls []string
	StopAllCalls    int
	onComplete      func()
}

var _ Bells = (*MockBells)(nil)

func (m *MockBells) Play(_ context.Context, assetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlayCalls = append(m.PlayCalls, assetID)
	return m.PlayErr
}

func (m *MockBells) PlayWithCompletion(_ context.Context, assetID string, onComplete func()) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompletionCalls = append(m.CompletionCalls, assetID)
	if m.CompletionErr != nil {
		return 0, m.CompletionErr
	}
	m.onComplete = onComplete
	d := m.Duration
	if d == 0 {
		d = 5 * time.Second
	}
	return d, nil
}

func (m *MockBells) StopAll() {
	m.mu.Lock()
	m.StopAllCalls++
	m.mu.Unlock()
}

// FinishCompletionBell fires the captured completion callback, as the
// audio layer would when the final bell ends.
func (m *MockBells) FinishCompletionBell() {
	m.mu.Lock()
	fn := m.onComplete
	m.onComplete = nil
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Played returns a copy of the interval-bell call log.
func (m *MockBells) Played() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.PlayCalls...)
}

// MockNativeScheduler records native bell scheduling calls.
type MockNativeScheduler struct {
	mu sync.Mutex

	ScheduleErr error

	Scheduled   [][]time.Duration
	CancelCalls int
}

var _ NativeScheduler = (*MockNativeScheduler)(nil)

func (m *MockNativeScheduler) ScheduleBells(_ context.Context, _ string, offsets []time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ScheduleErr != nil {
		return m.ScheduleErr
	}
	m.Scheduled = append(m.Scheduled, append([]time.Duration(nil), offsets...))
	return nil
}

func (m *MockNativeScheduler) CancelBells(context.Context) error {
	m.mu.Lock()
	m.CancelCalls++
	m.mu.Unlock()
	return nil
}
