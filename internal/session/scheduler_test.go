package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stillmind/stillmind/internal/ambience"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 25, 7, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type schedulerFixture struct {
	sched  *Scheduler
	clk    *fakeClock
	amb    *MockAmbience
	bells  *MockBells
	hb     *ManualHeartbeat
	native *MockNativeScheduler
}

func newFixture(t *testing.T, native bool) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		clk:   newFakeClock(),
		amb:   &MockAmbience{},
		bells: &MockBells{},
		hb:    &ManualHeartbeat{},
	}
	var ns NativeScheduler
	if native {
		f.native = &MockNativeScheduler{}
		ns = f.native
	}
	f.sched = New(f.amb, f.bells, f.hb, ns, DefaultConfig(), nil)
	f.sched.SetClock(f.clk.Now)
	t.Cleanup(func() { f.sched.Stop(context.Background()) })
	return f
}

func (f *schedulerFixture) start(t *testing.T, opts Options) {
	t.Helper()
	if err := f.sched.Start(context.Background(), opts); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
}

func TestScheduler_StartPlaysAmbience(t *testing.T) {
	f := newFixture(t, false)

	f.start(t, Options{AmbienceID: "rain", BellID: "bowl", Duration: 20 * time.Minute})

	if got := f.amb.Played(); len(got) != 1 || got[0] != "rain" {
		t.Errorf("ambience plays = %v, want [rain]", got)
	}
	if f.sched.Status() != Running {
		t.Errorf("Status() = %v, want Running", f.sched.Status())
	}
	if !f.hb.Running() {
		t.Error("heartbeat not started")
	}
}

func TestScheduler_SilentSessionSkipsAmbience(t *testing.T) {
	f := newFixture(t, false)

	f.start(t, Options{BellID: "bowl", Duration: 10 * time.Minute})

	if got := f.amb.Played(); len(got) != 0 {
		t.Errorf("ambience plays = %v, want none", got)
	}
	if f.sched.Status() != Running {
		t.Errorf("Status() = %v, want Running", f.sched.Status())
	}
}

func TestScheduler_AmbienceFailureIsNonFatal(t *testing.T) {
	f := newFixture(t, false)
	f.amb.PlayErr = errors.New("decode failed")

	f.start(t, Options{AmbienceID: "rain", BellID: "bowl", Duration: 10 * time.Minute})

	if f.sched.Status() != Running {
		t.Errorf("Status() = %v, want Running despite ambience failure", f.sched.Status())
	}
}

func TestScheduler_HeartbeatFailureIsFatal(t *testing.T) {
	f := newFixture(t, false)
	f.hb.StartErr = errors.New("no audio device")

	err := f.sched.Start(context.Background(), Options{AmbienceID: "rain", BellID: "bowl", Duration: 10 * time.Minute})

	if err == nil {
		t.Fatal("Start() = nil, want error")
	}
	if f.sched.Status() != Idle {
		t.Errorf("Status() = %v, want Idle", f.sched.Status())
	}
	if f.amb.StopCalls != 1 {
		t.Errorf("ambience StopCalls = %d, want 1", f.amb.StopCalls)
	}
}

func TestScheduler_RejectsNonPositiveDuration(t *testing.T) {
	f := newFixture(t, false)
	if err := f.sched.Start(context.Background(), Options{Duration: 0}); err == nil {
		t.Error("Start() with zero duration should fail")
	}
}

func TestScheduler_IntervalBellsFireOnceEach(t *testing.T) {
	f := newFixture(t, false)
	f.start(t, Options{
		BellID:   "bowl",
		Duration: 20 * time.Minute,
		Repeat:   RepeatConfig{Enabled: true, Count: 3, BeforeEnd: 3 * time.Minute},
	})

	f.clk.Advance(17 * time.Minute)
	f.hb.Tick()
	if got := f.bells.Played(); len(got) != 1 {
		t.Fatalf("after first offset: bells = %v, want 1", got)
	}

	// Same elapsed time again: the bell must not double-fire.
	f.hb.Tick()
	if got := f.bells.Played(); len(got) != 1 {
		t.Errorf("repeat tick: bells = %v, want still 1", got)
	}

	f.clk.Advance(90 * time.Second) // 18:30
	f.hb.Tick()
	if got := f.bells.Played(); len(got) != 2 {
		t.Errorf("after second offset: bells = %v, want 2", got)
	}
}

func TestScheduler_StallFiresOneBellPerTick(t *testing.T) {
	f := newFixture(t, false)
	f.start(t, Options{
		BellID:   "bowl",
		Duration: 20 * time.Minute,
		Repeat:   RepeatConfig{Enabled: true, Count: 3, BeforeEnd: 3 * time.Minute},
	})

	// A long stall makes two offsets due at once; they must be spread
	// across ticks so the bell audio does not overlap itself.
	f.clk.Advance(19 * time.Minute)
	f.hb.Tick()
	if got := f.bells.Played(); len(got) != 1 {
		t.Fatalf("first tick after stall: bells = %v, want 1", got)
	}
	f.hb.Tick()
	if got := f.bells.Played(); len(got) != 2 {
		t.Errorf("second tick after stall: bells = %v, want 2", got)
	}
}

func TestScheduler_CompletionSequence(t *testing.T) {
	f := newFixture(t, false)
	f.bells.Duration = 4 * time.Second

	var completedWith time.Duration
	done := make(chan struct{})
	f.sched.SetOnComplete(func(elapsed time.Duration) {
		completedWith = elapsed
		close(done)
	})

	f.start(t, Options{AmbienceID: "rain", BellID: "bowl", Duration: 20 * time.Minute})

	f.clk.Advance(20 * time.Minute)
	f.hb.Tick()

	if f.sched.Status() != Completing {
		t.Fatalf("Status() = %v, want Completing", f.sched.Status())
	}
	if len(f.bells.CompletionCalls) != 1 {
		t.Fatalf("completion bells = %v, want 1", f.bells.CompletionCalls)
	}
	if len(f.amb.FadeOutCalls) != 1 || f.amb.FadeOutCalls[0] != 4*time.Second {
		t.Errorf("fade-out calls = %v, want one of 4s (the bell duration)", f.amb.FadeOutCalls)
	}
	if f.hb.StopCalls == 0 {
		t.Error("heartbeat not stopped during completion")
	}

	// Interval bells never fire past the end.
	if got := f.bells.Played(); len(got) != 0 {
		t.Errorf("interval bells = %v, want none", got)
	}

	f.bells.FinishCompletionBell()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion callback not invoked")
	}
	if completedWith != 20*time.Minute {
		t.Errorf("completed elapsed = %v, want planned duration", completedWith)
	}
	if !f.sched.IsCompleted() {
		t.Error("IsCompleted() = false after completion")
	}
}

func TestScheduler_CompletionCallbackFiresOnce(t *testing.T) {
	f := newFixture(t, false)
	calls := 0
	f.sched.SetOnComplete(func(time.Duration) { calls++ })

	f.start(t, Options{BellID: "bowl", Duration: time.Minute})
	f.clk.Advance(time.Minute)
	f.hb.Tick()

	f.bells.FinishCompletionBell()
	f.bells.FinishCompletionBell()

	if calls != 1 {
		t.Errorf("completion callback calls = %d, want 1", calls)
	}
}

func TestScheduler_StopAborts(t *testing.T) {
	f := newFixture(t, false)
	var aborted time.Duration
	f.sched.SetOnAbort(func(elapsed time.Duration) { aborted = elapsed })
	completed := false
	f.sched.SetOnComplete(func(time.Duration) { completed = true })

	f.start(t, Options{AmbienceID: "rain", BellID: "bowl", Duration: 20 * time.Minute})
	f.clk.Advance(5 * time.Minute)
	f.sched.Stop(context.Background())

	if f.sched.Status() != Stopped {
		t.Errorf("Status() = %v, want Stopped", f.sched.Status())
	}
	if f.amb.StopCalls != 1 {
		t.Errorf("ambience StopCalls = %d, want 1", f.amb.StopCalls)
	}
	if f.bells.StopAllCalls != 1 {
		t.Errorf("bells StopAllCalls = %d, want 1", f.bells.StopAllCalls)
	}
	if aborted != 5*time.Minute {
		t.Errorf("aborted elapsed = %v, want 5m", aborted)
	}
	if completed {
		t.Error("completion callback fired on abort")
	}

	// Ticks after Stop are inert.
	f.clk.Advance(time.Hour)
	f.hb.Tick()
	if len(f.bells.CompletionCalls) != 0 {
		t.Error("completion bell fired after Stop")
	}
}

func TestScheduler_StopDuringCompletionSkipsCallback(t *testing.T) {
	f := newFixture(t, false)
	completed := false
	f.sched.SetOnComplete(func(time.Duration) { completed = true })

	f.start(t, Options{BellID: "bowl", Duration: time.Minute})
	f.clk.Advance(time.Minute)
	f.hb.Tick() // Completing, final bell ringing

	f.sched.Stop(context.Background())
	f.bells.FinishCompletionBell()

	if completed {
		t.Error("completion callback fired after Stop")
	}
	if f.sched.Status() != Stopped {
		t.Errorf("Status() = %v, want Stopped", f.sched.Status())
	}
}

func TestScheduler_PauseResumeExcludesPausedTime(t *testing.T) {
	f := newFixture(t, false)
	f.start(t, Options{AmbienceID: "rain", BellID: "bowl", Duration: 20 * time.Minute})

	f.clk.Advance(10 * time.Minute)
	f.sched.Pause(context.Background())
	if f.amb.PauseCalls != 1 {
		t.Errorf("ambience PauseCalls = %d, want 1", f.amb.PauseCalls)
	}

	// Paused wall time must not count, and ticks must be inert.
	f.clk.Advance(30 * time.Minute)
	f.hb.Tick()
	if got := f.bells.Played(); len(got) != 0 {
		t.Errorf("bells fired while paused: %v", got)
	}
	if got := f.sched.Elapsed(); got != 10*time.Minute {
		t.Errorf("Elapsed() while paused = %v, want 10m", got)
	}

	f.sched.Resume(context.Background())
	if f.amb.ResumeCalls != 1 {
		t.Errorf("ambience ResumeCalls = %d, want 1", f.amb.ResumeCalls)
	}
	if got := f.sched.Elapsed(); got != 10*time.Minute {
		t.Errorf("Elapsed() after resume = %v, want 10m", got)
	}

	// Session still completes at the shifted end.
	f.clk.Advance(10 * time.Minute)
	f.hb.Tick()
	if f.sched.Status() != Completing {
		t.Errorf("Status() = %v, want Completing", f.sched.Status())
	}
}

func TestScheduler_WatchdogRepairsStalledHeartbeat(t *testing.T) {
	f := newFixture(t, false)
	f.start(t, Options{BellID: "bowl", Duration: 20 * time.Minute})

	f.hb.SetLastTick(f.clk.Now().Add(-10 * time.Second))
	f.sched.watchdogOnce(context.Background())

	if f.hb.RepairCalls != 1 {
		t.Errorf("RepairCalls = %d, want 1", f.hb.RepairCalls)
	}
}

func TestScheduler_WatchdogIgnoresFreshHeartbeat(t *testing.T) {
	f := newFixture(t, false)
	f.start(t, Options{BellID: "bowl", Duration: 20 * time.Minute})

	f.hb.SetLastTick(f.clk.Now().Add(-time.Second))
	f.sched.watchdogOnce(context.Background())

	if f.hb.RepairCalls != 0 {
		t.Errorf("RepairCalls = %d, want 0", f.hb.RepairCalls)
	}
}

func TestScheduler_UnrecoverableAmbienceAbortsSession(t *testing.T) {
	f := newFixture(t, false)
	f.start(t, Options{AmbienceID: "rain", BellID: "bowl", Duration: 20 * time.Minute})

	f.amb.HealthErr = ambience.ErrUnrecoverable
	f.hb.SetLastTick(f.clk.Now())
	f.sched.watchdogOnce(context.Background())

	if f.sched.Status() != Stopped {
		t.Errorf("Status() = %v, want Stopped", f.sched.Status())
	}
}

func TestScheduler_NativePathSchedulesBells(t *testing.T) {
	f := newFixture(t, true)
	f.start(t, Options{
		BellID:   "bowl",
		Duration: 20 * time.Minute,
		Repeat:   RepeatConfig{Enabled: true, Count: 3, BeforeEnd: 3 * time.Minute},
	})

	if len(f.native.Scheduled) != 1 {
		t.Fatalf("native schedules = %d, want 1", len(f.native.Scheduled))
	}
	if got := len(f.native.Scheduled[0]); got != 3 {
		t.Errorf("scheduled offsets = %d, want 3", got)
	}
	if f.hb.StartCalls != 0 {
		t.Error("portable heartbeat started on the native path")
	}

	f.sched.Stop(context.Background())
	if f.native.CancelCalls == 0 {
		t.Error("native bells not cancelled on Stop")
	}
}

func TestScheduler_NativeFailureFallsBackToPortable(t *testing.T) {
	f := newFixture(t, true)
	f.native.ScheduleErr = errors.New("bus gone")

	f.start(t, Options{BellID: "bowl", Duration: 20 * time.Minute})

	if !f.hb.Running() {
		t.Error("portable heartbeat not started after native failure")
	}
}

func TestScheduler_ResumeReschedulesRemainingNativeBells(t *testing.T) {
	f := newFixture(t, true)
	f.start(t, Options{
		BellID:   "bowl",
		Duration: 20 * time.Minute,
		Repeat:   RepeatConfig{Enabled: true, Count: 3, BeforeEnd: 3 * time.Minute},
	})

	f.clk.Advance(18 * time.Minute) // past the 17:00 bell
	f.sched.Pause(context.Background())
	if f.native.CancelCalls != 1 {
		t.Errorf("CancelCalls = %d, want 1 on pause", f.native.CancelCalls)
	}
	f.clk.Advance(5 * time.Minute)
	f.sched.Resume(context.Background())

	if len(f.native.Scheduled) != 2 {
		t.Fatalf("native schedules = %d, want 2 (start + resume)", len(f.native.Scheduled))
	}
	// 18:30 and 20:00 remain, now relative to the resume moment.
	want := []time.Duration{30 * time.Second, 2 * time.Minute}
	got := f.native.Scheduled[1]
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("re-scheduled offsets = %v, want %v", got, want)
	}
}

func TestScheduler_NativePauseDefersCompletion(t *testing.T) {
	clk := newFakeClock()
	cfg := DefaultConfig()
	cfg.NativeBellDuration = 10 * time.Millisecond
	native := &MockNativeScheduler{}
	sched := New(&MockAmbience{}, &MockBells{}, &ManualHeartbeat{}, native, cfg, nil)
	sched.SetClock(clk.Now)
	t.Cleanup(func() { sched.Stop(context.Background()) })

	if err := sched.Start(context.Background(), Options{BellID: "bowl", Duration: 40 * time.Millisecond}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	sched.Pause(context.Background())

	// Wait well past the original wall-clock end: a paused session must
	// not complete.
	time.Sleep(150 * time.Millisecond)
	if got := sched.Status(); got != Running {
		t.Fatalf("Status() while paused = %v, want still Running", got)
	}

	clk.Advance(time.Minute) // pause length, must not count
	sched.Resume(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for sched.Status() != Completed && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := sched.Status(); got != Completed {
		t.Fatalf("Status() after resume = %v, want Completed", got)
	}
}

func TestScheduler_StartAbortsPreviousSession(t *testing.T) {
	f := newFixture(t, false)
	aborts := 0
	f.sched.SetOnAbort(func(time.Duration) { aborts++ })

	f.start(t, Options{BellID: "bowl", Duration: 20 * time.Minute})
	first := f.sched.SessionID()
	f.start(t, Options{BellID: "bowl", Duration: 10 * time.Minute})

	if aborts != 1 {
		t.Errorf("aborts = %d, want 1", aborts)
	}
	if f.sched.SessionID() == first {
		t.Error("session id unchanged after restart")
	}
	if f.sched.Status() != Running {
		t.Errorf("Status() = %v, want Running", f.sched.Status())
	}
}

func TestStatus_String(t *testing.T) {
	cases := map[Status]string{
		Idle:       "Idle",
		Running:    "Running",
		Completing: "Completing",
		Completed:  "Completed",
		Stopped:    "Stopped",
	}
	for st, want := range cases {
		if got := st.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", st, got, want)
		}
	}
}
