// Package session contains the timer state machine that drives a
// meditation session: bell scheduling, the heartbeat clock, and the
// watchdog that repairs both when the host throttles them.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stillmind/stillmind/internal/ambience"
)

// Status is the scheduler state machine.
//
// Valid transitions:
//   - Idle       → Running    (via Start)
//   - Running    → Completing (duration elapsed)
//   - Completing → Completed  (final bell finished)
//   - Running    → Stopped    (via Stop)
//   - Completing → Stopped    (via Stop)
type Status int

const (
	Idle Status = iota
	Running
	Completing
	Completed
	Stopped
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Completing:
		return "Completing"
	case Completed:
		return "Completed"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Ambience is what the scheduler needs from the ambience layer. The
// portable player and the native-bridge adapter both satisfy it, so
// the scheduler is written once against the contract.
type Ambience interface {
	Play(ctx context.Context, assetID string) error
	Stop()
	Pause()
	Resume()
	FadeOutAndStop(ctx context.Context, d time.Duration)
	OnTick(ctx context.Context)
	CheckHealth(ctx context.Context) error
}

// Bells is what the scheduler needs from the bell layer.
type Bells interface {
	Play(ctx context.Context, assetID string) error
	PlayWithCompletion(ctx context.Context, assetID string, onComplete func()) (time.Duration, error)
	StopAll()
}

// NativeScheduler is the optional higher-privilege bell scheduling
// facility. Offsets are relative to the moment of the call. nil when
// the capability is absent.
type NativeScheduler interface {
	ScheduleBells(ctx context.Context, bellAssetID string, offsets []time.Duration) error
	CancelBells(ctx context.Context) error
}

// Config tunes the scheduler and its watchdog.
type Config struct {
	// WatchdogInterval is the secondary check cadence, driven by a
	// timing source independent of the heartbeat.
	WatchdogInterval time.Duration
	// StallThreshold is how long without a heartbeat tick counts as a
	// stall.
	StallThreshold time.Duration
	// NativeBellDuration is the completion-fade window used on the
	// native path, where the bell's real duration is not reported
	// back.
	NativeBellDuration time.Duration
}

// DefaultConfig returns the stock scheduler tuning.
func DefaultConfig() Config {
	return Config{
		WatchdogInterval:   3 * time.Second,
		StallThreshold:     5 * time.Second,
		NativeBellDuration: 5 * time.Second,
	}
}

// Options describes one session.
type Options struct {
	// AmbienceID is the looping background sound; empty for a silent
	// session.
	AmbienceID string
	// BellID is the bell sound for interval and completion bells.
	BellID string
	// Duration is the total session length.
	Duration time.Duration
	// Repeat configures interval bells near the end of the session.
	Repeat RepeatConfig
}

type liveSession struct {
	id          uuid.UUID
	opts        Options
	start       time.Time
	schedule    []time.Duration
	fired       map[time.Duration]bool
	native      bool
	paused      bool
	pausedAt    time.Time
	pausedTotal time.Duration
}

// Scheduler runs at most one session at a time; starting a new one
// aborts the previous one first.
type Scheduler struct {
	mu    sync.Mutex
	log   *slog.Logger
	cfg   Config
	clock func() time.Time

	ambience Ambience
	bells    Bells
	hb       Heartbeat
	native   NativeScheduler

	status        Status
	sess          *liveSession
	watchdogStop  chan struct{}
	completeTimer *time.Timer

	onComplete func(elapsed time.Duration)
	onAbort    func(elapsed time.Duration)
}

// New creates a scheduler. native may be nil.
func New(amb Ambience, bells Bells, hb Heartbeat, native NativeScheduler, cfg Config, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		log:      log.With("component", "scheduler"),
		cfg:      cfg,
		clock:    time.Now,
		ambience: amb,
		bells:    bells,
		hb:       hb,
		native:   native,
		status:   Idle,
	}
}

// SetClock replaces the wall clock, for tests.
func (s *Scheduler) SetClock(clock func() time.Time) {
	s.mu.Lock()
	s.clock = clock
	s.mu.Unlock()
}

// SetOnComplete registers the session-complete callback. It receives
// the elapsed (planned) duration.
func (s *Scheduler) SetOnComplete(fn func(elapsed time.Duration)) {
	s.mu.Lock()
	s.onComplete = fn
	s.mu.Unlock()
}

// SetOnAbort registers the session-aborted callback. It receives the
// elapsed duration at the moment of the abort.
func (s *Scheduler) SetOnAbort(fn func(elapsed time.Duration)) {
	s.mu.Lock()
	s.onAbort = fn
	s.mu.Unlock()
}

// Start begins a session. Any previous session is aborted first. The
// ambience failing to load is non-fatal (the timer still runs); a
// heartbeat that cannot start is fatal, since without it nothing
// would ever fire.
func (s *Scheduler) Start(ctx context.Context, opts Options) error {
	if opts.Duration <= 0 {
		return errors.New("session: duration must be positive")
	}
	s.Stop(ctx)

	if opts.Repeat.Enabled && !opts.Repeat.Valid(opts.Duration) {
		s.log.Warn("repeat-bell window invalid, completion bell only",
			"before_end", opts.Repeat.BeforeEnd, "duration", opts.Duration)
	}
	schedule := BuildSchedule(opts.Duration, opts.Repeat)

	if opts.AmbienceID != "" {
		if err := s.ambience.Play(ctx, opts.AmbienceID); err != nil {
			s.log.Warn("ambience unavailable, continuing without it",
				"asset", opts.AmbienceID, "error", err)
		}
	}

	s.mu.Lock()
	sess := &liveSession{
		id:       uuid.New(),
		opts:     opts,
		start:    s.clock(),
		schedule: schedule,
		fired:    map[time.Duration]bool{},
	}
	s.sess = sess
	s.status = Running
	s.mu.Unlock()

	if s.native != nil {
		if err := s.native.ScheduleBells(ctx, opts.BellID, schedule); err == nil {
			s.mu.Lock()
			sess.native = true
			s.completeTimer = time.AfterFunc(opts.Duration, func() { s.nativeComplete(ctx) })
			s.mu.Unlock()
			s.log.Info("session started", "id", sess.id, "duration", opts.Duration, "path", "native", "bells", len(schedule))
			return nil
		}
		s.log.Warn("native bell scheduling failed, falling back to portable path")
	}

	if err := s.hb.Start(ctx, func() { s.tick(ctx) }); err != nil {
		s.ambience.Stop()
		s.mu.Lock()
		s.status = Idle
		s.sess = nil
		s.mu.Unlock()
		return err
	}

	stop := make(chan struct{})
	s.mu.Lock()
	s.watchdogStop = stop
	s.mu.Unlock()
	go s.watchdog(ctx, stop)

	s.log.Info("session started", "id", sess.id, "duration", opts.Duration, "path", "portable", "bells", len(schedule))
	return nil
}

// tick runs on every heartbeat. It fires at most one due bell (even
// when a stall made several due at once, to avoid overlapping bell
// audio), performs ambience watchdog duties, and detects completion.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	if s.status != Running || s.sess == nil || s.sess.paused {
		s.mu.Unlock()
		return
	}
	sess := s.sess
	elapsed := s.clock().Sub(sess.start) - sess.pausedTotal

	completing := elapsed >= sess.opts.Duration
	var due time.Duration
	fireBell := false
	if completing {
		s.status = Completing
	} else {
		for _, off := range sess.schedule {
			if off >= sess.opts.Duration {
				// The completion bell is played by the completion
				// sequence, not as an interval bell.
				continue
			}
			if off <= elapsed && !sess.fired[off] {
				sess.fired[off] = true
				due = off
				fireBell = true
				break
			}
		}
	}
	bellID := sess.opts.BellID
	s.mu.Unlock()

	// Watchdog duties run inline on every tick: the ambience's own
	// callbacks are not trustworthy in the background.
	s.ambience.OnTick(ctx)
	if err := s.ambience.CheckHealth(ctx); errors.Is(err, ambience.ErrUnrecoverable) {
		s.log.Error("ambience unrecoverable, aborting session")
		s.Stop(ctx)
		return
	}

	switch {
	case completing:
		s.complete(ctx)
	case fireBell:
		s.log.Debug("interval bell", "offset", due)
		if err := s.bells.Play(ctx, bellID); err != nil {
			s.log.Warn("interval bell failed", "error", err)
		}
	}
}

// complete runs the completion sequence: stop the clock sources, play
// the final bell, and fade the ambience so both end together.
func (s *Scheduler) complete(ctx context.Context) {
	s.mu.Lock()
	if s.status != Completing || s.sess == nil {
		s.mu.Unlock()
		return
	}
	bellID := s.sess.opts.BellID
	s.stopClocksLocked()
	s.mu.Unlock()

	s.hb.Stop()
	if s.native != nil {
		_ = s.native.CancelBells(ctx)
	}

	dur, err := s.bells.PlayWithCompletion(ctx, bellID, func() { s.finishComplete() })
	if err != nil {
		s.log.Warn("completion bell failed", "error", err)
		dur = time.Second
		defer s.finishComplete()
	}
	s.ambience.FadeOutAndStop(ctx, dur)
}

// nativeComplete is the deferred completion on the native path, where
// the native facility plays the final bell itself.
func (s *Scheduler) nativeComplete(ctx context.Context) {
	s.mu.Lock()
	// The timer may already be in flight when Pause stops it; a paused
	// session must not complete on the original wall-clock end.
	if s.status != Running || s.sess == nil || s.sess.paused {
		s.mu.Unlock()
		return
	}
	s.status = Completing
	s.mu.Unlock()

	s.ambience.FadeOutAndStop(ctx, s.cfg.NativeBellDuration)
	time.AfterFunc(s.cfg.NativeBellDuration, s.finishComplete)
}

// finishComplete transitions Completing → Completed exactly once and
// invokes the session-complete callback.
func (s *Scheduler) finishComplete() {
	s.mu.Lock()
	if s.status != Completing || s.sess == nil {
		s.mu.Unlock()
		return
	}
	s.status = Completed
	elapsed := s.sess.opts.Duration
	id := s.sess.id
	cb := s.onComplete
	s.mu.Unlock()

	s.log.Info("session completed", "id", id, "elapsed", elapsed)
	if cb != nil {
		cb(elapsed)
	}
}

// Stop aborts the session: heartbeat and native schedule cancelled,
// ambience and bells stopped immediately with no fade-out grace, and
// the completion callback is never invoked. Safe to call from any
// state.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.status != Running && s.status != Completing {
		s.mu.Unlock()
		return
	}
	sess := s.sess
	elapsed := s.elapsedLocked()
	s.status = Stopped
	s.sess = nil
	s.stopClocksLocked()
	cb := s.onAbort
	s.mu.Unlock()

	s.hb.Stop()
	if s.native != nil {
		_ = s.native.CancelBells(ctx)
	}
	s.ambience.Stop()
	s.bells.StopAll()

	s.log.Info("session aborted", "id", sess.id, "elapsed", elapsed)
	if cb != nil {
		cb(elapsed)
	}
}

// stopClocksLocked halts the watchdog and the deferred completion
// timer. Caller holds s.mu and stops the heartbeat and native
// schedule after releasing it.
func (s *Scheduler) stopClocksLocked() {
	if s.watchdogStop != nil {
		close(s.watchdogStop)
		s.watchdogStop = nil
	}
	if s.completeTimer != nil {
		s.completeTimer.Stop()
		s.completeTimer = nil
	}
}

// Pause suspends the session: ambience paused in place, heartbeat
// paused, native bells and the deferred native completion cancelled.
// Paused time does not count against the session.
func (s *Scheduler) Pause(ctx context.Context) {
	s.mu.Lock()
	if s.status != Running || s.sess == nil || s.sess.paused {
		s.mu.Unlock()
		return
	}
	s.sess.paused = true
	s.sess.pausedAt = s.clock()
	if s.completeTimer != nil {
		s.completeTimer.Stop()
		s.completeTimer = nil
	}
	s.mu.Unlock()

	s.ambience.Pause()
	s.hb.Pause()
	if s.native != nil {
		_ = s.native.CancelBells(ctx)
	}
}

// Resume continues a paused session. Remaining native bells are
// re-scheduled relative to now, shifted by the pause length, and the
// deferred native completion is re-armed with the remaining duration.
func (s *Scheduler) Resume(ctx context.Context) {
	s.mu.Lock()
	if s.status != Running || s.sess == nil || !s.sess.paused {
		s.mu.Unlock()
		return
	}
	sess := s.sess
	sess.pausedTotal += s.clock().Sub(sess.pausedAt)
	sess.paused = false
	elapsed := s.elapsedLocked()
	if sess.native {
		left := max(sess.opts.Duration-elapsed, 0)
		s.completeTimer = time.AfterFunc(left, func() { s.nativeComplete(ctx) })
	}

	var remaining []time.Duration
	for _, off := range sess.schedule {
		if off > elapsed && !sess.fired[off] {
			remaining = append(remaining, off-elapsed)
		}
	}
	bellID := sess.opts.BellID
	s.mu.Unlock()

	s.ambience.Resume()
	s.hb.Resume()
	if s.native != nil && len(remaining) > 0 {
		if err := s.native.ScheduleBells(ctx, bellID, remaining); err != nil {
			s.log.Warn("re-scheduling native bells failed", "error", err)
		}
	}
}

// IsCompleted reports whether the last session ran to completion.
func (s *Scheduler) IsCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == Completed
}

// Status returns the current state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Elapsed returns how much meditation time has passed in the current
// session, excluding pauses.
func (s *Scheduler) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *Scheduler) elapsedLocked() time.Duration {
	if s.sess == nil {
		return 0
	}
	paused := s.sess.pausedTotal
	if s.sess.paused {
		paused += s.clock().Sub(s.sess.pausedAt)
	}
	return s.clock().Sub(s.sess.start) - paused
}

// SessionID returns the id of the live session, or uuid.Nil.
func (s *Scheduler) SessionID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return uuid.Nil
	}
	return s.sess.id
}

// watchdog is the secondary fixed-interval check, driven by a timing
// source independent of the heartbeat: the one failure mode logic
// inside the tick cannot see is the tick source itself dying.
func (s *Scheduler) watchdog(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.watchdogOnce(ctx)
		}
	}
}

// watchdogOnce performs one watchdog pass: heartbeat stall detection
// and repair, plus an ambience health check.
func (s *Scheduler) watchdogOnce(ctx context.Context) {
	s.mu.Lock()
	active := s.status == Running && s.sess != nil && !s.sess.paused
	now := s.clock()
	s.mu.Unlock()
	if !active {
		return
	}

	if stall := now.Sub(s.hb.LastTick()); stall > s.cfg.StallThreshold {
		s.log.Warn("heartbeat stalled, repairing", "stall", stall)
		if err := s.hb.Repair(ctx); err != nil {
			s.log.Error("heartbeat repair failed", "error", err)
		}
	}

	if err := s.ambience.CheckHealth(ctx); errors.Is(err, ambience.ErrUnrecoverable) {
		s.log.Error("ambience unrecoverable, aborting session")
		s.Stop(ctx)
	}
}
