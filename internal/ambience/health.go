package ambience

import (
	"context"
	"errors"

	"github.com/stillmind/stillmind/internal/audio"
)

// CheckHealth verifies the ambience is in the expected state and
// repairs it when it is not. It runs on every scheduler tick and on
// the watchdog's independent cadence, because the ambience's own
// callbacks cannot be trusted while backgrounded.
//
// Two repair paths, cheapest first:
//   - stopped but the instance still exists (host silently paused it,
//     observed with the display off): seek to 0 and resume.
//   - the platform reports the player object as gone: recreate the
//     whole instance from the stored source.
//
// Returns ErrUnrecoverable once recreation has failed twice in a row.
func (p *Player) CheckHealth(ctx context.Context) error {
	p.mu.Lock()
	c := p.cur
	if c == nil || c.paused {
		p.mu.Unlock()
		return nil
	}
	tok := p.token
	handle := c.handle
	src := c.src
	assetID := c.assetID
	level := handle.Volume()
	st := handle.State()
	herr := handle.Err()

	if st == audio.Playing && herr == nil {
		c.failures = 0
		p.mu.Unlock()
		return nil
	}

	if !errors.Is(herr, audio.ErrPlayerGone) {
		// Cheap path: the instance is alive, just not playing.
		p.log.Info("ambience found stopped, resuming", "asset", assetID)
		if err := handle.SeekTo(0); err == nil {
			if err := handle.Play(); err == nil {
				c.failures = 0
				p.mu.Unlock()
				return nil
			}
		}
		// Seek or play failed on a live instance; fall through to
		// recreation unless the error now says the player is gone.
	}
	p.mu.Unlock()

	// Expensive path: recreate from the stored source.
	p.log.Warn("ambience player gone, recreating", "asset", assetID)
	newHandle, err := p.engine.Load(ctx, src)

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok != p.token || p.cur == nil {
		if newHandle != nil {
			go newHandle.Close()
		}
		return nil
	}
	if err != nil {
		p.cur.failures++
		p.log.Error("ambience recreation failed", "asset", assetID, "attempt", p.cur.failures, "error", err)
		if p.cur.failures >= 2 {
			return ErrUnrecoverable
		}
		return nil
	}

	old := p.cur.handle
	old.SetOnFinished(nil)
	go old.Close()

	p.cur.handle = newHandle
	p.cur.failures = 0
	newHandle.SetVolume(level)
	newHandle.SetOnFinished(func() { p.loopRestart(tok) })
	if perr := newHandle.Play(); perr != nil {
		p.cur.failures++
		if p.cur.failures >= 2 {
			return ErrUnrecoverable
		}
	}
	return nil
}
