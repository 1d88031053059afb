package ambience

import (
	"context"

	"github.com/stillmind/stillmind/internal/source"
)

// OnTick drives the manual loop transition and must be called on
// every scheduler tick. Native looping is unreliable for streamed
// sources, so the player pre-loads a second instance of the same
// source near the end of a cycle and swaps to it just before the end:
//
//  1. position ≥ duration−PreloadWindow: pre-load the next instance,
//     paused, at full volume, without disturbing the current one.
//     Only one preparation may be in flight at a time.
//  2. position ≥ duration−OverlapWindow with a prepared instance:
//     start it, confirm it is playing, then instantly mute and
//     asynchronously unload the old one. The instant mute avoids an
//     audible double-volume overlap; the new instance provides the
//     perceptual continuity.
func (p *Player) OnTick(ctx context.Context) {
	p.mu.Lock()
	c := p.cur
	if c == nil || c.paused {
		p.mu.Unlock()
		return
	}
	tok := p.token
	handle := c.handle
	dur := handle.Duration()
	pos := handle.Position()

	if dur <= 0 {
		p.mu.Unlock()
		return
	}

	// Step 2: swap to the prepared instance.
	if c.next != nil && pos >= dur-p.cfg.OverlapWindow {
		next := c.next
		if err := next.Play(); err != nil {
			p.log.Warn("loop swap failed to start next instance", "asset", c.assetID, "error", err)
			c.next = nil
			p.mu.Unlock()
			next.Close()
			return
		}
		c.handle = next
		c.next = nil
		next.SetOnFinished(func() { p.loopRestart(tok) })

		old := handle
		old.SetOnFinished(nil)
		old.SetVolume(0)
		p.mu.Unlock()
		go old.Close()
		return
	}

	// Step 1: pre-load the next instance.
	if c.next == nil && !c.preparing && pos >= dur-p.cfg.PreloadWindow {
		c.preparing = true
		src := c.src
		p.mu.Unlock()
		go p.prepareNext(ctx, tok, src)
		return
	}

	p.mu.Unlock()
}

// prepareNext loads the next cycle's instance. The result is dropped
// if the session moved on while the load was in flight.
func (p *Player) prepareNext(ctx context.Context, tok uint64, src source.Source) {
	handle, err := p.engine.Load(ctx, src)

	p.mu.Lock()
	if tok != p.token || p.cur == nil {
		p.mu.Unlock()
		if handle != nil {
			handle.Close()
		}
		return
	}
	p.cur.preparing = false
	if err != nil {
		p.mu.Unlock()
		p.log.Warn("preparing next loop instance failed", "error", err)
		return
	}
	// Full volume, paused: inaudible until the swap starts it.
	handle.SetVolume(1)
	p.cur.next = handle
	p.mu.Unlock()
}
