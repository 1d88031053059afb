package audio

import (
	"context"
	"time"
)

// fadeStep is the volume ramp granularity. Coarse steps click; finer
// ones just burn wakeups.
const fadeStep = 50 * time.Millisecond

// Fade ramps the handle's volume from its current level to target
// over d, checking still before every step and abandoning cleanly
// when it reports false (the instance was superseded) or the context
// is cancelled. It blocks for up to d; callers run it in a goroutine
// when they need to keep going.
func Fade(ctx context.Context, h Handle, target float64, d time.Duration, still func() bool) {
	if still == nil {
		still = func() bool { return true }
	}

	from := h.Volume()
	if d <= 0 || from == target {
		if still() {
			h.SetVolume(target)
		}
		return
	}

	steps := max(int(d/fadeStep), 1)
	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d / time.Duration(steps)):
		}
		if !still() {
			return
		}
		h.SetVolume(from + (target-from)*float64(i)/float64(steps))
	}
}
