package engine

import "time"

// SessionCompleted is emitted when a session runs its full duration
// and the final bell has finished. Elapsed carries the meditated time
// for downstream history logging.
type SessionCompleted struct {
	Elapsed time.Duration
}

// SessionAborted is emitted when a session is stopped by the user
// before completing. The completion callback never fires for an
// aborted session.
type SessionAborted struct {
	Elapsed time.Duration
}
