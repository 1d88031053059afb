package engine

const eventBufferSize = 16

// Subscription provides event channels for one subscriber.
type Subscription struct {
	Completed <-chan SessionCompleted
	Aborted   <-chan SessionAborted
	Done      <-chan struct{}

	completedCh chan SessionCompleted
	abortedCh   chan SessionAborted
	doneCh      chan struct{}
}

func newSubscription() *Subscription {
	s := &Subscription{
		completedCh: make(chan SessionCompleted, eventBufferSize),
		abortedCh:   make(chan SessionAborted, eventBufferSize),
		doneCh:      make(chan struct{}),
	}
	s.Completed = s.completedCh
	s.Aborted = s.abortedCh
	s.Done = s.doneCh
	return s
}

// close signals subscribers to stop by closing doneCh.
func (s *Subscription) close() {
	close(s.doneCh)
}

// sendCompleted delivers a completion event (non-blocking).
func (s *Subscription) sendCompleted(e SessionCompleted) {
	select {
	case s.completedCh <- e:
	default:
		// Drop if buffer full
	}
}

// sendAborted delivers an abort event (non-blocking).
func (s *Subscription) sendAborted(e SessionAborted) {
	select {
	case s.abortedCh <- e:
	default:
	}
}
