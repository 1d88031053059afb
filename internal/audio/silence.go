package audio

import "github.com/gopxl/beep/v2"

// silenceStreamer is a seekable stream of zero samples. The scheduler
// loops one of these as its heartbeat source: inaudible, but the
// pipeline keeps pulling samples, so ticks keep firing.
type silenceStreamer struct {
	length int
	pos    int
	closed bool
}

var _ beep.StreamSeekCloser = (*silenceStreamer)(nil)

func newSilence(numSamples int) *silenceStreamer {
	return &silenceStreamer{length: numSamples}
}

func (s *silenceStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.closed || s.pos >= s.length {
		return 0, false
	}
	n = min(len(samples), s.length-s.pos)
	for i := range n {
		samples[i] = [2]float64{}
	}
	s.pos += n
	return n, true
}

func (s *silenceStreamer) Err() error { return nil }

func (s *silenceStreamer) Len() int { return s.length }

func (s *silenceStreamer) Position() int { return s.pos }

func (s *silenceStreamer) Seek(p int) error {
	if p < 0 {
		p = 0
	}
	if p > s.length {
		p = s.length
	}
	s.pos = p
	return nil
}

func (s *silenceStreamer) Close() error {
	s.closed = true
	return nil
}
