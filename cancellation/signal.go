package cancellation

import "sync"

// signal is a one-shot cancel request bound to a single Run. Once closed, firing it
// has no effect, which keeps a late key press from leaking into the next request.
type signal struct {
	mu     sync.Mutex
	fired  chan string
	done   bool
	closed bool
}

func newSignal() *signal {
	return &signal{fired: make(chan string, 1)}
}

// fire delivers reason if the signal is still open and has not fired yet.
func (s *signal) fire(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || s.closed {
		return false
	}
	s.done = true
	s.fired <- reason
	return true
}

func (s *signal) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
