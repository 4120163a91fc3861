package syncx

import "sync"

// Signal is a broadcast wake-up: every Broadcast closes the channel handed
// out by the preceding Wait calls. Waiters re-arm by calling Wait again.
type Signal struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewSignal creates an armed signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Wait returns a channel closed by the next Broadcast.
func (s *Signal) Wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Broadcast wakes all current waiters.
func (s *Signal) Broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.ch)
	s.ch = make(chan struct{})
}
