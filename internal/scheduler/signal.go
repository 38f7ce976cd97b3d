package scheduler

import "sync"

// Signal is an externally settable, one-way cancellation flag. The scheduler
// polls it at batch boundaries and at every completion inside a batch; it is
// never pushed into in-flight work. Set is safe to call from any goroutine,
// any number of times.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Set marks the signal. Idempotent.
func (s *Signal) Set() {
	s.once.Do(func() { close(s.ch) })
}

// IsSet reports whether the signal has been set.
func (s *Signal) IsSet() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Done exposes the underlying channel for select-based waits.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}
