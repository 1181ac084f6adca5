package util

// Semaphore is a simple counting semaphore used to bound the number of task
// executions running concurrently during an Engine walk.
type Semaphore struct {
	ch chan struct{}
}

// NewSemaphore returns a Semaphore that allows at most n concurrent holders.
// n <= 0 is treated as 1, so callers never block forever on an empty channel.
func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		n = 1
	}
	return &Semaphore{ch: make(chan struct{}, n)}
}

// Acquire blocks until a slot is available.
func (s *Semaphore) Acquire() {
	s.ch <- struct{}{}
}

// Release frees a slot acquired with Acquire.
func (s *Semaphore) Release() {
	<-s.ch
}
