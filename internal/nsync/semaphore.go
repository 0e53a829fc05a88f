// Package nsync implements the thread-level synchronization primitives of
// spec.md §4.1: a FIFO-fair counting Semaphore, an ownership-tracked Lock
// with single-hop priority donation, a Mesa-style Condition, an
// unbuffered rendezvous Channel, and a writer-preferring RWFile with
// same-thread write-then-read passthrough.
//
// Every primitive's "atomic" critical region (spec.md §5: "disabling
// interrupts around the critical region") is realized here with a plain
// sync.Mutex guarding the primitive's own state — the single-CPU
// interrupt-disable trick the original Nachos machine used has no
// equivalent to reach for on a real multi-core Go runtime, so a mutex is
// the idiomatic substitute biscuit itself uses throughout (every lock in
// teacher/{accnt,fd,tinfo} is a plain sync.Mutex guarding a small struct).
package nsync

import (
	"sync"

	"github.com/jfarizano/Nachos/internal/sched"
)

// Semaphore_t is a classic counting semaphore with a FIFO wait queue, per
// spec.md §4.1: P decrements or blocks; V increments or wakes the
// longest-waiting blocked thread.
type Semaphore_t struct {
	mu     sync.Mutex
	name   string
	value  int
	waitq  []*sched.Thread_t
}

// NewSemaphore creates a semaphore with the given initial value.
func NewSemaphore(name string, value int) *Semaphore_t {
	if value < 0 {
		panic("nsync: negative semaphore initial value")
	}
	return &Semaphore_t{name: name, value: value}
}

// P decrements the semaphore, blocking the calling thread t if the value
// is already zero.
func (s *Semaphore_t) P(t *sched.Thread_t) {
	s.mu.Lock()
	if s.value > 0 {
		s.value--
		s.mu.Unlock()
		return
	}
	s.waitq = append(s.waitq, t)
	s.mu.Unlock()
	t.Block()
}

// V increments the semaphore, or if threads are waiting, wakes the one
// that has waited longest (FIFO) by placing it back on the ready list.
func (s *Semaphore_t) V() {
	s.mu.Lock()
	if len(s.waitq) > 0 {
		t := s.waitq[0]
		s.waitq = s.waitq[1:]
		s.mu.Unlock()
		t.WakeUp()
		return
	}
	s.value++
	s.mu.Unlock()
}

// Value returns the current count, for tests and debug dumps.
func (s *Semaphore_t) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}
