package nsync

import (
	"fmt"

	"github.com/jfarizano/Nachos/internal/sched"
)

// Condition_t is a Mesa-style condition variable bound to a Lock_t, per
// spec.md §4.1. A woken waiter only becomes eligible to run again; it must
// reacquire the lock and recheck its predicate itself (Mesa semantics give
// no ordering guarantee between Signal and the waiter's reacquisition).
type Condition_t struct {
	lock    *Lock_t
	waiters []*Semaphore_t
}

// NewCondition binds a new condition variable to lock.
func NewCondition(lock *Lock_t) *Condition_t {
	return &Condition_t{lock: lock}
}

// Wait releases the lock, blocks the calling thread until signaled, then
// reacquires the lock before returning. The caller must hold the lock.
func (c *Condition_t) Wait(t *sched.Thread_t) {
	if !c.lock.IsHeldByCurrentThread(t) {
		panic(fmt.Sprintf("nsync: Condition.Wait by %s without holding the lock", t.Name))
	}
	waiter := NewSemaphore("cond-waiter", 0)
	c.waiters = append(c.waiters, waiter)
	c.lock.Release(t)
	waiter.P(t)
	c.lock.Acquire(t)
}

// Signal wakes at most one waiter. No-op if none are waiting. The caller
// must hold the lock.
func (c *Condition_t) Signal(t *sched.Thread_t) {
	if !c.lock.IsHeldByCurrentThread(t) {
		panic(fmt.Sprintf("nsync: Condition.Signal by %s without holding the lock", t.Name))
	}
	if len(c.waiters) == 0 {
		return
	}
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	w.V()
}

// Broadcast wakes every thread currently waiting. The caller must hold
// the lock.
func (c *Condition_t) Broadcast(t *sched.Thread_t) {
	if !c.lock.IsHeldByCurrentThread(t) {
		panic(fmt.Sprintf("nsync: Condition.Broadcast by %s without holding the lock", t.Name))
	}
	for len(c.waiters) > 0 {
		c.Signal(t)
	}
}
