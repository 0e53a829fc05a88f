package nsync

import (
	"fmt"
	"sync"

	"github.com/jfarizano/Nachos/internal/sched"
)

// Lock_t is a binary semaphore with tracked ownership and single-hop
// priority donation, per spec.md §4.1.
type Lock_t struct {
	name string
	sem  *Semaphore_t

	mu    sync.Mutex
	owner *sched.Thread_t
}

// NewLock creates an unheld lock.
func NewLock(name string) *Lock_t {
	return &Lock_t{name: name, sem: NewSemaphore(name+"-sem", 1)}
}

// IsHeldByCurrentThread reports whether t currently owns the lock.
func (l *Lock_t) IsHeldByCurrentThread(t *sched.Thread_t) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner == t
}

// Acquire blocks until the lock is free, then takes ownership. Acquiring
// a lock already held by the calling thread is a programmer error and
// panics, per spec.md §7's taxonomy of contract errors.
func (l *Lock_t) Acquire(t *sched.Thread_t) {
	if l.IsHeldByCurrentThread(t) {
		panic(fmt.Sprintf("nsync: %s: double acquire by %s", l.name, t.Name))
	}

	l.mu.Lock()
	owner := l.owner
	l.mu.Unlock()
	if owner != nil && t.EffectivePriority() > owner.EffectivePriority() {
		owner.Donate(t.EffectivePriority())
	}

	l.sem.P(t)

	l.mu.Lock()
	l.owner = t
	l.mu.Unlock()
}

// Release gives up ownership and wakes the next acquirer, if any.
// Releasing a lock not held by the calling thread is a programmer error.
func (l *Lock_t) Release(t *sched.Thread_t) {
	if !l.IsHeldByCurrentThread(t) {
		panic(fmt.Sprintf("nsync: %s: release by non-owner %s", l.name, t.Name))
	}
	l.mu.Lock()
	l.owner = nil
	l.mu.Unlock()

	// Single-hop donation: whatever priority t accrued while holding the
	// lock is not its own, so it's dropped on release rather than carried
	// forward or propagated further up a chain.
	t.RevokeDonation()

	l.sem.V()
}
