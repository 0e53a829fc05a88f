package sched

import (
	"math/rand"
	"runtime"
	"sync"

	"github.com/jfarizano/Nachos/internal/defs"
)

// Scheduler_t owns the ready queue and thread table. Spec.md §5 calls for
// a single-threaded cooperative model; this implementation runs each
// Thread_t on its own goroutine (see thread.go's doc comment for why) but
// keeps the ordering guarantees the spec actually cares about — FIFO
// semaphore wakeup, Mesa-style signal — inside internal/nsync rather than
// relying on the goroutine scheduler for fairness.
type Scheduler_t struct {
	mu         sync.Mutex
	ready      []*Thread_t
	threads    map[Tid_t]*Thread_t
	nextTid    Tid_t
	Preemptive bool
	Rng        *rand.Rand
}

// New creates a scheduler. preemptive (the CLI's -p flag) is stored in
// Preemptive and seed (-rs) seeds Rng; nothing in this module reads
// either, so neither changes how threads run.
func New(preemptive bool, seed int64) *Scheduler_t {
	return &Scheduler_t{
		threads:    make(map[Tid_t]*Thread_t),
		Preemptive: preemptive,
		Rng:        rand.New(rand.NewSource(seed)),
	}
}

// Fork creates a new thread named name at the given priority and schedules
// fn to run on it; joinable controls whether a later Join is legal. It
// returns the new thread's control block immediately; fn starts at once
// on its own goroutine and runs concurrently with the caller.
func (s *Scheduler_t) Fork(name string, priority int, joinable bool, fn func(t *Thread_t)) *Thread_t {
	s.mu.Lock()
	id := s.nextTid
	s.nextTid++
	t := newThread(id, name, priority, joinable)
	s.threads[id] = t
	s.mu.Unlock()

	t.setState(Ready)
	go func() {
		t.setState(Running)
		fn(t)
	}()
	return t
}

// Thread looks up a thread by id.
func (s *Scheduler_t) Thread(id Tid_t) (*Thread_t, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	return t, ok
}

// Reap forgets a thread after it has been joined.
func (s *Scheduler_t) Reap(id Tid_t) {
	s.mu.Lock()
	delete(s.threads, id)
	s.mu.Unlock()
}

// Yield cooperatively gives other ready threads a chance to run. Spec.md
// §5 lists it as an explicit suspension point.
func (s *Scheduler_t) Yield(t *Thread_t) {
	t.setState(Ready)
	runtime.Gosched()
	t.setState(Running)
}

// Join blocks the caller until the target thread finishes, returning its
// exit status. Joining a non-joinable thread is a programmer error and
// panics; joining an unknown (or already reaped) thread returns ESRCH.
func (s *Scheduler_t) Join(pid Tid_t) (int, defs.Err_t) {
	target, ok := s.Thread(pid)
	if !ok {
		return -1, defs.ESRCH
	}
	if !target.Joinable() {
		panic("sched: Join on non-joinable thread")
	}
	<-target.done
	status := target.status
	target.setState(Reaped)
	s.Reap(pid)
	return status, defs.EOK
}
