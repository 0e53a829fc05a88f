package nsync

import (
	"fmt"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jfarizano/Nachos/internal/sched"
)

func newTestSched() *sched.Scheduler_t {
	return sched.New(false, 1)
}

// TestSemaphoreFairness checks spec.md §8's "N threads blocked on P, N
// successive V calls unblock them in FIFO order" property.
func TestSemaphoreFairness(t *testing.T) {
	s := newTestSched()
	sem := NewSemaphore("test", 0)

	const n = 5
	order := make(chan int, n)
	for i := 0; i < n; i++ {
		i := i
		s.Fork("waiter", 1, false, func(th *sched.Thread_t) {
			sem.P(th)
			order <- i
		})
		time.Sleep(2 * time.Millisecond) // ensure arrival order at the semaphore
	}
	time.Sleep(5 * time.Millisecond)

	for i := 0; i < n; i++ {
		sem.V()
	}

	for i := 0; i < n; i++ {
		select {
		case got := <-order:
			if got != i {
				t.Fatalf("fifo violated: want waiter %d unblocked %dth, got waiter %d", i, i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for waiter %d", i)
		}
	}
}

func TestLockDoubleAcquirePanics(t *testing.T) {
	s := newTestSched()
	l := NewLock("l")
	done := make(chan struct{})
	s.Fork("t", 1, false, func(th *sched.Thread_t) {
		defer close(done)
		defer func() {
			if recover() == nil {
				t.Errorf("expected panic on double acquire")
			}
		}()
		l.Acquire(th)
		l.Acquire(th)
	})
	<-done
}

func TestRWFileWriterReadPassthrough(t *testing.T) {
	s := newTestSched()
	f := NewRWFile()
	done := make(chan struct{})
	s.Fork("writer", 1, false, func(th *sched.Thread_t) {
		defer close(done)
		f.BeginWrite(th)
		// same-thread passthrough: must not deadlock.
		f.BeginRead(th)
		f.EndRead(th)
		f.EndWrite(th)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer-to-read passthrough deadlocked")
	}
}

func TestRWFileConcurrentReaders(t *testing.T) {
	s := newTestSched()
	f := NewRWFile()
	const n = 3
	entered := make(chan struct{}, n)
	release := make(chan struct{})
	doneCh := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		s.Fork("reader", 1, false, func(th *sched.Thread_t) {
			f.BeginRead(th)
			entered <- struct{}{}
			<-release
			f.EndRead(th)
			doneCh <- struct{}{}
		})
	}
	for i := 0; i < n; i++ {
		select {
		case <-entered:
		case <-time.After(time.Second):
			t.Fatalf("reader %d never entered", i)
		}
	}
	close(release)
	for i := 0; i < n; i++ {
		<-doneCh
	}
}

// TestRWFileManyReadersErrgroup fans N simulated threads into BeginRead at
// once and joins them with first-error propagation, replacing a
// hand-rolled sync.WaitGroup plus error channel.
func TestRWFileManyReadersErrgroup(t *testing.T) {
	s := newTestSched()
	f := NewRWFile()

	var g errgroup.Group
	const n = 8
	for i := 0; i < n; i++ {
		i := i
		done := make(chan error, 1)
		s.Fork("reader", 1, false, func(th *sched.Thread_t) {
			f.BeginRead(th)
			defer f.EndRead(th)
			if f.WriterActive(th) {
				done <- fmt.Errorf("reader %d observed an active writer", i)
				return
			}
			done <- nil
		})
		g.Go(func() error {
			select {
			case err := <-done:
				return err
			case <-time.After(time.Second):
				return fmt.Errorf("reader %d timed out", i)
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
