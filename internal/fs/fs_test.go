package fs

import (
	"testing"
	"time"

	"github.com/jfarizano/Nachos/internal/defs"
	"github.com/jfarizano/Nachos/internal/disk"
	"github.com/jfarizano/Nachos/internal/sched"
)

// run executes body on a fresh scheduled thread and waits for it to
// finish, giving test bodies a *sched.Thread_t to pass to the
// lock-bearing fs operations.
func run(t *testing.T, s *sched.Scheduler_t, body func(th *sched.Thread_t)) {
	t.Helper()
	done := make(chan struct{})
	s.Fork("test", 1, false, func(th *sched.Thread_t) {
		defer close(done)
		body(th)
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("test thread timed out")
	}
}

func freshFS() *FileSystem_t {
	d := disk.NewMemDisk()
	Format(d)
	return Mount(d)
}

// TestCreateOpenWriteReadRemove exercises spec.md §8 scenario 1.
func TestCreateOpenWriteReadRemove(t *testing.T) {
	s := sched.New(false, 1)
	fsys := freshFS()

	run(t, s, func(th *sched.Thread_t) {
		if err := fsys.Create(th, "a", 0); err != 0 {
			t.Fatalf("Create: %v", err)
		}
		fd1, err := fsys.Open(th, "a")
		if err != 0 {
			t.Fatalf("Open: %v", err)
		}
		n, err := fd1.Write(th, []byte("hello"))
		if n != 5 || err != 0 {
			t.Fatalf("Write: n=%d err=%v", n, err)
		}
		table := NewFDTable()
		localID, _ := table.Install(fd1)
		if err := fsys.Close(th, table, localID); err != 0 {
			t.Fatalf("Close: %v", err)
		}

		fd2, err := fsys.Open(th, "a")
		if err != 0 {
			t.Fatalf("reopen: %v", err)
		}
		buf := make([]byte, 5)
		n, err = fd2.Read(th, buf)
		if n != 5 || string(buf) != "hello" || err != 0 {
			t.Fatalf("Read: n=%d buf=%q err=%v", n, buf, err)
		}
		localID2, _ := table.Install(fd2)
		fsys.Close(th, table, localID2)

		if err := fsys.Remove(th, "a"); err != 0 {
			t.Fatalf("Remove: %v", err)
		}
		if _, err := fsys.Open(th, "a"); err != defs.ENOENT {
			t.Fatalf("Open after remove: want ENOENT, got %v", err)
		}
	})
}

// TestDeferredDelete exercises spec.md §8 scenario 2.
func TestDeferredDelete(t *testing.T) {
	s := sched.New(false, 1)
	fsys := freshFS()

	run(t, s, func(th *sched.Thread_t) {
		fsys.Create(th, "a", 5)
		fd1, _ := fsys.Open(th, "a")
		fd1.Write(th, []byte("hello"))
		fd1.Position = 0

		table := NewFDTable()
		localID, _ := table.Install(fd1)

		if err := fsys.Remove(th, "a"); err != 0 {
			t.Fatalf("Remove: %v", err)
		}
		buf := make([]byte, 5)
		n, err := fd1.Read(th, buf)
		if n != 5 || err != 0 {
			t.Fatalf("read after deferred remove failed: n=%d err=%v", n, err)
		}

		if !fsys.Check(th) {
			t.Fatalf("Check should still pass while fd1 is open")
		}

		fsys.Close(th, table, localID)

		if !fsys.Check(th) {
			t.Fatalf("Check should pass after close reclaims sectors")
		}
	})
}

// TestExtensibleFile exercises spec.md §8 scenario 3: a file crossing an
// indirection-table boundary.
func TestExtensibleFile(t *testing.T) {
	s := sched.New(false, 1)
	fsys := freshFS()

	run(t, s, func(th *sched.Thread_t) {
		fsys.Create(th, "b", 0)
		fd, _ := fsys.Open(th, "b")

		// NumDirect*SectorSize bytes fit in the first indirection table;
		// pushing past that forces a second table to be allocated.
		const count = 1100
		for i := 0; i < count; i++ {
			buf := []byte{byte(i), byte(i >> 8), byte(i >> 16), byte(i >> 24)}
			n, err := fd.Write(th, buf)
			if n != 4 || err != 0 {
				t.Fatalf("write %d: n=%d err=%v", i, n, err)
			}
		}

		for i := 0; i < count; i++ {
			fd.Position = 4 * i
			buf := make([]byte, 4)
			n, err := fd.Read(th, buf)
			if n != 4 || err != 0 {
				t.Fatalf("read %d: n=%d err=%v", i, n, err)
			}
			got := int(buf[0]) | int(buf[1])<<8 | int(buf[2])<<16 | int(buf[3])<<24
			if got != i {
				t.Fatalf("read %d: got %d", i, got)
			}
		}

		if !fsys.Check(th) {
			t.Fatalf("Check failed after extending file across an indirection boundary")
		}
	})
}

// TestReadersWriter covers the writer part of spec.md §8 scenario 4: a
// handle reads back "XYZ" right after writing it. Concurrent readers and a
// blocked second writer are not exercised here.
func TestReadersWriter(t *testing.T) {
	s := sched.New(false, 1)
	fsys := freshFS()

	run(t, s, func(th *sched.Thread_t) {
		fsys.Create(th, "c", 0)
		fd, _ := fsys.Open(th, "c")
		fd.Write(th, []byte("XYZ"))
		fd.Position = 0
		buf := make([]byte, 3)
		fd.Read(th, buf)
		if string(buf) != "XYZ" {
			t.Fatalf("writer self-read: got %q", buf)
		}
	})
}
