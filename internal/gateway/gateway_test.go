package gateway

import (
	"bytes"
	"testing"
	"time"

	"github.com/jfarizano/Nachos/internal/console"
	"github.com/jfarizano/Nachos/internal/defs"
	"github.com/jfarizano/Nachos/internal/disk"
	"github.com/jfarizano/Nachos/internal/fs"
	"github.com/jfarizano/Nachos/internal/noff"
	"github.com/jfarizano/Nachos/internal/sched"
	"github.com/jfarizano/Nachos/internal/vm"
)

// tinyNoff builds a minimal NOFF header with no code/data segments, just
// enough for an address space that holds only the user stack.
func tinyNoff() []byte {
	buf := make([]byte, 40)
	order := func(off int, v uint32) {
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
		buf[off+2] = byte(v >> 16)
		buf[off+3] = byte(v >> 24)
	}
	order(0, defs.NachosMagic)
	return buf
}

func setupGateway(t *testing.T) (*Gateway_t, *sched.Scheduler_t, *fs.FileSystem_t) {
	t.Helper()
	d := disk.NewMemDisk()
	fs.Format(d)
	filesystem := fs.Mount(d)
	s := sched.New(false, 1)
	con := console.New(bytes.NewReader(nil), &bytes.Buffer{})
	gw := New(filesystem, s, con, vm.Eager, nil)
	return gw, s, filesystem
}

func installExec(t *testing.T, th *sched.Thread_t, filesystem *fs.FileSystem_t, name string) *fs.OpenFile_t {
	t.Helper()
	data := tinyNoff()
	if err := filesystem.Create(th, name, len(data)); err != defs.EOK {
		t.Fatalf("create exec: %v", err)
	}
	of, err := filesystem.Open(th, name)
	if err != defs.EOK {
		t.Fatalf("open exec: %v", err)
	}
	if _, err := of.Write(th, data); err != defs.EOK {
		t.Fatalf("write exec: %v", err)
	}
	of.Position = 0
	return of
}

func runKernel(t *testing.T, s *sched.Scheduler_t, body func(th *sched.Thread_t)) {
	t.Helper()
	done := make(chan struct{})
	s.Fork("kernel", 1, false, func(th *sched.Thread_t) {
		defer close(done)
		body(th)
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

// TestCreateOpenWriteReadClose exercises the file syscalls end to end
// through Dispatch, using a running process's address space to stage
// string/byte arguments in "user" memory the way a trapped user program
// would.
func TestCreateOpenWriteReadClose(t *testing.T) {
	gw, s, filesystem := setupGateway(t)

	runKernel(t, s, func(th *sched.Thread_t) {
		execOf := installExec(t, th, filesystem, "init")
		hdr, nerr := noff.Read(&openFileReader{t: th, of: execOf})
		if nerr != defs.EOK {
			t.Fatalf("noff.Read: %v", nerr)
		}

		space, err := vm.New(th, gw.Tlb, gw.Coremap, gw.Mem, filesystem, execOf, hdr, vm.Eager, 1)
		if err != defs.EOK {
			t.Fatalf("vm.New: %v", err)
		}
		proc := &Process_t{Pid: 1, Space: space, Files: fs.NewFDTable()}

		const nameAddr = 0
		if err := WriteStringToUser(th, gw.Tlb, space, nameAddr, "greeting"); err != defs.EOK {
			t.Fatalf("WriteStringToUser: %v", err)
		}

		proc.Regs.Set(Reg2, int32(defs.SC_Create))
		proc.Regs.Set(Reg4, nameAddr)
		gw.Dispatch(th, proc)
		if proc.Regs.Get(Reg2) != 0 {
			t.Fatalf("Create failed: ret=%d", proc.Regs.Get(Reg2))
		}

		proc.Regs.Set(Reg2, int32(defs.SC_Open))
		proc.Regs.Set(Reg4, nameAddr)
		gw.Dispatch(th, proc)
		fd := proc.Regs.Get(Reg2)
		if fd < 0 {
			t.Fatalf("Open failed")
		}

		const bufAddr = 64
		if err := WriteBufferToUser(th, gw.Tlb, space, bufAddr, []byte("hi")); err != defs.EOK {
			t.Fatalf("WriteBufferToUser: %v", err)
		}
		proc.Regs.Set(Reg2, int32(defs.SC_Write))
		proc.Regs.Set(Reg4, bufAddr)
		proc.Regs.Set(Reg5, 2)
		proc.Regs.Set(Reg6, fd)
		gw.Dispatch(th, proc)
		if proc.Regs.Get(Reg2) != 2 {
			t.Fatalf("Write returned %d", proc.Regs.Get(Reg2))
		}

		const readBackAddr = 96
		proc.Regs.Set(Reg2, int32(defs.SC_Close))
		proc.Regs.Set(Reg4, fd)
		gw.Dispatch(th, proc)
		if proc.Regs.Get(Reg2) != 0 {
			t.Fatalf("Close failed")
		}

		proc.Regs.Set(Reg2, int32(defs.SC_Open))
		proc.Regs.Set(Reg4, nameAddr)
		gw.Dispatch(th, proc)
		fd2 := proc.Regs.Get(Reg2)
		if fd2 < 0 {
			t.Fatalf("reopen failed")
		}

		proc.Regs.Set(Reg2, int32(defs.SC_Read))
		proc.Regs.Set(Reg4, readBackAddr)
		proc.Regs.Set(Reg5, 2)
		proc.Regs.Set(Reg6, fd2)
		gw.Dispatch(th, proc)
		if proc.Regs.Get(Reg2) != 2 {
			t.Fatalf("Read returned %d", proc.Regs.Get(Reg2))
		}

		got := make([]byte, 2)
		if err := ReadBufferFromUser(th, gw.Tlb, space, readBackAddr, got); err != defs.EOK {
			t.Fatalf("ReadBufferFromUser: %v", err)
		}
		if string(got) != "hi" {
			t.Fatalf("got %q, want %q", got, "hi")
		}
	})
}

// TestExecJoin forks a child process via the Exec syscall path and blocks
// on Join for its exit status, exercising sysExec/sysExit/sysJoin together.
func TestExecJoin(t *testing.T) {
	gw, s, filesystem := setupGateway(t)

	runKernel(t, s, func(th *sched.Thread_t) {
		installExec(t, th, filesystem, "child")

		gw.RunUser = func(childTh *sched.Thread_t, child *Process_t) {
			child.Regs.Set(Reg2, int32(defs.SC_Exit))
			child.Regs.Set(Reg4, 42)
			gw.Dispatch(childTh, child)
		}

		parentSpace := blankSpace(t, th, gw, filesystem, "child", 2)
		proc := &Process_t{Pid: 2, Space: parentSpace, Files: fs.NewFDTable()}

		const nameAddr = 0
		if err := WriteStringToUser(th, gw.Tlb, parentSpace, nameAddr, "child"); err != defs.EOK {
			t.Fatalf("WriteStringToUser: %v", err)
		}

		proc.Regs.Set(Reg2, int32(defs.SC_Exec))
		proc.Regs.Set(Reg4, nameAddr)
		proc.Regs.Set(Reg5, 0)
		proc.Regs.Set(Reg6, 1)
		gw.Dispatch(th, proc)
		childPid := proc.Regs.Get(Reg2)
		if childPid < 0 {
			t.Fatalf("Exec failed")
		}

		proc.Regs.Set(Reg2, int32(defs.SC_Join))
		proc.Regs.Set(Reg4, childPid)
		gw.Dispatch(th, proc)
		if proc.Regs.Get(Reg2) != 42 {
			t.Fatalf("Join returned %d, want 42", proc.Regs.Get(Reg2))
		}
	})
}

func blankSpace(t *testing.T, th *sched.Thread_t, gw *Gateway_t, filesystem *fs.FileSystem_t, name string, pid int) *vm.AddrSpace_t {
	t.Helper()
	of, err := filesystem.Open(th, name)
	if err != defs.EOK {
		t.Fatalf("open exec: %v", err)
	}
	of.Position = 0
	hdr, nerr := noff.Read(&openFileReader{t: th, of: of})
	if nerr != defs.EOK {
		t.Fatalf("noff.Read: %v", nerr)
	}
	space, serr := vm.New(th, gw.Tlb, gw.Coremap, gw.Mem, filesystem, of, hdr, vm.Eager, pid)
	if serr != defs.EOK {
		t.Fatalf("vm.New: %v", serr)
	}
	return space
}
