package gateway

import (
	"sync"

	"github.com/jfarizano/Nachos/internal/console"
	"github.com/jfarizano/Nachos/internal/defs"
	"github.com/jfarizano/Nachos/internal/fs"
	"github.com/jfarizano/Nachos/internal/noff"
	"github.com/jfarizano/Nachos/internal/sched"
	"github.com/jfarizano/Nachos/internal/vm"
)

// nameArgMaxLen bounds ReadStringFromUser calls made on behalf of Create/
// Remove/Open/Exec: defs.FileNameMaxLen bytes plus the terminating NUL.
// Exec's program path is read with the same bound.
const nameArgMaxLen = defs.FileNameMaxLen + 1

// Gateway_t is the syscall dispatcher of spec.md §4.6. It holds every
// piece of shared kernel state a trap handler needs: the file system, the
// scheduler, the machine's single TLB and physical memory (per spec.md
// §5, the TLB is a per-machine, not per-process, resource), the coremap,
// and the synchronized console that fd 0/1 route to.
type Gateway_t struct {
	mu sync.Mutex

	FS       *fs.FileSystem_t
	Sched    *sched.Scheduler_t
	Tlb      *vm.Tlb_t
	Mem      *vm.Memory
	Coremap  *vm.Coremap_t
	Console  *console.Console_t
	BuildMode vm.BuildMode_t

	// RunUser is invoked in the new thread's body after Exec constructs an
	// address space and writes argv to the child's stack; it represents
	// the instruction interpreter jumping to user code, an external
	// collaborator spec.md §1 excludes from this package's scope. It
	// receives the child's own kernel thread, since a later trap (Exit in
	// particular) must call back into Dispatch on that same Thread_t.
	RunUser func(th *sched.Thread_t, proc *Process_t)

	procs map[int]*Process_t
}

// New returns a gateway wired to the given kernel subsystems.
func New(filesystem *fs.FileSystem_t, scheduler *sched.Scheduler_t, con *console.Console_t, mode vm.BuildMode_t, runUser func(*sched.Thread_t, *Process_t)) *Gateway_t {
	return &Gateway_t{
		FS:        filesystem,
		Sched:     scheduler,
		Tlb:       vm.NewTlb(),
		Mem:       vm.NewMemory(),
		Coremap:   vm.NewCoremap(nil),
		Console:   con,
		BuildMode: mode,
		RunUser:   runUser,
		procs:     make(map[int]*Process_t),
	}
}

// Dispatch services one trap for proc, reading the syscall id from Reg2,
// performing the operation, and advancing PC/NEXT_PC, per spec.md §4.6.
// haltRequested is true only for Halt, telling the caller to shut the
// machine down.
func (g *Gateway_t) Dispatch(t *sched.Thread_t, proc *Process_t) (haltRequested bool) {
	switch defs.Syscall(proc.Regs.Get(Reg2)) {
	case defs.SC_Halt:
		return true
	case defs.SC_Exit:
		g.sysExit(t, proc)
	case defs.SC_Exec:
		g.sysExec(t, proc)
	case defs.SC_Join:
		g.sysJoin(t, proc)
	case defs.SC_Create:
		g.sysCreate(t, proc)
	case defs.SC_Remove:
		g.sysRemove(t, proc)
	case defs.SC_Open:
		g.sysOpen(t, proc)
	case defs.SC_Close:
		g.sysClose(t, proc)
	case defs.SC_Read:
		g.sysRead(t, proc)
	case defs.SC_Write:
		g.sysWrite(t, proc)
	default:
		proc.Regs.SetReturn(-1)
	}
	proc.Regs.AdvancePC()
	return false
}

func (g *Gateway_t) sysExit(t *sched.Thread_t, proc *Process_t) {
	status := int(proc.Regs.Arg(0))
	proc.Space.Destroy(t)
	t.Finish(status)
}

func (g *Gateway_t) sysJoin(t *sched.Thread_t, proc *Process_t) {
	pid := sched.Tid_t(proc.Regs.Arg(0))
	status, err := g.Sched.Join(pid)
	if err != defs.EOK {
		proc.Regs.SetReturn(-1)
		return
	}
	proc.Regs.SetReturn(int32(status))
}

// sysExec reads the program name and argv from the caller's user memory
// (SaveArgs), opens the executable, constructs a fresh address space, and
// forks a kernel thread that writes argv into the child's stack (WriteArgs,
// leaving a 24-byte MIPS-ABI register-save area below the stack pointer)
// before invoking RunUser, per spec.md §4.6.
func (g *Gateway_t) sysExec(t *sched.Thread_t, proc *Process_t) {
	nameAddr := int(proc.Regs.Arg(0))
	argvAddr := int(proc.Regs.Arg(1))
	joinable := proc.Regs.Arg(2) != 0

	name, err := ReadStringFromUser(t, g.Tlb, proc.Space, nameAddr, nameArgMaxLen)
	if err != defs.EOK {
		proc.Regs.SetReturn(-1)
		return
	}
	argv, err := g.saveArgs(t, proc, argvAddr)
	if err != defs.EOK {
		proc.Regs.SetReturn(-1)
		return
	}

	pid, xerr := g.forkChild(t, name, argv, joinable)
	if xerr != defs.EOK {
		proc.Regs.SetReturn(-1)
		return
	}
	proc.Regs.SetReturn(int32(pid))
}

// ExecProgram starts name as a fresh process the same way sysExec does,
// but takes the program name and argv as plain Go values instead of
// reading them out of a calling process's user memory. cmd/nachos's -x
// flag uses this kernel-initiated path; sysExec is the user-trapped one.
func (g *Gateway_t) ExecProgram(t *sched.Thread_t, name string, argv []string, joinable bool) (int, defs.Err_t) {
	return g.forkChild(t, name, argv, joinable)
}

// forkChild opens name's executable, builds its address space, and forks
// the kernel thread that will run it, per spec.md §4.6.
func (g *Gateway_t) forkChild(t *sched.Thread_t, name string, argv []string, joinable bool) (int, defs.Err_t) {
	execOf, err := g.FS.Open(t, name)
	if err != defs.EOK {
		return -1, err
	}
	hdr, nerr := noff.Read(&openFileReader{t: t, of: execOf})
	if nerr != defs.EOK {
		return -1, nerr
	}

	child := &Process_t{Files: fs.NewFDTable()}

	childTh := g.Sched.Fork("user", 1, joinable, func(th *sched.Thread_t) {
		pid := int(th.Id)
		space, serr := vm.New(th, g.Tlb, g.Coremap, g.Mem, g.FS, execOf, hdr, g.BuildMode, pid)
		if serr != defs.EOK {
			th.Finish(-1)
			return
		}
		child.Space = space
		g.writeArgs(th, child, argv)
		if g.RunUser != nil {
			g.RunUser(th, child)
		}
	})
	pid := int(childTh.Id)
	child.Pid = pid
	child.Tid = childTh.Id

	g.mu.Lock()
	g.procs[pid] = child
	g.mu.Unlock()

	return pid, defs.EOK
}

// saveArgs copies argv (a NUL-terminated array of user string pointers,
// terminated by a zero pointer) from the parent's user memory into a
// kernel-side slice of strings.
func (g *Gateway_t) saveArgs(t *sched.Thread_t, proc *Process_t, argvAddr int) ([]string, defs.Err_t) {
	if argvAddr == 0 {
		return nil, defs.EOK
	}
	var argv []string
	for i := 0; ; i++ {
		ptr, err := ReadBufferFromUser32(t, g.Tlb, proc.Space, argvAddr+4*i)
		if err != defs.EOK {
			return nil, err
		}
		if ptr == 0 {
			break
		}
		s, err := ReadStringFromUser(t, g.Tlb, proc.Space, int(ptr), 1024)
		if err != defs.EOK {
			return nil, err
		}
		argv = append(argv, s)
	}
	return argv, defs.EOK
}

// argSaveAreaBytes is the MIPS-ABI register-save area Exec must leave below
// the stack pointer before writing argv, per spec.md §4.6.
const argSaveAreaBytes = 24

// writeArgs writes argv into the child's user stack, leaving
// argSaveAreaBytes below the stack pointer, per spec.md §4.6.
func (g *Gateway_t) writeArgs(t *sched.Thread_t, child *Process_t, argv []string) {
	if len(argv) == 0 {
		return
	}
	sp := int(child.Space.NumPages())*defs.PageSize - argSaveAreaBytes

	strAddrs := make([]int32, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i] + "\x00"
		sp -= len(s)
		WriteBufferToUser(t, g.Tlb, child.Space, sp, []byte(s))
		strAddrs[i] = int32(sp)
	}
	sp = util_rounddown4(sp)
	argvAt := sp - 4*(len(argv)+1)
	argvAt = util_rounddown4(argvAt)
	for i, addr := range strAddrs {
		writeUint32ToUser(t, g.Tlb, child.Space, argvAt+4*i, uint32(addr))
	}
	writeUint32ToUser(t, g.Tlb, child.Space, argvAt+4*len(argv), 0)

	child.Regs.Set(RegSP, int32(argvAt-argSaveAreaBytes))
	child.Regs.Set(Reg4, int32(len(argv)))
	child.Regs.Set(Reg5, int32(argvAt))
}

func util_rounddown4(n int) int {
	return n &^ 3
}

func (g *Gateway_t) sysCreate(t *sched.Thread_t, proc *Process_t) {
	name, err := ReadStringFromUser(t, g.Tlb, proc.Space, int(proc.Regs.Arg(0)), nameArgMaxLen)
	if err != defs.EOK {
		proc.Regs.SetReturn(-1)
		return
	}
	if err := g.FS.Create(t, name, 0); err != defs.EOK {
		proc.Regs.SetReturn(-1)
		return
	}
	proc.Regs.SetReturn(0)
}

func (g *Gateway_t) sysRemove(t *sched.Thread_t, proc *Process_t) {
	name, err := ReadStringFromUser(t, g.Tlb, proc.Space, int(proc.Regs.Arg(0)), nameArgMaxLen)
	if err != defs.EOK {
		proc.Regs.SetReturn(-1)
		return
	}
	if err := g.FS.Remove(t, name); err != defs.EOK {
		proc.Regs.SetReturn(-1)
		return
	}
	proc.Regs.SetReturn(0)
}

func (g *Gateway_t) sysOpen(t *sched.Thread_t, proc *Process_t) {
	name, err := ReadStringFromUser(t, g.Tlb, proc.Space, int(proc.Regs.Arg(0)), nameArgMaxLen)
	if err != defs.EOK {
		proc.Regs.SetReturn(-1)
		return
	}
	of, err := g.FS.Open(t, name)
	if err != defs.EOK {
		proc.Regs.SetReturn(-1)
		return
	}
	fd, err := proc.Files.Install(of)
	if err != defs.EOK {
		proc.Regs.SetReturn(-1)
		return
	}
	proc.Regs.SetReturn(int32(fd))
}

func (g *Gateway_t) sysClose(t *sched.Thread_t, proc *Process_t) {
	fd := int(proc.Regs.Arg(0))
	if fd == defs.ConsoleInput || fd == defs.ConsoleOutput {
		proc.Regs.SetReturn(0)
		return
	}
	if err := g.FS.Close(t, proc.Files, fd); err != defs.EOK {
		proc.Regs.SetReturn(-1)
		return
	}
	proc.Regs.SetReturn(0)
}

func (g *Gateway_t) sysRead(t *sched.Thread_t, proc *Process_t) {
	bufAddr := int(proc.Regs.Arg(0))
	size := int(proc.Regs.Arg(1))
	fd := int(proc.Regs.Arg(2))
	if size <= 0 {
		proc.Regs.SetReturn(-1)
		return
	}
	kbuf := make([]byte, size)

	var n int
	if fd == defs.ConsoleInput {
		n = g.Console.Read(t, kbuf)
	} else {
		of, ok := proc.Files.Get(fd)
		if !ok {
			proc.Regs.SetReturn(-1)
			return
		}
		nn, err := of.Read(t, kbuf)
		if err != defs.EOK {
			proc.Regs.SetReturn(-1)
			return
		}
		n = nn
	}
	if err := WriteBufferToUser(t, g.Tlb, proc.Space, bufAddr, kbuf[:n]); err != defs.EOK {
		proc.Regs.SetReturn(-1)
		return
	}
	proc.Regs.SetReturn(int32(n))
}

func (g *Gateway_t) sysWrite(t *sched.Thread_t, proc *Process_t) {
	bufAddr := int(proc.Regs.Arg(0))
	size := int(proc.Regs.Arg(1))
	fd := int(proc.Regs.Arg(2))
	if size <= 0 {
		proc.Regs.SetReturn(-1)
		return
	}
	kbuf := make([]byte, size)
	if err := ReadBufferFromUser(t, g.Tlb, proc.Space, bufAddr, kbuf); err != defs.EOK {
		proc.Regs.SetReturn(-1)
		return
	}

	var n int
	if fd == defs.ConsoleOutput {
		n = g.Console.Write(t, kbuf)
	} else {
		of, ok := proc.Files.Get(fd)
		if !ok {
			proc.Regs.SetReturn(-1)
			return
		}
		nn, err := of.Write(t, kbuf)
		if err != defs.EOK {
			proc.Regs.SetReturn(-1)
			return
		}
		n = nn
	}
	proc.Regs.SetReturn(int32(n))
}
