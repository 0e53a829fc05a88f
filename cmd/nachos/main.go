// Command nachos drives the kernel simulator spec.md §6 describes: it
// mounts (or formats) a disk image, stands up the scheduler/file system/
// address-space/gateway subsystems, and runs whichever one-shot action the
// flags name. One invocation does one thing, the way the original Nachos
// shell script invoked the kernel binary once per action.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"time"

	"github.com/google/pprof/profile"

	"github.com/jfarizano/Nachos/internal/console"
	"github.com/jfarizano/Nachos/internal/defs"
	"github.com/jfarizano/Nachos/internal/disk"
	"github.com/jfarizano/Nachos/internal/fs"
	"github.com/jfarizano/Nachos/internal/gateway"
	"github.com/jfarizano/Nachos/internal/nsync"
	"github.com/jfarizano/Nachos/internal/sched"
	"github.com/jfarizano/Nachos/internal/util"
	"github.com/jfarizano/Nachos/internal/vm"
)

// diskImage is the backing file for the simulated disk. The original
// Nachos CLI hardcodes a single image name rather than taking one on the
// command line; spec.md §6's flag set does the same.
const diskImage = "NACHOS.DISK"

// buildMode selects which of spec.md §4.5's three address-space
// construction strategies this binary runs with. It is a build-time
// choice (AddrSpace_t's doc comment), not a per-invocation flag.
const buildMode = vm.DemandSwap

func main() {
	var (
		dFlags  = flag.String("d", "", "comma-separated debug flags")
		preempt = flag.Bool("p", false, "set the scheduler's Preemptive flag (threads are not time-sliced)")
		seed    = flag.Int64("rs", time.Now().UnixNano(), "random number generator seed")
		format  = flag.Bool("f", false, "format the disk image before running")
		cp      = flag.Bool("cp", false, "copy a host file into the simulated filesystem: -cp unixfile nachosfile")
		pr      = flag.Bool("pr", false, "print a simulated file's contents, or dump a pprof profile with no file argument")
		rm      = flag.Bool("rm", false, "remove a simulated file: -rm nachosfile")
		ls      = flag.Bool("ls", false, "list the simulated filesystem's root directory")
		check   = flag.Bool("D", false, "run the filesystem consistency check and print it")
		consist = flag.Bool("c", false, "run the built-in regression/consistency test suite")
		exec    = flag.Bool("x", false, "execute a user program to completion: -x program [args...]")
		tc      = flag.Bool("tc", false, "run the console self-test, optionally redirecting in/out files")
		tt      = flag.Bool("tt", false, "run the thread-synchronization self-test suite")
	)
	flag.Parse()

	if *dFlags != "" {
		util.SetDebugFlags(*dFlags)
	}

	var d disk.Disk_i
	if *format {
		sd, err := disk.Format(diskImage)
		if err != nil {
			log.Fatalf("format %s: %v", diskImage, err)
		}
		d = sd
		fs.Format(d)
	} else {
		sd, err := disk.Open(diskImage)
		if err != nil {
			log.Fatalf("open %s: %v (use -f to format one)", diskImage, err)
		}
		d = sd
	}
	filesystem := fs.Mount(d)

	scheduler := sched.New(*preempt, *seed)
	con := console.New(os.Stdin, os.Stdout)

	var gw *gateway.Gateway_t
	gw = gateway.New(filesystem, scheduler, con, buildMode, func(th *sched.Thread_t, proc *gateway.Process_t) {
		// No instruction interpreter is wired in (spec.md §1 lists it as
		// an external collaborator); "running to completion" means the
		// program immediately issues the Exit trap every user program
		// eventually makes.
		proc.Regs.Set(gateway.Reg2, int32(defs.SC_Exit))
		proc.Regs.Set(gateway.Reg4, 0)
		gw.Dispatch(th, proc)
	})

	args := flag.Args()
	status := 0

	switch {
	case *cp:
		status = runCp(filesystem, scheduler, args)
	case *rm:
		status = runRm(filesystem, scheduler, args)
	case *ls:
		runLs(filesystem, scheduler)
	case *check:
		runCheck(filesystem, scheduler)
	case *pr:
		status = runPrint(filesystem, scheduler, args)
	case *consist:
		runConsistencySuite(filesystem, scheduler)
	case *tt:
		runThreadSuite()
	case *tc:
		runConsoleSelfTest(args)
	case *exec:
		status = runExec(gw, scheduler, args)
	}

	os.Exit(status)
}

func withThread(s *sched.Scheduler_t, body func(t *sched.Thread_t)) {
	done := make(chan struct{})
	s.Fork("shell", 0, false, func(t *sched.Thread_t) {
		defer close(done)
		body(t)
	})
	<-done
}

func runCp(filesystem *fs.FileSystem_t, s *sched.Scheduler_t, args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: nachos -cp unixfile nachosfile")
		return 1
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	status := 0
	withThread(s, func(t *sched.Thread_t) {
		if cerr := filesystem.Create(t, args[1], len(data)); cerr != defs.EOK {
			fmt.Fprintf(os.Stderr, "create %s: error %d\n", args[1], cerr)
			status = 1
			return
		}
		of, oerr := filesystem.Open(t, args[1])
		if oerr != defs.EOK {
			fmt.Fprintf(os.Stderr, "open %s: error %d\n", args[1], oerr)
			status = 1
			return
		}
		if _, werr := of.Write(t, data); werr != defs.EOK {
			fmt.Fprintf(os.Stderr, "write %s: error %d\n", args[1], werr)
			status = 1
		}
	})
	return status
}

func runRm(filesystem *fs.FileSystem_t, s *sched.Scheduler_t, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: nachos -rm nachosfile")
		return 1
	}
	status := 0
	withThread(s, func(t *sched.Thread_t) {
		if err := filesystem.Remove(t, args[0]); err != defs.EOK {
			fmt.Fprintf(os.Stderr, "remove %s: error %d\n", args[0], err)
			status = 1
		}
	})
	return status
}

func runLs(filesystem *fs.FileSystem_t, s *sched.Scheduler_t) {
	withThread(s, func(t *sched.Thread_t) {
		for _, name := range filesystem.List(t) {
			fmt.Println(name)
		}
	})
}

func runCheck(filesystem *fs.FileSystem_t, s *sched.Scheduler_t) {
	withThread(s, func(t *sched.Thread_t) {
		ok := filesystem.Check(t)
		fmt.Printf("filesystem check: %v\n", ok)
	})
}

func runPrint(filesystem *fs.FileSystem_t, s *sched.Scheduler_t, args []string) int {
	if len(args) == 0 {
		return dumpProfile()
	}
	status := 0
	withThread(s, func(t *sched.Thread_t) {
		of, err := filesystem.Open(t, args[0])
		if err != defs.EOK {
			fmt.Fprintf(os.Stderr, "open %s: error %d\n", args[0], err)
			status = 1
			return
		}
		buf := make([]byte, of.Length())
		n, _ := of.Read(t, buf)
		os.Stdout.Write(buf[:n])
	})
	return status
}

// dumpProfile captures a short CPU profile of the running simulator and
// prints a textual summary via github.com/google/pprof/profile, the same
// profiling story biscuit links pprof for.
func dumpProfile() int {
	var buf bytes.Buffer
	if err := pprof.StartCPUProfile(&buf); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	busyWork()
	pprof.StopCPUProfile()

	p, err := profile.Parse(&buf)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parsing profile:", err)
		return 1
	}
	fmt.Printf("captured %d samples across %d functions\n", len(p.Sample), len(p.Function))
	return 0
}

func busyWork() {
	sum := 0
	for i := 0; i < 2_000_000; i++ {
		sum += i
	}
	_ = sum
}

func runExec(gw *gateway.Gateway_t, s *sched.Scheduler_t, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: nachos -x program [args...]")
		return 1
	}
	status := 0
	withThread(s, func(t *sched.Thread_t) {
		pid, err := gw.ExecProgram(t, args[0], args[1:], true)
		if err != defs.EOK {
			fmt.Fprintf(os.Stderr, "exec %s: error %d\n", args[0], err)
			status = 1
			return
		}
		exitStatus, jerr := s.Join(sched.Tid_t(pid))
		if jerr != defs.EOK {
			status = 1
			return
		}
		status = exitStatus
	})
	return status
}

// runConsistencySuite exercises the filesystem layer end to end against
// the mounted disk image (create, write, read back, Check, remove of a
// SELFTEST file), the way the original Nachos "-c" flag ran a fixed
// battery of sanity checks rather than a general test runner.
func runConsistencySuite(filesystem *fs.FileSystem_t, s *sched.Scheduler_t) {
	ok := true
	withThread(s, func(t *sched.Thread_t) {
		const name = "SELFTEST"
		if err := filesystem.Create(t, name, 128); err != defs.EOK {
			fmt.Printf("consistency: create failed: %v\n", err)
			ok = false
			return
		}
		of, err := filesystem.Open(t, name)
		if err != defs.EOK {
			fmt.Printf("consistency: open failed: %v\n", err)
			ok = false
			return
		}
		want := bytes.Repeat([]byte("nachos"), 8)
		if _, err := of.Write(t, want); err != defs.EOK {
			fmt.Printf("consistency: write failed: %v\n", err)
			ok = false
			return
		}
		of.Position = 0
		got := make([]byte, len(want))
		if _, err := of.Read(t, got); err != defs.EOK {
			fmt.Printf("consistency: read failed: %v\n", err)
			ok = false
			return
		}
		if !bytes.Equal(want, got) {
			fmt.Println("consistency: readback mismatch")
			ok = false
		}
		if !filesystem.Check(t) {
			fmt.Println("consistency: filesystem check failed")
			ok = false
		}
		// Close first: Remove on a still-open file only defers the delete.
		table := fs.NewFDTable()
		localID, _ := table.Install(of)
		filesystem.Close(t, table, localID)
		if err := filesystem.Remove(t, name); err != defs.EOK {
			fmt.Printf("consistency: remove failed: %v\n", err)
			ok = false
		}
	})
	if ok {
		fmt.Println("consistency suite: PASS")
	} else {
		fmt.Println("consistency suite: FAIL")
	}
}

// runThreadSuite drives each internal/nsync primitive through one small
// scenario, printing a line per check. It is the host-side analogue of
// the original Nachos "-tt" thread-test switch, which ran a fixed set of
// producer/consumer and lock scenarios.
func runThreadSuite() {
	s := sched.New(false, 1)

	withThread(s, func(t *sched.Thread_t) {
		sem := nsync.NewSemaphore("tt-sem", 0)
		done := make(chan struct{})
		s.Fork("sem-signaler", 0, false, func(signaler *sched.Thread_t) {
			sem.V()
			close(done)
		})
		sem.P(t)
		<-done
		fmt.Println("semaphore: PASS")
	})

	withThread(s, func(t *sched.Thread_t) {
		lock := nsync.NewLock("tt-lock")
		lock.Acquire(t)
		held := lock.IsHeldByCurrentThread(t)
		lock.Release(t)
		fmt.Printf("lock: PASS=%v\n", held)
	})

	withThread(s, func(t *sched.Thread_t) {
		lock := nsync.NewLock("tt-cond-lock")
		cond := nsync.NewCondition(lock)
		ready := false
		done := make(chan struct{})
		s.Fork("cond-signaler", 0, false, func(signaler *sched.Thread_t) {
			lock.Acquire(signaler)
			ready = true
			cond.Signal(signaler)
			lock.Release(signaler)
			close(done)
		})
		lock.Acquire(t)
		for !ready {
			cond.Wait(t)
		}
		lock.Release(t)
		<-done
		fmt.Println("condition: PASS")
	})

	withThread(s, func(t *sched.Thread_t) {
		ch := nsync.NewChannel("tt-chan")
		done := make(chan struct{})
		s.Fork("chan-sender", 0, false, func(sender *sched.Thread_t) {
			ch.Send(sender, 7)
			close(done)
		})
		got := ch.Receive(t)
		<-done
		fmt.Printf("channel: PASS=%v\n", got == 7)
	})

	withThread(s, func(t *sched.Thread_t) {
		rw := nsync.NewRWFile()
		rw.BeginWrite(t)
		rw.BeginRead(t)
		rw.EndRead(t)
		rw.EndWrite(t)
		fmt.Println("rwfile: PASS")
	})
}

func runConsoleSelfTest(args []string) {
	var in *os.File = os.Stdin
	var out *os.File = os.Stdout
	if len(args) == 2 {
		f, err := os.Open(args[0])
		if err != nil {
			log.Fatal(err)
		}
		in = f
		o, err := os.Create(args[1])
		if err != nil {
			log.Fatal(err)
		}
		out = o
	}

	s := sched.New(false, 1)
	con := console.New(in, out)
	withThread(s, func(t *sched.Thread_t) {
		buf := make([]byte, 256)
		n := con.Read(t, buf)
		con.Write(t, buf[:n])
	})
}
