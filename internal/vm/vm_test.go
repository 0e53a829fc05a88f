package vm

import (
	"bytes"
	"testing"
	"time"

	"github.com/jfarizano/Nachos/internal/defs"
	"github.com/jfarizano/Nachos/internal/disk"
	"github.com/jfarizano/Nachos/internal/fs"
	"github.com/jfarizano/Nachos/internal/noff"
	"github.com/jfarizano/Nachos/internal/sched"
)

func run(t *testing.T, s *sched.Scheduler_t, body func(th *sched.Thread_t)) {
	t.Helper()
	done := make(chan struct{})
	s.Fork("vmtest", 1, false, func(th *sched.Thread_t) {
		defer close(done)
		body(th)
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("test thread timed out")
	}
}

// writeExec creates a tiny NOFF binary in the file system: a code segment
// of codeSize bytes filled with a recognizable byte pattern and no
// init/uninit data.
func writeExec(t *testing.T, th *sched.Thread_t, filesystem *fs.FileSystem_t, name string, codeSize int) *fs.OpenFile_t {
	t.Helper()
	var buf bytes.Buffer
	hdr := make([]byte, 40)
	put := func(off int, v uint32) {
		hdr[off] = byte(v)
		hdr[off+1] = byte(v >> 8)
		hdr[off+2] = byte(v >> 16)
		hdr[off+3] = byte(v >> 24)
	}
	put(0, defs.NachosMagic)
	put(4, 0)        // code vaddr
	put(8, 40)       // code file offset
	put(12, uint32(codeSize))
	buf.Write(hdr)
	code := make([]byte, codeSize)
	for i := range code {
		code[i] = byte(i)
	}
	buf.Write(code)

	if err := filesystem.Create(th, name, buf.Len()); err != 0 {
		t.Fatalf("Create exec: %v", err)
	}
	of, err := filesystem.Open(th, name)
	if err != 0 {
		t.Fatalf("Open exec: %v", err)
	}
	if _, err := of.Write(th, buf.Bytes()); err != 0 {
		t.Fatalf("write exec: %v", err)
	}
	of.Position = 0
	return of
}

func freshFS() *fs.FileSystem_t {
	d := disk.NewMemDisk()
	fs.Format(d)
	return fs.Mount(d)
}

func TestEagerLoadMatchesExecBytes(t *testing.T) {
	s := sched.New(false, 1)
	filesystem := freshFS()

	run(t, s, func(th *sched.Thread_t) {
		codeSize := defs.PageSize // exactly one page
		of := writeExec(t, th, filesystem, "prog", codeSize)
		r := bytes.NewReader(mustReadAll(t, th, of))
		of.Position = 0
		hdr, err := noff.Read(r)
		if err != 0 {
			t.Fatalf("noff.Read: %v", err)
		}
		of.Position = 0

		coremap := NewCoremap(nil)
		mem := NewMemory()
		tlb := NewTlb()
		as, err := New(th, tlb, coremap, mem, filesystem, of, hdr, Eager, 1)
		if err != 0 {
			t.Fatalf("New: %v", err)
		}
		if as.NumPages() < 1 {
			t.Fatalf("expected at least one page")
		}
		frame := as.pageTable[0].PhysicalPage
		got := mem.Frame(frame)[:codeSize]
		for i := 0; i < codeSize; i++ {
			if got[i] != byte(i) {
				t.Fatalf("byte %d: got %d want %d", i, got[i], byte(i))
			}
		}
	})
}

func mustReadAll(t *testing.T, th *sched.Thread_t, of *fs.OpenFile_t) []byte {
	t.Helper()
	buf := make([]byte, of.Length())
	n, err := of.Read(th, buf)
	if err != 0 || n != len(buf) {
		t.Fatalf("read exec: n=%d err=%v", n, err)
	}
	return buf
}

// TestDemandLoadingAndSwap runs spec.md §8 scenario 5: a program larger
// than NumPhysPages pages, touching every page twice, ending with an empty
// coremap and a deleted swap file.
func TestDemandLoadingAndSwap(t *testing.T) {
	s := sched.New(false, 1)
	filesystem := freshFS()

	run(t, s, func(th *sched.Thread_t) {
		codeSize := (defs.NumPhysPages + 4) * defs.PageSize
		of := writeExec(t, th, filesystem, "big", codeSize)
		raw := mustReadAll(t, th, of)
		of.Position = 0
		hdr, _ := noff.Read(bytes.NewReader(raw))
		of.Position = 0

		coremap := NewCoremap(&FIFOPolicy{})
		mem := NewMemory()
		tlb := NewTlb()
		as, err := New(th, tlb, coremap, mem, filesystem, of, hdr, DemandSwap, 7)
		if err != 0 {
			t.Fatalf("New: %v", err)
		}

		for pass := 0; pass < 2; pass++ {
			for vpn := int32(0); vpn < as.NumPages(); vpn++ {
				vaddr := int(vpn) * defs.PageSize
				if _, err := as.ReadMem(th, tlb, vaddr); err != 0 {
					t.Fatalf("pass %d vpn %d: ReadMem: %v", pass, vpn, err)
				}
			}
		}

		as.Destroy(th)
		if coremap.InUse() != 0 {
			t.Fatalf("coremap should be empty after Destroy, got %d frames in use", coremap.InUse())
		}
		if _, err := filesystem.Open(th, "SWAP.7"); err != defs.ENOENT {
			t.Fatalf("swap file should be gone after Destroy, Open returned %v", err)
		}
	})
}

// TestClockPolicyEvictsExactlyOne runs spec.md §8 scenario 6.
func TestClockPolicyEvictsExactlyOne(t *testing.T) {
	clock := &ClockPolicy{}
	frames := make([]coreEntry, defs.NumPhysPages)
	spaces := map[int32][]TranslationEntry{}
	lookup := func(id int32) []TranslationEntry { return spaces[id] }

	for i := range frames {
		frames[i] = coreEntry{spaceID: int32(i), vpn: 0, inUse: true}
		spaces[int32(i)] = []TranslationEntry{{Use: true, Dirty: false}}
	}
	// make exactly one frame a clean, unused victim candidate.
	victimID := int32(5)
	spaces[victimID][0].Use = false

	picked := clock.Pick(frames, lookup)
	if frames[picked].spaceID != victimID {
		t.Fatalf("expected clock to pick frame owned by space %d, got %d", victimID, frames[picked].spaceID)
	}
	for id, pt := range spaces {
		if id == victimID {
			continue
		}
		if pt[0].Dirty {
			t.Fatalf("clock policy must not touch dirty bits")
		}
	}
}
