// Package vm implements the per-process address space, software-managed
// TLB, global coremap, and page-replacement policies of spec.md §4.5: the
// paging layer that sits between the syscall gateway and the file system
// (which backs both executable demand loading and swap).
package vm

import (
	"fmt"

	"github.com/jfarizano/Nachos/internal/bitmap"
	"github.com/jfarizano/Nachos/internal/defs"
	"github.com/jfarizano/Nachos/internal/fs"
	"github.com/jfarizano/Nachos/internal/noff"
	"github.com/jfarizano/Nachos/internal/sched"
)

// BuildMode_t selects one of spec.md §4.5's three address-space
// construction strategies. It is a build-time policy flag, not a
// per-process choice.
type BuildMode_t int

const (
	Eager BuildMode_t = iota
	DemandLoading
	DemandSwap
)

// Memory is the simulated machine's physical memory, shared by every
// address space; frames are addressed by physical page number.
type Memory struct {
	pages [][]byte
}

// NewMemory allocates defs.NumPhysPages zeroed frames of defs.PageSize
// bytes.
func NewMemory() *Memory {
	m := &Memory{pages: make([][]byte, defs.NumPhysPages)}
	for i := range m.pages {
		m.pages[i] = make([]byte, defs.PageSize)
	}
	return m
}

func (m *Memory) Frame(n int32) []byte { return m.pages[n] }

// AddrSpace_t is a process's virtual address space, per spec.md §3: a page
// table, the executable backing code/initData, and (in DemandSwap mode) a
// private swap file and inSwap bitmap.
type AddrSpace_t struct {
	id       int32
	mode     BuildMode_t
	coremap  *Coremap_t
	mem      *Memory
	exec     *fs.OpenFile_t
	execTbl  *fs.FDTable_t
	header   *noff.Header
	numPages int32

	pageTable []TranslationEntry

	swap       *fs.OpenFile_t
	swapName   string
	inSwap     *bitmap.Bitmap_t
	filesystem *fs.FileSystem_t
}

// New constructs an address space backed by exec (an already-open NOFF
// binary) under the given build mode, per spec.md §4.5. pid names the swap
// file ("SWAP.<pid>") when mode is DemandSwap.
func New(t *sched.Thread_t, tlb *Tlb_t, coremap *Coremap_t, mem *Memory, filesystem *fs.FileSystem_t, exec *fs.OpenFile_t, header *noff.Header, mode BuildMode_t, pid int) (*AddrSpace_t, defs.Err_t) {
	codeSize := int(header.Code.Size)
	initSize := int(header.InitData.Size)
	uninitSize := int(header.UninitData.Size)
	total := codeSize + initSize + uninitSize + defs.UserStackSize
	numPages := int32((total + defs.PageSize - 1) / defs.PageSize)

	as := &AddrSpace_t{
		mode:       mode,
		coremap:    coremap,
		mem:        mem,
		exec:       exec,
		header:     header,
		numPages:   numPages,
		pageTable:  make([]TranslationEntry, numPages),
		filesystem: filesystem,
	}
	as.id = coremap.Register(as)
	for i := range as.pageTable {
		as.pageTable[i] = TranslationEntry{VirtualPage: int32(i), PhysicalPage: sentinelPage}
	}

	switch mode {
	case Eager:
		if err := as.loadEager(t, tlb); err != 0 {
			coremap.Unregister(as.id)
			return nil, err
		}
	case DemandSwap:
		as.swapName = fmt.Sprintf("SWAP.%d", pid)
		as.inSwap = bitmap.New(int(numPages))
		if err := filesystem.Create(t, as.swapName, int(numPages)*defs.PageSize); err != 0 {
			coremap.Unregister(as.id)
			return nil, err
		}
		as.execTbl = fs.NewFDTable()
		swapOf, err := filesystem.Open(t, as.swapName)
		if err != 0 {
			coremap.Unregister(as.id)
			return nil, err
		}
		as.swap = swapOf
	case DemandLoading:
		// page table already all-invalid; nothing more to do.
	}
	return as, defs.EOK
}

// loadEager allocates a frame for every page up front, zeroes it, then
// copies in the code and init-data segments, per spec.md §4.5 mode 1.
func (as *AddrSpace_t) loadEager(t *sched.Thread_t, tlb *Tlb_t) defs.Err_t {
	for vpn := int32(0); vpn < as.numPages; vpn++ {
		frame, victimSpace, victimVpn, evicted := as.coremap.Alloc(as.id, vpn)
		if evicted {
			if err := as.handleVictim(t, tlb, victimSpace, victimVpn); err != 0 {
				return err
			}
		}
		zero(as.mem.Frame(int32(frame)))
		as.populateFromExec(t, vpn, int32(frame))
		as.pageTable[vpn] = TranslationEntry{VirtualPage: vpn, PhysicalPage: int32(frame), Valid: true}
	}
	return defs.EOK
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// populateFromExec fills frame with whatever portion of the code/init-data
// segments overlaps page vpn, per spec.md §4.5 step 4 of LoadPage. Bytes
// outside any segment are left zero.
func (as *AddrSpace_t) populateFromExec(t *sched.Thread_t, vpn int32, frame int32) {
	pageStart := int64(vpn) * defs.PageSize
	pageEnd := pageStart + defs.PageSize
	dst := as.mem.Frame(frame)

	copySeg := func(vaddr, fileOff, size uint32) {
		segStart, segEnd := int64(vaddr), int64(vaddr)+int64(size)
		lo := max64(pageStart, segStart)
		hi := min64(pageEnd, segEnd)
		if lo >= hi {
			return
		}
		n := hi - lo
		as.exec.Position = int(fileOff) + int(lo-segStart)
		buf := make([]byte, n)
		as.exec.Read(t, buf)
		copy(dst[lo-pageStart:], buf)
	}
	copySeg(as.header.Code.VirtualAddr, as.header.Code.InFileAddr, as.header.Code.Size)
	copySeg(as.header.InitData.VirtualAddr, as.header.InitData.InFileAddr, as.header.InitData.Size)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// LoadPage brings virtual page vpn into memory, allocating a frame
// (evicting if necessary), per spec.md §4.5.
func (as *AddrSpace_t) LoadPage(t *sched.Thread_t, tlb *Tlb_t, vpn int32) defs.Err_t {
	frame, victimSpace, victimVpn, evicted := as.coremap.Alloc(as.id, vpn)
	if evicted {
		if err := as.handleVictim(t, tlb, victimSpace, victimVpn); err != 0 {
			return err
		}
	}

	buf := as.mem.Frame(int32(frame))
	zero(buf)

	if as.inSwap != nil && as.inSwap.Test(int(vpn)) {
		as.swap.Position = int(vpn) * defs.PageSize
		if _, err := as.swap.Read(t, buf); err != 0 {
			return err
		}
	} else {
		as.populateFromExec(t, vpn, int32(frame))
	}

	as.pageTable[vpn] = TranslationEntry{VirtualPage: vpn, PhysicalPage: int32(frame), Valid: true}
	return defs.EOK
}

// handleVictim implements spec.md §4.5's victim-handling procedure: flush
// the frame from the TLB if cached there, write it to swap if dirty, then
// invalidate the owning page-table entry.
func (as *AddrSpace_t) handleVictim(t *sched.Thread_t, tlb *Tlb_t, victim *AddrSpace_t, vpn int32) defs.Err_t {
	if victim == nil {
		return defs.EOK
	}
	tlb.Invalidate(victim.pageTable, vpn)
	e := &victim.pageTable[vpn]
	if e.Dirty {
		if victim.swap == nil {
			// no swap backing: a dirty page has nowhere to be saved, so
			// the eviction fails with ENOMEM (Eager and DemandLoading
			// spaces have no swap file).
			return defs.ENOMEM
		}
		frameBytes := victim.mem.Frame(e.PhysicalPage)
		victim.swap.Position = int(vpn) * defs.PageSize
		if _, err := victim.swap.Write(t, frameBytes); err != 0 {
			return err
		}
		victim.inSwap.Mark(int(vpn))
	}
	e.Valid = false
	e.Dirty = false
	return defs.EOK
}

// PageFaultHandler resolves a fault at virtual address vaddr against tlb,
// per spec.md §4.5: a first-touch fault calls LoadPage, a TLB miss on an
// already-valid page just refills the TLB.
func (as *AddrSpace_t) PageFaultHandler(t *sched.Thread_t, tlb *Tlb_t, vaddr int) defs.Err_t {
	vpn := int32(vaddr / defs.PageSize)
	if vpn < 0 || vpn >= as.numPages {
		return defs.EFAULT
	}
	if !as.pageTable[vpn].Valid {
		if err := as.LoadPage(t, tlb, vpn); err != 0 {
			return err
		}
	}
	tlb.Refill(as.pageTable, as.pageTable[vpn])
	return defs.EOK
}

// SaveState folds tlb's use/dirty bits back into this address space's page
// table, per spec.md §4.5's context-switch contract.
func (as *AddrSpace_t) SaveState(tlb *Tlb_t) {
	tlb.SaveState(as.pageTable)
}

// RestoreState invalidates every TLB slot, per spec.md §4.5: the incoming
// address space starts with a cold TLB.
func (as *AddrSpace_t) RestoreState(tlb *Tlb_t) {
	tlb.InvalidateAll()
}

// Destroy releases every frame this address space owns and removes its
// swap file, per spec.md §3's AddressSpace lifecycle.
func (as *AddrSpace_t) Destroy(t *sched.Thread_t) {
	as.coremap.Free(as.id)
	as.coremap.Unregister(as.id)
	if as.swap != nil && as.execTbl != nil {
		localID, _ := as.execTbl.Install(as.swap)
		as.filesystem.Close(t, as.execTbl, localID)
		as.filesystem.Remove(t, as.swapName)
	}
}

// NumPages returns the address space's total page count.
func (as *AddrSpace_t) NumPages() int32 { return as.numPages }

// Translate reads byte vaddr via tlb, loading the page on a miss, per
// spec.md §4.6's ReadMem/WriteMem retry-under-TLB contract.
func (as *AddrSpace_t) Translate(t *sched.Thread_t, tlb *Tlb_t, vaddr int, write bool) (frame int32, offset int, err defs.Err_t) {
	vpn := int32(vaddr / defs.PageSize)
	offset = vaddr % defs.PageSize
	if vpn < 0 || vpn >= as.numPages {
		return 0, 0, defs.EFAULT
	}
	if write && as.pageTable[vpn].ReadOnly {
		return 0, 0, defs.EFAULT
	}
	if f, _, _, ok := tlb.Translate(vpn); ok {
		tlb.MarkAccess(vpn, write)
		return f, offset, defs.EOK
	}
	if err := as.PageFaultHandler(t, tlb, vaddr); err != 0 {
		return 0, 0, err
	}
	f, _, _, _ := tlb.Translate(vpn)
	tlb.MarkAccess(vpn, write)
	return f, offset, defs.EOK
}

func (m *Memory) ReadByte(frame int32, off int) byte {
	return m.pages[frame][off]
}

func (m *Memory) WriteByte(frame int32, off int, b byte) {
	m.pages[frame][off] = b
}

// ReadMem reads one byte at vaddr, per spec.md §4.6.
func (as *AddrSpace_t) ReadMem(t *sched.Thread_t, tlb *Tlb_t, vaddr int) (byte, defs.Err_t) {
	frame, off, err := as.Translate(t, tlb, vaddr, false)
	if err != defs.EOK {
		return 0, err
	}
	return as.mem.ReadByte(frame, off), defs.EOK
}

// WriteMem writes one byte at vaddr, per spec.md §4.6.
func (as *AddrSpace_t) WriteMem(t *sched.Thread_t, tlb *Tlb_t, vaddr int, b byte) defs.Err_t {
	frame, off, err := as.Translate(t, tlb, vaddr, true)
	if err != defs.EOK {
		return err
	}
	as.mem.WriteByte(frame, off, b)
	return defs.EOK
}
