package vm

// NumTlbEntries is the size of the software-managed TLB, per spec.md §4.5.
const NumTlbEntries = 4

// TranslationEntry is one page-table (or TLB) slot, per spec.md §3.
type TranslationEntry struct {
	VirtualPage  int32
	PhysicalPage int32
	Valid        bool
	ReadOnly     bool
	Use          bool
	Dirty        bool
}

// sentinelPage marks a TranslationEntry not currently backed by a frame.
const sentinelPage = int32(-1)

// Tlb_t is the machine's software-managed TLB: a small circular cache of
// TranslationEntry refilled on every miss, per spec.md §4.5.
type Tlb_t struct {
	entries [NumTlbEntries]TranslationEntry
	next    int
}

// NewTlb returns a TLB with every slot invalid.
func NewTlb() *Tlb_t {
	tlb := &Tlb_t{}
	tlb.InvalidateAll()
	return tlb
}

// Probe returns the TLB slot caching vpn, if any.
func (tlb *Tlb_t) Probe(vpn int32) (int, bool) {
	for i := range tlb.entries {
		if tlb.entries[i].Valid && tlb.entries[i].VirtualPage == vpn {
			return i, true
		}
	}
	return 0, false
}

// Refill writes back the current victim slot's use/dirty bits into pt, then
// installs e at that slot, advancing the circular pointer, per the refill
// rule in spec.md §4.5.
func (tlb *Tlb_t) Refill(pt []TranslationEntry, e TranslationEntry) {
	victim := &tlb.entries[tlb.next]
	if victim.Valid {
		owner := &pt[victim.VirtualPage]
		owner.Use = victim.Use
		owner.Dirty = victim.Dirty
	}
	*victim = e
	tlb.next = (tlb.next + 1) % NumTlbEntries
}

// Invalidate clears the TLB slot caching vpn, if present, folding its
// use/dirty bits back into pt first.
func (tlb *Tlb_t) Invalidate(pt []TranslationEntry, vpn int32) {
	i, ok := tlb.Probe(vpn)
	if !ok {
		return
	}
	e := &tlb.entries[i]
	pt[vpn].Use = e.Use
	pt[vpn].Dirty = e.Dirty
	*e = TranslationEntry{VirtualPage: sentinelPage}
}

// InvalidateAll clears every TLB slot without writing back, used by
// RestoreState when a new address space is scheduled in.
func (tlb *Tlb_t) InvalidateAll() {
	for i := range tlb.entries {
		tlb.entries[i] = TranslationEntry{VirtualPage: sentinelPage}
	}
}

// SaveState folds every valid slot's use/dirty bits back into pt, per
// spec.md §4.5's SaveState contract.
func (tlb *Tlb_t) SaveState(pt []TranslationEntry) {
	for i := range tlb.entries {
		e := &tlb.entries[i]
		if !e.Valid {
			continue
		}
		pt[e.VirtualPage].Use = e.Use
		pt[e.VirtualPage].Dirty = e.Dirty
	}
}

// Translate looks a virtual address up in the TLB, reporting the physical
// frame on a hit. ok is false on a TLB miss, which the caller resolves via
// the page table and Refill.
func (tlb *Tlb_t) Translate(vpn int32) (frame int32, use, dirty bool, ok bool) {
	i, hit := tlb.Probe(vpn)
	if !hit {
		return 0, false, false, false
	}
	e := &tlb.entries[i]
	return e.PhysicalPage, e.Use, e.Dirty, true
}

// MarkAccess sets the use bit (and dirty, if write) of the TLB slot caching
// vpn. Called by ReadMem/WriteMem on a TLB hit.
func (tlb *Tlb_t) MarkAccess(vpn int32, write bool) {
	i, ok := tlb.Probe(vpn)
	if !ok {
		return
	}
	tlb.entries[i].Use = true
	if write {
		tlb.entries[i].Dirty = true
	}
}
