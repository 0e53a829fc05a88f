package vm

import (
	"math/rand"
	"sync"

	"github.com/jfarizano/Nachos/internal/defs"
)

// noSpace marks a coreEntry not currently owned by any address space.
const noSpace = int32(-1)

// coreEntry is one physical-frame owner record, per spec.md §3's Coremap.
// It names the owning address space by its stable id rather than a pointer,
// per spec.md §9's note on breaking the AddressSpace/Coremap/PageTable
// pointer cycle; Coremap_t resolves the id back to a page table only when a
// policy or victim handler needs to inspect use/dirty bits.
type coreEntry struct {
	spaceID int32
	vpn     int32
	inUse   bool
}

// ReplacementPolicy_i selects a victim frame when the coremap is full, per
// spec.md §4.5 and §9. Pick may mutate frames' use bits in place (enhanced
// second chance clears them on its second pass) but must not change
// ownership.
type ReplacementPolicy_i interface {
	Pick(frames []coreEntry, lookup func(spaceID int32) []TranslationEntry) int
}

// Coremap_t is the process-wide, one-entry-per-physical-frame owner table,
// per spec.md §3/§4.5. It is mutated only inside page-fault/eviction
// handling, which on this cooperatively-scheduled machine always runs to
// completion without suspending, so a single mutex suffices (spec.md §7).
type Coremap_t struct {
	mu     sync.Mutex
	frames []coreEntry
	spaces map[int32]*AddrSpace_t
	policy ReplacementPolicy_i
	nextID int32
}

// NewCoremap returns a coremap of defs.NumPhysPages empty frames governed
// by policy (RandomPolicy if nil, per spec.md §4.5's fallback rule).
func NewCoremap(policy ReplacementPolicy_i) *Coremap_t {
	if policy == nil {
		policy = RandomPolicy{}
	}
	frames := make([]coreEntry, defs.NumPhysPages)
	for i := range frames {
		frames[i].spaceID = noSpace
	}
	return &Coremap_t{
		frames: frames,
		spaces: make(map[int32]*AddrSpace_t),
		policy: policy,
	}
}

// Register assigns space a stable id under which the coremap will track its
// frames, per spec.md §9.
func (c *Coremap_t) Register(space *AddrSpace_t) int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.spaces[id] = space
	return id
}

// Unregister forgets space's id once its frames have been freed.
func (c *Coremap_t) Unregister(id int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.spaces, id)
}

func (c *Coremap_t) lookup(spaceID int32) []TranslationEntry {
	if spaceID == noSpace {
		return nil
	}
	space, ok := c.spaces[spaceID]
	if !ok {
		return nil
	}
	return space.pageTable
}

// Alloc claims an unused frame for (spaceID, vpn), evicting a victim via the
// configured replacement policy if none is free. It returns the frame
// number and, when an eviction occurred, the evicted (space, vpn) pair so
// the caller can run victim handling (spec.md §4.5).
func (c *Coremap_t) Alloc(spaceID int32, vpn int32) (frame int, victim *AddrSpace_t, victimVpn int32, evicted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.frames {
		if !c.frames[i].inUse {
			c.frames[i] = coreEntry{spaceID: spaceID, vpn: vpn, inUse: true}
			return i, nil, 0, false
		}
	}

	victimFrame := c.policy.Pick(c.frames, c.lookup)
	e := c.frames[victimFrame]
	c.frames[victimFrame] = coreEntry{spaceID: spaceID, vpn: vpn, inUse: true}
	return victimFrame, c.spaces[e.spaceID], e.vpn, true
}

// Free releases every frame owned by spaceID, used when an address space is
// torn down (spec.md §3 AddressSpace lifecycle).
func (c *Coremap_t) Free(spaceID int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.frames {
		if c.frames[i].spaceID == spaceID {
			c.frames[i] = coreEntry{spaceID: noSpace}
		}
	}
}

// InUse reports how many frames are currently owned by any address space,
// used by tests asserting the coremap ends empty (spec.md §8 scenario 5).
func (c *Coremap_t) InUse() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for i := range c.frames {
		if c.frames[i].inUse {
			n++
		}
	}
	return n
}

// FIFOPolicy evicts frames in allocation order, wrapping modulo
// NUM_PHYS_PAGES, per spec.md §4.5.
type FIFOPolicy struct {
	next int
}

func (p *FIFOPolicy) Pick(frames []coreEntry, lookup func(int32) []TranslationEntry) int {
	f := p.next % len(frames)
	p.next++
	return f
}

// RandomPolicy evicts a uniformly random frame, the spec's fallback when no
// policy is selected.
type RandomPolicy struct{}

func (RandomPolicy) Pick(frames []coreEntry, lookup func(int32) []TranslationEntry) int {
	return rand.Intn(len(frames))
}

// ClockPolicy implements enhanced second chance ("clock with four rounds")
// over the (use, dirty) pair, per spec.md §4.5: rounds 1 and 3 look for
// (0,0), rounds 2 and 4 look for (0,1), and round 2 clears every scanned
// entry's use bit so round 3 can find a (0,0).
type ClockPolicy struct {
	hand int
}

func (p *ClockPolicy) Pick(frames []coreEntry, lookup func(int32) []TranslationEntry) int {
	n := len(frames)
	for round := 0; round < 4; round++ {
		wantDirty := round == 1 || round == 3
		for i := 0; i < n; i++ {
			idx := p.hand
			p.hand = (p.hand + 1) % n
			e := &frames[idx]
			pt := lookup(e.spaceID)
			use, dirty := false, false
			if pt != nil {
				use, dirty = pt[e.vpn].Use, pt[e.vpn].Dirty
			}
			if !use && dirty == wantDirty {
				return idx
			}
			if round == 1 && pt != nil {
				pt[e.vpn].Use = false
			}
		}
	}
	// degenerate: every frame looked identical across all four passes.
	return (p.hand - 1 + n) % n
}
