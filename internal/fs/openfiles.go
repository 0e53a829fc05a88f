package fs

import (
	"sync"

	"github.com/jfarizano/Nachos/internal/defs"
	"github.com/jfarizano/Nachos/internal/nsync"
)

// openFilesCapacity bounds the process-wide open-files registry, recovered
// from the original Nachos OpenFileTable's fixed NUM_OPEN_FILES (see
// SPEC_FULL.md's supplemented-features section); spec.md §4.4 already
// names "the registry is full" as an Open failure mode, which is
// otherwise unreachable with an unbounded map.
const openFilesCapacity = 64

// FileInfo_t is one entry of the process-wide open-files registry, per
// spec.md §3: the shared state every local OpenFile_t handle for the same
// underlying file refers to.
type FileInfo_t struct {
	Name         string
	Header       *FileHeader_t
	HeaderSector int
	Sync         *nsync.RWFile_t
	Refcount     int
	Available    bool
}

// openFilesRegistry_t is the process-wide registry mapping a small
// non-negative global file id to a FileInfo_t, per spec.md §3.
type openFilesRegistry_t struct {
	mu     sync.Mutex
	byID   map[int]*FileInfo_t
	byName map[string]int
	nextID int
}

func newOpenFilesRegistry() *openFilesRegistry_t {
	return &openFilesRegistry_t{
		byID:   make(map[int]*FileInfo_t),
		byName: make(map[string]int),
	}
}

// lookupAvailable returns the registry entry for name if present and not
// pending deferred deletion, incrementing its refcount.
func (r *openFilesRegistry_t) lookupAvailable(name string) (int, *FileInfo_t, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	if !ok {
		return 0, nil, false
	}
	info := r.byID[id]
	if !info.Available {
		return 0, nil, false
	}
	info.Refcount++
	return id, info, true
}

// insert installs a newly-opened file into the registry with refcount 1.
// It fails with ENOSPC if the registry is full.
func (r *openFilesRegistry_t) insert(name string, header *FileHeader_t, sector int) (int, *FileInfo_t, defs.Err_t) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.byID) >= openFilesCapacity {
		return 0, nil, defs.ENOSPC
	}
	for {
		id := r.nextID
		r.nextID++
		if _, taken := r.byID[id]; !taken {
			info := &FileInfo_t{
				Name:         name,
				Header:       header,
				HeaderSector: sector,
				Sync:         nsync.NewRWFile(),
				Refcount:     1,
				Available:    true,
			}
			r.byID[id] = info
			r.byName[name] = id
			return id, info, defs.EOK
		}
	}
}

// markUnavailable marks name as pending deferred deletion if it is
// currently open, reporting whether it was found.
func (r *openFilesRegistry_t) markUnavailable(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	if !ok {
		return false
	}
	r.byID[id].Available = false
	return true
}

// decref drops one reference to globalID. When the count reaches zero the
// entry is removed and the caller is told whether a deferred delete must
// now run.
func (r *openFilesRegistry_t) decref(globalID int) (name string, mustDelete bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.byID[globalID]
	if !ok {
		return "", false
	}
	info.Refcount--
	if info.Refcount > 0 {
		return "", false
	}
	delete(r.byID, globalID)
	delete(r.byName, info.Name)
	return info.Name, !info.Available
}
