package fs

import (
	"github.com/jfarizano/Nachos/internal/bitmap"
	"github.com/jfarizano/Nachos/internal/defs"
	"github.com/jfarizano/Nachos/internal/disk"
	"github.com/jfarizano/Nachos/internal/nsync"
	"github.com/jfarizano/Nachos/internal/sched"
)

// syncFreeMap_t and syncDirectory_t implement the fetch-modify-writeback
// protocol spec.md §4.2 describes: FetchFrom acquires the lock and reads
// current state from disk; WriteBack writes and releases; Flush releases
// without writing (an aborted modification); Request acquires the lock
// without reading, for blind writes. Together they guarantee that any
// observer sees either the pre- or post-state of a modification, never a
// partial one.

type syncFreeMap_t struct {
	lock   *nsync.Lock_t
	disk   disk.Disk_i
	header *FileHeader_t
	bm     *bitmap.Bitmap_t
}

func newSyncFreeMap(d disk.Disk_i) *syncFreeMap_t {
	return &syncFreeMap_t{
		lock:   nsync.NewLock("freemap"),
		disk:   d,
		header: NewFileHeader(),
	}
}

// FetchFrom acquires the free-map lock and loads its current on-disk
// state.
func (f *syncFreeMap_t) FetchFrom(t *sched.Thread_t) {
	f.lock.Acquire(t)
	f.header.FetchFrom(f.disk, defs.FreeMapSector)
	data := readFileBytes(f.disk, f.header, f.header.NumBytes)
	f.bm = bitmap.FromBytes(data, defs.NumSectors)
}

// WriteBack persists the in-memory bitmap and releases the lock.
func (f *syncFreeMap_t) WriteBack(t *sched.Thread_t) {
	writeFileBytes(f.disk, f.header, f.bm.Bytes())
	f.lock.Release(t)
}

// Flush releases the lock, discarding any in-memory modification.
func (f *syncFreeMap_t) Flush(t *sched.Thread_t) {
	f.lock.Release(t)
}

// Request acquires the lock without reading, for a blind writeback.
func (f *syncFreeMap_t) Request(t *sched.Thread_t) {
	f.lock.Acquire(t)
}

type syncDirectory_t struct {
	lock   *nsync.Lock_t
	disk   disk.Disk_i
	header *FileHeader_t
	dir    *Directory_t
}

func newSyncDirectory(d disk.Disk_i) *syncDirectory_t {
	return &syncDirectory_t{
		lock:   nsync.NewLock("directory"),
		disk:   d,
		header: NewFileHeader(),
	}
}

func (s *syncDirectory_t) FetchFrom(t *sched.Thread_t) {
	s.lock.Acquire(t)
	s.header.FetchFrom(s.disk, defs.DirectorySector)
	data := readFileBytes(s.disk, s.header, s.header.NumBytes)
	s.dir = NewDirectory()
	s.dir.LoadBytes(data)
}

func (s *syncDirectory_t) WriteBack(t *sched.Thread_t) {
	writeFileBytes(s.disk, s.header, s.dir.Bytes())
	s.lock.Release(t)
}

func (s *syncDirectory_t) Flush(t *sched.Thread_t) {
	s.lock.Release(t)
}

func (s *syncDirectory_t) Request(t *sched.Thread_t) {
	s.lock.Acquire(t)
}
