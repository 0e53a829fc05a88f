package fs

import (
	"strconv"

	"github.com/jfarizano/Nachos/internal/bitmap"
	"github.com/jfarizano/Nachos/internal/defs"
	"github.com/jfarizano/Nachos/internal/disk"
	"github.com/jfarizano/Nachos/internal/sched"
)

// FileSystem_t is the indexed on-disk file system of spec.md §4.4: one
// free-sector bitmap, one single-level directory, and a process-wide
// open-files registry layered on top of FileHeader_t/Directory_t.
type FileSystem_t struct {
	disk     disk.Disk_i
	freeMap  *syncFreeMap_t
	dir      *syncDirectory_t
	registry *openFilesRegistry_t
}

// Format lays out a fresh file system on d: sector 0 gets the free-map's
// header, sector 1 the directory's, both sectors are marked in-use, and
// the directory is initialized empty.
func Format(d disk.Disk_i) {
	freeMap := bitmap.New(defs.NumSectors)
	freeMap.Mark(defs.FreeMapSector)
	freeMap.Mark(defs.DirectorySector)

	dirHdr := NewFileHeader()
	if err := dirHdr.Allocate(freeMap, Size()); err != 0 {
		panic("fs: Format: not enough disk space for the directory file")
	}
	dirHdr.WriteBack(d, defs.DirectorySector)

	dir := NewDirectory()
	writeFileBytes(d, dirHdr, dir.Bytes())

	freeMapHdr := NewFileHeader()
	if err := freeMapHdr.Allocate(freeMap, len(freeMap.Bytes())); err != 0 {
		panic("fs: Format: not enough disk space for the free-map file")
	}
	freeMapHdr.WriteBack(d, defs.FreeMapSector)
	writeFileBytes(d, freeMapHdr, freeMap.Bytes())
}

// Mount attaches a FileSystem_t to an already-formatted disk image.
func Mount(d disk.Disk_i) *FileSystem_t {
	return &FileSystem_t{
		disk:     d,
		freeMap:  newSyncFreeMap(d),
		dir:      newSyncDirectory(d),
		registry: newOpenFilesRegistry(),
	}
}

// Create makes a new file, per spec.md §4.4's all-or-nothing protocol:
// directory lock first, then free-map lock; on any failure both are
// Flushed (discarded) rather than written back.
func (fs *FileSystem_t) Create(t *sched.Thread_t, name string, initialSize int) defs.Err_t {
	clean, verr := validateName(name)
	if verr != defs.EOK {
		return verr
	}
	name = clean

	fs.dir.FetchFrom(t)
	if fs.dir.dir.Find(name) != -1 {
		fs.dir.Flush(t)
		return defs.EEXIST
	}

	fs.freeMap.FetchFrom(t)
	sector := fs.freeMap.bm.Find()
	if sector == -1 {
		fs.freeMap.Flush(t)
		fs.dir.Flush(t)
		return defs.ENOSPC
	}

	if !fs.dir.dir.Add(name, sector) {
		fs.freeMap.bm.Clear(sector)
		fs.freeMap.Flush(t)
		fs.dir.Flush(t)
		return defs.ENOSPC
	}

	hdr := NewFileHeader()
	if err := hdr.Allocate(fs.freeMap.bm, initialSize); err != defs.EOK {
		fs.freeMap.Flush(t)
		fs.dir.Flush(t)
		return err
	}

	hdr.WriteBack(fs.disk, sector)
	fs.dir.WriteBack(t)
	fs.freeMap.WriteBack(t)
	return defs.EOK
}

// Open resolves name to a fresh OpenFile_t handle, sharing the registry's
// cached header/RWFile with any other open handle on the same file, per
// spec.md §4.4.
func (fs *FileSystem_t) Open(t *sched.Thread_t, name string) (*OpenFile_t, defs.Err_t) {
	if id, info, ok := fs.registry.lookupAvailable(name); ok {
		return &OpenFile_t{fs: fs, Header: info.Header, HeaderSector: info.HeaderSector, Sync: info.Sync, GlobalId: id}, defs.EOK
	}

	fs.dir.FetchFrom(t)
	sector := fs.dir.dir.Find(name)
	fs.dir.Flush(t)
	if sector == -1 {
		return nil, defs.ENOENT
	}

	hdr := NewFileHeader()
	hdr.FetchFrom(fs.disk, sector)

	id, info, err := fs.registry.insert(name, hdr, sector)
	if err != defs.EOK {
		return nil, err
	}
	return &OpenFile_t{fs: fs, Header: info.Header, HeaderSector: info.HeaderSector, Sync: info.Sync, GlobalId: id}, defs.EOK
}

// Close removes localID from table and drops a reference to the
// underlying file, performing the deferred delete if this was the last
// reference to a file marked for removal.
func (fs *FileSystem_t) Close(t *sched.Thread_t, table *FDTable_t, localID int) defs.Err_t {
	of, ok := table.Remove(localID)
	if !ok {
		return defs.EBADF
	}
	name, mustDelete := fs.registry.decref(of.GlobalId)
	if mustDelete {
		fs.delete(t, name)
	}
	return defs.EOK
}

// Remove marks name for deferred deletion if it is currently open,
// otherwise deletes it immediately, per spec.md §4.4.
func (fs *FileSystem_t) Remove(t *sched.Thread_t, name string) defs.Err_t {
	if fs.registry.markUnavailable(name) {
		return defs.EOK
	}
	return fs.delete(t, name)
}

// delete performs the actual on-disk removal. It is only reached when no
// concurrent consumer can exist: either Remove found the file not open at
// all, or Close just dropped the last reference.
func (fs *FileSystem_t) delete(t *sched.Thread_t, name string) defs.Err_t {
	fs.dir.FetchFrom(t)
	sector := fs.dir.dir.Find(name)
	if sector == -1 {
		fs.dir.Flush(t)
		return defs.ENOENT
	}

	fs.freeMap.FetchFrom(t)
	hdr := NewFileHeader()
	hdr.FetchFrom(fs.disk, sector)
	hdr.Deallocate(fs.freeMap.bm)
	fs.freeMap.bm.Clear(sector)
	fs.dir.dir.Remove(name)

	fs.dir.WriteBack(t)
	fs.freeMap.WriteBack(t)
	return defs.EOK
}

// Extend grows the file identified by globalID to newSize bytes, per
// spec.md §4.4.
func (fs *FileSystem_t) Extend(t *sched.Thread_t, globalID int, newSize int) defs.Err_t {
	fs.registry.mu.Lock()
	info, ok := fs.registry.byID[globalID]
	fs.registry.mu.Unlock()
	if !ok {
		return defs.EBADF
	}

	fs.dir.FetchFrom(t)
	fs.freeMap.FetchFrom(t)

	if info.Header.ExtendFile(fs.freeMap.bm, newSize) {
		info.Header.WriteBack(fs.disk, info.HeaderSector)
		fs.freeMap.WriteBack(t)
		fs.dir.Flush(t)
		return defs.EOK
	}

	info.Header.FetchFrom(fs.disk, info.HeaderSector)
	fs.freeMap.Flush(t)
	fs.dir.Flush(t)
	return defs.ENOSPC
}

// List returns the names of every file in the directory.
func (fs *FileSystem_t) List(t *sched.Thread_t) []string {
	fs.dir.FetchFrom(t)
	names := fs.dir.dir.List()
	fs.dir.Flush(t)
	return names
}

// Check verifies disk consistency: every sector is accounted for exactly
// once between the free-map/directory headers, file headers, indirection
// tables, and data sectors, per spec.md §8.
func (fs *FileSystem_t) Check(t *sched.Thread_t) bool {
	fs.dir.FetchFrom(t)
	fs.freeMap.FetchFrom(t)
	defer func() {
		fs.freeMap.Flush(t)
		fs.dir.Flush(t)
	}()

	seen := make(map[int]bool, defs.NumSectors)
	ok := true
	mark := func(sector int) {
		if sector < 0 || sector >= defs.NumSectors || seen[sector] {
			ok = false
			return
		}
		seen[sector] = true
	}

	mark(defs.FreeMapSector)
	mark(defs.DirectorySector)
	fs.freeMap.header.Walk(mark)
	fs.dir.header.Walk(mark)

	for _, name := range fs.dir.dir.List() {
		sector := fs.dir.dir.Find(name)
		mark(sector)
		if sector < 0 || sector >= defs.NumSectors {
			continue
		}
		hdr := NewFileHeader()
		hdr.FetchFrom(fs.disk, sector)
		hdr.Walk(mark)
	}

	for i := 0; i < defs.NumSectors; i++ {
		if seen[i] != fs.freeMap.bm.Test(i) {
			ok = false
		}
	}
	return ok
}

// Print dumps the file system's directory and every file header as a
// debug listing. No cmd/nachos flag calls it.
func (fs *FileSystem_t) Print(t *sched.Thread_t) string {
	fs.dir.FetchFrom(t)
	names := fs.dir.dir.List()
	out := "directory:\n"
	for _, name := range names {
		sector := fs.dir.dir.Find(name)
		hdr := NewFileHeader()
		hdr.FetchFrom(fs.disk, sector)
		out += "  " + name + ": sector " + strconv.Itoa(sector) + ", " + hdr.Print() + "\n"
	}
	fs.dir.Flush(t)
	return out
}
