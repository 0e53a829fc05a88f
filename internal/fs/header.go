// Package fs implements the indexed on-disk file system of spec.md §4.2,
// §4.3 and §4.4: the free-sector bitmap and directory synchronization
// protocol, indexed file headers with one level of indirection, and the
// FileSystem_t operations (Create/Open/Close/Remove/Extend/List/Check/
// Print) built on top of them.
package fs

import (
	"fmt"

	"github.com/jfarizano/Nachos/internal/bitmap"
	"github.com/jfarizano/Nachos/internal/defs"
	"github.com/jfarizano/Nachos/internal/disk"
	"github.com/jfarizano/Nachos/internal/util"
)

// unusedTableSector marks a FileHeader_t.tableSectors slot not currently
// backing an indirection table.
const unusedTableSector = int32(-1)

// FileHeader_t represents numBytes bytes of a file through up to
// NumIndirect indirection tables, each holding NumDirect data-sector
// numbers, per spec.md §3 and §4.3. The on-disk layout is exactly
// {numBytes u32; tableSectors[NumIndirect] u32}, little-endian.
type FileHeader_t struct {
	NumBytes     int
	tableSectors [defs.NumIndirect]int32
	tables       [defs.NumIndirect][]uint32 // in-memory only; nil when inactive
}

// NewFileHeader returns an empty header with every indirection slot
// marked unused.
func NewFileHeader() *FileHeader_t {
	h := &FileHeader_t{}
	for i := range h.tableSectors {
		h.tableSectors[i] = unusedTableSector
	}
	return h
}

func numTables(numBytes int) int {
	if numBytes == 0 {
		return 0
	}
	d := util.DivRoundup(numBytes, defs.SectorSize)
	return util.DivRoundup(d, defs.NumDirect)
}

func numDataSectors(numBytes int) int {
	if numBytes == 0 {
		return 0
	}
	return util.DivRoundup(numBytes, defs.SectorSize)
}

// Allocate reserves data sectors and indirection tables for a file of
// size bytes out of freeMap, per spec.md §4.3. It fails without mutating
// freeMap if there isn't enough room or size exceeds MaxFileSize.
func (h *FileHeader_t) Allocate(freeMap *bitmap.Bitmap_t, size int) defs.Err_t {
	if size < 0 || size > defs.MaxFileSize {
		return defs.ENOSPC
	}
	d := numDataSectors(size)
	t := numTables(size)
	if freeMap.CountClear() < d+t {
		return defs.ENOSPC
	}
	for i := 0; i < t; i++ {
		ts := freeMap.Find()
		h.tableSectors[i] = int32(ts)
		h.tables[i] = make([]uint32, defs.NumDirect)
	}
	remaining := d
	for i := 0; i < t; i++ {
		n := util.Min(remaining, defs.NumDirect)
		for j := 0; j < n; j++ {
			h.tables[i][j] = uint32(freeMap.Find())
		}
		remaining -= n
	}
	h.NumBytes = size
	return defs.EOK
}

// Deallocate returns every sector this header owns to freeMap, one
// indirection table at a time: that table's data sectors, then the table
// sector itself.
func (h *FileHeader_t) Deallocate(freeMap *bitmap.Bitmap_t) {
	d := numDataSectors(h.NumBytes)
	t := numTables(h.NumBytes)
	remaining := d
	for i := 0; i < t; i++ {
		n := util.Min(remaining, defs.NumDirect)
		for j := 0; j < n; j++ {
			freeMap.Clear(int(h.tables[i][j]))
		}
		remaining -= n
		freeMap.Clear(int(h.tableSectors[i]))
		h.tables[i] = nil
		h.tableSectors[i] = unusedTableSector
	}
	h.NumBytes = 0
}

// ByteToSector translates a byte offset (which must be < NumBytes) into
// the disk sector holding it, per spec.md §4.3.
func (h *FileHeader_t) ByteToSector(off int) int {
	if off < 0 || off >= h.NumBytes {
		panic(fmt.Sprintf("fs: ByteToSector(%d) out of range for %d byte file", off, h.NumBytes))
	}
	span := defs.NumDirect * defs.SectorSize
	tIdx := off / span
	dIdx := (off % span) / defs.SectorSize
	return int(h.tables[tIdx][dIdx])
}

// ExtendFile grows the file to newSize bytes, allocating additional
// tables/data sectors starting from the old end, per spec.md §4.3. A call
// with newSize <= the current size is a no-op that reports success without
// shrinking the file; growth that stays within the already-allocated data
// sectors only updates NumBytes.
func (h *FileHeader_t) ExtendFile(freeMap *bitmap.Bitmap_t, newSize int) bool {
	if newSize <= h.NumBytes {
		return true
	}
	if newSize > defs.MaxFileSize {
		return false
	}
	oldD := numDataSectors(h.NumBytes)
	newD := numDataSectors(newSize)
	if newD == oldD {
		h.NumBytes = newSize
		return true
	}
	oldT := numTables(h.NumBytes)
	newT := numTables(newSize)
	needData := newD - oldD
	needTables := newT - oldT
	if freeMap.CountClear() < needData+needTables {
		return false
	}
	for i := oldT; i < newT; i++ {
		ts := freeMap.Find()
		h.tableSectors[i] = int32(ts)
		h.tables[i] = make([]uint32, defs.NumDirect)
	}
	for d := oldD; d < newD; d++ {
		tIdx := d / defs.NumDirect
		dIdx := d % defs.NumDirect
		h.tables[tIdx][dIdx] = uint32(freeMap.Find())
	}
	h.NumBytes = newSize
	return true
}

// Walk invokes fn once for every sector this header currently owns
// (indirection tables and data sectors, not the header sector itself).
// internal/fs's Check uses this to cross-check the free-map.
func (h *FileHeader_t) Walk(fn func(sector int)) {
	d := numDataSectors(h.NumBytes)
	t := numTables(h.NumBytes)
	remaining := d
	for i := 0; i < t; i++ {
		fn(int(h.tableSectors[i]))
		n := util.Min(remaining, defs.NumDirect)
		for j := 0; j < n; j++ {
			fn(int(h.tables[i][j]))
		}
		remaining -= n
	}
}

// headerSectorBytes serializes {numBytes, tableSectors} into one sector.
func (h *FileHeader_t) headerSectorBytes() []byte {
	buf := make([]byte, defs.SectorSize)
	util.PutU32(buf, 0, uint32(h.NumBytes))
	for i, ts := range h.tableSectors {
		util.PutU32(buf, 4+4*i, uint32(ts))
	}
	return buf
}

func (h *FileHeader_t) loadHeaderSectorBytes(buf []byte) {
	h.NumBytes = int(util.GetU32(buf, 0))
	for i := range h.tableSectors {
		h.tableSectors[i] = int32(util.GetU32(buf, 4+4*i))
	}
}

// FetchFrom reads the header sector then every currently-active
// indirection table from disk, per spec.md §4.3.
func (h *FileHeader_t) FetchFrom(d disk.Disk_i, sector int) {
	buf := make([]byte, defs.SectorSize)
	d.ReadSector(sector, buf)
	h.loadHeaderSectorBytes(buf)

	t := numTables(h.NumBytes)
	for i := 0; i < t; i++ {
		tbuf := make([]byte, defs.SectorSize)
		d.ReadSector(int(h.tableSectors[i]), tbuf)
		h.tables[i] = make([]uint32, defs.NumDirect)
		for j := 0; j < defs.NumDirect; j++ {
			h.tables[i][j] = util.GetU32(tbuf, 4*j)
		}
	}
}

// WriteBack writes the header sector then every currently-active
// indirection table to disk.
func (h *FileHeader_t) WriteBack(d disk.Disk_i, sector int) {
	d.WriteSector(sector, h.headerSectorBytes())

	t := numTables(h.NumBytes)
	for i := 0; i < t; i++ {
		tbuf := make([]byte, defs.SectorSize)
		for j := 0; j < defs.NumDirect; j++ {
			util.PutU32(tbuf, 4*j, h.tables[i][j])
		}
		d.WriteSector(int(h.tableSectors[i]), tbuf)
	}
}

// Print renders a debug dump of the header. spec.md §9 (Open Question 1)
// leaves the on-disk Print format unspecified; this is a plain text
// listing of size and sector numbers, matching the terse debug output
// style biscuit uses elsewhere (e.g. teacher/fs/blk.go's BlkList_t.Print).
func (h *FileHeader_t) Print() string {
	s := fmt.Sprintf("size %d bytes, sectors:", h.NumBytes)
	h.Walk(func(sector int) {
		s += fmt.Sprintf(" %d", sector)
	})
	return s
}
