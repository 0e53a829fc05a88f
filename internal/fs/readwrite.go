package fs

import (
	"github.com/jfarizano/Nachos/internal/defs"
	"github.com/jfarizano/Nachos/internal/sched"
	"github.com/jfarizano/Nachos/internal/util"
)

// Read copies up to len(buf) bytes starting at the handle's current
// position into buf, advancing Position. Reads past EOF return the
// number of bytes actually read, per spec.md §4.4.
func (of *OpenFile_t) Read(t *sched.Thread_t, buf []byte) (int, defs.Err_t) {
	of.Sync.BeginRead(t)
	defer of.Sync.EndRead(t)

	n := 0
	chunk := make([]byte, defs.SectorSize)
	for n < len(buf) && of.Position < of.Header.NumBytes {
		sector := of.Header.ByteToSector(of.Position)
		of.fs.disk.ReadSector(sector, chunk)
		secOff := of.Position % defs.SectorSize
		want := util.Min(defs.SectorSize-secOff, util.Min(len(buf)-n, of.Header.NumBytes-of.Position))
		copy(buf[n:n+want], chunk[secOff:secOff+want])
		n += want
		of.Position += want
	}
	return n, defs.EOK
}

// Write copies len(buf) bytes from buf to the handle's current position,
// extending the file first if necessary, per spec.md §4.4.
func (of *OpenFile_t) Write(t *sched.Thread_t, buf []byte) (int, defs.Err_t) {
	of.Sync.BeginWrite(t)
	defer of.Sync.EndWrite(t)

	needEnd := of.Position + len(buf)
	if needEnd > of.Header.NumBytes {
		if err := of.fs.Extend(t, of.GlobalId, needEnd); err != defs.EOK {
			return 0, err
		}
	}

	n := 0
	chunk := make([]byte, defs.SectorSize)
	for n < len(buf) {
		sector := of.Header.ByteToSector(of.Position)
		secOff := of.Position % defs.SectorSize
		want := util.Min(defs.SectorSize-secOff, len(buf)-n)
		if secOff != 0 || want < defs.SectorSize {
			of.fs.disk.ReadSector(sector, chunk)
		}
		copy(chunk[secOff:secOff+want], buf[n:n+want])
		of.fs.disk.WriteSector(sector, chunk)
		n += want
		of.Position += want
	}
	return n, defs.EOK
}

// Length returns the file's current size in bytes.
func (of *OpenFile_t) Length() int {
	return of.Header.NumBytes
}
