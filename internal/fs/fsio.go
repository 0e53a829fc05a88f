package fs

import (
	"github.com/jfarizano/Nachos/internal/defs"
	"github.com/jfarizano/Nachos/internal/disk"
	"github.com/jfarizano/Nachos/internal/util"
)

// readFileBytes reads the first n bytes of the file described by h,
// hopping sector to sector via h.ByteToSector. Used to load the bitmap
// and directory, which are ordinary files bootstrapped before the rest
// of FileSystem_t exists.
func readFileBytes(d disk.Disk_i, h *FileHeader_t, n int) []byte {
	buf := make([]byte, n)
	chunk := make([]byte, defs.SectorSize)
	for off := 0; off < n; off += defs.SectorSize {
		sector := h.ByteToSector(off)
		d.ReadSector(sector, chunk)
		end := util.Min(off+defs.SectorSize, n)
		copy(buf[off:end], chunk[:end-off])
	}
	return buf
}

// writeFileBytes writes data into the file described by h, sector by
// sector.
func writeFileBytes(d disk.Disk_i, h *FileHeader_t, data []byte) {
	chunk := make([]byte, defs.SectorSize)
	for off := 0; off < len(data); off += defs.SectorSize {
		sector := h.ByteToSector(off)
		for i := range chunk {
			chunk[i] = 0
		}
		end := util.Min(off+defs.SectorSize, len(data))
		copy(chunk, data[off:end])
		d.WriteSector(sector, chunk)
	}
}
