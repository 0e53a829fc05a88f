// Package noff parses the NOFF executable header spec.md §6 defines: a
// byte-exact struct external to the core subsystems (spec.md §1 lists the
// "NOFF executable header parser" among the out-of-scope collaborators),
// kept here because internal/vm's demand loader needs something concrete
// to read segment extents from.
package noff

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jfarizano/Nachos/internal/defs"
)

// Segment describes one of the three NOFF segments.
type Segment struct {
	VirtualAddr uint32
	InFileAddr  uint32
	Size        uint32
}

// Header is the byte-exact NOFF header at offset 0 of every user binary.
type Header struct {
	Magic      uint32
	Code       Segment
	InitData   Segment
	UninitData Segment
}

const headerSize = 4 + 3*12 // magic + three {u32,u32,u32} segments

// Read parses a NOFF header from r, byte-swapping if the on-disk magic
// doesn't match the expected little-endian value (spec.md §6: "byte-swap
// on mismatched host endianness").
func Read(r io.Reader) (*Header, defs.Err_t) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, defs.EINVAL
	}

	order := binary.ByteOrder(binary.LittleEndian)
	magic := order.Uint32(buf[0:4])
	if magic != defs.NachosMagic {
		// try the opposite endianness before giving up
		order = binary.BigEndian
		magic = order.Uint32(buf[0:4])
		if magic != defs.NachosMagic {
			return nil, defs.EINVAL
		}
	}

	readSeg := func(off int) Segment {
		return Segment{
			VirtualAddr: order.Uint32(buf[off : off+4]),
			InFileAddr:  order.Uint32(buf[off+4 : off+8]),
			Size:        order.Uint32(buf[off+8 : off+12]),
		}
	}

	h := &Header{
		Magic:      magic,
		Code:       readSeg(4),
		InitData:   readSeg(16),
		UninitData: readSeg(28),
	}
	return h, defs.EOK
}

// String renders the header for debug dumps.
func (h *Header) String() string {
	return fmt.Sprintf("noff{code: va=%#x off=%#x sz=%d, initData: va=%#x off=%#x sz=%d, uninitData: va=%#x off=%#x sz=%d}",
		h.Code.VirtualAddr, h.Code.InFileAddr, h.Code.Size,
		h.InitData.VirtualAddr, h.InitData.InFileAddr, h.InitData.Size,
		h.UninitData.VirtualAddr, h.UninitData.InFileAddr, h.UninitData.Size)
}
