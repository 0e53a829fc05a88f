package fs

import (
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/jfarizano/Nachos/internal/defs"
	"github.com/jfarizano/Nachos/internal/util"
)

// dirEntrySize is {inUse: 1 byte; name: FileNameMaxLen+1 bytes; sector: 4
// bytes}, per spec.md §3.
const dirEntrySize = 1 + (defs.FileNameMaxLen + 1) + 4

// validateName runs name through golang.org/x/text's UTF-8 decoder to
// reject malformed byte sequences before they are packed into a fixed
// FileNameMaxLen-byte directory entry, then checks the length bound
// spec.md §3 imposes.
func validateName(name string) (string, defs.Err_t) {
	clean, _, err := transform.String(unicode.UTF8.NewDecoder(), name)
	// The decoder substitutes U+FFFD for malformed bytes rather than failing,
	// so any change to the name marks it as malformed.
	if err != nil || clean != name {
		return "", defs.EINVAL
	}
	if len(clean) == 0 || len(clean) > defs.FileNameMaxLen {
		return "", defs.ENAMETOOLONG
	}
	return clean, defs.EOK
}

type dirEntry_t struct {
	inUse  bool
	name   string
	sector int
}

// Directory_t is the single-level directory of spec.md §3/§4.2: a fixed
// array of NumDirEntries entries, itself stored as the contents of an
// ordinary file.
type Directory_t struct {
	entries [defs.NumDirEntries]dirEntry_t
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory_t {
	return &Directory_t{}
}

// Size is the byte size of the directory's backing file.
func Size() int {
	return defs.NumDirEntries * dirEntrySize
}

// Find returns the header sector of name, or -1 if not present.
func (dir *Directory_t) Find(name string) int {
	for i := range dir.entries {
		e := &dir.entries[i]
		if e.inUse && e.name == name {
			return e.sector
		}
	}
	return -1
}

// Add inserts a new entry. It fails if the directory is full or name
// already exists.
func (dir *Directory_t) Add(name string, sector int) bool {
	if dir.Find(name) != -1 {
		return false
	}
	for i := range dir.entries {
		if !dir.entries[i].inUse {
			dir.entries[i] = dirEntry_t{inUse: true, name: name, sector: sector}
			return true
		}
	}
	return false
}

// Remove deletes the entry for name. It reports whether an entry was
// removed.
func (dir *Directory_t) Remove(name string) bool {
	for i := range dir.entries {
		e := &dir.entries[i]
		if e.inUse && e.name == name {
			*e = dirEntry_t{}
			return true
		}
	}
	return false
}

// List returns the names of every in-use entry.
func (dir *Directory_t) List() []string {
	var names []string
	for i := range dir.entries {
		if dir.entries[i].inUse {
			names = append(names, dir.entries[i].name)
		}
	}
	return names
}

const dirNameWidth = defs.FileNameMaxLen + 1

// Bytes serializes the directory to its on-disk byte representation.
func (dir *Directory_t) Bytes() []byte {
	buf := make([]byte, Size())
	for i, e := range dir.entries {
		off := i * dirEntrySize
		if e.inUse {
			buf[off] = 1
		}
		nb := []byte(e.name)
		if len(nb) > defs.FileNameMaxLen {
			nb = nb[:defs.FileNameMaxLen]
		}
		copy(buf[off+1:off+1+dirNameWidth], nb)
		util.PutU32(buf, off+1+dirNameWidth, uint32(e.sector))
	}
	return buf
}

// LoadBytes populates the directory from its on-disk byte representation.
func (dir *Directory_t) LoadBytes(buf []byte) {
	for i := range dir.entries {
		off := i * dirEntrySize
		inUse := buf[off] != 0
		nameBuf := buf[off+1 : off+1+dirNameWidth]
		n := 0
		for n < len(nameBuf) && nameBuf[n] != 0 {
			n++
		}
		sector := int(util.GetU32(buf, off+1+dirNameWidth))
		dir.entries[i] = dirEntry_t{inUse: inUse, name: string(nameBuf[:n]), sector: sector}
	}
}
