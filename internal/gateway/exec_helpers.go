package gateway

import (
	"errors"
	"io"

	"github.com/jfarizano/Nachos/internal/defs"
	"github.com/jfarizano/Nachos/internal/fs"
	"github.com/jfarizano/Nachos/internal/sched"
	"github.com/jfarizano/Nachos/internal/vm"
)

var errReadFailed = errors.New("gateway: read from executable failed")

// ReadBufferFromUser32 reads one little-endian uint32 from user memory at
// uva, used by saveArgs to walk an argv pointer array.
func ReadBufferFromUser32(t *sched.Thread_t, tlb *vm.Tlb_t, space *vm.AddrSpace_t, uva int) (uint32, defs.Err_t) {
	buf := make([]byte, 4)
	if err := ReadBufferFromUser(t, tlb, space, uva, buf); err != defs.EOK {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, defs.EOK
}

func writeUint32ToUser(t *sched.Thread_t, tlb *vm.Tlb_t, space *vm.AddrSpace_t, uva int, v uint32) {
	buf := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	WriteBufferToUser(t, tlb, space, uva, buf)
}

// openFileReader adapts an *fs.OpenFile_t to io.Reader for noff.Read,
// which expects a plain byte stream rather than the (thread, buffer)
// signature internal/fs uses.
type openFileReader struct {
	t  *sched.Thread_t
	of *fs.OpenFile_t
}

func (r *openFileReader) Read(p []byte) (int, error) {
	n, err := r.of.Read(r.t, p)
	if err != defs.EOK {
		return 0, errReadFailed
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}
