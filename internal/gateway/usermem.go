package gateway

import (
	"github.com/jfarizano/Nachos/internal/defs"
	"github.com/jfarizano/Nachos/internal/sched"
	"github.com/jfarizano/Nachos/internal/vm"
)

// maxRetries bounds ReadMem/WriteMem's TLB-miss retry loop, per spec.md
// §4.6 ("single-byte with up to four retries under TLB").
const maxRetries = 4

func readByteRetry(t *sched.Thread_t, tlb *vm.Tlb_t, space *vm.AddrSpace_t, vaddr int) (byte, defs.Err_t) {
	var err defs.Err_t
	var b byte
	for i := 0; i < maxRetries; i++ {
		b, err = space.ReadMem(t, tlb, vaddr)
		if err == defs.EOK {
			return b, defs.EOK
		}
	}
	return 0, err
}

func writeByteRetry(t *sched.Thread_t, tlb *vm.Tlb_t, space *vm.AddrSpace_t, vaddr int, b byte) defs.Err_t {
	var err defs.Err_t
	for i := 0; i < maxRetries; i++ {
		err = space.WriteMem(t, tlb, vaddr, b)
		if err == defs.EOK {
			return defs.EOK
		}
	}
	return err
}

// ReadBufferFromUser copies len(buf) bytes from user memory at uva into
// buf.
func ReadBufferFromUser(t *sched.Thread_t, tlb *vm.Tlb_t, space *vm.AddrSpace_t, uva int, buf []byte) defs.Err_t {
	for i := range buf {
		b, err := readByteRetry(t, tlb, space, uva+i)
		if err != defs.EOK {
			return err
		}
		buf[i] = b
	}
	return defs.EOK
}

// WriteBufferToUser copies buf into user memory starting at uva.
func WriteBufferToUser(t *sched.Thread_t, tlb *vm.Tlb_t, space *vm.AddrSpace_t, uva int, buf []byte) defs.Err_t {
	for i, b := range buf {
		if err := writeByteRetry(t, tlb, space, uva+i, b); err != defs.EOK {
			return err
		}
	}
	return defs.EOK
}

// ReadStringFromUser copies a NUL-terminated string from user memory at
// uva, up to maxLen bytes, per spec.md §4.6.
func ReadStringFromUser(t *sched.Thread_t, tlb *vm.Tlb_t, space *vm.AddrSpace_t, uva int, maxLen int) (string, defs.Err_t) {
	buf := make([]byte, 0, 64)
	for i := 0; i < maxLen; i++ {
		b, err := readByteRetry(t, tlb, space, uva+i)
		if err != defs.EOK {
			return "", err
		}
		if b == 0 {
			return string(buf), defs.EOK
		}
		buf = append(buf, b)
	}
	return "", defs.ENAMETOOLONG
}

// WriteStringToUser copies s plus a terminating NUL into user memory at
// uva.
func WriteStringToUser(t *sched.Thread_t, tlb *vm.Tlb_t, space *vm.AddrSpace_t, uva int, s string) defs.Err_t {
	if err := WriteBufferToUser(t, tlb, space, uva, []byte(s)); err != defs.EOK {
		return err
	}
	return writeByteRetry(t, tlb, space, uva+len(s), 0)
}
