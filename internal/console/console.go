// Package console implements the synchronized console of spec.md §6:
// character-at-a-time input and output driven by ReadAvail/WriteDone
// interrupt callbacks, serialized by separate read and write locks so that
// per-character input and output can interleave safely.
package console

import (
	"bufio"
	"io"

	"github.com/jfarizano/Nachos/internal/nsync"
	"github.com/jfarizano/Nachos/internal/sched"
)

// Console_t is the synchronized console device. The underlying hardware
// callbacks (ReadAvail/WriteDone) are simulated here by a buffered reader
// and a direct writer rather than real interrupts, since the device
// simulator itself is an external collaborator (spec.md §1); what this
// package owns is the synchronization discipline layered on top of it.
type Console_t struct {
	readLock  *nsync.Lock_t
	writeLock *nsync.Lock_t

	readAvail  *nsync.Semaphore_t
	writeDone  *nsync.Semaphore_t

	in  *bufio.Reader
	out io.Writer
}

// New returns a console reading from in and writing to out.
func New(in io.Reader, out io.Writer) *Console_t {
	return &Console_t{
		readLock:  nsync.NewLock("console-read"),
		writeLock: nsync.NewLock("console-write"),
		readAvail: nsync.NewSemaphore("console-read-avail", 0),
		writeDone: nsync.NewSemaphore("console-write-done", 1),
		in:        bufio.NewReader(in),
		out:       out,
	}
}

// ReadByte blocks until one byte is available and returns it, per spec.md
// §5's "any console read from empty input" suspension point.
func (c *Console_t) ReadByte(t *sched.Thread_t) (byte, bool) {
	c.readLock.Acquire(t)
	defer c.readLock.Release(t)

	b, err := c.in.ReadByte()
	if err != nil {
		return 0, false
	}
	// ReadAvail fires once the byte has actually arrived; on this simulated
	// device the read above already blocked for it, so the handshake
	// degenerates to an immediate V/P pair that preserves the interface.
	c.readAvail.V()
	c.readAvail.P(t)
	return b, true
}

// WriteByte blocks until the device is idle, writes one byte, and waits
// for WriteDone before returning, per spec.md §6.
func (c *Console_t) WriteByte(t *sched.Thread_t, b byte) {
	c.writeLock.Acquire(t)
	defer c.writeLock.Release(t)

	c.writeDone.P(t)
	c.out.Write([]byte{b})
	c.writeDone.V()
}

// Read fills buf one byte at a time, stopping at EOF. It returns the
// number of bytes actually read.
func (c *Console_t) Read(t *sched.Thread_t, buf []byte) int {
	n := 0
	for n < len(buf) {
		b, ok := c.ReadByte(t)
		if !ok {
			break
		}
		buf[n] = b
		n++
	}
	return n
}

// Write writes every byte of buf to the console.
func (c *Console_t) Write(t *sched.Thread_t, buf []byte) int {
	for _, b := range buf {
		c.WriteByte(t, b)
	}
	return len(buf)
}
