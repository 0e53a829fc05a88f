package nsync

import "github.com/jfarizano/Nachos/internal/sched"

// Channel_t is an unbuffered rendezvous channel carrying an int32 message,
// per spec.md §4.1. At most one sender and one receiver rendezvous per
// transfer; a send-lock and receive-lock serialize concurrent senders and
// receivers respectively so the mailbox is never shared by two
// simultaneous sends or receives.
type Channel_t struct {
	sendLock *Lock_t
	recvLock *Lock_t

	mailboxReady *Semaphore_t
	mailboxTaken *Semaphore_t
	mailbox      int32
}

// NewChannel creates an empty rendezvous channel.
func NewChannel(name string) *Channel_t {
	return &Channel_t{
		sendLock:     NewLock(name + "-send"),
		recvLock:     NewLock(name + "-recv"),
		mailboxReady: NewSemaphore(name + "-ready", 0),
		mailboxTaken: NewSemaphore(name + "-taken", 0),
	}
}

// Send blocks until a matching Receive has taken the message.
func (c *Channel_t) Send(t *sched.Thread_t, m int32) {
	c.sendLock.Acquire(t)
	c.mailbox = m
	c.mailboxReady.V()
	c.mailboxTaken.P(t)
	c.sendLock.Release(t)
}

// Receive blocks until a matching Send has placed a message, then returns
// it.
func (c *Channel_t) Receive(t *sched.Thread_t) int32 {
	c.recvLock.Acquire(t)
	c.mailboxReady.P(t)
	m := c.mailbox
	c.mailboxTaken.V()
	c.recvLock.Release(t)
	return m
}
