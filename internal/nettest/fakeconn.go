// Package nettest provides an in-memory net.PacketConn pair for exercising
// the sender and receiver workers without touching a real socket.
package nettest

import (
	"net"
	"sync"
	"time"
)

type datagram struct {
	data []byte
	from net.Addr
}

// FakeAddr is a trivial net.Addr for use with FakeConn.
type FakeAddr string

func (a FakeAddr) Network() string { return "fake" }
func (a FakeAddr) String() string  { return string(a) }

// FakeConn is a net.PacketConn backed by a channel, optionally lossy (see
// SetDrop), for deterministic protocol tests. Delivered datagrams arrive in
// the order they were written; it does not reorder them.
type FakeConn struct {
	mu       sync.Mutex
	addr     FakeAddr
	peer     *FakeConn
	inbox    chan datagram
	deadline time.Time
	closed   bool
	drop     func([]byte) bool
}

// NewFakePair returns two connected FakeConns: writes to one arrive as reads
// on the other.
func NewFakePair(addrA, addrB FakeAddr) (*FakeConn, *FakeConn) {
	a := &FakeConn{addr: addrA, inbox: make(chan datagram, 1024)}
	b := &FakeConn{addr: addrB, inbox: make(chan datagram, 1024)}
	a.peer = b
	b.peer = a
	return a, b
}

// SetDrop installs a predicate that, when it returns true, silently drops an
// outgoing datagram instead of delivering it. Pass nil to disable.
func (c *FakeConn) SetDrop(drop func([]byte) bool) {
	c.mu.Lock()
	c.drop = drop
	c.mu.Unlock()
}

var _ net.PacketConn = (*FakeConn)(nil)

func (c *FakeConn) ReadFrom(p []byte) (int, net.Addr, error) {
	c.mu.Lock()
	deadline := c.deadline
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, nil, net.ErrClosed
	}

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if !deadline.IsZero() {
		d := time.Until(deadline)
		if d <= 0 {
			return 0, nil, fakeTimeoutError{}
		}
		timer = time.NewTimer(d)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case dg, ok := <-c.inbox:
		if !ok {
			return 0, nil, net.ErrClosed
		}
		n := copy(p, dg.data)
		return n, dg.from, nil
	case <-timeoutCh:
		return 0, nil, fakeTimeoutError{}
	}
}

func (c *FakeConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	closed := c.closed
	drop := c.drop
	peer := c.peer
	c.mu.Unlock()
	if closed {
		return 0, net.ErrClosed
	}
	if drop != nil && drop(p) {
		return len(p), nil
	}

	cp := make([]byte, len(p))
	copy(cp, p)
	peer.inbox <- datagram{data: cp, from: c.addr}
	return len(p), nil
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.inbox)
	return nil
}

func (c *FakeConn) LocalAddr() net.Addr { return c.addr }

func (c *FakeConn) SetDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	return nil
}

func (c *FakeConn) SetReadDeadline(t time.Time) error { return c.SetDeadline(t) }
func (c *FakeConn) SetWriteDeadline(time.Time) error  { return nil }

type fakeTimeoutError struct{}

func (fakeTimeoutError) Error() string   { return "fake conn read timeout" }
func (fakeTimeoutError) Timeout() bool   { return true }
func (fakeTimeoutError) Temporary() bool { return true }
