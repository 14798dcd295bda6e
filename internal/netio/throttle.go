// Package netio wraps the UDP socket with cross-cutting concerns (rate
// limiting, DSCP marking) that sit outside the reliability protocol itself.
package netio

import (
	"context"
	"net"

	"golang.org/x/time/rate"
)

// maxBurstBytes bounds how much a single WriteTo can draw from the token
// bucket in one go; larger writes are not expected since the transport caps
// every datagram at MaxDatagramSize.
const maxBurstBytes = 64 * 1024

// ThrottledConn wraps a net.PacketConn, rate-limiting WriteTo to a fixed
// bytes/sec budget via a token bucket. ReadFrom and the rest of the
// interface pass through unchanged.
type ThrottledConn struct {
	net.PacketConn
	limiter *rate.Limiter
	ctx     context.Context
}

// NewThrottledConn wraps conn with a token-bucket rate limiter capped at
// bytesPerSec. If bytesPerSec <= 0, conn is returned unwrapped.
func NewThrottledConn(ctx context.Context, conn net.PacketConn, bytesPerSec int64) net.PacketConn {
	if bytesPerSec <= 0 {
		return conn
	}

	burst := int(bytesPerSec)
	if burst > maxBurstBytes {
		burst = maxBurstBytes
	}

	return &ThrottledConn{
		PacketConn: conn,
		limiter:    rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		ctx:        ctx,
	}
}

// WriteTo sends p to addr, blocking until enough tokens are available. The
// datagram is written in a single atomic WriteTo once it is fully paid for,
// but tokens are drawn in successive burst-sized chunks since a single
// WaitN call cannot request more than the bucket's burst size.
func (c *ThrottledConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	remaining := len(p)
	burst := c.limiter.Burst()
	for remaining > 0 {
		n := remaining
		if n > burst {
			n = burst
		}
		if err := c.limiter.WaitN(c.ctx, n); err != nil {
			return 0, err
		}
		remaining -= n
	}
	return c.PacketConn.WriteTo(p, addr)
}
