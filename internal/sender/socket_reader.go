package sender

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/nishisan-dev/reliable-dgram/internal/wire"
)

// SocketReader processes incoming ack datagrams: advancing the cumulative
// ack, triggering fast-retransmit on duplicate acks, and initiating
// shutdown on the end-of-stream ack.
type SocketReader struct {
	conn        net.PacketConn
	pending     *PendingQueue
	archive     *Archive
	outstanding *OutstandingTracker
	shutdown    *mailbox
	threshold   int
	maxDatagram int
	pollEvery   time.Duration
	logger      *slog.Logger

	hca        atomic.Uint32
	dupAcks    int
	onEOFAcked func()
}

// NewSocketReader creates a SocketReader. pollEvery bounds how long a
// blocking receive can run before the mailbox is re-checked; Go has no
// non-blocking socket read, so a short read deadline stands in for it.
func NewSocketReader(conn net.PacketConn, pending *PendingQueue, archive *Archive, outstanding *OutstandingTracker, shutdown *mailbox, threshold, maxDatagram int, pollEvery time.Duration, logger *slog.Logger) *SocketReader {
	return &SocketReader{
		conn:        conn,
		pending:     pending,
		archive:     archive,
		outstanding: outstanding,
		shutdown:    shutdown,
		threshold:   threshold,
		maxDatagram: maxDatagram,
		pollEvery:   pollEvery,
		logger:      logger.With("component", "socket_reader"),
	}
}

// HCA returns the current highest cumulative ack, safe to read concurrently
// (e.g. from a stats reporter).
func (r *SocketReader) HCA() uint32 {
	return r.hca.Load()
}

// SetOnEOFAcked registers a callback invoked once the end-of-stream ack is
// observed, before this worker exits.
func (r *SocketReader) SetOnEOFAcked(fn func()) {
	r.onEOFAcked = fn
}

// Run reads acks until the end-of-stream ack arrives or shutdown is
// signaled.
func (r *SocketReader) Run() {
	r.logger.Info("starting to read acks from socket")

	buf := make([]byte, r.maxDatagram)

	for {
		if r.shutdown.Check() {
			r.logger.Info("shutdown mailbox signaled; stopping")
			r.pending.PushQuit()
			return
		}

		r.conn.SetReadDeadline(time.Now().Add(r.pollEvery))
		n, _, err := r.conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
				r.logger.Info("socket closed; stopping")
				return
			}
			r.logger.Error("reading ack failed", "error", err)
			continue
		}

		ack, err := wire.DecodeAckPacket(buf[:n])
		if err != nil {
			r.logger.Debug("dropping unparseable ack", "error", err)
			continue
		}
		if !ack.Verify() {
			r.logger.Debug("dropping ack with invalid checksum")
			continue
		}

		if ack.Acknowledged.IsEOF() {
			r.logger.Info("end-of-stream ack received; stopping")
			if r.onEOFAcked != nil {
				r.onEOFAcked()
			}
			r.pending.PushQuit()
			r.shutdown.Signal()
			return
		}

		r.acceptAck(ack.Acknowledged.N())
	}
}

func (r *SocketReader) acceptAck(apn uint32) {
	hca := r.hca.Load()

	switch {
	case apn < hca:
		// Stale ack; ignore.
		return
	case apn == hca:
		r.dupAcks++
		r.logger.Debug("duplicate ack", "hca", hca, "count", r.dupAcks)
		if r.dupAcks == r.threshold {
			r.fastRetransmit(hca + 1)
			r.dupAcks = 0
		}
	default:
		r.outstanding.MarkAckedUpTo(hca, apn)
		r.hca.Store(apn)
		r.dupAcks = 0
	}
}

func (r *SocketReader) fastRetransmit(seq uint32) {
	p, ok := r.archive.Load(seq)
	if !ok {
		// Cannot happen under the invariants: every outstanding sequence
		// number was stored in the archive before it was ever sent.
		panic(fmt.Sprintf("sender: fast-retransmit archive miss for sequence %d; every outstanding sequence number must be archived before it is sent", seq))
	}
	r.logger.Debug("fast-retransmit", "sequence_number", seq)
	r.pending.PushPacket(p)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
