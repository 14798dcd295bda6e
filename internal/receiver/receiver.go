// Package receiver implements the receiving half of the transport: a single
// worker that validates incoming datagrams, advances the highest cumulative
// packet (HCP), synthesizes cumulative acks, and on completion flushes the
// reassembled stream in order.
package receiver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/nishisan-dev/reliable-dgram/internal/wire"
)

// State names the receiver's coarse lifecycle stage.
type State string

const (
	StateReceiving  State = "RECEIVING"
	StateEOSPending State = "EOS_PENDING"
	StateFlushing   State = "FLUSHING"
	StateDone       State = "DONE"
)

// ErrReceiveTimeout is returned by Run when no datagram arrives within the
// configured receive timeout before end-of-stream is reached.
var ErrReceiveTimeout = errors.New("receiver: no datagram received within the receive timeout")

// Receiver is the single worker that reassembles the incoming stream.
type Receiver struct {
	conn           net.PacketConn
	out            io.Writer
	receiveTimeout time.Duration
	eofAckRepeats  int
	maxDatagram    int
	logger         *slog.Logger

	state atomic.Value
	hcp   atomic.Uint32
	oos   *outOfOrderSet

	received    map[uint32][]byte
	eofRecorded bool
	eofTarget   uint32
	senderAddr  net.Addr
}

// New creates a Receiver reading datagrams from conn and writing the
// reassembled stream to out.
func New(conn net.PacketConn, out io.Writer, receiveTimeout time.Duration, eofAckRepeats, maxDatagram int, logger *slog.Logger) *Receiver {
	r := &Receiver{
		conn:           conn,
		out:            out,
		receiveTimeout: receiveTimeout,
		eofAckRepeats:  eofAckRepeats,
		maxDatagram:    maxDatagram,
		logger:         logger.With("role", "receiver"),
		oos:            newOutOfOrderSet(),
		received:       make(map[uint32][]byte),
	}
	r.state.Store(StateReceiving)
	return r
}

// Run executes the receive loop until the end-of-stream handshake completes
// or the receive timeout elapses, then flushes the reassembled stream to
// out. It returns the total number of bytes written.
func (r *Receiver) Run() (int64, error) {
	r.logger.Info("receiver starting")

	buf := make([]byte, r.maxDatagram)

	for {
		if r.eofRecorded && r.hcp.Load() == r.eofTarget {
			r.state.Store(StateFlushing)
			r.sendEndOfStreamHandshake()
			return r.flush(r.eofTarget)
		}

		r.conn.SetReadDeadline(time.Now().Add(r.receiveTimeout))
		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				r.logger.Error("receive timeout elapsed before end-of-stream; flushing what was received", "hcp", r.hcp.Load())
				r.state.Store(StateFlushing)
				written, ferr := r.flush(r.hcp.Load())
				if ferr != nil {
					return written, ferr
				}
				return written, ErrReceiveTimeout
			}
			r.logger.Error("reading datagram failed", "error", err)
			continue
		}

		dp, err := wire.DecodeDataPacket(buf[:n])
		if err != nil {
			r.logger.Debug("dropping unparseable datagram", "error", err)
			continue
		}
		if !dp.Verify() {
			r.logger.Debug("dropping datagram with invalid checksum", "sequence_number", dp.SequenceNumber)
			continue
		}

		if dp.EOF {
			r.recordEndOfStream(dp, addr)
			continue
		}

		r.acceptData(dp, addr)
	}
}

func (r *Receiver) recordEndOfStream(dp *wire.DataPacket, addr net.Addr) {
	if dp.SequenceNumber == 0 {
		r.logger.Error("end-of-stream packet carries sequence number 0; ignoring")
		return
	}
	r.eofTarget = dp.SequenceNumber - 1
	r.senderAddr = addr
	r.eofRecorded = true
	r.state.Store(StateEOSPending)
	r.logger.Debug("end-of-stream recorded", "target_hcp", r.eofTarget)
}

func (r *Receiver) acceptData(dp *wire.DataPacket, addr net.Addr) {
	p := dp.SequenceNumber
	hcp := r.hcp.Load()

	if p <= hcp || r.oos.Contains(p) {
		return
	}

	payload, err := dp.Payload()
	if err != nil {
		r.logger.Debug("dropping datagram with undecodable payload", "sequence_number", p, "error", err)
		return
	}

	switch {
	case p == hcp+1:
		r.received[p] = payload
		hcp = p
		for {
			m, ok := r.oos.PeekMin()
			if !ok || m != hcp+1 {
				break
			}
			r.oos.RemoveMin()
			hcp = m
		}
		r.hcp.Store(hcp)
	default: // p > hcp+1
		r.oos.Insert(p)
		r.received[p] = payload
	}

	r.sendAck(r.hcp.Load(), addr)
}

func (r *Receiver) sendAck(hcp uint32, addr net.Addr) {
	ack := wire.NewAckPacket(wire.Cumulative(hcp))
	ack.Sign()
	data, err := ack.Encode()
	if err != nil {
		r.logger.Error("encoding ack failed", "error", err)
		return
	}
	if _, err := r.conn.WriteTo(data, addr); err != nil {
		r.logger.Error("sending ack failed", "error", err)
	}
}

func (r *Receiver) sendEndOfStreamHandshake() {
	ack := wire.NewAckPacket(wire.EndOfStream())
	ack.Sign()
	data, err := ack.Encode()
	if err != nil {
		r.logger.Error("encoding end-of-stream ack failed", "error", err)
		return
	}
	for i := 0; i < r.eofAckRepeats; i++ {
		if _, err := r.conn.WriteTo(data, r.senderAddr); err != nil {
			r.logger.Error("sending end-of-stream ack failed", "attempt", i+1, "error", err)
		}
	}
	r.logger.Info("end-of-stream handshake sent", "repeats", r.eofAckRepeats)
}

// flush emits every received payload for sequence numbers 1..upTo, in
// order, to out. upTo is the end-of-stream target on a clean finish, or the
// current HCP on a receive-timeout bailout — either way, everything up to
// it is guaranteed contiguous and present.
func (r *Receiver) flush(upTo uint32) (int64, error) {
	var total int64
	for seq := uint32(1); seq <= upTo; seq++ {
		payload, ok := r.received[seq]
		if !ok {
			// Cannot happen: HCP only reaches upTo once every sequence
			// number up to it has a recorded payload.
			return total, fmt.Errorf("receiver: missing payload for sequence %d below HCP", seq)
		}
		n, err := r.out.Write(payload)
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("receiver: writing output: %w", err)
		}
	}
	r.state.Store(StateDone)
	r.logger.Info("receiver finished", "bytes_written", total)
	return total, nil
}

// Snapshot implements stats.Snapshotter.
func (r *Receiver) Snapshot() map[string]any {
	return map[string]any{
		"state":                     r.state.Load().(State),
		"highest_cumulative_packet": r.hcp.Load(),
		"out_of_order_count":        r.oos.Len(),
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
