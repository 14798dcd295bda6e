package sender

import (
	"log/slog"
	"net"
	"time"

	"github.com/nishisan-dev/reliable-dgram/internal/wire"
)

// SocketWriter drains the pending queue onto the datagram socket, recording
// each successful transmission in the outstanding tracker.
type SocketWriter struct {
	conn        net.PacketConn
	dest        net.Addr
	pending     *PendingQueue
	outstanding *OutstandingTracker
	logger      *slog.Logger
}

// NewSocketWriter creates a SocketWriter sending to dest over conn.
func NewSocketWriter(conn net.PacketConn, dest net.Addr, pending *PendingQueue, outstanding *OutstandingTracker, logger *slog.Logger) *SocketWriter {
	return &SocketWriter{
		conn:        conn,
		dest:        dest,
		pending:     pending,
		outstanding: outstanding,
		logger:      logger.With("component", "socket_writer"),
	}
}

// Run dequeues the lowest-sequence pending item and sends it, looping until
// the quit sentinel is dequeued.
func (w *SocketWriter) Run() {
	w.logger.Info("starting to send", "destination", w.dest)

	for {
		it := w.pending.Get()
		if it.quit {
			w.logger.Info("received quit sentinel; stopping")
			return
		}

		w.send(it.packet)
	}
}

func (w *SocketWriter) send(p *wire.DataPacket) {
	data, err := p.Encode()
	if err != nil {
		w.logger.Error("encoding packet failed", "sequence_number", p.SequenceNumber, "error", err)
		return
	}

	n, err := w.conn.WriteTo(data, w.dest)
	if err != nil {
		w.logger.Error("sending packet failed", "sequence_number", p.SequenceNumber, "error", err)
		return
	}

	if n < len(data) {
		w.logger.Error("short send: datagram truncated by the OS", "sequence_number", p.SequenceNumber, "sent", n, "wanted", len(data))
	}

	w.outstanding.RecordSend(p, time.Now())
	w.logger.Debug("sent packet", "sequence_number", p.SequenceNumber, "bytes", n)
}
