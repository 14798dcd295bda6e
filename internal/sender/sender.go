// Package sender implements the sending half of the transport: InputReader,
// SocketWriter, SocketReader and TimeoutMonitor running as four concurrent
// workers coordinated through a pending queue, an outstanding-send tracker,
// a packet archive and a shutdown mailbox.
package sender

import (
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/nishisan-dev/reliable-dgram/internal/config"
)

// State names the sender's coarse lifecycle stage, mirrored in Snapshot()
// for the stats reporter.
type State string

const (
	StateReading      State = "READING"
	StateDraining     State = "DRAINING"
	StateShuttingDown State = "SHUTTING_DOWN"
	StateDone         State = "DONE"
)

// Sender wires together the four workers and exposes their shared state for
// monitoring.
type Sender struct {
	cfg    config.SenderConfig
	input  io.Reader
	conn   net.PacketConn
	dest   net.Addr
	logger *slog.Logger

	pending     *PendingQueue
	archive     *Archive
	outstanding *OutstandingTracker
	shutdown    *mailbox

	inputReader *InputReader
	writer      *SocketWriter
	reader      *SocketReader
	monitor     *TimeoutMonitor

	state  atomic.Value
	eofSeq atomic.Uint32
}

// New creates a Sender that reads input from r and exchanges datagrams with
// dest over conn.
func New(cfg config.SenderConfig, r io.Reader, conn net.PacketConn, dest net.Addr, logger *slog.Logger) *Sender {
	pending := NewPendingQueue()
	archive := NewArchive()
	outstanding := NewOutstandingTracker()
	shutdown := newMailbox()

	s := &Sender{
		cfg:         cfg,
		input:       r,
		conn:        conn,
		dest:        dest,
		logger:      logger.With("role", "sender"),
		pending:     pending,
		archive:     archive,
		outstanding: outstanding,
		shutdown:    shutdown,
	}
	s.state.Store(StateReading)

	s.inputReader = NewInputReader(r, cfg.FragmentSize, pending, archive, logger)
	s.writer = NewSocketWriter(conn, dest, pending, outstanding, logger)
	s.reader = NewSocketReader(conn, pending, archive, outstanding, shutdown, cfg.FastRetransmitThreshold, cfg.MaxDatagramSize, cfg.TimeoutPollInterval, logger)
	s.monitor = NewTimeoutMonitor(pending, outstanding, shutdown, cfg.TimeoutPollInterval, cfg.RetransmitTimeout, cfg.IdleTicksLimit, logger)
	s.reader.SetOnEOFAcked(func() { s.state.Store(StateShuttingDown) })

	return s
}

// Run starts all four workers and blocks until the transfer completes: the
// end-of-stream ack is received, or the idle-tick bound is reached with
// nothing outstanding. It returns the sequence number of the end-of-stream
// packet.
func (s *Sender) Run() uint32 {
	s.logger.Info("sender starting")

	var wg sync.WaitGroup
	wg.Add(3)

	go func() { defer wg.Done(); s.writer.Run() }()
	go func() { defer wg.Done(); s.reader.Run() }()
	go func() { defer wg.Done(); s.monitor.Run() }()

	eofSeq := s.inputReader.Run()
	s.eofSeq.Store(eofSeq)
	s.state.Store(StateDraining)

	wg.Wait()
	s.state.Store(StateDone)

	s.logger.Info("sender finished", "eof_sequence", eofSeq)
	return eofSeq
}

// Snapshot implements stats.Snapshotter.
func (s *Sender) Snapshot() map[string]any {
	return map[string]any{
		"state":                  s.state.Load().(State),
		"highest_cumulative_ack": s.reader.HCA(),
		"outstanding_count":      s.outstanding.Len(),
		"pending_depth":          s.pending.Len(),
		"eof_sequence":           s.eofSeq.Load(),
	}
}
