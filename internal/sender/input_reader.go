package sender

import (
	"bufio"
	"errors"
	"io"
	"log/slog"

	"github.com/nishisan-dev/reliable-dgram/internal/wire"
)

// InputReader reads the input stream, fragments it into D-byte payloads,
// numbers them from 1, and pushes data packets (and finally the
// end-of-stream marker) onto the pending queue. The archive is populated
// before the pending-queue push so a retransmit lookup never races ahead of
// the archive insert.
type InputReader struct {
	src          *bufio.Reader
	fragmentSize int
	pending      *PendingQueue
	archive      *Archive
	logger       *slog.Logger
}

// NewInputReader creates an InputReader over src, fragmenting into chunks
// of fragmentSize bytes.
func NewInputReader(src io.Reader, fragmentSize int, pending *PendingQueue, archive *Archive, logger *slog.Logger) *InputReader {
	return &InputReader{
		src:          bufio.NewReaderSize(src, fragmentSize),
		fragmentSize: fragmentSize,
		pending:      pending,
		archive:      archive,
		logger:       logger.With("component", "input_reader"),
	}
}

// Run reads until EOF, queuing every fragment and finally the end-of-stream
// packet. It returns the sequence number of the end-of-stream packet.
func (r *InputReader) Run() uint32 {
	r.logger.Info("starting to read input")

	var seq uint32
	buf := make([]byte, r.fragmentSize)

	for {
		n, err := io.ReadFull(r.src, buf)
		seq++

		switch {
		case err == nil:
			r.queueData(seq, buf[:n])
		case errors.Is(err, io.ErrUnexpectedEOF):
			// A short final read before EOF: still real data, not the
			// end-of-stream marker.
			r.queueData(seq, buf[:n])
		case errors.Is(err, io.EOF):
			r.queueEOF(seq)
			r.logger.Info("read all of input", "data_packets", seq-1, "eof_sequence", seq)
			return seq
		default:
			r.logger.Error("reading input failed", "error", err)
			r.queueEOF(seq)
			return seq
		}
	}
}

func (r *InputReader) queueData(seq uint32, data []byte) {
	payload := make([]byte, len(data))
	copy(payload, data)

	p := wire.NewDataPacket(seq, payload)
	p.Sign()

	r.archive.Store(p)
	r.pending.PushPacket(p)
	r.logger.Debug("queued data packet", "sequence_number", seq, "bytes", len(payload))
}

func (r *InputReader) queueEOF(seq uint32) {
	p := wire.NewEOFPacket(seq)
	p.Sign()

	r.archive.Store(p)
	r.pending.PushPacket(p)
	r.logger.Debug("queued end-of-stream packet", "sequence_number", seq)
}
