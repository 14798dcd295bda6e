package sender

import (
	"log/slog"
	"time"
)

// TimeoutMonitor wakes on a fixed poll interval, re-enqueues any packet that
// has been outstanding longer than the retransmit timeout, and declares the
// transfer idle-complete once nothing has been outstanding for
// idleTicksLimit consecutive polls.
type TimeoutMonitor struct {
	pending        *PendingQueue
	outstanding    *OutstandingTracker
	shutdown       *mailbox
	pollInterval   time.Duration
	timeout        time.Duration
	idleTicksLimit int
	logger         *slog.Logger
}

// NewTimeoutMonitor creates a TimeoutMonitor.
func NewTimeoutMonitor(pending *PendingQueue, outstanding *OutstandingTracker, shutdown *mailbox, pollInterval, timeout time.Duration, idleTicksLimit int, logger *slog.Logger) *TimeoutMonitor {
	return &TimeoutMonitor{
		pending:        pending,
		outstanding:    outstanding,
		shutdown:       shutdown,
		pollInterval:   pollInterval,
		timeout:        timeout,
		idleTicksLimit: idleTicksLimit,
		logger:         logger.With("component", "timeout_monitor"),
	}
}

// Run polls until shutdown is signaled or the idle-tick bound is reached.
func (m *TimeoutMonitor) Run() {
	m.logger.Info("starting timeout monitor", "poll_interval", m.pollInterval, "timeout", m.timeout)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	idleTicks := 0

	for range ticker.C {
		if m.shutdown.Check() {
			m.logger.Info("shutdown mailbox signaled; stopping")
			return
		}

		if m.outstanding.IsEmpty() {
			idleTicks++
			if idleTicks >= m.idleTicksLimit {
				m.logger.Info("no outstanding packets across idle ticks; declaring shutdown", "ticks", idleTicks)
				m.shutdown.Signal()
				m.pending.PushQuit()
				return
			}
			continue
		}
		idleTicks = 0

		expired := m.outstanding.ScanTimeouts(time.Now(), m.timeout)
		for _, p := range expired {
			m.logger.Debug("retransmitting on timeout", "sequence_number", p.SequenceNumber)
			m.pending.PushPacket(p)
		}
	}
}
