package stats

import (
	"context"
	"log/slog"
	"time"
)

// Snapshotter is implemented by a Sender or Receiver to expose a point-in-
// time view of its protocol state for logging.
type Snapshotter interface {
	Snapshot() map[string]any
}

// Reporter periodically logs a Snapshotter's protocol state alongside host
// metrics collected by a SystemMonitor.
type Reporter struct {
	snapshotter Snapshotter
	monitor     *SystemMonitor
	logger      *slog.Logger
	interval    time.Duration
	startTime   time.Time
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewReporter creates a Reporter that logs every interval. If interval is
// <= 0, the reporter defaults to 30s.
func NewReporter(snapshotter Snapshotter, monitor *SystemMonitor, logger *slog.Logger, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reporter{
		snapshotter: snapshotter,
		monitor:     monitor,
		logger:      logger.With("component", "stats_reporter"),
		interval:    interval,
		startTime:   time.Now(),
		done:        make(chan struct{}),
	}
}

// Start begins the periodic reporting goroutine.
func (r *Reporter) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.report()
			case <-ctx.Done():
				return
			}
		}
	}()

	r.logger.Info("stats reporter started", "interval", r.interval)
}

// Stop stops the reporter and waits for its goroutine to exit.
func (r *Reporter) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
	r.logger.Info("stats reporter stopped")
}

func (r *Reporter) report() {
	attrs := []any{
		"uptime_seconds", int64(time.Since(r.startTime).Seconds()),
	}

	for k, v := range r.snapshotter.Snapshot() {
		attrs = append(attrs, k, v)
	}

	if r.monitor != nil {
		sysStats := r.monitor.Stats()
		attrs = append(attrs,
			"cpu_percent", sysStats.CPUPercent,
			"memory_percent", sysStats.MemoryPercent,
			"load_average", sysStats.LoadAverage,
		)
	}

	r.logger.Info("transport stats", attrs...)
}
