// Command send reads a byte stream from stdin and transfers it reliably,
// in order, to a recv listener over UDP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/nishisan-dev/reliable-dgram/internal/config"
	"github.com/nishisan-dev/reliable-dgram/internal/logging"
	"github.com/nishisan-dev/reliable-dgram/internal/netio"
	"github.com/nishisan-dev/reliable-dgram/internal/sender"
	"github.com/nishisan-dev/reliable-dgram/internal/stats"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: send <host> <port> [-config path] [-d bytes] [-rate bps] [-log-level L] [-log-format F]")
		os.Exit(1)
	}
	host, port := os.Args[1], os.Args[2]

	fs := flag.NewFlagSet("send", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	fragmentSize := fs.Int("d", 0, "fragment size in bytes (overrides config)")
	rateLimit := fs.Int64("rate", 0, "send-rate cap in bytes/sec (overrides config)")
	dscp := fs.String("dscp", "", "DSCP marking for outgoing datagrams (e.g. EF, AF41)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	logFormat := fs.String("log-format", "", "log format: json, text (overrides config)")
	fs.Parse(os.Args[3:])

	cfg, err := config.LoadSenderConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *fragmentSize > 0 {
		cfg.FragmentSize = *fragmentSize
	}
	if *rateLimit > 0 {
		cfg.RateLimitBytesPerSec = *rateLimit
	}
	if *dscp != "" {
		cfg.DSCP = *dscp
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer logCloser.Close()

	if err := run(cfg, host, port, logger); err != nil {
		logger.Error("send failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.SenderConfig, host, port string, logger *slog.Logger) error {
	dest, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
	if err != nil {
		return fmt.Errorf("resolving destination address: %w", err)
	}

	udpConn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return fmt.Errorf("opening socket: %w", err)
	}
	defer udpConn.Close()

	dscpValue, err := netio.ParseDSCP(cfg.DSCP)
	if err != nil {
		return fmt.Errorf("parsing dscp: %w", err)
	}
	if err := netio.ApplyDSCP(udpConn, dscpValue); err != nil {
		logger.Error("applying DSCP marking failed; continuing without it", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := netio.NewThrottledConn(ctx, udpConn, cfg.RateLimitBytesPerSec)

	monitor := stats.NewSystemMonitor(logger)
	monitor.Start()
	defer monitor.Stop()

	s := sender.New(*cfg, os.Stdin, conn, dest, logger)

	reporter := stats.NewReporter(s, monitor, logger, cfg.StatsInterval)
	reporter.Start()
	defer reporter.Stop()

	start := time.Now()
	eofSeq := s.Run()
	logger.Info("transfer complete", "eof_sequence", eofSeq, "elapsed", time.Since(start))
	return nil
}
