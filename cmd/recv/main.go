// Command recv listens on a UDP port and reassembles a reliable, ordered
// byte stream sent by send, writing it to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/nishisan-dev/reliable-dgram/internal/config"
	"github.com/nishisan-dev/reliable-dgram/internal/logging"
	"github.com/nishisan-dev/reliable-dgram/internal/netio"
	"github.com/nishisan-dev/reliable-dgram/internal/receiver"
	"github.com/nishisan-dev/reliable-dgram/internal/stats"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: recv <port> [-config path] [-log-level L] [-log-format F]")
		os.Exit(1)
	}
	port := os.Args[1]

	fs := flag.NewFlagSet("recv", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	dscp := fs.String("dscp", "", "DSCP marking for outgoing ack datagrams (e.g. EF, AF41)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	logFormat := fs.String("log-format", "", "log format: json, text (overrides config)")
	fs.Parse(os.Args[2:])

	cfg, err := config.LoadReceiverConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
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

	if err := run(cfg, port, logger); err != nil {
		logger.Error("recv failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.ReceiverConfig, port string, logger *slog.Logger) error {
	local, err := net.ResolveUDPAddr("udp", net.JoinHostPort("", port))
	if err != nil {
		return fmt.Errorf("resolving listen address: %w", err)
	}

	udpConn, err := net.ListenUDP("udp", local)
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

	r := receiver.New(conn, os.Stdout, cfg.ReceiveTimeout, cfg.EOFAckRepeats, cfg.MaxDatagramSize, logger)

	reporter := stats.NewReporter(r, monitor, logger, cfg.StatsInterval)
	reporter.Start()
	defer reporter.Stop()

	start := time.Now()
	n, err := r.Run()
	if err != nil && !errors.Is(err, receiver.ErrReceiveTimeout) {
		return fmt.Errorf("receiving stream: %w", err)
	}
	if errors.Is(err, receiver.ErrReceiveTimeout) {
		logger.Warn("receive timeout elapsed; wrote partial stream", "bytes_written", n, "elapsed", time.Since(start))
		return nil
	}
	logger.Info("transfer complete", "bytes_written", n, "elapsed", time.Since(start))
	return nil
}
