package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSenderConfig_Defaults(t *testing.T) {
	cfg, err := LoadSenderConfig("")
	if err != nil {
		t.Fatalf("LoadSenderConfig: %v", err)
	}
	if cfg.FragmentSize != 1000 {
		t.Errorf("expected default fragment_size 1000, got %d", cfg.FragmentSize)
	}
	if cfg.RetransmitTimeout != 600*time.Millisecond {
		t.Errorf("expected default retransmit_timeout 600ms, got %s", cfg.RetransmitTimeout)
	}
	if cfg.FastRetransmitThreshold != 2 {
		t.Errorf("expected default fast_retransmit_threshold 2, got %d", cfg.FastRetransmitThreshold)
	}
	if cfg.IdleTicksLimit != 3 {
		t.Errorf("expected default idle_ticks_limit 3, got %d", cfg.IdleTicksLimit)
	}
}

func TestLoadSenderConfig_OverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "send.yaml")
	contents := []byte("fragment_size: 500\nfast_retransmit_threshold: 4\nrate_limit_bytes_per_sec: 65536\n")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := LoadSenderConfig(path)
	if err != nil {
		t.Fatalf("LoadSenderConfig: %v", err)
	}
	if cfg.FragmentSize != 500 {
		t.Errorf("expected fragment_size 500, got %d", cfg.FragmentSize)
	}
	if cfg.FastRetransmitThreshold != 4 {
		t.Errorf("expected fast_retransmit_threshold 4, got %d", cfg.FastRetransmitThreshold)
	}
	if cfg.RateLimitBytesPerSec != 65536 {
		t.Errorf("expected rate_limit_bytes_per_sec 65536, got %d", cfg.RateLimitBytesPerSec)
	}
	// Unset fields still fall back to defaults.
	if cfg.RetransmitTimeout != 600*time.Millisecond {
		t.Errorf("expected default retransmit_timeout to survive, got %s", cfg.RetransmitTimeout)
	}
}

func TestLoadSenderConfig_RejectsFragmentTooLargeForDatagram(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "send.yaml")
	contents := []byte("fragment_size: 4000\nmax_datagram_size: 1500\n")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	if _, err := LoadSenderConfig(path); err == nil {
		t.Errorf("expected an error for a fragment size that doesn't fit the datagram size")
	}
}

func TestLoadReceiverConfig_Defaults(t *testing.T) {
	cfg, err := LoadReceiverConfig("")
	if err != nil {
		t.Fatalf("LoadReceiverConfig: %v", err)
	}
	if cfg.ReceiveTimeout != 30*time.Second {
		t.Errorf("expected default receive_timeout 30s, got %s", cfg.ReceiveTimeout)
	}
	if cfg.EOFAckRepeats != 10 {
		t.Errorf("expected default eof_ack_repeats 10, got %d", cfg.EOFAckRepeats)
	}
}

func TestLoadReceiverConfig_MissingFile(t *testing.T) {
	if _, err := LoadReceiverConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected an error for a missing config file")
	}
}
