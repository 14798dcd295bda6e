// Package config loads the YAML configuration for the send and recv
// programs, layered under command-line flag overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggingConfig controls where and how structured logs are written.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Common holds the tunables shared by both send and recv.
type Common struct {
	MaxDatagramSize      int           `yaml:"max_datagram_size"`
	DSCP                 string        `yaml:"dscp"`
	RateLimitBytesPerSec int64         `yaml:"rate_limit_bytes_per_sec"`
	StatsInterval        time.Duration `yaml:"stats_interval"`
	Logging              LoggingConfig `yaml:"logging"`
}

// SenderConfig is the full configuration for the send program.
type SenderConfig struct {
	Common                  `yaml:",inline"`
	FragmentSize            int           `yaml:"fragment_size"`
	RetransmitTimeout       time.Duration `yaml:"retransmit_timeout"`
	FastRetransmitThreshold int           `yaml:"fast_retransmit_threshold"`
	TimeoutPollInterval     time.Duration `yaml:"timeout_poll_interval"`
	IdleTicksLimit          int           `yaml:"idle_ticks_limit"`
}

// ReceiverConfig is the full configuration for the recv program.
type ReceiverConfig struct {
	Common         `yaml:",inline"`
	ReceiveTimeout time.Duration `yaml:"receive_timeout"`
	EOFAckRepeats  int           `yaml:"eof_ack_repeats"`
}

// DefaultSenderConfig returns the built-in defaults: 0.6s retransmit
// timeout, fast-retransmit threshold 2, 200ms timeout-monitor cadence, 3
// idle ticks before giving up.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		Common: Common{
			MaxDatagramSize: 1500,
			Logging:         LoggingConfig{Level: "info", Format: "json"},
		},
		FragmentSize:            1000,
		RetransmitTimeout:       600 * time.Millisecond,
		FastRetransmitThreshold: 2,
		TimeoutPollInterval:     200 * time.Millisecond,
		IdleTicksLimit:          3,
	}
}

// DefaultReceiverConfig returns the built-in defaults.
func DefaultReceiverConfig() ReceiverConfig {
	return ReceiverConfig{
		Common: Common{
			MaxDatagramSize: 1500,
			Logging:         LoggingConfig{Level: "info", Format: "json"},
		},
		ReceiveTimeout: 30 * time.Second,
		EOFAckRepeats:  10,
	}
}

// LoadSenderConfig reads and validates the sender's YAML config file,
// filling in defaults for any field left unset. An empty path skips the
// file read and returns the defaults.
func LoadSenderConfig(path string) (*SenderConfig, error) {
	cfg := DefaultSenderConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading sender config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing sender config: %w", err)
		}
	}
	applySenderDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating sender config: %w", err)
	}
	return &cfg, nil
}

// LoadReceiverConfig reads and validates the receiver's YAML config file,
// filling in defaults for any field left unset.
func LoadReceiverConfig(path string) (*ReceiverConfig, error) {
	cfg := DefaultReceiverConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading receiver config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing receiver config: %w", err)
		}
	}
	applyReceiverDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating receiver config: %w", err)
	}
	return &cfg, nil
}

func applySenderDefaults(cfg *SenderConfig) {
	def := DefaultSenderConfig()
	if cfg.MaxDatagramSize <= 0 {
		cfg.MaxDatagramSize = def.MaxDatagramSize
	}
	if cfg.FragmentSize <= 0 {
		cfg.FragmentSize = def.FragmentSize
	}
	if cfg.RetransmitTimeout <= 0 {
		cfg.RetransmitTimeout = def.RetransmitTimeout
	}
	if cfg.FastRetransmitThreshold <= 0 {
		cfg.FastRetransmitThreshold = def.FastRetransmitThreshold
	}
	if cfg.TimeoutPollInterval <= 0 {
		cfg.TimeoutPollInterval = def.TimeoutPollInterval
	}
	if cfg.IdleTicksLimit <= 0 {
		cfg.IdleTicksLimit = def.IdleTicksLimit
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
}

func applyReceiverDefaults(cfg *ReceiverConfig) {
	def := DefaultReceiverConfig()
	if cfg.MaxDatagramSize <= 0 {
		cfg.MaxDatagramSize = def.MaxDatagramSize
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = def.ReceiveTimeout
	}
	if cfg.EOFAckRepeats <= 0 {
		cfg.EOFAckRepeats = def.EOFAckRepeats
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
}

func (c *SenderConfig) validate() error {
	if c.FragmentSize <= 0 {
		return fmt.Errorf("fragment_size must be positive, got %d", c.FragmentSize)
	}
	if c.FastRetransmitThreshold <= 0 {
		return fmt.Errorf("fast_retransmit_threshold must be positive, got %d", c.FastRetransmitThreshold)
	}
	if c.RetransmitTimeout <= 0 {
		return fmt.Errorf("retransmit_timeout must be positive")
	}
	if maxWireSize(c.FragmentSize) > c.MaxDatagramSize {
		return fmt.Errorf("max_datagram_size %d is too small for fragment_size %d (need at least %d)",
			c.MaxDatagramSize, c.FragmentSize, maxWireSize(c.FragmentSize))
	}
	if c.RateLimitBytesPerSec < 0 {
		return fmt.Errorf("rate_limit_bytes_per_sec must not be negative")
	}
	return nil
}

func (c *ReceiverConfig) validate() error {
	if c.MaxDatagramSize <= 0 {
		return fmt.Errorf("max_datagram_size must be positive, got %d", c.MaxDatagramSize)
	}
	if c.ReceiveTimeout <= 0 {
		return fmt.Errorf("receive_timeout must be positive")
	}
	if c.RateLimitBytesPerSec < 0 {
		return fmt.Errorf("rate_limit_bytes_per_sec must not be negative")
	}
	return nil
}

// maxWireSize estimates the worst-case on-wire size of a data packet
// carrying n payload bytes: base64 expansion plus JSON field overhead.
func maxWireSize(n int) int {
	base64Len := ((n + 2) / 3) * 4
	const jsonOverhead = 128
	return base64Len + jsonOverhead
}
