// Package config loads and defaults the knobs that tune the wire
// protocol's timers and buffer sizes (spec §6's timer/size constants),
// following the teacher's yaml.v3 + mcuadros/go-defaults pattern.
package config

import (
	"fmt"
	"os"
	"time"

	defaults "github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the transport and its surrounding CLI.
// The timer fields and TargetMTU override spec §6 constants; the log,
// output, scan and queue fields tune the CLI and the Communicator.
// Defaults reproduce the spec's own values so an empty config file is
// equivalent to none.
type Config struct {
	LogLevel     logrus.Level `yaml:"log_level" default:"4"` // logrus.InfoLevel
	OutputFormat string       `yaml:"output_format" default:"table"`

	ScanTimeout time.Duration `yaml:"scan_timeout" default:"10s"`

	HandshakeTimeout     time.Duration `yaml:"handshake_timeout" default:"10s"`
	AckTimeout           time.Duration `yaml:"ack_timeout" default:"1s"`
	DisconnectAckTimeout time.Duration `yaml:"disconnect_ack_timeout" default:"5s"`
	ReconnectionTimeout  time.Duration `yaml:"reconnection_timeout" default:"30s"`

	TargetMTU             int `yaml:"target_mtu" default:"247"`
	OutboundQueueCapacity int `yaml:"outbound_queue_capacity" default:"256"`

	// MaxPendingMessages bounds the "recently_delivered_ids" ring per
	// stream; spec §4.6 recommends at least twice this many slots.
	MaxPendingMessages int `yaml:"max_pending_messages" default:"32"`
}

// DefaultConfig returns a Config with every field at its spec-mandated
// default, equivalent to Load on an empty file.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// UnmarshalYAML implements yaml.Unmarshaler. yaml.v3 has no built-in
// notion of time.Duration: a plain struct decode would try to parse
// "2s" as an integer and fail. This shadows the duration fields as
// strings and feeds them through time.ParseDuration instead; unset
// fields are left at their current value so defaults.SetDefaults can
// fill them in afterward.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		LogLevel     *logrus.Level `yaml:"log_level"`
		OutputFormat *string       `yaml:"output_format"`

		ScanTimeout *string `yaml:"scan_timeout"`

		HandshakeTimeout     *string `yaml:"handshake_timeout"`
		AckTimeout           *string `yaml:"ack_timeout"`
		DisconnectAckTimeout *string `yaml:"disconnect_ack_timeout"`
		ReconnectionTimeout  *string `yaml:"reconnection_timeout"`

		TargetMTU             *int `yaml:"target_mtu"`
		OutboundQueueCapacity *int `yaml:"outbound_queue_capacity"`
		MaxPendingMessages    *int `yaml:"max_pending_messages"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.LogLevel != nil {
		c.LogLevel = *raw.LogLevel
	}
	if raw.OutputFormat != nil {
		c.OutputFormat = *raw.OutputFormat
	}
	if raw.TargetMTU != nil {
		c.TargetMTU = *raw.TargetMTU
	}
	if raw.OutboundQueueCapacity != nil {
		c.OutboundQueueCapacity = *raw.OutboundQueueCapacity
	}
	if raw.MaxPendingMessages != nil {
		c.MaxPendingMessages = *raw.MaxPendingMessages
	}

	durations := []struct {
		src *string
		dst *time.Duration
	}{
		{raw.ScanTimeout, &c.ScanTimeout},
		{raw.HandshakeTimeout, &c.HandshakeTimeout},
		{raw.AckTimeout, &c.AckTimeout},
		{raw.DisconnectAckTimeout, &c.DisconnectAckTimeout},
		{raw.ReconnectionTimeout, &c.ReconnectionTimeout},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", *d.src, err)
		}
		*d.dst = parsed
	}
	return nil
}

// Load reads a YAML config file, applying defaults to any field the
// file leaves unset. A missing path is not an error: DefaultConfig is
// returned unchanged.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to defaults
		default:
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	defaults.SetDefaults(cfg)
	return cfg, nil
}

// NewLogger creates a logger configured per cfg, matching the
// teacher's text-formatter convention.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
