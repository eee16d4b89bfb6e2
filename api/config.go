// File: api/config.go
// Author: momentics <momentics@gmail.com>
//
// Per-session configuration knobs. Zero or negative timeouts mean
// "no limit"; size limits of zero fall back to the defaults below.

package api

import (
	"fmt"
	"time"
)

// Default configuration values applied by Normalize.
const (
	DefaultMaxFrameSize   = 65536
	DefaultMaxMessageSize = 65536
	DefaultBufferSize     = 4096
)

// Config carries the tunables of one session. The yaml tags follow the
// control package's file format.
type Config struct {
	// IdleTimeout bounds the gap between inbound frames. Expiry tears
	// the session down as abnormal (1006), or as a protocol error
	// (1002) when a close handshake was already in flight.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// WriteTimeout bounds a single transport write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxFrameSize rejects any frame whose declared payload length
	// exceeds it, before allocation.
	MaxFrameSize int64 `yaml:"max_frame_size"`

	// MaxTextMessageSize bounds an assembled TEXT message.
	MaxTextMessageSize int64 `yaml:"max_text_message_size"`

	// MaxBinaryMessageSize bounds an assembled BINARY message.
	MaxBinaryMessageSize int64 `yaml:"max_binary_message_size"`

	// AutoFragment splits outbound data frames larger than
	// OutputBufferSize into a continuation sequence.
	AutoFragment bool `yaml:"auto_fragment"`

	// InputBufferSize is the transport read chunk size.
	InputBufferSize int `yaml:"input_buffer_size"`

	// OutputBufferSize is the batch buffer size and the fragment
	// threshold when AutoFragment is on.
	OutputBufferSize int `yaml:"output_buffer_size"`
}

// DefaultConfig returns the engine defaults. Load a YAML file over
// this value so absent keys keep their defaults.
func DefaultConfig() Config {
	return Config{
		MaxFrameSize:         DefaultMaxFrameSize,
		MaxTextMessageSize:   DefaultMaxMessageSize,
		MaxBinaryMessageSize: DefaultMaxMessageSize,
		AutoFragment:         true,
		InputBufferSize:      DefaultBufferSize,
		OutputBufferSize:     DefaultBufferSize,
	}
}

// UnmarshalYAML decodes a config mapping over the receiver. Only keys
// present in the document overwrite fields, so decoding over
// DefaultConfig keeps the defaults for absent keys. Durations use Go
// syntax ("30s", "1m30s").
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		IdleTimeout          *string `yaml:"idle_timeout"`
		WriteTimeout         *string `yaml:"write_timeout"`
		MaxFrameSize         *int64  `yaml:"max_frame_size"`
		MaxTextMessageSize   *int64  `yaml:"max_text_message_size"`
		MaxBinaryMessageSize *int64  `yaml:"max_binary_message_size"`
		AutoFragment         *bool   `yaml:"auto_fragment"`
		InputBufferSize      *int    `yaml:"input_buffer_size"`
		OutputBufferSize     *int    `yaml:"output_buffer_size"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if raw.IdleTimeout != nil {
		d, err := time.ParseDuration(*raw.IdleTimeout)
		if err != nil {
			return fmt.Errorf("idle_timeout: %w", err)
		}
		c.IdleTimeout = d
	}
	if raw.WriteTimeout != nil {
		d, err := time.ParseDuration(*raw.WriteTimeout)
		if err != nil {
			return fmt.Errorf("write_timeout: %w", err)
		}
		c.WriteTimeout = d
	}
	if raw.MaxFrameSize != nil {
		c.MaxFrameSize = *raw.MaxFrameSize
	}
	if raw.MaxTextMessageSize != nil {
		c.MaxTextMessageSize = *raw.MaxTextMessageSize
	}
	if raw.MaxBinaryMessageSize != nil {
		c.MaxBinaryMessageSize = *raw.MaxBinaryMessageSize
	}
	if raw.AutoFragment != nil {
		c.AutoFragment = *raw.AutoFragment
	}
	if raw.InputBufferSize != nil {
		c.InputBufferSize = *raw.InputBufferSize
	}
	if raw.OutputBufferSize != nil {
		c.OutputBufferSize = *raw.OutputBufferSize
	}
	return nil
}

// Normalize replaces unusable values with defaults in place.
func (c *Config) Normalize() {
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.MaxTextMessageSize <= 0 {
		c.MaxTextMessageSize = DefaultMaxMessageSize
	}
	if c.MaxBinaryMessageSize <= 0 {
		c.MaxBinaryMessageSize = DefaultMaxMessageSize
	}
	if c.InputBufferSize <= 0 {
		c.InputBufferSize = DefaultBufferSize
	}
	if c.OutputBufferSize <= 0 {
		c.OutputBufferSize = DefaultBufferSize
	}
	if c.IdleTimeout < 0 {
		c.IdleTimeout = 0
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}
}
