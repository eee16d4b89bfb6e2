// File: api/control.go
// Package api defines Control and StatsRecorder interfaces.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Control manages dynamic config and runtime metrics.
type Control interface {
	GetConfig() Config
	SetConfig(cfg Config) error
	Stats() map[string]int64
	OnReload(fn func())
}

// StatsRecorder receives counter updates from sessions. Implementations
// must be safe for concurrent use; a nil recorder disables recording.
type StatsRecorder interface {
	// Add increments the named counter by delta.
	Add(name string, delta int64)
}

// Counter names recorded by the engine.
const (
	StatFramesIn       = "frames_in"
	StatFramesOut      = "frames_out"
	StatBytesIn        = "bytes_in"
	StatBytesOut       = "bytes_out"
	StatMessagesIn     = "messages_in"
	StatMessagesOut    = "messages_out"
	StatSessionsOpened = "sessions_opened"
	StatSessionsClosed = "sessions_closed"
	StatProtocolErrors = "protocol_errors"
)
