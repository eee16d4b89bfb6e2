// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy for the wscore engine. Each failure class maps to the
// close code the session must use when it tears the connection down.

package api

import (
	"errors"
	"fmt"
)

// Sentinel errors used across the library.
var (
	// ErrClosedChannel rejects writes and demand after the output side
	// of the session has shut down.
	ErrClosedChannel = fmt.Errorf("session output is closed")

	// ErrInvalidDemand rejects a negative demand request. The session
	// state is untouched.
	ErrInvalidDemand = fmt.Errorf("demand must be non-negative")

	// ErrNotDemanding rejects Demand calls on a session whose handler
	// runs in automatic flow-control mode.
	ErrNotDemanding = fmt.Errorf("handler is not demanding")

	// ErrSessionNotOpen rejects operations before OnOpen completed or
	// after the session reached its terminal state.
	ErrSessionNotOpen = fmt.Errorf("session is not open")

	// ErrTransportClosed reports IO against an already-closed transport.
	ErrTransportClosed = fmt.Errorf("transport is closed")

	// ErrBufferPoolClosed reports acquisition from a drained pool.
	ErrBufferPoolClosed = fmt.Errorf("buffer pool is closed")
)

// ProtocolError is any violation of the framing or close-handshake
// rules. The session answers it with close code 1002.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol violation: " + e.Reason
}

// MessageTooLargeError reports a frame or assembled message above the
// configured limit. The session answers it with close code 1009.
type MessageTooLargeError struct {
	Kind  string // "frame", "text", "binary"
	Size  int64
	Limit int64
}

func (e *MessageTooLargeError) Error() string {
	return fmt.Sprintf("%s of %d bytes exceeds limit of %d", e.Kind, e.Size, e.Limit)
}

// BadPayloadError reports payload content that violates the message
// kind, in practice broken UTF-8 in a TEXT message or close reason.
// The session answers it with close code 1007.
type BadPayloadError struct {
	Reason string
}

func (e *BadPayloadError) Error() string {
	return "bad payload: " + e.Reason
}

// TimeoutError reports an expired read or write deadline. Phase names
// the direction for logs and tests.
type TimeoutError struct {
	Phase string // "idle", "write"
}

func (e *TimeoutError) Error() string {
	return e.Phase + " timeout expired"
}

// Timeout marks the error for callers that probe with net.Error-style
// checks.
func (e *TimeoutError) Timeout() bool { return true }

// CloseCodeForError maps an engine error to the close code that must
// accompany the teardown. Unknown errors fall through to 1011 so a
// handler bug never masquerades as a peer fault.
func CloseCodeForError(err error) int {
	var (
		proto   *ProtocolError
		tooBig  *MessageTooLargeError
		badData *BadPayloadError
		timeout *TimeoutError
	)
	switch {
	case err == nil:
		return CloseNormal
	case errors.As(err, &proto):
		return CloseProtocolError
	case errors.As(err, &tooBig):
		return CloseMessageTooLarge
	case errors.As(err, &badData):
		return CloseBadPayload
	case errors.As(err, &timeout):
		return CloseAbnormal
	default:
		return CloseServerError
	}
}
