// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the byte-stream transport abstraction the session runs on.
// net.Conn satisfies it directly; the fake package provides an
// in-memory implementation for tests.

package api

import "time"

// Transport is a full-duplex ordered byte stream with deadlines.
// Read and Write may be used from different goroutines; neither may
// be used from two goroutines at once.
type Transport interface {
	// Read fills p with the next bytes from the peer.
	Read(p []byte) (n int, err error)

	// Write sends p to the peer in order.
	Write(p []byte) (n int, err error)

	// Close shuts the stream down in both directions.
	Close() error

	// SetReadDeadline bounds all future Reads. The zero time removes
	// the deadline.
	SetReadDeadline(t time.Time) error

	// SetWriteDeadline bounds all future Writes.
	SetWriteDeadline(t time.Time) error
}
