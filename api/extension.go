// File: api/extension.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Extension transform contract. Extensions sit between the wire codec
// and message assembly, rewriting frames on both directions. Each
// instance belongs to exactly one connection and may keep per-message
// state; Close releases that state when the session dies.

package api

// Extension rewrites frames for one negotiated transform.
//
// Decode runs on the inbound path and may map one wire frame to zero
// or more frames toward the application: emit is called once per
// produced frame, in order, and its error aborts the decode. Encode
// runs on the outbound path and maps one frame to one frame.
type Extension interface {
	// Name returns the registered token, lower-case.
	Name() string

	// UsesRSV1 reports whether the transform claims the RSV1 bit.
	UsesRSV1() bool

	// UsesRSV2 reports whether the transform claims the RSV2 bit.
	UsesRSV2() bool

	// UsesRSV3 reports whether the transform claims the RSV3 bit.
	UsesRSV3() bool

	// Decode transforms an inbound frame, emitting the results.
	Decode(f *Frame, emit func(*Frame) error) error

	// Encode transforms an outbound frame.
	Encode(f *Frame) (*Frame, error)

	// Close drops per-connection state. Called once at teardown,
	// reverse negotiation order.
	Close() error
}
