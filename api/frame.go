// File: api/frame.go
// Author: momentics <momentics@gmail.com>
//
// Defines the WebSocket frame value type shared by every pipeline stage.
// A Frame moves by ownership transfer: the stage that holds it may mutate
// payload and flags in place, and must not retain it after handing it on.

package api

// Opcode identifies the frame type from the low nibble of the first
// header byte (RFC 6455 section 5.2).
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

// IsControl reports whether the opcode is a control opcode (close/ping/pong).
func (o Opcode) IsControl() bool {
	return o >= OpClose
}

// IsData reports whether the opcode starts or continues a data message.
func (o Opcode) IsData() bool {
	return o == OpContinuation || o == OpText || o == OpBinary
}

// Known reports whether the opcode is assigned by RFC 6455. Unknown
// opcodes are a protocol violation when seen on the wire.
func (o Opcode) Known() bool {
	switch o {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	default:
		return false
	}
}

func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "CONTINUATION"
	case OpText:
		return "TEXT"
	case OpBinary:
		return "BINARY"
	case OpClose:
		return "CLOSE"
	case OpPing:
		return "PING"
	case OpPong:
		return "PONG"
	default:
		return "RESERVED"
	}
}

// MaxControlPayload is the RFC 6455 cap on control frame payload length.
const MaxControlPayload = 125

// Frame is a single parsed or to-be-generated WebSocket frame.
// MaskKey is meaningful only while Masked is set; decoded frames leave
// the parser already unmasked with Masked cleared.
type Frame struct {
	Fin     bool
	RSV1    bool
	RSV2    bool
	RSV3    bool
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// NewDataFrame builds an unfragmented TEXT or BINARY frame.
func NewDataFrame(op Opcode, payload []byte) *Frame {
	return &Frame{Fin: true, Opcode: op, Payload: payload}
}

// NewPingFrame builds a PING carrying the given application data.
func NewPingFrame(payload []byte) *Frame {
	return &Frame{Fin: true, Opcode: OpPing, Payload: payload}
}

// NewPongFrame builds a PONG answering the given PING payload.
func NewPongFrame(payload []byte) *Frame {
	return &Frame{Fin: true, Opcode: OpPong, Payload: payload}
}

// Len returns the payload length in bytes.
func (f *Frame) Len() int64 {
	return int64(len(f.Payload))
}

// IsControl reports whether the frame carries a control opcode.
func (f *Frame) IsControl() bool {
	return f.Opcode.IsControl()
}

// IsData reports whether the frame carries a data opcode.
func (f *Frame) IsData() bool {
	return f.Opcode.IsData()
}

// HasRSV reports whether any reserved bit is set. Reserved bits are
// only legal when a negotiated extension claims them.
func (f *Frame) HasRSV() bool {
	return f.RSV1 || f.RSV2 || f.RSV3
}

// Copy returns a deep copy whose payload does not alias f.
func (f *Frame) Copy() *Frame {
	dup := *f
	if f.Payload != nil {
		dup.Payload = make([]byte, len(f.Payload))
		copy(dup.Payload, f.Payload)
	}
	return &dup
}
