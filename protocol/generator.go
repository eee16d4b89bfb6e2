// File: protocol/generator.go
// Package protocol implements outbound frame serialization.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The generator is stateless per call. Masking follows the role, not
// the frame: client output always gets a fresh random key, server
// output is never masked, whatever the Masked field says.

package protocol

import (
	"encoding/binary"

	"github.com/momentics/wscore/api"
)

// Generator encodes outbound frames for one endpoint role.
type Generator struct {
	behavior api.Behavior
}

// NewGenerator builds a generator for the given role.
func NewGenerator(b api.Behavior) *Generator {
	return &Generator{behavior: b}
}

// Generate serializes f into a fresh buffer with minimal length
// encoding and role masking. The input payload is never mutated.
func (g *Generator) Generate(f *api.Frame) ([]byte, error) {
	if err := g.validate(f); err != nil {
		return nil, err
	}

	n := len(f.Payload)
	mask := g.behavior == api.BehaviorClient
	buf := make([]byte, headerLen(n, mask)+n)

	b0 := byte(f.Opcode) & 0x0F
	if f.Fin {
		b0 |= finBit
	}
	if f.RSV1 {
		b0 |= rsv1Bit
	}
	if f.RSV2 {
		b0 |= rsv2Bit
	}
	if f.RSV3 {
		b0 |= rsv3Bit
	}
	buf[0] = b0

	offset := 2
	switch {
	case n <= 125:
		buf[1] = byte(n)
	case n <= 0xFFFF:
		buf[1] = len16Marker
		binary.BigEndian.PutUint16(buf[offset:], uint16(n))
		offset += 2
	default:
		buf[1] = len64Marker
		binary.BigEndian.PutUint64(buf[offset:], uint64(n))
		offset += 8
	}

	if mask {
		key, err := newMaskKey()
		if err != nil {
			return nil, err
		}
		buf[1] |= maskBit
		copy(buf[offset:], key[:])
		offset += 4
		copy(buf[offset:], f.Payload)
		maskBytes(key, 0, buf[offset:offset+n])
	} else {
		copy(buf[offset:], f.Payload)
	}
	return buf, nil
}

// validate enforces the outgoing control frame constraints.
func (g *Generator) validate(f *api.Frame) error {
	if !f.Opcode.Known() {
		return &api.ProtocolError{Reason: "reserved opcode " + f.Opcode.String()}
	}
	if f.IsControl() {
		if !f.Fin {
			return &api.ProtocolError{Reason: "fragmented control frame"}
		}
		if len(f.Payload) > api.MaxControlPayload {
			return &api.ProtocolError{Reason: "control frame payload over 125 bytes"}
		}
	}
	return nil
}

// headerLen returns the header size for a payload of n bytes.
func headerLen(n int, mask bool) int {
	size := 2
	switch {
	case n > 0xFFFF:
		size += 8
	case n > 125:
		size += 2
	}
	if mask {
		size += 4
	}
	return size
}

// Fragment splits a data frame into a continuation sequence whose
// payloads are at most max bytes each. The first fragment keeps the
// opcode and reserved bits, the last keeps the original FIN. Control
// frames and frames already within max pass through untouched.
func Fragment(f *api.Frame, max int) []*api.Frame {
	if max <= 0 || f.IsControl() || len(f.Payload) <= max {
		return []*api.Frame{f}
	}
	var out []*api.Frame
	op := f.Opcode
	payload := f.Payload
	first := true
	for len(payload) > 0 {
		n := max
		if len(payload) < n {
			n = len(payload)
		}
		part := &api.Frame{Opcode: op, Payload: payload[:n]}
		if first {
			part.RSV1, part.RSV2, part.RSV3 = f.RSV1, f.RSV2, f.RSV3
			first = false
		}
		payload = payload[n:]
		if len(payload) == 0 {
			part.Fin = f.Fin
		}
		out = append(out, part)
		op = api.OpContinuation
	}
	return out
}
