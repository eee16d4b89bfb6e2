// File: protocol/parser.go
// Package protocol implements the incremental inbound frame parser.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The parser is push-driven: the session feeds whatever the transport
// returned, and partial headers, payload progress, mask position, and
// oversize-skip state all survive across calls. A frame failing the
// size limit is reported before its payload is allocated, and the
// parser then discards exactly the declared remainder so the stream
// stays aligned for the close handshake.

package protocol

import (
	"encoding/binary"

	"github.com/momentics/wscore/api"
)

// RSVBits is a claim mask over the three reserved header bits, in wire
// positions. Negotiated extensions claim bits; the parser rejects any
// set bit outside the claim mask.
type RSVBits byte

const (
	RSV1 RSVBits = rsv1Bit
	RSV2 RSVBits = rsv2Bit
	RSV3 RSVBits = rsv3Bit
)

type parserPhase int

const (
	phaseBase parserPhase = iota
	phaseExtLen
	phaseMaskKey
	phasePayload
	phaseSkip
)

// ParserConfig carries the per-connection parser settings.
type ParserConfig struct {
	// Behavior selects the mask rule: a server must receive masked
	// frames, a client must not.
	Behavior api.Behavior

	// MaxFrameSize rejects frames above this declared payload length.
	MaxFrameSize int64

	// RSVClaims are the reserved bits the negotiated extension chain
	// is allowed to use on data frames.
	RSVClaims RSVBits

	// Pool supplies payload buffers. Nil falls back to plain make.
	Pool api.BytePool
}

// Parser decodes one side of a connection. Not safe for concurrent
// use; the session's read loop is its only caller.
type Parser struct {
	behavior  api.Behavior
	maxFrame  int64
	rsvClaims byte
	pool      api.BytePool

	phase   parserPhase
	hdr     [MaxHeaderSize]byte
	hdrLen  int
	frame   *api.Frame
	length  int64
	got     int64
	maskPos int
	skip    int64
}

// NewParser builds a parser for one connection.
func NewParser(cfg ParserConfig) *Parser {
	max := cfg.MaxFrameSize
	if max <= 0 {
		max = api.DefaultMaxFrameSize
	}
	return &Parser{
		behavior:  cfg.Behavior,
		maxFrame:  max,
		rsvClaims: byte(cfg.RSVClaims),
		pool:      cfg.Pool,
	}
}

// Parse consumes bytes from data until it completes one frame, needs
// more input, or detects a violation. It returns the completed frame
// (nil when more input is needed) and the number of bytes consumed.
// After a MessageTooLargeError the parser keeps working: subsequent
// calls silently discard the rest of the offending frame.
func (p *Parser) Parse(data []byte) (*api.Frame, int, error) {
	consumed := 0
	for {
		avail := data[consumed:]
		switch p.phase {
		case phaseBase:
			consumed += p.fill(avail, 2)
			if p.hdrLen < 2 {
				return nil, consumed, nil
			}
			if err := p.validateBase(); err != nil {
				return nil, consumed, err
			}
			p.phase = phaseExtLen

		case phaseExtLen:
			need := 2 + p.extLen()
			consumed += p.fill(avail, need)
			if p.hdrLen < need {
				return nil, consumed, nil
			}
			if err := p.resolveLength(); err != nil {
				return nil, consumed, err
			}
			p.phase = phaseMaskKey

		case phaseMaskKey:
			need := 2 + p.extLen() + p.maskLen()
			consumed += p.fill(avail, need)
			if p.hdrLen < need {
				return nil, consumed, nil
			}
			p.beginPayload()
			p.phase = phasePayload

		case phasePayload:
			if p.got == p.length {
				return p.finish(), consumed, nil
			}
			if len(avail) == 0 {
				return nil, consumed, nil
			}
			n := int64(len(avail))
			if want := p.length - p.got; n > want {
				n = want
			}
			chunk := p.frame.Payload[p.got : p.got+n]
			copy(chunk, avail[:n])
			if p.frame.Masked {
				p.maskPos = maskBytes(p.frame.MaskKey, p.maskPos, chunk)
			}
			p.got += n
			consumed += int(n)

		case phaseSkip:
			if len(avail) == 0 {
				return nil, consumed, nil
			}
			n := int64(len(avail))
			if n > p.skip {
				n = p.skip
			}
			p.skip -= n
			consumed += int(n)
			if p.skip > 0 {
				return nil, consumed, nil
			}
			p.resetFrame()
		}
	}
}

// fill copies header bytes from avail until need bytes are buffered.
func (p *Parser) fill(avail []byte, need int) int {
	n := copy(p.hdr[p.hdrLen:need], avail)
	p.hdrLen += n
	return n
}

func (p *Parser) extLen() int {
	switch p.hdr[1] & 0x7F {
	case len16Marker:
		return 2
	case len64Marker:
		return 8
	default:
		return 0
	}
}

func (p *Parser) maskLen() int {
	if p.hdr[1]&maskBit != 0 {
		return 4
	}
	return 0
}

// validateBase checks everything the first two header bytes decide.
func (p *Parser) validateBase() error {
	b0, b1 := p.hdr[0], p.hdr[1]
	op := api.Opcode(b0 & 0x0F)
	fin := b0&finBit != 0
	rsv := b0 & rsvMask
	masked := b1&maskBit != 0
	len7 := b1 & 0x7F

	if !op.Known() {
		return &api.ProtocolError{Reason: "reserved opcode " + op.String()}
	}
	if op.IsControl() {
		if !fin {
			return &api.ProtocolError{Reason: "fragmented control frame"}
		}
		if len7 > api.MaxControlPayload {
			return &api.ProtocolError{Reason: "control frame payload over 125 bytes"}
		}
		if rsv != 0 {
			return &api.ProtocolError{Reason: "reserved bits on control frame"}
		}
	} else if rsv&^p.rsvClaims != 0 {
		return &api.ProtocolError{Reason: "reserved bit set without negotiated extension"}
	}
	switch p.behavior {
	case api.BehaviorServer:
		if !masked {
			return &api.ProtocolError{Reason: "unmasked frame from client"}
		}
	case api.BehaviorClient:
		if masked {
			return &api.ProtocolError{Reason: "masked frame from server"}
		}
	}

	p.frame = &api.Frame{
		Fin:    fin,
		RSV1:   b0&rsv1Bit != 0,
		RSV2:   b0&rsv2Bit != 0,
		RSV3:   b0&rsv3Bit != 0,
		Opcode: op,
		Masked: masked,
	}
	return nil
}

// resolveLength decodes the declared payload length, enforcing minimal
// encoding and the frame size limit. An oversized frame arms the skip
// state before reporting, so the stream survives the failure.
func (p *Parser) resolveLength() error {
	switch p.hdr[1] & 0x7F {
	case len16Marker:
		v := int64(binary.BigEndian.Uint16(p.hdr[2:4]))
		if v < len16Min {
			return &api.ProtocolError{Reason: "non-minimal 16-bit length encoding"}
		}
		p.length = v
	case len64Marker:
		u := binary.BigEndian.Uint64(p.hdr[2:10])
		if u>>63 != 0 {
			return &api.ProtocolError{Reason: "payload length high bit set"}
		}
		if int64(u) < len64Min {
			return &api.ProtocolError{Reason: "non-minimal 64-bit length encoding"}
		}
		p.length = int64(u)
	default:
		p.length = int64(p.hdr[1] & 0x7F)
	}

	if p.length > p.maxFrame {
		size, limit := p.length, p.maxFrame
		p.skip = int64(p.maskLen()) + p.length
		p.phase = phaseSkip
		return &api.MessageTooLargeError{Kind: "frame", Size: size, Limit: limit}
	}
	return nil
}

// beginPayload captures the mask key and allocates the payload buffer.
func (p *Parser) beginPayload() {
	if p.frame.Masked {
		copy(p.frame.MaskKey[:], p.hdr[2+p.extLen():])
		p.maskPos = 0
	}
	if p.length > 0 {
		if p.pool != nil {
			p.frame.Payload = p.pool.Acquire(int(p.length))
		} else {
			p.frame.Payload = make([]byte, p.length)
		}
	}
	p.got = 0
}

// finish hands the completed frame out. The payload leaves unmasked
// and the mask flag is cleared; role enforcement already happened.
func (p *Parser) finish() *api.Frame {
	f := p.frame
	f.Masked = false
	f.MaskKey = [4]byte{}
	p.resetFrame()
	return f
}

func (p *Parser) resetFrame() {
	p.phase = phaseBase
	p.hdrLen = 0
	p.frame = nil
	p.length = 0
	p.got = 0
	p.maskPos = 0
	p.skip = 0
}
