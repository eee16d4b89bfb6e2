// File: extension/deflate.go
// Package extension implements permessage-deflate (RFC 7692).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Compression is per message: the first frame of every outbound data
// message carries RSV1 and the final four tail octets of the sync
// flush are stripped. Inbound compressed fragments are buffered until
// FIN and inflated as one unit, with the stripped tail restored and a
// final empty stored block appended so the flate reader terminates
// cleanly. Context takeover keeps the compressor window across
// messages; the decompressor emulates it by resetting the flate
// reader with the last 32 KiB of inflated output as dictionary.

package extension

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"strconv"

	"github.com/momentics/wscore/api"
)

// deflateTail is the sync-flush remainder stripped from the wire.
var deflateTail = []byte{0x00, 0x00, 0xff, 0xff}

// deflateFinalBlock terminates the stream for the flate reader.
var deflateFinalBlock = []byte{0x01, 0x00, 0x00, 0xff, 0xff}

const (
	minWindowBits = 8
	maxWindowBits = 15

	// slidingWindowSize is the deflate back-reference reach.
	slidingWindowSize = 32 * 1024
)

// PayloadLimiter is implemented by extensions that buffer message
// payloads and can cap them. The session applies its message size
// limit to every chain member that supports it.
type PayloadLimiter interface {
	SetPayloadLimit(n int64)
}

// Deflate is the permessage-deflate transform for one connection.
// Not safe for concurrent use; the session serializes both directions
// through it.
type Deflate struct {
	behavior api.Behavior
	response Config

	compressNoTakeover   bool
	decompressNoTakeover bool
	payloadLimit         int64

	// Outbound: persistent writer keeps the window for takeover mode.
	wbuf bytes.Buffer
	fw   *flate.Writer

	// Inbound: compressed fragments accumulate until FIN.
	inbuf       bytes.Buffer
	decoding    bool
	passthrough bool
	firstOp     api.Opcode
	firstRSV2   bool
	firstRSV3   bool
	dict        []byte
	fr          io.ReadCloser
}

// NewDeflate validates the offered or accepted parameters for the
// given role and builds the transform. A parameter this endpoint
// cannot honor fails construction, which the negotiation layer treats
// as declining the offer.
func NewDeflate(behavior api.Behavior, cfg Config) (*Deflate, error) {
	d := &Deflate{behavior: behavior}
	resp := NewConfig("permessage-deflate")

	// The server_* parameters constrain the server endpoint and the
	// client_* parameters the client endpoint. Which of them applies
	// to this side's compressor depends on the role.
	myTakeover := "server_no_context_takeover"
	peerTakeover := "client_no_context_takeover"
	myWindow := "server_max_window_bits"
	peerWindow := "client_max_window_bits"
	if behavior == api.BehaviorClient {
		myTakeover, peerTakeover = peerTakeover, myTakeover
		myWindow, peerWindow = peerWindow, myWindow
	}

	for _, p := range cfg.Params() {
		switch p.Key {
		case myTakeover:
			if p.Value != "" {
				return nil, fmt.Errorf("permessage-deflate: %s takes no value", p.Key)
			}
			d.compressNoTakeover = true
			resp.SetParam(p.Key, "")
		case peerTakeover:
			if p.Value != "" {
				return nil, fmt.Errorf("permessage-deflate: %s takes no value", p.Key)
			}
			d.decompressNoTakeover = true
			resp.SetParam(p.Key, "")
		case myWindow:
			// compress/flate has a fixed 15-bit window, so a smaller
			// cap on this side's compressor cannot be honored.
			bits, err := parseWindowBits(p.Value)
			if err != nil {
				return nil, err
			}
			if bits < maxWindowBits {
				return nil, fmt.Errorf("permessage-deflate: cannot reduce own window to %d bits", bits)
			}
			resp.SetParam(p.Key, strconv.Itoa(bits))
		case peerWindow:
			// A smaller peer window only eases decompression. The
			// client may offer the key bare; a response never does.
			if p.Value != "" {
				if _, err := parseWindowBits(p.Value); err != nil {
					return nil, err
				}
			} else if behavior == api.BehaviorClient {
				return nil, fmt.Errorf("permessage-deflate: %s requires a value in a response", p.Key)
			}
		default:
			return nil, fmt.Errorf("permessage-deflate: unknown parameter %q", p.Key)
		}
	}

	d.response = resp
	return d, nil
}

func parseWindowBits(value string) (int, error) {
	bits, err := strconv.Atoi(value)
	if err != nil || bits < minWindowBits || bits > maxWindowBits {
		return 0, fmt.Errorf("permessage-deflate: window bits %q out of range", value)
	}
	return bits, nil
}

func (d *Deflate) Name() string   { return "permessage-deflate" }
func (d *Deflate) UsesRSV1() bool { return true }
func (d *Deflate) UsesRSV2() bool { return false }
func (d *Deflate) UsesRSV3() bool { return false }

// NegotiatedConfig returns the handshake response entry.
func (d *Deflate) NegotiatedConfig() Config { return d.response }

// SetPayloadLimit caps buffered compressed input and inflated output
// per message. Zero means unlimited.
func (d *Deflate) SetPayloadLimit(n int64) { d.payloadLimit = n }

// Encode compresses one outbound data frame as a piece of the running
// per-message stream. Control frames pass through.
func (d *Deflate) Encode(f *api.Frame) (*api.Frame, error) {
	if f.IsControl() {
		return f, nil
	}
	first := f.Opcode != api.OpContinuation
	if d.fw == nil {
		fw, err := flate.NewWriter(&d.wbuf, flate.BestSpeed)
		if err != nil {
			return nil, err
		}
		d.fw = fw
	} else if first && d.compressNoTakeover {
		d.fw.Reset(&d.wbuf)
	}

	d.wbuf.Reset()
	if len(f.Payload) > 0 {
		if _, err := d.fw.Write(f.Payload); err != nil {
			return nil, err
		}
	}
	if err := d.fw.Flush(); err != nil {
		return nil, err
	}

	out := d.wbuf.Bytes()
	if f.Fin && bytes.HasSuffix(out, deflateTail) {
		out = out[:len(out)-len(deflateTail)]
	}
	payload := append([]byte(nil), out...)

	return &api.Frame{
		Fin:     f.Fin,
		RSV1:    first,
		RSV2:    f.RSV2,
		RSV3:    f.RSV3,
		Opcode:  f.Opcode,
		Payload: payload,
	}, nil
}

// Decode buffers compressed fragments and emits the whole inflated
// message at FIN. Uncompressed messages and control frames pass
// through untouched.
func (d *Deflate) Decode(f *api.Frame, emit func(*api.Frame) error) error {
	if f.IsControl() {
		return emit(f)
	}

	switch {
	case f.Opcode != api.OpContinuation && !d.decoding && !d.passthrough:
		if !f.RSV1 {
			d.passthrough = !f.Fin
			return emit(f)
		}
		d.decoding = true
		d.firstOp = f.Opcode
		d.firstRSV2 = f.RSV2
		d.firstRSV3 = f.RSV3
		return d.consume(f, emit)

	case f.Opcode == api.OpContinuation && d.decoding:
		if f.RSV1 {
			return &api.ProtocolError{Reason: "RSV1 on continuation frame"}
		}
		return d.consume(f, emit)

	case f.Opcode == api.OpContinuation && d.passthrough:
		d.passthrough = !f.Fin
		return emit(f)

	case f.Opcode != api.OpContinuation && d.decoding:
		// The open message's fragments are buffered here, so the
		// sequencing gate cannot see them; reject the interleave
		// directly.
		return &api.ProtocolError{Reason: "new message before final frame of the previous one"}

	default:
		// Out-of-order data frame: forward and let the sequencing
		// gate reject it.
		return emit(f)
	}
}

// consume appends one fragment and inflates at the message end.
func (d *Deflate) consume(f *api.Frame, emit func(*api.Frame) error) error {
	d.inbuf.Write(f.Payload)
	if size := int64(d.inbuf.Len()); d.payloadLimit > 0 && size > d.payloadLimit {
		d.resetDecode()
		return &api.MessageTooLargeError{Kind: d.kind(), Size: size, Limit: d.payloadLimit}
	}
	if !f.Fin {
		return nil
	}

	payload, err := d.inflate()
	if err != nil {
		d.resetDecode()
		return err
	}
	out := &api.Frame{
		Fin:     true,
		RSV2:    d.firstRSV2,
		RSV3:    d.firstRSV3,
		Opcode:  d.firstOp,
		Payload: payload,
	}
	d.resetDecode()
	return emit(out)
}

// inflate restores the stripped tail, terminates the stream, and runs
// the flate reader over the buffered message.
func (d *Deflate) inflate() ([]byte, error) {
	d.inbuf.Write(deflateTail)
	d.inbuf.Write(deflateFinalBlock)

	if d.fr == nil {
		d.fr = flate.NewReaderDict(&d.inbuf, d.dict)
	} else if err := d.fr.(flate.Resetter).Reset(&d.inbuf, d.dict); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	src := io.Reader(d.fr)
	if d.payloadLimit > 0 {
		src = io.LimitReader(src, d.payloadLimit+1)
	}
	n, err := out.ReadFrom(src)
	if err != nil {
		return nil, &api.BadPayloadError{Reason: "corrupt deflate stream: " + err.Error()}
	}
	if d.payloadLimit > 0 && n > d.payloadLimit {
		return nil, &api.MessageTooLargeError{Kind: d.kind(), Size: n, Limit: d.payloadLimit}
	}

	if !d.decompressNoTakeover {
		d.dict = appendWindow(d.dict, out.Bytes())
	}
	return out.Bytes(), nil
}

func (d *Deflate) kind() string {
	if d.firstOp == api.OpText {
		return "text"
	}
	return "binary"
}

func (d *Deflate) resetDecode() {
	d.inbuf.Reset()
	d.decoding = false
}

// appendWindow keeps the last slidingWindowSize bytes of inflated
// output as the next message's dictionary.
func appendWindow(dict, out []byte) []byte {
	dict = append(dict, out...)
	if len(dict) > slidingWindowSize {
		dict = append(dict[:0], dict[len(dict)-slidingWindowSize:]...)
	}
	return dict
}

// Close releases the flate state.
func (d *Deflate) Close() error {
	var first error
	if d.fw != nil {
		if err := d.fw.Close(); err != nil {
			first = err
		}
		d.fw = nil
	}
	if d.fr != nil {
		if err := d.fr.Close(); err != nil && first == nil {
			first = err
		}
		d.fr = nil
	}
	d.inbuf.Reset()
	d.dict = nil
	return first
}
