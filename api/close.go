// File: api/close.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Close status codes and the CLOSE frame payload codec (RFC 6455 section 7.4).

package api

import (
	"encoding/binary"
	"strconv"
	"unicode/utf8"
)

// Close status codes defined by RFC 6455 plus the registered extensions.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	CloseUnsupportedData = 1003
	CloseNoStatus        = 1005 // synthetic: empty CLOSE payload
	CloseAbnormal        = 1006 // synthetic: connection dropped without CLOSE
	CloseBadPayload      = 1007
	ClosePolicyViolation = 1008
	CloseMessageTooLarge = 1009
	CloseMandatoryExt    = 1010
	CloseServerError     = 1011
	CloseServiceRestart  = 1012
	CloseTryAgainLater   = 1013
	CloseInvalidUpstream = 1014
	CloseTLSHandshake    = 1015 // synthetic: never on the wire
)

// MaxCloseReason is the longest reason that fits a control payload
// together with the two status bytes.
const MaxCloseReason = MaxControlPayload - 2

// NoCode marks a CloseStatus parsed from an empty CLOSE payload.
const NoCode = CloseNoStatus

// CloseStatus is the decoded content of a CLOSE frame. Code == NoCode
// means the peer sent no status bytes at all.
type CloseStatus struct {
	Code   int
	Reason string
}

// NewCloseStatus clamps the reason to the transmittable length and
// returns the pair. The reason is cut on a rune boundary so the wire
// payload stays valid UTF-8.
func NewCloseStatus(code int, reason string) CloseStatus {
	return CloseStatus{Code: code, Reason: TruncateReason(reason)}
}

// TruncateReason shortens reason to at most MaxCloseReason bytes
// without splitting a multi-byte codepoint.
func TruncateReason(reason string) string {
	if len(reason) <= MaxCloseReason {
		return reason
	}
	cut := MaxCloseReason
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

// IsValidCloseCode reports whether code may legally appear in a
// received CLOSE payload. 1004..1006 and 1015 never travel on the
// wire; 2000..2999 are unassigned; 3000..4999 are free for use.
func IsValidCloseCode(code int) bool {
	if code >= 3000 && code <= 4999 {
		return true
	}
	if code < CloseNormal || code > CloseInvalidUpstream {
		return false
	}
	switch code {
	case 1004, CloseNoStatus, CloseAbnormal:
		return false
	}
	return true
}

// IsTransmittableCloseCode reports whether code may be placed in an
// outgoing CLOSE payload. The synthetic codes describe local
// conditions and must never be sent.
func IsTransmittableCloseCode(code int) bool {
	if code < CloseNormal || code > 4999 {
		return false
	}
	switch code {
	case CloseNoStatus, CloseAbnormal, CloseTLSHandshake:
		return false
	}
	return true
}

// ParseCloseStatus decodes a CLOSE frame payload. An empty payload is
// legal and yields NoCode. A single status byte, an illegal code, or a
// non-UTF-8 reason each fail the way the wire rules demand.
func ParseCloseStatus(payload []byte) (CloseStatus, error) {
	switch {
	case len(payload) == 0:
		return CloseStatus{Code: NoCode}, nil
	case len(payload) == 1:
		return CloseStatus{}, &ProtocolError{Reason: "close payload of length 1"}
	}
	code := int(binary.BigEndian.Uint16(payload[:2]))
	if !IsValidCloseCode(code) {
		return CloseStatus{}, &ProtocolError{Reason: "invalid close code"}
	}
	reason := payload[2:]
	if !utf8.Valid(reason) {
		return CloseStatus{}, &BadPayloadError{Reason: "close reason is not valid UTF-8"}
	}
	return CloseStatus{Code: code, Reason: string(reason)}, nil
}

// Payload encodes the status back into CLOSE frame payload bytes.
// NoCode encodes to an empty payload.
func (s CloseStatus) Payload() []byte {
	if s.Code == NoCode {
		return nil
	}
	reason := TruncateReason(s.Reason)
	buf := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(buf[:2], uint16(s.Code))
	copy(buf[2:], reason)
	return buf
}

// Frame wraps the status into a ready-to-send CLOSE frame.
func (s CloseStatus) Frame() *Frame {
	return &Frame{Fin: true, Opcode: OpClose, Payload: s.Payload()}
}

// IsAbnormal reports whether the status describes a connection that
// ended without a completed close handshake.
func (s CloseStatus) IsAbnormal() bool {
	return s.Code == CloseAbnormal
}

func (s CloseStatus) String() string {
	if s.Reason == "" {
		return "close " + strconv.Itoa(s.Code)
	}
	return "close " + strconv.Itoa(s.Code) + ": " + s.Reason
}
