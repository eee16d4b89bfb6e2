// File: core/utf8.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package core

import (
	"github.com/momentics/wscore/api"
)

// utf8Validator checks a TEXT message incrementally, carrying the
// state of a partially received codepoint across fragment boundaries.
// Overlong encodings, surrogate halves, and codepoints past U+10FFFF
// are rejected at the first byte that gives them away.
type utf8Validator struct {
	remaining int  // continuation bytes still owed
	lower     byte // accepted range for the next continuation byte
	upper     byte
}

// Accept consumes the next chunk of the message. It fails on the first
// byte that cannot extend a valid UTF-8 sequence.
func (v *utf8Validator) Accept(p []byte) error {
	for _, b := range p {
		if v.remaining > 0 {
			if b < v.lower || b > v.upper {
				return &api.BadPayloadError{Reason: "invalid UTF-8 continuation byte"}
			}
			v.remaining--
			v.lower, v.upper = 0x80, 0xBF
			continue
		}
		switch {
		case b <= 0x7F:
			// ASCII.
		case b >= 0xC2 && b <= 0xDF:
			v.remaining, v.lower, v.upper = 1, 0x80, 0xBF
		case b == 0xE0:
			v.remaining, v.lower, v.upper = 2, 0xA0, 0xBF
		case b >= 0xE1 && b <= 0xEC:
			v.remaining, v.lower, v.upper = 2, 0x80, 0xBF
		case b == 0xED:
			// Excludes the surrogate range U+D800..U+DFFF.
			v.remaining, v.lower, v.upper = 2, 0x80, 0x9F
		case b >= 0xEE && b <= 0xEF:
			v.remaining, v.lower, v.upper = 2, 0x80, 0xBF
		case b == 0xF0:
			v.remaining, v.lower, v.upper = 3, 0x90, 0xBF
		case b >= 0xF1 && b <= 0xF3:
			v.remaining, v.lower, v.upper = 3, 0x80, 0xBF
		case b == 0xF4:
			// Caps the range at U+10FFFF.
			v.remaining, v.lower, v.upper = 3, 0x80, 0x8F
		default:
			// 0x80..0xC1 stray continuation or overlong lead, 0xF5..0xFF
			// out of range.
			return &api.BadPayloadError{Reason: "invalid UTF-8 lead byte"}
		}
	}
	return nil
}

// Complete reports whether the consumed input ends on a codepoint
// boundary. A message that ends mid-sequence is invalid.
func (v *utf8Validator) Complete() bool {
	return v.remaining == 0
}

// Reset prepares the validator for the next message.
func (v *utf8Validator) Reset() {
	v.remaining = 0
	v.lower, v.upper = 0, 0
}
