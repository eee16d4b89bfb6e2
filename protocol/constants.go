// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket wire protocol constants

package protocol

const (
	// Bit masks for the first header byte.
	finBit  = 0x80
	rsv1Bit = 0x40
	rsv2Bit = 0x20
	rsv3Bit = 0x10
	rsvMask = rsv1Bit | rsv2Bit | rsv3Bit

	// Bit mask for the second header byte.
	maskBit = 0x80

	// Extended payload length markers.
	len16Marker = 126
	len64Marker = 127

	// MaxHeaderSize is the worst-case frame header: 2 base bytes,
	// 8 extended length bytes, 4 mask key bytes.
	MaxHeaderSize = 14

	// Boundaries of the three length encodings. A longer encoding
	// carrying a value below its boundary is a protocol violation.
	len16Min = 126
	len64Min = 65536
)
