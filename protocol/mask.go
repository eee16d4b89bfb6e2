// File: protocol/mask.go
// Author: momentics <momentics@gmail.com>
//
// Payload masking (RFC 6455 section 5.3). The XOR runs eight bytes at
// a time over a replicated key word; pos carries the key offset across
// chunk boundaries so streaming unmask stays correct.

package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"math/bits"
)

var order = binary.LittleEndian

// maskBytes XORs buf with the bytes of key starting at key offset pos
// and returns the offset after the last byte.
func maskBytes(key [4]byte, pos int, buf []byte) int {
	if len(buf) < 8 {
		for i := range buf {
			buf[i] ^= key[pos&3]
			pos++
		}
		return pos & 3
	}

	// Replicate the key into a 64-bit word, rotated to the current
	// offset, and process whole words.
	key64 := uint64(order.Uint32(key[:]))
	key64 |= key64 << 32
	key64 = bits.RotateLeft64(key64, -pos*8)
	var i int
	for ; len(buf)-i > 7; i += 8 {
		order.PutUint64(buf[i:], order.Uint64(buf[i:])^key64)
	}

	// A multiple of eight bytes leaves pos&3 unchanged.
	for ; i < len(buf); i++ {
		buf[i] ^= key[pos&3]
		pos++
	}
	return pos & 3
}

// newMaskKey returns an unpredictable client masking key.
func newMaskKey() ([4]byte, error) {
	var key [4]byte
	if _, err := rand.Read(key[:]); err != nil {
		return key, err
	}
	return key, nil
}
