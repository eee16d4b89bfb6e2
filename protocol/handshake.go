// File: protocol/handshake.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Opening-handshake primitives shared by the server upgrader and the
// client dialer: challenge key generation, the accept key derivation
// from RFC 6455 section 1.3, and the token scan both roles use to
// validate Connection/Upgrade headers.

package protocol

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// WebSocketGUID is the fixed handshake GUID from RFC 6455 section 1.3.
const WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// RequiredWebSocketVersion is the only protocol version this package
// speaks.
const RequiredWebSocketVersion = "13"

// MaxHandshakeHeadersSize caps the combined length of handshake
// headers accepted from a peer.
const MaxHandshakeHeadersSize = 8192

// ComputeAcceptKey derives the Sec-WebSocket-Accept value from the
// client's challenge key.
func ComputeAcceptKey(challengeKey string) string {
	h := sha1.New()
	h.Write([]byte(challengeKey))
	h.Write([]byte(WebSocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// GenerateChallengeKey returns a fresh Sec-WebSocket-Key: sixteen
// random bytes, base64 encoded.
func GenerateChallengeKey() (string, error) {
	p := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, p); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(p), nil
}

// HeaderContainsToken reports whether the named header carries token
// in any of its comma-separated values, case-insensitive.
func HeaderContainsToken(h http.Header, name, token string) bool {
	for _, v := range h[http.CanonicalHeaderKey(name)] {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// CheckHandshakeHeaders enforces the combined header size cap before
// any per-header validation runs.
func CheckHandshakeHeaders(h http.Header) error {
	total := 0
	for k, vs := range h {
		total += len(k)
		for _, v := range vs {
			total += len(v)
		}
		if total > MaxHandshakeHeadersSize {
			return fmt.Errorf("handshake headers exceed %d bytes", MaxHandshakeHeadersSize)
		}
	}
	return nil
}
