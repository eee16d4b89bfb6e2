// File: protocol/handshake_test.go
// Author: momentics <momentics@gmail.com>

package protocol

import (
	"encoding/base64"
	"net/http"
	"strings"
	"testing"
)

func TestComputeAcceptKey(t *testing.T) {
	// Sample handshake from RFC 6455 section 1.3.
	got := ComputeAcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("accept key = %q, want %q", got, want)
	}
}

func TestGenerateChallengeKey(t *testing.T) {
	k1, err := GenerateChallengeKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(k1)
	if err != nil {
		t.Fatalf("key %q is not base64: %v", k1, err)
	}
	if len(raw) != 16 {
		t.Fatalf("key decodes to %d bytes, want 16", len(raw))
	}
	k2, err := GenerateChallengeKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if k1 == k2 {
		t.Fatalf("consecutive challenge keys collided: %q", k1)
	}
}

func TestHeaderContainsToken(t *testing.T) {
	h := http.Header{}
	h.Add("Connection", "keep-alive, Upgrade")
	h.Add("Upgrade", "WebSocket")

	if !HeaderContainsToken(h, "Connection", "upgrade") {
		t.Errorf("upgrade token not found in %q", h.Get("Connection"))
	}
	if !HeaderContainsToken(h, "Upgrade", "websocket") {
		t.Errorf("websocket token not found in %q", h.Get("Upgrade"))
	}
	if HeaderContainsToken(h, "Connection", "websocket") {
		t.Errorf("found websocket token in %q", h.Get("Connection"))
	}
	if HeaderContainsToken(h, "Missing", "anything") {
		t.Error("found token in absent header")
	}
}

func TestCheckHandshakeHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Host", "example.com")
	h.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	if err := CheckHandshakeHeaders(h); err != nil {
		t.Fatalf("small headers rejected: %v", err)
	}

	h.Set("Cookie", strings.Repeat("x", MaxHandshakeHeadersSize))
	if err := CheckHandshakeHeaders(h); err == nil {
		t.Fatal("oversized headers accepted")
	}
}
