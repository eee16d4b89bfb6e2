// File: client/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package client dials ws:// and wss:// endpoints and hands back
// engine sessions.
//
// Dialer covers the opening handshake: TCP (optionally through an
// HTTP CONNECT or SOCKS5 proxy), TLS for wss, challenge/accept key
// verification, and subprotocol plus extension negotiation. The
// result is an unstarted core.Session in the client role; frames it
// sends are masked on the wire.
package client
