// File: server/upgrader.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HTTP to WebSocket upgrade. The exported Upgrade hijacks a net/http
// request; UpgradeConn performs the same handshake on a raw
// connection whose request was already read off the wire. Both end in
// an unstarted core.Session carrying the negotiated extension chain.

package server

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/momentics/wscore/api"
	"github.com/momentics/wscore/core"
	"github.com/momentics/wscore/extension"
	"github.com/momentics/wscore/pool"
	"github.com/momentics/wscore/protocol"
	"github.com/momentics/wscore/transport"
)

// HandshakeError describes a rejected upgrade request. Status is the
// HTTP status the client was (or should be) answered with.
type HandshakeError struct {
	Status int
	Reason string
}

func (e *HandshakeError) Error() string { return "handshake: " + e.Reason }

// Upgrader negotiates WebSocket sessions on the server side. The zero
// value is usable: bundled extensions, pooled buffers, default session
// tunables.
type Upgrader struct {
	// Config carries the session tunables; zero fields are filled
	// with defaults.
	Config api.Config

	// HandshakeTimeout bounds the 101 response write.
	HandshakeTimeout time.Duration

	// Subprotocols lists the supported subprotocols in server
	// preference order. When nil no subprotocol is negotiated unless
	// the response header carries one.
	Subprotocols []string

	// CheckOrigin rejects cross-origin upgrades when it returns
	// false. Nil skips the check.
	CheckOrigin func(r *http.Request) bool

	// Registry supplies the extension constructors offered peers may
	// bind. Nil means the bundled registry (identity and
	// permessage-deflate). A registry without permessage-deflate
	// disables compression.
	Registry *extension.Registry

	// Pool supplies parser payload buffers; nil means pool.Default().
	Pool api.BytePool

	// Stats optionally receives engine counters from every session
	// this upgrader creates.
	Stats api.StatsRecorder
}

// negotiation is the outcome of validating one upgrade request.
type negotiation struct {
	accept      string
	subprotocol string
	exts        []api.Extension
	extHeaders  []string
	extra       http.Header
}

// respBufs recycles handshake response scratch across connections.
var respBufs = pool.NewSyncPool(func() *bytes.Buffer { return new(bytes.Buffer) })

// Upgrade hijacks the request's connection and completes the
// WebSocket handshake. On failure the HTTP error response has already
// been written. The returned session is not started.
//
// responseHeader is included in the 101 response, typically for
// Set-Cookie; handshake-owned headers in it are ignored.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request, responseHeader http.Header, handler api.FrameHandler) (*core.Session, error) {
	n, herr := u.negotiate(r, responseHeader)
	if herr != nil {
		if herr.Status == http.StatusUpgradeRequired {
			w.Header().Set("Sec-WebSocket-Version", protocol.RequiredWebSocketVersion)
		}
		http.Error(w, herr.Reason, herr.Status)
		return nil, herr
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		closeExtensions(n.exts)
		herr := &HandshakeError{Status: http.StatusInternalServerError, Reason: "response writer does not support hijacking"}
		http.Error(w, herr.Reason, herr.Status)
		return nil, herr
	}
	conn, rw, err := hj.Hijack()
	if err != nil {
		closeExtensions(n.exts)
		herr := &HandshakeError{Status: http.StatusInternalServerError, Reason: "hijack failed"}
		http.Error(w, herr.Reason, herr.Status)
		return nil, fmt.Errorf("handshake hijack: %w", err)
	}
	return u.complete(conn, bufferedPrefix(rw.Reader), n, handler)
}

// UpgradeConn completes the handshake on a raw connection. The
// request must already be parsed; br, when non-nil, is the reader it
// was parsed through and may hold bytes the client sent early. On
// failure an HTTP error response is written and the connection
// closed. The returned session is not started.
func (u *Upgrader) UpgradeConn(conn net.Conn, br *bufio.Reader, r *http.Request, responseHeader http.Header, handler api.FrameHandler) (*core.Session, error) {
	n, herr := u.negotiate(r, responseHeader)
	if herr != nil {
		writeHTTPError(conn, herr)
		conn.Close()
		return nil, herr
	}
	var prefix []byte
	if br != nil {
		prefix = bufferedPrefix(br)
	}
	return u.complete(conn, prefix, n, handler)
}

// negotiate validates the upgrade request and resolves the accept
// key, subprotocol, and extension chain. Extension instances in the
// result are live; failure paths after it must close them.
func (u *Upgrader) negotiate(r *http.Request, responseHeader http.Header) (*negotiation, *HandshakeError) {
	if r.Method != http.MethodGet {
		return nil, &HandshakeError{Status: http.StatusMethodNotAllowed, Reason: "upgrade requires GET"}
	}
	if err := protocol.CheckHandshakeHeaders(r.Header); err != nil {
		return nil, &HandshakeError{Status: http.StatusBadRequest, Reason: err.Error()}
	}
	if !protocol.HeaderContainsToken(r.Header, "Connection", "upgrade") {
		return nil, &HandshakeError{Status: http.StatusBadRequest, Reason: "Connection header does not contain upgrade"}
	}
	if !protocol.HeaderContainsToken(r.Header, "Upgrade", "websocket") {
		return nil, &HandshakeError{Status: http.StatusBadRequest, Reason: "Upgrade header does not contain websocket"}
	}
	if v := r.Header.Get("Sec-WebSocket-Version"); v != protocol.RequiredWebSocketVersion {
		return nil, &HandshakeError{Status: http.StatusUpgradeRequired, Reason: "unsupported WebSocket version " + v}
	}
	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return nil, &HandshakeError{Status: http.StatusBadRequest, Reason: "missing Sec-WebSocket-Key"}
	}
	if u.CheckOrigin != nil && !u.CheckOrigin(r) {
		return nil, &HandshakeError{Status: http.StatusForbidden, Reason: "origin not allowed"}
	}

	offers, err := clientExtensionOffers(r)
	if err != nil {
		return nil, &HandshakeError{Status: http.StatusBadRequest, Reason: err.Error()}
	}
	reg := u.Registry
	if reg == nil {
		reg = extension.NewRegistry(api.BehaviorServer)
	}
	exts, accepted := reg.Negotiate(offers)

	n := &negotiation{
		accept:      protocol.ComputeAcceptKey(key),
		subprotocol: u.selectSubprotocol(r, responseHeader),
		exts:        exts,
		extra:       responseHeader,
	}
	for _, cfg := range accepted {
		n.extHeaders = append(n.extHeaders, cfg.String())
	}
	return n, nil
}

// complete writes the 101 response and builds the session over the
// upgraded connection.
func (u *Upgrader) complete(conn net.Conn, prefix []byte, n *negotiation, handler api.FrameHandler) (*core.Session, error) {
	if u.HandshakeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(u.HandshakeTimeout))
	}
	buf := respBufs.Get()
	buf.Reset()
	writeUpgradeResponse(buf, n)
	_, werr := conn.Write(buf.Bytes())
	respBufs.Put(buf)
	if u.HandshakeTimeout > 0 {
		conn.SetWriteDeadline(time.Time{})
	}
	if werr != nil {
		closeExtensions(n.exts)
		conn.Close()
		return nil, fmt.Errorf("handshake response write: %w", werr)
	}

	bp := u.Pool
	if bp == nil {
		bp = pool.Default()
	}
	sess, err := core.NewSession(core.SessionConfig{
		Transport:  transport.NewConn(conn, prefix),
		Handler:    handler,
		Behavior:   api.BehaviorServer,
		Config:     u.Config,
		Extensions: n.exts,
		Pool:       bp,
		Stats:      u.Stats,
	})
	if err != nil {
		closeExtensions(n.exts)
		conn.Close()
		return nil, err
	}
	return sess, nil
}

// selectSubprotocol picks the first client offer the server supports,
// falling back to an explicit response header entry.
func (u *Upgrader) selectSubprotocol(r *http.Request, responseHeader http.Header) string {
	if u.Subprotocols != nil {
		for _, offer := range Subprotocols(r) {
			for _, supported := range u.Subprotocols {
				if offer == supported {
					return offer
				}
			}
		}
		return ""
	}
	if responseHeader != nil {
		return responseHeader.Get("Sec-WebSocket-Protocol")
	}
	return ""
}

// Subprotocols returns the subprotocols the client requested, in
// offer order.
func Subprotocols(r *http.Request) []string {
	var out []string
	for _, v := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// clientExtensionOffers parses every Sec-WebSocket-Extensions line
// into ordered configs. A malformed header fails the handshake rather
// than being silently dropped.
func clientExtensionOffers(r *http.Request) ([]extension.Config, error) {
	lines := r.Header.Values("Sec-WebSocket-Extensions")
	if len(lines) == 0 {
		return nil, nil
	}
	offers, err := extension.ParseList(strings.Join(lines, ", "))
	if err != nil {
		return nil, fmt.Errorf("malformed Sec-WebSocket-Extensions: %w", err)
	}
	return offers, nil
}

func writeUpgradeResponse(buf *bytes.Buffer, n *negotiation) {
	buf.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	buf.WriteString("Upgrade: websocket\r\n")
	buf.WriteString("Connection: Upgrade\r\n")
	buf.WriteString("Sec-WebSocket-Accept: ")
	buf.WriteString(n.accept)
	buf.WriteString("\r\n")
	if n.subprotocol != "" {
		buf.WriteString("Sec-WebSocket-Protocol: ")
		buf.WriteString(n.subprotocol)
		buf.WriteString("\r\n")
	}
	if len(n.extHeaders) > 0 {
		buf.WriteString("Sec-WebSocket-Extensions: ")
		buf.WriteString(strings.Join(n.extHeaders, ", "))
		buf.WriteString("\r\n")
	}
	for k, vs := range n.extra {
		if handshakeOwnedHeader(k) {
			continue
		}
		for _, v := range vs {
			buf.WriteString(k)
			buf.WriteString(": ")
			for i := 0; i < len(v); i++ {
				b := v[i]
				if b <= 31 {
					// response splitting guard
					b = ' '
				}
				buf.WriteByte(b)
			}
			buf.WriteString("\r\n")
		}
	}
	buf.WriteString("\r\n")
}

func handshakeOwnedHeader(k string) bool {
	switch http.CanonicalHeaderKey(k) {
	case "Upgrade", "Connection", "Sec-Websocket-Accept", "Sec-Websocket-Protocol", "Sec-Websocket-Extensions", "Sec-Websocket-Version":
		return true
	}
	return false
}

// bufferedPrefix copies out bytes the client sent before the 101
// response; they replay ahead of socket reads in the session
// transport.
func bufferedPrefix(br *bufio.Reader) []byte {
	n := br.Buffered()
	if n == 0 {
		return nil
	}
	p, err := br.Peek(n)
	if err != nil {
		return nil
	}
	return append([]byte(nil), p...)
}

func writeHTTPError(conn net.Conn, herr *HandshakeError) {
	var versions string
	if herr.Status == http.StatusUpgradeRequired {
		versions = "Sec-WebSocket-Version: " + protocol.RequiredWebSocketVersion + "\r\n"
	}
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\nContent-Type: text/plain; charset=utf-8\r\nConnection: close\r\n%s\r\n%s\n",
		herr.Status, http.StatusText(herr.Status), versions, herr.Reason)
}

func closeExtensions(exts []api.Extension) {
	for _, e := range exts {
		e.Close()
	}
}
