// File: client/dialer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Client-side opening handshake. The dial path resolves the proxy,
// opens the raw connection, runs TLS for wss, writes the upgrade
// request, and validates the server's answer before wiring the
// session.

package client

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/momentics/wscore/api"
	"github.com/momentics/wscore/core"
	"github.com/momentics/wscore/extension"
	"github.com/momentics/wscore/pool"
	"github.com/momentics/wscore/protocol"
	"github.com/momentics/wscore/transport"
)

// ErrBadHandshake is returned when the server's response to the
// opening handshake is invalid. The *http.Response is returned
// alongside so callers can inspect redirects or auth challenges.
var ErrBadHandshake = errors.New("bad handshake")

// Dialer holds options for connecting to a WebSocket server. The
// zero value is usable.
type Dialer struct {
	// Config carries the session tunables; zero fields are filled
	// with defaults.
	Config api.Config

	// HandshakeTimeout bounds the whole opening handshake including
	// TLS. Zero means the context alone limits it.
	HandshakeTimeout time.Duration

	// NetDial overrides the TCP dial. Ignored when NetDialContext is
	// set.
	NetDial func(network, addr string) (net.Conn, error)

	// NetDialContext overrides the TCP dial with context support.
	NetDialContext func(ctx context.Context, network, addr string) (net.Conn, error)

	// TLSConfig is cloned for wss connections; ServerName defaults to
	// the dialed host.
	TLSConfig *tls.Config

	// Proxy returns the proxy for the request, in the
	// http.ProxyFromEnvironment manner. Nil means a direct dial.
	Proxy func(r *http.Request) (*url.URL, error)

	// Header lists extra request headers: Origin, Cookie,
	// Authorization. Handshake-owned headers are ignored.
	Header http.Header

	// Subprotocols lists the requested subprotocols in preference
	// order.
	Subprotocols []string

	// EnableCompression offers permessage-deflate with default
	// parameters.
	EnableCompression bool

	// Offers lists explicit extension offers, overriding
	// EnableCompression when non-nil.
	Offers []extension.Config

	// Registry builds negotiated extensions; nil means the bundled
	// registry.
	Registry *extension.Registry

	// Pool supplies parser payload buffers; nil means pool.Default().
	Pool api.BytePool

	// Stats optionally receives engine counters from dialed sessions.
	Stats api.StatsRecorder
}

// DefaultDialer honors the proxy environment variables and bounds
// the handshake.
var DefaultDialer = &Dialer{
	Proxy:            http.ProxyFromEnvironment,
	HandshakeTimeout: 45 * time.Second,
}

// reqBufs recycles upgrade request scratch across dials.
var reqBufs = pool.NewSyncPool(func() *bytes.Buffer { return new(bytes.Buffer) })

// Dial connects to the given ws:// or wss:// URL.
func (d *Dialer) Dial(urlStr string, handler api.FrameHandler) (*core.Session, *http.Response, error) {
	return d.DialContext(context.Background(), urlStr, handler)
}

// DialContext connects to the given ws:// or wss:// URL. The context
// bounds the dial and handshake only; the session's own timeouts take
// over once it returns.
func (d *Dialer) DialContext(ctx context.Context, urlStr string, handler api.FrameHandler) (*core.Session, *http.Response, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, nil, err
	}
	var secure bool
	switch u.Scheme {
	case "ws":
	case "wss":
		secure = true
	default:
		return nil, nil, fmt.Errorf("dial: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, nil, fmt.Errorf("dial: missing host in %q", urlStr)
	}

	challenge, err := protocol.GenerateChallengeKey()
	if err != nil {
		return nil, nil, err
	}
	offers := d.offers()

	netConn, err := d.dialRaw(ctx, u, secure)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if netConn != nil {
			netConn.Close()
		}
	}()

	deadline := time.Time{}
	if d.HandshakeTimeout > 0 {
		deadline = time.Now().Add(d.HandshakeTimeout)
	}
	if dl, ok := ctx.Deadline(); ok && (deadline.IsZero() || dl.Before(deadline)) {
		deadline = dl
	}
	if !deadline.IsZero() {
		if err := netConn.SetDeadline(deadline); err != nil {
			return nil, nil, err
		}
	}
	stop := watchContext(ctx, netConn)
	defer stop()

	if secure {
		cfg := d.TLSConfig.Clone()
		if cfg == nil {
			cfg = &tls.Config{}
		}
		if cfg.ServerName == "" {
			cfg.ServerName = u.Hostname()
		}
		tlsConn := tls.Client(netConn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return nil, nil, err
		}
		netConn = tlsConn
	}

	if err := d.writeRequest(netConn, u, challenge, offers); err != nil {
		return nil, nil, err
	}

	br := bufio.NewReader(netConn)
	resp, err := http.ReadResponse(br, &http.Request{Method: http.MethodGet, URL: u})
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode != http.StatusSwitchingProtocols ||
		!protocol.HeaderContainsToken(resp.Header, "Upgrade", "websocket") ||
		!protocol.HeaderContainsToken(resp.Header, "Connection", "upgrade") ||
		resp.Header.Get("Sec-WebSocket-Accept") != protocol.ComputeAcceptKey(challenge) {
		return nil, resp, ErrBadHandshake
	}
	if proto := resp.Header.Get("Sec-WebSocket-Protocol"); proto != "" && !containsString(d.Subprotocols, proto) {
		return nil, resp, fmt.Errorf("%w: server selected unrequested subprotocol %q", ErrBadHandshake, proto)
	}
	exts, err := d.buildExtensions(resp, offers)
	if err != nil {
		return nil, resp, fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}

	bp := d.Pool
	if bp == nil {
		bp = pool.Default()
	}
	sess, err := core.NewSession(core.SessionConfig{
		Transport:  transport.NewConn(netConn, bufferedBytes(br)),
		Handler:    handler,
		Behavior:   api.BehaviorClient,
		Config:     d.Config,
		Extensions: exts,
		Pool:       bp,
		Stats:      d.Stats,
	})
	if err != nil {
		closeExtensions(exts)
		return nil, resp, err
	}

	netConn.SetDeadline(time.Time{})
	// The session owns the connection now; keep the defer from
	// closing it.
	netConn = nil
	return sess, resp, nil
}

// dialRaw opens the TCP connection, through the configured proxy when
// one applies.
func (d *Dialer) dialRaw(ctx context.Context, u *url.URL, secure bool) (net.Conn, error) {
	def := "80"
	if secure {
		def = "443"
	}
	hostPort := hostPortDefault(u, def)
	forward := d.netDial(ctx)
	if d.Proxy != nil {
		proxyURL, err := d.Proxy(proxyRequest(u, secure))
		if err != nil {
			return nil, err
		}
		if proxyURL != nil {
			pd, err := proxy.FromURL(proxyURL, netDialerFunc(forward))
			if err != nil {
				return nil, err
			}
			return pd.Dial("tcp", hostPort)
		}
	}
	return forward("tcp", hostPort)
}

func (d *Dialer) netDial(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		switch {
		case d.NetDialContext != nil:
			return d.NetDialContext(ctx, network, addr)
		case d.NetDial != nil:
			return d.NetDial(network, addr)
		default:
			var nd net.Dialer
			return nd.DialContext(ctx, network, addr)
		}
	}
}

func (d *Dialer) offers() []extension.Config {
	if d.Offers != nil {
		return d.Offers
	}
	if d.EnableCompression {
		return []extension.Config{extension.NewConfig("permessage-deflate")}
	}
	return nil
}

// writeRequest composes and sends the upgrade request. Upgrade is
// capitalized for servers that compare header tokens case
// sensitively.
func (d *Dialer) writeRequest(conn net.Conn, u *url.URL, challenge string, offers []extension.Config) error {
	host := u.Host
	if h := d.Header.Get("Host"); h != "" {
		host = h
	}

	buf := reqBufs.Get()
	defer reqBufs.Put(buf)
	buf.Reset()
	buf.WriteString("GET ")
	buf.WriteString(u.RequestURI())
	buf.WriteString(" HTTP/1.1\r\nHost: ")
	buf.WriteString(host)
	buf.WriteString("\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Version: ")
	buf.WriteString(protocol.RequiredWebSocketVersion)
	buf.WriteString("\r\nSec-WebSocket-Key: ")
	buf.WriteString(challenge)
	buf.WriteString("\r\n")
	if len(d.Subprotocols) > 0 {
		buf.WriteString("Sec-WebSocket-Protocol: ")
		buf.WriteString(strings.Join(d.Subprotocols, ", "))
		buf.WriteString("\r\n")
	}
	if len(offers) > 0 {
		entries := make([]string, len(offers))
		for i, o := range offers {
			entries[i] = o.String()
		}
		buf.WriteString("Sec-WebSocket-Extensions: ")
		buf.WriteString(strings.Join(entries, ", "))
		buf.WriteString("\r\n")
	}
	for k, vs := range d.Header {
		if dialerOwnedHeader(k) {
			continue
		}
		for _, v := range vs {
			buf.WriteString(k)
			buf.WriteString(": ")
			buf.WriteString(v)
			buf.WriteString("\r\n")
		}
	}
	buf.WriteString("\r\n")
	_, err := conn.Write(buf.Bytes())
	return err
}

// buildExtensions validates the server's extension response against
// the offers and instantiates the chain.
func (d *Dialer) buildExtensions(resp *http.Response, offers []extension.Config) ([]api.Extension, error) {
	lines := resp.Header.Values("Sec-WebSocket-Extensions")
	if len(lines) == 0 {
		return nil, nil
	}
	accepted, err := extension.ParseList(strings.Join(lines, ", "))
	if err != nil {
		return nil, fmt.Errorf("malformed Sec-WebSocket-Extensions: %v", err)
	}
	if len(accepted) == 0 {
		return nil, nil
	}
	offered := make(map[string]bool, len(offers))
	for _, o := range offers {
		offered[o.Name()] = true
	}
	for _, a := range accepted {
		if !offered[a.Name()] {
			return nil, fmt.Errorf("server enabled unoffered extension %q", a.Name())
		}
	}
	reg := d.Registry
	if reg == nil {
		reg = extension.NewRegistry(api.BehaviorClient)
	}
	return reg.Build(accepted)
}

// watchContext closes the connection when the context is canceled
// mid-handshake. The returned stop detaches the watcher.
func watchContext(ctx context.Context, conn net.Conn) (stop func()) {
	if ctx.Done() == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func proxyRequest(u *url.URL, secure bool) *http.Request {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return &http.Request{URL: &url.URL{Scheme: scheme, Host: u.Host}}
}

func hostPortDefault(u *url.URL, def string) string {
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), def)
}

func dialerOwnedHeader(k string) bool {
	switch http.CanonicalHeaderKey(k) {
	case "Host", "Upgrade", "Connection", "Sec-Websocket-Key", "Sec-Websocket-Version", "Sec-Websocket-Protocol", "Sec-Websocket-Extensions":
		return true
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// bufferedBytes copies out whatever the response read buffered past
// the headers; they replay ahead of socket reads in the transport.
func bufferedBytes(br *bufio.Reader) []byte {
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

func closeExtensions(exts []api.Extension) {
	for _, e := range exts {
		e.Close()
	}
}
