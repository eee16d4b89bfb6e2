// File: client/proxy.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HTTP CONNECT tunneling registered with golang.org/x/net/proxy, so
// proxy.FromURL resolves http:// and https:// proxy URLs next to the
// socks5 support x/net ships. Dialers reach these through
// Dialer.Proxy.

package client

import (
	"bufio"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/net/proxy"
)

// netDialerFunc adapts a dial function to the proxy.Dialer interface.
type netDialerFunc func(network, addr string) (net.Conn, error)

func (f netDialerFunc) Dial(network, addr string) (net.Conn, error) {
	return f(network, addr)
}

func init() {
	proxy.RegisterDialerType("http", func(proxyURL *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
		return &httpProxyDialer{proxyURL: proxyURL, forward: forward}, nil
	})
	proxy.RegisterDialerType("https", func(proxyURL *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
		return &httpProxyDialer{proxyURL: proxyURL, forward: forward, secure: true}, nil
	})
}

// httpProxyDialer tunnels connections through an HTTP proxy with
// CONNECT.
type httpProxyDialer struct {
	proxyURL *url.URL
	forward  proxy.Dialer
	secure   bool
}

func (d *httpProxyDialer) Dial(network, addr string) (net.Conn, error) {
	def := "80"
	if d.secure {
		def = "443"
	}
	conn, err := d.forward.Dial(network, hostPortDefault(d.proxyURL, def))
	if err != nil {
		return nil, err
	}
	if d.secure {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: d.proxyURL.Hostname()})
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return nil, err
		}
		conn = tlsConn
	}

	header := make(http.Header)
	if user := d.proxyURL.User; user != nil {
		pass, _ := user.Password()
		credential := base64.StdEncoding.EncodeToString([]byte(user.Username() + ":" + pass))
		header.Set("Proxy-Authorization", "Basic "+credential)
	}
	connectReq := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: header,
	}
	if err := connectReq.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}

	// Discarding the buffered reader is safe: the tunnel endpoint does
	// not speak until spoken to.
	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, connectReq)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT %s: %s", addr, resp.Status)
	}
	return conn, nil
}
