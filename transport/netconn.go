// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package transport adapts real network connections to api.Transport.
package transport

import (
	"net"
	"time"

	"github.com/momentics/wscore/api"
)

// Conn wraps a net.Conn for the session engine. The HTTP layer may
// have read past the handshake; those bytes replay before the socket
// is touched again.
type Conn struct {
	conn   net.Conn
	prefix []byte
}

// NewConn builds the adapter. buffered holds bytes the handshake
// reader consumed beyond the request, nil when there are none.
func NewConn(conn net.Conn, buffered []byte) *Conn {
	return &Conn{conn: conn, prefix: buffered}
}

// Read implements api.Transport.
func (c *Conn) Read(p []byte) (int, error) {
	if len(c.prefix) > 0 {
		n := copy(p, c.prefix)
		c.prefix = c.prefix[n:]
		if len(c.prefix) == 0 {
			c.prefix = nil
		}
		return n, nil
	}
	return c.conn.Read(p)
}

// Write implements api.Transport.
func (c *Conn) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

// Close implements api.Transport.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// SetReadDeadline implements api.Transport. A deadline does not apply
// to replayed handshake bytes; those are already in memory.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline implements api.Transport.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// NetConn returns the underlying connection.
func (c *Conn) NetConn() net.Conn { return c.conn }

var _ api.Transport = (*Conn)(nil)
