// File: fake/transport.go
// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the core interfaces.

package fake

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/momentics/wscore/api"
)

// Transport is an in-memory api.Transport. Reads block until data is
// fed, the read deadline passes, or the endpoint closes, so a session
// can run against it exactly as against a TCP connection.
type Transport struct {
	mu   sync.Mutex
	wake chan struct{}

	rbuf bytes.Buffer
	eof  bool

	sent bytes.Buffer
	peer *Transport

	closed   bool
	readErr  error
	writeErr error
	closeErr error

	rdeadline time.Time
	wdeadline time.Time
}

// NewTransport creates a standalone endpoint. Feed supplies the bytes
// its Read returns; Sent collects what was written to it.
func NewTransport() *Transport {
	return &Transport{wake: make(chan struct{}, 1)}
}

// Pipe returns two endpoints wired back to back: whatever one side
// writes shows up on the other side's reads, and closing one side
// delivers EOF to its peer.
func Pipe() (*Transport, *Transport) {
	a := NewTransport()
	b := NewTransport()
	a.peer = b
	b.peer = a
	return a, b
}

// Read implements api.Transport.
func (t *Transport) Read(p []byte) (int, error) {
	for {
		t.mu.Lock()
		switch {
		case t.readErr != nil:
			err := t.readErr
			t.mu.Unlock()
			return 0, err
		case t.closed:
			t.mu.Unlock()
			return 0, api.ErrTransportClosed
		case t.rbuf.Len() > 0:
			n, _ := t.rbuf.Read(p)
			t.mu.Unlock()
			return n, nil
		case t.eof:
			t.mu.Unlock()
			return 0, io.EOF
		}
		deadline := t.rdeadline
		t.mu.Unlock()

		var timeout <-chan time.Time
		var timer *time.Timer
		if !deadline.IsZero() {
			d := time.Until(deadline)
			if d <= 0 {
				return 0, &api.TimeoutError{Phase: "read"}
			}
			timer = time.NewTimer(d)
			timeout = timer.C
		}
		select {
		case <-t.wake:
		case <-timeout:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Write implements api.Transport. Written bytes are recorded and, when
// the endpoint is piped, fed to the peer.
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	if t.writeErr != nil {
		err := t.writeErr
		t.mu.Unlock()
		return 0, err
	}
	if t.closed {
		t.mu.Unlock()
		return 0, api.ErrTransportClosed
	}
	if !t.wdeadline.IsZero() && time.Now().After(t.wdeadline) {
		t.mu.Unlock()
		return 0, &api.TimeoutError{Phase: "write"}
	}
	t.sent.Write(p)
	peer := t.peer
	t.mu.Unlock()

	if peer != nil {
		peer.Feed(p)
	}
	return len(p), nil
}

// Close implements api.Transport. The peer of a piped endpoint sees
// EOF once it drains what was already written.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closeErr != nil {
		err := t.closeErr
		t.mu.Unlock()
		return err
	}
	t.closed = true
	peer := t.peer
	t.mu.Unlock()

	t.signal()
	if peer != nil {
		peer.FeedEOF()
	}
	return nil
}

// SetReadDeadline implements api.Transport. A blocked Read observes
// the new deadline immediately.
func (t *Transport) SetReadDeadline(tm time.Time) error {
	t.mu.Lock()
	t.rdeadline = tm
	t.mu.Unlock()
	t.signal()
	return nil
}

// SetWriteDeadline implements api.Transport.
func (t *Transport) SetWriteDeadline(tm time.Time) error {
	t.mu.Lock()
	t.wdeadline = tm
	t.mu.Unlock()
	return nil
}

// Feed appends data to the read side and wakes a blocked Read.
func (t *Transport) Feed(data []byte) {
	t.mu.Lock()
	t.rbuf.Write(data)
	t.mu.Unlock()
	t.signal()
}

// FeedEOF marks the read side exhausted: Read returns io.EOF after the
// buffered bytes are drained.
func (t *Transport) FeedEOF() {
	t.mu.Lock()
	t.eof = true
	t.mu.Unlock()
	t.signal()
}

// Sent returns a copy of every byte written so far.
func (t *Transport) Sent() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.sent.Bytes()...)
}

// ClearSent resets the write capture.
func (t *Transport) ClearSent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent.Reset()
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// SetReadError configures the transport to fail the next Read.
func (t *Transport) SetReadError(err error) {
	t.mu.Lock()
	t.readErr = err
	t.mu.Unlock()
	t.signal()
}

// SetWriteError configures the transport to fail the next Write.
func (t *Transport) SetWriteError(err error) {
	t.mu.Lock()
	t.writeErr = err
	t.mu.Unlock()
}

// SetCloseError configures the transport to fail Close.
func (t *Transport) SetCloseError(err error) {
	t.mu.Lock()
	t.closeErr = err
	t.mu.Unlock()
}

func (t *Transport) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

var _ api.Transport = (*Transport)(nil)
