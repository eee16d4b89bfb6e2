// File: tests/nhooyr_test.go
// Author: momentics <momentics@gmail.com>
//
// Interop against nhooyr.io/websocket as the client peer. Unlike the
// gorilla client this one dials through net/http, so the handshake
// arrives with a different header composition.

package tests

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"nhooyr.io/websocket"

	"github.com/momentics/wscore/api"
)

func TestNhooyrEcho(t *testing.T) {
	ts := startInteropServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), testWait)
	defer cancel()

	c, _, err := websocket.Dial(ctx, ts.url("/echo"), &websocket.DialOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.CloseNow()

	payload := []byte("hello from nhooyr")
	if err := c.Write(ctx, websocket.MessageText, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	typ, got, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText || !bytes.Equal(got, payload) {
		t.Fatalf("echo = (%v, %q)", typ, got)
	}

	if err := c.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("close: %v", err)
	}
	st := ts.waitClosed(t)
	if st.Code != api.CloseNormal || st.Reason != "bye" {
		t.Fatalf("server saw close %+v", st)
	}
}

func TestNhooyrFragmentedDownload(t *testing.T) {
	ts := startInteropServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), testWait)
	defer cancel()

	c, _, err := websocket.Dial(ctx, ts.url("/frag"), &websocket.DialOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.CloseNow()

	payload := []byte("three continuation frames reassembled by the peer")
	if err := c.Write(ctx, websocket.MessageBinary, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	typ, got, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageBinary || !bytes.Equal(got, payload) {
		t.Fatalf("echo = (%v, %q)", typ, got)
	}
}

func TestNhooyrCompressedEcho(t *testing.T) {
	ts := startInteropServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), testWait)
	defer cancel()

	c, _, err := websocket.Dial(ctx, ts.url("/echo"), &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.CloseNow()

	msg := []byte(strings.Repeat("compressible content ", 200))
	for i := 0; i < 2; i++ {
		if err := c.Write(ctx, websocket.MessageText, msg); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		_, got, err := c.Read(ctx)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if !bytes.Equal(got, msg) {
			t.Fatalf("round %d corrupted: %d bytes, want %d", i, len(got), len(msg))
		}
	}

	if err := c.Close(websocket.StatusNormalClosure, ""); err != nil {
		t.Fatalf("close: %v", err)
	}
}
