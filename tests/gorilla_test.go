// File: tests/gorilla_test.go
// Author: momentics <momentics@gmail.com>
//
// Interop against github.com/gorilla/websocket as the client peer.

package tests

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/momentics/wscore/api"
)

func TestGorillaEcho(t *testing.T) {
	ts := startInteropServer(t)

	c, resp, err := websocket.DefaultDialer.Dial(ts.url("/echo"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	if resp.StatusCode != 101 {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	cases := []struct {
		typ     int
		payload []byte
	}{
		{websocket.TextMessage, []byte("hello interop")},
		{websocket.BinaryMessage, []byte{0x00, 0x01, 0xfe, 0xff}},
	}
	for _, tc := range cases {
		if err := c.WriteMessage(tc.typ, tc.payload); err != nil {
			t.Fatalf("write: %v", err)
		}
		typ, got, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if typ != tc.typ || !bytes.Equal(got, tc.payload) {
			t.Fatalf("echo = (%d, %q), want (%d, %q)", typ, got, tc.typ, tc.payload)
		}
	}
}

func TestGorillaFragmentedUpload(t *testing.T) {
	ts := startInteropServer(t)

	// A tiny write buffer makes the client split the message across
	// several continuation frames.
	d := websocket.Dialer{WriteBufferSize: 64, HandshakeTimeout: testWait}
	c, _, err := d.Dial(ts.url("/echo"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	msg := bytes.Repeat([]byte("fragmentation "), 64)
	if err := c.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, got, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("reassembled echo is %d bytes, want %d", len(got), len(msg))
	}
}

func TestGorillaFragmentedDownload(t *testing.T) {
	ts := startInteropServer(t)

	c, _, err := websocket.DefaultDialer.Dial(ts.url("/frag"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	msg := "the message travels back in three pieces"
	if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
	typ, got, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.TextMessage || string(got) != msg {
		t.Fatalf("echo = (%d, %q)", typ, got)
	}
}

func TestGorillaCloseHandshake(t *testing.T) {
	ts := startInteropServer(t)

	c, _, err := websocket.DefaultDialer.Dial(ts.url("/echo"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	deadline := time.Now().Add(testWait)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	if err := c.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		t.Fatalf("write close: %v", err)
	}

	_, _, err = c.ReadMessage()
	ce, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("read after close: %v", err)
	}
	if ce.Code != websocket.CloseNormalClosure {
		t.Fatalf("close reply code = %d", ce.Code)
	}

	st := ts.waitClosed(t)
	if st.Code != api.CloseNormal || st.Reason != "done" {
		t.Fatalf("server saw close %+v", st)
	}
}

func TestGorillaPingPong(t *testing.T) {
	ts := startInteropServer(t)

	c, _, err := websocket.DefaultDialer.Dial(ts.url("/echo"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	pong := make(chan string, 1)
	c.SetPongHandler(func(data string) error {
		pong <- data
		return nil
	})

	deadline := time.Now().Add(testWait)
	if err := c.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	// The pong is processed while reading the next data message.
	if err := c.WriteMessage(websocket.TextMessage, []byte("after ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := c.ReadMessage(); err != nil {
		t.Fatalf("read: %v", err)
	}

	select {
	case data := <-pong:
		if data != "keepalive" {
			t.Fatalf("pong payload = %q", data)
		}
	case <-time.After(testWait):
		t.Fatal("no pong received")
	}
}

func TestGorillaCompressedEcho(t *testing.T) {
	ts := startInteropServer(t)

	d := websocket.Dialer{EnableCompression: true, HandshakeTimeout: testWait}
	c, resp, err := d.Dial(ts.url("/echo"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	if ext := resp.Header.Get("Sec-WebSocket-Extensions"); !strings.Contains(ext, "permessage-deflate") {
		t.Fatalf("extensions = %q", ext)
	}

	// Two messages so per-message compressor reset is covered as well.
	msg := strings.Repeat("compressible content ", 200)
	for i := 0; i < 2; i++ {
		if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		_, got, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if string(got) != msg {
			t.Fatalf("round %d corrupted: %d bytes, want %d", i, len(got), len(msg))
		}
	}
}
