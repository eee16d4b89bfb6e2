// File: client/dialer_test.go
// Author: momentics <momentics@gmail.com>

package client

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/momentics/wscore/api"
	"github.com/momentics/wscore/protocol"
	"github.com/momentics/wscore/server"
)

const testWait = 2 * time.Second

// recorder captures client-side callbacks on channels.
type recorder struct {
	mu     sync.Mutex
	sess   api.CoreSession
	frames chan *api.Frame
	errs   chan error
	closed chan api.CloseStatus
}

func newRecorder() *recorder {
	return &recorder{
		frames: make(chan *api.Frame, 16),
		errs:   make(chan error, 4),
		closed: make(chan api.CloseStatus, 1),
	}
}

func (r *recorder) OnOpen(sess api.CoreSession) error {
	r.mu.Lock()
	r.sess = sess
	r.mu.Unlock()
	return nil
}

func (r *recorder) OnFrame(f *api.Frame) error {
	select {
	case r.frames <- f.Copy():
	default:
	}
	return nil
}

func (r *recorder) OnError(err error) {
	select {
	case r.errs <- err:
	default:
	}
}

func (r *recorder) OnClosed(status api.CloseStatus) {
	select {
	case r.closed <- status:
	default:
	}
}

func (r *recorder) IsDemanding() bool { return false }

func (r *recorder) waitFrame(t *testing.T) *api.Frame {
	t.Helper()
	select {
	case f := <-r.frames:
		return f
	case <-time.After(testWait):
		t.Fatal("no frame arrived")
		return nil
	}
}

func (r *recorder) waitClosed(t *testing.T) api.CloseStatus {
	t.Helper()
	select {
	case st := <-r.closed:
		return st
	case <-time.After(testWait):
		t.Fatal("session did not close")
		return api.CloseStatus{}
	}
}

// serverEcho is the server-side handler behind the test endpoints.
type serverEcho struct {
	mu   sync.Mutex
	sess api.CoreSession
}

func (h *serverEcho) OnOpen(sess api.CoreSession) error {
	h.mu.Lock()
	h.sess = sess
	h.mu.Unlock()
	return nil
}

func (h *serverEcho) OnFrame(f *api.Frame) error {
	h.mu.Lock()
	sess := h.sess
	h.mu.Unlock()
	if f.IsData() {
		return sess.SendFrame(f.Copy(), false)
	}
	return nil
}

func (h *serverEcho) OnError(error)            {}
func (h *serverEcho) OnClosed(api.CloseStatus) {}
func (h *serverEcho) IsDemanding() bool        { return false }

// startEchoServer runs a real server with an /echo endpoint.
func startEchoServer(t *testing.T, cfg *server.Config) *server.Server {
	t.Helper()
	if cfg == nil {
		cfg = &server.Config{Addr: "127.0.0.1:0", HandshakeTimeout: testWait}
	}
	srv, err := server.NewServer(cfg, func(r *http.Request) api.FrameHandler {
		if r.URL.Path != "/echo" {
			return nil
		}
		return &serverEcho{}
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })
	return srv
}

// fakeEndpoint answers each connection with whatever respond returns
// for the parsed request.
func fakeEndpoint(t *testing.T, respond func(req *http.Request) string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				req, err := http.ReadRequest(bufio.NewReader(c))
				if err != nil {
					return
				}
				io.WriteString(c, respond(req))
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestDialEcho(t *testing.T) {
	srv := startEchoServer(t, nil)

	d := Dialer{HandshakeTimeout: testWait}
	rec := newRecorder()
	sess, resp, err := d.Dial("ws://"+srv.Addr().String()+"/echo", rec)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d, want 101", resp.StatusCode)
	}
	if sess.Behavior() != api.BehaviorClient {
		t.Fatalf("behavior = %s, want client", sess.Behavior())
	}
	if err := sess.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := sess.SendFrame(api.NewDataFrame(api.OpText, []byte("hello")), false); err != nil {
		t.Fatalf("send: %v", err)
	}
	if f := rec.waitFrame(t); string(f.Payload) != "hello" {
		t.Fatalf("echo = %q", f.Payload)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if st := rec.waitClosed(t); st.Code != api.CloseNormal {
		t.Fatalf("OnClosed = %+v", st)
	}
}

func TestDialSubprotocol(t *testing.T) {
	srv := startEchoServer(t, &server.Config{
		Addr:             "127.0.0.1:0",
		HandshakeTimeout: testWait,
		Subprotocols:     []string{"chat"},
	})

	d := Dialer{HandshakeTimeout: testWait, Subprotocols: []string{"chat", "fallback"}}
	sess, resp, err := d.Dial("ws://"+srv.Addr().String()+"/echo", newRecorder())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sess.Abort()
	if got := resp.Header.Get("Sec-WebSocket-Protocol"); got != "chat" {
		t.Fatalf("subprotocol = %q, want chat", got)
	}
}

func TestDialCompressionEndToEnd(t *testing.T) {
	srv := startEchoServer(t, nil)

	d := Dialer{HandshakeTimeout: testWait, EnableCompression: true}
	rec := newRecorder()
	sess, resp, err := d.Dial("ws://"+srv.Addr().String()+"/echo", rec)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if got := resp.Header.Get("Sec-WebSocket-Extensions"); !strings.HasPrefix(got, "permessage-deflate") {
		t.Fatalf("extensions = %q", got)
	}
	negotiated := sess.NegotiatedExtensions()
	if len(negotiated) != 1 || !strings.HasPrefix(negotiated[0], "permessage-deflate") {
		t.Fatalf("negotiated = %v", negotiated)
	}
	if err := sess.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	msg := strings.Repeat("the quick brown fox ", 64)
	if err := sess.SendFrame(api.NewDataFrame(api.OpText, []byte(msg)), false); err != nil {
		t.Fatalf("send: %v", err)
	}
	if f := rec.waitFrame(t); string(f.Payload) != msg {
		t.Fatalf("compressed round trip corrupted, got %d bytes want %d", len(f.Payload), len(msg))
	}

	sess.Close()
	rec.waitClosed(t)
}

func TestDialRejectsWrongAcceptKey(t *testing.T) {
	addr := fakeEndpoint(t, func(req *http.Request) string {
		return "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: bogus\r\n\r\n"
	})

	d := Dialer{HandshakeTimeout: testWait}
	_, resp, err := d.Dial("ws://"+addr+"/", newRecorder())
	if !errors.Is(err, ErrBadHandshake) {
		t.Fatalf("err = %v, want ErrBadHandshake", err)
	}
	if resp == nil || resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("response not returned for inspection: %+v", resp)
	}
}

func TestDialRejectsNon101(t *testing.T) {
	addr := fakeEndpoint(t, func(req *http.Request) string {
		return "HTTP/1.1 403 Forbidden\r\nContent-Length: 0\r\n\r\n"
	})

	d := Dialer{HandshakeTimeout: testWait}
	_, resp, err := d.Dial("ws://"+addr+"/", newRecorder())
	if !errors.Is(err, ErrBadHandshake) {
		t.Fatalf("err = %v, want ErrBadHandshake", err)
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp = %+v, want 403", resp)
	}
}

func TestDialRejectsUnofferedExtension(t *testing.T) {
	addr := fakeEndpoint(t, func(req *http.Request) string {
		accept := protocol.ComputeAcceptKey(req.Header.Get("Sec-WebSocket-Key"))
		return "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: " +
			accept + "\r\nSec-WebSocket-Extensions: permessage-deflate\r\n\r\n"
	})

	d := Dialer{HandshakeTimeout: testWait}
	_, _, err := d.Dial("ws://"+addr+"/", newRecorder())
	if !errors.Is(err, ErrBadHandshake) {
		t.Fatalf("err = %v, want ErrBadHandshake", err)
	}
	if !strings.Contains(err.Error(), "unoffered") {
		t.Fatalf("err = %v, want unoffered extension complaint", err)
	}
}

func TestDialRejectsUnrequestedSubprotocol(t *testing.T) {
	addr := fakeEndpoint(t, func(req *http.Request) string {
		accept := protocol.ComputeAcceptKey(req.Header.Get("Sec-WebSocket-Key"))
		return "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: " +
			accept + "\r\nSec-WebSocket-Protocol: surprise\r\n\r\n"
	})

	d := Dialer{HandshakeTimeout: testWait}
	_, _, err := d.Dial("ws://"+addr+"/", newRecorder())
	if !errors.Is(err, ErrBadHandshake) {
		t.Fatalf("err = %v, want ErrBadHandshake", err)
	}
}

func TestDialURLValidation(t *testing.T) {
	d := Dialer{}
	if _, _, err := d.Dial("http://example.com/", newRecorder()); err == nil {
		t.Fatal("http scheme accepted")
	}
	if _, _, err := d.Dial("ws://", newRecorder()); err == nil {
		t.Fatal("missing host accepted")
	}
	if _, _, err := d.Dial("::", newRecorder()); err == nil {
		t.Fatal("malformed URL accepted")
	}
}

func TestDialContextCancel(t *testing.T) {
	// An endpoint that accepts but never answers.
	addr := fakeEndpoint(t, func(req *http.Request) string {
		time.Sleep(3 * time.Second)
		return ""
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	d := Dialer{}
	start := time.Now()
	_, _, err := d.DialContext(ctx, "ws://"+addr+"/", newRecorder())
	if err == nil {
		t.Fatal("dial succeeded against a mute endpoint")
	}
	if elapsed := time.Since(start); elapsed > testWait {
		t.Fatalf("cancellation took %v", elapsed)
	}
}

func TestDialForwardsHeaders(t *testing.T) {
	origins := make(chan string, 1)
	srv, err := server.NewServer(&server.Config{Addr: "127.0.0.1:0", HandshakeTimeout: testWait},
		func(r *http.Request) api.FrameHandler {
			origins <- r.Header.Get("Origin")
			return &serverEcho{}
		})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })

	d := Dialer{
		HandshakeTimeout: testWait,
		Header:           http.Header{"Origin": {"http://app.example"}},
	}
	sess, _, err := d.Dial("ws://"+srv.Addr().String()+"/whatever", newRecorder())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sess.Abort()

	select {
	case got := <-origins:
		if got != "http://app.example" {
			t.Fatalf("origin = %q", got)
		}
	case <-time.After(testWait):
		t.Fatal("server never saw the request")
	}
}
