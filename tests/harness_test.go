// File: tests/harness_test.go
// Author: momentics <momentics@gmail.com>
//
// Shared fixture for the interop suite: a real server with an echo
// endpoint and a fragmenting endpoint, exercised by third-party
// WebSocket clients.

package tests

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/momentics/wscore/api"
	"github.com/momentics/wscore/server"
)

const testWait = 2 * time.Second

type testServer struct {
	srv    *server.Server
	closed chan api.CloseStatus
}

func startInteropServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{closed: make(chan api.CloseStatus, 16)}
	srv, err := server.NewServer(&server.Config{
		Addr:             "127.0.0.1:0",
		NoDelay:          true,
		HandshakeTimeout: testWait,
	}, func(r *http.Request) api.FrameHandler {
		switch r.URL.Path {
		case "/echo":
			return &echoEndpoint{closed: ts.closed}
		case "/frag":
			return &fragEndpoint{closed: ts.closed}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts.srv = srv
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })
	return ts
}

func (ts *testServer) url(path string) string {
	return "ws://" + ts.srv.Addr().String() + path
}

// waitClosed returns the close status the server-side handler observed.
func (ts *testServer) waitClosed(t *testing.T) api.CloseStatus {
	t.Helper()
	select {
	case st := <-ts.closed:
		return st
	case <-time.After(testWait):
		t.Fatal("server session did not close")
		return api.CloseStatus{}
	}
}

// echoEndpoint echoes every data message back unchanged.
type echoEndpoint struct {
	mu     sync.Mutex
	sess   api.CoreSession
	closed chan<- api.CloseStatus
}

func (h *echoEndpoint) OnOpen(sess api.CoreSession) error {
	h.mu.Lock()
	h.sess = sess
	h.mu.Unlock()
	return nil
}

func (h *echoEndpoint) OnFrame(f *api.Frame) error {
	h.mu.Lock()
	sess := h.sess
	h.mu.Unlock()
	if f.IsData() {
		return sess.SendFrame(f.Copy(), false)
	}
	return nil
}

func (h *echoEndpoint) OnError(error) {}

func (h *echoEndpoint) OnClosed(status api.CloseStatus) {
	select {
	case h.closed <- status:
	default:
	}
}

func (h *echoEndpoint) IsDemanding() bool { return false }

// fragEndpoint echoes each data message split into three fragments, so
// peers prove their reassembly against our continuation framing.
type fragEndpoint struct {
	mu     sync.Mutex
	sess   api.CoreSession
	closed chan<- api.CloseStatus
}

func (h *fragEndpoint) OnOpen(sess api.CoreSession) error {
	h.mu.Lock()
	h.sess = sess
	h.mu.Unlock()
	return nil
}

func (h *fragEndpoint) OnFrame(f *api.Frame) error {
	h.mu.Lock()
	sess := h.sess
	h.mu.Unlock()
	if !f.IsData() {
		return nil
	}
	p := f.Payload
	third := len(p) / 3
	parts := [][]byte{p[:third], p[third : 2*third], p[2*third:]}
	ops := []api.Opcode{f.Opcode, api.OpContinuation, api.OpContinuation}
	for i, part := range parts {
		dup := make([]byte, len(part))
		copy(dup, part)
		fr := &api.Frame{Fin: i == len(parts)-1, Opcode: ops[i], Payload: dup}
		if err := sess.SendFrame(fr, false); err != nil {
			return err
		}
	}
	return nil
}

func (h *fragEndpoint) OnError(error) {}

func (h *fragEndpoint) OnClosed(status api.CloseStatus) {
	select {
	case h.closed <- status:
	default:
	}
}

func (h *fragEndpoint) IsDemanding() bool { return false }
