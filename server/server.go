// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Standalone WebSocket server: owns a TCP listener, reads the upgrade
// request off each raw connection, and runs one session per
// connection. Session tunables come from the control plane snapshot
// at handshake time, so a config reload applies to new connections
// without a restart.

package server

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/wscore/api"
	"github.com/momentics/wscore/control"
	"github.com/momentics/wscore/core"
	"github.com/momentics/wscore/extension"
	"github.com/momentics/wscore/pool"
	"github.com/momentics/wscore/transport/tcp"
)

// Config holds the standalone server parameters.
type Config struct {
	Addr             string        // TCP bind address, e.g. ":9000"
	ReusePort        bool          // balance accepts across processes (linux)
	NoDelay          bool          // disable Nagle on accepted connections
	KeepAlive        time.Duration // TCP keep-alive period, 0 disables
	HandshakeTimeout time.Duration // bound on reading and answering the upgrade
	Subprotocols     []string      // supported subprotocols, preference order
	Session          api.Config    // per-session tunables
}

// DefaultConfig returns the baseline standalone configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:             ":9000",
		NoDelay:          true,
		KeepAlive:        3 * time.Minute,
		HandshakeTimeout: 10 * time.Second,
	}
}

// HandlerFactory builds the frame handler for one accepted upgrade.
// Returning nil rejects the request with 404.
type HandlerFactory func(r *http.Request) api.FrameHandler

// Server accepts TCP connections and speaks the WebSocket handshake
// on them directly, without net/http in the data path.
type Server struct {
	cfg     *Config
	factory HandlerFactory
	ctrl    *control.Control
	reg     *extension.Registry
	pool    api.BytePool

	tcp *tcp.Server

	mu       sync.Mutex
	sessions map[*core.Session]struct{}
	closed   int32
}

// Option customizes server construction.
type Option func(*Server)

// WithRegistry replaces the bundled extension registry.
func WithRegistry(reg *extension.Registry) Option {
	return func(s *Server) { s.reg = reg }
}

// WithPool replaces the default payload buffer pool.
func WithPool(p api.BytePool) Option {
	return func(s *Server) { s.pool = p }
}

// WithControl shares an existing control plane instead of a private
// one, pooling stats across servers.
func WithControl(c *control.Control) Option {
	return func(s *Server) { s.ctrl = c }
}

// NewServer binds the listener and prepares the accept pipeline. The
// returned server is not serving yet; call Serve.
func NewServer(cfg *Config, factory HandlerFactory, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if factory == nil {
		return nil, fmt.Errorf("server: handler factory is nil")
	}
	s := &Server{
		cfg:      cfg,
		factory:  factory,
		sessions: make(map[*core.Session]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.ctrl == nil {
		s.ctrl = control.New(cfg.Session)
	}
	if s.reg == nil {
		s.reg = extension.NewRegistry(api.BehaviorServer)
	}
	if s.pool == nil {
		s.pool = pool.Default()
	}
	ts, err := tcp.Listen(tcp.Config{
		Addr:      cfg.Addr,
		Handler:   s.handle,
		ReusePort: cfg.ReusePort,
		NoDelay:   cfg.NoDelay,
		KeepAlive: cfg.KeepAlive,
	})
	if err != nil {
		return nil, err
	}
	s.tcp = ts
	return s, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr { return s.tcp.Addr() }

// Control exposes the runtime control plane: config snapshots, reload
// hooks, aggregated stats.
func (s *Server) Control() *control.Control { return s.ctrl }

// Serve accepts connections until Close or Shutdown.
func (s *Server) Serve() error { return s.tcp.Serve() }

// handle runs the upgrade and the session lifecycle for one accepted
// connection.
func (s *Server) handle(conn net.Conn) {
	if t := s.cfg.HandshakeTimeout; t > 0 {
		conn.SetReadDeadline(time.Now().Add(t))
	}
	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		conn.Close()
		return
	}
	req.RemoteAddr = conn.RemoteAddr().String()
	// The session owns deadlines from here.
	conn.SetReadDeadline(time.Time{})

	handler := s.factory(req)
	if handler == nil {
		writeHTTPError(conn, &HandshakeError{Status: http.StatusNotFound, Reason: "no websocket endpoint at " + req.URL.Path})
		conn.Close()
		return
	}

	up := Upgrader{
		Config:           s.ctrl.GetConfig(),
		HandshakeTimeout: s.cfg.HandshakeTimeout,
		Subprotocols:     s.cfg.Subprotocols,
		Registry:         s.reg,
		Pool:             s.pool,
		Stats:            s.ctrl.Recorder(),
	}
	sess, err := up.UpgradeConn(conn, br, req, nil, handler)
	if err != nil {
		log.Printf("server: %s handshake: %v", conn.RemoteAddr(), err)
		return
	}

	// Track before the closed check so a concurrent Close either sees
	// the session in its snapshot or we see the flag here.
	s.track(sess)
	defer s.untrack(sess)
	if atomic.LoadInt32(&s.closed) == 1 {
		sess.Abort()
		return
	}
	if err := sess.Start(); err != nil {
		return
	}
	<-sess.Done()
}

// Close stops the listener and aborts every active session.
func (s *Server) Close() error {
	atomic.StoreInt32(&s.closed, 1)
	err := s.tcp.Close()
	for _, sess := range s.snapshot() {
		sess.Abort()
	}
	return err
}

// Shutdown stops the listener and closes sessions gracefully: each
// gets a going-away close, and the call waits for the close
// handshakes until ctx expires, then aborts the stragglers.
func (s *Server) Shutdown(ctx context.Context) error {
	atomic.StoreInt32(&s.closed, 1)
	err := s.tcp.Close()
	active := s.snapshot()
	for _, sess := range active {
		_ = sess.CloseWithStatus(api.CloseGoingAway, "server shutting down")
	}
	for _, sess := range active {
		select {
		case <-sess.Done():
		case <-ctx.Done():
			for _, rest := range s.snapshot() {
				rest.Abort()
			}
			return ctx.Err()
		}
	}
	return err
}

func (s *Server) track(sess *core.Session) {
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(sess *core.Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

func (s *Server) snapshot() []*core.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*core.Session, 0, len(s.sessions))
	for sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}
