// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"
)

// Config holds the listener settings.
type Config struct {
	// Addr is the TCP address to bind, e.g. ":9001".
	Addr string

	// Handler receives each accepted and tuned connection on its own
	// goroutine.
	Handler func(net.Conn)

	// ReusePort sets SO_REUSEPORT on platforms that have it, so
	// several processes can share the listening address.
	ReusePort bool

	// NoDelay disables Nagle batching. Frame batching happens in the
	// session layer, so small writes should leave immediately.
	NoDelay bool

	// KeepAlive is the TCP keep-alive period, zero for the OS default.
	KeepAlive time.Duration
}

// Server runs the accept loop.
type Server struct {
	cfg Config
	ln  net.Listener
}

// Listen binds the address with the configured socket options.
func Listen(cfg Config) (*Server, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("tcp: handler is nil")
	}
	lc := net.ListenConfig{Control: listenControl(cfg)}
	ln, err := lc.Listen(context.Background(), "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("tcp listen failed: %w", err)
	}
	return &Server{cfg: cfg, ln: ln}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts until Close. Transient accept failures back off
// briefly instead of spinning.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("tcp accept: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		s.tune(conn)
		go s.cfg.Handler(conn)
	}
}

// Close stops the accept loop. Connections already handed off keep
// running.
func (s *Server) Close() error {
	return s.ln.Close()
}

func (s *Server) tune(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if s.cfg.NoDelay {
		if err := tc.SetNoDelay(true); err != nil {
			log.Printf("tcp nodelay: %v", err)
		}
	}
	if s.cfg.KeepAlive > 0 {
		if err := tc.SetKeepAlive(true); err == nil {
			_ = tc.SetKeepAlivePeriod(s.cfg.KeepAlive)
		}
	}
}
