// File: core/session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session drives one WebSocket connection. A single read-loop
// goroutine owns parsing, extension decode, demand-gated delivery, and
// the inbound half of the close handshake; outbound writes are
// serialized by a mutex. Handler callbacks are never concurrent.

package core

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/wscore/api"
	"github.com/momentics/wscore/extension"
	"github.com/momentics/wscore/protocol"
)

// SessionConfig carries everything a session needs at construction.
type SessionConfig struct {
	Transport api.Transport
	Handler   api.FrameHandler
	Behavior  api.Behavior

	// Config tunables; zero fields are filled from the defaults.
	Config api.Config

	// Extensions is the negotiated chain in negotiation order.
	Extensions []api.Extension

	// Pool optionally supplies parser payload buffers.
	Pool api.BytePool

	// Stats optionally receives engine counters.
	Stats api.StatsRecorder
}

// Session implements api.CoreSession over a byte-stream transport.
type Session struct {
	transport api.Transport
	handler   api.FrameHandler
	behavior  api.Behavior
	cfg       api.Config

	parser *protocol.Parser
	gen    *protocol.Generator
	chain  *extension.Chain
	pool   api.BytePool
	flow   *flowController
	stats  api.StatsRecorder

	state int32 // api.SessionState

	wmu       sync.Mutex
	wbuf      []byte
	closeSent int32
	pongMark  int32

	// Read-loop private close-handshake state.
	inShut     bool
	peerStatus api.CloseStatus

	done       chan struct{}
	closeOnce  sync.Once
	notifyOnce sync.Once

	tmu        sync.Mutex
	termStatus api.CloseStatus
	termErr    error

	framesIn    int64
	framesOut   int64
	bytesIn     int64
	bytesOut    int64
	messagesIn  int64
	messagesOut int64
}

// NewSession validates the wiring and builds a session. Nothing
// touches the transport until Start.
func NewSession(sc SessionConfig) (*Session, error) {
	if sc.Transport == nil {
		return nil, fmt.Errorf("session: transport is nil")
	}
	if sc.Handler == nil {
		return nil, fmt.Errorf("session: handler is nil")
	}
	if sc.Behavior != api.BehaviorClient && sc.Behavior != api.BehaviorServer {
		return nil, fmt.Errorf("session: behavior %s is not a connection role", sc.Behavior)
	}
	cfg := sc.Config
	cfg.Normalize()

	chain := extension.NewChain(sc.Extensions...)
	var claims protocol.RSVBits
	if chain.UsesRSV1() {
		claims |= protocol.RSV1
	}
	if chain.UsesRSV2() {
		claims |= protocol.RSV2
	}
	if chain.UsesRSV3() {
		claims |= protocol.RSV3
	}

	// Extensions that inflate payloads get the larger message bound so
	// a compression bomb dies inside the chain.
	limit := cfg.MaxTextMessageSize
	if cfg.MaxBinaryMessageSize > limit {
		limit = cfg.MaxBinaryMessageSize
	}
	for _, ext := range sc.Extensions {
		if l, ok := ext.(extension.PayloadLimiter); ok {
			l.SetPayloadLimit(limit)
		}
	}

	return &Session{
		transport: sc.Transport,
		handler:   sc.Handler,
		behavior:  sc.Behavior,
		cfg:       cfg,
		parser: protocol.NewParser(protocol.ParserConfig{
			Behavior:     sc.Behavior,
			MaxFrameSize: cfg.MaxFrameSize,
			RSVClaims:    claims,
			Pool:         sc.Pool,
		}),
		gen:   protocol.NewGenerator(sc.Behavior),
		chain: chain,
		pool:  sc.Pool,
		flow:  newFlowController(!sc.Handler.IsDemanding()),
		stats: sc.Stats,
		state: int32(api.SessionConnecting),
		done:  make(chan struct{}),
		wbuf:  make([]byte, 0, cfg.OutputBufferSize),
	}, nil
}

// Start runs the handler's OnOpen and launches the read loop. An
// OnOpen failure closes the connection with the mapped code before any
// frame is read.
func (s *Session) Start() error {
	if !atomic.CompareAndSwapInt32(&s.state, int32(api.SessionConnecting), int32(api.SessionOpen)) {
		if s.State() == api.SessionClosed {
			s.notify()
		}
		return api.ErrSessionNotOpen
	}
	s.record(api.StatSessionsOpened, 1)

	if err := s.handler.OnOpen(s); err != nil {
		status := api.CloseStatus{
			Code:   api.CloseCodeForError(err),
			Reason: api.TruncateReason(err.Error()),
		}
		s.sendCloseFrame(status)
		s.shutdown(status, err)
		s.notify()
		return err
	}
	go s.run()
	return nil
}

// Done returns a channel closed when the session reaches its terminal
// state.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run() {
	status, err := s.readLoop()
	if err != nil {
		s.sendCloseFrame(status)
	}
	s.shutdown(status, err)
	s.notify()
}

// readLoop alternates between delivering queued frames and reading the
// transport. It returns the terminal status once the close handshake
// completes or the connection fails.
func (s *Session) readLoop() (api.CloseStatus, error) {
	buf := make([]byte, s.cfg.InputBufferSize)
	for {
		for {
			e, ok := s.flow.tryNext()
			if !ok {
				break
			}
			status, terminal, err := s.deliver(e)
			if terminal {
				return status, err
			}
		}

		if s.flow.pending() > 0 {
			// Frames queued, no demand. Reading more only grows the
			// queue, so wait for the handler.
			if err := s.flow.wait(s.done, s.cfg.IdleTimeout); err != nil {
				return s.interruptStatus(err)
			}
			continue
		}

		if s.inShut {
			// Close frame delivered but the terminal return above did
			// not fire: the frame was dropped by a concurrent abort.
			return s.peerStatus, nil
		}

		n, err := s.read(buf)
		if err != nil {
			return s.readFailure(err)
		}
		if err := s.ingest(buf[:n]); err != nil {
			return s.failure(err)
		}
	}
}

func (s *Session) read(buf []byte) (int, error) {
	if t := s.cfg.IdleTimeout; t > 0 {
		if err := s.transport.SetReadDeadline(time.Now().Add(t)); err != nil {
			return 0, err
		}
	}
	return s.transport.Read(buf)
}

// ingest feeds one transport chunk through parser and chain. Bytes
// after a CLOSE frame are ignored.
func (s *Session) ingest(data []byte) error {
	for len(data) > 0 && !s.inShut {
		f, n, err := s.parser.Parse(data)
		if err != nil {
			return err
		}
		data = data[n:]
		if f == nil {
			break
		}
		atomic.AddInt64(&s.framesIn, 1)
		atomic.AddInt64(&s.bytesIn, f.Len())
		s.record(api.StatFramesIn, 1)
		s.record(api.StatBytesIn, f.Len())
		if err := s.decode(f); err != nil {
			return err
		}
	}
	return nil
}

// decode runs one wire frame through the chain and queues the
// emissions. The pooled payload buffer is released here unless an
// emission aliases it, in which case delivery releases it.
func (s *Session) decode(wf *api.Frame) error {
	wire := wf.Payload
	pooled := s.pool != nil && len(wire) > 0
	aliased := false
	err := s.chain.Decode(wf, func(g *api.Frame) error {
		var owned []byte
		if pooled && !aliased && g == wf {
			owned = wire
		}
		if err := s.accept(inFrame{f: g, wire: owned}); err != nil {
			return err
		}
		if owned != nil {
			aliased = true
		}
		return nil
	})
	if pooled && !aliased {
		s.pool.Release(wire)
	}
	return err
}

func (s *Session) accept(e inFrame) error {
	if e.f.Opcode == api.OpClose {
		status, err := api.ParseCloseStatus(e.f.Payload)
		if err != nil {
			return err
		}
		s.peerStatus = status
		s.inShut = true
		s.setStateIf(api.SessionOpen, api.SessionInputClosed)
	}
	s.flow.push(e)
	return nil
}

// deliver runs one frame through the handler and applies the one-shot
// response rules afterwards. It reports the terminal status when the
// frame finished the close handshake or the callback failed.
func (s *Session) deliver(e inFrame) (api.CloseStatus, bool, error) {
	f := e.f
	defer func() {
		if e.wire != nil {
			s.pool.Release(e.wire)
		}
	}()

	if f.Opcode == api.OpPing {
		atomic.StoreInt32(&s.pongMark, 0)
	}
	if f.IsData() && f.Fin {
		atomic.AddInt64(&s.messagesIn, 1)
		s.record(api.StatMessagesIn, 1)
	}

	if err := s.handler.OnFrame(f); err != nil {
		status, e2 := s.failure(err)
		return status, true, e2
	}

	switch f.Opcode {
	case api.OpPing:
		// One-shot auto-response: if the callback did not answer the
		// ping, the engine does.
		if atomic.LoadInt32(&s.pongMark) == 0 && s.IsOutputOpen() {
			_ = s.SendFrame(api.NewPongFrame(f.Payload), false)
		}
	case api.OpClose:
		if atomic.LoadInt32(&s.closeSent) == 0 {
			echo := api.CloseStatus{Code: s.peerStatus.Code}
			if echo.Code == api.NoCode {
				echo.Code = api.CloseNormal
			}
			s.sendCloseFrame(echo)
		}
		return s.peerStatus, true, nil
	}
	return api.CloseStatus{}, false, nil
}

// failure maps an engine error to its terminal status.
func (s *Session) failure(err error) (api.CloseStatus, error) {
	code := api.CloseCodeForError(err)
	if code == api.CloseProtocolError {
		s.record(api.StatProtocolErrors, 1)
	}
	return api.CloseStatus{Code: code, Reason: api.TruncateReason(err.Error())}, err
}

// readFailure maps a transport read error to its terminal status.
func (s *Session) readFailure(err error) (api.CloseStatus, error) {
	if os.IsTimeout(err) {
		return s.interruptStatus(err)
	}
	if err == io.EOF {
		return api.CloseStatus{Code: api.CloseAbnormal, Reason: "connection closed without close frame"},
			fmt.Errorf("transport closed before close handshake: %w", err)
	}
	return api.CloseStatus{Code: api.CloseAbnormal, Reason: "read failure"}, err
}

// interruptStatus maps a timeout or shutdown wake-up. A timeout while
// a close handshake is in flight is the peer stalling, not idleness.
func (s *Session) interruptStatus(err error) (api.CloseStatus, error) {
	if err == api.ErrClosedChannel {
		// Shut down by a concurrent abort; its status already won.
		return api.CloseStatus{Code: api.CloseAbnormal}, nil
	}
	if s.closeInFlight() {
		return api.CloseStatus{Code: api.CloseProtocolError, Reason: "close handshake timeout"}, err
	}
	return api.CloseStatus{Code: api.CloseAbnormal, Reason: "idle timeout"}, err
}

func (s *Session) closeInFlight() bool {
	return s.inShut || atomic.LoadInt32(&s.closeSent) == 1
}

// SendFrame implements api.CoreSession. With batch set the encoded
// bytes wait in the output buffer for Flush or a buffer-full write;
// otherwise they go out immediately. CLOSE frames route through the
// close path regardless.
func (s *Session) SendFrame(f *api.Frame, batch bool) error {
	if f == nil {
		return fmt.Errorf("session: nil frame")
	}
	if f.Opcode == api.OpClose {
		status, err := api.ParseCloseStatus(f.Payload)
		if err != nil {
			return err
		}
		return s.CloseWithStatus(status.Code, status.Reason)
	}

	st := s.State()
	if st == api.SessionConnecting {
		return api.ErrSessionNotOpen
	}
	if !s.IsOutputOpen() {
		return api.ErrClosedChannel
	}
	if f.Opcode == api.OpPong {
		atomic.StoreInt32(&s.pongMark, 1)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if atomic.LoadInt32(&s.closeSent) == 1 {
		return api.ErrClosedChannel
	}
	return s.writeLocked(f, batch)
}

func (s *Session) writeLocked(f *api.Frame, batch bool) error {
	ef, err := s.chain.Encode(f)
	if err != nil {
		return err
	}
	parts := []*api.Frame{ef}
	if s.cfg.AutoFragment && ef.IsData() && len(ef.Payload) > s.cfg.OutputBufferSize {
		parts = protocol.Fragment(ef, s.cfg.OutputBufferSize)
	}
	for _, part := range parts {
		b, err := s.gen.Generate(part)
		if err != nil {
			return err
		}
		s.wbuf = append(s.wbuf, b...)
		atomic.AddInt64(&s.framesOut, 1)
		atomic.AddInt64(&s.bytesOut, part.Len())
		s.record(api.StatFramesOut, 1)
		s.record(api.StatBytesOut, part.Len())
	}
	if f.IsData() && f.Fin {
		atomic.AddInt64(&s.messagesOut, 1)
		s.record(api.StatMessagesOut, 1)
	}
	if batch && len(s.wbuf) < s.cfg.OutputBufferSize {
		return nil
	}
	return s.flushLocked()
}

// Flush implements api.CoreSession.
func (s *Session) Flush() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.flushLocked()
}

func (s *Session) flushLocked() error {
	if len(s.wbuf) == 0 {
		return nil
	}
	if t := s.cfg.WriteTimeout; t > 0 {
		if err := s.transport.SetWriteDeadline(time.Now().Add(t)); err != nil {
			return err
		}
	}
	_, err := s.transport.Write(s.wbuf)
	s.wbuf = s.wbuf[:0]
	if err != nil {
		s.shutdown(api.CloseStatus{Code: api.CloseAbnormal, Reason: "write failure"}, err)
		return err
	}
	return nil
}

// Close implements api.CoreSession.
func (s *Session) Close() error {
	return s.CloseWithStatus(api.CloseNormal, "")
}

// CloseWithStatus implements api.CoreSession. It sends the close frame
// and leaves the read loop waiting for the peer's echo; a second close
// is a no-op. NoCode sends a CLOSE frame with an empty payload.
func (s *Session) CloseWithStatus(code int, reason string) error {
	if code != api.NoCode && !api.IsTransmittableCloseCode(code) {
		return fmt.Errorf("close code %d is not transmittable", code)
	}
	switch s.State() {
	case api.SessionConnecting:
		return api.ErrSessionNotOpen
	case api.SessionClosed:
		return nil
	}
	return s.sendCloseFrame(api.CloseStatus{Code: code, Reason: api.TruncateReason(reason)})
}

// sendCloseFrame writes the one close frame this session will ever
// send. Codes that cannot travel (1005/1006/1015) leave the wire
// untouched.
func (s *Session) sendCloseFrame(status api.CloseStatus) error {
	if status.Code != api.NoCode && !api.IsTransmittableCloseCode(status.Code) {
		return nil
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if !atomic.CompareAndSwapInt32(&s.closeSent, 0, 1) {
		return nil
	}
	s.setStateIf(api.SessionOpen, api.SessionOutputClosed)

	f := status.Frame()
	ef, err := s.chain.Encode(f)
	if err != nil {
		ef = f
	}
	b, err := s.gen.Generate(ef)
	if err != nil {
		return err
	}
	s.wbuf = append(s.wbuf, b...)
	atomic.AddInt64(&s.framesOut, 1)
	atomic.AddInt64(&s.bytesOut, ef.Len())
	s.record(api.StatFramesOut, 1)
	s.record(api.StatBytesOut, ef.Len())
	return s.flushLocked()
}

// Abort implements api.CoreSession: immediate teardown from any
// goroutine, no close frame, batched output discarded.
func (s *Session) Abort() {
	s.shutdown(api.CloseStatus{Code: api.CloseAbnormal, Reason: "session aborted"}, nil)
}

// Demand implements api.CoreSession.
func (s *Session) Demand(n int64) error {
	if !s.handler.IsDemanding() {
		return api.ErrNotDemanding
	}
	if s.State() == api.SessionClosed {
		return api.ErrSessionNotOpen
	}
	return s.flow.demand(n)
}

// shutdown performs the hard close exactly once and records the
// terminal status. Handler notification happens separately so it runs
// on the read-loop goroutine whenever one exists.
func (s *Session) shutdown(status api.CloseStatus, cause error) {
	s.closeOnce.Do(func() {
		s.tmu.Lock()
		s.termStatus, s.termErr = status, cause
		s.tmu.Unlock()
		atomic.StoreInt32(&s.state, int32(api.SessionClosed))
		close(s.done)
		s.transport.Close()
		s.flow.shutdown()
	})
}

// notify delivers the exactly-once OnError/OnClosed pair and frees
// undelivered frames.
func (s *Session) notify() {
	s.notifyOnce.Do(func() {
		s.tmu.Lock()
		status, cause := s.termStatus, s.termErr
		s.tmu.Unlock()

		s.flow.drain(func(e inFrame) {
			if e.wire != nil {
				s.pool.Release(e.wire)
			}
		})
		s.chain.Close()

		if cause != nil {
			s.handler.OnError(cause)
		}
		s.handler.OnClosed(status)
		s.record(api.StatSessionsClosed, 1)
	})
}

// Behavior implements api.CoreSession.
func (s *Session) Behavior() api.Behavior { return s.behavior }

// State returns the current lifecycle state.
func (s *Session) State() api.SessionState {
	return api.SessionState(atomic.LoadInt32(&s.state))
}

// Config implements api.CoreSession.
func (s *Session) Config() api.Config { return s.cfg }

// NegotiatedExtensions implements api.CoreSession.
func (s *Session) NegotiatedExtensions() []string { return s.chain.Headers() }

// IsOutputOpen implements api.CoreSession.
func (s *Session) IsOutputOpen() bool {
	if atomic.LoadInt32(&s.closeSent) == 1 {
		return false
	}
	st := s.State()
	return st == api.SessionOpen || st == api.SessionInputClosed
}

// Stats implements api.CoreSession in the connection-snapshot manner.
func (s *Session) Stats() map[string]int64 {
	return map[string]int64{
		api.StatFramesIn:    atomic.LoadInt64(&s.framesIn),
		api.StatFramesOut:   atomic.LoadInt64(&s.framesOut),
		api.StatBytesIn:     atomic.LoadInt64(&s.bytesIn),
		api.StatBytesOut:    atomic.LoadInt64(&s.bytesOut),
		api.StatMessagesIn:  atomic.LoadInt64(&s.messagesIn),
		api.StatMessagesOut: atomic.LoadInt64(&s.messagesOut),
	}
}

func (s *Session) setStateIf(from, to api.SessionState) {
	atomic.CompareAndSwapInt32(&s.state, int32(from), int32(to))
}

func (s *Session) record(name string, delta int64) {
	if s.stats != nil {
		s.stats.Add(name, delta)
	}
}

var _ api.CoreSession = (*Session)(nil)
