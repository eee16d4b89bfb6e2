// File: api/session.go
// Author: momentics <momentics@gmail.com>
//
// CoreSession is the engine-side contract handed to a FrameHandler.
// It carries the outbound path, the close handshake and demand-based
// flow control for a single connection.

package api

// Behavior selects the endpoint role. The role decides the masking
// rules on both directions of the wire.
type Behavior int

const (
	BehaviorUnknown Behavior = iota
	BehaviorClient
	BehaviorServer
)

func (b Behavior) String() string {
	switch b {
	case BehaviorClient:
		return "client"
	case BehaviorServer:
		return "server"
	default:
		return "unknown"
	}
}

// SessionState enumerates the lifecycle of a session. The half-closed
// states track the close handshake: input shuts when the peer's CLOSE
// frame or EOF arrives, output shuts when our CLOSE frame goes out.
type SessionState int

const (
	SessionUnknown SessionState = iota
	SessionConnecting
	SessionOpen
	SessionInputClosed
	SessionOutputClosed
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionOpen:
		return "open"
	case SessionInputClosed:
		return "input-closed"
	case SessionOutputClosed:
		return "output-closed"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CoreSession is the per-connection engine handle. All methods are
// safe for concurrent use; writes are serialized internally in
// submission order.
type CoreSession interface {
	// SendFrame encodes f through the negotiated extension chain and
	// writes it. With batch set the bytes may be coalesced until the
	// next Flush or non-batched send. Fails with ErrClosedChannel once
	// the output side has shut down.
	SendFrame(f *Frame, batch bool) error

	// Flush forces out any batched bytes.
	Flush() error

	// Close starts a normal close handshake (code 1000, no reason).
	Close() error

	// CloseWithStatus starts a close handshake with an explicit code
	// and reason. Codes outside the transmittable range fail with
	// ErrInvalidArgument semantics before any wire activity.
	CloseWithStatus(code int, reason string) error

	// Abort drops the connection immediately: no close frame, batched
	// output discarded, terminal callbacks still delivered exactly once.
	Abort()

	// Demand grants n additional frames of delivery credit to a
	// demanding handler. Negative n fails with ErrInvalidDemand;
	// zero is a no-op. The counter saturates instead of wrapping.
	Demand(n int64) error

	// Behavior returns the endpoint role.
	Behavior() Behavior

	// State returns the current lifecycle state.
	State() SessionState

	// IsOutputOpen reports whether SendFrame can still accept frames.
	IsOutputOpen() bool

	// Config returns the session configuration snapshot.
	Config() Config

	// NegotiatedExtensions lists the accepted extension configs in
	// negotiation order, re-serialized to their header form.
	NegotiatedExtensions() []string

	// Stats exposes the session counters in map form.
	Stats() map[string]int64
}
