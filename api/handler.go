// File: api/handler.go
// Package api defines the FrameHandler contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// FrameHandler receives the lifecycle of one session. The engine calls
// OnOpen at most once, then OnFrame strictly sequentially in wire
// order, then exactly one OnError (only if the session failed)
// followed by exactly one OnClosed. Callbacks never run concurrently
// for the same session.
//
// A non-nil error return from OnOpen or OnFrame is a callback failure:
// the engine stops delivery and tears the session down with the close
// code derived from the error.
type FrameHandler interface {
	// OnOpen hands over the session once it is ready for traffic.
	// The handler may retain sess for the session lifetime.
	OnOpen(sess CoreSession) error

	// OnFrame delivers one decoded frame. The payload is owned by the
	// handler only until it returns; the engine may reuse it after.
	OnFrame(f *Frame) error

	// OnError reports the failure that is about to close the session.
	OnError(err error)

	// OnClosed reports the final close status. Always the last call.
	OnClosed(status CloseStatus)

	// IsDemanding selects the flow-control mode at session start.
	// False: the engine grants one frame of demand after each
	// successful OnFrame. True: the handler calls Demand itself.
	IsDemanding() bool
}
