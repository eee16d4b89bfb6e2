// File: adapters/handler.go
// Package adapters
// Author: momentics <momentics@gmail.com>
//
// FrameHandler glue: functional adapter and middleware chaining.

package adapters

import (
	"github.com/momentics/wscore/api"
)

// HandlerFuncs builds an api.FrameHandler from optional functions.
// Nil fields become no-ops, so a test or a small tool only fills in
// what it cares about.
type HandlerFuncs struct {
	Open      func(sess api.CoreSession) error
	Frame     func(f *api.Frame) error
	Error     func(err error)
	Closed    func(status api.CloseStatus)
	Demanding bool
}

func (h HandlerFuncs) OnOpen(sess api.CoreSession) error {
	if h.Open != nil {
		return h.Open(sess)
	}
	return nil
}

func (h HandlerFuncs) OnFrame(f *api.Frame) error {
	if h.Frame != nil {
		return h.Frame(f)
	}
	return nil
}

func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

func (h HandlerFuncs) OnClosed(status api.CloseStatus) {
	if h.Closed != nil {
		h.Closed(status)
	}
}

func (h HandlerFuncs) IsDemanding() bool { return h.Demanding }

// Middleware wraps a FrameHandler with extra behavior.
type Middleware func(api.FrameHandler) api.FrameHandler

// Chain applies middleware around h so the first listed runs outermost.
func Chain(h api.FrameHandler, mws ...Middleware) api.FrameHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
