// File: adapters/middleware.go
// Author: momentics <momentics@gmail.com>
//
// Stock middleware: logging, panic recovery, and handler-level
// counters. Each wrapper forwards IsDemanding unchanged so the flow
// control mode stays with the innermost handler.

package adapters

import (
	"fmt"
	"log"

	"github.com/momentics/wscore/api"
)

// Counter names recorded by Metrics.
const (
	StatHandlerFrames = "handler_frames"
	StatHandlerErrors = "handler_errors"
)

// Logging reports session lifecycle transitions and callback failures.
func Logging(next api.FrameHandler) api.FrameHandler {
	return loggingHandler{next: next}
}

type loggingHandler struct {
	next api.FrameHandler
}

func (h loggingHandler) OnOpen(sess api.CoreSession) error {
	log.Printf("[handler] open %s session", sess.Behavior())
	if err := h.next.OnOpen(sess); err != nil {
		log.Printf("[handler] open rejected: %v", err)
		return err
	}
	return nil
}

func (h loggingHandler) OnFrame(f *api.Frame) error {
	if err := h.next.OnFrame(f); err != nil {
		log.Printf("[handler] %s frame rejected: %v", f.Opcode, err)
		return err
	}
	return nil
}

func (h loggingHandler) OnError(err error) {
	log.Printf("[handler] session error: %v", err)
	h.next.OnError(err)
}

func (h loggingHandler) OnClosed(status api.CloseStatus) {
	log.Printf("[handler] closed: code=%d reason=%q", status.Code, status.Reason)
	h.next.OnClosed(status)
}

func (h loggingHandler) IsDemanding() bool { return h.next.IsDemanding() }

// Recovery converts a panic in OnOpen or OnFrame into an error, so a
// handler bug tears down one session with close code 1011 instead of
// the whole process.
func Recovery(next api.FrameHandler) api.FrameHandler {
	return recoveryHandler{next: next}
}

type recoveryHandler struct {
	next api.FrameHandler
}

func (h recoveryHandler) OnOpen(sess api.CoreSession) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.next.OnOpen(sess)
}

func (h recoveryHandler) OnFrame(f *api.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.next.OnFrame(f)
}

func (h recoveryHandler) OnError(err error)           { h.next.OnError(err) }
func (h recoveryHandler) OnClosed(st api.CloseStatus) { h.next.OnClosed(st) }
func (h recoveryHandler) IsDemanding() bool           { return h.next.IsDemanding() }

// Metrics counts delivered frames and callback failures on the given
// recorder. Place it outside Recovery so converted panics are counted
// among the failures.
func Metrics(rec api.StatsRecorder) Middleware {
	return func(next api.FrameHandler) api.FrameHandler {
		return metricsHandler{next: next, rec: rec}
	}
}

type metricsHandler struct {
	next api.FrameHandler
	rec  api.StatsRecorder
}

func (h metricsHandler) OnOpen(sess api.CoreSession) error {
	return h.next.OnOpen(sess)
}

func (h metricsHandler) OnFrame(f *api.Frame) error {
	h.rec.Add(StatHandlerFrames, 1)
	err := h.next.OnFrame(f)
	if err != nil {
		h.rec.Add(StatHandlerErrors, 1)
	}
	return err
}

func (h metricsHandler) OnError(err error) {
	h.next.OnError(err)
}

func (h metricsHandler) OnClosed(st api.CloseStatus) { h.next.OnClosed(st) }
func (h metricsHandler) IsDemanding() bool           { return h.next.IsDemanding() }
