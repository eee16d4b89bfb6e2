// File: core/sink.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frame-to-message reassembly in front of an application listener.

package core

import (
	"bytes"
	"fmt"

	"github.com/momentics/wscore/api"
)

// DeliveryMode selects how a MessageSink hands data to its listener.
type DeliveryMode int

const (
	// WholeMessage buffers fragments and delivers complete messages.
	WholeMessage DeliveryMode = iota
	// PartialMessage delivers each fragment as it arrives with its FIN
	// flag. Text fragments may split a codepoint; validation still
	// spans the whole message.
	PartialMessage
	// RawFrame delivers data frames untouched; reassembly and UTF-8
	// validation are skipped. The listener is the validator.
	RawFrame
)

// String returns a human-readable mode name.
func (m DeliveryMode) String() string {
	switch m {
	case WholeMessage:
		return "whole"
	case PartialMessage:
		return "partial"
	case RawFrame:
		return "raw"
	default:
		return "unknown"
	}
}

// MessageSink adapts a message-level listener to api.FrameHandler. It
// reassembles fragment sequences, enforces the per-kind size limits,
// and validates TEXT payloads incrementally. Payload slices handed to
// the listener are owned by the callback for its duration only.
type MessageSink struct {
	mode    DeliveryMode
	whole   api.MessageListener
	partial api.PartialListener
	frames  api.FrameListener
	control api.ControlListener

	maxText   int64
	maxBinary int64

	session api.CoreSession

	open bool
	text bool
	size int64
	buf  bytes.Buffer
	utf8 utf8Validator
}

// NewMessageSink builds a sink for the given mode. The listener must
// implement the interface the mode delivers to: api.MessageListener
// for WholeMessage, api.PartialListener for PartialMessage, and
// api.FrameListener for RawFrame. A listener additionally implementing
// api.ControlListener receives ping/pong visibility.
func NewMessageSink(listener interface{}, mode DeliveryMode, cfg api.Config) (*MessageSink, error) {
	cfg.Normalize()
	s := &MessageSink{
		mode:      mode,
		maxText:   cfg.MaxTextMessageSize,
		maxBinary: cfg.MaxBinaryMessageSize,
	}
	var ok bool
	switch mode {
	case WholeMessage:
		s.whole, ok = listener.(api.MessageListener)
	case PartialMessage:
		s.partial, ok = listener.(api.PartialListener)
	case RawFrame:
		s.frames, ok = listener.(api.FrameListener)
	default:
		return nil, fmt.Errorf("unknown delivery mode %d", mode)
	}
	if !ok {
		return nil, fmt.Errorf("listener does not implement the %s-mode interface", mode)
	}
	s.control, _ = listener.(api.ControlListener)
	return s, nil
}

// Session returns the session bound at OnOpen, nil before that.
func (s *MessageSink) Session() api.CoreSession { return s.session }

// OnOpen implements api.FrameHandler.
func (s *MessageSink) OnOpen(sess api.CoreSession) error {
	s.session = sess
	return nil
}

// IsDemanding implements api.FrameHandler; sinks run in auto mode.
func (s *MessageSink) IsDemanding() bool { return false }

// OnError implements api.FrameHandler, forwarding to the listener when
// it cares.
func (s *MessageSink) OnError(err error) {
	if l, ok := s.listenerHook().(interface{ OnError(error) }); ok {
		l.OnError(err)
	}
}

// OnClosed implements api.FrameHandler.
func (s *MessageSink) OnClosed(status api.CloseStatus) {
	if l, ok := s.listenerHook().(interface{ OnClosed(api.CloseStatus) }); ok {
		l.OnClosed(status)
	}
}

func (s *MessageSink) listenerHook() interface{} {
	switch s.mode {
	case WholeMessage:
		return s.whole
	case PartialMessage:
		return s.partial
	default:
		return s.frames
	}
}

// OnFrame implements api.FrameHandler.
func (s *MessageSink) OnFrame(f *api.Frame) error {
	if f.IsControl() {
		return s.onControl(f)
	}
	if s.mode == RawFrame {
		return s.frames.OnDataFrame(f)
	}
	return s.onData(f)
}

func (s *MessageSink) onControl(f *api.Frame) error {
	if s.control == nil {
		return nil
	}
	switch f.Opcode {
	case api.OpPing:
		return s.control.OnPing(f.Payload)
	case api.OpPong:
		return s.control.OnPong(f.Payload)
	}
	return nil
}

func (s *MessageSink) onData(f *api.Frame) error {
	if f.Opcode == api.OpContinuation {
		if !s.open {
			return &api.ProtocolError{Reason: "continuation frame without a message"}
		}
	} else {
		if s.open {
			return &api.ProtocolError{Reason: "new message before final frame of the previous one"}
		}
		s.open = true
		s.text = f.Opcode == api.OpText
		s.size = 0
		s.utf8.Reset()
	}

	s.size += int64(len(f.Payload))
	if limit := s.limit(); limit > 0 && s.size > limit {
		err := &api.MessageTooLargeError{Kind: s.kind(), Size: s.size, Limit: limit}
		s.reset()
		return err
	}
	if s.text {
		if err := s.utf8.Accept(f.Payload); err != nil {
			s.reset()
			return err
		}
		if f.Fin && !s.utf8.Complete() {
			s.reset()
			return &api.BadPayloadError{Reason: "message ends inside a UTF-8 sequence"}
		}
	}

	if s.mode == PartialMessage {
		return s.deliverPartial(f)
	}
	return s.deliverWhole(f)
}

func (s *MessageSink) deliverPartial(f *api.Frame) error {
	fin := f.Fin
	text := s.text
	if fin {
		s.reset()
	}
	if text {
		return s.partial.OnTextPartial(f.Payload, fin)
	}
	return s.partial.OnBinaryPartial(f.Payload, fin)
}

func (s *MessageSink) deliverWhole(f *api.Frame) error {
	// Single-frame message: skip the assembly buffer.
	if f.Fin && s.buf.Len() == 0 {
		payload := f.Payload
		text := s.text
		s.reset()
		if text {
			return s.whole.OnText(string(payload))
		}
		return s.whole.OnBinary(payload)
	}

	s.buf.Write(f.Payload)
	if !f.Fin {
		return nil
	}
	// Truncating the buffer keeps the bytes intact until the next
	// message writes over them; the listener owns the slice only for
	// the duration of the callback.
	payload := s.buf.Bytes()
	text := s.text
	s.reset()
	if text {
		return s.whole.OnText(string(payload))
	}
	return s.whole.OnBinary(payload)
}

func (s *MessageSink) limit() int64 {
	if s.text {
		return s.maxText
	}
	return s.maxBinary
}

func (s *MessageSink) kind() string {
	if s.text {
		return "text"
	}
	return "binary"
}

func (s *MessageSink) reset() {
	s.open = false
	s.size = 0
	s.buf.Reset()
	s.utf8.Reset()
}

var _ api.FrameHandler = (*MessageSink)(nil)
