// File: api/websocket.go
// Author: momentics <momentics@gmail.com>
//
// Message-level listener contracts layered over the frame pipeline.
// The core package adapts these to a FrameHandler, reassembling
// fragments according to the delivery mode chosen at construction.

package api

// MessageListener consumes whole, reassembled messages.
type MessageListener interface {
	// OnText delivers a complete text message, already validated UTF-8.
	OnText(msg string) error

	// OnBinary delivers a complete binary message.
	OnBinary(data []byte) error
}

// PartialListener consumes message fragments as they arrive. fin marks
// the last fragment of the message.
type PartialListener interface {
	OnTextPartial(data []byte, fin bool) error
	OnBinaryPartial(data []byte, fin bool) error
}

// FrameListener consumes validated data frames without reassembly.
type FrameListener interface {
	OnDataFrame(f *Frame) error
}

// ControlListener optionally observes control traffic. Listeners that
// do not implement it still get automatic PONG replies from the engine.
type ControlListener interface {
	OnPing(payload []byte) error
	OnPong(payload []byte) error
}
