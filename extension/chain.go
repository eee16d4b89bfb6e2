// File: extension/chain.go
// Package extension implements the per-connection transform chain.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package extension

import (
	"github.com/momentics/wscore/api"
)

// Chain applies the negotiated extensions to both frame directions.
// Members are held in negotiation order; the inbound side walks them
// in reverse so the last negotiated member touches wire frames first.
//
// The chain is also the inbound sequencing gate: every frame emitted
// toward the application is checked against the fragmentation rules,
// whether it came from a member or straight from the codec.
type Chain struct {
	exts []api.Extension

	// inMessage tracks an open data message on the inbound side.
	inMessage bool
}

// NewChain builds a chain over the given members. An empty chain is
// valid and still enforces inbound sequencing.
func NewChain(exts ...api.Extension) *Chain {
	return &Chain{exts: exts}
}

// Len returns the number of members.
func (c *Chain) Len() int { return len(c.exts) }

// Names lists the member names in negotiation order.
func (c *Chain) Names() []string {
	out := make([]string, len(c.exts))
	for i, e := range c.exts {
		out[i] = e.Name()
	}
	return out
}

// Headers lists the members in negotiation order, serialized back to
// their Sec-WebSocket-Extensions form. Members without a negotiated
// config contribute their bare name.
func (c *Chain) Headers() []string {
	out := make([]string, len(c.exts))
	for i, e := range c.exts {
		if n, ok := e.(interface{ NegotiatedConfig() Config }); ok {
			out[i] = n.NegotiatedConfig().String()
		} else {
			out[i] = e.Name()
		}
	}
	return out
}

// UsesRSV1 reports whether any member claims RSV1.
func (c *Chain) UsesRSV1() bool {
	for _, e := range c.exts {
		if e.UsesRSV1() {
			return true
		}
	}
	return false
}

// UsesRSV2 reports whether any member claims RSV2.
func (c *Chain) UsesRSV2() bool {
	for _, e := range c.exts {
		if e.UsesRSV2() {
			return true
		}
	}
	return false
}

// UsesRSV3 reports whether any member claims RSV3.
func (c *Chain) UsesRSV3() bool {
	for _, e := range c.exts {
		if e.UsesRSV3() {
			return true
		}
	}
	return false
}

// Decode runs an inbound frame wire-to-application through the chain.
// Members may emit zero or more frames; each emission is sequence
// checked before it reaches emit.
func (c *Chain) Decode(f *api.Frame, emit func(*api.Frame) error) error {
	return c.decodeAt(len(c.exts)-1, f, emit)
}

func (c *Chain) decodeAt(i int, f *api.Frame, emit func(*api.Frame) error) error {
	if i < 0 {
		if err := c.checkSequence(f); err != nil {
			return err
		}
		return emit(f)
	}
	return c.exts[i].Decode(f, func(g *api.Frame) error {
		return c.decodeAt(i-1, g, emit)
	})
}

// checkSequence enforces the fragmentation rules on the application
// side of the chain.
func (c *Chain) checkSequence(f *api.Frame) error {
	if f.IsControl() {
		if !f.Fin {
			return &api.ProtocolError{Reason: "fragmented control frame"}
		}
		if len(f.Payload) > api.MaxControlPayload {
			return &api.ProtocolError{Reason: "control frame payload over 125 bytes"}
		}
		return nil
	}
	switch f.Opcode {
	case api.OpContinuation:
		if !c.inMessage {
			return &api.ProtocolError{Reason: "continuation frame without a message"}
		}
	case api.OpText, api.OpBinary:
		if c.inMessage {
			return &api.ProtocolError{Reason: "new message before final frame of the previous one"}
		}
	}
	c.inMessage = !f.Fin
	return nil
}

// Encode runs an outbound frame application-to-wire through the chain.
func (c *Chain) Encode(f *api.Frame) (*api.Frame, error) {
	g := f
	for _, e := range c.exts {
		var err error
		if g, err = e.Encode(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Close tears the members down in reverse negotiation order. The
// first failure is reported, but every member is still closed.
func (c *Chain) Close() error {
	var first error
	for i := len(c.exts) - 1; i >= 0; i-- {
		if err := c.exts[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
