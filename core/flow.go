// File: core/flow.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Demand-based delivery gate between the read loop and the handler.

package core

import (
	"math"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/wscore/api"
)

// inFrame is one decoded frame waiting for delivery. wire is the
// pooled parser buffer to release once the callback returns, nil when
// the payload is not pool-owned.
type inFrame struct {
	f    *api.Frame
	wire []byte
}

// flowController queues decoded frames and meters their delivery by
// handler demand. In auto mode every queued frame is deliverable; in
// demanding mode each delivery spends one credit granted via Demand.
type flowController struct {
	mu     sync.Mutex
	auto   bool
	credit int64
	q      *queue.Queue
	closed bool

	wake chan struct{}
}

func newFlowController(auto bool) *flowController {
	return &flowController{
		auto: auto,
		q:    queue.New(),
		wake: make(chan struct{}, 1),
	}
}

// push queues a decoded frame. Frames pushed after shutdown are
// dropped; the session is past delivering them.
func (fc *flowController) push(e inFrame) {
	fc.mu.Lock()
	if !fc.closed {
		fc.q.Add(e)
	}
	fc.mu.Unlock()
	fc.signal()
}

// tryNext pops the head frame when one is queued and demand allows.
func (fc *flowController) tryNext() (inFrame, bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.closed || fc.q.Length() == 0 {
		return inFrame{}, false
	}
	if !fc.auto {
		if fc.credit == 0 {
			return inFrame{}, false
		}
		if fc.credit != math.MaxInt64 {
			fc.credit--
		}
	}
	return fc.q.Remove().(inFrame), true
}

// pending returns the number of queued frames.
func (fc *flowController) pending() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.q.Length()
}

// demand grants n delivery credits, saturating at MaxInt64. Zero is a
// no-op; negative demand is rejected.
func (fc *flowController) demand(n int64) error {
	if n < 0 {
		return api.ErrInvalidDemand
	}
	if n == 0 {
		return nil
	}
	fc.mu.Lock()
	if c := fc.credit + n; c < fc.credit {
		fc.credit = math.MaxInt64
	} else {
		fc.credit = c
	}
	fc.mu.Unlock()
	fc.signal()
	return nil
}

// wait blocks until new demand or data arrives, the session closes, or
// the timeout passes. A zero timeout waits indefinitely.
func (fc *flowController) wait(done <-chan struct{}, timeout time.Duration) error {
	var timer *time.Timer
	var expired <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		expired = timer.C
		defer timer.Stop()
	}
	select {
	case <-fc.wake:
		return nil
	case <-done:
		return api.ErrClosedChannel
	case <-expired:
		return &api.TimeoutError{Phase: "demand"}
	}
}

// shutdown releases any waiter. Queued frames stay until drain.
func (fc *flowController) shutdown() {
	fc.mu.Lock()
	fc.closed = true
	fc.mu.Unlock()
	fc.signal()
}

// drain empties the queue through fn, releasing undelivered frames.
func (fc *flowController) drain(fn func(inFrame)) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for fc.q.Length() > 0 {
		fn(fc.q.Remove().(inFrame))
	}
}

func (fc *flowController) signal() {
	select {
	case fc.wake <- struct{}{}:
	default:
	}
}
