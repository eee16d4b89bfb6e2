package core

import (
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/momentics/wscore/api"
)

func dataFrame(s string) inFrame {
	return inFrame{f: api.NewDataFrame(api.OpText, []byte(s))}
}

func TestFlowAutoModeDeliversImmediately(t *testing.T) {
	fc := newFlowController(true)
	fc.push(dataFrame("a"))
	fc.push(dataFrame("b"))

	for _, want := range []string{"a", "b"} {
		e, ok := fc.tryNext()
		if !ok || string(e.f.Payload) != want {
			t.Fatalf("want %q, got %v %v", want, e, ok)
		}
	}
	if _, ok := fc.tryNext(); ok {
		t.Fatal("empty queue must not deliver")
	}
}

func TestFlowDemandGatesDelivery(t *testing.T) {
	fc := newFlowController(false)
	for _, s := range []string{"a", "b", "c"} {
		fc.push(dataFrame(s))
	}

	if _, ok := fc.tryNext(); ok {
		t.Fatal("no credit, nothing may deliver")
	}
	if err := fc.demand(2); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"a", "b"} {
		e, ok := fc.tryNext()
		if !ok || string(e.f.Payload) != want {
			t.Fatalf("want %q, got %v %v", want, e, ok)
		}
	}
	if _, ok := fc.tryNext(); ok {
		t.Fatal("credit exhausted, third frame must wait")
	}
	if err := fc.demand(1); err != nil {
		t.Fatal(err)
	}
	if e, ok := fc.tryNext(); !ok || string(e.f.Payload) != "c" {
		t.Fatalf("want c, got %v %v", e, ok)
	}
}

func TestFlowDemandValidation(t *testing.T) {
	fc := newFlowController(false)
	if err := fc.demand(-1); !errors.Is(err, api.ErrInvalidDemand) {
		t.Fatalf("negative demand: %v", err)
	}
	if err := fc.demand(0); err != nil {
		t.Fatalf("zero demand is a no-op: %v", err)
	}
}

func TestFlowDemandSaturates(t *testing.T) {
	fc := newFlowController(false)
	if err := fc.demand(math.MaxInt64); err != nil {
		t.Fatal(err)
	}
	if err := fc.demand(math.MaxInt64); err != nil {
		t.Fatal(err)
	}
	fc.push(dataFrame("x"))
	if _, ok := fc.tryNext(); !ok {
		t.Fatal("saturated credit must still deliver")
	}
	fc.push(dataFrame("y"))
	if _, ok := fc.tryNext(); !ok {
		t.Fatal("saturated credit must not be consumed")
	}
}

func TestFlowWaitWakesOnDemand(t *testing.T) {
	fc := newFlowController(false)
	done := make(chan struct{})

	if err := fc.demand(1); err != nil {
		t.Fatal(err)
	}
	if err := fc.wait(done, time.Second); err != nil {
		t.Fatalf("pre-granted demand must wake the waiter: %v", err)
	}
}

func TestFlowWaitReleasedByShutdownSignal(t *testing.T) {
	fc := newFlowController(false)
	done := make(chan struct{})
	close(done)
	if err := fc.wait(done, time.Second); !errors.Is(err, api.ErrClosedChannel) {
		t.Fatalf("want ErrClosedChannel, got %v", err)
	}
}

func TestFlowWaitTimesOut(t *testing.T) {
	fc := newFlowController(false)
	done := make(chan struct{})
	err := fc.wait(done, 10*time.Millisecond)
	if err == nil || !os.IsTimeout(err) {
		t.Fatalf("want timeout, got %v", err)
	}
}

func TestFlowShutdownStopsIntake(t *testing.T) {
	fc := newFlowController(true)
	fc.push(dataFrame("kept"))
	fc.shutdown()
	fc.push(dataFrame("dropped"))

	if _, ok := fc.tryNext(); ok {
		t.Fatal("closed controller must not deliver")
	}
	var drained []string
	fc.drain(func(e inFrame) { drained = append(drained, string(e.f.Payload)) })
	if len(drained) != 1 || drained[0] != "kept" {
		t.Fatalf("drain mismatch: %v", drained)
	}
}
