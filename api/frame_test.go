package api_test

import (
	"bytes"
	"testing"

	"github.com/momentics/wscore/api"
)

func TestOpcodeClassification(t *testing.T) {
	data := []api.Opcode{api.OpContinuation, api.OpText, api.OpBinary}
	for _, op := range data {
		if !op.IsData() || op.IsControl() {
			t.Errorf("%v must classify as data", op)
		}
	}
	ctrl := []api.Opcode{api.OpClose, api.OpPing, api.OpPong}
	for _, op := range ctrl {
		if !op.IsControl() || op.IsData() {
			t.Errorf("%v must classify as control", op)
		}
	}
	for _, op := range []api.Opcode{0x3, 0x7, 0xB, 0xF} {
		if op.Known() {
			t.Errorf("opcode %#x must be unknown", byte(op))
		}
	}
}

func TestFrameCopyDoesNotAlias(t *testing.T) {
	f := api.NewDataFrame(api.OpBinary, []byte{1, 2, 3})
	dup := f.Copy()
	dup.Payload[0] = 9
	if f.Payload[0] != 1 {
		t.Fatal("Copy must not alias the payload")
	}
	if dup.Opcode != f.Opcode || dup.Fin != f.Fin {
		t.Fatal("Copy must preserve header flags")
	}
}

func TestControlFrameConstructors(t *testing.T) {
	ping := api.NewPingFrame([]byte("hb"))
	if !ping.Fin || ping.Opcode != api.OpPing {
		t.Fatalf("bad ping frame: %+v", ping)
	}
	pong := api.NewPongFrame(ping.Payload)
	if pong.Opcode != api.OpPong || !bytes.Equal(pong.Payload, []byte("hb")) {
		t.Fatalf("bad pong frame: %+v", pong)
	}
	cls := api.NewCloseStatus(api.CloseNormal, "done").Frame()
	if cls.Opcode != api.OpClose || !cls.Fin {
		t.Fatalf("bad close frame: %+v", cls)
	}
}

func TestHasRSV(t *testing.T) {
	f := &api.Frame{Opcode: api.OpText, Fin: true}
	if f.HasRSV() {
		t.Fatal("clean frame must report no RSV")
	}
	f.RSV1 = true
	if !f.HasRSV() {
		t.Fatal("RSV1 must be reported")
	}
}
