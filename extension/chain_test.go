package extension_test

import (
	"testing"

	"github.com/momentics/wscore/api"
	"github.com/momentics/wscore/extension"
)

// tagExt appends its tag byte to every data payload it sees, making
// the traversal order observable.
type tagExt struct {
	tag    byte
	closed bool
	rsv1   bool
}

func (e *tagExt) Name() string   { return "tag-" + string(e.tag) }
func (e *tagExt) UsesRSV1() bool { return e.rsv1 }
func (e *tagExt) UsesRSV2() bool { return false }
func (e *tagExt) UsesRSV3() bool { return false }
func (e *tagExt) Close() error   { e.closed = true; return nil }

func (e *tagExt) Decode(f *api.Frame, emit func(*api.Frame) error) error {
	if f.IsData() {
		f.Payload = append(f.Payload, e.tag)
	}
	return emit(f)
}

func (e *tagExt) Encode(f *api.Frame) (*api.Frame, error) {
	if f.IsData() {
		f.Payload = append(f.Payload, e.tag)
	}
	return f, nil
}

func collect(frames *[]*api.Frame) func(*api.Frame) error {
	return func(f *api.Frame) error {
		*frames = append(*frames, f)
		return nil
	}
}

func TestChainEncodeOrderIsNegotiationOrder(t *testing.T) {
	chain := extension.NewChain(&tagExt{tag: 'a'}, &tagExt{tag: 'b'})
	out, err := chain.Encode(&api.Frame{Fin: true, Opcode: api.OpText, Payload: []byte("x")})
	if err != nil {
		t.Fatal(err)
	}
	if string(out.Payload) != "xab" {
		t.Fatalf("encode order wrong: %q", out.Payload)
	}
}

func TestChainDecodeOrderIsReversed(t *testing.T) {
	chain := extension.NewChain(&tagExt{tag: 'a'}, &tagExt{tag: 'b'})
	var got []*api.Frame
	err := chain.Decode(&api.Frame{Fin: true, Opcode: api.OpText, Payload: []byte("x")}, collect(&got))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || string(got[0].Payload) != "xba" {
		t.Fatalf("decode order wrong: %+v", got)
	}
}

func TestChainSequenceGateRejectsLoneContinuation(t *testing.T) {
	chain := extension.NewChain()
	var got []*api.Frame
	err := chain.Decode(&api.Frame{Fin: true, Opcode: api.OpContinuation}, collect(&got))
	if err == nil {
		t.Fatal("continuation without a message must fail")
	}
}

func TestChainSequenceGateRejectsInterleaving(t *testing.T) {
	chain := extension.NewChain()
	var got []*api.Frame
	if err := chain.Decode(&api.Frame{Fin: false, Opcode: api.OpText, Payload: []byte("a")}, collect(&got)); err != nil {
		t.Fatal(err)
	}
	err := chain.Decode(&api.Frame{Fin: true, Opcode: api.OpBinary}, collect(&got))
	if err == nil {
		t.Fatal("new message before FIN must fail")
	}
}

func TestChainSequenceGateAcceptsFragmentsAndControl(t *testing.T) {
	chain := extension.NewChain()
	var got []*api.Frame
	frames := []*api.Frame{
		{Fin: false, Opcode: api.OpText, Payload: []byte("he")},
		{Fin: true, Opcode: api.OpPing},
		{Fin: false, Opcode: api.OpContinuation, Payload: []byte("ll")},
		{Fin: true, Opcode: api.OpContinuation, Payload: []byte("o")},
		{Fin: true, Opcode: api.OpText, Payload: []byte("next")},
	}
	for i, f := range frames {
		if err := chain.Decode(f, collect(&got)); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if len(got) != len(frames) {
		t.Fatalf("want %d frames through, got %d", len(frames), len(got))
	}
}

// splitExt decodes one data frame into two fragments.
type splitExt struct{ tagExt }

func (e *splitExt) Decode(f *api.Frame, emit func(*api.Frame) error) error {
	if !f.IsData() || len(f.Payload) < 2 {
		return emit(f)
	}
	half := len(f.Payload) / 2
	if err := emit(&api.Frame{Fin: false, Opcode: f.Opcode, Payload: f.Payload[:half]}); err != nil {
		return err
	}
	return emit(&api.Frame{Fin: f.Fin, Opcode: api.OpContinuation, Payload: f.Payload[half:]})
}

func TestChainDecodeOneToMany(t *testing.T) {
	chain := extension.NewChain(&splitExt{})
	var got []*api.Frame
	err := chain.Decode(&api.Frame{Fin: true, Opcode: api.OpBinary, Payload: []byte("abcd")}, collect(&got))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 emissions, got %d", len(got))
	}
	if got[0].Fin || got[0].Opcode != api.OpBinary {
		t.Fatalf("first emission wrong: %+v", got[0])
	}
	if !got[1].Fin || got[1].Opcode != api.OpContinuation {
		t.Fatalf("second emission wrong: %+v", got[1])
	}
}

func TestChainRSVAggregation(t *testing.T) {
	chain := extension.NewChain(&tagExt{tag: 'a'}, &tagExt{tag: 'b', rsv1: true})
	if !chain.UsesRSV1() {
		t.Fatal("chain must aggregate RSV1 claims")
	}
	if chain.UsesRSV2() || chain.UsesRSV3() {
		t.Fatal("unclaimed bits must stay unclaimed")
	}
}

func TestChainCloseClosesAllMembers(t *testing.T) {
	a := &tagExt{tag: 'a'}
	b := &tagExt{tag: 'b'}
	chain := extension.NewChain(a, b)
	if err := chain.Close(); err != nil {
		t.Fatal(err)
	}
	if !a.closed || !b.closed {
		t.Fatal("all members must be closed")
	}
}

func TestEmptyChainPassesFrames(t *testing.T) {
	chain := extension.NewChain()
	var got []*api.Frame
	if err := chain.Decode(&api.Frame{Fin: true, Opcode: api.OpText, Payload: []byte("ok")}, collect(&got)); err != nil {
		t.Fatal(err)
	}
	out, err := chain.Encode(&api.Frame{Fin: true, Opcode: api.OpText, Payload: []byte("ok")})
	if err != nil || string(out.Payload) != "ok" {
		t.Fatalf("empty chain encode: %v %v", out, err)
	}
}
