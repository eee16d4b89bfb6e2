package pool

import (
	"bytes"
	"testing"
)

func TestAcquireRoundsUpToClass(t *testing.T) {
	p := New()
	cases := []struct{ n, wantCap int }{
		{1, 256},
		{256, 256},
		{257, 512},
		{300, 512},
		{4096, 4096},
		{65536, 65536},
	}
	for _, c := range cases {
		buf := p.Acquire(c.n)
		if len(buf) != c.n {
			t.Fatalf("Acquire(%d) len %d", c.n, len(buf))
		}
		if cap(buf) != c.wantCap {
			t.Fatalf("Acquire(%d) cap %d, want %d", c.n, cap(buf), c.wantCap)
		}
	}
}

func TestAcquireOversizeBypassesClasses(t *testing.T) {
	p := New()
	buf := p.Acquire(65537)
	if len(buf) != 65537 {
		t.Fatalf("len %d", len(buf))
	}
	p.Release(buf)

	stats := p.GetStats()
	if stats["oversize"] != 1 {
		t.Fatalf("oversize = %d", stats["oversize"])
	}
	if stats["discards"] != 1 {
		t.Fatalf("discards = %d", stats["discards"])
	}
}

func TestReleaseRoutesByCapacity(t *testing.T) {
	p := New()
	buf := p.Acquire(300)
	copy(buf, bytes.Repeat([]byte{0xAB}, len(buf)))
	p.Release(buf)

	// A foreign buffer with a non-class capacity is dropped silently.
	p.Release(make([]byte, 100))

	stats := p.GetStats()
	if stats["releases"] != 2 || stats["discards"] != 1 {
		t.Fatalf("releases=%d discards=%d", stats["releases"], stats["discards"])
	}
}

func TestAcquireZeroAndNegative(t *testing.T) {
	p := New()
	if buf := p.Acquire(0); buf != nil {
		t.Fatalf("Acquire(0) = %v", buf)
	}
	if buf := p.Acquire(-5); buf != nil {
		t.Fatalf("Acquire(-5) = %v", buf)
	}
}

func TestDefaultIsShared(t *testing.T) {
	if Default() != Default() {
		t.Fatal("Default must return one pool")
	}
}

func TestSyncPoolRoundTrip(t *testing.T) {
	sp := NewSyncPool(func() *bytes.Buffer { return new(bytes.Buffer) })
	b := sp.Get()
	b.WriteString("x")
	b.Reset()
	sp.Put(b)
	if got := sp.Get(); got == nil {
		t.Fatal("Get returned nil")
	}
}
