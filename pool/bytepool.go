// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/momentics/wscore/api"
)

// Size classes run in powers of two from 256 B to 64 KiB, matching the
// default frame limit. Requests above the top class are allocated
// exactly and never pooled.
const (
	minClassBits = 8
	maxClassBits = 16
	numClasses   = maxClassBits - minClassBits + 1
)

// SizeClassPool is a sync.Pool-backed api.BytePool. Buffers are handed
// out at their requested length over a class-sized backing array, so a
// Release can route them home by capacity alone.
type SizeClassPool struct {
	classes [numClasses]sync.Pool

	acquires int64
	hits     int64
	oversize int64
	releases int64
	discards int64
}

// New returns an empty pool. It warms up lazily; the zero classes
// allocate on first use.
func New() *SizeClassPool {
	return &SizeClassPool{}
}

// classFor maps a requested length to its class index, -1 when the
// request is above the top class.
func classFor(n int) int {
	if n <= 1<<minClassBits {
		return 0
	}
	b := bits.Len(uint(n - 1))
	if b > maxClassBits {
		return -1
	}
	return b - minClassBits
}

// classOf maps a capacity back to the class it came from, -1 when the
// buffer was never ours.
func classOf(c int) int {
	if c < 1<<minClassBits || c > 1<<maxClassBits || c&(c-1) != 0 {
		return -1
	}
	return bits.Len(uint(c)) - 1 - minClassBits
}

// Acquire implements api.BytePool.
func (p *SizeClassPool) Acquire(n int) []byte {
	if n <= 0 {
		return nil
	}
	atomic.AddInt64(&p.acquires, 1)
	cls := classFor(n)
	if cls < 0 {
		atomic.AddInt64(&p.oversize, 1)
		return make([]byte, n)
	}
	if v := p.classes[cls].Get(); v != nil {
		atomic.AddInt64(&p.hits, 1)
		return (*(v.(*[]byte)))[:n]
	}
	return make([]byte, 1<<(minClassBits+cls))[:n]
}

// Release implements api.BytePool. Buffers whose capacity does not
// match a class are dropped for the GC.
func (p *SizeClassPool) Release(buf []byte) {
	atomic.AddInt64(&p.releases, 1)
	cls := classOf(cap(buf))
	if cls < 0 {
		atomic.AddInt64(&p.discards, 1)
		return
	}
	full := buf[:cap(buf)]
	p.classes[cls].Put(&full)
}

// GetStats returns the counter snapshot.
func (p *SizeClassPool) GetStats() map[string]int64 {
	return map[string]int64{
		"acquires": atomic.LoadInt64(&p.acquires),
		"hits":     atomic.LoadInt64(&p.hits),
		"oversize": atomic.LoadInt64(&p.oversize),
		"releases": atomic.LoadInt64(&p.releases),
		"discards": atomic.LoadInt64(&p.discards),
	}
}

var _ api.BytePool = (*SizeClassPool)(nil)

var (
	defaultOnce sync.Once
	defaultPool *SizeClassPool
)

// Default returns the process-wide pool so every server and client
// session shares one set of classes instead of fragmenting reuse.
func Default() *SizeClassPool {
	defaultOnce.Do(func() {
		defaultPool = New()
	})
	return defaultPool
}
