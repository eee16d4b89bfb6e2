// File: fake/fakepool.go
// Author: momentics <momentics@gmail.com>

package fake

import (
	"sync/atomic"
)

// CountingPool is an api.BytePool that allocates plainly but tracks
// the acquire/release balance, so tests can assert that every pooled
// payload buffer taken on the frame path is returned.
type CountingPool struct {
	acquired int64
	released int64
}

func (p *CountingPool) Acquire(n int) []byte {
	atomic.AddInt64(&p.acquired, 1)
	return make([]byte, n)
}

func (p *CountingPool) Release(buf []byte) {
	atomic.AddInt64(&p.released, 1)
}

// Acquired returns the number of Acquire calls so far.
func (p *CountingPool) Acquired() int64 { return atomic.LoadInt64(&p.acquired) }

// Outstanding reports buffers acquired and not yet released.
func (p *CountingPool) Outstanding() int64 {
	return atomic.LoadInt64(&p.acquired) - atomic.LoadInt64(&p.released)
}
