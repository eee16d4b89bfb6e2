// File: api/pool.go
// Author: momentics <momentics@gmail.com>
//
// Defines abstract pooling APIs: reusable allocators for payload
// buffers and transient objects on the frame path.

package api

// BytePool provides reusable []byte buffers for payload and scratch
// allocation on the hot path.
type BytePool interface {
	// Acquire returns a slice of length n. Capacity may exceed n.
	Acquire(n int) []byte

	// Release returns a buffer to the pool. The caller must not touch
	// it afterwards.
	Release(buf []byte)
}

// ObjectPool provides generic pooling of Go objects allocated transiently
type ObjectPool[T any] interface {
	// Get returns an available instance from pool
	Get() T

	// Put returns an instance for reuse
	Put(obj T)
}
