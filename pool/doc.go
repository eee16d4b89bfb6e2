// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reusable allocation for the frame path. Payload buffers come from a
// size-classed sync.Pool so a busy connection stops churning the GC;
// SyncPool wraps sync.Pool for typed transient objects.
package pool
