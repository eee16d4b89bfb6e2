// Package core
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Implements the per-connection WebSocket engine for wscore: the
// session state machine with its single read loop, demand-based flow
// control, message reassembly, and the close handshake.
//
// Includes:
//   - Session: full-duplex connection driver over api.Transport
//   - Demand-gated frame delivery (auto and self-managed modes)
//   - MessageSink: frame-to-message reassembly with UTF-8 validation
//   - Close handshake FSM with echo and timeout handling
package core
