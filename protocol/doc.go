// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the WebSocket wire codec (RFC 6455) for wscore.
//
// The inbound side is an incremental push parser: callers feed raw
// chunks in whatever sizes the transport delivers, and the parser
// carries header, masking, and resynchronization state across calls.
// The outbound side is a stateless generator applying role masking
// and minimal length encoding.
//
// Includes:
//   - Streaming frame decode with in-place unmasking
//   - Header validation: reserved opcodes, RSV claims, control limits,
//     minimal extended lengths, per-role mask rules
//   - Fail-before-allocate frame size enforcement with skip recovery
//   - Frame encode with per-role masking and automatic fragmentation
package protocol
