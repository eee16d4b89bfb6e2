// Package extension
// Author: momentics <momentics@gmail.com>
//
// Extension negotiation and the per-connection transform chain.
//
// A chain sits between the wire codec and message assembly. Outbound
// frames pass the members in negotiation order, inbound frames in
// reverse, so the last negotiated extension is always wire-adjacent.
// The chain also owns the fragmentation-sequence rules on the inbound
// side: whatever a member emits is held to the same ordering checks
// the raw codec output is.
//
// Includes:
//   - Extension parameter parsing (name; key=value lists, RFC 6455 §9.1)
//   - An explicit name->constructor registry, no global state
//   - identity and permessage-deflate (RFC 7692) transforms
package extension
