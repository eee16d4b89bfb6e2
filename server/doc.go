// File: server/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package server upgrades HTTP connections to WebSocket sessions.
//
// Two entry points cover the usual deployments. Upgrader.Upgrade
// hijacks a net/http request, so the engine plugs into an existing
// mux. Server owns its own TCP listener and reads the upgrade request
// off the raw connection, for deployments that do not want net/http
// in the path.
//
// Both produce an unstarted core.Session wired with the negotiated
// extension chain; the caller (or Server itself) then calls Start.
package server
