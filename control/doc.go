// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration and runtime telemetry for the engine: YAML config
// loading over the defaults, a concurrent store with reload listeners,
// and the counter registry sessions report into.
package control
