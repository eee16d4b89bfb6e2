//go:build !linux
// +build !linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

import "syscall"

// listenControl is a no-op where SO_REUSEPORT tuning is unavailable.
func listenControl(cfg Config) func(network, address string, c syscall.RawConn) error {
	return nil
}
