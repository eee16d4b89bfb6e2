// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp implements the TCP accept loop feeding connections to
// the upgrade layer, with platform socket tuning.
package tcp
