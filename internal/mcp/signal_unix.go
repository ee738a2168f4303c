//go:build !windows

package mcp

import (
	"os"
	"syscall"
)

// shutdownSignals suspend a running session before exit.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}
