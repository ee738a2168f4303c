//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals suspend a running session before exit.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}
