//go:build windows

package mcp

import "os"

// shutdownSignals suspend a running session before exit. Windows only
// delivers os.Interrupt (Ctrl+C).
var shutdownSignals = []os.Signal{os.Interrupt}
