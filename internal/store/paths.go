package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataDirEnv overrides the data directory.
const DataDirEnv = "SLEEPSYNC_HOME"

// DatabaseFile is the SQLite file name inside the data directory.
const DatabaseFile = "sleepsync.db"

// DataDir returns the sleepsync data directory.
// On Unix: ~/.sleepsync
// On Windows: %USERPROFILE%\.sleepsync
// SLEEPSYNC_HOME takes precedence when set.
func DataDir() (string, error) {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".sleepsync"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist and returns it.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}
