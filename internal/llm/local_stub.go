//go:build !llamacpp

package llm

import (
	"context"
	"fmt"
)

// LocalClient is a stub implementation used when the llamacpp build tag is not set.
// It returns Available()=false so callers fall back to other providers.
type LocalClient struct {
	modelPath string
}

// NewLocalClient creates a new LocalClient. In the stub build (without llamacpp tag),
// this client is always unavailable.
func NewLocalClient(cfg LocalConfig) *LocalClient {
	return &LocalClient{modelPath: cfg.ModelPath}
}

// ScoreSleep returns an error because the local client is not available
// in stub builds.
func (c *LocalClient) ScoreSleep(_ context.Context, _ string) (float64, error) {
	return 0, fmt.Errorf("local model not available: build with -tags llamacpp")
}

// Available returns false because the local model is not compiled in without
// the llamacpp build tag.
func (c *LocalClient) Available() bool {
	return false
}

// Close is a no-op for the stub client.
func (c *LocalClient) Close() error {
	return nil
}
