package biometrics

import (
	"context"
	"fmt"
	"log/slog"
)

// Dataset bundles the three signal histories a dose computation needs.
type Dataset struct {
	HRV  Series
	RHR  Series
	Resp Series

	// RecommendedBaseDose is the provider's suggested base dose in mg.
	// Zero means the provider has no recommendation.
	RecommendedBaseDose float64
}

// complete reports whether every signal has at least one sample.
func (d *Dataset) complete() bool {
	return d != nil && len(d.HRV) > 0 && len(d.RHR) > 0 && len(d.Resp) > 0
}

// Provider supplies biometric histories.
type Provider interface {
	// Fetch returns the full available history for every signal.
	Fetch(ctx context.Context) (*Dataset, error)

	// Available returns true if the provider is configured and worth asking.
	Available() bool

	// Name identifies the provider in logs.
	Name() string
}

// FallbackProvider asks Primary first and falls back to Fallback when the
// primary is unavailable, fails, or returns an incomplete dataset.
type FallbackProvider struct {
	Primary  Provider
	Fallback Provider
	Logger   *slog.Logger
}

// NewFallbackProvider creates a FallbackProvider. primary may be nil.
func NewFallbackProvider(primary, fallback Provider, logger *slog.Logger) *FallbackProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackProvider{Primary: primary, Fallback: fallback, Logger: logger}
}

// Fetch implements Provider.
func (p *FallbackProvider) Fetch(ctx context.Context) (*Dataset, error) {
	if p.Primary != nil && p.Primary.Available() {
		ds, err := p.Primary.Fetch(ctx)
		switch {
		case err != nil:
			p.Logger.Warn("biometric provider failed, using fallback data",
				"provider", p.Primary.Name(), "fallback", p.Fallback.Name(), "error", err)
		case !ds.complete():
			p.Logger.Warn("biometric provider returned incomplete data, using fallback data",
				"provider", p.Primary.Name(), "fallback", p.Fallback.Name())
		default:
			p.Logger.Debug("using live biometric data", "provider", p.Primary.Name())
			return ds, nil
		}
	} else {
		p.Logger.Debug("live biometric provider not configured, using fallback data", "fallback", p.Fallback.Name())
	}

	ds, err := p.Fallback.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching fallback biometrics from %s: %w", p.Fallback.Name(), err)
	}
	return ds, nil
}

// Available returns true if either provider is available.
func (p *FallbackProvider) Available() bool {
	return (p.Primary != nil && p.Primary.Available()) || p.Fallback.Available()
}

// Name implements Provider.
func (p *FallbackProvider) Name() string {
	if p.Primary == nil {
		return p.Fallback.Name()
	}
	return p.Primary.Name() + "+" + p.Fallback.Name()
}
