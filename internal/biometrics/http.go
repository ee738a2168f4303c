package biometrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// signalPaths maps each signal to its path on the sync service.
var signalPaths = map[Signal]string{
	SignalHRV:  "/hrv",
	SignalRHR:  "/rhr",
	SignalResp: "/respiratory-rate",
}

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	// Endpoint is the base URL of the device-sync service.
	Endpoint string

	// Token is the bearer token sent with each request.
	Token string

	// Timeout bounds each request. Defaults to 10 seconds.
	Timeout time.Duration
}

// HTTPProvider fetches biometric histories from a device-sync service.
// Each signal is served as a JSON array of samples.
type HTTPProvider struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPProvider creates an HTTPProvider.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		token:    cfg.Token,
		client:   &http.Client{Timeout: timeout},
	}
}

// Available returns true when both the endpoint and the token are set.
func (p *HTTPProvider) Available() bool {
	return p.endpoint != "" && p.token != ""
}

// Name implements Provider.
func (p *HTTPProvider) Name() string {
	return "http"
}

// Fetch retrieves the three signals concurrently.
func (p *HTTPProvider) Fetch(ctx context.Context) (*Dataset, error) {
	if !p.Available() {
		return nil, fmt.Errorf("http biometric provider not configured")
	}

	var ds Dataset
	g, gctx := errgroup.WithContext(ctx)
	targets := map[Signal]*Series{
		SignalHRV:  &ds.HRV,
		SignalRHR:  &ds.RHR,
		SignalResp: &ds.Resp,
	}
	for signal, dst := range targets {
		g.Go(func() error {
			series, err := p.fetchSignal(gctx, signal)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", signal, err)
			}
			*dst = series
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ds, nil
}

func (p *HTTPProvider) fetchSignal(ctx context.Context, signal Signal) (Series, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+signalPaths[signal], nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sync service returned status %d: %s", resp.StatusCode, string(body))
	}

	var series Series
	if err := json.Unmarshal(body, &series); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return series, nil
}
