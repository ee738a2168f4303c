package biometrics

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed data/sample_biometrics.json
var sampleBiometrics []byte

// datasetFile is the on-disk JSON layout of a historical dataset.
type datasetFile struct {
	RecommendedBaseDose float64 `json:"recommended_base_dose"`
	HistoricalData      struct {
		HRV             Series `json:"hrv"`
		RHR             Series `json:"rhr"`
		RespiratoryRate Series `json:"respiratory_rate"`
	} `json:"historical_data"`
}

// StaticProvider serves a fixed historical dataset. It is the deterministic
// fallback when no live source is reachable.
type StaticProvider struct {
	data []byte
	name string
}

// NewStaticProvider returns a provider backed by the bundled sample dataset.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{data: sampleBiometrics, name: "static"}
}

// NewStaticProviderFromFile returns a provider backed by a dataset file in the
// bundled layout.
func NewStaticProviderFromFile(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading biometric dataset: %w", err)
	}
	if _, err := ParseDataset(data); err != nil {
		return nil, err
	}
	return &StaticProvider{data: data, name: "file:" + path}, nil
}

// ParseDataset decodes a dataset in the bundled JSON layout.
func ParseDataset(data []byte) (*Dataset, error) {
	var f datasetFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing biometric dataset: %w", err)
	}
	return &Dataset{
		HRV:                 f.HistoricalData.HRV,
		RHR:                 f.HistoricalData.RHR,
		Resp:                f.HistoricalData.RespiratoryRate,
		RecommendedBaseDose: f.RecommendedBaseDose,
	}, nil
}

// Fetch implements Provider. Each call decodes a fresh copy.
func (p *StaticProvider) Fetch(ctx context.Context) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ParseDataset(p.data)
}

// Available always returns true.
func (p *StaticProvider) Available() bool {
	return true
}

// Name implements Provider.
func (p *StaticProvider) Name() string {
	return p.name
}
