package dose

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/sleepsync/internal/biometrics"
)

var epoch = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func makeSeries(values ...float64) biometrics.Series {
	s := make(biometrics.Series, len(values))
	for i, v := range values {
		s[i] = biometrics.Sample{
			Value:     v,
			Timestamp: epoch.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
			Quality:   biometrics.QualityGood,
		}
	}
	return s
}

func ramp(n int, start, step float64) biometrics.Series {
	values := make([]float64, n)
	for i := range values {
		values[i] = start + float64(i)*step
	}
	return makeSeries(values...)
}

func TestComputeSeries_Ordering(t *testing.T) {
	hrv, rhr, resp := ramp(30, 40, 1), ramp(30, 60, -0.5), ramp(30, 14, 0.1)

	got, err := ComputeSeries(hrv, rhr, resp, Params{Base: 1, Remaining: 3600, Total: 3600})
	if err != nil {
		t.Fatalf("ComputeSeries() error = %v", err)
	}
	if len(got) != 24 {
		t.Fatalf("len = %d, want 24", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("sample %d not after sample %d", i, i-1)
		}
		if got[i].HourLabel != got[i-1].HourLabel-1 {
			t.Errorf("HourLabel[%d] = %d, want %d", i, got[i].HourLabel, got[i-1].HourLabel-1)
		}
	}
	if got[len(got)-1].HourLabel != 0 {
		t.Errorf("last HourLabel = %d, want 0", got[len(got)-1].HourLabel)
	}
	if got[0].CurrentHRV != hrv[6].Value {
		t.Errorf("first CurrentHRV = %v, want %v", got[0].CurrentHRV, hrv[6].Value)
	}
}

func TestComputeSeries_KeepsUnparsedTimestamp(t *testing.T) {
	hrv := makeSeries(50, 52, 54)
	hrv[2].Timestamp = "last night 23:00"

	got, err := ComputeSeries(hrv, makeSeries(60, 60, 60), makeSeries(15, 15, 15), Params{Base: 1, Remaining: 3600, Total: 3600})
	if err != nil {
		t.Fatalf("ComputeSeries() error = %v", err)
	}
	last := got[len(got)-1]
	if !last.Timestamp.IsZero() || last.RawTimestamp != "last night 23:00" {
		t.Errorf("last sample Timestamp/RawTimestamp = %v/%q, want zero/source text", last.Timestamp, last.RawTimestamp)
	}
	if got[0].RawTimestamp != "" || got[0].Timestamp.IsZero() {
		t.Errorf("first sample = %+v, want a parsed timestamp", got[0])
	}
	if bad := got.Unparsed(); len(bad) != 1 || bad[0].HourLabel != 0 {
		t.Errorf("Unparsed() = %+v, want the most recent sample", bad)
	}
}

func TestComputeSeries_ShortHistory(t *testing.T) {
	got, err := ComputeSeries(makeSeries(50, 60), makeSeries(55, 65), makeSeries(14, 16),
		Params{Base: 1, Remaining: 3600, Total: 3600})
	if err != nil {
		t.Fatalf("ComputeSeries() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// means: hrv 55, rhr 60, resp 15
	want := 1 + Alpha*5 + Beta*5 + Rho*1
	if math.Abs(got[0].Dose-want) > 1e-9 {
		t.Errorf("Dose[0] = %v, want %v", got[0].Dose, want)
	}
	if got[0].Deltas != (Deltas{HRV: 5, RHR: 5, Resp: 1}) {
		t.Errorf("Deltas[0] = %+v", got[0].Deltas)
	}
}

func TestComputeSeries_FeedbackAppliedToEverySample(t *testing.T) {
	hrv, rhr, resp := makeSeries(1, 2, 3), makeSeries(1, 2, 3), makeSeries(1, 2, 3)
	plain, _ := ComputeSeries(hrv, rhr, resp, Params{Base: 1, Remaining: 10, Total: 10})
	withFb, _ := ComputeSeries(hrv, rhr, resp, Params{Base: 1, Remaining: 10, Total: 10, Feedback: 0.5})
	for i := range plain {
		if d := withFb[i].Dose - plain[i].Dose; math.Abs(d-FeedbackWeight*0.5) > 1e-9 {
			t.Errorf("sample %d feedback contribution = %v, want %v", i, d, FeedbackWeight*0.5)
		}
	}
}

func TestComputeSeries_Errors(t *testing.T) {
	ok := makeSeries(1, 2, 3)
	tests := []struct {
		name           string
		hrv, rhr, resp biometrics.Series
		total          float64
		want           error
	}{
		{"empty hrv", nil, ok, ok, 60, biometrics.ErrInsufficientData},
		{"empty resp", ok, ok, biometrics.Series{}, 60, biometrics.ErrInsufficientData},
		{"misaligned", ok, makeSeries(1, 2), ok, 60, biometrics.ErrMisalignedSeries},
		{"zero total", ok, ok, ok, 0, ErrInvalidDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeSeries(tt.hrv, tt.rhr, tt.resp, Params{Base: 1, Total: tt.total})
			if !errors.Is(err, tt.want) {
				t.Errorf("ComputeSeries() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSeries_Active(t *testing.T) {
	if _, ok := (Series{}).Active(); ok {
		t.Error("Active() on empty series should report false")
	}
	s := Series{{HourLabel: 1, Dose: 0.8}, {HourLabel: 0, Dose: 1.2}}
	got, ok := s.Active()
	if !ok || got.Dose != 1.2 {
		t.Errorf("Active() = %+v, %v; want the last sample", got, ok)
	}
}

type stubProvider struct {
	ds  *biometrics.Dataset
	err error
}

func (p *stubProvider) Fetch(context.Context) (*biometrics.Dataset, error) { return p.ds, p.err }
func (p *stubProvider) Available() bool                                    { return true }
func (p *stubProvider) Name() string                                       { return "stub" }

type fixedFeedback float64

func (f fixedFeedback) Get() float64 { return float64(f) }

func TestEngine_Compute(t *testing.T) {
	ds := &biometrics.Dataset{
		HRV: makeSeries(50, 60), RHR: makeSeries(60, 60), Resp: makeSeries(15, 15),
		RecommendedBaseDose: 2,
	}

	tests := []struct {
		name     string
		opts     []EngineOption
		wantBase float64
	}{
		{"dataset base", nil, 2},
		{"configured base wins", []EngineOption{WithBaseDose(0.5)}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(&stubProvider{ds: ds}, fixedFeedback(0), tt.opts...)
			res, err := e.Compute(context.Background(), 3600, 3600)
			if err != nil {
				t.Fatalf("Compute() error = %v", err)
			}
			if res.Base != tt.wantBase {
				t.Errorf("Base = %v, want %v", res.Base, tt.wantBase)
			}
			if res.Source != "stub" {
				t.Errorf("Source = %q, want stub", res.Source)
			}
			active, _ := res.Series.Active()
			// hrv mean 55, current 60
			if want := tt.wantBase + Alpha*-5; math.Abs(active.Dose-want) > 1e-9 {
				t.Errorf("active dose = %v, want %v", active.Dose, want)
			}
		})
	}
}

func TestEngine_Compute_LogsUnparsedTimestamps(t *testing.T) {
	hrv := makeSeries(50, 60)
	hrv[1].Timestamp = "2025-03-01 01:00"
	ds := &biometrics.Dataset{HRV: hrv, RHR: makeSeries(60, 60), Resp: makeSeries(15, 15)}

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	e := NewEngine(&stubProvider{ds: ds}, fixedFeedback(0), WithBaseDose(1), WithLogger(logger))
	if _, err := e.Compute(context.Background(), 3600, 3600); err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	out := logs.String()
	if !strings.Contains(out, "biometric timestamps could not be parsed") || !strings.Contains(out, "2025-03-01 01:00") {
		t.Errorf("log output missing unparsed timestamp warning:\n%s", out)
	}
}

func TestEngine_Compute_DefaultBase(t *testing.T) {
	ds := &biometrics.Dataset{HRV: makeSeries(1), RHR: makeSeries(1), Resp: makeSeries(1)}
	res, err := NewEngine(&stubProvider{ds: ds}, fixedFeedback(0)).Compute(context.Background(), 60, 60)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if res.Base != 1.0 {
		t.Errorf("Base = %v, want 1.0", res.Base)
	}
}

func TestEngine_Compute_ProviderError(t *testing.T) {
	boom := errors.New("offline")
	_, err := NewEngine(&stubProvider{err: boom}, fixedFeedback(0)).Compute(context.Background(), 60, 60)
	if !errors.Is(err, boom) {
		t.Errorf("Compute() error = %v, want wrapped %v", err, boom)
	}
}

func TestEngine_Compute_StaticDataset(t *testing.T) {
	e := NewEngine(biometrics.NewStaticProvider(), fixedFeedback(0.2))
	res, err := e.Compute(context.Background(), 3600, 3600)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if len(res.Series) != 24 {
		t.Errorf("len(Series) = %d, want 24", len(res.Series))
	}
	if res.Feedback != 0.2 {
		t.Errorf("Feedback = %v, want 0.2", res.Feedback)
	}
}
