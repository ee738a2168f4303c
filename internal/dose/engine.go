package dose

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nvandessel/sleepsync/internal/biometrics"
	"github.com/nvandessel/sleepsync/internal/constants"
	"github.com/nvandessel/sleepsync/internal/logging"
)

// FeedbackSource supplies the current feedback score.
type FeedbackSource interface {
	Get() float64
}

// Result is one engine run.
type Result struct {
	Series   Series  `json:"series"`
	Base     float64 `json:"base"`
	Feedback float64 `json:"feedback"`
	Source   string  `json:"source"`
}

// Engine computes dose series from a biometric provider and a feedback source.
type Engine struct {
	provider  biometrics.Provider
	feedback  FeedbackSource
	baseDose  float64
	logger    *slog.Logger
	decisions *logging.DecisionLogger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithBaseDose overrides the dataset's recommended base dose when base > 0.
func WithBaseDose(base float64) EngineOption {
	return func(e *Engine) { e.baseDose = base }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDecisionLogger enables decision tracing.
func WithDecisionLogger(dl *logging.DecisionLogger) EngineOption {
	return func(e *Engine) { e.decisions = dl }
}

// NewEngine creates an Engine.
func NewEngine(provider biometrics.Provider, feedback FeedbackSource, opts ...EngineOption) *Engine {
	e := &Engine{
		provider: provider,
		feedback: feedback,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute fetches the full history and builds a series for the given
// remaining and total seconds.
func (e *Engine) Compute(ctx context.Context, remaining, total float64) (*Result, error) {
	if total <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidDuration, total)
	}

	ds, err := e.provider.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching biometrics: %w", err)
	}

	base := e.resolveBase(ds)
	fb := e.feedback.Get()

	series, err := ComputeSeries(ds.HRV, ds.RHR, ds.Resp, Params{
		Base:      base,
		Remaining: remaining,
		Total:     total,
		Feedback:  fb,
	})
	if err != nil {
		return nil, fmt.Errorf("computing dose series: %w", err)
	}

	if bad := series.Unparsed(); len(bad) > 0 {
		e.logger.Warn("biometric timestamps could not be parsed",
			"count", len(bad), "first", bad[0].RawTimestamp, "source", e.provider.Name())
	}
	e.logger.Debug("dose series computed",
		"samples", len(series), "base", base, "feedback", fb, "remaining", remaining, "total", total)
	for _, s := range series {
		e.logger.Log(ctx, logging.LevelTrace, "dose sample", "hour", s.HourLabel, "dose", s.Dose,
			"hrv_delta", s.Deltas.HRV, "rhr_delta", s.Deltas.RHR, "resp_delta", s.Deltas.Resp)
	}
	e.decisions.Log(logging.EventDoseSeries, map[string]any{
		"samples":   len(series),
		"base":      base,
		"feedback":  fb,
		"remaining": remaining,
		"total":     total,
		"doses":     series.Doses(),
		"source":    e.provider.Name(),
	})

	return &Result{Series: series, Base: base, Feedback: fb, Source: e.provider.Name()}, nil
}

func (e *Engine) resolveBase(ds *biometrics.Dataset) float64 {
	switch {
	case e.baseDose > 0:
		return e.baseDose
	case ds.RecommendedBaseDose > 0:
		return ds.RecommendedBaseDose
	default:
		return constants.DefaultBaseDose
	}
}
