package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvandessel/sleepsync/internal/llm"
	"github.com/nvandessel/sleepsync/internal/sanitize"
)

// ErrEmptyDescription is returned when there is nothing to analyze.
var ErrEmptyDescription = errors.New("sleep description is empty")

// Event is one completed analysis.
type Event struct {
	Description string    `json:"description"`
	Score       float64   `json:"score"`
	Provider    string    `json:"provider"`
	Outcome     string    `json:"outcome"`
	CreatedAt   time.Time `json:"created_at"`
}

// Analysis outcomes recorded on each Event.
const (
	OutcomeScored      = "scored"
	OutcomeUnparsable  = "unparsable"
	OutcomeUnavailable = "unavailable"
)

// Recorder persists analyses. Implementations must be safe for concurrent use.
type Recorder interface {
	RecordFeedback(ctx context.Context, ev Event) error
}

// Analyzer turns a free-text sleep description into a feedback score and
// writes it to the Store.
type Analyzer struct {
	client   llm.Client
	store    *Store
	recorder Recorder
	provider string
	logger   *slog.Logger
	nowFunc  func() time.Time
}

// NewAnalyzer creates an Analyzer. recorder and logger may be nil.
func NewAnalyzer(client llm.Client, store *Store, recorder Recorder, provider string, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == "" {
		provider = "fallback"
	}
	return &Analyzer{
		client:   client,
		store:    store,
		recorder: recorder,
		provider: provider,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// Analyze scores description. The returned score is what the dose engine
// will see next:
//   - success: the clamped score, stored.
//   - unparsable answer: 0, stored, with a diagnostic error.
//   - backend failure: 0, store untouched, with a diagnostic error.
func (a *Analyzer) Analyze(ctx context.Context, description string) (float64, error) {
	description = sanitize.Description(description)
	if description == "" {
		return 0, ErrEmptyDescription
	}

	raw, err := a.client.ScoreSleep(ctx, description)
	switch {
	case err == nil:
		score := a.store.Set(raw)
		a.logger.Info("sleep feedback scored", "provider", a.provider, "score", score)
		a.record(ctx, description, score, OutcomeScored)
		return score, nil

	case errors.Is(err, llm.ErrUnparsableScore):
		a.store.Set(0)
		a.logger.Warn("sleep feedback unparsable, reset to neutral", "provider", a.provider, "error", err)
		a.record(ctx, description, 0, OutcomeUnparsable)
		return 0, fmt.Errorf("analyzing sleep description: %w", err)

	default:
		a.logger.Warn("sleep feedback analyzer failed", "provider", a.provider, "error", err)
		a.record(ctx, description, 0, OutcomeUnavailable)
		return 0, fmt.Errorf("analyzing sleep description with %s: %w", a.provider, err)
	}
}

func (a *Analyzer) record(ctx context.Context, description string, score float64, outcome string) {
	if a.recorder == nil {
		return
	}
	ev := Event{
		Description: description,
		Score:       score,
		Provider:    a.provider,
		Outcome:     outcome,
		CreatedAt:   a.nowFunc().UTC(),
	}
	if err := a.recorder.RecordFeedback(ctx, ev); err != nil {
		a.logger.Warn("failed to record feedback event", "error", err)
	}
}
