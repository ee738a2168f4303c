package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nvandessel/sleepsync/internal/feedback"
)

// MemoryStore implements Store in memory for tests and dry runs.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]SessionRecord
	runs     []DoseRun
	events   []feedback.Event

	// FailSessionWrites makes SaveSession and DeleteSession fail.
	FailSessionWrites bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]SessionRecord)}
}

// SaveSession implements SessionStore.
func (m *MemoryStore) SaveSession(_ context.Context, key string, rec SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSessionWrites {
		return fmt.Errorf("memory store: session writes disabled")
	}
	m.sessions[key] = rec
	return nil
}

// LoadSession implements SessionStore.
func (m *MemoryStore) LoadSession(_ context.Context, key string) (*SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// DeleteSession implements SessionStore.
func (m *MemoryStore) DeleteSession(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSessionWrites {
		return fmt.Errorf("memory store: session writes disabled")
	}
	delete(m.sessions, key)
	return nil
}

// RecordDoseRun implements HistoryStore.
func (m *MemoryStore) RecordDoseRun(_ context.Context, run DoseRun) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = int64(len(m.runs) + 1)
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.Samples = slices.Clone(run.Samples)
	m.runs = append(m.runs, run)
	return run.ID, nil
}

// MarkDispatch implements HistoryStore.
func (m *MemoryStore) MarkDispatch(_ context.Context, runID int64, dispatchErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if runID < 1 || int(runID) > len(m.runs) {
		return fmt.Errorf("dose run %d: %w", runID, ErrNotFound)
	}
	run := &m.runs[runID-1]
	run.Dispatched = dispatchErr == nil
	run.DispatchError = ""
	if dispatchErr != nil {
		run.DispatchError = dispatchErr.Error()
	}
	return nil
}

// ListDoseRuns implements HistoryStore.
func (m *MemoryStore) ListDoseRuns(_ context.Context, limit int) ([]DoseRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	out := make([]DoseRun, 0, min(limit, len(m.runs)))
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		run := m.runs[i]
		run.Samples = nil
		out = append(out, run)
	}
	return out, nil
}

// GetDoseRun implements HistoryStore.
func (m *MemoryStore) GetDoseRun(_ context.Context, id int64) (*DoseRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 1 || int(id) > len(m.runs) {
		return nil, fmt.Errorf("dose run %d: %w", id, ErrNotFound)
	}
	run := m.runs[id-1]
	run.Samples = slices.Clone(run.Samples)
	return &run, nil
}

// RecordFeedback implements feedback.Recorder.
func (m *MemoryStore) RecordFeedback(_ context.Context, ev feedback.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// LatestFeedback implements FeedbackLog.
func (m *MemoryStore) LatestFeedback(_ context.Context) (*feedback.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Outcome != feedback.OutcomeUnavailable {
			ev := m.events[i]
			return &ev, nil
		}
	}
	return nil, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
