package llm

import (
	"context"
	"sync"
)

// MockClient implements Client for testing purposes.
// It returns a configured score or error and records every description it
// was asked to score.
type MockClient struct {
	mu sync.Mutex

	score     float64
	err       error
	available bool

	// Calls holds the descriptions passed to ScoreSleep, in order.
	Calls []string
}

// NewMockClient creates a new MockClient that is available and returns 0.
func NewMockClient() *MockClient {
	return &MockClient{available: true, Calls: make([]string, 0)}
}

// WithScore configures the score returned by ScoreSleep.
func (m *MockClient) WithScore(score float64) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.score = score
	return m
}

// WithError configures the error returned by ScoreSleep.
func (m *MockClient) WithError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithAvailable configures whether Available() returns true or false.
func (m *MockClient) WithAvailable(available bool) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
	return m
}

// ScoreSleep implements Client.ScoreSleep.
func (m *MockClient) ScoreSleep(_ context.Context, description string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, description)
	if m.err != nil {
		return 0, m.err
	}
	return m.score, nil
}

// Available implements Client.Available.
func (m *MockClient) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// CallCount returns the number of times ScoreSleep was called.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
