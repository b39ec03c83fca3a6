package temporal

import (
	"context"
	"sync"
)

// MockStarter is a mock implementation of EmailStarter for testing.
type MockStarter struct {
	mu       sync.Mutex
	started  map[string]PurchaseEmailInput // map[workflowID]input
	startErr error
}

// NewMockStarter creates a new MockStarter.
func NewMockStarter() *MockStarter {
	return &MockStarter{
		started: make(map[string]PurchaseEmailInput),
	}
}

// StartPurchaseEmail records the workflow. Duplicate starts are ignored.
func (m *MockStarter) StartPurchaseEmail(ctx context.Context, input PurchaseEmailInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return m.startErr
	}

	id := workflowID(input.TransactionReference)
	if _, ok := m.started[id]; !ok {
		m.started[id] = input
	}
	return nil
}

// SetStartError configures the mock to fail every start.
func (m *MockStarter) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// Started returns the input recorded for a transaction reference.
func (m *MockStarter) Started(transactionReference string) (PurchaseEmailInput, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.started[workflowID(transactionReference)]
	return in, ok
}

// Count returns the number of distinct workflows started.
func (m *MockStarter) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}
