package status

import (
	"context"
	"errors"
	"sync"

	"github.com/notifyhub/dispatch/internal/domain"
)

// MockReporter is a hand-written, in-memory Reporter used in unit tests.
type MockReporter struct {
	mu      sync.Mutex
	reports []domain.StatusUpdate
	fail    bool
}

func NewMockReporter() *MockReporter {
	return &MockReporter{}
}

// Fail makes every subsequent report return an error.
func (m *MockReporter) Fail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

func (m *MockReporter) Report(_ context.Context, _ domain.Channel, update *domain.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("mock status sink unavailable")
	}
	m.reports = append(m.reports, *update)
	return nil
}

// Reports returns a copy of every captured update.
func (m *MockReporter) Reports() []domain.StatusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.StatusUpdate, len(m.reports))
	copy(out, m.reports)
	return out
}

var _ Reporter = (*MockReporter)(nil)
