package directory

import (
	"context"
	"sync"

	"github.com/notifyhub/dispatch/internal/domain"
)

// MockResolver is a hand-written, in-memory Resolver used in unit tests.
type MockResolver struct {
	mu          sync.RWMutex
	users       map[string]RecipientInfo
	unavailable bool
}

func NewMockResolver() *MockResolver {
	return &MockResolver{users: make(map[string]RecipientInfo)}
}

// AddUser registers a user's recipient info.
func (m *MockResolver) AddUser(userID string, info RecipientInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = info
}

// SetUnavailable makes every lookup fail as if the directory were down.
func (m *MockResolver) SetUnavailable(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = down
}

func (m *MockResolver) Resolve(_ context.Context, userID string, channel domain.Channel) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unavailable {
		return "", domain.ErrServiceUnavailable
	}
	info, ok := m.users[userID]
	if !ok {
		return "", domain.ErrUserNotFound
	}
	return pick(&info, channel)
}

var _ Resolver = (*MockResolver)(nil)
