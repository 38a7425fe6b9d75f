package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/notifyhub/dispatch/internal/domain"
)

// MockNotificationRepository is a hand-written, in-memory implementation of
// NotificationRepository used in unit tests. No mock-generation library needed.
type MockNotificationRepository struct {
	mu            sync.RWMutex
	nextID        int64
	byID          map[int64]*domain.Notification
	byRequestID   map[string]int64
	failCreate    bool
	failTransient bool
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{
		nextID:      1,
		byID:        make(map[int64]*domain.Notification),
		byRequestID: make(map[string]int64),
	}
}

// Fail makes every subsequent operation return an error.
func (m *MockNotificationRepository) Fail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTransient = fail
}

var errMockRepo = errors.New("mock repository unavailable")

func (m *MockNotificationRepository) Create(_ context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTransient {
		return errMockRepo
	}
	if _, exists := m.byRequestID[n.RequestID]; exists {
		return domain.ErrDuplicateRequest
	}

	now := time.Now().UTC()
	n.ID = m.nextID
	n.CreatedAt = now
	n.UpdatedAt = now
	m.nextID++

	stored := *n
	m.byID[n.ID] = &stored
	m.byRequestID[n.RequestID] = n.ID
	return nil
}

func (m *MockNotificationRepository) GetByID(_ context.Context, id int64) (*domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failTransient {
		return nil, errMockRepo
	}
	n, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *MockNotificationRepository) GetByRequestID(_ context.Context, requestID string) (*domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failTransient {
		return nil, errMockRepo
	}
	id, ok := m.byRequestID[requestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *MockNotificationRepository) ListByUser(_ context.Context, f domain.ListFilter) ([]*domain.Notification, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failTransient {
		return nil, 0, errMockRepo
	}

	var matched []*domain.Notification
	for _, n := range m.byID {
		if n.UserID != f.UserID {
			continue
		}
		if f.Channel != nil && n.Channel != *f.Channel {
			continue
		}
		if f.Status != nil && n.Status != *f.Status {
			continue
		}
		cp := *n
		matched = append(matched, &cp)
	}

	total := len(matched)
	if f.Skip >= total {
		return nil, total, nil
	}
	end := f.Skip + f.Limit
	if f.Limit <= 0 || end > total {
		end = total
	}
	return matched[f.Skip:end], total, nil
}

func (m *MockNotificationRepository) ApplyTerminal(_ context.Context, id int64, status domain.Status, errMsg *string, sentAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTransient {
		return errMockRepo
	}
	n, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if n.Status.Terminal() {
		return domain.ErrTerminalStatus
	}
	n.Status = status
	n.ErrorMessage = errMsg
	n.SentAt = sentAt
	n.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockNotificationRepository) SetRetryCount(_ context.Context, id int64, retryCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTransient {
		return errMockRepo
	}
	n, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if retryCount > n.RetryCount {
		n.RetryCount = retryCount
	}
	return nil
}

var _ NotificationRepository = (*MockNotificationRepository)(nil)
