package storage

import (
	"context"
	"sync"

	"dreampulse/internal/domain"
)

// Memory is the in-process store. All reads return deep copies so callers
// can't mutate shared state behind the lock.
type Memory struct {
	mu         sync.RWMutex
	users      map[string]*domain.User
	deliveries map[string][]domain.DeliveryEntry
	logMax     int
}

func NewMemory(cfg Config) *Memory {
	return &Memory{
		users:      map[string]*domain.User{},
		deliveries: map[string][]domain.DeliveryEntry{},
		logMax:     cfg.deliveryLogMax(),
	}
}

func (m *Memory) GetUser(ctx context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *Memory) PutUser(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *Memory) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	delete(m.deliveries, id)
	return nil
}

func (m *Memory) ListArmable(ctx context.Context) ([]*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.User
	for _, u := range m.users {
		if len(u.Recipients) == 0 {
			continue
		}
		if len(u.EnabledSchedules()) == 0 {
			continue
		}
		out = append(out, cloneUser(u))
	}
	return out, nil
}

func (m *Memory) AppendDelivery(ctx context.Context, userID string, e domain.DeliveryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := append(m.deliveries[userID], e)
	if len(log) > m.logMax {
		log = log[len(log)-m.logMax:]
	}
	m.deliveries[userID] = log
	return nil
}

func (m *Memory) ListDeliveries(ctx context.Context, userID string, limit int) ([]domain.DeliveryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	log := m.deliveries[userID]
	if limit <= 0 || limit > len(log) {
		limit = len(log)
	}
	// Most recent first.
	out := make([]domain.DeliveryEntry, 0, limit)
	for i := len(log) - 1; i >= len(log)-limit; i-- {
		out = append(out, log[i])
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

func cloneUser(u *domain.User) *domain.User {
	cp := *u
	cp.Recipients = append([]domain.Recipient(nil), u.Recipients...)
	cp.CustomSchedules = make([]domain.Schedule, len(u.CustomSchedules))
	for i, s := range u.CustomSchedules {
		cp.CustomSchedules[i] = cloneSchedule(s)
	}
	cp.RealityCheck = cloneSchedule(u.RealityCheck)
	return &cp
}

func cloneSchedule(s domain.Schedule) domain.Schedule {
	cp := s
	cp.DaysOfWeek = append([]string(nil), s.DaysOfWeek...)
	return cp
}
