package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"tg-reminder-bot/internal/domain"
)

// Memory — хранилище в памяти для тестов и локального запуска.
type Memory struct {
	mu        sync.RWMutex
	reminders map[string]domain.Reminder
	users     map[string]int64
}

var (
	_ domain.ReminderRepo = (*Memory)(nil)
	_ domain.Directory    = (*Memory)(nil)
)

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{
		reminders: make(map[string]domain.Reminder),
		users:     make(map[string]int64),
	}
}

func (m *Memory) Put(_ context.Context, r domain.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reminders[r.ID]; ok {
		return domain.ErrDuplicateID
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	m.reminders[r.ID] = cloneReminder(r)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (domain.Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reminders[id]
	if !ok {
		return domain.Reminder{}, domain.ErrNotFound
	}
	return cloneReminder(r), nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reminders[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.reminders, id)
	return nil
}

func (m *Memory) ListByOwner(_ context.Context, ownerID int64, includeCompleted bool) ([]domain.Reminder, error) {
	return m.list(func(r domain.Reminder) bool {
		return r.OwnerID == ownerID && (includeCompleted || !r.Completed)
	}), nil
}

func (m *Memory) ListActive(context.Context) ([]domain.Reminder, error) {
	return m.list(func(r domain.Reminder) bool { return !r.Completed }), nil
}

// Patch применяет изменения под одной блокировкой.
func (m *Memory) Patch(_ context.Context, id string, patch domain.ReminderPatch) (domain.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return domain.Reminder{}, domain.ErrNotFound
	}
	r = patch.Apply(r)
	m.reminders[id] = r
	return cloneReminder(r), nil
}

func (m *Memory) MarkCompleted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Completed = true
	m.reminders[id] = r
	return nil
}

func (m *Memory) CompleteIfUnchanged(_ context.Context, id string, kind domain.RuleKind, at domain.TimeOfDay) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok || r.Completed || r.Rule.Kind != kind || r.Time != at {
		return false, nil
	}
	r.Completed = true
	m.reminders[id] = r
	return true, nil
}

func (m *Memory) RegisterUser(_ context.Context, userID int64, username string) error {
	username = domain.NormalizeUsername(username)
	if username == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[username] = userID
	return nil
}

func (m *Memory) ResolveUsername(_ context.Context, username string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.users[domain.NormalizeUsername(username)]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return id, nil
}

func (m *Memory) list(keep func(domain.Reminder) bool) []domain.Reminder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Reminder
	for _, r := range m.reminders {
		if keep(r) {
			out = append(out, cloneReminder(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// cloneReminder отвязывает срезы и указатели от хранимой копии.
func cloneReminder(r domain.Reminder) domain.Reminder {
	r.Messages = append([]domain.MessagePart(nil), r.Messages...)
	if r.Attachment != nil {
		att := *r.Attachment
		r.Attachment = &att
	}
	if r.EndDate != nil {
		d := *r.EndDate
		r.EndDate = &d
	}
	return r
}
