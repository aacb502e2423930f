package mocks

import (
	"context"
	"sync"

	"github.com/V4T54L/baitwatch/internal/domain"
)

// MockEventRepository is a mock implementation of domain.EventRepository for testing.
type MockEventRepository struct {
	mu       sync.Mutex
	Inserted []domain.RawTrafficEvent
	// InsertErrs is consumed one entry per Insert call; a nil entry succeeds.
	// Once exhausted, InsertErr applies.
	InsertErrs  []error
	InsertErr   error
	InsertCalls int
	CountErr    error
}

func (m *MockEventRepository) Insert(ctx context.Context, event domain.RawTrafficEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertCalls++
	err := m.InsertErr
	if len(m.InsertErrs) > 0 {
		err = m.InsertErrs[0]
		m.InsertErrs = m.InsertErrs[1:]
	}
	if err != nil {
		return 0, err
	}
	event.ID = int64(len(m.Inserted) + 1)
	m.Inserted = append(m.Inserted, event)
	return event.ID, nil
}

func (m *MockEventRepository) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	return int64(len(m.Inserted)), nil
}

func (m *MockEventRepository) ListAfter(ctx context.Context, afterID int64, limit int) ([]domain.RawTrafficEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RawTrafficEvent
	for _, e := range m.Inserted {
		if e.ID > afterID && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

// Events returns a copy of the inserted events.
func (m *MockEventRepository) Events() []domain.RawTrafficEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RawTrafficEvent(nil), m.Inserted...)
}

// MockCursorRepository is an in-memory domain.CursorRepository.
type MockCursorRepository struct {
	mu      sync.Mutex
	Cursor  *domain.Cursor
	Saves   int
	LoadErr error
	SaveErr error
}

func (m *MockCursorRepository) Load(ctx context.Context) (domain.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return domain.Cursor{}, m.LoadErr
	}
	if m.Cursor == nil {
		return domain.Cursor{}, domain.ErrCursorNotFound
	}
	return *m.Cursor, nil
}

func (m *MockCursorRepository) Save(ctx context.Context, cursor domain.Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Cursor = &cursor
	m.Saves++
	return nil
}

// Current returns the last saved cursor, or the zero cursor.
func (m *MockCursorRepository) Current() domain.Cursor {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Cursor == nil {
		return domain.Cursor{}
	}
	return *m.Cursor
}

// MockDeadLetterRepository is an in-memory domain.DeadLetterRepository. Each
// Replay seals the events spooled so far into one segment; Truncate drops
// the sealed events of the segments it is given.
type MockDeadLetterRepository struct {
	mu        sync.Mutex
	Events    []domain.RawTrafficEvent
	Reasons   []string
	WriteErr  error
	Truncated bool
	sealed    int
}

func (m *MockDeadLetterRepository) Write(ctx context.Context, event domain.RawTrafficEvent, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Events = append(m.Events, event)
	m.Reasons = append(m.Reasons, reason)
	return nil
}

func (m *MockDeadLetterRepository) Replay(ctx context.Context, handler func(event domain.RawTrafficEvent) error) ([]string, error) {
	m.mu.Lock()
	events := append([]domain.RawTrafficEvent(nil), m.Events...)
	m.sealed = len(events)
	m.mu.Unlock()
	if len(events) == 0 {
		return nil, nil
	}
	for _, e := range events {
		if err := handler(e); err != nil {
			return nil, err
		}
	}
	return []string{"sealed"}, nil
}

func (m *MockDeadLetterRepository) Truncate(ctx context.Context, segments []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(segments) == 0 {
		return nil
	}
	m.Events = append([]domain.RawTrafficEvent(nil), m.Events[m.sealed:]...)
	m.Reasons = append([]string(nil), m.Reasons[m.sealed:]...)
	m.sealed = 0
	m.Truncated = true
	return nil
}

// Spooled returns a copy of the events currently held.
func (m *MockDeadLetterRepository) Spooled() []domain.RawTrafficEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RawTrafficEvent(nil), m.Events...)
}
