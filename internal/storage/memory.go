package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps snapshots and expenses in process memory. It
// backs tests and the memory data backend used for local development.
type MemoryRepository struct {
	mu       sync.RWMutex
	states   map[Scope]StateRecord
	expenses map[int64]Expense
	nextID   int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		states:   make(map[Scope]StateRecord),
		expenses: make(map[int64]Expense),
		nextID:   1,
	}
}

func (m *MemoryRepository) Close() error { return nil }

func (m *MemoryRepository) LoadState(_ context.Context, scope Scope) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.states[scope]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(rec.Snapshot))
	copy(out, rec.Snapshot)
	return out, nil
}

func (m *MemoryRepository) SaveState(_ context.Context, rec StateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make([]byte, len(rec.Snapshot))
	copy(snap, rec.Snapshot)
	rec.Snapshot = snap
	rec.UpdatedAt = time.Now().UTC()
	m.states[rec.Scope] = rec
	return nil
}

func (m *MemoryRepository) ListStateScopes(_ context.Context) ([]Scope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	scopes := make([]Scope, 0, len(m.states))
	for s := range m.states {
		scopes = append(scopes, s)
	}
	return scopes, nil
}

func (m *MemoryRepository) InsertExpense(_ context.Context, e Expense) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.nextID
	m.nextID++
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.expenses[e.ID] = e
	return e.ID, nil
}

func (m *MemoryRepository) ListExpenses(_ context.Context, userID, projectID string) ([]Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Expense
	for id := m.nextID - 1; id >= 1; id-- {
		e, ok := m.expenses[id]
		if ok && e.UserID == userID && e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryRepository) DeleteExpense(_ context.Context, userID, projectID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.expenses[id]
	if !ok || e.UserID != userID || e.ProjectID != projectID {
		return ErrExpenseNotFound
	}
	delete(m.expenses, id)
	return nil
}

func (m *MemoryRepository) SumExpensesByAccount(_ context.Context, userID, projectID string) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sums := make(map[string]int64)
	for _, e := range m.expenses {
		if e.UserID == userID && e.ProjectID == projectID {
			sums[e.Account] += e.AmountCents
		}
	}
	return sums, nil
}
