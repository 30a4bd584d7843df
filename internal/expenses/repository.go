package expenses

import (
	"context"
	"sort"
	"sync"
)

// Repository stores expenses partitioned by user.
type Repository interface {
	// Create stores a new expense.
	Create(ctx context.Context, e Expense) error
	// ListByUser returns the user's expenses, newest date first.
	ListByUser(ctx context.Context, userID string) ([]Expense, error)
	// Kind names the repository for logs, e.g. "cosmos".
	Kind() string
}

// MemoryRepository is an in-process Repository for development and tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	byUser map[string][]Expense
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byUser: make(map[string][]Expense)}
}

// Kind implements Repository.
func (m *MemoryRepository) Kind() string {
	return "memory"
}

// Create implements Repository.
func (m *MemoryRepository) Create(ctx context.Context, e Expense) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.UserID == "" {
		return ErrMissingUser
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byUser[e.UserID] = append(m.byUser[e.UserID], e)
	return nil
}

// ListByUser implements Repository.
func (m *MemoryRepository) ListByUser(ctx context.Context, userID string) ([]Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]Expense, len(m.byUser[userID]))
	copy(out, m.byUser[userID])
	m.mu.RUnlock()

	SortByDateDesc(out)
	return out, nil
}

// SortByDateDesc orders expenses newest date first. Expenses on the same
// date keep their relative order.
func SortByDateDesc(list []Expense) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Date > list[j].Date
	})
}
