package db

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jakechorley/radflow/pkg/core/model"
)

// MemoryStore is a process-local ShiftStore used by tests and by the CLI when no database is configured
type MemoryStore struct {
	mu     sync.Mutex
	shifts map[string]model.Shift
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{shifts: make(map[string]model.Shift)}
}

// SaveShift stores a copy of the shift, rejecting bids that break append-only ordering
func (m *MemoryStore) SaveShift(ctx context.Context, change ShiftChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, exists := m.shifts[change.Shift.ID]
	stored := change.Shift.Clone()
	if exists && len(stored.Bids) < len(prev.Bids) {
		return fmt.Errorf("failed to save shift %s: bid history shrank from %d to %d", stored.ID, len(prev.Bids), len(stored.Bids))
	}
	m.shifts[stored.ID] = stored
	return nil
}

func (m *MemoryStore) ListShifts(ctx context.Context) ([]model.Shift, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	shifts := make([]model.Shift, 0, len(m.shifts))
	for _, s := range m.shifts {
		shifts = append(shifts, s.Clone())
	}
	sort.Slice(shifts, func(i, j int) bool {
		return shifts[i].ID < shifts[j].ID
	})
	return shifts, nil
}
