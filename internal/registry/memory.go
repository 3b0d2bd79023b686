package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fentz26/litscreen/internal/models"
)

// MemoryRegistry keeps tasks in process memory for the lifetime of the
// server. Tasks are never evicted.
type MemoryRegistry struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{tasks: make(map[string]*models.Task)}
}

func (m *MemoryRegistry) Create(_ context.Context, task *models.Task) error {
	t, err := prepareNew(task)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; ok {
		return fmt.Errorf("%w: %s", ErrTaskExists, t.ID)
	}
	m.tasks[t.ID] = t
	return nil
}

func (m *MemoryRegistry) Get(_ context.Context, id string) (*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t.Clone(), nil
}

func (m *MemoryRegistry) Update(_ context.Context, id string, fn func(*models.Task) error) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	next, err := applyUpdate(cur, fn)
	if err != nil {
		return nil, err
	}
	m.tasks[id] = next
	return next.Clone(), nil
}

func (m *MemoryRegistry) List(_ context.Context) ([]*models.Task, error) {
	m.mu.RLock()
	out := make([]*models.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
