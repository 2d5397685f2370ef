package storage

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"streamlet-api/domain"
)

var _ domain.TodoStore = (*Memory)(nil)

// Memory is the in-memory todo repository. It owns its map and lock; callers
// only ever see copies of the stored records.
type Memory struct {
	mu    sync.RWMutex
	todos map[uuid.UUID]domain.Todo
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{todos: make(map[uuid.UUID]domain.Todo)}
}

// Insert adds todo under its id.
func (m *Memory) Insert(todo domain.Todo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.todos[todo.ID]; exists {
		return fmt.Errorf("%w: duplicate id %s", domain.ErrStoreFailure, todo.ID)
	}
	m.todos[todo.ID] = todo
	return nil
}

// GetAll returns a snapshot of every todo in no particular order.
func (m *Memory) GetAll() []domain.Todo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Todo, 0, len(m.todos))
	for _, t := range m.todos {
		out = append(out, t)
	}
	return out
}

// Get returns a copy of the todo with the given id.
func (m *Memory) Get(id uuid.UUID) (domain.Todo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.todos[id]
	if !ok {
		return domain.Todo{}, domain.ErrNotFound
	}
	return t, nil
}

// Update runs mutate against a copy of the stored todo and commits the result
// while still holding the write lock. A panicking mutation commits nothing.
func (m *Memory) Update(id uuid.UUID, mutate func(*domain.Todo)) (out domain.Todo, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.todos[id]
	if !ok {
		return domain.Todo{}, domain.ErrNotFound
	}
	defer func() {
		if r := recover(); r != nil {
			out = domain.Todo{}
			err = fmt.Errorf("%w: update %s: %v", domain.ErrStoreFailure, id, r)
		}
	}()
	mutate(&t)
	// the id is immutable whatever the mutation did
	t.ID = id
	m.todos[id] = t
	return t, nil
}

// Delete removes the todo and returns its final state.
func (m *Memory) Delete(id uuid.UUID) (domain.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.todos[id]
	if !ok {
		return domain.Todo{}, domain.ErrNotFound
	}
	delete(m.todos, id)
	return t, nil
}

// Len returns the number of stored todos.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.todos)
}
