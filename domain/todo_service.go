package domain

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// TodoStore defines the operations the service needs from the repository.
type TodoStore interface {
	Insert(todo Todo) error
	GetAll() []Todo
	Get(id uuid.UUID) (Todo, error)
	Update(id uuid.UUID, mutate func(*Todo)) (Todo, error)
	Delete(id uuid.UUID) (Todo, error)
}

// TodoService translates todo requests into store operations.
type TodoService struct {
	st   TodoStore
	sink EventSink
}

// NewTodoService creates a service backed by st. sink may be nil.
func NewTodoService(st TodoStore, sink EventSink) TodoService {
	return TodoService{st: st, sink: sink}
}

// Create stores a new todo and returns it.
func (s TodoService) Create(ctx context.Context, req CreateTodoRequest) (Todo, error) {
	var title, description string
	if req.Title != nil {
		title = *req.Title
	}
	if req.Description != nil {
		description = *req.Description
	}
	todo, err := NewTodo(title, description)
	if err != nil {
		return Todo{}, fmt.Errorf("generate id: %w", err)
	}
	if err := s.st.Insert(todo); err != nil {
		return Todo{}, err
	}
	s.emit(TodoCreated, todo)
	return todo, nil
}

// List returns every stored todo. The result is never nil.
func (s TodoService) List(ctx context.Context) []Todo {
	todos := s.st.GetAll()
	if todos == nil {
		todos = []Todo{}
	}
	return todos
}

// Get returns a single todo or ErrNotFound.
func (s TodoService) Get(ctx context.Context, id uuid.UUID) (Todo, error) {
	return s.st.Get(id)
}

// Patch applies the present fields of upd in a single store update.
func (s TodoService) Patch(ctx context.Context, id uuid.UUID, upd UpdateTodoRequest) (Todo, error) {
	todo, err := s.st.Update(id, upd.Apply)
	if err != nil {
		return Todo{}, err
	}
	if !upd.Empty() {
		s.emit(TodoUpdated, todo)
	}
	return todo, nil
}

// Delete removes a todo and returns its last state.
func (s TodoService) Delete(ctx context.Context, id uuid.UUID) (Todo, error) {
	todo, err := s.st.Delete(id)
	if err != nil {
		return Todo{}, err
	}
	s.emit(TodoDeleted, todo)
	return todo, nil
}

func (s TodoService) emit(typ string, todo Todo) {
	if s.sink == nil {
		return
	}
	s.sink.Publish(TodoEvent{Type: typ, Todo: todo, Timestamp: nextTimestamp()})
	log.WithFields(log.Fields{"todo": todo.ID, "type": typ}).Debug("todo event emitted")
}
