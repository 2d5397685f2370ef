package domain

import "github.com/google/uuid"

// Todo represents a single task record owned by the store.
type Todo struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Done        bool      `json:"done"`
	Description string    `json:"description"`
}

// CreateTodoRequest carries the fields accepted by POST /todos. Both fields are
// required; pointers let the decoder tell a missing field from an empty one.
type CreateTodoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// UpdateTodoRequest carries a partial update. Nil fields are left untouched.
type UpdateTodoRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Done        *bool   `json:"done,omitempty"`
}

// NewTodo builds a fresh record with a time ordered id.
func NewTodo(title, description string) (Todo, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Todo{}, err
	}
	return Todo{ID: id, Title: title, Description: description}, nil
}

// Apply copies the present fields of upd onto t.
func (upd UpdateTodoRequest) Apply(t *Todo) {
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Done != nil {
		t.Done = *upd.Done
	}
}

// Empty reports whether the update carries no fields.
func (upd UpdateTodoRequest) Empty() bool {
	return upd.Title == nil && upd.Description == nil && upd.Done == nil
}
