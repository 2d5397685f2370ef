package api

import (
	"context"

	"github.com/google/uuid"

	"streamlet-api/domain"
)

// Todos is the CRUD service the handlers call into.
type Todos interface {
	Create(ctx context.Context, req domain.CreateTodoRequest) (domain.Todo, error)
	List(ctx context.Context) []domain.Todo
	Get(ctx context.Context, id uuid.UUID) (domain.Todo, error)
	Patch(ctx context.Context, id uuid.UUID, upd domain.UpdateTodoRequest) (domain.Todo, error)
	Delete(ctx context.Context, id uuid.UUID) (domain.Todo, error)
}

// Solver produces the combined routing engine output.
type Solver interface {
	Solve(ctx context.Context) ([]byte, error)
}

// Deduper tracks idempotency keys for create requests.
type Deduper interface {
	// Claim reserves key. When the key is already held it returns false and
	// the todo id recorded for it, or "" while the first request is in flight.
	Claim(ctx context.Context, key string) (claimed bool, existingID string, err error)
	// Complete records the id created for a claimed key.
	Complete(ctx context.Context, key, id string) error
	// Release drops a claimed key so the client may retry.
	Release(ctx context.Context, key string) error
}

// EventPublisher delivers batches of todo events downstream.
type EventPublisher interface {
	PublishEvents(ctx context.Context, events []domain.TodoEvent) error
}
