package domain

const (
	TodoCreated = "todo-created"
	TodoUpdated = "todo-updated"
	TodoDeleted = "todo-deleted"
)

// TodoEvent describes a committed change to a todo.
type TodoEvent struct {
	Type      string `json:"type"`
	Todo      Todo   `json:"todo"`
	Timestamp int64  `json:"timestamp"`
}

// EventSink receives change events. Publish must not block the caller for long.
type EventSink interface {
	Publish(ev TodoEvent)
}
