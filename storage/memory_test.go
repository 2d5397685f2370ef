package storage

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"streamlet-api/domain"
)

func mustTodo(t *testing.T, title, description string) domain.Todo {
	t.Helper()
	todo, err := domain.NewTodo(title, description)
	if err != nil {
		t.Fatalf("new todo: %v", err)
	}
	return todo
}

func TestMemoryInsertGet(t *testing.T) {
	m := NewMemory()
	todo := mustTodo(t, "T", "D")
	if err := m.Insert(todo); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := m.Get(todo.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != todo {
		t.Fatalf("unexpected todo: %#v", got)
	}
}

func TestMemoryInsertDuplicate(t *testing.T) {
	m := NewMemory()
	todo := mustTodo(t, "T", "D")
	if err := m.Insert(todo); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := m.Insert(todo); !errors.Is(err, domain.ErrStoreFailure) {
		t.Fatalf("expected store failure for duplicate id, got %v", err)
	}
}

func TestMemoryGetMissing(t *testing.T) {
	m := NewMemory()
	if _, err := m.Get(uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	m := NewMemory()
	todo := mustTodo(t, "T", "D")
	_ = m.Insert(todo)

	got, _ := m.Get(todo.ID)
	got.Title = "changed"

	again, _ := m.Get(todo.ID)
	if again.Title != "T" {
		t.Fatalf("store record was aliased, title=%q", again.Title)
	}
}

func TestMemoryUpdate(t *testing.T) {
	m := NewMemory()
	todo := mustTodo(t, "T", "D")
	_ = m.Insert(todo)

	got, err := m.Update(todo.ID, func(td *domain.Todo) { td.Done = true })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !got.Done || got.Title != "T" || got.Description != "D" {
		t.Fatalf("unexpected updated todo: %#v", got)
	}
	stored, _ := m.Get(todo.ID)
	if stored != got {
		t.Fatalf("update not committed: %#v", stored)
	}
}

func TestMemoryUpdateKeepsID(t *testing.T) {
	m := NewMemory()
	todo := mustTodo(t, "T", "D")
	_ = m.Insert(todo)

	got, err := m.Update(todo.ID, func(td *domain.Todo) { td.ID = uuid.New() })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.ID != todo.ID {
		t.Fatalf("expected id to stay %s, got %s", todo.ID, got.ID)
	}
	if m.Len() != 1 {
		t.Fatalf("expected a single record, got %d", m.Len())
	}
}

func TestMemoryUpdateMissing(t *testing.T) {
	m := NewMemory()
	called := false
	_, err := m.Update(uuid.New(), func(*domain.Todo) { called = true })
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if called {
		t.Fatal("mutation should not run for a missing todo")
	}
}

func TestMemoryUpdatePanicCommitsNothing(t *testing.T) {
	m := NewMemory()
	todo := mustTodo(t, "T", "D")
	_ = m.Insert(todo)

	_, err := m.Update(todo.ID, func(td *domain.Todo) {
		td.Title = "half"
		panic("boom")
	})
	if !errors.Is(err, domain.ErrStoreFailure) {
		t.Fatalf("expected store failure, got %v", err)
	}

	stored, err := m.Get(todo.ID)
	if err != nil {
		t.Fatalf("store unusable after failed update: %v", err)
	}
	if stored.Title != "T" {
		t.Fatalf("partial mutation committed: %#v", stored)
	}
}

func TestMemoryDeleteIsTerminal(t *testing.T) {
	m := NewMemory()
	todo := mustTodo(t, "T", "D")
	_ = m.Insert(todo)

	got, err := m.Delete(todo.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got != todo {
		t.Fatalf("expected deleted record to be returned, got %#v", got)
	}
	if _, err := m.Get(todo.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
	if _, err := m.Update(todo.ID, func(*domain.Todo) {}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update after delete: %v", err)
	}
	if _, err := m.Delete(todo.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestMemoryGetAllReflectsState(t *testing.T) {
	m := NewMemory()
	const n, removed = 10, 4
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		todo := mustTodo(t, "T", "")
		_ = m.Insert(todo)
		ids = append(ids, todo.ID)
	}
	for _, id := range ids[:removed] {
		if _, err := m.Delete(id); err != nil {
			t.Fatalf("delete: %v", err)
		}
	}

	all := m.GetAll()
	if len(all) != n-removed {
		t.Fatalf("expected %d todos, got %d", n-removed, len(all))
	}
	want := make(map[uuid.UUID]bool)
	for _, id := range ids[removed:] {
		want[id] = true
	}
	for _, todo := range all {
		if !want[todo.ID] {
			t.Fatalf("unexpected todo in listing: %s", todo.ID)
		}
	}
}

func TestMemoryGetAllEmpty(t *testing.T) {
	all := NewMemory().GetAll()
	if all == nil || len(all) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", all)
	}
}

func TestMemoryConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	m := NewMemory()
	todo := mustTodo(t, "T", "D")
	_ = m.Insert(todo)

	const rounds = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, _ = m.Update(todo.ID, func(td *domain.Todo) { td.Title = "A" })
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, _ = m.Update(todo.ID, func(td *domain.Todo) { td.Description = "B" })
		}
	}()
	wg.Wait()

	got, _ := m.Get(todo.ID)
	if got.Title != "A" || got.Description != "B" {
		t.Fatalf("lost update: %#v", got)
	}
}

func TestMemoryConcurrentUpdateAndDelete(t *testing.T) {
	m := NewMemory()
	todo := mustTodo(t, "T", "D")
	_ = m.Insert(todo)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	wg.Add(51)
	go func() {
		defer wg.Done()
		_, _ = m.Delete(todo.ID)
	}()
	for i := 0; i < 50; i++ {
		go func() {
			defer wg.Done()
			if _, err := m.Update(todo.ID, func(td *domain.Todo) { td.Done = !td.Done }); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("unexpected error racing delete: %v", err)
		}
	}
	if m.Len() != 0 {
		t.Fatalf("expected todo to be deleted, len=%d", m.Len())
	}
}
