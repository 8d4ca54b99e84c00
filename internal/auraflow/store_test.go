package auraflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedEventFields(overrides map[string]any) map[string]any {
	fields := map[string]any{
		"event_uid":      "uid-1",
		"title":          "Write launch notes",
		"status":         "to_do",
		"priority":       "P1",
		"spreadsheet_id": "sheet-abc",
		"sheet_gid":      "0",
	}
	for key, value := range overrides {
		fields[key] = value
	}
	return fields
}

func TestMemoryStoreInsertAndGet(t *testing.T) {
	store := NewMemoryStore()
	store.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	event, err := store.InsertEvent(ctx, seedEventFields(map[string]any{"owner": "mira"}))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if event.ID != 1 || event.EventUID != "uid-1" {
		t.Fatalf("unexpected row identity: %+v", event)
	}
	if event.CreatedAt != "2025-06-01T12:00:00Z" {
		t.Fatalf("unexpected created_at %q", event.CreatedAt)
	}

	got, err := store.GetEventByUID(ctx, "uid-1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.Owner == nil || *got.Owner != "mira" {
		t.Fatalf("expected owner persisted, got %+v", got.Owner)
	}
}

func TestMemoryStoreInsertRejectsDuplicateUID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.InsertEvent(ctx, seedEventFields(nil)); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	_, err := store.InsertEvent(ctx, seedEventFields(nil))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for duplicate uid, got %v", err)
	}
}

func TestMemoryStoreInsertRejectsUnknownColumn(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.InsertEvent(context.Background(), seedEventFields(map[string]any{"color": "red"}))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown column, got %v", err)
	}
}

func TestMemoryStoreInsertRejectsBadStatus(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.InsertEvent(context.Background(), seedEventFields(map[string]any{"status": "later"}))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad status, got %v", err)
	}
}

func TestMemoryStoreUpdateAppliesNulls(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.InsertEvent(ctx, seedEventFields(map[string]any{"owner": "mira"})); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := store.UpdateEventByUID(ctx, "uid-1", map[string]any{"owner": nil, "status": "done"}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, err := store.GetEventByUID(ctx, "uid-1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.Owner != nil {
		t.Fatalf("explicit null must clear the column, got %+v", got.Owner)
	}
	if got.Status != "done" {
		t.Fatalf("expected status done, got %q", got.Status)
	}
}

func TestMemoryStoreUpdateUnknownUIDIsSilent(t *testing.T) {
	store := NewMemoryStore()
	if err := store.UpdateEventByUID(context.Background(), "uid-404", map[string]any{"status": "done"}); err != nil {
		t.Fatalf("update of an unknown uid must not error, got %v", err)
	}
}

func TestMemoryStoreDeleteEvent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	event, err := store.InsertEvent(ctx, seedEventFields(nil))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := store.DeleteEvent(ctx, event.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.GetEventByUID(ctx, "uid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteEvent(ctx, event.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestMemoryStoreListEventsByProject(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.InsertEvent(ctx, seedEventFields(map[string]any{"project_id": float64(1)})); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := store.InsertEvent(ctx, seedEventFields(map[string]any{"event_uid": "uid-2", "project_id": float64(2)})); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	projectID := int64(2)
	events, err := store.ListEvents(ctx, &projectID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(events) != 1 || events[0].EventUID != "uid-2" {
		t.Fatalf("unexpected filtered result: %+v", events)
	}
}

func TestMemoryStoreTodoLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	todo, err := store.CreateTodo(ctx, map[string]any{"text": "water the plants"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if todo.Done || todo.IsMissionPool {
		t.Fatalf("expected fresh todo flags unset, got %+v", todo)
	}

	updated, err := store.UpdateTodo(ctx, todo.ID, map[string]any{"done": true})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !updated.Done {
		t.Fatal("expected done flag set")
	}

	if _, err := store.CreateTodo(ctx, map[string]any{"text": ""}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty text, got %v", err)
	}
	if _, err := store.UpdateTodo(ctx, 404, map[string]any{"done": true}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteTodo(ctx, todo.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	todos, err := store.ListTodos(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(todos) != 0 {
		t.Fatalf("expected empty list, got %d", len(todos))
	}
}
