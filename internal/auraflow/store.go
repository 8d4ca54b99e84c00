package auraflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store is the event store behind the sync endpoints. Field maps carry the
// columns exactly as the caller supplied them; updates apply every supplied
// field without diffing (the spreadsheet is trusted per field on the inbound
// path).
type Store interface {
	UpsertProject(ctx context.Context, fields map[string]any) (Project, error)
	GetProject(ctx context.Context, id int64) (Project, error)

	InsertEvent(ctx context.Context, fields map[string]any) (Event, error)
	UpdateEventByUID(ctx context.Context, uid string, fields map[string]any) error
	GetEventByUID(ctx context.Context, uid string) (Event, error)
	SetEventSheetRow(ctx context.Context, id int64, sheetRowID string) (Event, error)
	DeleteEvent(ctx context.Context, id int64) error
	ListEvents(ctx context.Context, projectID *int64) ([]Event, error)

	ListTodos(ctx context.Context) ([]Todo, error)
	CreateTodo(ctx context.Context, fields map[string]any) (Todo, error)
	UpdateTodo(ctx context.Context, id int64, fields map[string]any) (Todo, error)
	DeleteTodo(ctx context.Context, id int64) error

	Close() error
}

// MemoryStore is the in-process Store used in tests and for local runs
// without a database.
type MemoryStore struct {
	mu sync.Mutex

	events   map[int64]*Event
	projects map[int64]*Project
	todos    map[int64]*Todo

	nextEventID   int64
	nextProjectID int64
	nextTodoID    int64

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:   map[int64]*Event{},
		projects: map[int64]*Project{},
		todos:    map[int64]*Todo{},
		now:      time.Now,
	}
}

func (s *MemoryStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *MemoryStore) UpsertProject(ctx context.Context, fields map[string]any) (Project, error) {
	if err := ctx.Err(); err != nil {
		return Project{}, err
	}
	spreadsheetID, ok, err := stringField(fields, "spreadsheet_id")
	if err != nil {
		return Project{}, err
	}
	if !ok || spreadsheetID == "" {
		return Project{}, fmt.Errorf("%w: project requires spreadsheet_id", ErrInvalidInput)
	}
	name, _, err := nullableStringField(fields, "name")
	if err != nil {
		return Project{}, err
	}
	category, hasCategory, err := nullableStringField(fields, "category")
	if err != nil {
		return Project{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, project := range s.projects {
		if project.SpreadsheetID == spreadsheetID {
			if name != nil {
				project.Name = name
			}
			if hasCategory {
				project.Category = category
			}
			return *project, nil
		}
	}
	s.nextProjectID++
	project := &Project{
		ID:            s.nextProjectID,
		Name:          name,
		SpreadsheetID: spreadsheetID,
		Category:      category,
		CreatedAt:     s.timestamp(),
	}
	s.projects[project.ID] = project
	return *project, nil
}

func (s *MemoryStore) GetProject(ctx context.Context, id int64) (Project, error) {
	if err := ctx.Err(); err != nil {
		return Project{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return *project, nil
}

func (s *MemoryStore) InsertEvent(ctx context.Context, fields map[string]any) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	uid, _, err := stringField(fields, "event_uid")
	if err != nil {
		return Event{}, err
	}
	if uid == "" {
		return Event{}, fmt.Errorf("%w: insert requires event_uid", ErrInvalidInput)
	}
	event := Event{EventUID: uid}
	if err := applyEventFields(&event, fields); err != nil {
		return Event{}, err
	}
	if err := validateEventRow(event); err != nil {
		return Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events {
		if existing.EventUID == uid {
			return Event{}, fmt.Errorf("%w: duplicate event_uid %s", ErrInvalidInput, uid)
		}
	}
	s.nextEventID++
	event.ID = s.nextEventID
	if event.CreatedAt == "" {
		event.CreatedAt = s.timestamp()
	}
	stored := event
	s.events[event.ID] = &stored
	return event, nil
}

// UpdateEventByUID applies every supplied field to the matching row. A uid
// that matches nothing is not an error; the caller learns about drift from
// its own bookkeeping.
func (s *MemoryStore) UpdateEventByUID(ctx context.Context, uid string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if uid == "" {
		return fmt.Errorf("%w: update requires event_uid", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if event.EventUID != uid {
			continue
		}
		updated := *event
		delete(fields, "event_uid")
		if err := applyEventFields(&updated, fields); err != nil {
			return err
		}
		if err := validateEventRow(updated); err != nil {
			return err
		}
		*event = updated
		return nil
	}
	return nil
}

func (s *MemoryStore) GetEventByUID(ctx context.Context, uid string) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if event.EventUID == uid {
			return *event, nil
		}
	}
	return Event{}, ErrNotFound
}

func (s *MemoryStore) SetEventSheetRow(ctx context.Context, id int64, sheetRowID string) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	event.SheetRowID = &sheetRowID
	return *event, nil
}

func (s *MemoryStore) DeleteEvent(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return ErrNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, projectID *int64) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]Event, 0, len(s.events))
	for _, event := range s.events {
		if projectID != nil && (event.ProjectID == nil || *event.ProjectID != *projectID) {
			continue
		}
		events = append(events, *event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}

func (s *MemoryStore) ListTodos(ctx context.Context) ([]Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	todos := make([]Todo, 0, len(s.todos))
	for _, todo := range s.todos {
		todos = append(todos, *todo)
	}
	sort.Slice(todos, func(i, j int) bool { return todos[i].ID < todos[j].ID })
	return todos, nil
}

func (s *MemoryStore) CreateTodo(ctx context.Context, fields map[string]any) (Todo, error) {
	if err := ctx.Err(); err != nil {
		return Todo{}, err
	}
	todo := Todo{}
	if err := applyTodoFields(&todo, fields); err != nil {
		return Todo{}, err
	}
	if todo.Text == "" {
		return Todo{}, fmt.Errorf("%w: todo requires text", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTodoID++
	todo.ID = s.nextTodoID
	todo.CreatedAt = s.timestamp()
	stored := todo
	s.todos[todo.ID] = &stored
	return todo, nil
}

func (s *MemoryStore) UpdateTodo(ctx context.Context, id int64, fields map[string]any) (Todo, error) {
	if err := ctx.Err(); err != nil {
		return Todo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	todo, ok := s.todos[id]
	if !ok {
		return Todo{}, ErrNotFound
	}
	updated := *todo
	if err := applyTodoFields(&updated, fields); err != nil {
		return Todo{}, err
	}
	if updated.Text == "" {
		return Todo{}, fmt.Errorf("%w: todo requires text", ErrInvalidInput)
	}
	*todo = updated
	return *todo, nil
}

func (s *MemoryStore) DeleteTodo(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.todos[id]; !ok {
		return ErrNotFound
	}
	delete(s.todos, id)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func applyTodoFields(todo *Todo, fields map[string]any) error {
	for key := range fields {
		switch key {
		case "text", "done", "is_mission_pool", "event_id":
		default:
			return fmt.Errorf("%w: unknown column %s", ErrInvalidInput, key)
		}
	}
	if text, ok, err := stringField(fields, "text"); err != nil {
		return err
	} else if ok {
		todo.Text = text
	}
	done, err := boolField(fields, "done")
	if err != nil {
		return err
	}
	if done != nil {
		todo.Done = *done
	}
	missionPool, err := boolField(fields, "is_mission_pool")
	if err != nil {
		return err
	}
	if missionPool != nil {
		todo.IsMissionPool = *missionPool
	}
	if eventID, ok, err := int64Field(fields, "event_id"); err != nil {
		return err
	} else if ok {
		todo.EventID = eventID
	}
	return nil
}
