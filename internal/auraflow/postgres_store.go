package auraflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const postgresOperationTimeout = 5 * time.Second

// Column orders are fixed so dynamic statements stay deterministic.
var eventColumns = []string{
	"event_uid", "sheet_row_id", "title", "status", "priority", "owner",
	"description", "start_time", "end_time", "category", "project_id",
	"spreadsheet_id", "sheet_gid", "created_at",
}

var todoColumns = []string{"text", "done", "is_mission_pool", "event_id"}

// PostgresStore keeps events, projects and todos in Postgres. Connections
// are opened lazily on first use; the schema is created if absent.
type PostgresStore struct {
	dsn    string
	openDB sqlOpenFunc
	now    func() time.Time

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresStore{
		dsn:    dsn,
		openDB: sql.Open,
		now:    time.Now,
	}, nil
}

func (s *PostgresStore) ensureReady() error {
	if s == nil {
		return ErrInvalidInput
	}
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		statements := []string{
			`CREATE TABLE IF NOT EXISTS projects (
				id BIGSERIAL PRIMARY KEY,
				name TEXT,
				spreadsheet_id TEXT NOT NULL UNIQUE,
				category TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS events (
				id BIGSERIAL PRIMARY KEY,
				event_uid TEXT NOT NULL UNIQUE,
				sheet_row_id TEXT,
				title TEXT NOT NULL,
				status TEXT NOT NULL,
				priority TEXT NOT NULL,
				owner TEXT,
				description TEXT,
				start_time TEXT,
				end_time TEXT,
				category TEXT,
				project_id BIGINT REFERENCES projects(id),
				spreadsheet_id TEXT NOT NULL,
				sheet_gid TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS todos (
				id BIGSERIAL PRIMARY KEY,
				text TEXT NOT NULL,
				done BOOLEAN NOT NULL DEFAULT FALSE,
				is_mission_pool BOOLEAN NOT NULL DEFAULT FALSE,
				event_id BIGINT REFERENCES events(id),
				created_at TEXT NOT NULL
			)`,
		}
		for _, statement := range statements {
			if _, err := db.ExecContext(ctx, statement); err != nil {
				_ = db.Close()
				s.initErr = err
				return
			}
		}
		s.db = db
	})
	return s.initErr
}

func (s *PostgresStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *PostgresStore) UpsertProject(ctx context.Context, fields map[string]any) (Project, error) {
	if err := s.ensureReady(); err != nil {
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
	category, _, err := nullableStringField(fields, "category")
	if err != nil {
		return Project{}, err
	}

	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	row := s.db.QueryRowContext(opCtx, `
		INSERT INTO projects (name, spreadsheet_id, category, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (spreadsheet_id)
		DO UPDATE SET
			name = COALESCE(EXCLUDED.name, projects.name),
			category = COALESCE(EXCLUDED.category, projects.category)
		RETURNING id, name, spreadsheet_id, category, created_at`,
		name, spreadsheetID, category, s.timestamp())
	return scanProject(row)
}

func (s *PostgresStore) GetProject(ctx context.Context, id int64) (Project, error) {
	if err := s.ensureReady(); err != nil {
		return Project{}, err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	row := s.db.QueryRowContext(opCtx,
		"SELECT id, name, spreadsheet_id, category, created_at FROM projects WHERE id = $1", id)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	return project, err
}

func (s *PostgresStore) InsertEvent(ctx context.Context, fields map[string]any) (Event, error) {
	if err := s.ensureReady(); err != nil {
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
	if event.CreatedAt == "" {
		event.CreatedAt = s.timestamp()
	}

	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	row := s.db.QueryRowContext(opCtx, `
		INSERT INTO events (event_uid, sheet_row_id, title, status, priority, owner,
			description, start_time, end_time, category, project_id,
			spreadsheet_id, sheet_gid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+eventSelectColumns,
		event.EventUID, event.SheetRowID, event.Title, event.Status, event.Priority,
		event.Owner, event.Description, event.StartTime, event.EndTime,
		event.Category, event.ProjectID, event.SpreadsheetID, event.SheetGID,
		event.CreatedAt)
	return scanEvent(row)
}

func (s *PostgresStore) UpdateEventByUID(ctx context.Context, uid string, fields map[string]any) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if uid == "" {
		return fmt.Errorf("%w: update requires event_uid", ErrInvalidInput)
	}
	// Validate columns and values through the same path as the memory store
	// before touching SQL.
	probe := Event{EventUID: uid, Title: "x", Status: "to_do", Priority: "x", SpreadsheetID: "x", SheetGID: "x"}
	scrubbed := make(map[string]any, len(fields))
	for key, value := range fields {
		if key == "event_uid" {
			continue
		}
		scrubbed[key] = value
	}
	if err := applyEventFields(&probe, scrubbed); err != nil {
		return err
	}
	if len(scrubbed) == 0 {
		return nil
	}

	assignments := make([]string, 0, len(scrubbed))
	args := make([]any, 0, len(scrubbed)+1)
	args = append(args, uid)
	for _, column := range eventColumns {
		value, present := scrubbed[column]
		if !present {
			continue
		}
		args = append(args, normalizeColumnValue(column, value))
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	query := fmt.Sprintf("UPDATE events SET %s WHERE event_uid = $1", strings.Join(assignments, ", "))

	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	_, err := s.db.ExecContext(opCtx, query, args...)
	return err
}

func (s *PostgresStore) GetEventByUID(ctx context.Context, uid string) (Event, error) {
	if err := s.ensureReady(); err != nil {
		return Event{}, err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	row := s.db.QueryRowContext(opCtx,
		"SELECT "+eventSelectColumns+" FROM events WHERE event_uid = $1", uid)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	return event, err
}

func (s *PostgresStore) SetEventSheetRow(ctx context.Context, id int64, sheetRowID string) (Event, error) {
	if err := s.ensureReady(); err != nil {
		return Event{}, err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	row := s.db.QueryRowContext(opCtx,
		"UPDATE events SET sheet_row_id = $2 WHERE id = $1 RETURNING "+eventSelectColumns,
		id, sheetRowID)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	return event, err
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, id int64) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	result, err := s.db.ExecContext(opCtx, "DELETE FROM events WHERE id = $1", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, projectID *int64) ([]Event, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := "SELECT " + eventSelectColumns + " FROM events"
	args := []any{}
	if projectID != nil {
		query += " WHERE project_id = $1"
		args = append(args, *projectID)
	}
	query += " ORDER BY id ASC"
	rows, err := s.db.QueryContext(opCtx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		event, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *PostgresStore) ListTodos(ctx context.Context) ([]Todo, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(opCtx,
		"SELECT id, text, done, is_mission_pool, event_id, created_at FROM todos ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	todos := make([]Todo, 0)
	for rows.Next() {
		todo, scanErr := scanTodo(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		todos = append(todos, todo)
	}
	return todos, rows.Err()
}

func (s *PostgresStore) CreateTodo(ctx context.Context, fields map[string]any) (Todo, error) {
	if err := s.ensureReady(); err != nil {
		return Todo{}, err
	}
	todo := Todo{}
	if err := applyTodoFields(&todo, fields); err != nil {
		return Todo{}, err
	}
	if todo.Text == "" {
		return Todo{}, fmt.Errorf("%w: todo requires text", ErrInvalidInput)
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	row := s.db.QueryRowContext(opCtx, `
		INSERT INTO todos (text, done, is_mission_pool, event_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, text, done, is_mission_pool, event_id, created_at`,
		todo.Text, todo.Done, todo.IsMissionPool, todo.EventID, s.timestamp())
	return scanTodo(row)
}

func (s *PostgresStore) UpdateTodo(ctx context.Context, id int64, fields map[string]any) (Todo, error) {
	if err := s.ensureReady(); err != nil {
		return Todo{}, err
	}
	probe := Todo{Text: "x"}
	if err := applyTodoFields(&probe, fields); err != nil {
		return Todo{}, err
	}
	if len(fields) == 0 {
		return s.getTodo(ctx, id)
	}

	assignments := make([]string, 0, len(fields))
	args := []any{id}
	for _, column := range todoColumns {
		value, present := fields[column]
		if !present {
			continue
		}
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	query := fmt.Sprintf(
		"UPDATE todos SET %s WHERE id = $1 RETURNING id, text, done, is_mission_pool, event_id, created_at",
		strings.Join(assignments, ", "))

	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	todo, err := scanTodo(s.db.QueryRowContext(opCtx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Todo{}, ErrNotFound
	}
	return todo, err
}

func (s *PostgresStore) getTodo(ctx context.Context, id int64) (Todo, error) {
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	todo, err := scanTodo(s.db.QueryRowContext(opCtx,
		"SELECT id, text, done, is_mission_pool, event_id, created_at FROM todos WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Todo{}, ErrNotFound
	}
	return todo, err
}

func (s *PostgresStore) DeleteTodo(ctx context.Context, id int64) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	result, err := s.db.ExecContext(opCtx, "DELETE FROM todos WHERE id = $1", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const eventSelectColumns = `id, event_uid, sheet_row_id, title, status, priority, owner,
	description, start_time, end_time, category, project_id, spreadsheet_id,
	sheet_gid, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var event Event
	err := row.Scan(&event.ID, &event.EventUID, &event.SheetRowID, &event.Title,
		&event.Status, &event.Priority, &event.Owner, &event.Description,
		&event.StartTime, &event.EndTime, &event.Category, &event.ProjectID,
		&event.SpreadsheetID, &event.SheetGID, &event.CreatedAt)
	return event, err
}

func scanProject(row rowScanner) (Project, error) {
	var project Project
	err := row.Scan(&project.ID, &project.Name, &project.SpreadsheetID,
		&project.Category, &project.CreatedAt)
	return project, err
}

func scanTodo(row rowScanner) (Todo, error) {
	var todo Todo
	err := row.Scan(&todo.ID, &todo.Text, &todo.Done, &todo.IsMissionPool,
		&todo.EventID, &todo.CreatedAt)
	return todo, err
}

// normalizeColumnValue coerces JSON-decoded values to what the driver
// expects for the column, mirroring the coercion applyEventFields performs.
func normalizeColumnValue(column string, value any) any {
	switch column {
	case "project_id":
		if f, ok := value.(float64); ok {
			return int64(f)
		}
	case "sheet_gid":
		fields := map[string]any{column: value}
		if normalized, ok, err := locatorField(fields, column); err == nil && ok {
			return normalized
		}
	}
	return value
}
