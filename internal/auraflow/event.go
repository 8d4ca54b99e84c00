package auraflow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Event statuses accepted by the store. The spreadsheet is the source of
// truth for everything else, but a row with an unknown status is rejected.
var EventStatuses = []string{"to_do", "in_progress", "done", "on_hold", "cancelled"}

// Event is one schedulable unit of work, mirrored one-to-one with a
// spreadsheet row. EventUID is the join key between the two stores: assigned
// once, never regenerated. SheetRowID is a "<sheet>:<row>" locator owned by
// the spreadsheet side and moves as rows move.
//
// StartTime/EndTime/CreatedAt are carried as the timestamp strings the
// spreadsheet sent; the bridge does not interpret them.
type Event struct {
	ID            int64   `json:"id"`
	EventUID      string  `json:"event_uid"`
	SheetRowID    *string `json:"sheet_row_id"`
	Title         string  `json:"title"`
	Status        string  `json:"status"`
	Priority      string  `json:"priority"`
	Owner         *string `json:"owner"`
	Description   *string `json:"description"`
	StartTime     *string `json:"start_time"`
	EndTime       *string `json:"end_time"`
	Category      *string `json:"category"`
	ProjectID     *int64  `json:"project_id"`
	SpreadsheetID string  `json:"spreadsheet_id"`
	SheetGID      string  `json:"sheet_gid"`
	CreatedAt     string  `json:"created_at"`
}

// Project groups events. SpreadsheetID is the upsert conflict key. A non-null
// project Category overrides the event's own category in outbound
// notifications only; the stored event row is never rewritten.
type Project struct {
	ID            int64   `json:"id"`
	Name          *string `json:"name"`
	SpreadsheetID string  `json:"spreadsheet_id"`
	Category      *string `json:"category"`
	CreatedAt     string  `json:"created_at"`
}

// Todo is a dashboard task. Not part of the spreadsheet sync path;
// IsMissionPool is a UI prioritization flag only.
type Todo struct {
	ID            int64  `json:"id"`
	Text          string `json:"text"`
	Done          bool   `json:"done"`
	IsMissionPool bool   `json:"is_mission_pool"`
	EventID       *int64 `json:"event_id"`
	CreatedAt     string `json:"created_at"`
}

func validStatus(status string) bool {
	for _, s := range EventStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func stringField(fields map[string]any, key string) (string, bool, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, fmt.Errorf("%w: field %s must be a string", ErrInvalidInput, key)
	}
	return s, true, nil
}

func nullableStringField(fields map[string]any, key string) (*string, bool, error) {
	raw, present := fields[key]
	if !present {
		return nil, false, nil
	}
	if raw == nil {
		return nil, true, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, false, fmt.Errorf("%w: field %s must be a string or null", ErrInvalidInput, key)
	}
	return &s, true, nil
}

func int64Field(fields map[string]any, key string) (*int64, bool, error) {
	raw, present := fields[key]
	if !present {
		return nil, false, nil
	}
	switch typed := raw.(type) {
	case nil:
		return nil, true, nil
	case float64:
		n := int64(typed)
		if float64(n) != typed {
			return nil, false, fmt.Errorf("%w: field %s must be an integer", ErrInvalidInput, key)
		}
		return &n, true, nil
	case int:
		n := int64(typed)
		return &n, true, nil
	case int64:
		return &typed, true, nil
	default:
		return nil, false, fmt.Errorf("%w: field %s must be an integer", ErrInvalidInput, key)
	}
}

// locatorField reads a value that spreadsheet payloads send as either a
// string or a number (sheet_gid is numeric in Google Sheets) and normalizes
// it to its string form.
func locatorField(fields map[string]any, key string) (string, bool, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return "", false, nil
	}
	switch typed := raw.(type) {
	case string:
		return typed, true, nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true, nil
	case int64:
		return strconv.FormatInt(typed, 10), true, nil
	case int:
		return strconv.Itoa(typed), true, nil
	default:
		return "", false, fmt.Errorf("%w: field %s must be a string or number", ErrInvalidInput, key)
	}
}

func boolField(fields map[string]any, key string) (*bool, error) {
	raw, present := fields[key]
	if !present || raw == nil {
		return nil, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return nil, fmt.Errorf("%w: field %s must be a boolean", ErrInvalidInput, key)
	}
	return &b, nil
}

// applyEventFields merges a field map onto an event. Unknown columns and
// type mismatches are rejected so that one malformed spreadsheet row fails
// on its own instead of writing garbage.
func applyEventFields(event *Event, fields map[string]any) error {
	for key := range fields {
		switch key {
		case "event_uid", "sheet_row_id", "title", "status", "priority", "owner",
			"description", "start_time", "end_time", "category", "project_id",
			"spreadsheet_id", "sheet_gid", "created_at":
		default:
			return fmt.Errorf("%w: unknown column %s", ErrInvalidInput, key)
		}
	}
	if title, ok, err := stringField(fields, "title"); err != nil {
		return err
	} else if ok {
		event.Title = title
	}
	if status, ok, err := stringField(fields, "status"); err != nil {
		return err
	} else if ok {
		if !validStatus(status) {
			return fmt.Errorf("%w: invalid status %q", ErrInvalidInput, status)
		}
		event.Status = status
	}
	if priority, ok, err := stringField(fields, "priority"); err != nil {
		return err
	} else if ok {
		event.Priority = priority
	}
	if owner, ok, err := nullableStringField(fields, "owner"); err != nil {
		return err
	} else if ok {
		event.Owner = owner
	}
	if description, ok, err := nullableStringField(fields, "description"); err != nil {
		return err
	} else if ok {
		event.Description = description
	}
	if startTime, ok, err := nullableStringField(fields, "start_time"); err != nil {
		return err
	} else if ok {
		event.StartTime = startTime
	}
	if endTime, ok, err := nullableStringField(fields, "end_time"); err != nil {
		return err
	} else if ok {
		event.EndTime = endTime
	}
	if category, ok, err := nullableStringField(fields, "category"); err != nil {
		return err
	} else if ok {
		event.Category = category
	}
	if projectID, ok, err := int64Field(fields, "project_id"); err != nil {
		return err
	} else if ok {
		event.ProjectID = projectID
	}
	if spreadsheetID, ok, err := stringField(fields, "spreadsheet_id"); err != nil {
		return err
	} else if ok {
		event.SpreadsheetID = spreadsheetID
	}
	if sheetGID, ok, err := locatorField(fields, "sheet_gid"); err != nil {
		return err
	} else if ok {
		event.SheetGID = sheetGID
	}
	if sheetRowID, ok, err := nullableStringField(fields, "sheet_row_id"); err != nil {
		return err
	} else if ok {
		event.SheetRowID = sheetRowID
	}
	if createdAt, ok, err := nullableStringField(fields, "created_at"); err != nil {
		return err
	} else if ok && createdAt != nil {
		event.CreatedAt = *createdAt
	}
	return nil
}

func validateEventRow(event Event) error {
	missing := []string{}
	if strings.TrimSpace(event.Title) == "" {
		missing = append(missing, "title")
	}
	if event.Status == "" {
		missing = append(missing, "status")
	}
	if event.Priority == "" {
		missing = append(missing, "priority")
	}
	if event.SpreadsheetID == "" {
		missing = append(missing, "spreadsheet_id")
	}
	if event.SheetGID == "" {
		missing = append(missing, "sheet_gid")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: null value in column %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}
