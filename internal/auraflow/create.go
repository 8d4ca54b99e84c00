package auraflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// requiredCreateFields is the fixed set the strict create endpoint demands
// before touching the store. Order matters: the error message lists missing
// fields in this order.
var requiredCreateFields = []string{
	"title", "status", "priority", "project_id", "spreadsheet_id", "sheet_gid",
}

// createColumns are the payload fields the strict endpoint copies into the
// new row; anything else in the request body is dropped.
var createColumns = []string{
	"title", "status", "priority", "owner", "description", "start_time",
	"end_time", "project_id", "category", "spreadsheet_id", "sheet_gid",
}

// MissingFieldsError reports which required fields were absent, null or
// empty in a strict create request.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "Missing required fields: " + strings.Join(e.Fields, ", ")
}

// SheetDeliveryError means the spreadsheet webhook rejected or never
// received the mirror of a just-created row; the row has already been
// compensated away by the time this error is returned.
type SheetDeliveryError struct {
	Result SheetResult
	Cause  error
}

func (e *SheetDeliveryError) Error() string {
	if e.Cause != nil {
		return "sheet webhook call failed: " + e.Cause.Error()
	}
	return e.Result.FailureMessage()
}

func (e *SheetDeliveryError) Unwrap() error {
	return e.Cause
}

// CreateOutcome is the strict endpoint's success response: the final stored
// row and the webhook receiver's reply.
type CreateOutcome struct {
	Event Event          `json:"event"`
	Sheet map[string]any `json:"sheet"`
}

// Creator implements strict single-record creation: insert with a
// pre-generated key, mirror the row into the spreadsheet, and delete the
// row again if the mirror fails. Insert and webhook call share one request,
// which is the only reason compensation is possible here at all.
type Creator struct {
	store  Store
	client *SheetWebhookClient
	newUID UIDAllocator
}

func NewCreator(store Store, client *SheetWebhookClient, newUID UIDAllocator) *Creator {
	if newUID == nil {
		newUID = NewEventUID
	}
	return &Creator{store: store, client: client, newUID: newUID}
}

func (c *Creator) Create(ctx context.Context, payload map[string]any, webhook WebhookConfig) (CreateOutcome, error) {
	if missing := missingCreateFields(payload); len(missing) > 0 {
		return CreateOutcome{}, &MissingFieldsError{Fields: missing}
	}
	if !webhook.Configured() {
		return CreateOutcome{}, errors.New("sheet webhook is not configured")
	}

	fields := map[string]any{
		"event_uid":    c.newUID(),
		"sheet_row_id": nil,
	}
	for _, column := range createColumns {
		if value, ok := payload[column]; ok {
			fields[column] = value
		}
	}

	var inserted Event
	var sheetResult SheetResult
	steps := []sagaStep{
		{
			name: "insert event",
			run: func(ctx context.Context) error {
				event, err := c.store.InsertEvent(ctx, fields)
				if err != nil {
					return err
				}
				inserted = event
				return nil
			},
			compensate: func(ctx context.Context) error {
				return c.store.DeleteEvent(ctx, inserted.ID)
			},
		},
		{
			name: "append to sheet",
			run: func(ctx context.Context) error {
				result, err := c.client.Post(ctx, webhook.URL, createSheetPayload(webhook.Secret, inserted))
				sheetResult = result
				if err != nil {
					return &SheetDeliveryError{Result: result, Cause: err}
				}
				if !result.Delivered() {
					return &SheetDeliveryError{Result: result}
				}
				return nil
			},
		},
	}
	if err := runSaga(ctx, steps); err != nil {
		var delivery *SheetDeliveryError
		if errors.As(err, &delivery) {
			return CreateOutcome{}, delivery
		}
		return CreateOutcome{}, fmt.Errorf("create event: %w", err)
	}

	// The receiver tells us where the row landed. Losing this write-back is
	// tolerable; the locator is re-learned on the next inbound sync.
	finalEvent := inserted
	if sheetResult.SheetRowID != "" {
		updated, err := c.store.SetEventSheetRow(ctx, inserted.ID, sheetResult.SheetRowID)
		if err != nil {
			log.Printf("create: storing sheet_row_id failed (event id=%d): %v", inserted.ID, err)
		} else {
			finalEvent = updated
		}
	}
	return CreateOutcome{Event: finalEvent, Sheet: sheetResult.Raw}, nil
}

func createSheetPayload(secret string, event Event) SheetPayload {
	return SheetPayload{
		Secret:        secret,
		Action:        "CREATE",
		SpreadsheetID: event.SpreadsheetID,
		SheetGID:      event.SheetGID,
		Data: map[string]any{
			"event_uid":      event.EventUID,
			"title":          event.Title,
			"status":         event.Status,
			"priority":       event.Priority,
			"owner":          event.Owner,
			"description":    event.Description,
			"start_time":     event.StartTime,
			"end_time":       event.EndTime,
			"category":       event.Category,
			"created_at":     event.CreatedAt,
			"spreadsheet_id": event.SpreadsheetID,
			"sheet_gid":      event.SheetGID,
			"sync_status":    "synced",
		},
	}
}

func missingCreateFields(payload map[string]any) []string {
	missing := []string{}
	for _, field := range requiredCreateFields {
		value, ok := payload[field]
		if !ok || value == nil {
			missing = append(missing, field)
			continue
		}
		if s, isString := value.(string); isString && s == "" {
			missing = append(missing, field)
		}
	}
	return missing
}
