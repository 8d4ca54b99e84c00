package auraflow

import (
	"context"
	"fmt"
	"log"
)

// BatchRequest is a decoded lenient sync request: either a bare array of
// records (Project nil) or the {project, tasks} envelope.
type BatchRequest struct {
	Project map[string]any
	Tasks   []map[string]any
}

// RowResult is the per-row outcome returned to the spreadsheet caller, which
// uses it to write allocated keys back into the sheet and to mark rows
// synced. It is never persisted.
type RowResult struct {
	Success  bool    `json:"success"`
	RowNum   *int    `json:"rowNum"`
	EventUID *string `json:"event_uid"`
	Error    string  `json:"error,omitempty"`
}

// Reconciler applies externally-authored spreadsheet batches to the event
// store. Records are processed strictly in submission order, one at a time:
// this bounds write load on the shared store and guarantees the project
// upsert is visible before any record that depends on it. Do not
// parallelize this loop.
type Reconciler struct {
	store  Store
	newUID UIDAllocator
}

func NewReconciler(store Store, newUID UIDAllocator) *Reconciler {
	if newUID == nil {
		newUID = NewEventUID
	}
	return &Reconciler{store: store, newUID: newUID}
}

// SyncBatch reconciles one batch. A project descriptor carrying a
// spreadsheet_id is upserted first and its id attached to every record.
// Record-level failures are captured into the result list and the batch
// continues; only the project upsert aborts the whole request.
func (r *Reconciler) SyncBatch(ctx context.Context, req BatchRequest) ([]RowResult, error) {
	var projectID *int64
	if spreadsheetID, _ := req.Project["spreadsheet_id"].(string); spreadsheetID != "" {
		project, err := r.store.UpsertProject(ctx, req.Project)
		if err != nil {
			return nil, fmt.Errorf("project upsert: %w", err)
		}
		projectID = &project.ID
	}

	results := make([]RowResult, 0, len(req.Tasks))
	for _, record := range req.Tasks {
		results = append(results, r.processRecord(ctx, record, projectID))
	}
	return results, nil
}

func (r *Reconciler) processRecord(ctx context.Context, record map[string]any, projectID *int64) RowResult {
	fields := make(map[string]any, len(record))
	for key, value := range record {
		fields[key] = value
	}

	// The row locator is metadata, not a column: keep it for the result
	// line only.
	locator, _ := fields["sheet_row_id"].(string)
	result := RowResult{RowNum: RowNumber(locator)}

	if err := ValidateRecord(fields); err != nil {
		result.Error = err.Error()
		log.Printf("sync: rejecting record (sheet_row_id=%q): %v", locator, err)
		return result
	}
	delete(fields, "sheet_row_id")
	if projectID != nil {
		fields["project_id"] = *projectID
	}

	uid, _ := fields["event_uid"].(string)
	if uid != "" {
		// Update path: apply every supplied field to the row matching the
		// key. No diffing; the sheet is the source of truth per field.
		delete(fields, "event_uid")
		result.EventUID = &uid
		if err := r.store.UpdateEventByUID(ctx, uid, fields); err != nil {
			result.Error = err.Error()
			log.Printf("sync: update failed (event_uid=%s): %v", uid, err)
			return result
		}
		result.Success = true
		return result
	}

	// Insert path: the key is allocated here, before the write, so the
	// result line can hand it back to the caller for write-back into the
	// sheet row. It is only reported once the insert commits.
	newUID := r.newUID()
	fields["event_uid"] = newUID
	if _, err := r.store.InsertEvent(ctx, fields); err != nil {
		result.Error = err.Error()
		log.Printf("sync: insert failed (sheet_row_id=%q): %v", locator, err)
		return result
	}
	result.EventUID = &newUID
	result.Success = true
	return result
}
