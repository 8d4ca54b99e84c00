package auraflow

import (
	"context"
	"fmt"
	"testing"
)

func sequentialAllocator() (UIDAllocator, *int) {
	count := 0
	return func() string {
		count++
		return fmt.Sprintf("uid-%d", count)
	}, &count
}

func validRecord(overrides map[string]any) map[string]any {
	record := map[string]any{
		"title":          "Write launch notes",
		"status":         "to_do",
		"priority":       "P1",
		"spreadsheet_id": "sheet-abc",
		"sheet_gid":      "0",
	}
	for key, value := range overrides {
		record[key] = value
	}
	return record
}

func TestSyncBatchInsertAllocatesKeyOnce(t *testing.T) {
	store := NewMemoryStore()
	alloc, calls := sequentialAllocator()
	reconciler := NewReconciler(store, alloc)

	results, err := reconciler.SyncBatch(context.Background(), BatchRequest{
		Tasks: []map[string]any{validRecord(map[string]any{"sheet_row_id": "Sheet1:2"})},
	})
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	result := results[0]
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.EventUID == nil || *result.EventUID != "uid-1" {
		t.Fatalf("expected allocated uid in result, got %+v", result.EventUID)
	}
	if result.RowNum == nil || *result.RowNum != 2 {
		t.Fatalf("expected rowNum 2, got %+v", result.RowNum)
	}
	if *calls != 1 {
		t.Fatalf("expected exactly one allocation, got %d", *calls)
	}

	stored, err := store.GetEventByUID(context.Background(), "uid-1")
	if err != nil {
		t.Fatalf("allocated key not in store: %v", err)
	}
	if stored.Title != "Write launch notes" {
		t.Fatalf("unexpected stored title %q", stored.Title)
	}
	if stored.SheetRowID != nil {
		t.Fatalf("sheet_row_id is metadata and must not be stored on insert, got %v", *stored.SheetRowID)
	}
}

func TestSyncBatchUpdateDoesNotReallocateKey(t *testing.T) {
	store := NewMemoryStore()
	alloc, calls := sequentialAllocator()
	reconciler := NewReconciler(store, alloc)
	ctx := context.Background()

	if _, err := reconciler.SyncBatch(ctx, BatchRequest{
		Tasks: []map[string]any{validRecord(nil)},
	}); err != nil {
		t.Fatalf("seed sync failed: %v", err)
	}

	results, err := reconciler.SyncBatch(ctx, BatchRequest{
		Tasks: []map[string]any{validRecord(map[string]any{
			"event_uid": "uid-1",
			"status":    "done",
			"owner":     "mira",
		})},
	})
	if err != nil {
		t.Fatalf("update sync failed: %v", err)
	}
	if !results[0].Success {
		t.Fatalf("expected update success, got %q", results[0].Error)
	}
	if results[0].EventUID == nil || *results[0].EventUID != "uid-1" {
		t.Fatalf("expected existing uid echoed, got %+v", results[0].EventUID)
	}
	if *calls != 1 {
		t.Fatalf("update must not allocate a new key, allocations=%d", *calls)
	}

	stored, err := store.GetEventByUID(ctx, "uid-1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if stored.Status != "done" {
		t.Fatalf("expected status updated to done, got %q", stored.Status)
	}
	if stored.Owner == nil || *stored.Owner != "mira" {
		t.Fatalf("expected owner mira, got %+v", stored.Owner)
	}
}

func TestSyncBatchIsolatesRecordFailures(t *testing.T) {
	store := NewMemoryStore()
	reconciler := NewReconciler(store, nil)

	results, err := reconciler.SyncBatch(context.Background(), BatchRequest{
		Tasks: []map[string]any{
			validRecord(map[string]any{"sheet_row_id": "Sheet1:2"}),
			validRecord(map[string]any{"sheet_row_id": "Sheet1:3", "status": "not-a-status"}),
			validRecord(map[string]any{"sheet_row_id": "Sheet1:4"}),
		},
	})
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Success || !results[2].Success {
		t.Fatalf("expected surrounding records to succeed: %+v", results)
	}
	if results[1].Success || results[1].Error == "" {
		t.Fatalf("expected middle record to fail with an error, got %+v", results[1])
	}
	if results[1].RowNum == nil || *results[1].RowNum != 3 {
		t.Fatalf("failed record must still carry its row number, got %+v", results[1].RowNum)
	}

	events, err := store.ListEvents(context.Background(), nil)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 committed rows, got %d", len(events))
	}
}

func TestSyncBatchUpsertsProjectBeforeRecords(t *testing.T) {
	store := NewMemoryStore()
	reconciler := NewReconciler(store, nil)
	ctx := context.Background()

	results, err := reconciler.SyncBatch(ctx, BatchRequest{
		Project: map[string]any{
			"name":           "Launch",
			"spreadsheet_id": "sheet-abc",
			"category":       "Work",
		},
		Tasks: []map[string]any{validRecord(nil), validRecord(nil)},
	})
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	for i, result := range results {
		if !result.Success {
			t.Fatalf("record %d failed: %q", i, result.Error)
		}
	}

	events, err := store.ListEvents(ctx, nil)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, event := range events {
		if event.ProjectID == nil || *event.ProjectID != 1 {
			t.Fatalf("expected every record linked to upserted project, got %+v", event.ProjectID)
		}
	}

	// Re-syncing with the same spreadsheet_id must hit the same project row.
	if _, err := reconciler.SyncBatch(ctx, BatchRequest{
		Project: map[string]any{"spreadsheet_id": "sheet-abc", "category": "Personal"},
		Tasks:   []map[string]any{},
	}); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	project, err := store.GetProject(ctx, 1)
	if err != nil {
		t.Fatalf("project lookup failed: %v", err)
	}
	if project.Category == nil || *project.Category != "Personal" {
		t.Fatalf("expected upsert to update category, got %+v", project.Category)
	}
}

func TestSyncBatchProjectFailureAbortsRequest(t *testing.T) {
	reconciler := NewReconciler(NewMemoryStore(), nil)
	_, err := reconciler.SyncBatch(context.Background(), BatchRequest{
		Project: map[string]any{"spreadsheet_id": "sheet-abc", "category": 42},
		Tasks:   []map[string]any{validRecord(nil)},
	})
	if err == nil {
		t.Fatal("expected project upsert failure to abort the batch")
	}
}

// Replaying an insert-path record after a partial failure creates a second
// row: the insert path is not idempotent without a key, and the reconciler
// deliberately does not deduplicate.
func TestSyncBatchInsertReplayDuplicates(t *testing.T) {
	store := NewMemoryStore()
	reconciler := NewReconciler(store, nil)
	ctx := context.Background()
	record := validRecord(map[string]any{"sheet_row_id": "Sheet1:5"})

	for i := 0; i < 2; i++ {
		if _, err := reconciler.SyncBatch(ctx, BatchRequest{Tasks: []map[string]any{record}}); err != nil {
			t.Fatalf("sync %d failed: %v", i, err)
		}
	}
	events, err := store.ListEvents(ctx, nil)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("replay without a key is expected to duplicate, got %d rows", len(events))
	}
}

func TestRowNumber(t *testing.T) {
	cases := []struct {
		locator string
		want    *int
	}{
		{"Sheet1:17", intPtr(17)},
		{"tab:with:colons:42", intPtr(42)},
		{"", nil},
		{"Sheet1:abc", nil},
		{"9", intPtr(9)},
	}
	for _, tc := range cases {
		got := RowNumber(tc.locator)
		switch {
		case tc.want == nil && got != nil:
			t.Fatalf("RowNumber(%q): expected nil, got %d", tc.locator, *got)
		case tc.want != nil && (got == nil || *got != *tc.want):
			t.Fatalf("RowNumber(%q): expected %d, got %+v", tc.locator, *tc.want, got)
		}
	}
}

func intPtr(n int) *int {
	return &n
}
