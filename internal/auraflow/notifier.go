package auraflow

import (
	"context"
	"log"
	"reflect"
)

// notifierDiffFields is the allow-list compared between row images. Category
// is handled separately because the project may override it.
var notifierDiffFields = []string{
	"title", "status", "priority", "owner", "start_time", "end_time", "description",
}

// ChangeEnvelope is the before/after pair delivered by the store's
// change-notification mechanism.
type ChangeEnvelope struct {
	Record    map[string]any `json:"record"`
	OldRecord map[string]any `json:"old_record"`
}

type NotifyOutcome int

const (
	// NotifySkipped: the row has no project association; the simpler
	// status trigger owns it.
	NotifySkipped NotifyOutcome = iota
	// NotifyNoChanges: no allow-listed field differs; nothing to mirror.
	NotifyNoChanges
	// NotifySent: a diff was delivered to the sheet webhook.
	NotifySent
)

// Notifier mirrors committed row updates out to the spreadsheet. By the time
// it runs the write has already committed, so there is no compensation: a
// failed push is logged and surfaced to the trigger caller, nothing more.
// It never retries.
type Notifier struct {
	store  Store
	client *SheetWebhookClient
}

func NewNotifier(store Store, client *SheetWebhookClient) *Notifier {
	return &Notifier{store: store, client: client}
}

// HandleUpdate computes the outbound diff for one row update and pushes it.
// The outbound path minimizes chatter: unlike the inbound reconciler, which
// writes every supplied field, only changed fields travel.
func (n *Notifier) HandleUpdate(ctx context.Context, env ChangeEnvelope, webhook WebhookConfig) (NotifyOutcome, error) {
	projectID, _, err := int64Field(env.Record, "project_id")
	if err != nil || projectID == nil {
		return NotifySkipped, nil
	}

	// Project category supersedes the row's own category for the outbound
	// diff only; the stored row keeps its value. A failed lookup is
	// tolerated rather than blocking the push.
	finalCategory := env.Record["category"]
	project, lookupErr := n.store.GetProject(ctx, *projectID)
	if lookupErr != nil {
		log.Printf("notify: project category lookup failed (project_id=%d): %v", *projectID, lookupErr)
	} else if project.Category != nil && *project.Category != "" {
		finalCategory = *project.Category
	}

	data := map[string]any{}
	for _, field := range notifierDiffFields {
		if !jsonValueEqual(env.Record[field], env.OldRecord[field]) {
			data[field] = env.Record[field]
		}
	}
	if !jsonValueEqual(finalCategory, env.OldRecord["category"]) {
		data["category"] = finalCategory
	}
	if len(data) == 0 {
		return NotifyNoChanges, nil
	}

	eventUID, _ := env.Record["event_uid"].(string)
	spreadsheetID, _ := env.Record["spreadsheet_id"].(string)
	sheetGID, _, _ := locatorField(env.Record, "sheet_gid")
	payload := SheetPayload{
		Secret:        webhook.Secret,
		Action:        "UPDATE",
		SpreadsheetID: spreadsheetID,
		SheetGID:      sheetGID,
		Lookup:        &SheetLookup{Column: "event_uid", Value: eventUID},
		Data:          data,
	}

	result, err := n.client.Post(ctx, webhook.URL, payload)
	if err != nil {
		log.Printf("notify: sheet webhook unreachable (event_uid=%s): %v", eventUID, err)
		return NotifySent, err
	}
	if !result.Delivered() {
		log.Printf("notify: sheet webhook rejected update (event_uid=%s): %s", eventUID, result.FailureMessage())
		return NotifySent, &SheetDeliveryError{Result: result}
	}
	return NotifySent, nil
}

// jsonValueEqual compares two JSON-decoded scalar values. nil (absent or
// null) only equals nil.
func jsonValueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}
