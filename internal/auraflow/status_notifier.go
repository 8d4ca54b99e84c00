package auraflow

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// ErrMissingSpreadsheetID means a status push cannot resolve its target
// sheet; the record never carried a spreadsheet reference.
var ErrMissingSpreadsheetID = errors.New("missing spreadsheet_id in the database record")

// StatusNotifier is the simpler V1 push path for rows without a project
// association: it forwards only the new status, keyed by event_uid, to the
// Apps Script web app. One attempt, no compensation.
type StatusNotifier struct {
	client *SheetWebhookClient
}

func NewStatusNotifier(client *SheetWebhookClient) *StatusNotifier {
	return &StatusNotifier{client: client}
}

// HandleStatusChange pushes the record's current status to the web app and
// returns the receiver's reply.
func (s *StatusNotifier) HandleStatusChange(ctx context.Context, record map[string]any, webhook WebhookConfig) (map[string]any, error) {
	spreadsheetID, _ := record["spreadsheet_id"].(string)
	if spreadsheetID == "" {
		return nil, ErrMissingSpreadsheetID
	}
	eventUID, _ := record["event_uid"].(string)
	status, _ := record["status"].(string)

	payload := SheetPayload{
		Secret:        webhook.Secret,
		SpreadsheetID: spreadsheetID,
		EventUID:      eventUID,
		NewStatus:     status,
	}
	result, err := s.client.Post(ctx, webhook.URL, payload)
	if err != nil {
		log.Printf("status push: web app unreachable (event_uid=%s): %v", eventUID, err)
		return nil, err
	}
	if !result.Delivered() {
		log.Printf("status push: web app rejected update (event_uid=%s): %s", eventUID, result.FailureMessage())
		return result.Raw, fmt.Errorf("web app webhook failed with status %d: %s", result.StatusCode, result.FailureMessage())
	}
	return result.Raw, nil
}
