package auraflow

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookConfig is the destination for outbound sheet pushes. The shared
// secret travels in the body, not a header; the Apps Script receiver
// validates it there.
type WebhookConfig struct {
	URL    string
	Secret string
}

func (c WebhookConfig) Configured() bool {
	return strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.Secret) != ""
}

// SheetLookup tells the receiver which row to touch.
type SheetLookup struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// SheetPayload is the body posted to the spreadsheet webhook receiver.
type SheetPayload struct {
	Secret        string         `json:"secret"`
	Action        string         `json:"action,omitempty"`
	SpreadsheetID string         `json:"spreadsheet_id"`
	SheetGID      string         `json:"sheet_gid,omitempty"`
	Lookup        *SheetLookup   `json:"lookup,omitempty"`
	EventUID      string         `json:"event_uid,omitempty"`
	NewStatus     string         `json:"new_status,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

// SheetResult is the receiver's parsed reply. Non-JSON bodies are kept
// verbatim under Raw["raw"].
type SheetResult struct {
	StatusCode int
	Success    bool
	SheetRowID string
	ErrMessage string
	Raw        map[string]any
}

// Delivered reports whether the receiver accepted the push.
func (r SheetResult) Delivered() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299 && r.Success
}

// FailureMessage picks the most specific error text available.
func (r SheetResult) FailureMessage() string {
	if r.ErrMessage != "" {
		return r.ErrMessage
	}
	if r.StatusCode != 0 {
		return http.StatusText(r.StatusCode)
	}
	return "sheet webhook call failed"
}

type SheetWebhookOptions struct {
	HTTPClient *http.Client
	UserAgent  string
}

// SheetWebhookClient posts payloads to an Apps Script web app. Every call is
// attempted exactly once: nothing in the sync paths retries, and the caller
// decides whether a failed delivery needs compensation.
type SheetWebhookClient struct {
	httpClient *http.Client
	userAgent  string
}

func NewSheetWebhookClient(opts SheetWebhookOptions) *SheetWebhookClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &SheetWebhookClient{
		httpClient: httpClient,
		userAgent:  strings.TrimSpace(opts.UserAgent),
	}
}

// Post sends one payload. The returned error covers transport and encoding
// failures only; a reachable receiver that reports failure shows up in the
// result, not the error.
func (c *SheetWebhookClient) Post(ctx context.Context, url string, payload SheetPayload) (SheetResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return SheetResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return SheetResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SheetResult{}, err
	}
	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return SheetResult{StatusCode: resp.StatusCode}, readErr
	}
	return parseSheetResponse(resp.StatusCode, respBody), nil
}

func parseSheetResponse(statusCode int, body []byte) SheetResult {
	result := SheetResult{StatusCode: statusCode}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil || parsed == nil {
		result.Raw = map[string]any{"raw": strings.TrimSpace(string(body))}
		return result
	}
	result.Raw = parsed
	if success, ok := parsed["success"].(bool); ok {
		result.Success = success
	}
	if rowID, ok := parsed["sheet_row_id"].(string); ok {
		result.SheetRowID = rowID
	}
	if message, ok := parsed["error"].(string); ok {
		result.ErrMessage = message
	}
	return result
}
