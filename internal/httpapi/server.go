package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/auraflow/sheetbridge/internal/auraflow"
	"github.com/auraflow/sheetbridge/internal/config"
)

type ServerConfig struct {
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

// Server is the HTTP surface of the bridge: the inbound reconciler
// endpoints, the change-trigger hooks, and the small dashboard CRUD
// surface. All request-scoped settings come from the config runtime so
// secret rotation takes effect without a restart.
type Server struct {
	store          auraflow.Store
	reconciler     *auraflow.Reconciler
	creator        *auraflow.Creator
	notifier       *auraflow.Notifier
	statusNotifier *auraflow.StatusNotifier
	runtime        *config.Runtime
	cfg            ServerConfig
}

func NewServer(store auraflow.Store, client *auraflow.SheetWebhookClient, runtime *config.Runtime) *Server {
	return NewServerWithConfig(store, client, runtime, ServerConfig{})
}

func NewServerWithConfig(store auraflow.Store, client *auraflow.SheetWebhookClient, runtime *config.Runtime, cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Server{
		store:          store,
		reconciler:     auraflow.NewReconciler(store, nil),
		creator:        auraflow.NewCreator(store, client, nil),
		notifier:       auraflow.NewNotifier(store, client),
		statusNotifier: auraflow.NewStatusNotifier(client),
		runtime:        runtime,
		cfg:            cfg,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	r = r.WithContext(ctx)

	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	switch {
	case r.URL.Path == "/v1/sync/batch" && r.Method == http.MethodPost:
		s.handleSyncBatch(w, r)
	case r.URL.Path == "/v1/events" && r.Method == http.MethodPost:
		s.handleCreateEvent(w, r)
	case r.URL.Path == "/v1/events" && r.Method == http.MethodGet:
		s.handleListEvents(w, r)
	case r.URL.Path == "/v1/hooks/event-update" && r.Method == http.MethodPost:
		s.handleEventUpdateHook(w, r)
	case r.URL.Path == "/v1/hooks/event-status" && r.Method == http.MethodPost:
		s.handleEventStatusHook(w, r)
	case r.URL.Path == "/v1/todos" && r.Method == http.MethodGet:
		s.handleListTodos(w, r)
	case r.URL.Path == "/v1/todos" && r.Method == http.MethodPost:
		s.handleCreateTodo(w, r)
	case strings.HasPrefix(r.URL.Path, "/v1/todos/") && r.Method == http.MethodPatch:
		s.handleUpdateTodo(w, r)
	case strings.HasPrefix(r.URL.Path, "/v1/todos/") && r.Method == http.MethodDelete:
		s.handleDeleteTodo(w, r)
	default:
		writeError(w, http.StatusNotFound, "route not found")
	}
}

// handleSyncBatch is the lenient reconciler endpoint. Row-level failures are
// reported inside results with an overall 200; only request-level problems
// (auth, malformed body, project upsert) produce a non-2xx.
func (s *Server) handleSyncBatch(w http.ResponseWriter, r *http.Request) {
	cfg := s.runtime.Snapshot()
	if authErr := authorizeBearer(r.Header.Get("Authorization"), cfg.APIKey); authErr != nil {
		writeError(w, authErr.status, authErr.message)
		return
	}
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusInternalServerError, "invalid JSON payload")
		return
	}
	req, err := decodeBatchRequest(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results, err := s.reconciler.SyncBatch(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Sync processed.",
		"results": results,
	})
}

// decodeBatchRequest accepts the two observed request shapes: a bare array
// of records, or an object with an optional project and a tasks list.
func decodeBatchRequest(payload any) (auraflow.BatchRequest, error) {
	switch typed := payload.(type) {
	case []any:
		tasks, err := recordList(typed)
		if err != nil {
			return auraflow.BatchRequest{}, err
		}
		return auraflow.BatchRequest{Tasks: tasks}, nil
	case map[string]any:
		req := auraflow.BatchRequest{}
		if project, ok := typed["project"]; ok && project != nil {
			projectMap, isMap := project.(map[string]any)
			if !isMap {
				return auraflow.BatchRequest{}, errors.New("invalid data format: project must be an object")
			}
			req.Project = projectMap
		}
		if rawTasks, ok := typed["tasks"]; ok && rawTasks != nil {
			taskList, isList := rawTasks.([]any)
			if !isList {
				return auraflow.BatchRequest{}, errors.New("invalid data format: tasks must be an array")
			}
			tasks, err := recordList(taskList)
			if err != nil {
				return auraflow.BatchRequest{}, err
			}
			req.Tasks = tasks
		}
		return req, nil
	default:
		return auraflow.BatchRequest{}, errors.New("invalid data format: expected an array of events or an object with tasks")
	}
}

func recordList(items []any) ([]map[string]any, error) {
	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		record, ok := item.(map[string]any)
		if !ok {
			return nil, errors.New("invalid data format: every record must be an object")
		}
		records = append(records, record)
	}
	return records, nil
}

// handleCreateEvent is the strict single-record create: validate required
// fields up front, then insert-and-mirror with a compensating delete if the
// mirror fails.
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	cfg := s.runtime.Snapshot()
	if authErr := authorizeBearer(r.Header.Get("Authorization"), cfg.APIKey); authErr != nil {
		writeError(w, authErr.status, authErr.message)
		return
	}
	var payload map[string]any
	if !s.decodeJSONBody(w, r, &payload) {
		return
	}
	webhook := auraflow.WebhookConfig{URL: cfg.WebhookURL, Secret: cfg.WebhookSecret}
	if !webhook.Configured() {
		writeError(w, http.StatusInternalServerError, "Server is missing sheet webhook configuration.")
		return
	}

	outcome, err := s.creator.Create(r.Context(), payload, webhook)
	if err != nil {
		var missing *auraflow.MissingFieldsError
		if errors.As(err, &missing) {
			writeError(w, http.StatusBadRequest, missing.Error())
			return
		}
		var delivery *auraflow.SheetDeliveryError
		if errors.As(err, &delivery) {
			writeError(w, http.StatusBadGateway, delivery.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"event":  outcome.Event,
		"sheet":  outcome.Sheet,
	})
}

// handleEventUpdateHook receives the store's change notification for rows in
// the project-linked flow. There is nothing to undo on failure: the row is
// already committed, so errors only surface as a 500 to the trigger caller.
func (s *Server) handleEventUpdateHook(w http.ResponseWriter, r *http.Request) {
	cfg := s.runtime.Snapshot()
	if authErr := authorizeBearer(r.Header.Get("Authorization"), cfg.APIKey); authErr != nil {
		writeError(w, authErr.status, authErr.message)
		return
	}
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON payload"})
		return
	}
	if err := auraflow.ValidateChangeEnvelope(raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	var env auraflow.ChangeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON payload"})
		return
	}
	webhook := auraflow.WebhookConfig{URL: cfg.WebhookURL, Secret: cfg.WebhookSecret}
	if !webhook.Configured() {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Server is missing sheet webhook configuration."})
		return
	}

	outcome, err := s.notifier.HandleUpdate(r.Context(), env, webhook)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	switch outcome {
	case auraflow.NotifySkipped:
		writeJSON(w, http.StatusOK, map[string]any{"message": "Event has no project_id; handled by the status trigger."})
	case auraflow.NotifyNoChanges:
		writeJSON(w, http.StatusOK, map[string]any{"message": "No synced fields changed; webhook not triggered."})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"message": "Sheet webhook delivered."})
	}
}

// handleEventStatusHook is the V1 push path for project-less rows.
func (s *Server) handleEventStatusHook(w http.ResponseWriter, r *http.Request) {
	cfg := s.runtime.Snapshot()
	if authErr := authorizeBearer(r.Header.Get("Authorization"), cfg.APIKey); authErr != nil {
		writeError(w, authErr.status, authErr.message)
		return
	}
	var payload struct {
		Record map[string]any `json:"record"`
	}
	if !s.decodeJSONBody(w, r, &payload) {
		return
	}
	if payload.Record == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "missing record"})
		return
	}
	if cfg.StatusWebAppURL == "" || cfg.WebhookSecret == "" {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "Server is missing web app webhook configuration."})
		return
	}
	webhook := auraflow.WebhookConfig{URL: cfg.StatusWebAppURL, Secret: cfg.WebhookSecret}

	reply, err := s.statusNotifier.HandleStatusChange(r.Context(), payload.Record, webhook)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"message":         "Webhook sent successfully.",
		"gsheet_response": reply,
	})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	cfg := s.runtime.Snapshot()
	if authErr := authorizeBearer(r.Header.Get("Authorization"), cfg.APIKey); authErr != nil {
		writeError(w, authErr.status, authErr.message)
		return
	}
	var projectID *int64
	if raw := strings.TrimSpace(r.URL.Query().Get("project_id")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid project_id")
			return
		}
		projectID = &parsed
	}
	events, err := s.store.ListEvents(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleListTodos(w http.ResponseWriter, r *http.Request) {
	cfg := s.runtime.Snapshot()
	if authErr := authorizeBearer(r.Header.Get("Authorization"), cfg.APIKey); authErr != nil {
		writeError(w, authErr.status, authErr.message)
		return
	}
	todos, err := s.store.ListTodos(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"todos": todos})
}

func (s *Server) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	cfg := s.runtime.Snapshot()
	if authErr := authorizeBearer(r.Header.Get("Authorization"), cfg.APIKey); authErr != nil {
		writeError(w, authErr.status, authErr.message)
		return
	}
	var fields map[string]any
	if !s.decodeJSONBody(w, r, &fields) {
		return
	}
	todo, err := s.store.CreateTodo(r.Context(), fields)
	if err != nil {
		if errors.Is(err, auraflow.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, todo)
}

func (s *Server) handleUpdateTodo(w http.ResponseWriter, r *http.Request) {
	cfg := s.runtime.Snapshot()
	if authErr := authorizeBearer(r.Header.Get("Authorization"), cfg.APIKey); authErr != nil {
		writeError(w, authErr.status, authErr.message)
		return
	}
	id, ok := todoID(w, r)
	if !ok {
		return
	}
	var fields map[string]any
	if !s.decodeJSONBody(w, r, &fields) {
		return
	}
	todo, err := s.store.UpdateTodo(r.Context(), id, fields)
	if err != nil {
		writeTodoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, todo)
}

func (s *Server) handleDeleteTodo(w http.ResponseWriter, r *http.Request) {
	cfg := s.runtime.Snapshot()
	if authErr := authorizeBearer(r.Header.Get("Authorization"), cfg.APIKey); authErr != nil {
		writeError(w, authErr.status, authErr.message)
		return
	}
	id, ok := todoID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteTodo(r.Context(), id); err != nil {
		writeTodoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func todoID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimPrefix(r.URL.Path, "/v1/todos/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid todo id")
		return 0, false
	}
	return id, true
}

func writeTodoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auraflow.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auraflow.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds configured limit")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload.")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"status":  "error",
		"message": message,
	})
}
