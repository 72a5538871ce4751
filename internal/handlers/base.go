// Package handlers exposes the engines over a thin JSON HTTP API. The
// caller identifies the acting user through the X-User-ID header; there
// is no authentication layer in front of it.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"concierge-automation/internal/automation"
	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/common/logging"
	"concierge-automation/internal/middleware"
	"concierge-automation/internal/monitor"
	"concierge-automation/internal/scheduler"
	"concierge-automation/internal/storage"
	"concierge-automation/internal/workflow"
)

const userHeader = "X-User-ID"

type Handlers struct {
	store     storage.Storage
	engine    *automation.Engine
	matcher   *automation.Matcher
	scheduler *scheduler.Scheduler
	workflows *workflow.Engine
	monitors  *monitor.Manager
	logger    logging.Logger
}

func New(store storage.Storage, engine *automation.Engine, matcher *automation.Matcher, sched *scheduler.Scheduler, workflows *workflow.Engine, monitors *monitor.Manager, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handlers{
		store:     store,
		engine:    engine,
		matcher:   matcher,
		scheduler: sched,
		workflows: workflows,
		monitors:  monitors,
		logger:    logger.WithFields(logging.String("component", "http")),
	}
}

// Router builds the API route table.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logging(h.logger))
	api := r.PathPrefix("/api").Subrouter()

	// rules
	api.HandleFunc("/rules", h.CreateRule).Methods("POST")
	api.HandleFunc("/rules", h.GetRules).Methods("GET")
	api.HandleFunc("/rules/templates", h.GetTemplates).Methods("GET")
	api.HandleFunc("/rules/templates/{id}", h.InstantiateTemplate).Methods("POST")
	api.HandleFunc("/rules/{id}", h.GetRule).Methods("GET")
	api.HandleFunc("/rules/{id}", h.DeleteRule).Methods("DELETE")
	api.HandleFunc("/rules/{id}/enabled", h.SetRuleEnabled).Methods("PUT")
	api.HandleFunc("/rules/{id}/execute", h.ExecuteRule).Methods("POST")
	api.HandleFunc("/rules/{id}/logs", h.GetRuleLogs).Methods("GET")
	api.HandleFunc("/logs", h.GetUserLogs).Methods("GET")

	// email triggers
	api.HandleFunc("/triggers", h.CreateTrigger).Methods("POST")
	api.HandleFunc("/triggers", h.GetTriggers).Methods("GET")
	api.HandleFunc("/triggers/{id}", h.DeleteTrigger).Methods("DELETE")
	api.HandleFunc("/emails", h.ProcessEmail).Methods("POST")

	// scheduling
	api.HandleFunc("/schedule", h.AutoSchedule).Methods("POST")

	// workflows
	api.HandleFunc("/workflows", h.CreateWorkflow).Methods("POST")
	api.HandleFunc("/workflows", h.GetWorkflows).Methods("GET")
	api.HandleFunc("/workflows/{id}/execute", h.ExecuteWorkflow).Methods("POST")
	api.HandleFunc("/executions", h.GetExecutions).Methods("GET")
	api.HandleFunc("/executions/{id}", h.GetExecution).Methods("GET")
	api.HandleFunc("/approvals", h.SubmitApproval).Methods("POST")

	// monitors
	api.HandleFunc("/monitors/email", h.StartEmailMonitor).Methods("POST")
	api.HandleFunc("/monitors/voicemail", h.StartVoicemailMonitor).Methods("POST")
	api.HandleFunc("/monitors", h.GetMonitors).Methods("GET")
	api.HandleFunc("/monitors/{id}", h.StopMonitor).Methods("DELETE")

	r.HandleFunc("/health", h.Health).Methods("GET")
	return r
}

// userID reads the acting user from the request header.
func userID(r *http.Request) string {
	return r.Header.Get(userHeader)
}

// requireUser writes a 400 and returns "" when the user header is absent.
func (h *Handlers) requireUser(w http.ResponseWriter, r *http.Request) string {
	id := userID(r)
	if id == "" {
		h.writeError(w, errors.ValidationError("X-User-ID header is required"))
	}
	return id
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			h.logger.Warn("failed to encode response", logging.Err(err))
		}
	}
}

// writeError maps the typed error taxonomy onto HTTP status codes.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetType(err) {
	case errors.ErrTypeValidation, errors.ErrTypeConfig:
		status = http.StatusBadRequest
	case errors.ErrTypeNotFound:
		status = http.StatusNotFound
	case errors.ErrTypeToken:
		status = http.StatusUnauthorized
	case errors.ErrTypeTimeout:
		status = http.StatusGatewayTimeout
	case errors.ErrTypeConnection:
		status = http.StatusBadGateway
	}
	if status >= 500 {
		h.logger.Error("request failed", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		h.writeError(w, errors.ValidationError("invalid JSON body"))
		return false
	}
	return true
}

// queryLimit reads an optional ?limit= parameter, zero when absent.
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return limit
}

// Health reports liveness and storage reachability.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Health(); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
