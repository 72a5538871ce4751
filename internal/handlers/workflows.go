package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/models"
)

// Workflow handlers

// CreateWorkflow registers a named step pipeline for the user.
func (h *Handlers) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	var workflow models.Workflow
	if !h.decode(w, r, &workflow) {
		return
	}
	workflow.UserID = user

	created, err := h.workflows.CreateWorkflow(&workflow)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// GetWorkflows lists the user's workflow definitions.
func (h *Handlers) GetWorkflows(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	h.writeJSON(w, http.StatusOK, h.workflows.GetUserWorkflows(user))
}

// ExecuteWorkflow starts an execution with caller-supplied trigger data
// and returns the execution in whatever state it reached synchronously,
// including awaiting_approval.
func (h *Handlers) ExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	var body struct {
		TriggerData map[string]interface{} `json:"trigger_data"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	exec, err := h.workflows.ExecuteWorkflow(r.Context(), mux.Vars(r)["id"], user, body.TriggerData)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, exec)
}

// GetExecutions lists the user's workflow executions.
func (h *Handlers) GetExecutions(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	execs, err := h.workflows.GetAllExecutions(user)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, execs)
}

// GetExecution returns one execution; foreign executions read as not
// found.
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	exec, err := h.workflows.GetExecution(mux.Vars(r)["id"], user)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, exec)
}

// SubmitApproval consumes a single-use approval token and resumes or
// fails the paused execution.
func (h *Handlers) SubmitApproval(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		Approved *bool  `json:"approved"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	if body.Token == "" {
		h.writeError(w, errors.ValidationError("token is required"))
		return
	}
	if body.Approved == nil {
		h.writeError(w, errors.ValidationError("approved is required"))
		return
	}
	exec, err := h.workflows.ApproveWorkflow(r.Context(), body.Token, *body.Approved)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, exec)
}
