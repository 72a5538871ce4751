package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"concierge-automation/internal/automation"
	"concierge-automation/internal/models"
)

// Email trigger handlers

// CreateTrigger registers an email trigger bound to one of the user's
// rules.
func (h *Handlers) CreateTrigger(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	var spec automation.TriggerSpec
	if !h.decode(w, r, &spec) {
		return
	}
	spec.UserID = user

	trigger, err := h.matcher.AddTrigger(spec)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, trigger)
}

// GetTriggers lists the user's email triggers.
func (h *Handlers) GetTriggers(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	triggers, err := h.matcher.GetUserTriggers(user)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, triggers)
}

// DeleteTrigger removes a trigger. Deleting an unknown trigger reports
// deleted=false rather than an error.
func (h *Handlers) DeleteTrigger(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	deleted, err := h.matcher.DeleteTrigger(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

// ProcessEmail is the feed-in point for inbound email. Every enabled
// trigger of the user is tested against the message; matched rules run
// asynchronously after the response is sent.
func (h *Handlers) ProcessEmail(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	var email models.InboundEmail
	if !h.decode(w, r, &email) {
		return
	}
	email.UserID = user

	if err := h.matcher.ProcessEmail(r.Context(), &email); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
