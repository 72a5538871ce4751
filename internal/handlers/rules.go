package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"concierge-automation/internal/automation"
	"concierge-automation/internal/common/errors"
)

// Rule management handlers

// CreateRule creates an automation rule owned by the requesting user.
func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	var spec automation.RuleSpec
	if !h.decode(w, r, &spec) {
		return
	}
	spec.UserID = user

	rule, err := h.engine.AddRule(spec)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rule)
}

// GetRules lists the requesting user's rules in creation order.
func (h *Handlers) GetRules(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	rules, err := h.engine.GetUserRules(user)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rules)
}

// GetRule returns one rule; foreign rules read as not found.
func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	rule, err := h.engine.GetRule(mux.Vars(r)["id"], user)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rule)
}

// SetRuleEnabled toggles a rule without deleting it.
func (h *Handlers) SetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	if body.Enabled == nil {
		h.writeError(w, errors.ValidationError("enabled is required"))
		return
	}
	rule, err := h.engine.SetRuleEnabled(mux.Vars(r)["id"], user, *body.Enabled)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rule)
}

// DeleteRule removes a rule permanently.
func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	if err := h.engine.DeleteRule(mux.Vars(r)["id"], user); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

// ExecuteRule fires a rule with caller-supplied trigger data. The fired
// flag reports false when the rule is unknown, disabled or foreign.
func (h *Handlers) ExecuteRule(w http.ResponseWriter, r *http.Request) {
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
	fired := h.engine.ExecuteRule(r.Context(), mux.Vars(r)["id"], user, body.TriggerData)
	h.writeJSON(w, http.StatusOK, map[string]bool{"fired": fired})
}

// GetRuleLogs returns a rule's most recent execution log entries.
func (h *Handlers) GetRuleLogs(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	// ownership check before the log query
	if _, err := h.engine.GetRule(mux.Vars(r)["id"], user); err != nil {
		h.writeError(w, err)
		return
	}
	logs, err := h.engine.GetRuleExecutionLogs(mux.Vars(r)["id"], queryLimit(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, logs)
}

// GetUserLogs returns the user's most recent execution log entries
// across all rules.
func (h *Handlers) GetUserLogs(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	logs, err := h.engine.GetUserExecutionLogs(user, queryLimit(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, logs)
}

// GetTemplates lists the built-in rule presets.
func (h *Handlers) GetTemplates(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, automation.Templates())
}

// InstantiateTemplate creates a rule for the user from a preset.
func (h *Handlers) InstantiateTemplate(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	template, ok := automation.Template(mux.Vars(r)["id"])
	if !ok {
		h.writeError(w, errors.NotFoundError("rule template"))
		return
	}
	rule, err := h.engine.AddRule(template.Instantiate(user))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rule)
}
