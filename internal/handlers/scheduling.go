package handlers

import (
	"net/http"

	"concierge-automation/internal/scheduler"
)

// AutoSchedule finds the earliest free slot for the requested event and
// materializes it. An exhausted lookahead window is a 400-class outcome,
// not a fault.
func (h *Handlers) AutoSchedule(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	var req scheduler.EventRequest
	if !h.decode(w, r, &req) {
		return
	}

	event, err := h.scheduler.AutoScheduleEvent(r.Context(), user, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if event == nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unable to find an optimal time within the scheduling window",
		})
		return
	}
	h.writeJSON(w, http.StatusCreated, event)
}
