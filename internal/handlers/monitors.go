package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"concierge-automation/internal/monitor"
)

// Monitor lifecycle handlers

type emailMonitorRequest struct {
	Server          string `json:"server"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	Folder          string `json:"folder,omitempty"`
	PollIntervalSec int    `json:"poll_interval_seconds,omitempty"`
}

type voicemailMonitorRequest struct {
	Endpoint        string `json:"endpoint"`
	APIKey          string `json:"api_key,omitempty"`
	WorkflowID      string `json:"workflow_id"`
	PollIntervalSec int    `json:"poll_interval_seconds,omitempty"`
}

// StartEmailMonitor starts an IMAP polling loop feeding the trigger
// matcher.
func (h *Handlers) StartEmailMonitor(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	var req emailMonitorRequest
	if !h.decode(w, r, &req) {
		return
	}
	mon, err := h.monitors.StartEmailMonitoring(user, monitor.EmailMonitorSpec{
		IMAP: monitor.IMAPConfig{
			Server:   req.Server,
			Username: req.Username,
			Password: req.Password,
			Folder:   req.Folder,
		},
		PollInterval: time.Duration(req.PollIntervalSec) * time.Second,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, mon)
}

// StartVoicemailMonitor starts a voicemail polling loop that runs the
// configured workflow per new transcript.
func (h *Handlers) StartVoicemailMonitor(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	var req voicemailMonitorRequest
	if !h.decode(w, r, &req) {
		return
	}
	mon, err := h.monitors.StartVoicemailMonitoring(user, monitor.VoicemailMonitorSpec{
		Voicemail: monitor.VoicemailConfig{
			Endpoint: req.Endpoint,
			APIKey:   req.APIKey,
		},
		WorkflowID:   req.WorkflowID,
		PollInterval: time.Duration(req.PollIntervalSec) * time.Second,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, mon)
}

// GetMonitors lists the user's monitors, running and stopped.
func (h *Handlers) GetMonitors(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	monitors, err := h.monitors.GetUserMonitors(user)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, monitors)
}

// StopMonitor stops a monitor's polling loop. Stopping an unknown or
// already-stopped monitor succeeds.
func (h *Handlers) StopMonitor(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == "" {
		return
	}
	if err := h.monitors.StopMonitoring(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}
