package models

import (
	"time"
)

// MonitorKind identifies the watched source
type MonitorKind string

const (
	MonitorEmail     MonitorKind = "email"
	MonitorVoicemail MonitorKind = "voicemail"
)

// MonitorStatus is the lifecycle state of a monitor
type MonitorStatus string

const (
	MonitorRunning MonitorStatus = "running"
	MonitorStopped MonitorStatus = "stopped"
)

// Monitor is a supervised polling loop feeding external events into the
// engine. Stopping cancels only future poll ticks, never executions
// already dispatched.
type Monitor struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Kind      MonitorKind            `json:"kind"`
	Config    map[string]interface{} `json:"config,omitempty"`
	Status    MonitorStatus          `json:"status"`
	StartedAt time.Time              `json:"started_at"`
	StoppedAt *time.Time             `json:"stopped_at,omitempty"`
}
