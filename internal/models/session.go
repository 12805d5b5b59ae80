package models

import (
	"time"

	"github.com/google/uuid"
)

// Mode controls who drives camera switching.
type Mode string

const (
	ModeManual    Mode = "manual"
	ModeAutomatic Mode = "automatic"
	ModeHybrid    Mode = "hybrid"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeManual, ModeAutomatic, ModeHybrid:
		return true
	}
	return false
}

// Sensitivity selects a preset of switching parameters.
type Sensitivity string

const (
	SensitivityHigh   Sensitivity = "high"
	SensitivityNormal Sensitivity = "normal"
	SensitivityLow    Sensitivity = "low"
)

// SessionState is the lifecycle state of a switching session.
type SessionState string

const (
	StateInactive SessionState = "Inactive"
	StateStarting SessionState = "Starting"
	StateActive   SessionState = "Active"
	StateStopping SessionState = "Stopping"
	StateStopped  SessionState = "Stopped"
)

// Live reports whether telemetry and camera changes are still accepted.
func (s SessionState) Live() bool {
	return s == StateStarting || s == StateActive
}

// Session is a point-in-time snapshot of one interview's switching context.
type Session struct {
	ID             uuid.UUID    `json:"session_id"`
	InterviewID    string       `json:"interview_id"`
	Mode           Mode         `json:"mode"`
	Sensitivity    Sensitivity  `json:"sensitivity"`
	State          SessionState `json:"state"`
	ActiveCameraID string       `json:"active_camera_id"`
	Cameras        []Camera     `json:"cameras,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	StoppedAt      *time.Time   `json:"stopped_at,omitempty"`
}
