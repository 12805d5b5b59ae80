package models

import "time"

// TriggerReason explains why a switch was proposed.
type TriggerReason string

const (
	TriggerSpeakerChange   TriggerReason = "speaker_change"
	TriggerEngagement      TriggerReason = "engagement"
	TriggerSilenceFallback TriggerReason = "silence_fallback"
	TriggerManual          TriggerReason = "manual"
)

// Outcome summarises one evaluation.
type Outcome string

const (
	OutcomeSwitch     Outcome = "switch"
	OutcomeStable     Outcome = "stable"
	OutcomeSuppressed Outcome = "suppressed"
)

// Suppression names the rule that rejected a challenger.
type Suppression string

const (
	SuppressedByCooldown         Suppression = "cooldown"
	SuppressedByHysteresis       Suppression = "hysteresis"
	SuppressedByFallbackCooldown Suppression = "fallback_cooldown"
	SuppressedByManualMode       Suppression = "manual_mode"
	SuppressedByManualHold       Suppression = "manual_hold"
)

// SwitchDecision is the outcome of one evaluation cycle. It is recorded
// whether or not it was accepted.
type SwitchDecision struct {
	TargetCameraID  string             `json:"target_camera_id"`
	TriggerReason   TriggerReason      `json:"trigger_reason"`
	ConfidenceScore float64            `json:"confidence_score"`
	EvaluatedAt     time.Time          `json:"evaluated_at"`
	Accepted        bool               `json:"accepted"`
	Outcome         Outcome            `json:"outcome"`
	SuppressedBy    Suppression        `json:"suppressed_by,omitempty"`
	Scores          map[string]float64 `json:"scores,omitempty"`
}

// SwitchType classifies an executed switch.
type SwitchType string

const (
	SwitchTypeAuto     SwitchType = "auto"
	SwitchTypeManual   SwitchType = "manual"
	SwitchTypeFallback SwitchType = "fallback"
)

// SwitchRecord is an executed switch. Immutable once created.
type SwitchRecord struct {
	FromCameraID    string        `json:"from_camera_id"`
	ToCameraID      string        `json:"to_camera_id"`
	SwitchType      SwitchType    `json:"switch_type"`
	TriggerReason   TriggerReason `json:"trigger_reason"`
	ConfidenceScore float64       `json:"confidence_score"`
	DurationMS      int64         `json:"duration_ms"`
	ExecutedAt      time.Time     `json:"executed_at"`
}

// Metrics is the rolling per-session aggregate.
type Metrics struct {
	TotalSwitches        int     `json:"total_switches"`
	AutoSwitches         int     `json:"auto_switches"`
	ManualSwitches       int     `json:"manual_switches"`
	FallbackSwitches     int     `json:"fallback_switches"`
	AvgSwitchTimeMS      float64 `json:"avg_switch_time_ms"`
	AvgConfidence        float64 `json:"avg_confidence"`
	SuccessRate          float64 `json:"success_rate"`
	DecisionsEvaluated   int     `json:"decisions_evaluated"`
	DecisionsAccepted    int     `json:"decisions_accepted"`
	AvgDecisionLatencyMS float64 `json:"avg_decision_latency_ms"`
}
