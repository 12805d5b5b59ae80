package models

import "time"

// AudioSample is one audio-activity observation pushed by an analyzer.
type AudioSample struct {
	Level             float64   `json:"level"`
	SpeakerID         string    `json:"speaker_id,omitempty"`
	SpeakerConfidence float64   `json:"speaker_confidence"`
	ObservedAt        time.Time `json:"observed_at"`
}

// EngagementSample is one participant-engagement observation.
type EngagementSample struct {
	ParticipantID string    `json:"participant_id"`
	Attention     float64   `json:"attention"`
	Interaction   float64   `json:"interaction"`
	ObservedAt    time.Time `json:"observed_at"`
}
