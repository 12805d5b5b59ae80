// Package telemetry validates analyzer samples and keeps the bounded rolling
// windows the decision engine smooths over.
package telemetry

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aura-webinar/autoswitch/internal/models"
)

// DefaultSpeakerConfidence is assumed when an analyzer omits speaker_confidence.
const DefaultSpeakerConfidence = 1.0

// MaxClockSkew is how far an analyzer-supplied observed_at may drift from the
// arrival time before it is replaced by the arrival time. It matches the
// default window age so a skewed clock cannot age samples out on arrival.
const MaxClockSkew = 2 * time.Second

// NormalizeAudio checks value ranges and stamps ObservedAt with now when it is
// zero or further than MaxClockSkew from now.
// It is safe to call from any goroutine.
func NormalizeAudio(s models.AudioSample, now time.Time) (models.AudioSample, error) {
	if err := unitRange("level", s.Level); err != nil {
		return s, err
	}
	if err := unitRange("speaker_confidence", s.SpeakerConfidence); err != nil {
		return s, err
	}
	s.SpeakerID = strings.TrimSpace(s.SpeakerID)
	s.ObservedAt = arrival(s.ObservedAt, now)
	return s, nil
}

// NormalizeEngagement checks value ranges and stamps ObservedAt like NormalizeAudio.
func NormalizeEngagement(s models.EngagementSample, now time.Time) (models.EngagementSample, error) {
	s.ParticipantID = strings.TrimSpace(s.ParticipantID)
	if s.ParticipantID == "" {
		return s, fmt.Errorf("%w: participant_id is required", models.ErrInvalidTelemetry)
	}
	if err := unitRange("attention", s.Attention); err != nil {
		return s, err
	}
	if err := unitRange("interaction", s.Interaction); err != nil {
		return s, err
	}
	s.ObservedAt = arrival(s.ObservedAt, now)
	return s, nil
}

func arrival(observed, now time.Time) time.Time {
	if observed.IsZero() {
		return now
	}
	if d := now.Sub(observed); d > MaxClockSkew || d < -MaxClockSkew {
		return now
	}
	return observed
}

func unitRange(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
		return fmt.Errorf("%w: %s must be within [0,1], got %v", models.ErrInvalidTelemetry, field, v)
	}
	return nil
}
