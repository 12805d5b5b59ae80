package telemetry

import (
	"time"

	"github.com/aura-webinar/autoswitch/internal/models"
)

// WindowConfig bounds the rolling windows.
type WindowConfig struct {
	AudioSamples      int
	EngagementSamples int
	MaxAge            time.Duration
}

// DefaultWindowConfig keeps ten samples of each kind for at most two seconds.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{AudioSamples: 10, EngagementSamples: 10, MaxAge: 2 * time.Second}
}

// Ingestor owns the smoothing windows for one session.
type Ingestor struct {
	audio      *Window[models.AudioSample]
	engagement *Window[models.EngagementSample]
}

// NewIngestor creates empty windows sized by cfg.
func NewIngestor(cfg WindowConfig) *Ingestor {
	return &Ingestor{
		audio: NewWindow(cfg.AudioSamples, cfg.MaxAge, func(s models.AudioSample) time.Time {
			return s.ObservedAt
		}),
		engagement: NewWindow(cfg.EngagementSamples, cfg.MaxAge, func(s models.EngagementSample) time.Time {
			return s.ObservedAt
		}),
	}
}

// RecordAudio appends an already normalized audio sample.
func (in *Ingestor) RecordAudio(s models.AudioSample) { in.audio.Push(s) }

// RecordEngagement appends an already normalized engagement sample.
func (in *Ingestor) RecordEngagement(s models.EngagementSample) { in.engagement.Push(s) }

// Snapshot prunes both windows against now and returns their contents.
func (in *Ingestor) Snapshot(now time.Time) ([]models.AudioSample, []models.EngagementSample) {
	in.audio.Prune(now)
	in.engagement.Prune(now)
	return in.audio.Items(), in.engagement.Items()
}

// Reset drops all retained samples.
func (in *Ingestor) Reset() {
	in.audio.Reset()
	in.engagement.Reset()
}
