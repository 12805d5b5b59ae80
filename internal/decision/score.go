package decision

import (
	"github.com/aura-webinar/autoswitch/internal/cameras"
	"github.com/aura-webinar/autoswitch/internal/models"
)

// Candidate is one camera's fused score for an evaluation.
type Candidate struct {
	CameraID   string
	Audio      float64
	Engagement float64
	Bonus      float64
	Score      float64
	Eligible   bool
}

// audioScore is the window mean of level * speaker match. Samples not
// attributed to cam, or quieter than its threshold, contribute zero.
func (e *Engine) audioScore(cam models.Camera, audio []models.AudioSample) float64 {
	if len(audio) == 0 {
		return 0
	}
	threshold := e.AudioThreshold(cam)
	var sum float64
	for _, s := range audio {
		if s.Level < threshold || !cam.Frames(s.SpeakerID) {
			continue
		}
		sum += s.Level * s.SpeakerConfidence
	}
	return sum / float64(len(audio))
}

// engagementScore weights smoothed attention by how interactive the linked
// participants are. Attention under the camera's threshold scores zero.
func engagementScore(cam models.Camera, engagement []models.EngagementSample) float64 {
	var attention, interaction float64
	n := 0
	for _, s := range engagement {
		if !cam.Frames(s.ParticipantID) {
			continue
		}
		attention += s.Attention
		interaction += s.Interaction
		n++
	}
	if n == 0 {
		return 0
	}
	attention /= float64(n)
	interaction /= float64(n)
	if attention < cam.EngagementThreshold {
		return 0
	}
	return attention * (0.5 + 0.5*interaction)
}

// Score computes a candidate for every registered camera, in priority order.
func (e *Engine) Score(set *cameras.Set, audio []models.AudioSample, engagement []models.EngagementSample) []Candidate {
	_, maxPriority := set.PriorityRange()
	all := set.All()
	out := make([]Candidate, 0, len(all))
	for _, cam := range all {
		c := Candidate{
			CameraID:   cam.ID,
			Audio:      e.audioScore(cam, audio),
			Engagement: engagementScore(cam, engagement),
			Bonus:      e.cfg.PriorityEpsilon * float64(maxPriority-cam.Priority),
			Eligible:   cam.AutoSwitchEnabled,
		}
		c.Score = e.cfg.AudioWeight*c.Audio + e.cfg.EngagementWeight*c.Engagement + c.Bonus
		out = append(out, c)
	}
	return out
}

// AudioThreshold is the camera's own threshold, or the sensitivity preset when unset.
func (e *Engine) AudioThreshold(cam models.Camera) float64 {
	if cam.AudioThreshold > 0 {
		return cam.AudioThreshold
	}
	return e.params.AudioThreshold
}

// Qualifies reports whether s counts as speech for the silence timer of the active camera.
func (e *Engine) Qualifies(active models.Camera, s models.AudioSample) bool {
	return s.Level > e.AudioThreshold(active)
}
