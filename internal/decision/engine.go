package decision

import (
	"time"

	"github.com/aura-webinar/autoswitch/internal/cameras"
	"github.com/aura-webinar/autoswitch/internal/models"
)

// scoreTolerance absorbs float rounding when comparing score advantages.
const scoreTolerance = 1e-9

// State is the session context an evaluation runs against.
type State struct {
	Mode           models.Mode
	ActiveCameraID string
	// LastSwitchAt is the last executed switch, or session creation when none happened yet.
	LastSwitchAt   time.Time
	LastFallbackAt time.Time
	LastManualAt   time.Time
}

// Engine is stateless between evaluations; the session passes everything in.
type Engine struct {
	params Params
	cfg    Config
}

// New returns an engine for the given sensitivity parameters.
func New(params Params, cfg Config) *Engine {
	return &Engine{params: params, cfg: cfg}
}

// Params returns the sensitivity parameters.
func (e *Engine) Params() Params { return e.params }

// Config returns the shared engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Evaluate applies the switch rules to the current windows.
func (e *Engine) Evaluate(now time.Time, set *cameras.Set, st State, audio []models.AudioSample, engagement []models.EngagementSample) models.SwitchDecision {
	candidates := e.Score(set, audio, engagement)
	scores := make(map[string]float64, len(candidates))
	var (
		challenger *Candidate
		active     Candidate
		sum        float64
	)
	for i := range candidates {
		c := &candidates[i]
		scores[c.CameraID] = c.Score
		sum += c.Score
		if c.CameraID == st.ActiveCameraID {
			active = *c
		}
		// Candidates arrive priority-ordered, so a strict comparison keeps the lower number on ties.
		if c.Eligible && (challenger == nil || c.Score > challenger.Score) {
			challenger = c
		}
	}

	d := models.SwitchDecision{
		TargetCameraID: st.ActiveCameraID,
		EvaluatedAt:    now,
		Outcome:        models.OutcomeStable,
		Scores:         scores,
	}
	if challenger == nil || challenger.CameraID == st.ActiveCameraID {
		d.TriggerReason = trigger(e.cfg, active)
		return d
	}

	d.TargetCameraID = challenger.CameraID
	d.TriggerReason = trigger(e.cfg, *challenger)
	if sum > 0 {
		d.ConfidenceScore = challenger.Score / sum
	}
	if reason, held := e.held(now, st); held {
		d.Outcome = models.OutcomeSuppressed
		d.SuppressedBy = reason
		return d
	}
	if now.Sub(st.LastSwitchAt) < e.params.Dwell {
		d.Outcome = models.OutcomeSuppressed
		d.SuppressedBy = models.SuppressedByCooldown
		return d
	}
	if challenger.Score-active.Score+scoreTolerance < e.params.HysteresisMargin {
		d.Outcome = models.OutcomeSuppressed
		d.SuppressedBy = models.SuppressedByHysteresis
		return d
	}
	d.Accepted = true
	d.Outcome = models.OutcomeSwitch
	return d
}

// EvaluateSilence builds the forced decision fired by the silence timer.
// It bypasses dwell and hysteresis but honours the re-fallback cooldown.
func (e *Engine) EvaluateSilence(now time.Time, set *cameras.Set, st State) models.SwitchDecision {
	target := set.Wide()
	d := models.SwitchDecision{
		TargetCameraID:  target.ID,
		TriggerReason:   models.TriggerSilenceFallback,
		ConfidenceScore: e.cfg.FallbackConfidence,
		EvaluatedAt:     now,
		Outcome:         models.OutcomeStable,
	}
	if target.ID == st.ActiveCameraID {
		return d
	}
	if reason, held := e.held(now, st); held {
		d.Outcome = models.OutcomeSuppressed
		d.SuppressedBy = reason
		return d
	}
	if !st.LastFallbackAt.IsZero() && now.Sub(st.LastFallbackAt) < e.cfg.FallbackCooldown {
		d.Outcome = models.OutcomeSuppressed
		d.SuppressedBy = models.SuppressedByFallbackCooldown
		return d
	}
	d.Accepted = true
	d.Outcome = models.OutcomeSwitch
	return d
}

// held reports whether the session mode blocks automatic cuts right now.
func (e *Engine) held(now time.Time, st State) (models.Suppression, bool) {
	switch st.Mode {
	case models.ModeManual:
		return models.SuppressedByManualMode, true
	case models.ModeHybrid:
		if !st.LastManualAt.IsZero() && now.Sub(st.LastManualAt) < e.cfg.ManualHold {
			return models.SuppressedByManualHold, true
		}
	}
	return "", false
}

func trigger(cfg Config, c Candidate) models.TriggerReason {
	if cfg.EngagementWeight*c.Engagement > cfg.AudioWeight*c.Audio {
		return models.TriggerEngagement
	}
	return models.TriggerSpeakerChange
}
