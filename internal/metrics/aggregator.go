// Package metrics keeps the rolling per-session switching aggregate.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/aura-webinar/autoswitch/internal/models"
	"github.com/aura-webinar/autoswitch/internal/observe"
)

// Aggregator folds decisions and switch records into models.Metrics.
// Writes come from the session loop; Snapshot may be called from any goroutine.
type Aggregator struct {
	mu    sync.Mutex
	dwell time.Duration
	obs   *observe.Metrics

	m models.Metrics
	// automatic decisions accepted by the engine, and how many of them were executed
	autoAccepted int
	autoExecuted int
	reversed     int
	// last automatic switch still open to a reversal check
	lastAuto *models.SwitchRecord
}

// New returns an aggregator. obs may be nil.
func New(dwell time.Duration, obs *observe.Metrics) *Aggregator {
	return &Aggregator{dwell: dwell, obs: obs}
}

// ObserveDecision counts one evaluation and its queueing latency.
func (a *Aggregator) ObserveDecision(d models.SwitchDecision, latency time.Duration) {
	a.mu.Lock()
	a.m.DecisionsEvaluated++
	a.m.AvgDecisionLatencyMS = streamingMean(a.m.AvgDecisionLatencyMS, float64(latency)/float64(time.Millisecond), a.m.DecisionsEvaluated)
	if d.Accepted {
		a.m.DecisionsAccepted++
		if d.TriggerReason != models.TriggerManual {
			a.autoAccepted++
		}
	}
	a.mu.Unlock()

	a.obs.RecordDecision(context.Background(), string(d.Outcome), string(d.TriggerReason), latency.Seconds())
}

// ObserveSwitch folds one executed switch into the aggregate.
func (a *Aggregator) ObserveSwitch(r models.SwitchRecord) {
	a.mu.Lock()
	if a.lastAuto != nil {
		if r.ToCameraID == a.lastAuto.FromCameraID && r.ExecutedAt.Sub(a.lastAuto.ExecutedAt) < a.dwell {
			a.reversed++
		}
		a.lastAuto = nil
	}

	a.m.TotalSwitches++
	switch r.SwitchType {
	case models.SwitchTypeManual:
		a.m.ManualSwitches++
	case models.SwitchTypeFallback:
		a.m.FallbackSwitches++
	}
	if r.SwitchType != models.SwitchTypeManual {
		a.m.AutoSwitches++
		a.autoExecuted++
		rec := r
		a.lastAuto = &rec
	}
	n := a.m.TotalSwitches
	a.m.AvgSwitchTimeMS = streamingMean(a.m.AvgSwitchTimeMS, float64(r.DurationMS), n)
	a.m.AvgConfidence = streamingMean(a.m.AvgConfidence, r.ConfidenceScore, n)
	a.mu.Unlock()

	a.obs.RecordSwitch(context.Background(), string(r.SwitchType), float64(r.DurationMS)/1000)
}

// Snapshot returns the aggregate with success_rate computed on read.
func (a *Aggregator) Snapshot() models.Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.m
	out.SuccessRate = successRate(a.autoAccepted, a.autoExecuted, a.reversed)
	return out
}

func successRate(accepted, executed, reversed int) float64 {
	if accepted == 0 {
		return 1.0
	}
	r := float64(executed-reversed) / float64(accepted)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

func streamingMean(avg, v float64, n int) float64 {
	return avg + (v-avg)/float64(n)
}
