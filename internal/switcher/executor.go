// Package switcher materialises accepted decisions into camera cuts.
package switcher

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aura-webinar/autoswitch/internal/cameras"
	"github.com/aura-webinar/autoswitch/internal/eventlog"
	"github.com/aura-webinar/autoswitch/internal/metrics"
	"github.com/aura-webinar/autoswitch/internal/models"
)

// Listener is notified after every executed switch, on the session loop.
type Listener func(models.SwitchRecord)

// Executor owns active_camera_id for one session. Execute, Manual and Reset
// must only be called from the session loop; Active is safe from anywhere.
type Executor struct {
	registry   *cameras.Registry
	now        func() time.Time
	transition time.Duration
	active     atomic.Pointer[string]
	agg        *metrics.Aggregator
	log        *eventlog.Log
	listeners  []Listener
}

// Options wires the executor's collaborators.
type Options struct {
	Registry *cameras.Registry
	Now      func() time.Time
	// Transition is the assigned cost stamped as duration_ms.
	Transition time.Duration
	Aggregator *metrics.Aggregator
	Log        *eventlog.Log
}

// New returns an executor starting on initial.
func New(initial string, opts Options) *Executor {
	x := &Executor{
		registry:   opts.Registry,
		now:        opts.Now,
		transition: opts.Transition,
		agg:        opts.Aggregator,
		log:        opts.Log,
	}
	if x.now == nil {
		x.now = time.Now
	}
	x.active.Store(&initial)
	return x
}

// OnSwitch registers a listener.
func (x *Executor) OnSwitch(l Listener) {
	x.listeners = append(x.listeners, l)
}

// Active returns the camera currently on air.
func (x *Executor) Active() string {
	return *x.active.Load()
}

// Execute applies an accepted decision. A decision whose target vanished or is
// already on air returns ErrStaleDecision and changes nothing.
func (x *Executor) Execute(d models.SwitchDecision) (models.SwitchRecord, error) {
	if !d.Accepted {
		return models.SwitchRecord{}, models.ErrStaleDecision
	}
	if !x.registry.Snapshot().Has(d.TargetCameraID) || d.TargetCameraID == x.Active() {
		return models.SwitchRecord{}, models.ErrStaleDecision
	}
	typ := models.SwitchTypeAuto
	switch d.TriggerReason {
	case models.TriggerSilenceFallback:
		typ = models.SwitchTypeFallback
	case models.TriggerManual:
		typ = models.SwitchTypeManual
	}
	return x.cut(d.TargetCameraID, typ, d.TriggerReason, d.ConfidenceScore), nil
}

// Manual cuts to target on operator request, bypassing the engine.
func (x *Executor) Manual(target string) (models.SwitchRecord, error) {
	if !x.registry.Snapshot().Has(target) {
		return models.SwitchRecord{}, fmt.Errorf("%w: %q", models.ErrCameraNotFound, target)
	}
	if target == x.Active() {
		return models.SwitchRecord{}, models.ErrStaleDecision
	}
	return x.cut(target, models.SwitchTypeManual, models.TriggerManual, 1.0), nil
}

// Reset moves the active camera without a switch record, for reconfiguration.
func (x *Executor) Reset(target string) {
	x.active.Store(&target)
}

func (x *Executor) cut(target string, typ models.SwitchType, reason models.TriggerReason, confidence float64) models.SwitchRecord {
	from := x.Active()
	x.active.Store(&target)
	r := models.SwitchRecord{
		FromCameraID:    from,
		ToCameraID:      target,
		SwitchType:      typ,
		TriggerReason:   reason,
		ConfidenceScore: confidence,
		DurationMS:      x.transition.Milliseconds(),
		ExecutedAt:      x.now(),
	}
	if x.agg != nil {
		x.agg.ObserveSwitch(r)
	}
	if x.log != nil {
		x.log.AppendSwitch(r)
	}
	for _, l := range x.listeners {
		l(r)
	}
	return r
}
