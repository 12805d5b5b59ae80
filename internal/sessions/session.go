// Package sessions runs one single-writer switching loop per interview and
// exposes the lifecycle over HTTP.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aura-webinar/autoswitch/internal/cameras"
	"github.com/aura-webinar/autoswitch/internal/clock"
	"github.com/aura-webinar/autoswitch/internal/decision"
	"github.com/aura-webinar/autoswitch/internal/eventlog"
	"github.com/aura-webinar/autoswitch/internal/metrics"
	"github.com/aura-webinar/autoswitch/internal/models"
	"github.com/aura-webinar/autoswitch/internal/observe"
	"github.com/aura-webinar/autoswitch/internal/switcher"
	"github.com/aura-webinar/autoswitch/internal/telemetry"
)

// Realtime events pushed to dashboards.
const (
	EventCameraSwitched = "camera_switched"
	EventDecision       = "decision"
	EventSessionStopped = "session_stopped"
)

const inputBuffer = 64

// Broadcaster fans session events out to connected dashboards.
type Broadcaster interface {
	BroadcastToSessionAndPublish(sessionID uuid.UUID, event string, payload interface{})
}

type inputKind int

const (
	inputAudio inputKind = iota
	inputEngagement
	inputManual
	inputSilence
	inputConfigure
	inputSync
)

type input struct {
	kind       inputKind
	audio      models.AudioSample
	engagement models.EngagementSample
	target     string
	cameras    []models.Camera
	generation uint64
	enqueuedAt time.Time
	reply      chan result
}

type result struct {
	decision *models.SwitchDecision
	record   *models.SwitchRecord
	set      *cameras.Set
	err      error
}

// Session is one interview's switching context. All decision state is owned
// by the goroutine started in start; other methods talk to it over inputs.
type Session struct {
	id          uuid.UUID
	interviewID string
	mode        models.Mode
	sensitivity models.Sensitivity
	createdAt   time.Time

	clock  clock.Clock
	logger *zap.Logger
	obs    *observe.Metrics
	hub    Broadcaster

	registry *cameras.Registry
	engine   *decision.Engine
	ingestor *telemetry.Ingestor
	executor *switcher.Executor
	agg      *metrics.Aggregator
	log      *eventlog.Log

	inputs chan input
	quit   chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
	group  *errgroup.Group

	mu        sync.RWMutex
	state     models.SessionState
	stoppedAt *time.Time
	stopOnce  sync.Once

	// owned by the loop
	st         decision.State
	silence    clock.Timer
	silenceGen uint64
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns the lifecycle state.
func (s *Session) State() models.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st models.SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Snapshot returns the session as seen by API callers.
func (s *Session) Snapshot() models.Session {
	s.mu.RLock()
	state, stoppedAt := s.state, s.stoppedAt
	s.mu.RUnlock()
	return models.Session{
		ID:             s.id,
		InterviewID:    s.interviewID,
		Mode:           s.mode,
		Sensitivity:    s.sensitivity,
		State:          state,
		ActiveCameraID: s.executor.Active(),
		Cameras:        s.registry.Snapshot().All(),
		CreatedAt:      s.createdAt,
		StoppedAt:      stoppedAt,
	}
}

// Cameras returns the current registry snapshot.
func (s *Session) Cameras() *cameras.Set { return s.registry.Snapshot() }

// Metrics returns the rolling aggregate.
func (s *Session) Metrics() models.Metrics { return s.agg.Snapshot() }

// Log returns the in-memory event log.
func (s *Session) Log() *eventlog.Log { return s.log }

// Params returns the sensitivity-derived parameters in force.
func (s *Session) Params() decision.Params { return s.engine.Params() }

// SubmitAudio validates a sample on the caller goroutine and evaluates it on the loop.
func (s *Session) SubmitAudio(ctx context.Context, sample models.AudioSample) (models.SwitchDecision, error) {
	sample, err := telemetry.NormalizeAudio(sample, s.clock.Now())
	if err != nil {
		s.obs.RecordSample(ctx, "audio", "invalid")
		return models.SwitchDecision{}, err
	}
	res, err := s.send(ctx, input{kind: inputAudio, audio: sample})
	if err != nil {
		s.obs.RecordSample(ctx, "audio", "dropped")
		return models.SwitchDecision{}, err
	}
	s.obs.RecordSample(ctx, "audio", "accepted")
	return *res.decision, nil
}

// SubmitEngagement validates a sample on the caller goroutine and evaluates it on the loop.
func (s *Session) SubmitEngagement(ctx context.Context, sample models.EngagementSample) (models.SwitchDecision, error) {
	sample, err := telemetry.NormalizeEngagement(sample, s.clock.Now())
	if err != nil {
		s.obs.RecordSample(ctx, "engagement", "invalid")
		return models.SwitchDecision{}, err
	}
	res, err := s.send(ctx, input{kind: inputEngagement, engagement: sample})
	if err != nil {
		s.obs.RecordSample(ctx, "engagement", "dropped")
		return models.SwitchDecision{}, err
	}
	s.obs.RecordSample(ctx, "engagement", "accepted")
	return *res.decision, nil
}

// Switch performs an operator cut. A nil record means target was already on air.
func (s *Session) Switch(ctx context.Context, target string) (*models.SwitchRecord, error) {
	res, err := s.send(ctx, input{kind: inputManual, target: target})
	if err != nil {
		return nil, err
	}
	return res.record, res.err
}

// ConfigureCameras atomically replaces the camera set.
func (s *Session) ConfigureCameras(ctx context.Context, cams []models.Camera) (*cameras.Set, error) {
	res, err := s.send(ctx, input{kind: inputConfigure, cameras: cams})
	if err != nil {
		return nil, err
	}
	return res.set, res.err
}

// Sync returns once every input enqueued before it has been processed.
func (s *Session) Sync(ctx context.Context) error {
	_, err := s.send(ctx, input{kind: inputSync})
	return err
}

func (s *Session) send(ctx context.Context, in input) (result, error) {
	in.enqueuedAt = s.clock.Now()
	in.reply = make(chan result, 1)
	if !s.State().Live() {
		return result{}, fmt.Errorf("%w: %s", models.ErrSessionNotFound, s.id)
	}
	select {
	case s.inputs <- in:
	case <-s.quit:
		return result{}, fmt.Errorf("%w: %s", models.ErrSessionNotFound, s.id)
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
	select {
	case r := <-in.reply:
		return r, nil
	case <-s.done:
		select {
		case r := <-in.reply:
			return r, nil
		default:
			return result{}, fmt.Errorf("%w: %s", models.ErrSessionNotFound, s.id)
		}
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

// enqueue is used by timers that have no caller waiting.
func (s *Session) enqueue(in input) {
	in.enqueuedAt = s.clock.Now()
	select {
	case s.inputs <- in:
	case <-s.quit:
	}
}

func (s *Session) stopping() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

// start moves the session to Active and launches the loop and producers.
func (s *Session) start(producers []producer) {
	s.setState(models.StateStarting)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.group, ctx = errgroup.WithContext(ctx)

	s.armSilence()
	go s.run()
	for _, p := range producers {
		s.group.Go(func() error { return p.run(ctx, s) })
	}
	s.setState(models.StateActive)
	s.obs.SessionStarted(context.Background())
	s.logger.Info("switching session started",
		zap.String("mode", string(s.mode)),
		zap.String("sensitivity", string(s.sensitivity)),
		zap.String("active_camera_id", s.executor.Active()),
		zap.Int("producers", len(producers)))
}

// Stop halts producers, the silence timer and the loop. It reports whether
// this call performed the transition; repeated calls are no-ops.
func (s *Session) Stop() bool {
	stopped := false
	s.stopOnce.Do(func() {
		s.setState(models.StateStopping)
		close(s.quit)
		s.cancel()
		if err := s.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("telemetry producer failed", zap.Error(err))
		}
		<-s.done

		now := s.clock.Now()
		s.mu.Lock()
		s.state = models.StateStopped
		s.stoppedAt = &now
		s.mu.Unlock()
		s.log.AppendSession(eventlog.NoteStopped, s.executor.Active(), now)
		s.obs.SessionStopped(context.Background())
		if s.hub != nil {
			s.hub.BroadcastToSessionAndPublish(s.id, EventSessionStopped, s.Snapshot())
		}
		s.logger.Info("switching session stopped", zap.Int("total_switches", s.agg.Snapshot().TotalSwitches))
		stopped = true
	})
	return stopped
}

func (s *Session) run() {
	defer close(s.done)
	defer func() {
		if s.silence != nil {
			s.silence.Stop()
		}
	}()
	for {
		select {
		case <-s.quit:
			return
		case in := <-s.inputs:
			// pending inputs are discarded once stop has begun
			if s.stopping() {
				return
			}
			s.handleSafely(in)
		}
	}
}

func (s *Session) handleSafely(in input) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session input panicked", zap.Any("panic", r))
			if in.reply != nil {
				in.reply <- result{err: fmt.Errorf("internal error: %v", r)}
			}
		}
	}()
	res := s.handle(in)
	if in.reply != nil {
		in.reply <- res
	}
}

func (s *Session) handle(in input) result {
	now := s.clock.Now()
	switch in.kind {
	case inputAudio:
		s.ingestor.RecordAudio(in.audio)
		if active, ok := s.registry.Snapshot().Get(s.executor.Active()); ok && s.engine.Qualifies(active, in.audio) {
			s.armSilence()
		}
		d := s.evaluate(now, in.enqueuedAt)
		return result{decision: &d}

	case inputEngagement:
		s.ingestor.RecordEngagement(in.engagement)
		d := s.evaluate(now, in.enqueuedAt)
		return result{decision: &d}

	case inputSilence:
		if in.generation != s.silenceGen {
			return result{}
		}
		s.st.ActiveCameraID = s.executor.Active()
		d := s.engine.EvaluateSilence(now, s.registry.Snapshot(), s.st)
		s.settle(d, now, in.enqueuedAt)
		s.armSilence()
		return result{decision: &d}

	case inputManual:
		rec, err := s.executor.Manual(in.target)
		switch {
		case errors.Is(err, models.ErrStaleDecision):
			s.st.LastManualAt = now
			return result{}
		case err != nil:
			return result{err: err}
		}
		s.st.LastSwitchAt = rec.ExecutedAt
		s.st.LastManualAt = rec.ExecutedAt
		return result{record: &rec}

	case inputConfigure:
		return s.reconfigure(now, in.cameras)

	case inputSync:
		return result{}
	}
	return result{err: fmt.Errorf("unknown input kind %d", in.kind)}
}

func (s *Session) evaluate(now, enqueuedAt time.Time) models.SwitchDecision {
	audio, engagement := s.ingestor.Snapshot(now)
	s.st.ActiveCameraID = s.executor.Active()
	d := s.engine.Evaluate(now, s.registry.Snapshot(), s.st, audio, engagement)
	s.settle(d, now, enqueuedAt)
	return d
}

// settle records a decision and executes it when accepted.
func (s *Session) settle(d models.SwitchDecision, now, enqueuedAt time.Time) {
	s.log.AppendDecision(d)
	s.agg.ObserveDecision(d, now.Sub(enqueuedAt))
	if d.Outcome != models.OutcomeStable && s.hub != nil {
		s.hub.BroadcastToSessionAndPublish(s.id, EventDecision, d)
	}
	if !d.Accepted || s.stopping() {
		return
	}
	rec, err := s.executor.Execute(d)
	if err != nil {
		s.logger.Debug("decision discarded", zap.String("target_camera_id", d.TargetCameraID), zap.Error(err))
		return
	}
	s.st.LastSwitchAt = rec.ExecutedAt
	if rec.SwitchType == models.SwitchTypeFallback {
		s.st.LastFallbackAt = rec.ExecutedAt
	}
}

func (s *Session) reconfigure(now time.Time, cams []models.Camera) result {
	set, err := s.registry.Replace(cams)
	if err != nil {
		return result{err: err}
	}
	if !set.Has(s.executor.Active()) {
		def := set.Default().ID
		s.executor.Reset(def)
		s.st.ActiveCameraID = def
		s.log.AppendSession(eventlog.NoteReconfigured, def, now)
		s.logger.Info("active camera removed by reconfiguration", zap.String("active_camera_id", def))
	}
	return result{set: set}
}

// armSilence restarts the silence debounce. Expiries from older generations are ignored.
func (s *Session) armSilence() {
	if s.silence != nil {
		s.silence.Stop()
	}
	s.silenceGen++
	gen := s.silenceGen
	s.silence = s.clock.AfterFunc(s.engine.Config().SilenceTimeout, func() {
		s.enqueue(input{kind: inputSilence, generation: gen})
	})
}
