package sessions

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/autoswitch/internal/clock"
	"github.com/aura-webinar/autoswitch/internal/eventlog"
	"github.com/aura-webinar/autoswitch/internal/models"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type recordingHub struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHub) BroadcastToSessionAndPublish(_ uuid.UUID, event string, _ interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *recordingHub) count(event string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e == event {
			n++
		}
	}
	return n
}

func newTestManager(t *testing.T, clk *clock.Fake, deps Dependencies) *Manager {
	t.Helper()
	deps.Clock = clk
	m, err := NewManager(DefaultSettings(), deps)
	require.NoError(t, err)
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m
}

func studio() []models.Camera {
	return []models.Camera{
		{ID: "host", Position: models.PositionHost, Priority: 1, AutoSwitchEnabled: true},
		{ID: "guest", Position: models.PositionGuest, Priority: 2, AutoSwitchEnabled: true},
		{ID: "wide", Position: models.PositionWide, Priority: 3, AutoSwitchEnabled: true},
	}
}

func speaks(id string, level float64) models.AudioSample {
	return models.AudioSample{Level: level, SpeakerID: id, SpeakerConfidence: 1}
}

func switchRecords(s *Session) []models.SwitchRecord {
	var out []models.SwitchRecord
	for _, e := range s.Log().All() {
		if e.Kind == eventlog.KindSwitch {
			out = append(out, *e.Record)
		}
	}
	return out
}

func TestDwell_MeasuredFromSessionCreation(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	m := newTestManager(t, clk, Dependencies{})
	s, err := m.Start(ctx, StartConfig{Mode: models.ModeAutomatic, Sensitivity: models.SensitivityHigh, Cameras: studio()[:2]})
	require.NoError(t, err)

	_, err = s.SubmitAudio(ctx, speaks("host", 0.8))
	require.NoError(t, err)

	clk.Advance(200 * time.Millisecond)
	d, err := s.SubmitAudio(ctx, speaks("guest", 0.9))
	require.NoError(t, err)
	assert.False(t, d.Accepted)
	assert.Equal(t, models.SuppressedByCooldown, d.SuppressedBy)
	assert.Equal(t, "host", s.Snapshot().ActiveCameraID)

	clk.Advance(400 * time.Millisecond)
	d, err = s.SubmitAudio(ctx, speaks("guest", 0.9))
	require.NoError(t, err)
	assert.True(t, d.Accepted)
	assert.Equal(t, models.TriggerSpeakerChange, d.TriggerReason)
	assert.Equal(t, "guest", s.Snapshot().ActiveCameraID)

	recs := switchRecords(s)
	require.Len(t, recs, 1)
	assert.Equal(t, "host", recs[0].FromCameraID)
	assert.Equal(t, models.SwitchTypeAuto, recs[0].SwitchType)
}

func TestDwell_SessionCreatedEarlier(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	m := newTestManager(t, clk, Dependencies{})
	s, err := m.Start(ctx, StartConfig{Sensitivity: models.SensitivityHigh, Cameras: studio()[:2]})
	require.NoError(t, err)
	clk.Advance(time.Second)

	_, err = s.SubmitAudio(ctx, speaks("host", 0.8))
	require.NoError(t, err)
	clk.Advance(200 * time.Millisecond)
	d, err := s.SubmitAudio(ctx, speaks("guest", 0.9))
	require.NoError(t, err)
	assert.False(t, d.Accepted)
	assert.Equal(t, models.SuppressedByHysteresis, d.SuppressedBy)

	clk.Advance(400 * time.Millisecond)
	d, err = s.SubmitAudio(ctx, speaks("guest", 0.9))
	require.NoError(t, err)
	assert.True(t, d.Accepted)
	assert.Equal(t, "guest", s.Snapshot().ActiveCameraID)
}

func TestSilenceFallback_ExactlyOnce(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	hub := &recordingHub{}
	m := newTestManager(t, clk, Dependencies{Broadcaster: hub})
	s, err := m.Start(ctx, StartConfig{SilenceTimeout: 3 * time.Second, Cameras: studio()})
	require.NoError(t, err)
	_, err = s.Switch(ctx, "guest")
	require.NoError(t, err)

	clk.Advance(3 * time.Second)
	require.NoError(t, s.Sync(ctx))
	clk.Advance(2 * time.Second)
	require.NoError(t, s.Sync(ctx))

	var fallbacks []models.SwitchRecord
	for _, r := range switchRecords(s) {
		if r.SwitchType == models.SwitchTypeFallback {
			fallbacks = append(fallbacks, r)
		}
	}
	require.Len(t, fallbacks, 1)
	assert.Equal(t, "wide", fallbacks[0].ToCameraID)
	assert.Equal(t, models.TriggerSilenceFallback, fallbacks[0].TriggerReason)
	assert.Equal(t, 0.5, fallbacks[0].ConfidenceScore)

	// the timer re-arms, but the wide shot is already on air
	for i := 0; i < 4; i++ {
		clk.Advance(3 * time.Second)
		require.NoError(t, s.Sync(ctx))
	}
	assert.Equal(t, 1, s.Metrics().FallbackSwitches)
	assert.Equal(t, "wide", s.Snapshot().ActiveCameraID)
	assert.Eventually(t, func() bool { return hub.count(EventCameraSwitched) == 2 }, time.Second, 5*time.Millisecond)
}

func TestSilenceTimer_ResetByQualifyingAudio(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	m := newTestManager(t, clk, Dependencies{})
	s, err := m.Start(ctx, StartConfig{SilenceTimeout: 3 * time.Second, Cameras: studio()})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		clk.Advance(time.Second)
		_, err := s.SubmitAudio(ctx, speaks("host", 0.6))
		require.NoError(t, err)
	}
	require.NoError(t, s.Sync(ctx))
	assert.Zero(t, s.Metrics().FallbackSwitches)
	assert.Equal(t, "host", s.Snapshot().ActiveCameraID)
}

func TestNoFlap(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	m := newTestManager(t, clk, Dependencies{})
	s, err := m.Start(ctx, StartConfig{Sensitivity: models.SensitivityHigh, SilenceTimeout: time.Minute, Cameras: studio()})
	require.NoError(t, err)

	speakers := []string{"host", "guest"}
	for i := 0; i < 100; i++ {
		clk.Advance(100 * time.Millisecond)
		_, err := s.SubmitAudio(ctx, speaks(speakers[(i/3)%2], 0.9))
		require.NoError(t, err)
	}

	var last time.Time
	dwell := s.Params().Dwell
	for _, r := range switchRecords(s) {
		if r.SwitchType != models.SwitchTypeAuto {
			continue
		}
		if !last.IsZero() {
			assert.GreaterOrEqual(t, r.ExecutedAt.Sub(last), dwell)
		}
		last = r.ExecutedAt
	}
	assert.NotZero(t, s.Metrics().AutoSwitches)
}

func TestStabilityUnderIdenticalInput(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	m := newTestManager(t, clk, Dependencies{})
	s, err := m.Start(ctx, StartConfig{Cameras: studio()})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		clk.Advance(100 * time.Millisecond)
		_, err := s.SubmitAudio(ctx, speaks("guest", 0.7))
		require.NoError(t, err)
		_, err = s.SubmitEngagement(ctx, models.EngagementSample{ParticipantID: "guest", Attention: 0.8, Interaction: 0.5})
		require.NoError(t, err)
	}
	assert.Equal(t, "guest", s.Snapshot().ActiveCameraID)
	assert.Equal(t, 1, s.Metrics().TotalSwitches)
}

func TestStop_Idempotent(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	hub := &recordingHub{}
	m := newTestManager(t, clk, Dependencies{Broadcaster: hub})
	s, err := m.Start(ctx, StartConfig{Cameras: studio()})
	require.NoError(t, err)

	first, err := m.Stop(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, models.StateStopped, first.State)
	require.NotNil(t, first.StoppedAt)
	switches := s.Log().SwitchCount()

	clk.Advance(10 * time.Second)
	second, err := m.Stop(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, models.StateStopped, second.State)
	assert.Equal(t, first.StoppedAt, second.StoppedAt)
	assert.Equal(t, switches, s.Log().SwitchCount())
	m.Shutdown(ctx)
	assert.Equal(t, 1, hub.count(EventSessionStopped))
	assert.Zero(t, clk.Pending(), "silence timer cancelled")

	_, err = s.SubmitAudio(ctx, speaks("guest", 0.9))
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	_, err = s.Switch(ctx, "guest")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestStop_ConcurrentWithTraffic(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	m := newTestManager(t, clk, Dependencies{Broadcaster: &recordingHub{}})
	s, err := m.Start(ctx, StartConfig{Sensitivity: models.SensitivityHigh, Cameras: studio()})
	require.NoError(t, err)

	ids := []string{"host", "guest", "wide"}
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		unexpected []error
	)
	tolerate := func(err error) {
		if err == nil || errors.Is(err, models.ErrSessionNotFound) || errors.Is(err, models.ErrStaleDecision) {
			return
		}
		mu.Lock()
		unexpected = append(unexpected, err)
		mu.Unlock()
	}

	halt := make(chan struct{})
	go func() {
		for {
			select {
			case <-halt:
				return
			default:
				clk.Advance(50 * time.Millisecond)
				runtime.Gosched()
			}
		}
	}()

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if i%7 == 0 {
					_, err := s.Switch(ctx, ids[(w+i)%len(ids)])
					tolerate(err)
					continue
				}
				_, err := s.SubmitAudio(ctx, speaks(ids[(w+i/5)%2], 0.9))
				tolerate(err)
			}
		}(w)
	}
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deadline := time.Now().Add(time.Second)
			for s.Log().SwitchCount() == 0 && time.Now().Before(deadline) {
				runtime.Gosched()
			}
			_, err := m.Stop(ctx, s.ID())
			tolerate(err)
		}()
	}
	wg.Wait()
	close(halt)

	assert.Empty(t, unexpected)
	snap := s.Snapshot()
	assert.Equal(t, models.StateStopped, snap.State)
	require.NotNil(t, snap.StoppedAt)
	recs := switchRecords(s)
	require.NotEmpty(t, recs)
	for _, r := range recs {
		assert.False(t, r.ExecutedAt.After(*snap.StoppedAt), "switch at %v after stop at %v", r.ExecutedAt, *snap.StoppedAt)
	}
	assert.Equal(t, s.Log().SwitchCount(), s.Metrics().TotalSwitches)

	entries := s.Log().All()
	last := entries[len(entries)-1]
	assert.Equal(t, eventlog.KindSession, last.Kind)
	assert.Equal(t, eventlog.NoteStopped, last.Note)

	before := len(entries)
	_, err = m.Stop(ctx, s.ID())
	require.NoError(t, err)
	assert.Len(t, s.Log().All(), before)
	assert.Equal(t, snap.StoppedAt, s.Snapshot().StoppedAt)
}

// blockingHub stands in for a Redis publish that never returns.
type blockingHub struct {
	release chan struct{}
	calls   atomic.Int32
}

func (h *blockingHub) BroadcastToSessionAndPublish(uuid.UUID, string, interface{}) {
	h.calls.Add(1)
	<-h.release
}

func TestBroadcast_SlowHubDoesNotStallLoop(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	hub := &blockingHub{release: make(chan struct{})}
	m := newTestManager(t, clk, Dependencies{Broadcaster: hub})
	defer close(hub.release)
	s, err := m.Start(ctx, StartConfig{Sensitivity: models.SensitivityHigh, Cameras: studio()})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		if _, err := s.Switch(ctx, "guest"); err != nil {
			done <- err
			return
		}
		for i := 0; i < 50; i++ {
			clk.Advance(100 * time.Millisecond)
			if _, err := s.SubmitAudio(ctx, speaks(studio()[(i/5)%2].ID, 0.9)); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session loop blocked on a slow broadcaster")
	}
	assert.Equal(t, int32(1), hub.calls.Load(), "only the first event reached the stuck hub")
	assert.Equal(t, "guest", switchRecords(s)[0].ToCameraID)
}

func TestStart_RacingShutdown(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, clock.NewFake(t0), Dependencies{})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started []*Session
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.Start(ctx, StartConfig{Cameras: studio()})
			if err != nil {
				assert.ErrorIs(t, err, ErrManagerClosed)
				return
			}
			mu.Lock()
			started = append(started, s)
			mu.Unlock()
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Shutdown(ctx)
	}()
	wg.Wait()

	for _, s := range started {
		assert.Equal(t, models.StateStopped, s.Snapshot().State)
	}
	_, err := m.Start(ctx, StartConfig{Cameras: studio()})
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestMetricsConsistency(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	m := newTestManager(t, clk, Dependencies{})
	s, err := m.Start(ctx, StartConfig{Sensitivity: models.SensitivityHigh, SilenceTimeout: 2 * time.Second, Cameras: studio()})
	require.NoError(t, err)

	for i := 0; i < 40; i++ {
		clk.Advance(250 * time.Millisecond)
		switch i % 10 {
		case 0, 1, 2:
			_, err = s.SubmitAudio(ctx, speaks("guest", 0.9))
		case 5:
			_, err = s.Switch(ctx, "host")
		default:
			_, err = s.SubmitAudio(ctx, speaks("host", 0.04))
		}
		require.NoError(t, err)
		require.NoError(t, s.Sync(ctx))
		assert.Equal(t, s.Log().SwitchCount(), s.Metrics().TotalSwitches)
	}
	met := s.Metrics()
	assert.Equal(t, met.TotalSwitches, met.AutoSwitches+met.ManualSwitches)
}

func TestManualMode_NoAutomaticSwitches(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	m := newTestManager(t, clk, Dependencies{})
	s, err := m.Start(ctx, StartConfig{Mode: models.ModeManual, SilenceTimeout: time.Second, Cameras: studio()})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		clk.Advance(200 * time.Millisecond)
		d, err := s.SubmitAudio(ctx, speaks("guest", 0.9))
		require.NoError(t, err)
		assert.False(t, d.Accepted)
	}
	require.NoError(t, s.Sync(ctx))
	assert.Equal(t, "host", s.Snapshot().ActiveCameraID)

	rec, err := s.Switch(ctx, "guest")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.SwitchTypeManual, rec.SwitchType)
	assert.Equal(t, 1.0, rec.ConfidenceScore)
	assert.Equal(t, 1, s.Metrics().TotalSwitches)
}

func TestHybridMode_HoldsAfterManualSwitch(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	m := newTestManager(t, clk, Dependencies{})
	s, err := m.Start(ctx, StartConfig{Mode: models.ModeHybrid, SilenceTimeout: time.Minute, Cameras: studio()})
	require.NoError(t, err)

	_, err = s.Switch(ctx, "wide")
	require.NoError(t, err)
	clk.Advance(2 * time.Second)
	d, err := s.SubmitAudio(ctx, speaks("guest", 0.9))
	require.NoError(t, err)
	assert.Equal(t, models.SuppressedByManualHold, d.SuppressedBy)

	clk.Advance(10 * time.Second)
	d, err = s.SubmitAudio(ctx, speaks("guest", 0.9))
	require.NoError(t, err)
	assert.True(t, d.Accepted)
	assert.Equal(t, "guest", s.Snapshot().ActiveCameraID)
}

func TestSwitch_UnknownAndActiveTargets(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, clock.NewFake(t0), Dependencies{})
	s, err := m.Start(ctx, StartConfig{Cameras: studio()})
	require.NoError(t, err)

	_, err = s.Switch(ctx, "balcony")
	assert.ErrorIs(t, err, models.ErrCameraNotFound)

	rec, err := s.Switch(ctx, "host")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Zero(t, s.Metrics().TotalSwitches)
}

func TestSubmit_InvalidTelemetryIsDropped(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, clock.NewFake(t0), Dependencies{})
	s, err := m.Start(ctx, StartConfig{Cameras: studio()})
	require.NoError(t, err)
	before := s.Log().Len()

	_, err = s.SubmitAudio(ctx, models.AudioSample{Level: 1.5, SpeakerConfidence: 1})
	assert.ErrorIs(t, err, models.ErrInvalidTelemetry)
	_, err = s.SubmitEngagement(ctx, models.EngagementSample{ParticipantID: "guest", Attention: -0.1})
	assert.ErrorIs(t, err, models.ErrInvalidTelemetry)

	require.NoError(t, s.Sync(ctx))
	assert.Equal(t, before, s.Log().Len())
	assert.Zero(t, s.Metrics().DecisionsEvaluated)
}

func TestConfigureCameras(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, clock.NewFake(t0), Dependencies{})
	s, err := m.Start(ctx, StartConfig{Cameras: studio()})
	require.NoError(t, err)
	_, err = s.Switch(ctx, "guest")
	require.NoError(t, err)

	dup := []models.Camera{{ID: "a", AutoSwitchEnabled: true}, {ID: "a", AutoSwitchEnabled: true}}
	_, err = m.ConfigureCameras(ctx, s.ID(), dup)
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
	assert.Equal(t, 3, s.Cameras().Len())

	set, err := m.ConfigureCameras(ctx, s.ID(), []models.Camera{
		{ID: "host", Position: models.PositionHost, Priority: 1, AutoSwitchEnabled: true},
		{ID: "wide", Position: models.PositionWide, Priority: 2, AutoSwitchEnabled: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, "host", s.Snapshot().ActiveCameraID)
	assert.Equal(t, 1, s.Metrics().TotalSwitches, "reset does not produce a switch record")

	latest := s.Log().Query(time.Time{}, 1)
	require.Len(t, latest, 1)
	assert.Equal(t, eventlog.NoteReconfigured, latest[0].Note)
}

func TestStart_Validation(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, clock.NewFake(t0), Dependencies{
		Layouts: map[string][]models.Camera{"studio": studio()},
	})

	_, err := m.Start(ctx, StartConfig{})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
	_, err = m.Start(ctx, StartConfig{Sensitivity: "extreme", Cameras: studio()})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
	_, err = m.Start(ctx, StartConfig{Mode: "autopilot", Cameras: studio()})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
	_, err = m.Start(ctx, StartConfig{Layout: "rooftop"})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
	assert.Empty(t, m.List())

	s, err := m.Start(ctx, StartConfig{Layout: "studio"})
	require.NoError(t, err)
	snap := s.Snapshot()
	assert.Equal(t, models.StateActive, snap.State)
	assert.Equal(t, models.ModeAutomatic, snap.Mode)
	assert.Equal(t, models.SensitivityNormal, snap.Sensitivity)
	assert.Equal(t, "host", snap.ActiveCameraID)
}

func TestManager_GetUnknown(t *testing.T) {
	m := newTestManager(t, clock.NewFake(t0), Dependencies{})
	_, err := m.Get(uuid.New())
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	_, err = m.Stop(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestManager_EvictsAfterRetention(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	m := newTestManager(t, clk, Dependencies{})
	live, err := m.Start(ctx, StartConfig{Cameras: studio()})
	require.NoError(t, err)
	stopped, err := m.Start(ctx, StartConfig{Cameras: studio()})
	require.NoError(t, err)
	_, err = m.Stop(ctx, stopped.ID())
	require.NoError(t, err)

	assert.Zero(t, m.evict(clk.Now().Add(time.Minute)))
	assert.Equal(t, 1, m.evict(clk.Now().Add(2*time.Hour)))

	_, err = m.Get(stopped.ID())
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	_, err = m.Get(live.ID())
	assert.NoError(t, err)
}

type memStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]models.Session
	metrics  map[uuid.UUID]models.Metrics
}

func (s *memStore) SaveSession(_ context.Context, sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *memStore) SaveMetrics(_ context.Context, id uuid.UUID, m models.Metrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[id] = m
	return nil
}

type memArchiver struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (a *memArchiver) EnqueueArchive(_ context.Context, id uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, id)
	return nil
}

func TestStop_PersistsAndArchivesOnce(t *testing.T) {
	ctx := context.Background()
	store := &memStore{sessions: map[uuid.UUID]models.Session{}, metrics: map[uuid.UUID]models.Metrics{}}
	arch := &memArchiver{}
	m := newTestManager(t, clock.NewFake(t0), Dependencies{Store: store, Archiver: arch})
	s, err := m.Start(ctx, StartConfig{Cameras: studio()})
	require.NoError(t, err)

	_, err = m.Stop(ctx, s.ID())
	require.NoError(t, err)
	_, err = m.Stop(ctx, s.ID())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		_, ok := store.metrics[s.ID()]
		return ok && store.sessions[s.ID()].State == models.StateStopped
	}, time.Second, 10*time.Millisecond)
	m.Shutdown(ctx)
	arch.mu.Lock()
	defer arch.mu.Unlock()
	assert.Equal(t, []uuid.UUID{s.ID()}, arch.ids)
}

func TestProducers_ScriptedSources(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	m := newTestManager(t, clk, Dependencies{})
	script := make([]models.AudioSample, 0, 20)
	for i := 0; i < 20; i++ {
		script = append(script, speaks("guest", 0.9))
	}
	s, err := m.Start(ctx, StartConfig{
		Cameras:          studio(),
		AudioSource:      NewScriptedAudio(script...),
		EngagementSource: NewScriptedEngagement(models.EngagementSample{ParticipantID: "guest", Attention: 0.9, Interaction: 0.9}),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		clk.Advance(100 * time.Millisecond)
		return s.Snapshot().ActiveCameraID == "guest"
	}, 2*time.Second, 5*time.Millisecond)

	_, err = m.Stop(ctx, s.ID())
	require.NoError(t, err)
}

func TestSimulator_Deterministic(t *testing.T) {
	m := newTestManager(t, clock.NewFake(t0), Dependencies{})
	s, err := m.Start(context.Background(), StartConfig{Cameras: studio()})
	require.NoError(t, err)

	a := NewSimulator(7, s.Cameras)
	b := NewSimulator(7, s.Cameras)
	for i := 0; i < 50; i++ {
		now := t0.Add(time.Duration(i) * 100 * time.Millisecond)
		x, okx := a.NextAudio(now)
		y, oky := b.NextAudio(now)
		require.Equal(t, okx, oky)
		require.Equal(t, x, y)
		assert.NotEqual(t, "wide", x.SpeakerID)
		assert.GreaterOrEqual(t, x.Level, 0.0)
		assert.LessOrEqual(t, x.Level, 1.0)
	}
}
