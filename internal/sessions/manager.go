package sessions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

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

// ErrManagerClosed is returned by Start once Shutdown has begun.
var ErrManagerClosed = errors.New("session manager is shut down")

// Store persists session rows. Calls are best effort and never block the loop.
type Store interface {
	SaveSession(ctx context.Context, s models.Session) error
	SaveMetrics(ctx context.Context, sessionID uuid.UUID, m models.Metrics) error
}

// Archiver schedules the post-stop export of a session.
type Archiver interface {
	EnqueueArchive(ctx context.Context, sessionID uuid.UUID) error
}

// Settings are the service-wide switching defaults.
type Settings struct {
	Engine             decision.Config
	Windows            telemetry.WindowConfig
	Transition         time.Duration
	EventLogRetention  int
	SessionRetention   time.Duration
	Simulation         bool
	AudioInterval      time.Duration
	EngagementInterval time.Duration
	SimulationSeed     uint64
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Engine:             decision.DefaultConfig(),
		Windows:            telemetry.DefaultWindowConfig(),
		Transition:         300 * time.Millisecond,
		EventLogRetention:  eventlog.DefaultRetention,
		SessionRetention:   time.Hour,
		AudioInterval:      100 * time.Millisecond,
		EngagementInterval: 500 * time.Millisecond,
		SimulationSeed:     1,
	}
}

// Dependencies are the collaborators shared by all sessions. Only Logger is required.
type Dependencies struct {
	Clock       clock.Clock
	Logger      *zap.Logger
	Metrics     *observe.Metrics
	Broadcaster Broadcaster
	LogSink     eventlog.Sink
	Store       Store
	Archiver    Archiver
	// Layouts are named camera sets a session may start from.
	Layouts map[string][]models.Camera
}

// StartConfig describes a new session.
type StartConfig struct {
	InterviewID    string
	Mode           models.Mode
	Sensitivity    models.Sensitivity
	Layout         string
	SilenceTimeout time.Duration
	Cameras        []models.Camera
	// Optional producers polled on the session clock.
	AudioSource      AudioSource
	EngagementSource EngagementSource
}

// Manager holds running and recently stopped sessions (thread-safe).
type Manager struct {
	deps     Dependencies
	settings Settings
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	closed   bool

	out *outbox

	// session rows are written in order by one goroutine
	saveMu     sync.Mutex
	saves      chan saveJob
	savesShut  bool
	savesDrain chan struct{}
}

type saveJob struct {
	snap    models.Session
	metrics *models.Metrics
	logger  *zap.Logger
}

// NewManager creates a session manager.
func NewManager(settings Settings, deps Dependencies) (*Manager, error) {
	if err := settings.Engine.Validate(); err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	m := &Manager{
		deps:     deps,
		settings: settings,
		logger:   deps.Logger,
		sessions: make(map[uuid.UUID]*Session),
	}
	if deps.Broadcaster != nil {
		m.out = newOutbox(deps.Broadcaster, deps.Logger, outboxBuffer)
		m.deps.Broadcaster = m.out
	}
	if deps.Store != nil {
		m.saves = make(chan saveJob, 256)
		m.savesDrain = make(chan struct{})
		go m.runSaves()
	}
	return m, nil
}

// Start validates cfg, builds the session's component graph and starts it.
func (m *Manager) Start(ctx context.Context, cfg StartConfig) (*Session, error) {
	if cfg.Mode == "" {
		cfg.Mode = models.ModeAutomatic
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", models.ErrInvalidConfiguration, cfg.Mode)
	}
	if cfg.Sensitivity == "" {
		cfg.Sensitivity = models.SensitivityNormal
	}
	params, err := decision.Preset(cfg.Sensitivity)
	if err != nil {
		return nil, err
	}
	cams := cfg.Cameras
	if len(cams) == 0 && cfg.Layout != "" {
		layout, ok := m.deps.Layouts[cfg.Layout]
		if !ok {
			return nil, fmt.Errorf("%w: unknown camera layout %q", models.ErrInvalidConfiguration, cfg.Layout)
		}
		cams = layout
	}
	registry, err := cameras.NewRegistry(cams)
	if err != nil {
		return nil, err
	}
	engineCfg := m.settings.Engine
	if cfg.SilenceTimeout < 0 {
		return nil, fmt.Errorf("%w: silence timeout must be positive", models.ErrInvalidConfiguration)
	}
	if cfg.SilenceTimeout > 0 {
		engineCfg.SilenceTimeout = cfg.SilenceTimeout
		engineCfg.FallbackCooldown = cfg.SilenceTimeout
	}

	id := uuid.New()
	now := m.deps.Clock.Now()
	initial := registry.Snapshot().Default().ID
	logger := m.logger.With(zap.String("session_id", id.String()), zap.String("interview_id", cfg.InterviewID))
	agg := metrics.New(params.Dwell, m.deps.Metrics)
	log := eventlog.New(id, m.settings.EventLogRetention, m.deps.LogSink)
	exec := switcher.New(initial, switcher.Options{
		Registry:   registry,
		Now:        m.deps.Clock.Now,
		Transition: m.settings.Transition,
		Aggregator: agg,
		Log:        log,
	})

	s := &Session{
		id:          id,
		interviewID: strings.TrimSpace(cfg.InterviewID),
		mode:        cfg.Mode,
		sensitivity: cfg.Sensitivity,
		createdAt:   now,
		clock:       m.deps.Clock,
		logger:      logger,
		obs:         m.deps.Metrics,
		hub:         m.deps.Broadcaster,
		registry:    registry,
		engine:      decision.New(params, engineCfg),
		ingestor:    telemetry.NewIngestor(m.settings.Windows),
		executor:    exec,
		agg:         agg,
		log:         log,
		inputs:      make(chan input, inputBuffer),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		state:       models.StateInactive,
		st: decision.State{
			Mode:           cfg.Mode,
			ActiveCameraID: initial,
			LastSwitchAt:   now,
		},
	}
	if hub := m.deps.Broadcaster; hub != nil {
		exec.OnSwitch(func(r models.SwitchRecord) {
			hub.BroadcastToSessionAndPublish(id, EventCameraSwitched, r)
		})
	}
	exec.OnSwitch(func(r models.SwitchRecord) {
		logger.Info("camera switched",
			zap.String("from_camera_id", r.FromCameraID),
			zap.String("to_camera_id", r.ToCameraID),
			zap.String("switch_type", string(r.SwitchType)),
			zap.String("trigger_reason", string(r.TriggerReason)),
			zap.Float64("confidence_score", r.ConfidenceScore))
	})

	log.AppendSession(eventlog.NoteStarted, initial, now)
	// a session is only visible to Get and Shutdown once its loop is running
	s.start(m.producers(s, cfg))
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.Stop()
		return nil, ErrManagerClosed
	}
	m.sessions[id] = s
	m.mu.Unlock()

	m.persist(s, false)
	return s, nil
}

func (m *Manager) producers(s *Session, cfg StartConfig) []producer {
	audio, engagement := cfg.AudioSource, cfg.EngagementSource
	if m.settings.Simulation && audio == nil && engagement == nil {
		sim := NewSimulator(m.settings.SimulationSeed, s.registry.Snapshot)
		audio, engagement = sim, sim
	}
	var out []producer
	if audio != nil {
		out = append(out, audioProducer(audio, m.settings.AudioInterval))
	}
	if engagement != nil {
		out = append(out, engagementProducer(engagement, m.settings.EngagementInterval))
	}
	return out
}

// Get returns a session that is live or still within its retention period.
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	return s, nil
}

// List returns snapshots of all known sessions, newest first.
func (m *Manager) List() []models.Session {
	m.mu.RLock()
	out := make([]models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Snapshot())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Stop stops a session. Stopping an already stopped session succeeds without side effects.
func (m *Manager) Stop(ctx context.Context, id uuid.UUID) (models.Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return models.Session{}, err
	}
	if s.Stop() {
		if m.saves == nil {
			m.archive(ctx, id, s.logger)
		}
		m.persist(s, true)
	}
	return s.Snapshot(), nil
}

// ConfigureCameras replaces the camera set of a live session.
func (m *Manager) ConfigureCameras(ctx context.Context, id uuid.UUID, cams []models.Camera) (*cameras.Set, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return s.ConfigureCameras(ctx, cams)
}

// Shutdown stops every live session and flushes pending broadcasts and session writes.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	ids := make([]uuid.UUID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		_, _ = m.Stop(ctx, id)
	}
	if m.out != nil {
		m.out.close(ctx)
	}

	if m.saves == nil {
		return
	}
	m.saveMu.Lock()
	if !m.savesShut {
		m.savesShut = true
		close(m.saves)
	}
	m.saveMu.Unlock()
	select {
	case <-m.savesDrain:
	case <-ctx.Done():
	}
}

// RunJanitor evicts stopped sessions older than the retention period until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := m.deps.Clock.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			if n := m.evict(now); n > 0 {
				m.logger.Info("evicted stopped sessions", zap.Int("count", n))
			}
		}
	}
}

func (m *Manager) evict(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		snap := s.Snapshot()
		if snap.StoppedAt != nil && now.Sub(*snap.StoppedAt) >= m.settings.SessionRetention {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *Manager) persist(s *Session, final bool) {
	if m.saves == nil {
		return
	}
	job := saveJob{snap: s.Snapshot(), logger: s.logger}
	if final {
		met := s.Metrics()
		job.metrics = &met
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	if m.savesShut {
		return
	}
	select {
	case m.saves <- job:
	default:
		s.logger.Warn("session persistence queue full, dropping write")
	}
}

func (m *Manager) runSaves() {
	defer close(m.savesDrain)
	for job := range m.saves {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.deps.Store.SaveSession(ctx, job.snap); err != nil {
			job.logger.Warn("persist session", zap.Error(err))
		} else if job.metrics != nil {
			if err := m.deps.Store.SaveMetrics(ctx, job.snap.ID, *job.metrics); err != nil {
				job.logger.Warn("persist session metrics", zap.Error(err))
			} else {
				// the archive job reads the final row, so it is queued only once that row exists
				m.archive(ctx, job.snap.ID, job.logger)
			}
		}
		cancel()
	}
}

func (m *Manager) archive(ctx context.Context, id uuid.UUID, logger *zap.Logger) {
	if m.deps.Archiver == nil {
		return
	}
	if err := m.deps.Archiver.EnqueueArchive(ctx, id); err != nil {
		logger.Warn("enqueue session archive", zap.Error(err))
	}
}
