package sessions

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/autoswitch/internal/eventlog"
	"github.com/aura-webinar/autoswitch/internal/models"
	"github.com/aura-webinar/autoswitch/internal/telemetry"
	"github.com/aura-webinar/autoswitch/pkg/response"
)

// HistoryReader serves log pages the in-memory ring has evicted.
type HistoryReader interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID, since time.Time, limit int) ([]eventlog.Entry, error)
}

// CameraRequest is one camera in a session or reconfiguration body.
type CameraRequest struct {
	ID                  string   `json:"camera_id" binding:"required"`
	Name                string   `json:"name"`
	Position            string   `json:"position"`
	Priority            int      `json:"priority"`
	AudioThreshold      float64  `json:"audio_threshold"`
	EngagementThreshold float64  `json:"engagement_threshold"`
	AutoSwitchEnabled   *bool    `json:"auto_switch_enabled"` // defaults to true
	Participants        []string `json:"participants"`
}

func (r CameraRequest) model() models.Camera {
	auto := true
	if r.AutoSwitchEnabled != nil {
		auto = *r.AutoSwitchEnabled
	}
	return models.Camera{
		ID:                  r.ID,
		Name:                r.Name,
		Position:            models.Position(r.Position),
		Priority:            r.Priority,
		AudioThreshold:      r.AudioThreshold,
		EngagementThreshold: r.EngagementThreshold,
		AutoSwitchEnabled:   auto,
		Participants:        r.Participants,
	}
}

func cameraModels(in []CameraRequest) []models.Camera {
	out := make([]models.Camera, len(in))
	for i, c := range in {
		out[i] = c.model()
	}
	return out
}

// StartRequest is the body for POST /sessions.
type StartRequest struct {
	InterviewID      string          `json:"interview_id"`
	Mode             string          `json:"mode"`
	Sensitivity      string          `json:"sensitivity"`
	Layout           string          `json:"layout"`
	SilenceTimeoutMS int             `json:"silence_timeout_ms"`
	Cameras          []CameraRequest `json:"cameras" binding:"dive"`
}

// CamerasRequest is the body for PUT /sessions/:id/cameras.
type CamerasRequest struct {
	Cameras []CameraRequest `json:"cameras" binding:"required,dive"`
}

// AudioRequest is the body for POST /sessions/:id/audio.
type AudioRequest struct {
	Level             *float64   `json:"level" binding:"required"`
	SpeakerID         string     `json:"speaker_id"`
	SpeakerConfidence *float64   `json:"speaker_confidence"`
	ObservedAt        *time.Time `json:"observed_at"`
}

// EngagementRequest is the body for POST /sessions/:id/engagement.
type EngagementRequest struct {
	ParticipantID string     `json:"participant_id" binding:"required"`
	Attention     *float64   `json:"attention" binding:"required"`
	Interaction   *float64   `json:"interaction" binding:"required"`
	ObservedAt    *time.Time `json:"observed_at"`
}

// SwitchRequest is the body for POST /sessions/:id/switch.
type SwitchRequest struct {
	TargetCameraID string `json:"target_camera_id" binding:"required"`
	SwitchType     string `json:"switch_type"`
}

// TelemetryResponse answers a telemetry push.
type TelemetryResponse struct {
	Accepted bool                   `json:"accepted"`
	Decision *models.SwitchDecision `json:"decision,omitempty"`
}

// Handler handles switching session HTTP endpoints.
type Handler struct {
	manager *Manager
	history HistoryReader
	logger  *zap.Logger
}

// NewHandler creates a session handler. history may be nil.
func NewHandler(manager *Manager, history HistoryReader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{manager: manager, history: history, logger: logger}
}

// Register mounts the session routes. operator guards mutating routes, analyzer guards telemetry pushes.
func (h *Handler) Register(rg *gin.RouterGroup, operator, analyzer gin.HandlerFunc) {
	rg.GET("/sessions", h.List)
	rg.GET("/sessions/:id", h.Get)
	rg.GET("/sessions/:id/metrics", h.Metrics)
	rg.GET("/sessions/:id/log", h.Log)
	rg.POST("/sessions", operator, h.Start)
	rg.PUT("/sessions/:id/cameras", operator, h.ConfigureCameras)
	rg.POST("/sessions/:id/switch", operator, h.Switch)
	rg.POST("/sessions/:id/stop", operator, h.Stop)
	rg.POST("/sessions/:id/audio", analyzer, h.Audio)
	rg.POST("/sessions/:id/engagement", analyzer, h.Engagement)
}

// Start handles POST /sessions.
func (h *Handler) Start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s, err := h.manager.Start(c.Request.Context(), StartConfig{
		InterviewID:    req.InterviewID,
		Mode:           models.Mode(req.Mode),
		Sensitivity:    models.Sensitivity(req.Sensitivity),
		Layout:         req.Layout,
		SilenceTimeout: time.Duration(req.SilenceTimeoutMS) * time.Millisecond,
		Cameras:        cameraModels(req.Cameras),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	snap := s.Snapshot()
	response.Created(c, gin.H{
		"session_id":       snap.ID,
		"state":            snap.State,
		"active_camera_id": snap.ActiveCameraID,
		"params":           s.Params(),
	})
}

// List handles GET /sessions.
func (h *Handler) List(c *gin.Context) {
	response.OK(c, gin.H{"sessions": h.manager.List()})
}

// Get handles GET /sessions/:id.
func (h *Handler) Get(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	response.OK(c, s.Snapshot())
}

// ConfigureCameras handles PUT /sessions/:id/cameras.
func (h *Handler) ConfigureCameras(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req CamerasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	set, err := h.manager.ConfigureCameras(c.Request.Context(), id, cameraModels(req.Cameras))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"cameras": set.All()})
}

// Audio handles POST /sessions/:id/audio.
func (h *Handler) Audio(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req AudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sample := models.AudioSample{Level: *req.Level, SpeakerID: req.SpeakerID, SpeakerConfidence: telemetry.DefaultSpeakerConfidence}
	if req.SpeakerConfidence != nil {
		sample.SpeakerConfidence = *req.SpeakerConfidence
	}
	if req.ObservedAt != nil {
		sample.ObservedAt = *req.ObservedAt
	}
	d, err := s.SubmitAudio(c.Request.Context(), sample)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, TelemetryResponse{Accepted: true, Decision: &d})
}

// Engagement handles POST /sessions/:id/engagement.
func (h *Handler) Engagement(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req EngagementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sample := models.EngagementSample{ParticipantID: req.ParticipantID, Attention: *req.Attention, Interaction: *req.Interaction}
	if req.ObservedAt != nil {
		sample.ObservedAt = *req.ObservedAt
	}
	d, err := s.SubmitEngagement(c.Request.Context(), sample)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, TelemetryResponse{Accepted: true, Decision: &d})
}

// Switch handles POST /sessions/:id/switch.
func (h *Handler) Switch(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req SwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.SwitchType != "" && req.SwitchType != string(models.SwitchTypeManual) {
		response.BadRequest(c, "switch_type must be manual")
		return
	}
	rec, err := s.Switch(c.Request.Context(), req.TargetCameraID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"switch_record": rec, "active_camera_id": s.Snapshot().ActiveCameraID})
}

// Stop handles POST /sessions/:id/stop. Repeated calls return 200.
func (h *Handler) Stop(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	snap, err := h.manager.Stop(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"state": snap.State, "stopped_at": snap.StoppedAt})
}

// Metrics handles GET /sessions/:id/metrics.
func (h *Handler) Metrics(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	response.OK(c, s.Metrics())
}

// Log handles GET /sessions/:id/log?since=&limit=.
func (h *Handler) Log(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var since time.Time
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			response.BadRequest(c, "invalid since")
			return
		}
		since = t
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	limit = eventlog.ClampLimit(limit)

	entries := s.Log().Query(since, limit)
	if len(entries) < limit && !s.Log().Covers(since) && h.history != nil {
		older, err := h.history.ListBySession(c.Request.Context(), s.ID(), since, limit)
		if err != nil {
			h.logger.Warn("read persisted event log", zap.String("session_id", s.ID().String()), zap.Error(err))
		} else {
			entries = mergeNewestFirst(entries, older, limit)
		}
	}
	response.OK(c, gin.H{"entries": entries, "total_switches": s.Log().SwitchCount()})
}

// mergeNewestFirst appends persisted entries older than the ring's oldest.
func mergeNewestFirst(ring, persisted []eventlog.Entry, limit int) []eventlog.Entry {
	oldest := ^uint64(0)
	if len(ring) > 0 {
		oldest = ring[len(ring)-1].Seq
	}
	for _, e := range persisted {
		if len(ring) >= limit {
			break
		}
		if e.Seq < oldest {
			ring = append(ring, e)
		}
	}
	return ring
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) session(c *gin.Context) (*Session, bool) {
	id, ok := parseID(c)
	if !ok {
		return nil, false
	}
	s, err := h.manager.Get(id)
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidConfiguration), errors.Is(err, models.ErrInvalidTelemetry):
		response.BadRequest(c, err.Error())
	case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, models.ErrCameraNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(c, "request cancelled")
	case errors.Is(err, ErrManagerClosed):
		response.ServiceUnavailable(c, err.Error())
	default:
		h.logger.Error("session request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Internal(c, "internal error")
	}
}
