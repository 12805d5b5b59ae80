package archive

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/autoswitch/pkg/response"
	"github.com/aura-webinar/autoswitch/pkg/storage"
)

// Links is the response for GET /sessions/:id/archive.
type Links struct {
	SessionID string `json:"session_id"`
	EventsURL string `json:"events_url"`
	Summary   string `json:"summary_url"`
}

// Handler serves pre-signed links to archived sessions.
type Handler struct {
	store  ObjectStore
	logger *zap.Logger
}

// NewHandler creates an archive handler.
func NewHandler(store ObjectStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// Get handles GET /sessions/:id/archive. 404 until the archive job has completed.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	ctx := c.Request.Context()
	summaryKey := storage.SessionKey(id.String(), SummaryObject)
	ok, err := h.store.Exists(ctx, summaryKey)
	if err != nil {
		h.logger.Error("check archive", zap.String("session_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to check archive")
		return
	}
	if !ok {
		response.NotFound(c, "archive not available")
		return
	}
	events, err := h.store.PresignedDownloadURL(ctx, storage.SessionKey(id.String(), EventsObject))
	if err != nil {
		response.Internal(c, "failed to sign archive url")
		return
	}
	summary, err := h.store.PresignedDownloadURL(ctx, summaryKey)
	if err != nil {
		response.Internal(c, "failed to sign archive url")
		return
	}
	response.OK(c, Links{SessionID: id.String(), EventsURL: events, Summary: summary})
}
