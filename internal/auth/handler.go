package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/autoswitch/pkg/response"
	"github.com/aura-webinar/autoswitch/pkg/utils"
)

// KeyStore is the subset of Repository the token exchange needs.
type KeyStore interface {
	ListActive(ctx context.Context) ([]APIKey, error)
	Upsert(ctx context.Context, name, role, keyHash string) error
	MarkUsed(ctx context.Context, id uuid.UUID) error
}

// TokenRequest is the body for POST /auth/token.
type TokenRequest struct {
	OperatorKey string `json:"operator_key" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	keys   KeyStore
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(keys KeyStore, jwt *JWTService, logger *zap.Logger) *Handler {
	return &Handler{keys: keys, jwt: jwt, logger: logger}
}

// Exchange verifies a plaintext key against the stored hashes.
func (h *Handler) Exchange(ctx context.Context, key string) (*APIKey, error) {
	list, err := h.keys.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if utils.CheckSecret(key, list[i].KeyHash) {
			return &list[i], nil
		}
	}
	return nil, ErrInvalidKey
}

// Token handles POST /auth/token.
func (h *Handler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	key, err := h.Exchange(c.Request.Context(), req.OperatorKey)
	if errors.Is(err, ErrInvalidKey) {
		response.Unauthorized(c, "invalid key")
		return
	}
	if err != nil {
		h.logger.Error("load api keys", zap.Error(err))
		response.Internal(c, "failed to verify key")
		return
	}
	if err := h.keys.MarkUsed(c.Request.Context(), key.ID); err != nil {
		h.logger.Warn("mark api key used", zap.String("key", key.Name), zap.Error(err))
	}
	token, exp, err := h.jwt.Generate(key.Name, key.Role)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, Role: key.Role, ExpiresAt: exp})
}

// EnsureKey stores plaintext under name with role, hashed. Empty plaintext is a no-op.
func EnsureKey(ctx context.Context, keys KeyStore, name, role, plaintext string) error {
	if plaintext == "" {
		return nil
	}
	hash, err := utils.HashSecret(plaintext)
	if err != nil {
		return err
	}
	return keys.Upsert(ctx, name, role, hash)
}
