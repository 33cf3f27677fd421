package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/learnbot/internal/assistant"
	"github.com/suPer8Hu/learnbot/internal/chat"
	"github.com/suPer8Hu/learnbot/internal/common"
	"github.com/suPer8Hu/learnbot/internal/documents"
	"github.com/suPer8Hu/learnbot/internal/gamification"
	"github.com/suPer8Hu/learnbot/internal/httpapi/middleware"
	"github.com/suPer8Hu/learnbot/internal/logger"
)

// HealthChecker reports whether the assistant upstream is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Handler struct {
	ChatSvc        *chat.Service
	DocSvc         *documents.Service // nil when ingestion is disabled
	Health         HealthChecker
	MaxUploadBytes int64
	Log            *logger.Logger
}

type Deps struct {
	Chat           *chat.Service
	Documents      *documents.Service
	Health         HealthChecker
	MaxUploadBytes int64
	Log            *logger.Logger
}

func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewNop()
	}
	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 20 << 20
	}
	return &Handler{
		ChatSvc:        d.Chat,
		DocSvc:         d.Documents,
		Health:         d.Health,
		MaxUploadBytes: maxUpload,
		Log:            log,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, "pong", nil)
}

// AssistantHealth is the "test connection" action.
func (h *Handler) AssistantHealth(c *gin.Context) {
	if h.Health == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "assistant not configured")
		return
	}
	if err := h.Health.Health(c.Request.Context()); err != nil {
		h.Log.Warn("assistant health check failed", "error", err, "request_id", c.GetString(middleware.RequestIDKey))
		if errors.Is(err, assistant.ErrNotConfigured) {
			common.Fail(c, http.StatusServiceUnavailable, 50301, "assistant not configured")
			return
		}
		common.Fail(c, http.StatusBadGateway, 50201, "could not reach assistant")
		return
	}
	common.OK(c, "assistant reachable", nil)
}

func sessionFromContext(c *gin.Context) (chat.SessionContext, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return chat.SessionContext{}, false
	}
	uid, ok := v.(uint64)
	if !ok || uid == 0 {
		return chat.SessionContext{}, false
	}
	sc := chat.SessionContext{UserID: uid}
	if v, ok := c.Get(middleware.CourseIDKey); ok {
		sc.CourseID, _ = v.(uint64)
	}
	return sc, true
}

// requireSession writes 401 and returns false when the request carries no user.
func requireSession(c *gin.Context) (chat.SessionContext, bool) {
	sc, ok := sessionFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	}
	return sc, ok
}

// writeError maps service errors onto the envelope. Internal details are
// logged, never returned.
func (h *Handler) writeError(c *gin.Context, op string, err error) {
	var ve *gamification.ValidationError
	switch {
	case errors.As(err, &ve):
		common.Fail(c, http.StatusBadRequest, 10002, ve.Error())
		return
	case errors.Is(err, gamification.ErrValidation):
		common.Fail(c, http.StatusBadRequest, 10002, "invalid request")
		return
	case errors.Is(err, assistant.ErrNotConfigured),
		errors.Is(err, assistant.ErrUpstreamUnavailable),
		errors.Is(err, assistant.ErrUpstreamStatus),
		errors.Is(err, assistant.ErrMalformedResponse):
		h.Log.Error(op+" failed", "error", err, "request_id", c.GetString(middleware.RequestIDKey))
		common.Fail(c, http.StatusBadGateway, 50201, "could not reach assistant")
		return
	}

	h.Log.Error(op+" failed", "error", err, "request_id", c.GetString(middleware.RequestIDKey))
	common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
}
