package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/learnbot/internal/common"
	"github.com/suPer8Hu/learnbot/internal/config"
	"github.com/suPer8Hu/learnbot/internal/httpapi/handlers"
	"github.com/suPer8Hu/learnbot/internal/httpapi/middleware"
	"github.com/suPer8Hu/learnbot/internal/logger"
)

func NewRouter(cfg config.Config, log *logger.Logger, h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))

	// chat + gamification (JWT required)
	authGroup.POST("/chat/messages", h.SendChatMessage)
	authGroup.POST("/interactions", h.RegisterInteraction)
	authGroup.GET("/me/interactions", h.ListInteractions)
	authGroup.GET("/me/badges", h.ListBadges)
	authGroup.GET("/me/progress", h.GetProgress)

	// documents
	authGroup.POST("/documents", h.UploadDocument)
	authGroup.GET("/documents/jobs/:job_id", h.GetDocumentJob)

	authGroup.GET("/assistant/health", h.AssistantHealth)
	return r
}
