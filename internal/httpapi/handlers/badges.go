package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/learnbot/internal/common"
)

func (h *Handler) ListBadges(c *gin.Context) {
	sc, okk := requireSession(c)
	if !okk {
		return
	}

	badges, err := h.ChatSvc.Badges(c.Request.Context(), sc.UserID)
	if err != nil {
		h.writeError(c, "list badges", err)
		return
	}
	common.OK(c, "ok", gin.H{"badges": badges})
}

func (h *Handler) GetProgress(c *gin.Context) {
	sc, okk := requireSession(c)
	if !okk {
		return
	}

	p, err := h.ChatSvc.Progress(c.Request.Context(), sc.UserID)
	if err != nil {
		h.writeError(c, "get progress", err)
		return
	}
	common.OK(c, "ok", gin.H{"progress": p})
}
