package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/learnbot/internal/common"
)

type sendMessageReq struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id"`
	CourseID  uint64 `json:"course_id"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	sc, okk := requireSession(c)
	if !okk {
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	reply, err := h.ChatSvc.SendMessage(c.Request.Context(), sc, req.Message, req.SessionID, req.CourseID)
	if err != nil {
		h.writeError(c, "send message", err)
		return
	}

	common.OK(c, reply.Answer, gin.H{
		"session_id":     reply.SessionID,
		"interaction_id": reply.InteractionID,
		"badges_awarded": reply.NewBadges,
	})
}

type registerInteractionReq struct {
	Question string `json:"question" binding:"required"`
	Answer   string `json:"answer" binding:"required"`
	CourseID uint64 `json:"course_id"`
}

// RegisterInteraction records an exchange the widget already completed.
func (h *Handler) RegisterInteraction(c *gin.Context) {
	sc, okk := requireSession(c)
	if !okk {
		return
	}

	var req registerInteractionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	reg, err := h.ChatSvc.RegisterInteraction(c.Request.Context(), sc, req.Question, req.Answer, req.CourseID)
	if err != nil {
		h.writeError(c, "register interaction", err)
		return
	}

	common.OK(c, "interaction recorded", gin.H{
		"interactions": reg.Interactions,
		"badge_earned": reg.BadgeEarned,
		"badge_name":   reg.BadgeName,
	})
}

func (h *Handler) ListInteractions(c *gin.Context) {
	sc, okk := requireSession(c)
	if !okk {
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeID uint64
	if s := c.Query("before_id"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			beforeID = n
		}
	}

	items, err := h.ChatSvc.History(c.Request.Context(), sc.UserID, limit, beforeID)
	if err != nil {
		h.writeError(c, "list interactions", err)
		return
	}

	var nextBeforeID uint64
	if len(items) > 0 {
		nextBeforeID = items[len(items)-1].ID
	}

	common.OK(c, "ok", gin.H{
		"interactions":   items,
		"next_before_id": nextBeforeID,
	})
}
