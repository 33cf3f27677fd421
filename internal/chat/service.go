package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/suPer8Hu/learnbot/internal/assistant"
	"github.com/suPer8Hu/learnbot/internal/gamification"
	"github.com/suPer8Hu/learnbot/internal/logger"
)

// SessionContext identifies the caller of one request. It is built from the
// request's token and passed down explicitly.
type SessionContext struct {
	UserID   uint64
	CourseID uint64 // course the widget is embedded in; 0 when unknown
}

type AwardedBadge struct {
	Type gamification.BadgeType `json:"badge_type"`
	Name string                 `json:"name"`
}

type Reply struct {
	Answer        string
	SessionID     string
	InteractionID uint64 // 0 when bookkeeping failed
	NewBadges     []AwardedBadge
}

type Registration struct {
	InteractionID uint64
	Interactions  int64
	BadgeEarned   bool
	BadgeName     string
	NewBadges     []AwardedBadge
}

type Service struct {
	assistant assistant.Assistant
	engine    *gamification.Engine
	log       *logger.Logger
}

func NewService(a assistant.Assistant, engine *gamification.Engine, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{assistant: a, engine: engine, log: log.With("component", "chat")}
}

const metadataSource = "learnbot"

// SendMessage relays the message to the assistant and records the exchange.
// A bookkeeping failure does not fail the call: the answer is still returned.
func (s *Service) SendMessage(ctx context.Context, sc SessionContext, message, sessionID string, courseID uint64) (*Reply, error) {
	if sc.UserID == 0 {
		return nil, &gamification.ValidationError{Field: "user_id", Reason: "must be positive"}
	}
	if strings.TrimSpace(message) == "" {
		return nil, &gamification.ValidationError{Field: "message", Reason: "required"}
	}
	if courseID == 0 {
		courseID = sc.CourseID
	}
	if courseID == 0 {
		return nil, &gamification.ValidationError{Field: "course_id", Reason: "required"}
	}

	// 1) ask upstream, exactly once
	ans, err := s.assistant.Ask(ctx, assistant.Question{
		Message:   message,
		SessionID: strings.TrimSpace(sessionID),
		Metadata: map[string]any{
			"userid":   sc.UserID,
			"courseid": courseID,
			"source":   metadataSource,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ask assistant: %w", err)
	}

	reply := &Reply{Answer: ans.Text, SessionID: ans.SessionID}

	// 2) bookkeeping (non-fatal)
	id, awarded, err := s.engine.RecordInteraction(ctx, sc.UserID, courseID, message, ans.Text)
	if err != nil {
		s.log.Error("record interaction failed",
			"user_id", sc.UserID,
			"course_id", courseID,
			"interaction_id", id,
			"error", err,
		)
	}
	reply.InteractionID = id
	reply.NewBadges = s.describe(awarded)
	return reply, nil
}

// RegisterInteraction records an exchange that happened outside SendMessage.
// courseID 0 means the caller's current course. Once the interaction is
// stored the call succeeds; later bookkeeping failures are only logged.
func (s *Service) RegisterInteraction(ctx context.Context, sc SessionContext, question, answer string, courseID uint64) (*Registration, error) {
	if courseID == 0 {
		courseID = sc.CourseID
	}
	id, awarded, err := s.engine.RecordInteraction(ctx, sc.UserID, courseID, question, answer)
	if err != nil {
		if id == 0 {
			return nil, err
		}
		// stored; only badge evaluation failed
		s.log.Error("evaluate badges failed",
			"user_id", sc.UserID,
			"course_id", courseID,
			"interaction_id", id,
			"error", err,
		)
	}
	count, err := s.engine.InteractionCount(ctx, sc.UserID)
	if err != nil {
		s.log.Error("count interactions failed", "user_id", sc.UserID, "interaction_id", id, "error", err)
	}

	reg := &Registration{
		InteractionID: id,
		Interactions:  count,
		NewBadges:     s.describe(awarded),
	}
	if n := len(reg.NewBadges); n > 0 {
		reg.BadgeEarned = true
		reg.BadgeName = reg.NewBadges[n-1].Name
	}
	return reg, nil
}

func (s *Service) History(ctx context.Context, userID uint64, limit int, beforeID uint64) ([]gamification.Interaction, error) {
	return s.engine.RecentInteractions(ctx, userID, limit, beforeID)
}

func (s *Service) Badges(ctx context.Context, userID uint64) ([]gamification.Badge, error) {
	return s.engine.Badges(ctx, userID)
}

func (s *Service) Progress(ctx context.Context, userID uint64) (*gamification.Progress, error) {
	return s.engine.Progress(ctx, userID)
}

func (s *Service) describe(types []gamification.BadgeType) []AwardedBadge {
	out := make([]AwardedBadge, 0, len(types))
	for _, t := range types {
		tier, _ := s.engine.Thresholds().Lookup(t)
		out = append(out, AwardedBadge{Type: t, Name: tier.Name})
	}
	return out
}
