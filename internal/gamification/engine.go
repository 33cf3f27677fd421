package gamification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/learnbot/internal/events"
	"github.com/suPer8Hu/learnbot/internal/logger"
)

// Engine turns interaction history into badge state.
type Engine struct {
	repo     *Repo
	tiers    Thresholds
	notifier events.Notifier
	log      *logger.Logger
	locks    *userLocks
}

func NewEngine(repo *Repo, tiers Thresholds, notifier events.Notifier, log *logger.Logger) *Engine {
	if tiers.Len() == 0 {
		tiers = DefaultThresholds()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		repo:     repo,
		tiers:    tiers,
		notifier: notifier,
		log:      log.With("component", "gamification"),
		locks:    newUserLocks(),
	}
}

func (e *Engine) Thresholds() Thresholds { return e.tiers }

// RecordInteraction stores one exchange and evaluates badges for the user.
// When the insert succeeds but evaluation fails, the interaction id is
// returned together with the error.
func (e *Engine) RecordInteraction(ctx context.Context, userID, courseID uint64, question, answer string) (uint64, []BadgeType, error) {
	if userID == 0 {
		return 0, nil, &ValidationError{Field: "user_id", Reason: "must be positive"}
	}
	if courseID == 0 {
		return 0, nil, &ValidationError{Field: "course_id", Reason: "must be positive"}
	}
	if strings.TrimSpace(question) == "" {
		return 0, nil, &ValidationError{Field: "question", Reason: "required"}
	}
	if strings.TrimSpace(answer) == "" {
		return 0, nil, &ValidationError{Field: "answer", Reason: "required"}
	}

	in := &Interaction{
		UserID:   userID,
		CourseID: courseID,
		Question: question,
		Answer:   answer,
	}
	if err := e.repo.InsertInteraction(ctx, in); err != nil {
		return 0, nil, persistErr("insert interaction", err)
	}

	awarded, err := e.EvaluateBadges(ctx, userID)
	return in.ID, awarded, err
}

// EvaluateBadges awards every tier whose count is met and which the user
// does not hold yet, in ascending threshold order. It returns only the
// types inserted by this call.
func (e *Engine) EvaluateBadges(ctx context.Context, userID uint64) ([]BadgeType, error) {
	if userID == 0 {
		return nil, &ValidationError{Field: "user_id", Reason: "must be positive"}
	}

	unlock := e.locks.Lock(userID)
	defer unlock()

	count, err := e.repo.CountInteractions(ctx, userID)
	if err != nil {
		return nil, persistErr("count interactions", err)
	}
	held, err := e.repo.HeldBadgeTypes(ctx, userID)
	if err != nil {
		return nil, persistErr("list badges", err)
	}

	var awarded []BadgeType
	for _, tier := range e.tiers.tiers {
		if count < tier.Required || held[tier.Type] {
			continue
		}
		_, created, err := e.award(ctx, userID, tier)
		if err != nil {
			return awarded, err
		}
		if created {
			awarded = append(awarded, tier.Type)
		}
	}
	return awarded, nil
}

// AwardBadge grants badgeType to the user. Awarding a held badge returns the
// existing id with awarded=false.
func (e *Engine) AwardBadge(ctx context.Context, userID uint64, badgeType BadgeType) (badgeID uint64, awarded bool, err error) {
	tier, ok := e.tiers.Lookup(badgeType)
	if !ok {
		return 0, false, fmt.Errorf("%w: %q", ErrUnknownBadgeType, badgeType)
	}
	if userID == 0 {
		return 0, false, &ValidationError{Field: "user_id", Reason: "must be positive"}
	}
	return e.award(ctx, userID, tier)
}

func (e *Engine) award(ctx context.Context, userID uint64, tier Tier) (uint64, bool, error) {
	b := &Badge{
		UserID:      userID,
		BadgeType:   tier.Type,
		Name:        tier.Name,
		Description: tier.Description,
	}
	created, err := e.repo.InsertBadgeIfAbsent(ctx, b)
	if err != nil {
		return 0, false, persistErr("insert badge", err)
	}
	if !created {
		existing, err := e.repo.GetBadge(ctx, userID, tier.Type)
		if err != nil {
			return 0, false, persistErr("get badge", err)
		}
		return existing.ID, false, nil
	}
	if b.ID == 0 {
		// some drivers do not report the id for conflict-aware inserts
		if existing, err := e.repo.GetBadge(ctx, userID, tier.Type); err == nil {
			b.ID = existing.ID
			b.CreatedAt = existing.CreatedAt
		}
	}

	e.log.Info("badge awarded", "user_id", userID, "badge_type", tier.Type, "badge_id", b.ID)
	if e.notifier != nil {
		awardedAt := b.CreatedAt
		if awardedAt.IsZero() {
			awardedAt = time.Now()
		}
		ev := events.BadgeAwarded{
			BadgeID:   b.ID,
			UserID:    userID,
			BadgeType: string(tier.Type),
			BadgeName: tier.Name,
			AwardedAt: awardedAt,
		}
		if err := e.notifier.BadgeAwarded(ctx, ev); err != nil {
			e.log.Warn("badge notification failed", "user_id", userID, "badge_type", tier.Type, "error", err)
		}
	}
	return b.ID, true, nil
}

// Progress reports the lowest tier the user does not hold yet.
func (e *Engine) Progress(ctx context.Context, userID uint64) (*Progress, error) {
	count, err := e.repo.CountInteractions(ctx, userID)
	if err != nil {
		return nil, persistErr("count interactions", err)
	}
	held, err := e.repo.HeldBadgeTypes(ctx, userID)
	if err != nil {
		return nil, persistErr("list badges", err)
	}

	for _, tier := range e.tiers.tiers {
		if held[tier.Type] {
			continue
		}
		pct := int(count * 100 / tier.Required)
		if pct > 99 {
			pct = 99
		}
		return &Progress{
			HasNext:         true,
			CurrentCount:    count,
			NextBadgeType:   tier.Type,
			NextBadgeName:   tier.Name,
			NextBadgeCount:  tier.Required,
			ProgressPercent: pct,
		}, nil
	}
	return &Progress{HasNext: false, CurrentCount: count, ProgressPercent: 100}, nil
}

func (e *Engine) InteractionCount(ctx context.Context, userID uint64) (int64, error) {
	n, err := e.repo.CountInteractions(ctx, userID)
	return n, persistErr("count interactions", err)
}

func (e *Engine) Badges(ctx context.Context, userID uint64) ([]Badge, error) {
	out, err := e.repo.ListBadges(ctx, userID)
	return out, persistErr("list badges", err)
}

// RecentInteractions pages backwards from beforeID (0 = newest).
func (e *Engine) RecentInteractions(ctx context.Context, userID uint64, limit int, beforeID uint64) ([]Interaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	out, err := e.repo.ListInteractions(ctx, userID, limit, beforeID)
	return out, persistErr("list interactions", err)
}
