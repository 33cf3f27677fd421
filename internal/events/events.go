// Package events delivers domain notifications to whoever subscribes:
// the worker's audit log, other services listening on Redis.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/learnbot/internal/logger"
)

// BadgeAwarded is emitted once per successful badge insert.
type BadgeAwarded struct {
	BadgeID   uint64    `json:"badge_id"`
	UserID    uint64    `json:"user_id"`
	BadgeType string    `json:"badge_type"`
	BadgeName string    `json:"badge_name"`
	AwardedAt time.Time `json:"awarded_at"`
}

type Notifier interface {
	BadgeAwarded(ctx context.Context, ev BadgeAwarded) error
}

// LogNotifier writes each notification as a structured log line.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("component", "badge_events")}
}

func (n *LogNotifier) BadgeAwarded(ctx context.Context, ev BadgeAwarded) error {
	_ = ctx
	n.log.Info("badge awarded",
		"badge_id", ev.BadgeID,
		"user_id", ev.UserID,
		"badge_type", ev.BadgeType,
		"badge_name", ev.BadgeName,
	)
	return nil
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) BadgeAwarded(ctx context.Context, ev BadgeAwarded) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.BadgeAwarded(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
