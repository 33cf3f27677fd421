package gamification

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) InsertInteraction(ctx context.Context, in *Interaction) error {
	return r.db.WithContext(ctx).Create(in).Error
}

func (r *Repo) CountInteractions(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Interaction{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

// ListInteractions returns interactions in DESC id order (newest -> oldest).
func (r *Repo) ListInteractions(ctx context.Context, userID uint64, limit int, beforeID uint64) ([]Interaction, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}

	var out []Interaction
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// InsertBadgeIfAbsent inserts b unless (user_id, badge_type) already exists.
// created is false when the row was already there.
func (r *Repo) InsertBadgeIfAbsent(ctx context.Context, b *Badge) (created bool, err error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(b)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repo) GetBadge(ctx context.Context, userID uint64, bt BadgeType) (*Badge, error) {
	var b Badge
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND badge_type = ?", userID, bt).
		First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBadges returns badges in award order.
func (r *Repo) ListBadges(ctx context.Context, userID uint64) ([]Badge, error) {
	var out []Badge
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) HeldBadgeTypes(ctx context.Context, userID uint64) (map[BadgeType]bool, error) {
	var types []BadgeType
	if err := r.db.WithContext(ctx).Model(&Badge{}).
		Where("user_id = ?", userID).
		Pluck("badge_type", &types).Error; err != nil {
		return nil, err
	}
	held := make(map[BadgeType]bool, len(types))
	for _, t := range types {
		held[t] = true
	}
	return held, nil
}
