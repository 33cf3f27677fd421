package gamification

import "time"

// Interaction is one question/answer exchange. Rows are never updated or deleted.
type Interaction struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"not null;index:idx_chatbot_interaction_user_id,priority:1" json:"user_id"`
	CourseID  uint64    `gorm:"not null;index" json:"course_id"`
	Question  string    `gorm:"type:text;not null" json:"question"`
	Answer    string    `gorm:"type:text;not null" json:"answer"`
	CreatedAt time.Time `gorm:"index:idx_chatbot_interaction_user_id,priority:2" json:"created_at"`
}

func (Interaction) TableName() string { return "chatbot_interactions" }

// Badge is an awarded tier. The unique index makes a second award for the
// same (user, type) a no-op.
type Badge struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint64    `gorm:"not null;index:uniq_chatbot_badge_user_type,unique,priority:1" json:"user_id"`
	BadgeType   BadgeType `gorm:"type:varchar(32);not null;index:uniq_chatbot_badge_user_type,unique,priority:2" json:"badge_type"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Description string    `gorm:"type:text;not null" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Badge) TableName() string { return "chatbot_badges" }

// Progress describes how far a user is from the next badge tier.
type Progress struct {
	HasNext         bool      `json:"has_next_badge"`
	CurrentCount    int64     `json:"current_count"`
	NextBadgeType   BadgeType `json:"next_badge_type,omitempty"`
	NextBadgeName   string    `json:"next_badge_name"`
	NextBadgeCount  int64     `json:"next_badge_count"`
	ProgressPercent int       `json:"progress_percent"`
}
