package documents

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// IngestJob tracks one document on its way to the upstream loader.
type IngestJob struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	UserID   uint64 `gorm:"index;not null" json:"-"`
	CourseID uint64 `gorm:"index;not null" json:"course_id"`

	Filename  string `gorm:"type:varchar(255);not null" json:"filename"`
	SpoolPath string `gorm:"type:varchar(1024);not null" json:"-"`

	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (IngestJob) TableName() string { return "chatbot_ingest_jobs" }

// Upload is the audit record of one upload attempt.
type Upload struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID        string    `gorm:"size:26;index" json:"job_id"`
	Filename     string    `gorm:"type:varchar(255);not null" json:"filename"`
	CourseID     uint64    `gorm:"index;not null" json:"course_id"`
	UserID       uint64    `gorm:"index;not null" json:"user_id"`
	Success      bool      `gorm:"not null" json:"success"`
	ResponseData *string   `gorm:"type:text" json:"response_data,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Upload) TableName() string { return "chatbot_uploads" }
