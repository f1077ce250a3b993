package queue

import "time"

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

func (s JobStatus) Active() bool {
	return s == JobQueued || s == JobProcessing
}

// Job is one attempt-series of the pipeline for an item.
type Job struct {
	ID     string `gorm:"primaryKey;size:26" json:"id"` // ULID length
	ItemID string `gorm:"size:36;index;not null" json:"item_id"`

	// Equals ItemID while the job is queued or processing, NULL afterwards.
	// The unique index keeps a second active job for the same item out.
	ActiveItemID *string `gorm:"size:36;uniqueIndex" json:"-"`

	Status    JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	Priority  int       `gorm:"not null;default:0;index" json:"priority"`
	StartFrom string    `gorm:"size:16" json:"start_from"`

	// Set by each claim. Complete and Fail only apply to the attempt that
	// still holds it.
	ClaimToken string `gorm:"size:26;index" json:"-"`

	RetryCount int `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries int `gorm:"not null" json:"max_retries"`

	ErrorMessage *string `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Job) TableName() string {
	return "video_jobs"
}
