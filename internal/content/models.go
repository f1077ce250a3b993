package content

import (
	"time"

	"gorm.io/datatypes"
)

const (
	VideoTypeShort  = "short"
	VideoTypeNormal = "normal"
)

// Idea is the unit of work the pipeline turns into a published video.
type Idea struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`

	Keywords        datatypes.JSONSlice[string] `json:"keywords"`
	VideoType       string                      `gorm:"size:16" json:"video_type"`
	DurationSeconds int                         `json:"duration_seconds"`

	Status Status `gorm:"type:varchar(32);index;not null" json:"status"`

	// Highest completed *_generated status; empty until the first stage completes.
	LastSuccessfulStep Status `gorm:"type:varchar(32)" json:"last_successful_step"`

	ProgressPercentage int    `json:"progress_percentage"`
	CurrentStep        string `gorm:"size:64" json:"current_step"`
	ErrorMessage       string `gorm:"type:text" json:"error_message,omitempty"`

	ValidatedAt *time.Time `json:"validated_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ScriptDraft is what the script writer returns for an idea.
type ScriptDraft struct {
	Script      string
	Description string
}

type Script struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	IdeaID string `gorm:"size:36;uniqueIndex;not null" json:"idea_id"`

	OriginalScript string `gorm:"type:text" json:"original_script"`
	Description    string `gorm:"type:text" json:"description"`

	// Filled by the adapt stage.
	AdaptedScript string                      `gorm:"type:text" json:"adapted_script"`
	Phrases       datatypes.JSONSlice[string] `json:"phrases"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AudioPhrase struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	Path       string `json:"path"`
	DurationMs int64  `json:"duration_ms"`
	StartMs    int64  `json:"start_ms"`
	EndMs      int64  `json:"end_ms"`
}

type SubtitleSegment struct {
	Text    string `json:"text"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
}

type AudioTrack struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	IdeaID string `gorm:"size:36;uniqueIndex;not null" json:"idea_id"`

	Directory       string                           `gorm:"size:512" json:"directory"`
	CombinedPath    string                           `gorm:"size:512" json:"combined_path"`
	Phrases         datatypes.JSONSlice[AudioPhrase] `json:"phrases"`
	TotalDurationMs int64                            `json:"total_duration_ms"`

	// Empty until the video stage transcribes the combined track.
	Subtitles datatypes.JSONSlice[SubtitleSegment] `json:"subtitles"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Video struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	IdeaID string `gorm:"size:36;uniqueIndex;not null" json:"idea_id"`

	FilePath    string                      `gorm:"size:512" json:"file_path"`
	StorageURL  string                      `gorm:"size:512" json:"storage_url,omitempty"`
	DurationMs  int64                       `json:"duration_ms"`
	Title       string                      `gorm:"size:255" json:"title"`
	Description string                      `gorm:"type:text" json:"description"`
	Tags        datatypes.JSONSlice[string] `json:"tags"`

	IsScheduled bool       `gorm:"index;not null;default:false" json:"is_scheduled"`
	ScheduledAt *time.Time `gorm:"index" json:"scheduled_at,omitempty"`

	PlatformID  *string    `gorm:"size:64;index" json:"platform_id,omitempty"`
	PlatformURL string     `gorm:"size:255" json:"platform_url,omitempty"`
	UploadedAt  *time.Time `json:"uploaded_at,omitempty"`

	PublicationError   *string    `gorm:"type:text" json:"publication_error,omitempty"`
	PublicationErrorAt *time.Time `json:"publication_error_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (v *Video) Published() bool {
	return v.PlatformID != nil && *v.PlatformID != ""
}
