package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/video-factory/internal/common"
	"gorm.io/gorm"
)

// ErrStatusConflict means the row no longer had the expected status when the
// guarded update ran; another writer moved it first.
var ErrStatusConflict = errors.New("item status changed concurrently")

const maxErrorMessageLen = 500

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// WithTx returns a Repo bound to an open transaction.
func (r *Repo) WithTx(tx *gorm.DB) *Repo {
	return &Repo{db: tx}
}

func (r *Repo) CreateIdea(ctx context.Context, idea *Idea) error {
	if idea.ID == "" {
		idea.ID = common.NewUUID()
	}
	if idea.Status == "" {
		idea.Status = StatusPending
	}
	return r.db.WithContext(ctx).Create(idea).Error
}

func (r *Repo) GetIdea(ctx context.Context, id string) (*Idea, error) {
	var idea Idea
	if err := r.db.WithContext(ctx).First(&idea, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &idea, nil
}

// Transition moves an item from -> to, but only if the row still has status
// from. Progress and step label follow the new status; extra columns are
// written in the same statement.
func (r *Repo) Transition(ctx context.Context, id string, from, to Status, extra map[string]any) error {
	if err := checkTransition(from, to); err != nil {
		return err
	}

	updates := map[string]any{
		"status":       to,
		"current_step": StepLabel(to),
	}
	if p, ok := Progress(to); ok {
		updates["progress_percentage"] = p
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := r.db.WithContext(ctx).Model(&Idea{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := r.db.WithContext(ctx).Model(&Idea{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return gorm.ErrRecordNotFound
		}
		return fmt.Errorf("%w: expected %q", ErrStatusConflict, from)
	}
	return nil
}

// Advance transitions idea from its in-memory status and keeps the struct in sync.
func (r *Repo) Advance(ctx context.Context, idea *Idea, to Status, extra map[string]any) error {
	if err := r.Transition(ctx, idea.ID, idea.Status, to, extra); err != nil {
		return err
	}
	idea.Status = to
	idea.CurrentStep = StepLabel(to)
	if p, ok := Progress(to); ok {
		idea.ProgressPercentage = p
	}
	if v, ok := extra["last_successful_step"]; ok {
		idea.LastSuccessfulStep = v.(Status)
	}
	if v, ok := extra["error_message"]; ok {
		idea.ErrorMessage = v.(string)
	}
	return nil
}

// CompleteStage records a finished stage as the new resumption anchor.
func (r *Repo) CompleteStage(ctx context.Context, idea *Idea, stage Stage) error {
	return r.Advance(ctx, idea, stage.Generated(), map[string]any{
		"last_successful_step": stage.Generated(),
		"error_message":        "",
	})
}

// MarkError moves the item to error. last_successful_step is left untouched.
func (r *Repo) MarkError(ctx context.Context, idea *Idea, msg string) error {
	return r.Advance(ctx, idea, StatusError, map[string]any{
		"error_message": TruncateMessage(msg),
	})
}

func TruncateMessage(msg string) string {
	if len(msg) <= maxErrorMessageLen {
		return msg
	}
	return msg[:maxErrorMessageLen]
}

// ListIdeas returns ideas newest first, optionally filtered by status.
func (r *Repo) ListIdeas(ctx context.Context, status Status, limit int) ([]Idea, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var ideas []Idea
	if err := q.Find(&ideas).Error; err != nil {
		return nil, err
	}
	return ideas, nil
}

// Scripts

func (r *Repo) GetScript(ctx context.Context, ideaID string) (*Script, error) {
	var s Script
	if err := r.db.WithContext(ctx).First(&s, "idea_id = ?", ideaID).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveScript replaces the script row of s.IdeaID, creating it when missing.
func (r *Repo) SaveScript(ctx context.Context, s *Script) error {
	existing, err := r.GetScript(ctx, s.IdeaID)
	switch {
	case err == nil:
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
		return r.db.WithContext(ctx).Save(s).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		if s.ID == "" {
			s.ID = common.NewUUID()
		}
		return r.db.WithContext(ctx).Create(s).Error
	default:
		return err
	}
}

// Audio

func (r *Repo) GetAudioTrack(ctx context.Context, ideaID string) (*AudioTrack, error) {
	var a AudioTrack
	if err := r.db.WithContext(ctx).First(&a, "idea_id = ?", ideaID).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repo) SaveAudioTrack(ctx context.Context, a *AudioTrack) error {
	existing, err := r.GetAudioTrack(ctx, a.IdeaID)
	switch {
	case err == nil:
		a.ID = existing.ID
		a.CreatedAt = existing.CreatedAt
		return r.db.WithContext(ctx).Save(a).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		if a.ID == "" {
			a.ID = common.NewUUID()
		}
		return r.db.WithContext(ctx).Create(a).Error
	default:
		return err
	}
}

// SaveSubtitles stores transcription output on an existing audio track.
func (r *Repo) SaveSubtitles(ctx context.Context, a *AudioTrack, segs []SubtitleSegment) error {
	a.Subtitles = segs
	return r.db.WithContext(ctx).Model(a).Update("subtitles", a.Subtitles).Error
}

// Videos

func (r *Repo) GetVideo(ctx context.Context, id string) (*Video, error) {
	var v Video
	if err := r.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repo) GetVideoByIdea(ctx context.Context, ideaID string) (*Video, error) {
	var v Video
	if err := r.db.WithContext(ctx).First(&v, "idea_id = ?", ideaID).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// SaveRenderedVideo stores render output. Scheduling and publication columns
// of an existing row are kept.
func (r *Repo) SaveRenderedVideo(ctx context.Context, v *Video) error {
	existing, err := r.GetVideoByIdea(ctx, v.IdeaID)
	switch {
	case err == nil:
		v.ID = existing.ID
		return r.db.WithContext(ctx).Model(existing).Updates(map[string]any{
			"file_path":   v.FilePath,
			"storage_url": v.StorageURL,
			"duration_ms": v.DurationMs,
			"title":       v.Title,
			"description": v.Description,
			"tags":        v.Tags,
		}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		if v.ID == "" {
			v.ID = common.NewUUID()
		}
		return r.db.WithContext(ctx).Create(v).Error
	default:
		return err
	}
}

func (r *Repo) ScheduleVideo(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Video{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_scheduled":         true,
			"scheduled_at":         at.UTC(),
			"publication_error":    nil,
			"publication_error_at": nil,
		}).Error
}

func (r *Repo) UnscheduleVideo(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Video{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_scheduled": false,
			"scheduled_at": nil,
		}).Error
}

// ListDueVideos returns scheduled, unpublished videos whose time has come.
func (r *Repo) ListDueVideos(ctx context.Context, now time.Time, limit int) ([]Video, error) {
	var vids []Video
	err := r.db.WithContext(ctx).
		Where("is_scheduled = ? AND platform_id IS NULL AND scheduled_at <= ?", true, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&vids).Error
	return vids, err
}

// ClaimScheduled clears the scheduled flag if it is still set. Only the caller
// that gets true may publish the video.
func (r *Repo) ClaimScheduled(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Video{}).
		Where("id = ? AND is_scheduled = ? AND platform_id IS NULL", id, true).
		Update("is_scheduled", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) MarkVideoPublished(ctx context.Context, id, platformID, url string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Video{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"platform_id":          platformID,
			"platform_url":         url,
			"uploaded_at":          at,
			"is_scheduled":         false,
			"publication_error":    nil,
			"publication_error_at": nil,
		}).Error
}

func (r *Repo) MarkVideoPublishError(ctx context.Context, id, msg string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Video{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_scheduled":         false,
			"publication_error":    TruncateMessage(msg),
			"publication_error_at": at,
		}).Error
}

// ListSchedulable returns rendered videos that are neither published nor scheduled, oldest first.
func (r *Repo) ListSchedulable(ctx context.Context, limit int) ([]Video, error) {
	var vids []Video
	err := r.db.WithContext(ctx).
		Where("is_scheduled = ? AND platform_id IS NULL", false).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&vids).Error
	return vids, err
}

type PublicationCounts struct {
	PendingPublication int64 `json:"pending_publication"`
	ScheduledFuture    int64 `json:"scheduled_future"`
	Published          int64 `json:"published"`
	Errors             int64 `json:"errors"`
}

func (r *Repo) CountPublication(ctx context.Context, now time.Time) (PublicationCounts, error) {
	var out PublicationCounts
	db := r.db.WithContext(ctx)

	if err := db.Model(&Video{}).
		Where("is_scheduled = ? AND platform_id IS NULL AND scheduled_at <= ?", true, now).
		Count(&out.PendingPublication).Error; err != nil {
		return out, err
	}
	if err := db.Model(&Video{}).
		Where("is_scheduled = ? AND platform_id IS NULL AND scheduled_at > ?", true, now).
		Count(&out.ScheduledFuture).Error; err != nil {
		return out, err
	}
	if err := db.Model(&Video{}).
		Where("platform_id IS NOT NULL").
		Count(&out.Published).Error; err != nil {
		return out, err
	}
	if err := db.Model(&Video{}).
		Where("publication_error IS NOT NULL AND platform_id IS NULL").
		Count(&out.Errors).Error; err != nil {
		return out, err
	}
	return out, nil
}
