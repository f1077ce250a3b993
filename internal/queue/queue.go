package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/video-factory/internal/common"
	"github.com/suPer8Hu/video-factory/internal/content"
	"gorm.io/gorm"
)

var (
	ErrItemNotFound     = errors.New("item not found")
	ErrJobNotFound      = errors.New("job not found")
	ErrNotEnqueueable   = errors.New("item cannot be queued in its current status")
	ErrNotCancellable   = errors.New("only queued jobs can be cancelled")
	ErrInvalidJobState  = errors.New("job is not in the expected status")
	ErrInvalidStartFrom = errors.New("invalid start_from")
	// ErrAttemptSuperseded means the job was failed or re-claimed behind
	// the caller's back, usually by stale recovery in another process.
	ErrAttemptSuperseded = errors.New("job attempt was superseded")
)

type Options struct {
	MaxConcurrent     int
	DefaultMaxRetries int
	Now               func() time.Time
}

type Queue struct {
	db                *gorm.DB
	maxConcurrent     int
	defaultMaxRetries int
	now               func() time.Time
}

func New(db *gorm.DB, opts Options) *Queue {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	if opts.DefaultMaxRetries <= 0 {
		opts.DefaultMaxRetries = 1
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Queue{
		db:                db,
		maxConcurrent:     opts.MaxConcurrent,
		defaultMaxRetries: opts.DefaultMaxRetries,
		now:               opts.Now,
	}
}

func (q *Queue) MaxConcurrent() int {
	return q.maxConcurrent
}

type EnqueueOptions struct {
	StartFrom  string
	Priority   int
	MaxRetries int
}

// Enqueue creates a queued job for the item and moves the item to queued.
// When the item already has a queued or processing job, that job is returned
// with created=false and nothing is written.
func (q *Queue) Enqueue(ctx context.Context, itemID string, opts EnqueueOptions) (*Job, bool, error) {
	startFrom := opts.StartFrom
	if startFrom == "" {
		startFrom = string(content.StageScript)
	}
	if _, err := content.ParseStage(startFrom); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidStartFrom, err)
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = q.defaultMaxRetries
	}

	var job *Job
	created := false
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var idea content.Idea
		if err := tx.First(&idea, "id = ?", itemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}

		existing, err := activeJob(tx, itemID)
		if err == nil {
			job = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if !content.CanTransition(idea.Status, content.StatusQueued) {
			return fmt.Errorf("%w: %s", ErrNotEnqueueable, idea.Status)
		}

		now := q.now()
		active := itemID
		j := &Job{
			ID:           common.NewULID(),
			ItemID:       itemID,
			ActiveItemID: &active,
			Status:       JobQueued,
			Priority:     opts.Priority,
			StartFrom:    startFrom,
			MaxRetries:   maxRetries,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Create(j).Error; err != nil {
			return err
		}
		if err := content.NewRepo(tx).Transition(ctx, itemID, idea.Status, content.StatusQueued, map[string]any{
			"error_message": "",
		}); err != nil {
			return err
		}
		job = j
		created = true
		return nil
	})
	if err == nil {
		return job, created, nil
	}

	if errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrNotEnqueueable) {
		return nil, false, err
	}
	// lost a race on the unique active_item_id index: hand back the winner
	existing, getErr := activeJob(q.db.WithContext(ctx), itemID)
	if getErr == nil {
		return existing, false, nil
	}
	return nil, false, err
}

func activeJob(db *gorm.DB, itemID string) (*Job, error) {
	var j Job
	if err := db.Where("item_id = ? AND status IN ?", itemID, []JobStatus{JobQueued, JobProcessing}).
		Take(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// ClaimNext moves the best queued job to processing: highest priority first,
// then oldest, then lowest id. Returns nil, nil when the queue is empty. A
// lost race against another claimer just picks again.
func (q *Queue) ClaimNext(ctx context.Context) (*Job, error) {
	db := q.db.WithContext(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var cand Job
		err := db.Where("status = ?", JobQueued).
			Order("priority DESC").
			Order("created_at ASC").
			Order("id ASC").
			Take(&cand).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		now := q.now()
		token := common.NewULID()
		res := db.Model(&Job{}).
			Where("id = ? AND status = ?", cand.ID, JobQueued).
			Updates(map[string]any{
				"status":      JobProcessing,
				"claim_token": token,
				"started_at":  now,
				"updated_at":  now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			cand.Status = JobProcessing
			cand.ClaimToken = token
			cand.StartedAt = &now
			cand.UpdatedAt = now
			return &cand, nil
		}
	}
}

func (q *Queue) Get(ctx context.Context, jobID string) (*Job, error) {
	var j Job
	if err := q.db.WithContext(ctx).First(&j, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &j, nil
}

// LatestForItem returns the most recently created job of the item.
func (q *Queue) LatestForItem(ctx context.Context, itemID string) (*Job, error) {
	var j Job
	err := q.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at DESC").
		Order("id DESC").
		Take(&j).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &j, nil
}

// Complete finishes the attempt held by job.
func (q *Queue) Complete(ctx context.Context, job *Job) error {
	now := q.now()
	res := q.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ? AND claim_token = ?", job.ID, JobProcessing, job.ClaimToken).
		Updates(map[string]any{
			"status":         JobCompleted,
			"completed_at":   now,
			"active_item_id": nil,
			"updated_at":     now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return q.attemptError(ctx, job)
	}
	return nil
}

// Fail records a failed attempt. The job goes back to queued while
// retry_count stays below max_retries, otherwise it ends as failed. Either
// way the claim is released, so the failed attempt cannot report again.
func (q *Queue) Fail(ctx context.Context, job *Job, msg string) (*Job, error) {
	cur, err := q.Get(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if cur.Status != JobProcessing || cur.ClaimToken != job.ClaimToken {
		return nil, q.attemptError(ctx, job)
	}

	now := q.now()
	retryCount := cur.RetryCount + 1
	updates := map[string]any{
		"retry_count":   retryCount,
		"error_message": msg,
		"claim_token":   "",
		"updated_at":    now,
	}
	if retryCount < cur.MaxRetries {
		updates["status"] = JobQueued
		updates["started_at"] = nil
	} else {
		updates["status"] = JobFailed
		updates["completed_at"] = now
		updates["active_item_id"] = nil
	}

	res := q.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ? AND claim_token = ?", job.ID, JobProcessing, job.ClaimToken).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, q.attemptError(ctx, job)
	}
	return q.Get(ctx, job.ID)
}

// Holds reports whether job's claim is still the live attempt.
func (q *Queue) Holds(ctx context.Context, job *Job) (bool, error) {
	var n int64
	err := q.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ? AND claim_token = ?", job.ID, JobProcessing, job.ClaimToken).
		Count(&n).Error
	return n == 1, err
}

// Cancel cancels a queued job and returns its item to where the previous run
// left it (last successful step, or validated).
func (q *Queue) Cancel(ctx context.Context, jobID string) (*Job, error) {
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job Job
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		if job.Status != JobQueued {
			return fmt.Errorf("%w: job is %s", ErrNotCancellable, job.Status)
		}

		now := q.now()
		res := tx.Model(&Job{}).
			Where("id = ? AND status = ?", jobID, JobQueued).
			Updates(map[string]any{
				"status":         JobCancelled,
				"completed_at":   now,
				"active_item_id": nil,
				"updated_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotCancellable
		}

		var idea content.Idea
		if err := tx.First(&idea, "id = ?", job.ItemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if idea.Status != content.StatusQueued {
			return nil
		}
		back := idea.LastSuccessfulStep
		if back == "" {
			back = content.StatusValidated
		}
		return content.NewRepo(tx).Transition(ctx, idea.ID, content.StatusQueued, back, nil)
	})
	if err != nil {
		return nil, err
	}
	return q.Get(ctx, jobID)
}

// CancelForItem cancels the item's active job.
func (q *Queue) CancelForItem(ctx context.Context, itemID string) (*Job, error) {
	job, err := activeJob(q.db.WithContext(ctx), itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return q.Cancel(ctx, job.ID)
}

// PositionOf returns how many queued jobs will be claimed before the item's
// job. ok is false when the item has no queued job.
func (q *Queue) PositionOf(ctx context.Context, itemID string) (ahead int, ok bool, err error) {
	db := q.db.WithContext(ctx)
	var job Job
	err = db.Where("item_id = ? AND status = ?", itemID, JobQueued).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	var n int64
	err = db.Model(&Job{}).
		Where("status = ?", JobQueued).
		Where(
			db.Where("priority > ?", job.Priority).
				Or("priority = ? AND created_at < ?", job.Priority, job.CreatedAt).
				Or("priority = ? AND created_at = ? AND id < ?", job.Priority, job.CreatedAt, job.ID),
		).
		Count(&n).Error
	if err != nil {
		return 0, false, err
	}
	return int(n), true, nil
}

type Stats struct {
	Queued         int64 `json:"queued"`
	Processing     int64 `json:"processing"`
	CompletedToday int64 `json:"completed_today"`
	MaxConcurrent  int   `json:"max_concurrent"`
	AvailableSlots int   `json:"available_slots"`
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	db := q.db.WithContext(ctx)
	st := Stats{MaxConcurrent: q.maxConcurrent}

	if err := db.Model(&Job{}).Where("status = ?", JobQueued).Count(&st.Queued).Error; err != nil {
		return st, err
	}
	if err := db.Model(&Job{}).Where("status = ?", JobProcessing).Count(&st.Processing).Error; err != nil {
		return st, err
	}

	now := q.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if err := db.Model(&Job{}).
		Where("status = ? AND completed_at >= ?", JobCompleted, dayStart).
		Count(&st.CompletedToday).Error; err != nil {
		return st, err
	}

	st.AvailableSlots = q.maxConcurrent - int(st.Processing)
	if st.AvailableSlots < 0 {
		st.AvailableSlots = 0
	}
	return st, nil
}

func (q *Queue) ProcessingCount(ctx context.Context) (int, error) {
	var n int64
	if err := q.db.WithContext(ctx).Model(&Job{}).
		Where("status = ?", JobProcessing).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (q *Queue) CanProcessMore(ctx context.Context) (bool, error) {
	n, err := q.ProcessingCount(ctx)
	if err != nil {
		return false, err
	}
	return n < q.maxConcurrent, nil
}

// List returns jobs newest first, optionally filtered by status.
func (q *Queue) List(ctx context.Context, status JobStatus, limit int) ([]Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	db := q.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit)
	if status != "" {
		db = db.Where("status = ?", status)
	}
	var jobs []Job
	if err := db.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListStale returns processing jobs claimed more than olderThan ago.
func (q *Queue) ListStale(ctx context.Context, olderThan time.Duration) ([]Job, error) {
	cutoff := q.now().Add(-olderThan)
	var jobs []Job
	err := q.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", JobProcessing, cutoff).
		Order("started_at ASC").
		Find(&jobs).Error
	return jobs, err
}

func (q *Queue) attemptError(ctx context.Context, job *Job) error {
	cur, err := q.Get(ctx, job.ID)
	if err != nil {
		return err
	}
	if job.ClaimToken != "" && cur.ClaimToken != job.ClaimToken {
		return fmt.Errorf("%w: job is %s", ErrAttemptSuperseded, cur.Status)
	}
	return fmt.Errorf("%w: %s", ErrInvalidJobState, cur.Status)
}
