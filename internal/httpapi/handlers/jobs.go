package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/video-factory/internal/common"
	"github.com/suPer8Hu/video-factory/internal/queue"
	"gorm.io/gorm"
)

type enqueueReq struct {
	StartFrom  string `json:"start_from"`
	Priority   int    `json:"priority"`
	MaxRetries int    `json:"max_retries"`
}

func (h *Handler) EnqueueJob(c *gin.Context) {
	var req enqueueReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
			return
		}
	}

	job, created, err := h.Queue.Enqueue(c.Request.Context(), c.Param("item_id"), queue.EnqueueOptions{
		StartFrom:  req.StartFrom,
		Priority:   req.Priority,
		MaxRetries: req.MaxRetries,
	})
	if err != nil {
		failErr(c, err, "item not found")
		return
	}

	data := gin.H{"job": job, "created": created}
	if pos, ok, err := h.Queue.PositionOf(c.Request.Context(), job.ItemID); err == nil && ok {
		data["queue_position"] = pos
	}
	if created {
		common.Created(c, data)
		return
	}
	common.OK(c, data)
}

// GetJob reports the item's latest job, its place in the queue and the item's progress.
func (h *Handler) GetJob(c *gin.Context) {
	ctx := c.Request.Context()
	itemID := c.Param("item_id")

	idea, err := h.Items.GetIdea(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = queue.ErrItemNotFound
		}
		failErr(c, err, "item not found")
		return
	}

	job, err := h.Queue.LatestForItem(ctx, itemID)
	if err != nil {
		failErr(c, err, "job not found")
		return
	}

	var position any
	if pos, ok, err := h.Queue.PositionOf(ctx, itemID); err == nil && ok {
		position = pos
	}

	common.OK(c, gin.H{
		"job":            job,
		"queue_position": position,
		"item": gin.H{
			"id":                   idea.ID,
			"status":               idea.Status,
			"last_successful_step": idea.LastSuccessfulStep,
			"progress_percentage":  idea.ProgressPercentage,
			"current_step":         idea.CurrentStep,
			"error_message":        idea.ErrorMessage,
		},
	})
}

func (h *Handler) CancelJob(c *gin.Context) {
	job, err := h.Queue.CancelForItem(c.Request.Context(), c.Param("item_id"))
	if err != nil {
		failErr(c, err, "job not found")
		return
	}
	common.OK(c, gin.H{"job": job})
}

func (h *Handler) QueueStats(c *gin.Context) {
	st, err := h.Queue.Stats(c.Request.Context())
	if err != nil {
		failErr(c, err, "")
		return
	}
	common.OK(c, st)
}

func (h *Handler) ListJobs(c *gin.Context) {
	status := queue.JobStatus(c.Query("status"))
	switch status {
	case "", queue.JobQueued, queue.JobProcessing, queue.JobCompleted, queue.JobFailed, queue.JobCancelled:
	default:
		common.Fail(c, http.StatusBadRequest, 10002, "unknown job status")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	jobs, err := h.Queue.List(c.Request.Context(), status, limit)
	if err != nil {
		failErr(c, err, "")
		return
	}
	common.OK(c, gin.H{"jobs": jobs, "count": len(jobs)})
}
