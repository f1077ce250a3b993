package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/video-factory/internal/common"
)

func (h *Handler) GetVideo(c *gin.Context) {
	v, err := h.Items.GetVideo(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err, "video not found")
		return
	}
	common.OK(c, v)
}

type scheduleReq struct {
	PublishAt string `json:"publish_at" binding:"required"`
}

func (h *Handler) ScheduleVideo(c *gin.Context) {
	var req scheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	at, err := time.Parse(time.RFC3339, req.PublishAt)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "publish_at must be RFC3339")
		return
	}

	v, err := h.Scheduler.Schedule(c.Request.Context(), c.Param("id"), at)
	if err != nil {
		failErr(c, err, "video not found")
		return
	}
	common.OK(c, v)
}

func (h *Handler) UnscheduleVideo(c *gin.Context) {
	v, err := h.Scheduler.Unschedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err, "video not found")
		return
	}
	common.OK(c, v)
}

type bulkScheduleReq struct {
	StartDate    string   `json:"start_date" binding:"required"`
	PublishTimes []string `json:"publish_times" binding:"required"`
}

func (h *Handler) BulkSchedule(c *gin.Context) {
	var req bulkScheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "start_date must be YYYY-MM-DD")
		return
	}

	slots, err := h.Scheduler.BulkSchedule(c.Request.Context(), start, req.PublishTimes)
	if err != nil {
		failErr(c, err, "")
		return
	}
	common.OK(c, gin.H{"scheduled": slots, "count": len(slots)})
}

func (h *Handler) PublicationStatus(c *gin.Context) {
	st, err := h.Scheduler.Status(c.Request.Context())
	if err != nil {
		failErr(c, err, "")
		return
	}
	common.OK(c, st)
}

// ProcessPublication runs one publication pass synchronously.
func (h *Handler) ProcessPublication(c *gin.Context) {
	res, err := h.Scheduler.ProcessDue(c.Request.Context())
	if err != nil {
		failErr(c, err, "")
		return
	}
	common.OK(c, res)
}
