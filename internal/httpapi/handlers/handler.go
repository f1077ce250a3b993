package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/video-factory/internal/common"
	"github.com/suPer8Hu/video-factory/internal/content"
	"github.com/suPer8Hu/video-factory/internal/publish"
	"github.com/suPer8Hu/video-factory/internal/queue"
	"gorm.io/gorm"
)

type Handler struct {
	Queue     *queue.Queue
	Items     *content.Repo
	Scheduler *publish.Scheduler
}

func NewHandler(q *queue.Queue, items *content.Repo, sched *publish.Scheduler) *Handler {
	return &Handler{Queue: q, Items: items, Scheduler: sched}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// failErr maps domain errors to the response envelope. notFound is the
// message used for gorm.ErrRecordNotFound.
func failErr(c *gin.Context, err error, notFound string) {
	switch {
	case errors.Is(err, queue.ErrItemNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "item not found")
	case errors.Is(err, queue.ErrJobNotFound):
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
	case errors.Is(err, gorm.ErrRecordNotFound):
		common.Fail(c, http.StatusNotFound, 40403, notFound)
	case errors.Is(err, queue.ErrNotEnqueueable):
		common.Fail(c, http.StatusConflict, 40901, err.Error())
	case errors.Is(err, queue.ErrNotCancellable):
		common.Fail(c, http.StatusConflict, 40902, err.Error())
	case errors.Is(err, content.ErrInvalidTransition), errors.Is(err, content.ErrStatusConflict):
		common.Fail(c, http.StatusConflict, 40903, err.Error())
	case errors.Is(err, publish.ErrAlreadyPublished):
		common.Fail(c, http.StatusConflict, 40904, "video already published")
	case errors.Is(err, queue.ErrInvalidStartFrom), errors.Is(err, publish.ErrInvalidSlot):
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
	case errors.Is(err, publish.ErrNoUploader):
		common.Fail(c, http.StatusServiceUnavailable, 50301, "publication is not configured")
	default:
		log.Printf("[http] path=%s err=%v", c.FullPath(), err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
