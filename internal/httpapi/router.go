package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/video-factory/internal/common"
	"github.com/suPer8Hu/video-factory/internal/config"
	"github.com/suPer8Hu/video-factory/internal/httpapi/handlers"
	"github.com/suPer8Hu/video-factory/internal/httpapi/middleware"
)

// NewRouter wires the job, idea and publication endpoints. limiter may be nil.
func NewRouter(h *handlers.Handler, cfg config.Config, limiter middleware.Limiter) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	r.GET("/ping", h.Ping)

	api := r.Group("/")
	api.Use(middleware.AuthRequired(cfg.JWTSecret))
	api.Use(middleware.RateLimit(limiter, cfg.RateLimitPerMinute))

	// queue
	api.POST("/jobs/:item_id", h.EnqueueJob)
	api.GET("/jobs/:item_id", h.GetJob)
	api.POST("/jobs/:item_id/cancel", h.CancelJob)
	api.GET("/queue/stats", h.QueueStats)
	api.GET("/queue/jobs", h.ListJobs)

	// ideas
	api.POST("/ideas", h.CreateIdea)
	api.GET("/ideas", h.ListIdeas)
	api.GET("/ideas/:id", h.GetIdea)
	api.PATCH("/ideas/:id/validate", h.ValidateIdea)
	api.PATCH("/ideas/:id/reject", h.RejectIdea)

	// publication
	api.POST("/videos/schedule/bulk", h.BulkSchedule)
	api.GET("/videos/:id", h.GetVideo)
	api.POST("/videos/:id/schedule", h.ScheduleVideo)
	api.DELETE("/videos/:id/schedule", h.UnscheduleVideo)
	api.GET("/publication/status", h.PublicationStatus)
	api.POST("/publication/process", h.ProcessPublication)
	return r
}
