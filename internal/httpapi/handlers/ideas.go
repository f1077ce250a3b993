package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/video-factory/internal/common"
	"github.com/suPer8Hu/video-factory/internal/content"
	"gorm.io/datatypes"
)

type createIdeaReq struct {
	Title           string   `json:"title" binding:"required"`
	Description     string   `json:"description"`
	Keywords        []string `json:"keywords"`
	VideoType       string   `json:"video_type"`
	DurationSeconds int      `json:"duration_seconds"`
}

func (h *Handler) CreateIdea(c *gin.Context) {
	var req createIdeaReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "title required")
		return
	}

	idea := &content.Idea{
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		Keywords:        req.Keywords,
		VideoType:       req.VideoType,
		DurationSeconds: req.DurationSeconds,
		Status:          content.StatusPending,
	}
	if err := h.Items.CreateIdea(c.Request.Context(), idea); err != nil {
		failErr(c, err, "")
		return
	}
	common.Created(c, idea)
}

func (h *Handler) GetIdea(c *gin.Context) {
	idea, err := h.Items.GetIdea(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err, "idea not found")
		return
	}
	common.OK(c, idea)
}

func (h *Handler) ListIdeas(c *gin.Context) {
	status := content.Status(c.Query("status"))
	if status != "" && !content.IsKnownStatus(status) {
		common.Fail(c, http.StatusBadRequest, 10002, "unknown status")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	ideas, err := h.Items.ListIdeas(c.Request.Context(), status, limit)
	if err != nil {
		failErr(c, err, "")
		return
	}
	common.OK(c, gin.H{"ideas": ideas, "count": len(ideas)})
}

type validateIdeaReq struct {
	VideoType       string   `json:"video_type"`
	DurationSeconds int      `json:"duration_seconds"`
	Keywords        []string `json:"keywords"`
}

// ValidateIdea fixes the production parameters and makes the idea enqueueable.
func (h *Handler) ValidateIdea(c *gin.Context) {
	var req validateIdeaReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	ctx := c.Request.Context()
	idea, err := h.Items.GetIdea(ctx, c.Param("id"))
	if err != nil {
		failErr(c, err, "idea not found")
		return
	}

	if req.VideoType == "" {
		req.VideoType = idea.VideoType
	}
	if req.VideoType == "" {
		req.VideoType = content.VideoTypeShort
	}
	if req.VideoType != content.VideoTypeShort && req.VideoType != content.VideoTypeNormal {
		common.Fail(c, http.StatusBadRequest, 10002, "video_type must be short or normal")
		return
	}
	if req.DurationSeconds == 0 {
		req.DurationSeconds = idea.DurationSeconds
	}
	if req.DurationSeconds <= 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "duration_seconds must be positive")
		return
	}
	keywords := datatypes.JSONSlice[string](req.Keywords)
	if len(keywords) == 0 {
		keywords = idea.Keywords
	}

	now := time.Now().UTC()
	err = h.Items.Advance(ctx, idea, content.StatusValidated, map[string]any{
		"video_type":       req.VideoType,
		"duration_seconds": req.DurationSeconds,
		"keywords":         keywords,
		"validated_at":     now,
	})
	if err != nil {
		failErr(c, err, "idea not found")
		return
	}
	idea.VideoType = req.VideoType
	idea.DurationSeconds = req.DurationSeconds
	idea.Keywords = keywords
	idea.ValidatedAt = &now
	common.OK(c, idea)
}

func (h *Handler) RejectIdea(c *gin.Context) {
	ctx := c.Request.Context()
	idea, err := h.Items.GetIdea(ctx, c.Param("id"))
	if err != nil {
		failErr(c, err, "idea not found")
		return
	}
	if err := h.Items.Advance(ctx, idea, content.StatusRejected, nil); err != nil {
		failErr(c, err, "idea not found")
		return
	}
	common.OK(c, idea)
}
