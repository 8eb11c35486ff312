package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"boxing-locker-go/internal/model"
	"boxing-locker-go/internal/service"
	"boxing-locker-go/pkg/log"
)

// defaultSearchLimit 是 /api/videos/search 未指定 limit 时的条数。
const defaultSearchLimit = 3

// VideoHandler 负责视频目录的查询接口。
type VideoHandler struct {
	videoService service.VideoService
}

// NewVideoHandler 创建一个新的 VideoHandler 实例。
func NewVideoHandler(videoService service.VideoService) *VideoHandler {
	return &VideoHandler{videoService: videoService}
}

// Search 处理 GET /api/videos/search?q=&limit=。
func (h *VideoHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusOK, gin.H{"videos": []model.VideoSummary{}})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultSearchLimit)))
	if err != nil || limit <= 0 {
		limit = defaultSearchLimit
	}
	log.Infof("[VideoHandler] 收到视频检索请求, q=%q, limit=%d", query, limit)

	videos, err := h.videoService.Search(c.Request.Context(), model.VideoSearchParams{Query: query, Limit: limit})
	if err != nil {
		log.Errorf("[VideoHandler] 视频检索失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search videos"})
		return
	}

	summaries := make([]model.VideoSummary, 0, len(videos))
	for _, v := range videos {
		summaries = append(summaries, v.Summary())
	}
	c.JSON(http.StatusOK, gin.H{"videos": summaries})
}

// Get 处理 GET /api/videos/:videoId。
func (h *VideoHandler) Get(c *gin.Context) {
	videoID := c.Param("videoId")
	video, err := h.videoService.GetByID(c.Request.Context(), videoID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidVideoID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
			return
		}
		log.Errorf("[VideoHandler] 获取视频失败, id=%s: %v", videoID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get video"})
		return
	}
	if video == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"video": video})
}
