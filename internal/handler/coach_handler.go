package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"boxing-locker-go/internal/service"
	"boxing-locker-go/pkg/log"
	"boxing-locker-go/pkg/stream"
)

// CoachHandler 负责表单驱动的教练接口。
type CoachHandler struct {
	coachService service.CoachService
}

// NewCoachHandler 创建一个新的 CoachHandler。
func NewCoachHandler(coachService service.CoachService) *CoachHandler {
	return &CoachHandler{coachService: coachService}
}

// Submit 处理 POST /api/coach。
func (h *CoachHandler) Submit(c *gin.Context) {
	var req service.CoachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	prepared, err := h.coachService.Open(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrMessagesRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Messages are required"})
			return
		}
		log.Errorf("[CoachHandler] 打开教练流失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	writeStreamHeaders(c)
	result := prepared.Run(c.Request.Context(), stream.NewWriter(c.Writer))
	log.Infof("[CoachHandler] 教练流结束, message=%s, tools=%d", result.MessageID, len(result.Tools))
}
