// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"boxing-locker-go/internal/service"
	"boxing-locker-go/pkg/log"
	"boxing-locker-go/pkg/stream"
)

// ChatHandler 负责文本聊天教练的接口。
type ChatHandler struct {
	chatService    service.ChatService
	sessionService service.SessionService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, sessionService service.SessionService) *ChatHandler {
	return &ChatHandler{chatService: chatService, sessionService: sessionService}
}

// uiMessage 是历史记录返回给前端的消息格式。
type uiMessage struct {
	ID        string                  `json:"id"`
	Role      string                  `json:"role"`
	Parts     []service.UIMessagePart `json:"parts"`
	CreatedAt time.Time               `json:"createdAt"`
}

// Send 处理 POST /api/chat，以 data: 帧流式返回教练回复。
func (h *ChatHandler) Send(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	prepared, err := h.chatService.Open(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrSessionIDRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
			return
		}
		log.Errorf("[ChatHandler] 打开聊天流失败, session=%s: %v", req.SessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process chat request"})
		return
	}

	writeStreamHeaders(c)
	result := prepared.Run(c.Request.Context(), stream.NewWriter(c.Writer))
	log.Infof("[ChatHandler] 聊天流结束, session=%s, message=%s, chars=%d", req.SessionID, result.MessageID, len(result.Text))
}

// Get 处理 GET /api/chat：getAll=true 时返回会话列表，否则返回指定会话的历史。
func (h *ChatHandler) Get(c *gin.Context) {
	if c.Query("getAll") == "true" {
		sessions, err := h.sessionService.ListSessions(c.Request.Context(), service.DefaultSessionListLimit)
		if err != nil {
			log.Errorf("[ChatHandler] 获取会话列表失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get chat history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
		return
	}

	sessionID := c.Query("sessionId")
	history, err := h.sessionService.History(c.Request.Context(), sessionID, service.DefaultHistoryLimit)
	if err != nil {
		if errors.Is(err, service.ErrSessionIDRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
			return
		}
		log.Errorf("[ChatHandler] 获取聊天历史失败, session=%s: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get chat history"})
		return
	}

	messages := make([]uiMessage, 0, len(history))
	for i, m := range history {
		messages = append(messages, uiMessage{
			ID:        "msg-" + strconv.Itoa(i),
			Role:      m.Role,
			Parts:     []service.UIMessagePart{{Type: "text", Text: m.Content}},
			CreatedAt: m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// Delete 处理 DELETE /api/chat，删除会话及其全部消息。
func (h *ChatHandler) Delete(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if err := h.sessionService.Delete(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, service.ErrSessionIDRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
			return
		}
		log.Errorf("[ChatHandler] 删除会话失败, session=%s: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func writeStreamHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()
}
