// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"boxing-locker-go/internal/service"
	"boxing-locker-go/pkg/log"
	"boxing-locker-go/pkg/token"
)

// VoiceTicketMiddleware 创建一个 Gin 中间件，用于语音会话票据认证。
// 票据从路径参数 :token 中读取，校验通过后立即消费，同一票据只能建立一次连接。
func VoiceTicketMiddleware(voiceService service.VoiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticket := c.Param("token")
		if ticket == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing voice ticket"})
			return
		}

		err := voiceService.RedeemTicket(c.Request.Context(), ticket)
		switch {
		case err == nil:
		case errors.Is(err, token.ErrTicketUsed):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Voice ticket already used"})
			return
		case errors.Is(err, service.ErrInvalidTicket):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired voice ticket"})
			return
		default:
			log.Errorf("[VoiceTicketMiddleware] 消费票据失败: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify voice ticket"})
			return
		}

		c.Next()
	}
}
