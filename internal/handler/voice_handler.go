package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"boxing-locker-go/internal/service"
	"boxing-locker-go/pkg/log"
	"boxing-locker-go/pkg/voice"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// VoiceHandler 负责实时语音教练的接口。
type VoiceHandler struct {
	voiceService service.VoiceService
	faqService   service.FAQService
}

// NewVoiceHandler 创建一个新的 VoiceHandler。
func NewVoiceHandler(voiceService service.VoiceService, faqService service.FAQService) *VoiceHandler {
	return &VoiceHandler{voiceService: voiceService, faqService: faqService}
}

// inboundMessage 是浏览器通过 WebSocket 发送的消息。
type inboundMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// wsSink 把语音客户端的消息写回浏览器，写操作需要串行。
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Send(msg voice.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// Connect 处理 POST /api/voice/connect，签发一次性语音票据。
func (h *VoiceHandler) Connect(c *gin.Context) {
	ticket, err := h.voiceService.IssueTicket(c.Request.Context())
	if err != nil {
		log.Errorf("[VoiceHandler] 签发语音票据失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create voice session"})
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// FAQ 处理 GET /api/voice/faq。
func (h *VoiceHandler) FAQ(c *gin.Context) {
	content, err := h.faqService.Load()
	if err != nil {
		log.Errorf("[VoiceHandler] 读取 FAQ 失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load FAQ"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": content})
}

// Live 处理 GET /api/voice/live/:token。票据已由中间件校验并消费。
func (h *VoiceHandler) Live(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sink := &wsSink{conn: conn}
	session, err := h.voiceService.OpenSession(ctx)
	if err != nil {
		log.Errorf("[VoiceHandler] 打开语音会话失败: %v", err)
		_ = sink.Send(voice.Outbound{Type: voice.MsgError, Message: "Connection error - please try again"})
		_ = sink.Send(voice.Outbound{Type: voice.MsgClosed})
		return
	}
	client := voice.NewClient(session, sink, h.voiceService.GeneratePlan)
	log.Infof("[VoiceHandler] 语音会话已建立, client=%s", c.ClientIP())

	go h.readLoop(ctx, cancel, conn, client, sink)

	if err := client.Run(ctx); err != nil {
		log.Warnf("[VoiceHandler] 语音会话异常结束: %v", err)
	}
	log.Infof("[VoiceHandler] 语音会话已关闭, client=%s", c.ClientIP())
}

// readLoop 读取浏览器消息直到连接关闭，连接关闭时取消会话。
func (h *VoiceHandler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, client *voice.Client, sink *wsSink) {
	defer cancel()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Debugf("[VoiceHandler] 浏览器连接已断开: %v", err)
			}
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warnf("[VoiceHandler] 无法解析浏览器消息: %v", err)
			continue
		}
		switch msg.Type {
		case "audio":
			if err := client.SendAudio(msg.Data); err != nil {
				log.Warnf("[VoiceHandler] 转发音频失败: %v", err)
			}
		case "start":
			client.StartRecording()
		case "stop":
			client.StopRecording()
		case "end":
			client.End()
			return
		default:
			_ = sink.Send(voice.Outbound{Type: voice.MsgError, Message: "Unknown message type: " + msg.Type})
		}
	}
}
