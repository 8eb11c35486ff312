package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"boxing-locker-go/internal/model"
	"boxing-locker-go/pkg/llm"
	"boxing-locker-go/pkg/log"
	"boxing-locker-go/pkg/reconcile"
	"boxing-locker-go/pkg/stream"
)

// UIMessagePart 是前端消息中的一个片段，目前只关心 text。
type UIMessagePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// UIMessage 兼容 parts 与 content 两种消息格式。
type UIMessage struct {
	ID      string          `json:"id,omitempty"`
	Role    string          `json:"role"`
	Parts   []UIMessagePart `json:"parts,omitempty"`
	Content string          `json:"content,omitempty"`
}

// Text 返回消息的纯文本：所有 text 片段以换行拼接，没有片段时使用 content。
func (m UIMessage) Text() string {
	var texts []string
	for _, p := range m.Parts {
		if p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}
	if len(texts) > 0 {
		return strings.Join(texts, "\n")
	}
	return m.Content
}

// ChatRequest 是 POST /api/chat 的请求体。
type ChatRequest struct {
	SessionID string      `json:"sessionId"`
	Messages  []UIMessage `json:"messages"`
}

// PreparedStream 是已经拿到首个上游事件、可以开始输出的流。
type PreparedStream struct {
	relay    *Relay
	finalize FinalizeFunc
}

// Run 输出整个流并返回汇总。
func (p *PreparedStream) Run(ctx context.Context, w *stream.Writer) RelayResult {
	return p.relay.Run(ctx, w, p.finalize)
}

// Close 在不调用 Run 时释放上游连接。
func (p *PreparedStream) Close() {
	p.relay.Close()
}

// ChatService 定义了文本聊天教练的接口。
type ChatService interface {
	// Open 校验请求、保存用户消息并打开上游流。返回错误时尚未产生任何输出。
	Open(ctx context.Context, req ChatRequest) (*PreparedStream, error)
}

type chatService struct {
	sessions  SessionService
	llmClient llm.Client
	resolver  *reconcile.Resolver
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(sessions SessionService, llmClient llm.Client, resolver *reconcile.Resolver) ChatService {
	return &chatService{sessions: sessions, llmClient: llmClient, resolver: resolver}
}

func (s *chatService) Open(ctx context.Context, req ChatRequest) (*PreparedStream, error) {
	if req.SessionID == "" {
		return nil, ErrSessionIDRequired
	}
	if _, err := s.sessions.GetOrCreate(ctx, req.SessionID); err != nil {
		return nil, err
	}

	// 只保存数组中最后一条用户消息
	if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == model.RoleUser {
		if _, err := s.sessions.Append(ctx, req.SessionID, model.RoleUser, req.Messages[n-1].Text(), nil); err != nil {
			return nil, err
		}
	}

	llmReq := llm.Request{Messages: composeMessages(chatSystemPrompt, req.Messages)}
	relay, err := openRelay(ctx, s.llmClient, llmReq, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to start chat stream: %w", err)
	}
	log.Infof("[ChatService] 开始流式回复, session=%s, messages=%d", req.SessionID, len(req.Messages))

	sessionID := req.SessionID
	return &PreparedStream{relay: relay, finalize: func(ctx context.Context, result RelayResult) []stream.Chunk {
		return s.finalize(ctx, sessionID, result)
	}}, nil
}

// finalize 在流结束时执行一次：解析结构化块、解析视频并保存助手消息。
func (s *chatService) finalize(ctx context.Context, sessionID string, result RelayResult) []stream.Chunk {
	if result.Text == "" {
		return nil
	}
	parsed := reconcile.Reconcile(result.Text)
	if s.resolver != nil && len(parsed.Videos) > 0 {
		parsed = parsed.WithFallbackVideos(s.resolver.Resolve(ctx, result.MessageID, parsed.Videos))
	}

	extras := &MessageExtras{VideoRecommendations: parsed.Videos}
	if _, err := s.sessions.Append(ctx, sessionID, model.RoleAssistant, result.Text, extras); err != nil {
		// 流已经开始，只记录错误
		log.Errorf("[ChatService] 保存助手消息失败, session=%s: %v", sessionID, err)
	}

	data, err := json.Marshal(parsed)
	if err != nil {
		log.Errorf("[ChatService] 序列化解析结果失败: %v", err)
		return nil
	}
	return []stream.Chunk{{Type: stream.TypeReconciled, Data: data}}
}

func composeMessages(systemPrompt string, history []UIMessage) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: model.RoleSystem, Content: systemPrompt})
	for _, m := range history {
		if m.Role != model.RoleUser && m.Role != model.RoleAssistant && m.Role != model.RoleSystem {
			continue
		}
		text := m.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		msgs = append(msgs, llm.Message{Role: m.Role, Content: text})
	}
	return msgs
}
