// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/datatypes"

	"boxing-locker-go/internal/model"
	"boxing-locker-go/internal/repository"
)

// ErrSessionIDRequired 在缺少 sessionId 时返回，调用方应映射为 400。
var ErrSessionIDRequired = errors.New("sessionId is required")

const (
	// DefaultHistoryLimit 是单个会话返回的最大消息数。
	DefaultHistoryLimit = 50
	// DefaultSessionListLimit 是会话列表返回的最大条数。
	DefaultSessionListLimit = 50
)

// 存储层无法保存的控制字符：NUL 以及除 \t \n \r 之外的 C0 字符。
var controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)

// SanitizeContent 去除 NUL 与控制字符，保留换行、制表符与回车。
func SanitizeContent(content string) string {
	return controlChars.ReplaceAllString(content, "")
}

// MessageExtras 是随消息一起保存的可选结构化字段。
type MessageExtras struct {
	ToolCalls            datatypes.JSON
	ToolResults          datatypes.JSON
	VideoRecommendations []string
}

// SessionService 定义了聊天会话的业务逻辑接口。
type SessionService interface {
	GetOrCreate(ctx context.Context, sessionID string) (*model.ChatSession, error)
	// Append 清洗后保存一条消息。清洗后为空的用户消息不保存，此时 saved 为 false。
	Append(ctx context.Context, sessionID, role, content string, extras *MessageExtras) (saved bool, err error)
	History(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error)
	ListSessions(ctx context.Context, limit int) ([]model.SessionSummary, error)
	UpdateCategory(ctx context.Context, sessionID, category string) error
	Delete(ctx context.Context, sessionID string) error
}

type sessionService struct {
	repo repository.SessionRepository
}

// NewSessionService 创建一个新的 SessionService。
func NewSessionService(repo repository.SessionRepository) SessionService {
	return &sessionService{repo: repo}
}

func (s *sessionService) GetOrCreate(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	session, err := s.repo.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create session: %w", err)
	}
	return session, nil
}

func (s *sessionService) Append(ctx context.Context, sessionID, role, content string, extras *MessageExtras) (bool, error) {
	if sessionID == "" {
		return false, ErrSessionIDRequired
	}
	content = SanitizeContent(content)
	if role == model.RoleUser && strings.TrimSpace(content) == "" {
		return false, nil
	}

	msg := &model.ChatMessage{SessionID: sessionID, Role: role, Content: content}
	if extras != nil {
		msg.ToolCalls = extras.ToolCalls
		msg.ToolResults = extras.ToolResults
		if len(extras.VideoRecommendations) > 0 {
			msg.VideoRecommendations = datatypes.JSONSlice[string](extras.VideoRecommendations)
		}
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return false, fmt.Errorf("failed to save message: %w", err)
	}
	return true, nil
}

func (s *sessionService) History(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	messages, err := s.repo.History(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	return messages, nil
}

func (s *sessionService) ListSessions(ctx context.Context, limit int) ([]model.SessionSummary, error) {
	if limit <= 0 {
		limit = DefaultSessionListLimit
	}
	sessions, err := s.repo.ListSessions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (s *sessionService) UpdateCategory(ctx context.Context, sessionID, category string) error {
	if sessionID == "" {
		return ErrSessionIDRequired
	}
	if err := s.repo.UpdateCategory(ctx, sessionID, category); err != nil {
		return fmt.Errorf("failed to update session category: %w", err)
	}
	return nil
}

func (s *sessionService) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionIDRequired
	}
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
