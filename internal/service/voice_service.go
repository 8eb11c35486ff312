package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"boxing-locker-go/internal/config"
	"boxing-locker-go/internal/repository"
	"boxing-locker-go/pkg/log"
	"boxing-locker-go/pkg/token"
	"boxing-locker-go/pkg/voice"
)

// ErrInvalidTicket 表示语音票据签名错误或已过期。
var ErrInvalidTicket = errors.New("invalid voice ticket")

// VoiceTicket 是 POST /api/voice/connect 的响应。
type VoiceTicket struct {
	Token string `json:"token"`
	Model string `json:"model"`
}

// SessionFactory 打开一个远端实时语音会话。
type SessionFactory func(ctx context.Context, systemInstruction string) (voice.LiveSession, error)

// PlanStore 保存教练计划文件并返回下载链接。
type PlanStore interface {
	PutPlan(ctx context.Context, objectName, filename string, content []byte) (string, error)
}

// VoiceService 定义了实时语音教练的接口。
type VoiceService interface {
	IssueTicket(ctx context.Context) (*VoiceTicket, error)
	// RedeemTicket 校验并消费票据，同一票据只能成功一次。
	RedeemTicket(ctx context.Context, ticket string) error
	OpenSession(ctx context.Context) (voice.LiveSession, error)
	GeneratePlan(ctx context.Context, req voice.PlanRequest) (voice.PlanArtifact, error)
}

type voiceService struct {
	tickets    *token.VoiceTicketManager
	ticketRepo repository.VoiceTicketRepository
	faq        FAQService
	connect    SessionFactory
	plans      PlanStore
	model      string
}

// NewVoiceService 创建一个新的 VoiceService 实例。plans 为 nil 时不支持生成计划。
func NewVoiceService(tickets *token.VoiceTicketManager, ticketRepo repository.VoiceTicketRepository, faq FAQService, connect SessionFactory, plans PlanStore, model string) VoiceService {
	return &voiceService{
		tickets:    tickets,
		ticketRepo: ticketRepo,
		faq:        faq,
		connect:    connect,
		plans:      plans,
		model:      QualifiedModelName(model),
	}
}

// QualifiedModelName 为模型名补上 "models/" 前缀。
func QualifiedModelName(model string) string {
	if model == "" || strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

// GeminiSessionFactory 使用配置中的 Gemini Live 参数创建 SessionFactory。
func GeminiSessionFactory(cfg config.VoiceConfig) SessionFactory {
	return func(ctx context.Context, systemInstruction string) (voice.LiveSession, error) {
		return voice.ConnectGemini(ctx, voice.GeminiConfig{
			APIKey:            cfg.APIKey,
			APIVersion:        cfg.APIVersion,
			Model:             QualifiedModelName(cfg.Model),
			VoiceName:         cfg.VoiceName,
			SystemInstruction: systemInstruction,
		})
	}
}

func (s *voiceService) IssueTicket(ctx context.Context) (*VoiceTicket, error) {
	signed, claims, err := s.tickets.GenerateTicket(s.model)
	if err != nil {
		return nil, fmt.Errorf("failed to generate voice ticket: %w", err)
	}
	log.Infof("[VoiceService] 签发语音票据, jti=%s", claims.ID)
	return &VoiceTicket{Token: signed, Model: s.model}, nil
}

func (s *voiceService) RedeemTicket(ctx context.Context, ticket string) error {
	claims, err := s.tickets.VerifyTicket(ticket)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}
	ttl := s.tickets.TTL()
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	ok, err := s.ticketRepo.Consume(ctx, claims.ID, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return token.ErrTicketUsed
	}
	return nil
}

func (s *voiceService) OpenSession(ctx context.Context) (voice.LiveSession, error) {
	faq, err := s.faq.Load()
	if err != nil {
		log.Warnf("[VoiceService] FAQ 加载失败, 使用默认背景: %v", err)
		faq = ""
	}
	session, err := s.connect(ctx, buildVoiceInstruction(faq))
	if err != nil {
		return nil, fmt.Errorf("failed to open voice session: %w", err)
	}
	return session, nil
}

// GeneratePlan 渲染 Markdown 计划并上传到对象存储，键为 plans/<ulid>.md。
func (s *voiceService) GeneratePlan(ctx context.Context, req voice.PlanRequest) (voice.PlanArtifact, error) {
	if s.plans == nil {
		return voice.PlanArtifact{}, errors.New("plan storage is not configured")
	}
	now := time.Now()
	objectName := fmt.Sprintf("plans/%s.md", ulid.Make().String())
	url, err := s.plans.PutPlan(ctx, objectName, voice.PlanFilename(req.Title), voice.RenderPlanMarkdown(req, now))
	if err != nil {
		return voice.PlanArtifact{}, err
	}
	log.Infof("[VoiceService] 教练计划已生成, object=%s", objectName)
	return voice.PlanArtifact{Title: req.Title, URL: url}, nil
}
