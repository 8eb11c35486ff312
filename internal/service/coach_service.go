package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"boxing-locker-go/internal/model"
	"boxing-locker-go/pkg/llm"
	"boxing-locker-go/pkg/log"
	"boxing-locker-go/pkg/reconcile"
	"boxing-locker-go/pkg/stream"
	"boxing-locker-go/pkg/tasks"
)

// ErrMessagesRequired 表示教练请求没有任何消息。
var ErrMessagesRequired = errors.New("messages required")

const (
	searchVideoToolName   = "search_video_library"
	defaultToolVideoLimit = 3
	leadPublishTimeout    = 5 * time.Second
)

var searchVideoToolSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "category": {"type": "string", "enum": ["Technique", "Tactics", "Training", "Mindset"], "description": "Main category: Technique, Tactics, Training, or Mindset"},
    "subtopic": {"type": "string", "description": "Specific subtopic (e.g. jab, footwork, combinations)"},
    "tags": {"type": "array", "items": {"type": "string"}, "description": "Specific tags to search for"},
    "limit": {"type": "number", "description": "Number of videos to return (default 3)"}
  }
}`)

// CoachRequest 是 POST /api/coach 的请求体。
type CoachRequest struct {
	Messages     []UIMessage            `json:"messages"`
	Context      *model.CoachingContext `json:"context,omitempty"`
	IsLeadMagnet bool                   `json:"isLeadMagnet,omitempty"`
}

// LeadPublisher 投递一条教练表单线索。
type LeadPublisher interface {
	PublishLead(ctx context.Context, task tasks.LeadTask) error
}

// LeadPublisherFunc 让普通函数满足 LeadPublisher。
type LeadPublisherFunc func(ctx context.Context, task tasks.LeadTask) error

// PublishLead 调用 f(ctx, task)。
func (f LeadPublisherFunc) PublishLead(ctx context.Context, task tasks.LeadTask) error {
	return f(ctx, task)
}

// CoachService 定义了表单驱动的教练接口。
type CoachService interface {
	Open(ctx context.Context, req CoachRequest) (*PreparedStream, error)
}

type coachService struct {
	llmClient llm.Client
	videos    VideoService
	leads     LeadPublisher
	maxSteps  int
}

// NewCoachService 创建一个新的 CoachService 实例。leads 可以为 nil。
func NewCoachService(llmClient llm.Client, videos VideoService, leads LeadPublisher, maxToolSteps int) CoachService {
	if maxToolSteps <= 0 {
		maxToolSteps = 3
	}
	return &coachService{llmClient: llmClient, videos: videos, leads: leads, maxSteps: maxToolSteps}
}

func (s *coachService) Open(ctx context.Context, req CoachRequest) (*PreparedStream, error) {
	if len(req.Messages) == 0 {
		return nil, ErrMessagesRequired
	}

	systemPrompt := leadMagnetSystemPrompt
	if !req.IsLeadMagnet {
		systemPrompt = buildCoachingPrompt(req.Context)
	}
	if req.Context != nil {
		s.publishLead(ctx, *req.Context)
	}

	llmReq := llm.Request{
		Messages: composeMessages(systemPrompt, req.Messages),
		Tools: []llm.Tool{{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        searchVideoToolName,
				Description: "Search the boxing video library for relevant instructional videos. Use this to find videos that match the user's request.",
				Parameters:  searchVideoToolSchema,
			},
		}},
	}
	tools := map[string]ToolFunc{searchVideoToolName: s.searchVideoLibrary}

	relay, err := openRelay(ctx, s.llmClient, llmReq, tools, s.maxSteps)
	if err != nil {
		return nil, fmt.Errorf("failed to start coach stream: %w", err)
	}
	log.Infof("[CoachService] 开始流式回复, leadMagnet=%t, messages=%d", req.IsLeadMagnet, len(req.Messages))
	return &PreparedStream{relay: relay, finalize: finalizeCoach}, nil
}

// finalizeCoach 解析最终文本，没有视频推荐时使用工具返回的视频。
func finalizeCoach(_ context.Context, result RelayResult) []stream.Chunk {
	if result.Text == "" {
		return nil
	}
	parsed := reconcile.Reconcile(result.Text).WithFallbackVideos(toolVideos(result.Tools))
	data, err := json.Marshal(parsed)
	if err != nil {
		log.Errorf("[CoachService] 序列化解析结果失败: %v", err)
		return nil
	}
	return []stream.Chunk{{Type: stream.TypeReconciled, Data: data}}
}

func toolVideos(outputs []ToolOutput) []reconcile.VideoRecommendation {
	var recs []reconcile.VideoRecommendation
	for _, out := range outputs {
		var sel stream.VideoSelections
		if err := json.Unmarshal(out.Output, &sel); err != nil || sel.Type != stream.VideoSelectionsType {
			continue
		}
		for _, v := range sel.Videos {
			recs = append(recs, reconcile.VideoRecommendation{VideoID: v.VideoID, Title: v.Title, Reason: v.Reason})
		}
	}
	return recs
}

type searchVideoArgs struct {
	Category string   `json:"category"`
	Subtopic string   `json:"subtopic"`
	Tags     []string `json:"tags"`
	Limit    float64  `json:"limit"`
}

// searchVideoLibrary 执行 search_video_library 工具。检索失败时返回带 error 的空结果而不是错误，
// 让模型可以继续作答。
func (s *coachService) searchVideoLibrary(ctx context.Context, arguments string) (json.RawMessage, error) {
	var args searchVideoArgs
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			log.Warnf("[CoachService] 工具参数解析失败, 使用默认参数: %v", err)
		}
	}
	limit := int(args.Limit)
	if limit <= 0 {
		limit = defaultToolVideoLimit
	}

	log.Infof("[CoachService] search_video_library category=%q subtopic=%q tags=%v limit=%d", args.Category, args.Subtopic, args.Tags, limit)
	sel := stream.VideoSelections{Type: stream.VideoSelectionsType, Videos: []stream.ToolVideo{}}
	videos, err := s.videos.Search(ctx, model.VideoSearchParams{
		Category: args.Category,
		Subtopic: args.Subtopic,
		Tags:     args.Tags,
		Limit:    limit,
	})
	if err != nil {
		log.Errorf("[CoachService] 视频检索失败: %v", err)
		sel.Error = "Failed to search videos"
		return json.Marshal(sel)
	}

	reason := "Relevant video for " + toolReasonSubject(args)
	for _, v := range videos {
		sel.Videos = append(sel.Videos, stream.ToolVideo{
			VideoID:  v.VideoID,
			Title:    v.VideoTitle,
			Topic:    v.Topic,
			Subtopic: v.Subtopic,
			Reason:   reason,
		})
	}
	return json.Marshal(sel)
}

func toolReasonSubject(args searchVideoArgs) string {
	switch {
	case args.Subtopic != "":
		return args.Subtopic
	case args.Category != "":
		return args.Category
	default:
		return "boxing technique"
	}
}

// publishLead 异步投递线索，失败只记录日志，不影响教练回复。
func (s *coachService) publishLead(ctx context.Context, coaching model.CoachingContext) {
	if s.leads == nil {
		return
	}
	task := tasks.LeadTask{LeadID: uuid.NewString(), Context: coaching, SubmittedAt: time.Now()}
	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leadPublishTimeout)
		defer cancel()
		if err := s.leads.PublishLead(pubCtx, task); err != nil {
			log.Warnf("[CoachService] 线索投递失败, LeadID=%s: %v", task.LeadID, err)
			return
		}
		log.Infof("[CoachService] 线索已投递, LeadID=%s", task.LeadID)
	}()
}
