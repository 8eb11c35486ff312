package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"boxing-locker-go/internal/model"
	"boxing-locker-go/internal/repository"
	"boxing-locker-go/pkg/log"
	"boxing-locker-go/pkg/reconcile"
)

// ErrInvalidVideoID 表示视频 ID 格式不正确（必须是 11 位）。
var ErrInvalidVideoID = errors.New("invalid video id")

const (
	// DefaultVideoLimit 是检索未指定 limit 时的默认条数。
	DefaultVideoLimit = 5
	maxQueryWords     = 3
	minQueryWordLen   = 3
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// VideoIndex 是可选的全文检索后端，语义与 SQL 自由文本检索一致。
type VideoIndex interface {
	Search(ctx context.Context, words []string, limit int) ([]model.VideoRecord, error)
	Sync(ctx context.Context, videos []model.VideoRecord) error
}

// VideoService 定义了视频目录的业务逻辑。
type VideoService interface {
	Search(ctx context.Context, params model.VideoSearchParams) ([]model.VideoRecord, error)
	GetByID(ctx context.Context, videoID string) (*model.VideoRecord, error)
	// LookupTerm 为一个检索词返回最佳匹配，供回复中的视频关键词解析使用。
	LookupTerm(ctx context.Context, term string) (*reconcile.VideoRecommendation, error)
	SyncIndex(ctx context.Context) error
	// Import 导入人工整理的视频，跳过 ID 不合法的记录，返回写入条数。
	Import(ctx context.Context, videos []model.VideoRecord) (int, error)
}

type videoService struct {
	repo  repository.VideoRepository
	cache repository.VideoCacheRepository
	index VideoIndex
}

// NewVideoService 创建一个新的 VideoService。cache 与 index 可以为 nil。
func NewVideoService(repo repository.VideoRepository, cache repository.VideoCacheRepository, index VideoIndex) VideoService {
	return &videoService{repo: repo, cache: cache, index: index}
}

// TokenizeQuery 小写化并按空白切分，保留长度不少于 3 的词，最多 3 个。
func TokenizeQuery(query string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if utf8.RuneCountInString(w) < minQueryWordLen {
			continue
		}
		words = append(words, w)
		if len(words) == maxQueryWords {
			break
		}
	}
	return words
}

// ValidVideoID 判断外部视频 ID 是否合法。
func ValidVideoID(videoID string) bool {
	return len(videoID) == model.VideoIDLength && videoIDPattern.MatchString(videoID)
}

func (s *videoService) Search(ctx context.Context, params model.VideoSearchParams) ([]model.VideoRecord, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultVideoLimit
	}
	if params.Query != "" {
		return s.searchText(ctx, TokenizeQuery(params.Query), limit)
	}

	log.Infof("[VideoService] 分层检索, category=%q subtopic=%q tags=%v limit=%d", params.Category, params.Subtopic, params.Tags, limit)
	videos, err := s.repo.SearchStructured(ctx, params.Category, params.Subtopic, params.Tags, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search videos: %w", err)
	}
	return videos, nil
}

// searchText 先查缓存，再查索引（若启用），最后回退到 SQL。缓存故障只降级不报错。
func (s *videoService) searchText(ctx context.Context, words []string, limit int) ([]model.VideoRecord, error) {
	if s.cache != nil {
		videos, ok, err := s.cache.Get(ctx, words, limit)
		if err != nil {
			log.Warnf("[VideoService] 读取检索缓存失败, 降级为直接查询: %v", err)
		} else if ok {
			return videos, nil
		}
	}

	var videos []model.VideoRecord
	var err error
	if s.index != nil && len(words) > 0 {
		videos, err = s.index.Search(ctx, words, limit)
		if err != nil {
			log.Warnf("[VideoService] 索引检索失败, 回退到数据库: %v", err)
			videos, err = s.repo.SearchText(ctx, words, limit)
		}
	} else {
		videos, err = s.repo.SearchText(ctx, words, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search videos: %w", err)
	}

	if s.cache != nil {
		if cerr := s.cache.Set(ctx, words, limit, videos); cerr != nil {
			log.Warnf("[VideoService] 写入检索缓存失败: %v", cerr)
		}
	}
	return videos, nil
}

// GetByID 校验 ID 格式后查询，不存在时返回 nil, nil。缺失的缩略图与链接按视频 ID 补齐。
func (s *videoService) GetByID(ctx context.Context, videoID string) (*model.VideoRecord, error) {
	if !ValidVideoID(videoID) {
		return nil, ErrInvalidVideoID
	}
	video, err := s.repo.FindByVideoID(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	if video != nil {
		withVideoDefaults(video)
	}
	return video, nil
}

// withVideoDefaults 为离线采集缺失的字段填充 YouTube 默认缩略图与观看链接。
func withVideoDefaults(v *model.VideoRecord) {
	if v.Thumbnail == nil || *v.Thumbnail == "" {
		thumb := fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", v.VideoID)
		v.Thumbnail = &thumb
	}
	if v.URL == nil || *v.URL == "" {
		url := "https://www.youtube.com/watch?v=" + v.VideoID
		v.URL = &url
	}
}

func (s *videoService) LookupTerm(ctx context.Context, term string) (*reconcile.VideoRecommendation, error) {
	videos, err := s.Search(ctx, model.VideoSearchParams{Query: term, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, nil
	}
	v := videos[0]
	return &reconcile.VideoRecommendation{VideoID: v.VideoID, Title: v.VideoTitle, Reason: term}, nil
}

// SyncIndex 将数据库中的目录同步到检索索引，未启用索引时为空操作。
func (s *videoService) SyncIndex(ctx context.Context) error {
	if s.index == nil {
		return nil
	}
	videos, err := s.repo.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load video catalog: %w", err)
	}
	if err := s.index.Sync(ctx, videos); err != nil {
		return fmt.Errorf("failed to sync video index: %w", err)
	}
	log.Infof("[VideoService] 视频索引同步完成, 共 %d 条", len(videos))
	return nil
}

func (s *videoService) Import(ctx context.Context, videos []model.VideoRecord) (int, error) {
	valid := make([]model.VideoRecord, 0, len(videos))
	for _, v := range videos {
		if !ValidVideoID(v.VideoID) || strings.TrimSpace(v.VideoTitle) == "" {
			log.Warnf("[VideoService] 跳过不合法的视频记录, id=%q", v.VideoID)
			continue
		}
		withVideoDefaults(&v)
		valid = append(valid, v)
	}
	if err := s.repo.Upsert(ctx, valid); err != nil {
		return 0, fmt.Errorf("failed to import videos: %w", err)
	}
	return len(valid), nil
}
