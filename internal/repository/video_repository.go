package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"boxing-locker-go/internal/model"
)

// VideoRepository 定义了视频目录的查询。应用运行时只读，Upsert 仅用于导入种子目录。
type VideoRepository interface {
	// SearchText 按关键词在标题/子主题中做子串匹配，words 为空时返回播放量最高的视频。
	SearchText(ctx context.Context, words []string, limit int) ([]model.VideoRecord, error)
	// SearchStructured 按分层过滤查找，第一个有结果的层级胜出。
	SearchStructured(ctx context.Context, category, subtopic string, tags []string, limit int) ([]model.VideoRecord, error)
	FindByVideoID(ctx context.Context, videoID string) (*model.VideoRecord, error)
	FindAll(ctx context.Context) ([]model.VideoRecord, error)
	// Upsert 以 video_id 幂等写入视频。
	Upsert(ctx context.Context, videos []model.VideoRecord) error
}

type videoRepository struct {
	db *gorm.DB
}

// NewVideoRepository 创建一个新的 VideoRepository 实例。
func NewVideoRepository(db *gorm.DB) VideoRepository {
	return &videoRepository{db: db}
}

func (r *videoRepository) ranked(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.VideoRecord{}).Order("view_count DESC").Order("id DESC")
}

// SearchText 前三个关键词匹配标题，前两个匹配子主题，缺失的模式复用第一个。
func (r *videoRepository) SearchText(ctx context.Context, words []string, limit int) ([]model.VideoRecord, error) {
	var videos []model.VideoRecord
	if len(words) == 0 {
		err := r.ranked(ctx).Limit(limit).Find(&videos).Error
		return videos, err
	}

	p1 := "%" + escapeLike(words[0]) + "%"
	p2, p3 := p1, p1
	if len(words) > 1 {
		p2 = "%" + escapeLike(words[1]) + "%"
	}
	if len(words) > 2 {
		p3 = "%" + escapeLike(words[2]) + "%"
	}
	err := r.ranked(ctx).
		Where("LOWER(video_title) LIKE ? ESCAPE '!' OR LOWER(video_title) LIKE ? ESCAPE '!' OR LOWER(video_title) LIKE ? ESCAPE '!'"+
			" OR LOWER(COALESCE(subtopic, '')) LIKE ? ESCAPE '!' OR LOWER(COALESCE(subtopic, '')) LIKE ? ESCAPE '!'",
			p1, p2, p3, p1, p2).
		Limit(limit).
		Find(&videos).Error
	return videos, err
}

type videoFilter func(*gorm.DB) *gorm.DB

// SearchStructured 依次尝试：分类+子主题+标签 → 分类+子主题 → 分类+标签 → 子主题+标签 → 分类 → 子主题 → 标签 → 无过滤。
// 只尝试参数齐全的层级；某一层只要有一条结果就整体返回，不再放宽。
func (r *videoRepository) SearchStructured(ctx context.Context, category, subtopic string, tags []string, limit int) ([]model.VideoRecord, error) {
	hasCat, hasSub, hasTags := category != "", subtopic != "", len(tags) > 0

	byCat := func(db *gorm.DB) *gorm.DB { return db.Where("topic = ?", category) }
	bySub := func(db *gorm.DB) *gorm.DB {
		return db.Where("LOWER(COALESCE(subtopic, '')) LIKE ? ESCAPE '!'", "%"+escapeLike(strings.ToLower(subtopic))+"%")
	}
	byTags := func(db *gorm.DB) *gorm.DB { return tagOverlap(db, tags) }

	type tier struct {
		enabled bool
		filters []videoFilter
	}
	tiers := []tier{
		{hasCat && hasSub && hasTags, []videoFilter{byCat, bySub, byTags}},
		{hasCat && hasSub, []videoFilter{byCat, bySub}},
		{hasCat && hasTags, []videoFilter{byCat, byTags}},
		{hasSub && hasTags, []videoFilter{bySub, byTags}},
		{hasCat, []videoFilter{byCat}},
		{hasSub, []videoFilter{bySub}},
		{hasTags, []videoFilter{byTags}},
		{true, nil},
	}

	for _, t := range tiers {
		if !t.enabled {
			continue
		}
		q := r.ranked(ctx)
		for _, f := range t.filters {
			q = f(q)
		}
		var videos []model.VideoRecord
		if err := q.Limit(limit).Find(&videos).Error; err != nil {
			return nil, err
		}
		if len(videos) > 0 {
			return videos, nil
		}
	}
	return []model.VideoRecord{}, nil
}

// tagOverlap 匹配 tags 与任一请求标签有交集的行。
// tags 以 JSON 数组存储，按带引号的元素做子串匹配，MySQL 与 SQLite 行为一致。
func tagOverlap(db *gorm.DB, tags []string) *gorm.DB {
	var clauses []string
	var args []interface{}
	for _, tag := range tags {
		encoded, err := json.Marshal(tag)
		if err != nil {
			continue
		}
		clauses = append(clauses, "tags LIKE ? ESCAPE '!'")
		args = append(args, "%"+escapeLike(string(encoded))+"%")
	}
	if len(clauses) == 0 {
		return db.Where("1 = 0")
	}
	return db.Where("("+strings.Join(clauses, " OR ")+")", args...)
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

// FindByVideoID 根据外部视频 ID 查找，不存在时返回 nil, nil。
func (r *videoRepository) FindByVideoID(ctx context.Context, videoID string) (*model.VideoRecord, error) {
	var video model.VideoRecord
	err := r.db.WithContext(ctx).Where("video_id = ?", videoID).First(&video).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &video, nil
}

// FindAll 返回完整目录，用于同步搜索索引。
func (r *videoRepository) FindAll(ctx context.Context) ([]model.VideoRecord, error) {
	var videos []model.VideoRecord
	err := r.db.WithContext(ctx).Order("id ASC").Find(&videos).Error
	return videos, err
}

func (r *videoRepository) Upsert(ctx context.Context, videos []model.VideoRecord) error {
	if len(videos) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "video_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"video_title", "topic", "subtopic", "tags", "url", "thumbnail", "view_count", "published_time"}),
	}).Create(&videos).Error
}
