package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"boxing-locker-go/internal/model"
)

// VideoCacheRepository 缓存自由文本检索的结果。
type VideoCacheRepository interface {
	// Get 返回缓存结果，未命中时 ok 为 false。
	Get(ctx context.Context, words []string, limit int) (videos []model.VideoRecord, ok bool, err error)
	Set(ctx context.Context, words []string, limit int, videos []model.VideoRecord) error
}

type redisVideoCacheRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewVideoCacheRepository 创建一个新的 VideoCacheRepository 实例。
func NewVideoCacheRepository(redisClient *redis.Client, ttl time.Duration) VideoCacheRepository {
	return &redisVideoCacheRepository{redisClient: redisClient, ttl: ttl}
}

func videoCacheKey(words []string, limit int) string {
	return fmt.Sprintf("video:search:%d:%s", limit, strings.Join(words, "+"))
}

// Get 从 Redis 读取检索结果。
func (r *redisVideoCacheRepository) Get(ctx context.Context, words []string, limit int) ([]model.VideoRecord, bool, error) {
	jsonData, err := r.redisClient.Get(ctx, videoCacheKey(words, limit)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached video search: %w", err)
	}
	var videos []model.VideoRecord
	if err := json.Unmarshal([]byte(jsonData), &videos); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached video search: %w", err)
	}
	return videos, true, nil
}

// Set 写入检索结果并设置过期时间。
func (r *redisVideoCacheRepository) Set(ctx context.Context, words []string, limit int, videos []model.VideoRecord) error {
	jsonData, err := json.Marshal(videos)
	if err != nil {
		return fmt.Errorf("failed to marshal video search: %w", err)
	}
	if err := r.redisClient.Set(ctx, videoCacheKey(words, limit), jsonData, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache video search: %w", err)
	}
	return nil
}
