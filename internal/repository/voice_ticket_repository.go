package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// VoiceTicketRepository 记录已经使用过的语音票据，保证一次性。
type VoiceTicketRepository interface {
	// Consume 标记票据已使用。首次调用返回 true，重复调用返回 false。
	Consume(ctx context.Context, ticketID string, ttl time.Duration) (bool, error)
}

type redisVoiceTicketRepository struct {
	redisClient *redis.Client
}

// NewVoiceTicketRepository 创建一个新的 VoiceTicketRepository 实例。
func NewVoiceTicketRepository(redisClient *redis.Client) VoiceTicketRepository {
	return &redisVoiceTicketRepository{redisClient: redisClient}
}

// Consume 使用 SETNX，过期时间与票据一致，过期后键自动清理。
func (r *redisVoiceTicketRepository) Consume(ctx context.Context, ticketID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	ok, err := r.redisClient.SetNX(ctx, fmt.Sprintf("voice:ticket:%s", ticketID), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to consume voice ticket: %w", err)
	}
	return ok, nil
}
