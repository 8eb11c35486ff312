// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"boxing-locker-go/internal/config"
	"boxing-locker-go/pkg/database"
	"boxing-locker-go/pkg/log"
	"boxing-locker-go/pkg/tasks"
)

// maxAttempts 是一条线索处理失败后放弃重试的次数。
const maxAttempts = 3

// TaskProcessor 定义了处理线索任务的服务接口，
// 使 Kafka 消费者与具体的 pipeline 实现解耦。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.LeadTask) error
}

var producer *kafka.Writer

// ErrProducerDisabled 表示未配置 Kafka，线索不会被投递。
var ErrProducerDisabled = errors.New("kafka producer is not initialized")

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:         kafka.TCP(brokers(cfg)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 5 * time.Second,
	}
	log.Info("Kafka 生产者初始化成功")
}

// CloseProducer 关闭生产者并刷新未发送的消息。
func CloseProducer() {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		log.Errorf("关闭 Kafka 生产者失败: %v", err)
	}
}

// ProduceLeadTask 发送一条线索任务到 Kafka，以 LeadID 作为消息 key。
func ProduceLeadTask(ctx context.Context, task tasks.LeadTask) error {
	if producer == nil {
		return ErrProducerDisabled
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return producer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(task.LeadID),
			Value: taskBytes,
		},
	)
}

// messageReader 是消费循环依赖的 kafka.Reader 子集。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// attemptTracker 记录每条线索的失败次数，跨进程重启保留。
type attemptTracker interface {
	Incr(ctx context.Context, leadID string) (int64, error)
	Reset(ctx context.Context, leadID string)
}

type redisAttempts struct{}

func attemptsKey(leadID string) string {
	return fmt.Sprintf("kafka:attempts:%s", leadID)
}

func (redisAttempts) Incr(ctx context.Context, leadID string) (int64, error) {
	if database.RDB == nil {
		return 0, errors.New("redis is not initialized")
	}
	n, err := database.RDB.Incr(ctx, attemptsKey(leadID)).Result()
	if err != nil {
		return 0, err
	}
	_ = database.RDB.Expire(ctx, attemptsKey(leadID), 24*time.Hour).Err()
	return n, nil
}

func (redisAttempts) Reset(ctx context.Context, leadID string) {
	if database.RDB == nil {
		return
	}
	_ = database.RDB.Del(ctx, attemptsKey(leadID)).Err()
}

// retryBackoff 是同一条消息两次处理之间的等待时间。
var retryBackoff = 2 * time.Second

// StartConsumer 启动一个 Kafka 消费者来处理线索任务，ctx 取消时退出。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "boxing-locker-go-consumer"
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	consume(ctx, r, processor, redisAttempts{}, retryBackoff)

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}

// consume 逐条处理消息。consumer group 不会重新投递未提交的消息，
// 因此失败的消息在原地重试，直到成功或达到 maxAttempts 后才提交。
func consume(ctx context.Context, r messageReader, processor TaskProcessor, tracker attemptTracker, backoff time.Duration) {
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("从 Kafka 读取消息失败", err)
			}
			return
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.LeadTask
		if err := json.Unmarshal(m.Value, &task); err != nil || task.LeadID == "" {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		if !processWithRetry(ctx, processor, tracker, task, backoff) {
			// ctx 已取消，不提交 offset，重启后从该消息继续
			return
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// processWithRetry 返回 false 表示在重试等待中被取消，此时消息不应提交。
func processWithRetry(ctx context.Context, processor TaskProcessor, tracker attemptTracker, task tasks.LeadTask, backoff time.Duration) bool {
	log.Infof("开始处理线索任务: LeadID=%s, Category=%s", task.LeadID, task.Context.Category)
	var local int64
	for {
		err := processor.Process(ctx, task)
		if err == nil {
			log.Infof("线索任务处理成功: LeadID=%s", task.LeadID)
			tracker.Reset(ctx, task.LeadID)
			return true
		}
		log.Errorf("处理线索任务失败: LeadID=%s, Error: %v", task.LeadID, err)

		// Redis 计数可跨重启保留；Redis 异常时退回本地计数
		local++
		attempts, incErr := tracker.Incr(ctx, task.LeadID)
		if incErr != nil || attempts < local {
			attempts = local
		}
		if attempts >= maxAttempts {
			log.Errorf("线索任务多次失败(>=%d)，提交 offset 终止重试: LeadID=%s", maxAttempts, task.LeadID)
			tracker.Reset(ctx, task.LeadID)
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
	}
}
