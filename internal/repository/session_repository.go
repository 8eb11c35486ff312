// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"boxing-locker-go/internal/model"
)

// SessionRepository 定义了聊天会话与消息的持久化操作。
type SessionRepository interface {
	GetOrCreate(ctx context.Context, sessionID string) (*model.ChatSession, error)
	AppendMessage(ctx context.Context, msg *model.ChatMessage) error
	History(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error)
	ListSessions(ctx context.Context, limit int) ([]model.SessionSummary, error)
	UpdateCategory(ctx context.Context, sessionID, category string) error
	Delete(ctx context.Context, sessionID string) error
}

// sessionRepository 是 SessionRepository 接口的 GORM 实现。
type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建一个新的 SessionRepository 实例。
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// GetOrCreate 返回已存在的会话，不存在时插入。
// 插入依赖 session_id 唯一索引 + ON CONFLICT DO NOTHING，并发调用不会产生重复行。
func (r *sessionRepository) GetOrCreate(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	db := r.db.WithContext(ctx)
	session := model.ChatSession{SessionID: sessionID}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoNothing: true,
	}).Create(&session).Error; err != nil {
		return nil, err
	}

	var existing model.ChatSession
	if err := db.Where("session_id = ?", sessionID).First(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

// AppendMessage 插入一条消息，并在同一事务中刷新会话的 updated_at。
func (r *sessionRepository) AppendMessage(ctx context.Context, msg *model.ChatMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&model.ChatSession{}).
			Where("session_id = ?", msg.SessionID).
			UpdateColumn("updated_at", time.Now()).Error
	})
}

// History 按时间正序返回会话消息，最多 limit 条。
func (r *sessionRepository) History(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

const listSessionsSQL = `
SELECT s.session_id, s.category, s.created_at, s.updated_at,
  (SELECT m.content FROM chat_messages m
     WHERE m.session_id = s.session_id AND m.role = 'user'
     ORDER BY m.created_at ASC, m.id ASC LIMIT 1) AS first_message,
  (SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.session_id) AS message_count
FROM chat_sessions s
ORDER BY s.updated_at DESC, s.id DESC
LIMIT ?`

// ListSessions 返回最近更新的会话摘要（首条用户消息作为标题 + 消息总数）。
func (r *sessionRepository) ListSessions(ctx context.Context, limit int) ([]model.SessionSummary, error) {
	var summaries []model.SessionSummary
	err := r.db.WithContext(ctx).Raw(listSessionsSQL, limit).Scan(&summaries).Error
	return summaries, err
}

// UpdateCategory 设置会话分类并刷新 updated_at。
func (r *sessionRepository) UpdateCategory(ctx context.Context, sessionID, category string) error {
	return r.db.WithContext(ctx).Model(&model.ChatSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{"category": category, "updated_at": time.Now()}).Error
}

// Delete 先删除消息再删除会话，会话不存在时不报错。
func (r *sessionRepository) Delete(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&model.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("session_id = ?", sessionID).Delete(&model.ChatSession{}).Error
	})
}
