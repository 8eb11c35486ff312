// Package model 包含了应用的数据模型定义。
package model

import (
	"time"

	"gorm.io/datatypes"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ChatSession 代表一个聊天会话，首条消息时创建。
type ChatSession struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	SessionID string    `gorm:"type:varchar(191);uniqueIndex;not null" json:"session_id"`
	Category  *string   `gorm:"type:varchar(64)" json:"category"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

// ChatMessage 代表会话中的一条消息，只追加不修改。
type ChatMessage struct {
	ID                   uint                        `gorm:"primaryKey" json:"-"`
	SessionID            string                      `gorm:"type:varchar(191);index;not null" json:"session_id"`
	Role                 string                      `gorm:"type:varchar(16);not null" json:"role"`
	Content              string                      `gorm:"type:text;not null" json:"content"`
	ToolCalls            datatypes.JSON              `json:"tool_calls,omitempty"`
	ToolResults          datatypes.JSON              `json:"tool_results,omitempty"`
	VideoRecommendations datatypes.JSONSlice[string] `json:"video_recommendations,omitempty"`
	CreatedAt            time.Time                   `gorm:"autoCreateTime;index" json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// SessionSummary 是会话列表中的一行。
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	Category     *string   `json:"category"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	FirstMessage *string   `json:"first_message"`
	MessageCount int64     `json:"message_count"`
}
