package model

import "gorm.io/datatypes"

// 视频主分类
const (
	TopicTechnique = "Technique"
	TopicTactics   = "Tactics"
	TopicTraining  = "Training"
	TopicMindset   = "Mindset"
)

// VideoIDLength 是外部视频 ID 的固定长度。
const VideoIDLength = 11

// VideoRecord 是视频目录中的一条记录，由离线采集写入，应用只读。
type VideoRecord struct {
	ID            uint                        `gorm:"primaryKey" json:"-"`
	VideoID       string                      `gorm:"type:varchar(11);uniqueIndex;not null" json:"video_id"`
	VideoTitle    string                      `gorm:"type:varchar(512);not null" json:"video_title"`
	Topic         string                      `gorm:"type:varchar(32);index" json:"topic"`
	Subtopic      *string                     `gorm:"type:varchar(128)" json:"subtopic"`
	Tags          datatypes.JSONSlice[string] `json:"tags"`
	URL           *string                     `gorm:"type:varchar(512)" json:"url"`
	Thumbnail     *string                     `gorm:"type:varchar(512)" json:"thumbnail"`
	ViewCount     int64                       `gorm:"index" json:"view_count"`
	PublishedTime string                      `gorm:"type:varchar(64)" json:"published_time"`
}

func (VideoRecord) TableName() string {
	return "video_mapping"
}

// VideoSearchParams 描述一次视频检索。Query 非空时走自由文本检索，否则走分层过滤。
type VideoSearchParams struct {
	Query    string
	Category string
	Subtopic string
	Tags     []string
	Limit    int
}

// VideoSummary 是对外返回的精简视频信息。
type VideoSummary struct {
	VideoID  string  `json:"video_id"`
	Title    string  `json:"title"`
	Topic    string  `json:"topic"`
	Subtopic *string `json:"subtopic"`
	URL      *string `json:"url"`
}

// Summary 转换为对外返回的精简结构。
func (v VideoRecord) Summary() VideoSummary {
	return VideoSummary{VideoID: v.VideoID, Title: v.VideoTitle, Topic: v.Topic, Subtopic: v.Subtopic, URL: v.URL}
}
