package model

import (
	"time"

	"gorm.io/datatypes"
)

// CoachingProfile 是表单中的用户画像。
type CoachingProfile struct {
	Stance     string `json:"stance,omitempty"`
	Experience string `json:"experience,omitempty"`
	Name       string `json:"name,omitempty"`
}

// CoachingFormData 是教练表单提交的内容，不同分类使用不同字段。
type CoachingFormData struct {
	Category         string   `json:"category,omitempty"`
	Technique        string   `json:"technique,omitempty"`
	TechniqueFocus   string   `json:"techniqueFocus,omitempty"`
	TacticalScenario string   `json:"tacticalScenario,omitempty"`
	TrainingType     string   `json:"trainingType,omitempty"`
	MindsetTopic     string   `json:"mindsetTopic,omitempty"`
	Location         string   `json:"location,omitempty"`
	TimeAvailable    string   `json:"timeAvailable,omitempty"`
	Equipment        []string `json:"equipment,omitempty"`
	Question         string   `json:"question,omitempty"`
}

// CoachingContext 随教练请求一起提交。
type CoachingContext struct {
	Category    string           `json:"category"`
	FormData    CoachingFormData `json:"formData"`
	UserProfile *CoachingProfile `json:"userProfile,omitempty"`
}

// CoachingLead 是线索管道落库的一条表单提交。
type CoachingLead struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	LeadID      string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"lead_id"`
	Category    string         `gorm:"type:varchar(32);index" json:"category"`
	Experience  string         `gorm:"type:varchar(32)" json:"experience"`
	Stance      string         `gorm:"type:varchar(32)" json:"stance"`
	Name        string         `gorm:"type:varchar(128)" json:"name"`
	Question    string         `gorm:"type:text" json:"question"`
	FormData    datatypes.JSON `json:"form_data"`
	SubmittedAt time.Time      `json:"submitted_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (CoachingLead) TableName() string {
	return "coaching_leads"
}
