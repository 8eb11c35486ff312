package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"boxing-locker-go/internal/model"
)

// LeadRepository 定义了教练表单线索的持久化操作。
type LeadRepository interface {
	// Upsert 以 lead_id 幂等写入，消息重复投递时不会产生重复行。
	Upsert(ctx context.Context, lead *model.CoachingLead) error
	FindByLeadID(ctx context.Context, leadID string) (*model.CoachingLead, error)
}

type leadRepository struct {
	db *gorm.DB
}

// NewLeadRepository 创建一个新的 LeadRepository 实例。
func NewLeadRepository(db *gorm.DB) LeadRepository {
	return &leadRepository{db: db}
}

func (r *leadRepository) Upsert(ctx context.Context, lead *model.CoachingLead) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lead_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"category", "experience", "stance", "name", "question", "form_data", "submitted_at"}),
	}).Create(lead).Error
}

func (r *leadRepository) FindByLeadID(ctx context.Context, leadID string) (*model.CoachingLead, error) {
	var lead model.CoachingLead
	if err := r.db.WithContext(ctx).Where("lead_id = ?", leadID).First(&lead).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}
