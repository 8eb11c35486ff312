// Package pipeline 定义了教练表单线索的处理流程。
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"boxing-locker-go/internal/model"
	"boxing-locker-go/internal/repository"
	"boxing-locker-go/pkg/log"
	"boxing-locker-go/pkg/tasks"
)

// ErrEmptyLeadID 表示任务缺少 lead_id，无法幂等落库。
var ErrEmptyLeadID = errors.New("lead task has empty lead id")

// LeadProcessor 把 Kafka 中的线索任务写入数据库。
type LeadProcessor struct {
	leadRepo repository.LeadRepository
}

// NewLeadProcessor 创建一个新的 LeadProcessor 实例。
func NewLeadProcessor(leadRepo repository.LeadRepository) *LeadProcessor {
	return &LeadProcessor{leadRepo: leadRepo}
}

// Process 将一条线索任务落库。重复投递同一 LeadID 只会更新同一行。
func (p *LeadProcessor) Process(ctx context.Context, task tasks.LeadTask) error {
	if task.LeadID == "" {
		return ErrEmptyLeadID
	}
	lead, err := leadFromTask(task)
	if err != nil {
		return err
	}
	if err := p.leadRepo.Upsert(ctx, lead); err != nil {
		return fmt.Errorf("failed to save lead %s: %w", task.LeadID, err)
	}
	log.Infof("[LeadProcessor] 线索已保存, LeadID=%s, Category=%s", lead.LeadID, lead.Category)
	return nil
}

func leadFromTask(task tasks.LeadTask) (*model.CoachingLead, error) {
	formData, err := json.Marshal(task.Context.FormData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal form data: %w", err)
	}
	category := task.Context.FormData.Category
	if category == "" {
		category = task.Context.Category
	}
	submittedAt := task.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}
	lead := &model.CoachingLead{
		LeadID:      task.LeadID,
		Category:    category,
		Question:    task.Context.FormData.Question,
		FormData:    formData,
		SubmittedAt: submittedAt,
	}
	if p := task.Context.UserProfile; p != nil {
		lead.Experience = p.Experience
		lead.Stance = p.Stance
		lead.Name = p.Name
	}
	return lead, nil
}
