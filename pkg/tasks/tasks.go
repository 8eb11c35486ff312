// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import (
	"time"

	"boxing-locker-go/internal/model"
)

// LeadTask represents one coaching form submission captured by the lead pipeline.
type LeadTask struct {
	LeadID      string                `json:"lead_id"`
	Context     model.CoachingContext `json:"context"`
	SubmittedAt time.Time             `json:"submitted_at"`
}
