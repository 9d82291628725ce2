package model

import (
	"time"

	"github.com/lib/pq"
)

// BatchStatus represents the current state of a batch
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// CampaignStatus is the outcome of processing one campaign inside a batch
type CampaignStatus string

const (
	CampaignSuccess CampaignStatus = "success"
	CampaignWarning CampaignStatus = "warning"
	CampaignFailure CampaignStatus = "failure"
	CampaignSkipped CampaignStatus = "skipped"
	CampaignPending CampaignStatus = "pending"
)

// Batch is a fixed-size chunk of a project's campaigns
type Batch struct {
	ID           int64         `db:"id" json:"id"`
	ProjectID    int64         `db:"project_id" json:"project_id"`
	CampaignIDs  pq.Int64Array `db:"campaign_ids" json:"campaign_ids"`
	BatchNumber  int           `db:"batch_number" json:"batch_number"`
	TotalBatches int           `db:"total_batches" json:"total_batches"`
	Status       BatchStatus   `db:"status" json:"status"`
	RetryCount   int           `db:"retry_count" json:"retry_count"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
	CompletedAt  *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
}

// CampaignResult records what happened to one campaign of a batch
type CampaignResult struct {
	CampaignID int64          `json:"campaign_id"`
	Status     CampaignStatus `json:"status"`
	Message    string         `json:"message"`
	Matched    int            `json:"matched"`
	Added      int            `json:"added"`
	Evicted    int            `json:"evicted"`
	Rejected   int            `json:"rejected"`
}

// BatchMetrics tracks the processing statistics for a batch
type BatchMetrics struct {
	ProcessedItems int              `json:"processed_items"`
	SuccessCount   int              `json:"success_count"`
	WarningCount   int              `json:"warning_count"`
	FailureCount   int              `json:"failure_count"`
	SkippedCount   int              `json:"skipped_count"`
	PendingCount   int              `json:"pending_count"`
	Results        []CampaignResult `json:"results"`
}

// Add folds one campaign result into the counters
func (m *BatchMetrics) Add(r CampaignResult) {
	m.ProcessedItems++
	switch r.Status {
	case CampaignSuccess:
		m.SuccessCount++
	case CampaignWarning:
		m.WarningCount++
	case CampaignFailure:
		m.FailureCount++
	case CampaignSkipped:
		m.SkippedCount++
	case CampaignPending:
		m.PendingCount++
	}
	m.Results = append(m.Results, r)
}
