package model

import (
	"time"

	"github.com/lib/pq"
)

// Project owns a set of Direct campaigns and the credentials to manage them
type Project struct {
	ID          int64         `db:"id" json:"id"`
	Name        string        `db:"name" json:"name"`
	CampaignIDs pq.Int64Array `db:"campaign_ids" json:"campaign_ids"`
	OAuthToken  string        `db:"oauth_token" json:"-"`
	ClientLogin string        `db:"client_login" json:"client_login"`
	TargetCPA   float64       `db:"target_cpa" json:"target_cpa"`
	// IntervalSeconds is the project's own dispatch interval, zero when the
	// schedule row was not loaded
	IntervalSeconds int `db:"interval_seconds" json:"interval_seconds,omitempty"`
}

// ScheduleEvery returns the project's dispatch interval or fallback when it
// has none
func (p Project) ScheduleEvery(fallback time.Duration) time.Duration {
	if p.IntervalSeconds <= 0 {
		return fallback
	}
	return time.Duration(p.IntervalSeconds) * time.Second
}

// Task is a user-defined rule set evaluated against a project's placements
type Task struct {
	ID             int64      `db:"id" json:"id"`
	ProjectID      int64      `db:"project_id" json:"project_id"`
	Name           string     `db:"name" json:"name"`
	Enabled        bool       `db:"enabled" json:"enabled"`
	Config         TaskConfig `db:"config" json:"config"`
	LastExecutedAt *time.Time `db:"last_executed_at" json:"last_executed_at,omitempty"`
}

// Placement is one domain an ad was shown on, with aggregated report metrics.
// It is rebuilt from report data on every run.
type Placement struct {
	CampaignID  int64   `bson:"campaign_id" json:"campaign_id"`
	Domain      string  `bson:"domain" json:"domain"`
	Impressions int64   `bson:"impressions" json:"impressions"`
	Clicks      int64   `bson:"clicks" json:"clicks"`
	Cost        float64 `bson:"cost" json:"cost"`
	Conversions int64   `bson:"conversions" json:"conversions"`
}

// CTR is clicks per hundred impressions
func (p Placement) CTR() float64 {
	if p.Impressions == 0 {
		return 0
	}
	return float64(p.Clicks) / float64(p.Impressions) * 100
}

func (p Placement) CPC() float64 {
	if p.Clicks == 0 {
		return 0
	}
	return p.Cost / float64(p.Clicks)
}

func (p Placement) CPA() float64 {
	if p.Conversions == 0 {
		return 0
	}
	return p.Cost / float64(p.Conversions)
}

// QueueStatus marks why a block queue entry is still waiting
type QueueStatus string

const (
	QueueQueued          QueueStatus = "queued"
	QueuePendingRotation QueueStatus = "pending_rotation"
)

// BlockQueueEntry is a placement that matched a task and waits to be pushed
// into the campaign exclusion list. Unique on (task_id, campaign_id, domain).
type BlockQueueEntry struct {
	ID          int64       `db:"id" json:"id"`
	TaskID      int64       `db:"task_id" json:"task_id"`
	CampaignID  int64       `db:"campaign_id" json:"campaign_id"`
	Domain      string      `db:"domain" json:"domain"`
	Impressions int64       `db:"impressions" json:"impressions"`
	Clicks      int64       `db:"clicks" json:"clicks"`
	Cost        float64     `db:"cost" json:"cost"`
	Conversions int64       `db:"conversions" json:"conversions"`
	Attempts    int         `db:"attempts" json:"attempts"`
	Status      QueueStatus `db:"status" json:"status"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// Placement returns the metrics carried by the entry
func (e BlockQueueEntry) Placement() Placement {
	return Placement{
		CampaignID:  e.CampaignID,
		Domain:      e.Domain,
		Impressions: e.Impressions,
		Clicks:      e.Clicks,
		Cost:        e.Cost,
		Conversions: e.Conversions,
	}
}

// ReportStatus is the lifecycle of an asynchronous report request
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportCompleted ReportStatus = "completed"
	ReportFailed    ReportStatus = "failed"
)

// PendingReport is a report the source was still generating when asked
type PendingReport struct {
	ID            int64         `db:"id" json:"id"`
	ProjectID     int64         `db:"project_id" json:"project_id"`
	TaskID        *int64        `db:"task_id" json:"task_id,omitempty"`
	CampaignIDs   pq.Int64Array `db:"campaign_ids" json:"campaign_ids"`
	DateFrom      time.Time     `db:"date_from" json:"date_from"`
	DateTo        time.Time     `db:"date_to" json:"date_to"`
	ReportName    string        `db:"report_name" json:"report_name"`
	Status        ReportStatus  `db:"status" json:"status"`
	RetryCount    int           `db:"retry_count" json:"retry_count"`
	LastAttemptAt *time.Time    `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// CampaignLock is the row behind the per-campaign mutual exclusion
type CampaignLock struct {
	CampaignID int64     `db:"campaign_id" json:"campaign_id"`
	LockedBy   string    `db:"locked_by" json:"locked_by"`
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
}
