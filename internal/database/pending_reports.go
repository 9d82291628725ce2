package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rsyaclean/internal/model"
)

const pendingColumns = `id, project_id, task_id, campaign_ids, date_from, date_to, report_name,
	status, retry_count, last_attempt_at, created_at`

// PendingReportDatabase tracks reports the source was still generating
type PendingReportDatabase interface {
	// CreatePendingReport records a report request. It returns false when a
	// live pending row with the same report name already exists.
	CreatePendingReport(ctx context.Context, report *model.PendingReport) (bool, error)

	// ListDuePendingReports selects pending reports under the retry budget
	// that were never attempted or not attempted within retryAfter
	ListDuePendingReports(ctx context.Context, maxRetries int, retryAfter time.Duration, limit int) ([]model.PendingReport, error)

	CompletePendingReport(ctx context.Context, id int64) error

	// RecordPendingAttempt bumps retry_count, stamps last_attempt_at and flips
	// the report to failed once retry_count reaches maxRetries
	RecordPendingAttempt(ctx context.Context, id int64, maxRetries int) (model.ReportStatus, error)

	// ExpireStalePendingReports fails pending reports older than maxAge
	ExpireStalePendingReports(ctx context.Context, maxAge time.Duration) (int64, error)
}

func (p *postgresDB) CreatePendingReport(ctx context.Context, report *model.PendingReport) (bool, error) {
	query := `
		INSERT INTO pending_reports (project_id, task_id, campaign_ids, date_from, date_to, report_name, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		ON CONFLICT (report_name) WHERE status = 'pending' DO NOTHING
		RETURNING id, created_at
	`

	err := p.db.QueryRowxContext(ctx, query,
		report.ProjectID, report.TaskID, report.CampaignIDs,
		report.DateFrom, report.DateTo, report.ReportName,
	).Scan(&report.ID, &report.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create pending report %s: %w", report.ReportName, err)
	}

	report.Status = model.ReportPending
	return true, nil
}

func (p *postgresDB) ListDuePendingReports(ctx context.Context, maxRetries int, retryAfter time.Duration, limit int) ([]model.PendingReport, error) {
	query := `
		SELECT ` + pendingColumns + `
		FROM pending_reports
		WHERE status = 'pending'
		  AND retry_count < $1
		  AND (last_attempt_at IS NULL OR last_attempt_at < $2)
		ORDER BY created_at
		LIMIT $3
	`

	var reports []model.PendingReport
	if err := p.db.SelectContext(ctx, &reports, query, maxRetries, time.Now().Add(-retryAfter), limit); err != nil {
		return nil, fmt.Errorf("failed to list due pending reports: %w", err)
	}

	return reports, nil
}

func (p *postgresDB) CompletePendingReport(ctx context.Context, id int64) error {
	query := `UPDATE pending_reports SET status = 'completed', last_attempt_at = NOW() WHERE id = $1`

	if _, err := p.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to complete pending report %d: %w", id, err)
	}

	return nil
}

func (p *postgresDB) RecordPendingAttempt(ctx context.Context, id int64, maxRetries int) (model.ReportStatus, error) {
	query := `
		UPDATE pending_reports
		SET retry_count = retry_count + 1,
		    last_attempt_at = NOW(),
		    status = CASE WHEN retry_count + 1 >= $2 THEN 'failed' ELSE status END
		WHERE id = $1
		RETURNING status
	`

	var status model.ReportStatus
	if err := p.db.QueryRowxContext(ctx, query, id, maxRetries).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to record attempt on pending report %d: %w", id, err)
	}

	return status, nil
}

func (p *postgresDB) ExpireStalePendingReports(ctx context.Context, maxAge time.Duration) (int64, error) {
	query := `
		UPDATE pending_reports SET status = 'failed'
		WHERE status = 'pending' AND created_at < $1
	`

	result, err := p.db.ExecContext(ctx, query, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale pending reports: %w", err)
	}

	return result.RowsAffected()
}
