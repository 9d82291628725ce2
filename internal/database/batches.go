package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"rsyaclean/internal/model"
)

const batchColumns = `id, project_id, campaign_ids, batch_number, total_batches, status,
	retry_count, error_message, created_at, updated_at, completed_at`

// BatchDatabase tracks dispatch batches through pending, processing,
// completed and failed
type BatchDatabase interface {
	// CreateBatches persists one batch per chunk in a single transaction,
	// numbering them 1..len(chunks)
	CreateBatches(ctx context.Context, projectID int64, chunks [][]int64) ([]model.Batch, error)

	GetBatch(ctx context.Context, id int64) (*model.Batch, error)

	// MarkBatchProcessing claims a pending batch, a failed one with retries
	// left, or one stuck in processing for longer than staleAfter. It reports
	// false when another worker owns the batch, it already completed or its
	// retries are spent.
	MarkBatchProcessing(ctx context.Context, id int64, staleAfter time.Duration, maxRetries int) (bool, error)

	CompleteBatch(ctx context.Context, id int64, metrics model.BatchMetrics) error

	// FailBatch marks the batch failed, bumps retry_count and stores the error
	FailBatch(ctx context.Context, id int64, errMsg string) error

	ListRetryableBatches(ctx context.Context, maxRetries, limit int) ([]model.Batch, error)

	// ResetBatch moves a failed batch back to pending for another attempt
	ResetBatch(ctx context.Context, id int64) (bool, error)
}

func (p *postgresDB) CreateBatches(ctx context.Context, projectID int64, chunks [][]int64) ([]model.Batch, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin batch creation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	query := `
		INSERT INTO batches (project_id, campaign_ids, batch_number, total_batches, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING ` + batchColumns

	batches := make([]model.Batch, 0, len(chunks))
	for i, chunk := range chunks {
		var b model.Batch
		if err := tx.GetContext(ctx, &b, query, projectID, pq.Int64Array(chunk), i+1, len(chunks)); err != nil {
			return nil, fmt.Errorf("failed to insert batch %d/%d: %w", i+1, len(chunks), err)
		}
		batches = append(batches, b)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch creation: %w", err)
	}

	return batches, nil
}

func (p *postgresDB) GetBatch(ctx context.Context, id int64) (*model.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`

	var b model.Batch
	if err := p.db.GetContext(ctx, &b, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get batch %d: %w", id, err)
	}

	return &b, nil
}

func (p *postgresDB) MarkBatchProcessing(ctx context.Context, id int64, staleAfter time.Duration, maxRetries int) (bool, error) {
	query := `
		UPDATE batches SET status = 'processing', updated_at = NOW()
		WHERE id = $1
		  AND (status = 'pending'
		       OR (status = 'failed' AND retry_count < $3)
		       OR (status = 'processing' AND updated_at < $2))
	`

	result, err := p.db.ExecContext(ctx, query, id, time.Now().Add(-staleAfter), maxRetries)
	if err != nil {
		return false, fmt.Errorf("failed to claim batch %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}

	return rows == 1, nil
}

func (p *postgresDB) CompleteBatch(ctx context.Context, id int64, metrics model.BatchMetrics) error {
	payload, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal batch result: %w", err)
	}

	query := `
		UPDATE batches
		SET status = 'completed', result = $2, error_message = NULL,
		    updated_at = NOW(), completed_at = NOW()
		WHERE id = $1
	`

	if _, err := p.db.ExecContext(ctx, query, id, payload); err != nil {
		return fmt.Errorf("failed to complete batch %d: %w", id, err)
	}

	return nil
}

func (p *postgresDB) FailBatch(ctx context.Context, id int64, errMsg string) error {
	query := `
		UPDATE batches
		SET status = 'failed', retry_count = retry_count + 1, error_message = $2, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := p.db.ExecContext(ctx, query, id, errMsg); err != nil {
		return fmt.Errorf("failed to mark batch %d failed: %w", id, err)
	}

	return nil
}

func (p *postgresDB) ListRetryableBatches(ctx context.Context, maxRetries, limit int) ([]model.Batch, error) {
	query := `
		SELECT ` + batchColumns + `
		FROM batches
		WHERE status = 'failed' AND retry_count < $1
		ORDER BY updated_at
		LIMIT $2
	`

	var batches []model.Batch
	if err := p.db.SelectContext(ctx, &batches, query, maxRetries, limit); err != nil {
		return nil, fmt.Errorf("failed to list retryable batches: %w", err)
	}

	return batches, nil
}

func (p *postgresDB) ResetBatch(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE batches SET status = 'pending', updated_at = NOW() WHERE id = $1 AND status = 'failed'`

	result, err := p.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to reset batch %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}

	return rows == 1, nil
}
