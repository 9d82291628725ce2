package database

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"rsyaclean/internal/model"
)

// QueueDatabase is the block queue: placements that matched a task and wait
// to be written into a campaign exclusion list
type QueueDatabase interface {
	// UpsertQueueEntries inserts new entries and refreshes metrics of
	// existing ones. Attempts survive so a failing domain is eventually
	// dropped.
	UpsertQueueEntries(ctx context.Context, entries []model.BlockQueueEntry) error

	// ListQueueEntries returns a campaign's entries, most expensive first
	ListQueueEntries(ctx context.Context, campaignID int64) ([]model.BlockQueueEntry, error)

	DeleteQueueDomains(ctx context.Context, campaignID int64, domains []string) (int64, error)

	MarkPendingRotation(ctx context.Context, campaignID int64, domains []string) error

	// IncrementQueueAttempts bumps attempts and drops entries that reached
	// maxAttempts, returning how many were dropped
	IncrementQueueAttempts(ctx context.Context, campaignID int64, domains []string, maxAttempts int) (int64, error)
}

func (p *postgresDB) UpsertQueueEntries(ctx context.Context, entries []model.BlockQueueEntry) error {
	if len(entries) == 0 {
		return nil
	}

	// attempts carry over on conflict, a re-matched domain still drops after
	// the attempt budget
	query := `
		INSERT INTO block_queue (task_id, campaign_id, domain, impressions, clicks, cost, conversions, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'queued')
		ON CONFLICT (task_id, campaign_id, domain) DO UPDATE SET
			impressions = EXCLUDED.impressions,
			clicks = EXCLUDED.clicks,
			cost = EXCLUDED.cost,
			conversions = EXCLUDED.conversions,
			status = 'queued',
			updated_at = NOW()
	`

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin queue upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, query,
			e.TaskID, e.CampaignID, e.Domain,
			e.Impressions, e.Clicks, e.Cost, e.Conversions,
		); err != nil {
			return fmt.Errorf("failed to upsert queue entry %s: %w", e.Domain, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit queue upsert: %w", err)
	}

	return nil
}

func (p *postgresDB) ListQueueEntries(ctx context.Context, campaignID int64) ([]model.BlockQueueEntry, error) {
	query := `
		SELECT id, task_id, campaign_id, domain, impressions, clicks, cost, conversions,
		       attempts, status, created_at, updated_at
		FROM block_queue
		WHERE campaign_id = $1
		ORDER BY cost DESC, id
	`

	var entries []model.BlockQueueEntry
	if err := p.db.SelectContext(ctx, &entries, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to list queue for campaign %d: %w", campaignID, err)
	}

	return entries, nil
}

func (p *postgresDB) DeleteQueueDomains(ctx context.Context, campaignID int64, domains []string) (int64, error) {
	if len(domains) == 0 {
		return 0, nil
	}

	query := `DELETE FROM block_queue WHERE campaign_id = $1 AND domain = ANY($2)`

	result, err := p.db.ExecContext(ctx, query, campaignID, pq.Array(domains))
	if err != nil {
		return 0, fmt.Errorf("failed to delete queue domains for campaign %d: %w", campaignID, err)
	}

	return result.RowsAffected()
}

func (p *postgresDB) MarkPendingRotation(ctx context.Context, campaignID int64, domains []string) error {
	if len(domains) == 0 {
		return nil
	}

	query := `
		UPDATE block_queue SET status = 'pending_rotation', updated_at = NOW()
		WHERE campaign_id = $1 AND domain = ANY($2)
	`

	if _, err := p.db.ExecContext(ctx, query, campaignID, pq.Array(domains)); err != nil {
		return fmt.Errorf("failed to mark pending rotation for campaign %d: %w", campaignID, err)
	}

	return nil
}

func (p *postgresDB) IncrementQueueAttempts(ctx context.Context, campaignID int64, domains []string, maxAttempts int) (int64, error) {
	if len(domains) == 0 {
		return 0, nil
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin attempts update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	bump := `
		UPDATE block_queue SET attempts = attempts + 1, updated_at = NOW()
		WHERE campaign_id = $1 AND domain = ANY($2)
	`
	if _, err := tx.ExecContext(ctx, bump, campaignID, pq.Array(domains)); err != nil {
		return 0, fmt.Errorf("failed to increment attempts for campaign %d: %w", campaignID, err)
	}

	drop := `
		DELETE FROM block_queue
		WHERE campaign_id = $1 AND domain = ANY($2) AND attempts >= $3
	`
	result, err := tx.ExecContext(ctx, drop, campaignID, pq.Array(domains), maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to drop exhausted entries for campaign %d: %w", campaignID, err)
	}

	dropped, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit attempts update: %w", err)
	}

	return dropped, nil
}
