package database

import (
	"context"
	"fmt"
	"time"
)

// LockDatabase is the per-campaign mutual exclusion. A row whose expires_at
// has passed counts as unlocked.
type LockDatabase interface {
	// AcquireCampaignLock takes the lock for ttl when no live lock exists.
	// It returns false, not an error, when someone else holds it.
	AcquireCampaignLock(ctx context.Context, campaignID int64, owner string, ttl time.Duration) (bool, error)

	// ReleaseCampaignLock expires the lock now. Idempotent.
	ReleaseCampaignLock(ctx context.Context, campaignID int64) error

	// SweepExpiredLocks deletes expired rows
	SweepExpiredLocks(ctx context.Context) (int64, error)
}

func (p *postgresDB) AcquireCampaignLock(ctx context.Context, campaignID int64, owner string, ttl time.Duration) (bool, error) {
	query := `
		INSERT INTO campaign_locks (campaign_id, locked_by, expires_at)
		VALUES ($1, $2, NOW() + $3 * INTERVAL '1 millisecond')
		ON CONFLICT (campaign_id) DO UPDATE SET
			locked_by = EXCLUDED.locked_by,
			expires_at = EXCLUDED.expires_at
		WHERE campaign_locks.expires_at < NOW()
	`

	result, err := p.db.ExecContext(ctx, query, campaignID, owner, ttl.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock on campaign %d: %w", campaignID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}

	return rows == 1, nil
}

func (p *postgresDB) ReleaseCampaignLock(ctx context.Context, campaignID int64) error {
	query := `UPDATE campaign_locks SET expires_at = NOW() WHERE campaign_id = $1`

	if _, err := p.db.ExecContext(ctx, query, campaignID); err != nil {
		return fmt.Errorf("failed to release lock on campaign %d: %w", campaignID, err)
	}

	return nil
}

func (p *postgresDB) SweepExpiredLocks(ctx context.Context) (int64, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM campaign_locks WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired locks: %w", err)
	}

	return result.RowsAffected()
}
