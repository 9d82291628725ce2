package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id           BIGSERIAL PRIMARY KEY,
		name         TEXT NOT NULL,
		campaign_ids BIGINT[] NOT NULL DEFAULT '{}',
		oauth_token  TEXT NOT NULL DEFAULT '',
		client_login TEXT NOT NULL DEFAULT '',
		target_cpa   DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS project_schedules (
		project_id       BIGINT PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
		enabled          BOOLEAN NOT NULL DEFAULT TRUE,
		interval_seconds INTEGER NOT NULL DEFAULT 3600,
		next_run_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_run_at      TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_project_schedules_due ON project_schedules (next_run_at) WHERE enabled`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id               BIGSERIAL PRIMARY KEY,
		project_id       BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		name             TEXT NOT NULL,
		enabled          BOOLEAN NOT NULL DEFAULT TRUE,
		config           JSONB NOT NULL DEFAULT '{}',
		last_executed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks (project_id) WHERE enabled`,
	`CREATE TABLE IF NOT EXISTS block_queue (
		id          BIGSERIAL PRIMARY KEY,
		task_id     BIGINT NOT NULL,
		campaign_id BIGINT NOT NULL,
		domain      TEXT NOT NULL,
		impressions BIGINT NOT NULL DEFAULT 0,
		clicks      BIGINT NOT NULL DEFAULT 0,
		cost        DOUBLE PRECISION NOT NULL DEFAULT 0,
		conversions BIGINT NOT NULL DEFAULT 0,
		attempts    INTEGER NOT NULL DEFAULT 0,
		status      TEXT NOT NULL DEFAULT 'queued',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (task_id, campaign_id, domain)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_block_queue_campaign ON block_queue (campaign_id, cost DESC)`,
	`CREATE TABLE IF NOT EXISTS batches (
		id            BIGSERIAL PRIMARY KEY,
		project_id    BIGINT NOT NULL,
		campaign_ids  BIGINT[] NOT NULL,
		batch_number  INTEGER NOT NULL,
		total_batches INTEGER NOT NULL,
		status        TEXT NOT NULL DEFAULT 'pending',
		retry_count   INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		result        JSONB,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_batches_status ON batches (status, retry_count)`,
	`CREATE TABLE IF NOT EXISTS pending_reports (
		id              BIGSERIAL PRIMARY KEY,
		project_id      BIGINT NOT NULL,
		task_id         BIGINT,
		campaign_ids    BIGINT[] NOT NULL,
		date_from       DATE NOT NULL,
		date_to         DATE NOT NULL,
		report_name     TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'pending',
		retry_count     INTEGER NOT NULL DEFAULT 0,
		last_attempt_at TIMESTAMPTZ,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_pending_reports_live ON pending_reports (report_name) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS campaign_locks (
		campaign_id BIGINT PRIMARY KEY,
		locked_by   TEXT NOT NULL,
		expires_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS engine_cursors (
		name       TEXT PRIMARY KEY,
		value      BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates every table and index the engine needs. Safe to run on
// every start.
func (p *postgresDB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i, err)
		}
	}
	return nil
}
