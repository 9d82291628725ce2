package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"rsyaclean/internal/model"
)

const projectColumns = `p.id, p.name, p.campaign_ids, p.oauth_token, p.client_login, p.target_cpa`

// ProjectDatabase reads projects, their schedule and their tasks
type ProjectDatabase interface {
	// ListDueProjects returns projects whose schedule is due and that have at
	// least one campaign, ordered by id and starting after afterID. The
	// schedule interval is loaded with them.
	ListDueProjects(ctx context.Context, afterID int64, limit int) ([]model.Project, error)

	GetProject(ctx context.Context, id int64) (*model.Project, error)

	// ListEnabledTasks skips tasks whose stored configuration is malformed
	ListEnabledTasks(ctx context.Context, projectID int64) ([]model.Task, error)

	// MarkScheduleRun moves the project's next run to next
	MarkScheduleRun(ctx context.Context, projectID int64, next time.Time) error

	// TouchTasks stamps last_executed_at on every enabled task of the project
	TouchTasks(ctx context.Context, projectID int64) error
}

func (p *postgresDB) ListDueProjects(ctx context.Context, afterID int64, limit int) ([]model.Project, error) {
	query := `
		SELECT ` + projectColumns + `, s.interval_seconds
		FROM projects p
		JOIN project_schedules s ON s.project_id = p.id
		WHERE s.enabled
		  AND s.next_run_at <= NOW()
		  AND cardinality(p.campaign_ids) > 0
		  AND p.id > $1
		ORDER BY p.id
		LIMIT $2
	`

	var projects []model.Project
	if err := p.db.SelectContext(ctx, &projects, query, afterID, limit); err != nil {
		return nil, fmt.Errorf("failed to list due projects: %w", err)
	}

	return projects, nil
}

func (p *postgresDB) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects p WHERE p.id = $1`

	var project model.Project
	if err := p.db.GetContext(ctx, &project, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project %d: %w", id, err)
	}

	return &project, nil
}

type taskRow struct {
	ID             int64      `db:"id"`
	ProjectID      int64      `db:"project_id"`
	Name           string     `db:"name"`
	Enabled        bool       `db:"enabled"`
	Config         []byte     `db:"config"`
	LastExecutedAt *time.Time `db:"last_executed_at"`
}

func (p *postgresDB) ListEnabledTasks(ctx context.Context, projectID int64) ([]model.Task, error) {
	query := `
		SELECT id, project_id, name, enabled, config, last_executed_at
		FROM tasks
		WHERE project_id = $1 AND enabled
		ORDER BY id
	`

	var rows []taskRow
	if err := p.db.SelectContext(ctx, &rows, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to list tasks for project %d: %w", projectID, err)
	}

	tasks := make([]model.Task, 0, len(rows))
	for _, r := range rows {
		cfg, err := model.ParseTaskConfig(r.Config)
		if err != nil {
			log.Warn().Err(err).Int64("taskID", r.ID).Int64("projectID", projectID).Msg("Skipping task with malformed config")
			continue
		}
		tasks = append(tasks, model.Task{
			ID:             r.ID,
			ProjectID:      r.ProjectID,
			Name:           r.Name,
			Enabled:        r.Enabled,
			Config:         cfg,
			LastExecutedAt: r.LastExecutedAt,
		})
	}

	return tasks, nil
}

func (p *postgresDB) MarkScheduleRun(ctx context.Context, projectID int64, next time.Time) error {
	query := `
		UPDATE project_schedules
		SET last_run_at = NOW(), next_run_at = $2
		WHERE project_id = $1
	`

	if _, err := p.db.ExecContext(ctx, query, projectID, next); err != nil {
		return fmt.Errorf("failed to mark schedule run for project %d: %w", projectID, err)
	}

	return nil
}

func (p *postgresDB) TouchTasks(ctx context.Context, projectID int64) error {
	query := `UPDATE tasks SET last_executed_at = NOW() WHERE project_id = $1 AND enabled`

	if _, err := p.db.ExecContext(ctx, query, projectID); err != nil {
		return fmt.Errorf("failed to touch tasks for project %d: %w", projectID, err)
	}

	return nil
}
