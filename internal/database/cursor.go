package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CursorDatabase persists named round-robin positions between runs
type CursorDatabase interface {
	// GetCursor returns 0 when the cursor was never written
	GetCursor(ctx context.Context, name string) (int64, error)
	SetCursor(ctx context.Context, name string, value int64) error
}

func (p *postgresDB) GetCursor(ctx context.Context, name string) (int64, error) {
	var value int64
	err := p.db.GetContext(ctx, &value, `SELECT value FROM engine_cursors WHERE name = $1`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get cursor %s: %w", name, err)
	}

	return value, nil
}

func (p *postgresDB) SetCursor(ctx context.Context, name string, value int64) error {
	query := `
		INSERT INTO engine_cursors (name, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := p.db.ExecContext(ctx, query, name, value, time.Now()); err != nil {
		return fmt.Errorf("failed to set cursor %s: %w", name, err)
	}

	return nil
}
