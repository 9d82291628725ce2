package orchestrator

import (
	"context"

	"github.com/rs/zerolog/log"

	"rsyaclean/internal/database"
)

// Janitor garbage collects expired campaign locks. Expired rows already
// count as unlocked, so this only bounds table growth.
type Janitor struct {
	locks database.LockDatabase
}

func NewJanitor(locks database.LockDatabase) *Janitor {
	return &Janitor{locks: locks}
}

func (j *Janitor) SweepLocks(ctx context.Context) (int64, error) {
	swept, err := j.locks.SweepExpiredLocks(ctx)
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		log.Info().Int64("swept", swept).Msg("Expired campaign locks removed")
	}
	return swept, nil
}
