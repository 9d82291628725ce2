package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"rsyaclean/internal/exclusion"
	"rsyaclean/internal/history"
	"rsyaclean/internal/metrics"
	"rsyaclean/pkg/direct"
)

// Rotator frees exclusion list slots by evicting the lowest scoring entries
type Rotator struct {
	exclusions ExclusionStore
	history    History
	fraction   float64
}

func NewRotator(exclusions ExclusionStore, h History, fraction float64) *Rotator {
	if h == nil {
		h = nopHistory{}
	}
	return &Rotator{exclusions: exclusions, history: h, fraction: fraction}
}

// Rotate scores the current list with the latest known metrics, writes back
// the kept entries and returns the plan. Domains without history score as
// zero metrics.
func (r *Rotator) Rotate(ctx context.Context, creds direct.Credentials, campaignID int64, current []string) (exclusion.RotationPlan, error) {
	current = exclusion.Normalize(current)
	logger := log.With().Int64("campaignId", campaignID).Logger()

	known, err := r.history.LatestMetrics(ctx, campaignID, current)
	if err != nil {
		logger.Warn().Err(err).Msg("Placement history unavailable, rotating on zero metrics")
		known = nil
	}

	plan := exclusion.PlanRotation(current, known, r.fraction)
	if len(plan.Evict) == 0 {
		return plan, nil
	}

	if err := r.exclusions.SetExcludedSites(ctx, creds, campaignID, plan.Keep); err != nil {
		return exclusion.RotationPlan{}, fmt.Errorf("write rotated exclusion list: %w", err)
	}

	if err := r.history.RecordBlocks(ctx, campaignID, plan.Evict, history.ActionEvicted); err != nil {
		logger.Warn().Err(err).Msg("Failed to record evictions")
	}

	metrics.IncRotation(len(plan.Evict))
	logger.Info().
		Int("evicted", len(plan.Evict)).
		Int("kept", len(plan.Keep)).
		Msg("Exclusion list rotated")

	return plan, nil
}
