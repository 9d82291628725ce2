package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"rsyaclean/internal/exclusion"
	"rsyaclean/internal/history"
	"rsyaclean/internal/metrics"
	"rsyaclean/internal/model"
	"rsyaclean/internal/rules"
	"rsyaclean/pkg/direct"
)

// applyPlacements evaluates tasks over the placements, queues the matches and
// pushes as many queued domains as fit into the exclusion list. The caller
// holds the campaign lock.
func (w *Worker) applyPlacements(ctx context.Context, creds direct.Credentials, campaignID int64, placements []model.Placement, tasks []model.Task, logger zerolog.Logger) model.CampaignResult {
	result := model.CampaignResult{CampaignID: campaignID}

	current, err := w.exclusions.GetExcludedSites(ctx, creds, campaignID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read exclusion list")
		return resultFrom(result, NewFailureError(err))
	}
	current = exclusion.Normalize(current)

	matches := rules.MatchTasks(placements, tasks, exclusion.Set(current))
	result.Matched = countDomains(matches)

	if len(matches) > 0 {
		if err := w.store.UpsertQueueEntries(ctx, queueEntries(campaignID, matches)); err != nil {
			logger.Error().Err(err).Msg("Failed to queue matched placements")
			return resultFrom(result, NewFailureError(err))
		}
	}

	// earlier runs may have left entries behind, so work from the queue
	queued, err := w.store.ListQueueEntries(ctx, campaignID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list block queue")
		return resultFrom(result, NewFailureError(err))
	}
	if len(queued) == 0 {
		return resultFrom(result, NewSuccessError("nothing to block"))
	}

	candidates := make([]string, len(queued))
	for i, e := range queued {
		candidates[i] = e.Domain
	}

	rec := exclusion.Reconcile(current, candidates, w.limits)

	// Rotation fires only once the list itself sits at the soft ceiling. A
	// list just below it is filled first and the overflow is marked pending
	// rotation, so it rotates on the next run.
	if rec.MustRotate && len(rec.Deferred) > 0 {
		plan, err := w.rotator.Rotate(ctx, creds, campaignID, current)
		if err != nil {
			logger.Error().Err(err).Msg("Rotation failed")
			return resultFrom(result, NewFailureError(err))
		}
		if len(plan.Evict) > 0 {
			result.Evicted = len(plan.Evict)
			current = plan.Keep
			rec = exclusion.Reconcile(current, candidates, w.limits)
		}
	}

	result.Rejected = len(rec.Rejected)
	metrics.AddRejected(len(rec.Rejected))

	// invalid and already blocked entries are never retried
	stale := make([]string, 0, len(rec.Rejected)+len(rec.AlreadyExcluded))
	for _, r := range rec.Rejected {
		stale = append(stale, r.Domain)
	}
	stale = append(stale, rec.AlreadyExcluded...)
	if len(stale) > 0 {
		if _, err := w.store.DeleteQueueDomains(ctx, campaignID, stale); err != nil {
			logger.Warn().Err(err).Msg("Failed to drop stale queue entries")
		}
	}

	if !rec.NeedsWrite() {
		if rec.AtLimit && len(rec.Deferred) > 0 {
			if err := w.store.MarkPendingRotation(ctx, campaignID, rec.Deferred); err != nil {
				logger.Warn().Err(err).Msg("Failed to mark entries pending rotation")
			}
			return resultFrom(result, NewWarningError(
				fmt.Sprintf("exclusion list full, %d domains wait for rotation", len(rec.Deferred))))
		}
		return resultFrom(result, NewSuccessError("nothing new to block"))
	}

	if err := w.exclusions.SetExcludedSites(ctx, creds, campaignID, rec.NewList); err != nil {
		logger.Error().Err(err).Msg("Failed to write exclusion list")
		return w.writeFailed(ctx, result, campaignID, rec.ToAdd, err, logger)
	}

	result.Added = len(rec.ToAdd)
	metrics.AddBlocked(len(rec.ToAdd))

	if _, err := w.store.DeleteQueueDomains(ctx, campaignID, rec.ToAdd); err != nil {
		logger.Warn().Err(err).Msg("Failed to clear written queue entries")
	}
	if err := w.history.RecordBlocks(ctx, campaignID, rec.ToAdd, history.ActionBlocked); err != nil {
		logger.Warn().Err(err).Msg("Failed to record blocks")
	}
	// entries left over from earlier runs may be missing from this report;
	// rotation scores blocked domains from history
	if err := w.history.RecordPlacements(ctx, blockedMetrics(queued, rec.ToAdd)); err != nil {
		logger.Warn().Err(err).Msg("Failed to record metrics of blocked domains")
	}

	logger.Info().
		Int("added", result.Added).
		Int("evicted", result.Evicted).
		Int("deferred", len(rec.Deferred)).
		Int("listSize", len(rec.NewList)).
		Msg("Exclusion list updated")

	if len(rec.Deferred) > 0 {
		if err := w.store.MarkPendingRotation(ctx, campaignID, rec.Deferred); err != nil {
			logger.Warn().Err(err).Msg("Failed to mark entries pending rotation")
		}
		return resultFrom(result, NewWarningError(
			fmt.Sprintf("added %d, %d domains wait for rotation", result.Added, len(rec.Deferred))))
	}

	return resultFrom(result, NewSuccessError(fmt.Sprintf("added %d", result.Added)))
}

// writeFailed applies the retry policy for a failed exclusion list write.
// Rate limiting and transport failures leave the queue as is for the next
// run; an API error counts against the entries' attempt budget.
func (w *Worker) writeFailed(ctx context.Context, result model.CampaignResult, campaignID int64, domains []string, err error, logger zerolog.Logger) model.CampaignResult {
	var apiErr *direct.APIError
	if !errors.Is(err, direct.ErrRateLimited) && errors.As(err, &apiErr) && len(domains) > 0 {
		dropped, incErr := w.store.IncrementQueueAttempts(ctx, campaignID, domains, w.engine.QueueMaxAttempts)
		if incErr != nil {
			logger.Warn().Err(incErr).Msg("Failed to count write attempt")
		} else if dropped > 0 {
			logger.Warn().Int64("dropped", dropped).Msg("Dropped queue entries after repeated write failures")
		}
	}
	return resultFrom(result, NewFailureError(err))
}

func queueEntries(campaignID int64, matches []rules.Match) []model.BlockQueueEntry {
	entries := make([]model.BlockQueueEntry, 0, len(matches))
	for _, m := range matches {
		entries = append(entries, model.BlockQueueEntry{
			TaskID:      m.TaskID,
			CampaignID:  campaignID,
			Domain:      strings.ToLower(strings.TrimSpace(m.Placement.Domain)),
			Impressions: m.Placement.Impressions,
			Clicks:      m.Placement.Clicks,
			Cost:        m.Placement.Cost,
			Conversions: m.Placement.Conversions,
			Status:      model.QueueQueued,
		})
	}
	return entries
}

// blockedMetrics returns the queued metrics of every written domain. The
// queue is ordered by cost, so the costliest entry wins for a domain queued
// by several tasks.
func blockedMetrics(queued []model.BlockQueueEntry, written []string) []model.Placement {
	want := exclusion.Set(written)
	out := make([]model.Placement, 0, len(written))
	for _, e := range queued {
		if _, ok := want[e.Domain]; !ok {
			continue
		}
		delete(want, e.Domain)
		out = append(out, e.Placement())
	}
	return out
}

func countDomains(matches []rules.Match) int {
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		seen[strings.ToLower(m.Placement.Domain)] = struct{}{}
	}
	return len(seen)
}
