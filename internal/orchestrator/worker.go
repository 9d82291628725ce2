package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"rsyaclean/internal/config"
	"rsyaclean/internal/exclusion"
	"rsyaclean/internal/metrics"
	"rsyaclean/internal/model"
	"rsyaclean/internal/queue"
	"rsyaclean/pkg/direct"
)

// ErrBatchNotClaimable means another worker owns the batch or it already
// completed
var ErrBatchNotClaimable = errors.New("batch is not claimable")

// Worker processes batches of campaigns and late placement deliveries
type Worker struct {
	store      Store
	exclusions ExclusionStore
	history    History
	fetcher    *placementFetcher
	rotator    *Rotator
	engine     config.EngineConfig
	limits     exclusion.Limits
}

func NewWorker(svc Services, engine config.EngineConfig) *Worker {
	svc = svc.withDefaults()

	return &Worker{
		store:      svc.Store,
		exclusions: svc.Exclusions,
		history:    svc.History,
		fetcher: &placementFetcher{
			reports: svc.Reports,
			cache:   svc.Cache,
			sink:    reportSink{cache: svc.Cache, archive: svc.Archive, history: svc.History},
			windows: engine.ReportWindows,
			now:     time.Now,
		},
		rotator: NewRotator(svc.Exclusions, svc.History, engine.RotationFraction),
		engine:  engine,
		limits: exclusion.Limits{
			Soft:             engine.SoftCapacity,
			Hard:             engine.HardCapacity,
			RotationFraction: engine.RotationFraction,
		},
	}
}

// ProcessBatchByID processes a persisted batch with the project's own
// credentials
func (w *Worker) ProcessBatchByID(ctx context.Context, batchID int64) (model.BatchMetrics, error) {
	batch, err := w.store.GetBatch(ctx, batchID)
	if err != nil {
		return model.BatchMetrics{}, err
	}
	return w.ProcessBatch(ctx, queue.NewBatchMessage(*batch, nil))
}

// ProcessBatch claims the batch, processes every campaign in it and stores
// the outcome. Campaign failures are recorded in the metrics; a returned
// error means the batch itself failed and was marked for retry.
func (w *Worker) ProcessBatch(ctx context.Context, msg queue.Message) (model.BatchMetrics, error) {
	logger := log.With().
		Int64("batchId", msg.BatchID).
		Int64("projectId", msg.ProjectID).
		Logger()

	claimed, err := w.store.MarkBatchProcessing(ctx, msg.BatchID, w.engine.BatchStaleDuration(), w.engine.MaxBatchRetries)
	if err != nil {
		return model.BatchMetrics{}, err
	}
	if !claimed {
		logger.Info().Msg("Batch already claimed or completed, skipping")
		return model.BatchMetrics{}, ErrBatchNotClaimable
	}

	start := time.Now()
	batchMetrics, err := w.runBatch(ctx, msg, logger)

	// bookkeeping must land even when the caller gave up
	ctx = context.WithoutCancel(ctx)

	if err != nil {
		logger.Error().Err(err).Msg("Batch failed")
		if failErr := w.store.FailBatch(ctx, msg.BatchID, err.Error()); failErr != nil {
			logger.Error().Err(failErr).Msg("Failed to mark batch failed")
		}
		metrics.ObserveBatch(string(model.BatchFailed), time.Since(start).Seconds())
		return batchMetrics, err
	}

	if err := w.store.CompleteBatch(ctx, msg.BatchID, batchMetrics); err != nil {
		return batchMetrics, err
	}
	metrics.ObserveBatch(string(model.BatchCompleted), time.Since(start).Seconds())

	logger.Info().
		Int("processed", batchMetrics.ProcessedItems).
		Int("success", batchMetrics.SuccessCount).
		Int("warning", batchMetrics.WarningCount).
		Int("failure", batchMetrics.FailureCount).
		Int("skipped", batchMetrics.SkippedCount).
		Int("pending", batchMetrics.PendingCount).
		Dur("took", time.Since(start)).
		Msg("Batch completed")

	return batchMetrics, nil
}

func (w *Worker) runBatch(ctx context.Context, msg queue.Message, logger zerolog.Logger) (batchMetrics model.BatchMetrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing batch: %v", r)
		}
	}()

	project, err := w.store.GetProject(ctx, msg.ProjectID)
	if err != nil {
		return batchMetrics, fmt.Errorf("load project %d: %w", msg.ProjectID, err)
	}

	tasks, err := w.store.ListEnabledTasks(ctx, project.ID)
	if err != nil {
		return batchMetrics, fmt.Errorf("load tasks of project %d: %w", project.ID, err)
	}

	creds := credentialsFor(project, msg.Credentials)

	for _, campaignID := range msg.CampaignIDs {
		var result model.CampaignResult
		if len(tasks) == 0 {
			result = resultFrom(model.CampaignResult{CampaignID: campaignID}, NewSkippedError("no enabled tasks"))
		} else {
			result = w.safeProcessCampaign(ctx, project, creds, tasks, campaignID)
		}

		batchMetrics.Add(result)
		metrics.IncCampaign(string(result.Status))
	}

	if len(tasks) > 0 {
		if err := w.store.TouchTasks(ctx, project.ID); err != nil {
			logger.Warn().Err(err).Msg("Failed to stamp task execution time")
		}
	}

	return batchMetrics, nil
}

// safeProcessCampaign keeps a panic in one campaign from aborting the batch
func (w *Worker) safeProcessCampaign(ctx context.Context, project *model.Project, creds direct.Credentials, tasks []model.Task, campaignID int64) (result model.CampaignResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Int64("campaignId", campaignID).
				Interface("panic", r).
				Msg("Recovered from panic while processing campaign")
			result = resultFrom(model.CampaignResult{CampaignID: campaignID},
				NewFailureError(fmt.Errorf("panic: %v", r)))
		}
	}()

	return w.ProcessCampaign(ctx, project, creds, tasks, campaignID)
}

// ProcessCampaign runs one campaign end to end under its lock: fetch
// reports, evaluate tasks, reconcile and write back.
func (w *Worker) ProcessCampaign(ctx context.Context, project *model.Project, creds direct.Credentials, tasks []model.Task, campaignID int64) model.CampaignResult {
	result := model.CampaignResult{CampaignID: campaignID}
	logger := log.With().
		Int64("projectId", project.ID).
		Int64("campaignId", campaignID).
		Logger()

	release, status := w.lock(ctx, campaignID, logger)
	if status != nil {
		return resultFrom(result, status)
	}
	defer release()

	fetched, err := w.fetcher.Fetch(ctx, project.ID, creds, campaignID)
	if err != nil {
		logger.Error().Err(err).Msg("Report fetch failed")
		return resultFrom(result, NewFailureError(err))
	}

	if fetched.Pending != nil {
		return resultFrom(result, w.deferReport(ctx, project.ID, campaignID, fetched.Pending, logger))
	}

	return w.applyPlacements(ctx, creds, campaignID, fetched.Placements, tasks, logger)
}

// lock takes the campaign lock. A non-nil status means the campaign must
// not be processed.
func (w *Worker) lock(ctx context.Context, campaignID int64, logger zerolog.Logger) (func(), StatusError) {
	owner := uuid.NewString()

	acquired, err := w.store.AcquireCampaignLock(ctx, campaignID, owner, w.engine.LockDuration())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to acquire campaign lock")
		return nil, NewFailureError(err)
	}
	if !acquired {
		metrics.IncLockContention()
		logger.Info().Msg("Campaign locked by another worker, skipping")
		return nil, NewSkippedError("locked")
	}

	release := func() {
		if err := w.store.ReleaseCampaignLock(context.WithoutCancel(ctx), campaignID); err != nil {
			logger.Warn().Err(err).Msg("Failed to release campaign lock")
		}
	}
	return release, nil
}

func (w *Worker) deferReport(ctx context.Context, projectID, campaignID int64, pending *pendingWindow, logger zerolog.Logger) StatusError {
	report := &model.PendingReport{
		ProjectID:   projectID,
		CampaignIDs: []int64{campaignID},
		DateFrom:    pending.Window.From,
		DateTo:      pending.Window.To,
		ReportName:  pending.Name,
	}

	created, err := w.store.CreatePendingReport(ctx, report)
	if err != nil {
		logger.Error().Err(err).Str("report", pending.Name).Msg("Failed to record pending report")
		return NewFailureError(err)
	}

	if created {
		logger.Info().Str("report", pending.Name).Msg("Report is being generated, deferred to poller")
	}
	return NewPendingError("report pending: " + pending.Name)
}

// ProcessPlacements handles placements delivered outside a batch, typically
// by the pending report poller. Each campaign is reconciled under its lock.
func (w *Worker) ProcessPlacements(ctx context.Context, msg queue.Message) (model.BatchMetrics, error) {
	var batchMetrics model.BatchMetrics

	project, err := w.store.GetProject(ctx, msg.ProjectID)
	if err != nil {
		return batchMetrics, fmt.Errorf("load project %d: %w", msg.ProjectID, err)
	}

	tasks, err := w.store.ListEnabledTasks(ctx, project.ID)
	if err != nil {
		return batchMetrics, fmt.Errorf("load tasks of project %d: %w", project.ID, err)
	}
	if msg.TaskID != nil {
		tasks = slices.DeleteFunc(tasks, func(t model.Task) bool { return t.ID != *msg.TaskID })
	}
	if len(tasks) == 0 {
		log.Info().Int64("projectId", project.ID).Msg("No enabled tasks for delivered placements")
		return batchMetrics, nil
	}

	creds := credentialsFor(project, msg.Credentials)

	owned := make(map[int64]struct{}, len(project.CampaignIDs))
	for _, id := range project.CampaignIDs {
		owned[id] = struct{}{}
	}

	byCampaign := make(map[int64][]model.Placement)
	for _, p := range msg.Placements {
		if _, ok := owned[p.CampaignID]; !ok {
			log.Warn().
				Int64("projectId", project.ID).
				Int64("campaignId", p.CampaignID).
				Msg("Dropping placement of a campaign outside the project")
			continue
		}
		byCampaign[p.CampaignID] = append(byCampaign[p.CampaignID], p)
	}

	campaignIDs := make([]int64, 0, len(byCampaign))
	for id := range byCampaign {
		campaignIDs = append(campaignIDs, id)
	}
	slices.Sort(campaignIDs)

	for _, campaignID := range campaignIDs {
		result := w.safeApplyPlacements(ctx, project, creds, tasks, campaignID, MergePlacements(byCampaign[campaignID]))
		batchMetrics.Add(result)
		metrics.IncCampaign(string(result.Status))
	}

	return batchMetrics, nil
}

func (w *Worker) safeApplyPlacements(ctx context.Context, project *model.Project, creds direct.Credentials, tasks []model.Task, campaignID int64, placements []model.Placement) (result model.CampaignResult) {
	logger := log.With().
		Int64("projectId", project.ID).
		Int64("campaignId", campaignID).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Recovered from panic while applying placements")
			result = resultFrom(model.CampaignResult{CampaignID: campaignID},
				NewFailureError(fmt.Errorf("panic: %v", r)))
		}
	}()

	release, status := w.lock(ctx, campaignID, logger)
	if status != nil {
		return resultFrom(model.CampaignResult{CampaignID: campaignID}, status)
	}
	defer release()

	return w.applyPlacements(ctx, creds, campaignID, placements, tasks, logger)
}
