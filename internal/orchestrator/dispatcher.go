package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"rsyaclean/internal/config"
	"rsyaclean/internal/model"
	"rsyaclean/internal/queue"
	"rsyaclean/pkg/direct"
)

// dispatchCursor names the persisted round-robin position
const dispatchCursor = "dispatch"

// Invoker starts a worker on a batch synchronously
type Invoker interface {
	Invoke(ctx context.Context, batchID int64) error
}

// DispatchSummary reports what one dispatch cycle did
type DispatchSummary struct {
	Projects  int   `json:"projects"`
	Batches   int   `json:"batches"`
	Published int   `json:"published"`
	Failed    int   `json:"failed"`
	Cursor    int64 `json:"cursor"`
}

// Dispatcher splits due projects into batches and hands them to workers
type Dispatcher struct {
	store     Store
	publisher queue.Publisher
	invoker   Invoker
	engine    config.EngineConfig
	now       func() time.Time
}

// NewDispatcher builds a dispatcher. invoker may be nil, then batches are
// only queued.
func NewDispatcher(store Store, publisher queue.Publisher, invoker Invoker, engine config.EngineConfig) *Dispatcher {
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		invoker:   invoker,
		engine:    engine,
		now:       time.Now,
	}
}

// RunCycle dispatches the next page of due projects after the persisted
// cursor. When the page comes back empty the cursor wraps to the start.
func (d *Dispatcher) RunCycle(ctx context.Context) (DispatchSummary, error) {
	var summary DispatchSummary

	cursor, err := d.store.GetCursor(ctx, dispatchCursor)
	if err != nil {
		return summary, err
	}

	projects, err := d.store.ListDueProjects(ctx, cursor, d.engine.DispatchProjects)
	if err != nil {
		return summary, err
	}
	if len(projects) == 0 && cursor > 0 {
		log.Debug().Int64("cursor", cursor).Msg("Dispatch cursor wrapped")
		cursor = 0
		projects, err = d.store.ListDueProjects(ctx, cursor, d.engine.DispatchProjects)
		if err != nil {
			return summary, err
		}
	}

	var dispatched []model.Batch
	last := cursor

	for _, project := range projects {
		batches, err := d.dispatchProject(ctx, project, &summary)
		if err != nil {
			log.Error().Err(err).Int64("projectId", project.ID).Msg("Failed to dispatch project")
			continue
		}
		dispatched = append(dispatched, batches...)
		summary.Projects++
		last = project.ID
	}

	if err := d.store.SetCursor(ctx, dispatchCursor, last); err != nil {
		return summary, err
	}
	summary.Cursor = last

	if d.invoker != nil && len(dispatched) > 0 {
		RunConcurrently(dispatched, func(b model.Batch) {
			if err := d.invoker.Invoke(ctx, b.ID); err != nil {
				// the queued message still gets the batch processed
				log.Warn().Err(err).Int64("batchId", b.ID).Msg("Synchronous worker invocation failed")
			}
		}, d.engine.InvokeParallelism)
	}

	log.Info().
		Int("projects", summary.Projects).
		Int("batches", summary.Batches).
		Int("published", summary.Published).
		Int("failed", summary.Failed).
		Int64("cursor", summary.Cursor).
		Msg("Dispatch cycle finished")

	return summary, nil
}

func (d *Dispatcher) dispatchProject(ctx context.Context, project model.Project, summary *DispatchSummary) ([]model.Batch, error) {
	chunks := SplitIntoBatches([]int64(project.CampaignIDs), d.engine.BatchSize)
	if len(chunks) == 0 {
		return nil, nil
	}

	batches, err := d.store.CreateBatches(ctx, project.ID, chunks)
	if err != nil {
		return nil, fmt.Errorf("persist batches: %w", err)
	}
	summary.Batches += len(batches)

	creds := &direct.Credentials{Token: project.OAuthToken, ClientLogin: project.ClientLogin}
	for _, b := range batches {
		if err := d.publisher.Publish(ctx, queue.NewBatchMessage(b, creds)); err != nil {
			summary.Failed++
			log.Error().Err(err).Int64("batchId", b.ID).Msg("Failed to enqueue batch")
			if failErr := d.store.FailBatch(ctx, b.ID, err.Error()); failErr != nil {
				log.Error().Err(failErr).Int64("batchId", b.ID).Msg("Failed to mark batch failed")
			}
			continue
		}
		summary.Published++
	}

	next := d.now().Add(project.ScheduleEvery(d.engine.ScheduleEvery()))
	if err := d.store.MarkScheduleRun(ctx, project.ID, next); err != nil {
		log.Warn().Err(err).Int64("projectId", project.ID).Msg("Failed to advance project schedule")
	}

	return batches, nil
}

// ReprocessFailed requeues failed batches that still have retries left
func (d *Dispatcher) ReprocessFailed(ctx context.Context) (int, error) {
	batches, err := d.store.ListRetryableBatches(ctx, d.engine.MaxBatchRetries, d.engine.DispatchProjects)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, b := range batches {
		logger := log.With().Int64("batchId", b.ID).Int("retry", b.RetryCount).Logger()

		ok, err := d.store.ResetBatch(ctx, b.ID)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to reset batch")
			continue
		}
		if !ok {
			continue
		}

		if err := d.publisher.Publish(ctx, queue.NewBatchMessage(b, nil)); err != nil {
			logger.Error().Err(err).Msg("Failed to requeue batch")
			if failErr := d.store.FailBatch(ctx, b.ID, err.Error()); failErr != nil {
				logger.Error().Err(failErr).Msg("Failed to mark batch failed")
			}
			continue
		}
		requeued++
	}

	if requeued > 0 {
		log.Info().Int("requeued", requeued).Msg("Failed batches requeued")
	}
	return requeued, nil
}
