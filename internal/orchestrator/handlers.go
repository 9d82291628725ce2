package orchestrator

import (
	"context"
	"errors"

	"rsyaclean/internal/queue"
)

type batchHandler struct {
	worker *Worker
}

// NewBatchHandler consumes campaign batch messages
func NewBatchHandler(w *Worker) Handler {
	return &batchHandler{worker: w}
}

func (h *batchHandler) Type() queue.MessageType { return queue.TypeCampaignBatch }
func (h *batchHandler) Name() string            { return "Campaign Batch Worker" }

func (h *batchHandler) Handle(ctx context.Context, m queue.Message) error {
	_, err := h.worker.ProcessBatch(ctx, m)
	if errors.Is(err, ErrBatchNotClaimable) {
		// a duplicate delivery or the synchronous invocation got there first
		return nil
	}
	return err
}

type placementsHandler struct {
	worker *Worker
}

// NewPlacementsHandler consumes placements delivered by the report poller
func NewPlacementsHandler(w *Worker) Handler {
	return &placementsHandler{worker: w}
}

func (h *placementsHandler) Type() queue.MessageType { return queue.TypePlacements }
func (h *placementsHandler) Name() string            { return "Placements Worker" }

func (h *placementsHandler) Handle(ctx context.Context, m queue.Message) error {
	_, err := h.worker.ProcessPlacements(ctx, m)
	return err
}
