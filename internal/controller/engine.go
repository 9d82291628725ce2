package controller

import (
	"context"

	"rsyaclean/internal/model"
	"rsyaclean/internal/orchestrator"
)

// EngineController exposes the engine operations served over HTTP
type EngineController interface {
	ProcessBatch(ctx context.Context, batchID int64) (model.BatchMetrics, error)
	Dispatch(ctx context.Context) (orchestrator.DispatchSummary, error)
	PollReports(ctx context.Context) (orchestrator.PollSummary, error)
	AnalyzeCampaign(ctx context.Context, projectID, campaignID int64) (*orchestrator.Analysis, error)
}

type engineController struct {
	worker     *orchestrator.Worker
	dispatcher *orchestrator.Dispatcher
	poller     *orchestrator.Poller
	analyzer   *orchestrator.Analyzer
}

func NewEngineController(w *orchestrator.Worker, d *orchestrator.Dispatcher, p *orchestrator.Poller, a *orchestrator.Analyzer) EngineController {
	return &engineController{
		worker:     w,
		dispatcher: d,
		poller:     p,
		analyzer:   a,
	}
}

func (e *engineController) ProcessBatch(ctx context.Context, batchID int64) (model.BatchMetrics, error) {
	return e.worker.ProcessBatchByID(ctx, batchID)
}

func (e *engineController) Dispatch(ctx context.Context) (orchestrator.DispatchSummary, error) {
	return e.dispatcher.RunCycle(ctx)
}

func (e *engineController) PollReports(ctx context.Context) (orchestrator.PollSummary, error) {
	return e.poller.RunOnce(ctx)
}

func (e *engineController) AnalyzeCampaign(ctx context.Context, projectID, campaignID int64) (*orchestrator.Analysis, error) {
	return e.analyzer.AnalyzeCampaign(ctx, projectID, campaignID)
}
