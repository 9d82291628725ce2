package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"rsyaclean/internal/config"
	"rsyaclean/internal/metrics"
	"rsyaclean/internal/model"
	"rsyaclean/internal/queue"
	"rsyaclean/pkg/direct"
)

// pollLimit caps the reports handled in one run
const pollLimit = 100

// PollSummary reports what one poller run did
type PollSummary struct {
	Expired   int64 `json:"expired"`
	Due       int   `json:"due"`
	Completed int   `json:"completed"`
	Retrying  int   `json:"retrying"`
	Failed    int   `json:"failed"`
}

// Poller re-requests reports the source was still generating
type Poller struct {
	store     Store
	reports   ReportSource
	publisher queue.Publisher
	sink      reportSink
	engine    config.EngineConfig
}

func NewPoller(svc Services, engine config.EngineConfig) *Poller {
	svc = svc.withDefaults()

	return &Poller{
		store:     svc.Store,
		reports:   svc.Reports,
		publisher: svc.Publisher,
		sink:      reportSink{cache: svc.Cache, archive: svc.Archive, history: svc.History},
		engine:    engine,
	}
}

// RunOnce expires stale reports and polls every due one once
func (p *Poller) RunOnce(ctx context.Context) (PollSummary, error) {
	var summary PollSummary

	expired, err := p.store.ExpireStalePendingReports(ctx, p.engine.PendingAgeLimit())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to expire stale pending reports")
	} else if expired > 0 {
		summary.Expired = expired
		log.Info().Int64("expired", expired).Msg("Expired stale pending reports")
	}

	due, err := p.store.ListDuePendingReports(ctx, p.engine.PendingMaxRetries, p.engine.PendingRetryDelay(), pollLimit)
	if err != nil {
		return summary, err
	}
	summary.Due = len(due)

	for _, report := range due {
		status := p.poll(ctx, report)
		metrics.IncPendingReport(string(status))

		switch status {
		case model.ReportCompleted:
			summary.Completed++
		case model.ReportFailed:
			summary.Failed++
		default:
			summary.Retrying++
		}
	}

	if summary.Due > 0 {
		log.Info().
			Int("due", summary.Due).
			Int("completed", summary.Completed).
			Int("retrying", summary.Retrying).
			Int("failed", summary.Failed).
			Msg("Pending reports polled")
	}

	return summary, nil
}

func (p *Poller) poll(ctx context.Context, report model.PendingReport) model.ReportStatus {
	logger := log.With().
		Int64("pendingReportId", report.ID).
		Str("report", report.ReportName).
		Int("retry", report.RetryCount).
		Logger()

	ready, err := p.fetch(ctx, report)
	if err == nil && ready != nil {
		err = p.deliver(ctx, report, ready)
		if err == nil {
			if err := p.store.CompletePendingReport(ctx, report.ID); err != nil {
				logger.Error().Err(err).Msg("Failed to mark pending report completed")
				return model.ReportPending
			}
			logger.Info().Int("placements", len(ready.Placements)).Msg("Pending report completed")
			return model.ReportCompleted
		}
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Pending report poll failed")
	}

	status, recErr := p.store.RecordPendingAttempt(ctx, report.ID, p.engine.PendingMaxRetries)
	if recErr != nil {
		logger.Error().Err(recErr).Msg("Failed to record pending report attempt")
		return model.ReportPending
	}
	if status == model.ReportFailed {
		logger.Warn().Msg("Pending report gave up after retry limit")
	}
	return status
}

// fetch returns nil without error while the report is still generating
func (p *Poller) fetch(ctx context.Context, report model.PendingReport) (*direct.Report, error) {
	project, err := p.store.GetProject(ctx, report.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project %d: %w", report.ProjectID, err)
	}

	result, err := p.reports.FetchReport(ctx, credentialsFor(project, nil), direct.ReportRequest{
		CampaignIDs: report.CampaignIDs,
		DateFrom:    report.DateFrom,
		DateTo:      report.DateTo,
		ReportName:  report.ReportName,
	})
	if err != nil {
		return nil, err
	}
	if result.Status != direct.ReportReady {
		return nil, nil
	}
	return result, nil
}

// deliver persists the placements and hands them to a worker
func (p *Poller) deliver(ctx context.Context, report model.PendingReport, ready *direct.Report) error {
	win := DateRange{From: report.DateFrom, To: report.DateTo}
	p.sink.Keep(ctx, report.ProjectID, report.CampaignIDs, win, ready)

	if len(ready.Placements) == 0 {
		return nil
	}

	msg := queue.NewPlacementsMessage(report.ProjectID, report.TaskID, ready.Placements)
	if err := p.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish placements: %w", err)
	}
	return nil
}
