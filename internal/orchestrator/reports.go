package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"rsyaclean/internal/aws"
	"rsyaclean/internal/cache"
	"rsyaclean/internal/metrics"
	"rsyaclean/internal/model"
	"rsyaclean/pkg/direct"
)

// DateRange is an inclusive report window in whole days
type DateRange struct {
	From time.Time
	To   time.Time
}

// ReportWindows turns trailing window sizes into date ranges relative to now.
// 0 is today, 1 is yesterday, n > 1 is the n days before today.
func ReportWindows(now time.Time, days []int) []DateRange {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)

	ranges := make([]DateRange, 0, len(days))
	for _, d := range days {
		switch {
		case d <= 0:
			ranges = append(ranges, DateRange{From: today, To: today})
		case d == 1:
			ranges = append(ranges, DateRange{From: yesterday, To: yesterday})
		default:
			ranges = append(ranges, DateRange{From: today.AddDate(0, 0, -d), To: yesterday})
		}
	}
	return ranges
}

// MergePlacements sums placements that share a domain. Domains compare
// lower-cased; the first seen order is kept.
func MergePlacements(placements []model.Placement) []model.Placement {
	index := make(map[string]int, len(placements))
	merged := make([]model.Placement, 0, len(placements))

	for _, p := range placements {
		domain := strings.ToLower(strings.TrimSpace(p.Domain))
		if domain == "" {
			continue
		}

		i, ok := index[domain]
		if !ok {
			p.Domain = domain
			index[domain] = len(merged)
			merged = append(merged, p)
			continue
		}

		merged[i].Impressions += p.Impressions
		merged[i].Clicks += p.Clicks
		merged[i].Cost += p.Cost
		merged[i].Conversions += p.Conversions
	}

	return merged
}

// pendingWindow is a report the source is still generating
type pendingWindow struct {
	Name   string
	Window DateRange
}

type fetchResult struct {
	Placements []model.Placement
	Pending    *pendingWindow
}

// placementFetcher collects a campaign's placements over every configured
// window, consulting the report cache first
type placementFetcher struct {
	reports ReportSource
	cache   cache.Reports
	sink    reportSink
	windows []int
	now     func() time.Time
}

func (f *placementFetcher) Fetch(ctx context.Context, projectID int64, creds direct.Credentials, campaignID int64) (fetchResult, error) {
	ids := []int64{campaignID}
	var all []model.Placement

	for _, win := range ReportWindows(f.now(), f.windows) {
		cached, err := f.cache.Get(ctx, ids, win.From, win.To)
		if err == nil {
			all = append(all, cached...)
			continue
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn().Err(err).Int64("campaignId", campaignID).Msg("Report cache unavailable")
		}

		report, err := f.reports.FetchReportWithRetry(ctx, creds, direct.ReportRequest{
			CampaignIDs: ids,
			DateFrom:    win.From,
			DateTo:      win.To,
		})
		if err != nil {
			metrics.IncReportFetch("error")
			return fetchResult{}, fmt.Errorf("fetch report %s..%s: %w",
				win.From.Format(time.DateOnly), win.To.Format(time.DateOnly), err)
		}

		if report.Status == direct.ReportPending {
			metrics.IncReportFetch("pending")
			return fetchResult{Pending: &pendingWindow{Name: report.Name, Window: win}}, nil
		}

		metrics.IncReportFetch("ready")
		f.sink.Keep(ctx, projectID, ids, win, report)
		all = append(all, report.Placements...)
	}

	return fetchResult{Placements: MergePlacements(all)}, nil
}

// reportSink persists a ready report to the cache, the archive and the
// metrics history. Failures are logged; the report is still usable.
type reportSink struct {
	cache   cache.Reports
	archive Archive
	history History
}

func (s reportSink) Keep(ctx context.Context, projectID int64, campaignIDs []int64, win DateRange, report *direct.Report) {
	logger := log.With().
		Int64("projectId", projectID).
		Str("report", report.Name).
		Logger()

	if err := s.cache.Put(ctx, campaignIDs, win.From, win.To, report.Placements); err != nil {
		logger.Warn().Err(err).Msg("Failed to cache report")
	}

	if len(report.Raw) > 0 {
		key := aws.ReportKey(projectID, campaignIDs, win.From, win.To)
		if err := s.archive.Store(ctx, key, report.Raw); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("Failed to archive report")
		}
	}

	if len(report.Placements) > 0 {
		if err := s.history.RecordPlacements(ctx, report.Placements); err != nil {
			logger.Warn().Err(err).Msg("Failed to record placement history")
		}
	}
}
