// Package orchestrator drives the placement cleaning engine: batch workers,
// the dispatcher, the pending report poller and the lock janitor.
package orchestrator

import (
	"context"

	"rsyaclean/internal/cache"
	"rsyaclean/internal/database"
	"rsyaclean/internal/history"
	"rsyaclean/internal/model"
	"rsyaclean/internal/queue"
	"rsyaclean/pkg/direct"
)

// Store is the relational state the engine reads and mutates
type Store interface {
	database.ProjectDatabase
	database.QueueDatabase
	database.BatchDatabase
	database.PendingReportDatabase
	database.LockDatabase
	database.CursorDatabase
}

// ReportSource orders placement reports
type ReportSource interface {
	FetchReport(ctx context.Context, creds direct.Credentials, req direct.ReportRequest) (*direct.Report, error)
	FetchReportWithRetry(ctx context.Context, creds direct.Credentials, req direct.ReportRequest) (*direct.Report, error)
}

// ExclusionStore holds campaign exclusion lists. Writes replace the whole list.
type ExclusionStore interface {
	GetExcludedSites(ctx context.Context, creds direct.Credentials, campaignID int64) ([]string, error)
	SetExcludedSites(ctx context.Context, creds direct.Credentials, campaignID int64, domains []string) error
}

type History interface {
	RecordPlacements(ctx context.Context, placements []model.Placement) error
	LatestMetrics(ctx context.Context, campaignID int64, domains []string) (map[string]model.Placement, error)
	RecordBlocks(ctx context.Context, campaignID int64, domains []string, action history.BlockAction) error
}

type Archive interface {
	Store(ctx context.Context, key string, body []byte) error
}

// Services bundles the collaborators shared by the engine components.
// Cache, Archive and History are optional.
type Services struct {
	Store      Store
	Reports    ReportSource
	Exclusions ExclusionStore
	History    History
	Cache      cache.Reports
	Archive    Archive
	Publisher  queue.Publisher
}

func (s Services) withDefaults() Services {
	if s.Cache == nil {
		s.Cache = cache.NopReports{}
	}
	if s.Archive == nil {
		s.Archive = nopArchive{}
	}
	if s.History == nil {
		s.History = nopHistory{}
	}
	return s
}

type nopArchive struct{}

func (nopArchive) Store(context.Context, string, []byte) error { return nil }

type nopHistory struct{}

func (nopHistory) RecordPlacements(context.Context, []model.Placement) error { return nil }

func (nopHistory) LatestMetrics(context.Context, int64, []string) (map[string]model.Placement, error) {
	return map[string]model.Placement{}, nil
}

func (nopHistory) RecordBlocks(context.Context, int64, []string, history.BlockAction) error {
	return nil
}

// credentialsFor prefers credentials carried by a message over the project's
func credentialsFor(project *model.Project, carried *direct.Credentials) direct.Credentials {
	if carried != nil && carried.Token != "" {
		return *carried
	}
	return direct.Credentials{Token: project.OAuthToken, ClientLogin: project.ClientLogin}
}
