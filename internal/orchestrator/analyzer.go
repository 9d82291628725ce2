package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"rsyaclean/internal/config"
	"rsyaclean/internal/database"
	"rsyaclean/internal/model"
	"rsyaclean/internal/rules"
	"rsyaclean/internal/scoring"
)

var ErrUnknownCampaign = errors.New("campaign does not belong to project")

// Finding is one placement the trash heuristic flagged
type Finding struct {
	Placement model.Placement `json:"placement"`
	Reason    rules.Reason    `json:"reason"`
	Score     float64         `json:"score"`
}

// Analysis is a read-only view of a campaign's placements
type Analysis struct {
	ProjectID  int64     `json:"project_id"`
	CampaignID int64     `json:"campaign_id"`
	Placements int       `json:"placements"`
	Pending    bool      `json:"pending"`
	Findings   []Finding `json:"findings"`
}

// Analyzer applies the trash heuristic to a campaign without writing anything
// back
type Analyzer struct {
	projects database.ProjectDatabase
	fetcher  *placementFetcher
}

func NewAnalyzer(svc Services, engine config.EngineConfig) *Analyzer {
	svc = svc.withDefaults()

	return &Analyzer{
		projects: svc.Store,
		fetcher: &placementFetcher{
			reports: svc.Reports,
			cache:   svc.Cache,
			sink:    reportSink{cache: svc.Cache, archive: svc.Archive, history: svc.History},
			windows: engine.ReportWindows,
			now:     time.Now,
		},
	}
}

// AnalyzeCampaign returns the flagged placements, highest score first
func (a *Analyzer) AnalyzeCampaign(ctx context.Context, projectID, campaignID int64) (*Analysis, error) {
	project, err := a.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains([]int64(project.CampaignIDs), campaignID) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCampaign, campaignID)
	}

	fetched, err := a.fetcher.Fetch(ctx, project.ID, credentialsFor(project, nil), campaignID)
	if err != nil {
		return nil, err
	}

	analysis := &Analysis{
		ProjectID:  project.ID,
		CampaignID: campaignID,
		Pending:    fetched.Pending != nil,
		Placements: len(fetched.Placements),
		Findings:   []Finding{},
	}

	for _, p := range fetched.Placements {
		verdict := rules.AnalyzeTrash(p, project.TargetCPA)
		if !verdict.Block {
			continue
		}
		analysis.Findings = append(analysis.Findings, Finding{
			Placement: p,
			Reason:    verdict.Reason,
			Score:     scoring.Score(p),
		})
	}

	sort.SliceStable(analysis.Findings, func(i, j int) bool {
		return analysis.Findings[i].Score > analysis.Findings[j].Score
	})

	return analysis, nil
}
