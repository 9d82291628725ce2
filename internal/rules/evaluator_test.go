package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsyaclean/internal/model"
)

func TestEvaluate(t *testing.T) {
	base := model.Placement{CampaignID: 1, Domain: "casino-x.com", Impressions: 500, Clicks: 50, Cost: 300}

	testCases := []struct {
		name      string
		placement model.Placement
		cfg       model.TaskConfig
		want      bool
	}{
		{
			name:      "empty config matches everything",
			placement: base,
			cfg:       model.TaskConfig{},
			want:      true,
		},
		{
			name:      "keyword substring match",
			placement: base,
			cfg:       model.TaskConfig{Keywords: []string{"casino"}},
			want:      true,
		},
		{
			name:      "keyword miss",
			placement: base,
			cfg:       model.TaskConfig{Keywords: []string{"poker"}},
			want:      false,
		},
		{
			name:      "keyword with separator must be a prefix",
			placement: model.Placement{Domain: "news.casino.ru"},
			cfg:       model.TaskConfig{Keywords: []string{"casino.ru"}},
			want:      false,
		},
		{
			name:      "keyword with separator prefix hit",
			placement: model.Placement{Domain: "casino.ru"},
			cfg:       model.TaskConfig{Keywords: []string{"casino."}},
			want:      true,
		},
		{
			name:      "keywords are case insensitive",
			placement: model.Placement{Domain: "CASINO-X.com"},
			cfg:       model.TaskConfig{Keywords: []string{"Casino"}},
			want:      true,
		},
		{
			name:      "exception vetoes a keyword match",
			placement: model.Placement{Domain: "badsite.ru"},
			cfg:       model.TaskConfig{Keywords: []string{"bad"}, Exceptions: []string{"badsite"}},
			want:      false,
		},
		{
			name:      "protect conversions ignores every other rule",
			placement: model.Placement{Domain: "casino-x.com", Conversions: 1, Clicks: 1000, Impressions: 1000},
			cfg: model.TaskConfig{
				ProtectConversions: true,
				Keywords:           []string{"casino"},
				MaxClicks:          model.Float(10),
			},
			want: false,
		},
		{
			name:      "max ctr violated",
			placement: base,
			cfg:       model.TaskConfig{MaxCTR: model.Float(5)},
			want:      false,
		},
		{
			name:      "min clicks satisfied",
			placement: base,
			cfg:       model.TaskConfig{MinClicks: model.Float(50)},
			want:      true,
		},
		{
			name:      "min cost violated",
			placement: base,
			cfg:       model.TaskConfig{MinCost: model.Float(301)},
			want:      false,
		},
		{
			name:      "max cpc bound",
			placement: base,
			cfg:       model.TaskConfig{MaxCPC: model.Float(5)},
			want:      false,
		},
		{
			name:      "cpa floor applies to zero conversion placements as zero",
			placement: base,
			cfg:       model.TaskConfig{MinCPA: model.Float(100)},
			want:      false,
		},
		{
			name:      "cpa within range",
			placement: model.Placement{Domain: "a.ru", Cost: 1000, Conversions: 2},
			cfg:       model.TaskConfig{MinCPA: model.Float(100), MaxCPA: model.Float(600)},
			want:      true,
		},
		{
			name:      "empty domain never matches",
			placement: model.Placement{Domain: "  "},
			cfg:       model.TaskConfig{},
			want:      false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Evaluate(tc.placement, tc.cfg))
		})
	}
}

func TestMatchTasks_EndToEndScenario(t *testing.T) {
	placements := []model.Placement{
		{CampaignID: 7, Domain: "casino-x.com", Clicks: 50, Impressions: 500, Cost: 300, Conversions: 0},
		{CampaignID: 7, Domain: "shop.ru", Clicks: 10, Impressions: 1000, Cost: 50, Conversions: 2},
	}
	tasks := []model.Task{
		{ID: 1, Enabled: true, Config: model.TaskConfig{Keywords: []string{"casino"}, MaxCTR: model.Float(100)}},
		{ID: 2, Enabled: false, Config: model.TaskConfig{}},
	}

	matches := MatchTasks(placements, tasks, map[string]struct{}{})

	require.Len(t, matches, 1)
	assert.Equal(t, int64(1), matches[0].TaskID)
	assert.Equal(t, "casino-x.com", matches[0].Placement.Domain)
}

func TestMatchTasks_SkipsExcluded(t *testing.T) {
	placements := []model.Placement{{Domain: "Casino-X.com", Clicks: 1, Impressions: 10}}
	tasks := []model.Task{{ID: 1, Enabled: true}}

	matches := MatchTasks(placements, tasks, map[string]struct{}{"casino-x.com": {}})

	assert.Empty(t, matches)
}

func TestAnalyzeTrash(t *testing.T) {
	testCases := []struct {
		name      string
		placement model.Placement
		targetCPA float64
		want      Verdict
	}{
		{
			name:      "generic com domain",
			placement: model.Placement{Domain: "free-games.com"},
			want:      Verdict{Block: true, Reason: ReasonTrashDomain},
		},
		{
			name:      "allow listed platform",
			placement: model.Placement{Domain: "vk.com", Impressions: 1000, Clicks: 1},
			want:      Verdict{},
		},
		{
			name:      "vpn token",
			placement: model.Placement{Domain: "best-vpn.ru"},
			want:      Verdict{Block: true, Reason: ReasonTrashDomain},
		},
		{
			name:      "high ctr without conversions",
			placement: model.Placement{Domain: "news.ru", Impressions: 100, Clicks: 3},
			want:      Verdict{Block: true, Reason: ReasonHighCTRNoConversions},
		},
		{
			name:      "high cpa",
			placement: model.Placement{Domain: "news.ru", Impressions: 1000, Clicks: 10, Cost: 5000, Conversions: 2},
			targetCPA: 1000,
			want:      Verdict{Block: true, Reason: ReasonHighCPA},
		},
		{
			name:      "cpa rule disabled without target",
			placement: model.Placement{Domain: "news.ru", Impressions: 1000, Clicks: 10, Cost: 5000, Conversions: 2},
			want:      Verdict{},
		},
		{
			name:      "healthy placement",
			placement: model.Placement{Domain: "news.ru", Impressions: 1000, Clicks: 10, Cost: 100, Conversions: 1},
			targetCPA: 1000,
			want:      Verdict{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AnalyzeTrash(tc.placement, tc.targetCPA))
		})
	}
}
