// Package rules decides which placements are candidates for blocking.
//
// Two independent rule sets live here: Evaluate applies a Task's configured
// filters, AnalyzeTrash applies the fixed trash-domain heuristic used by the
// analysis path. They are never combined into one decision.
package rules

import (
	"strings"

	"rsyaclean/internal/model"
)

// keywordSeparators turn a keyword into a domain prefix match
const keywordSeparators = "./"

// Evaluate reports whether a placement matches the task configuration.
//
// Order: exceptions veto, protect_conversions veto, keyword requirement,
// then every metric bound. All must pass for a match.
func Evaluate(p model.Placement, cfg model.TaskConfig) bool {
	domain := strings.ToLower(strings.TrimSpace(p.Domain))
	if domain == "" {
		return false
	}

	for _, exception := range cfg.Exceptions {
		exception = strings.ToLower(strings.TrimSpace(exception))
		if exception != "" && strings.Contains(domain, exception) {
			return false
		}
	}

	if cfg.ProtectConversions && p.Conversions >= 1 {
		return false
	}

	if !matchesKeywords(domain, cfg.Keywords) {
		return false
	}

	return withinBounds(p, cfg)
}

func matchesKeywords(domain string, keywords []string) bool {
	required := false
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			continue
		}
		required = true

		if strings.ContainsAny(keyword, keywordSeparators) {
			if strings.HasPrefix(domain, keyword) {
				return true
			}
			continue
		}

		if strings.Contains(domain, keyword) {
			return true
		}
	}
	return !required
}

func withinBounds(p model.Placement, cfg model.TaskConfig) bool {
	checks := []struct {
		value    float64
		min, max *float64
	}{
		{float64(p.Impressions), cfg.MinImpressions, cfg.MaxImpressions},
		{float64(p.Clicks), cfg.MinClicks, cfg.MaxClicks},
		{p.Cost, cfg.MinCost, cfg.MaxCost},
		{p.CTR(), cfg.MinCTR, cfg.MaxCTR},
		{p.CPC(), cfg.MinCPC, cfg.MaxCPC},
		{p.CPA(), cfg.MinCPA, cfg.MaxCPA},
		{float64(p.Conversions), cfg.MinConversions, cfg.MaxConversions},
	}

	for _, c := range checks {
		if c.min != nil && c.value < *c.min {
			return false
		}
		if c.max != nil && c.value > *c.max {
			return false
		}
	}
	return true
}

// Match is a placement selected for blocking by a specific task
type Match struct {
	TaskID    int64
	Placement model.Placement
}

// MatchTasks evaluates every enabled task against every placement. Domains
// present in excluded (lower-cased) are skipped. A domain matched by several
// tasks yields one Match per task.
func MatchTasks(placements []model.Placement, tasks []model.Task, excluded map[string]struct{}) []Match {
	var matches []Match
	for _, task := range tasks {
		if !task.Enabled {
			continue
		}
		for _, p := range placements {
			if _, ok := excluded[strings.ToLower(p.Domain)]; ok {
				continue
			}
			if Evaluate(p, task.Config) {
				matches = append(matches, Match{TaskID: task.ID, Placement: p})
			}
		}
	}
	return matches
}
