package exclusion

import (
	"math"
	"sort"

	"rsyaclean/internal/model"
	"rsyaclean/internal/scoring"
)

// RotationPlan splits an exclusion list into entries to keep and to evict
type RotationPlan struct {
	Keep  []string
	Evict []string
}

// PlanRotation scores every excluded domain and evicts the lowest scoring
// floor(fraction * n) of them. Domains without known metrics score as zero
// metrics. Ties break on domain name so a pass is deterministic.
func PlanRotation(current []string, metrics map[string]model.Placement, fraction float64) RotationPlan {
	current = Normalize(current)

	type scored struct {
		domain string
		score  float64
	}
	ranked := make([]scored, 0, len(current))
	for _, d := range current {
		p, ok := metrics[d]
		if !ok {
			p = model.Placement{Domain: d}
		}
		p.Domain = d
		ranked = append(ranked, scored{domain: d, score: scoring.Score(p)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score < ranked[j].score
		}
		return ranked[i].domain < ranked[j].domain
	})

	evictCount := int(math.Floor(fraction * float64(len(ranked))))
	if evictCount < 0 {
		evictCount = 0
	}

	evicted := make(map[string]struct{}, evictCount)
	plan := RotationPlan{Evict: make([]string, 0, evictCount)}
	for _, r := range ranked[:evictCount] {
		plan.Evict = append(plan.Evict, r.domain)
		evicted[r.domain] = struct{}{}
	}

	plan.Keep = make([]string, 0, len(current)-evictCount)
	for _, d := range current {
		if _, ok := evicted[d]; !ok {
			plan.Keep = append(plan.Keep, d)
		}
	}
	return plan
}
