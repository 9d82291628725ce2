// Package scoring ranks excluded placements by how urgently they should stay
// blocked. Scores only order entries inside one rotation pass.
package scoring

import (
	"math"
	"regexp"
	"strings"

	"rsyaclean/internal/model"
)

const (
	suspiciousBonus      = 100
	suspiciousCostBonus  = 50
	suspiciousClickBonus = 30
	lowValueBonus        = 60
	highCPABonus         = 70
	maxSpendBonus        = 50

	highCPAThreshold = 1000
)

var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.com$`),
	regexp.MustCompile(`(^|[.\-])dsp([.\-]|$)`),
	regexp.MustCompile(`vpn`),
	regexp.MustCompile(`casino|slot|bet|poker|kazino`),
	regexp.MustCompile(`porn|xxx|adult|sex`),
	regexp.MustCompile(`torrent|warez|crack|pirat`),
}

// Score returns the additive priority of a placement. Higher means evict later.
func Score(p model.Placement) float64 {
	var score float64

	if isSuspicious(p.Domain) {
		score += suspiciousBonus
		if p.Cost > 100 {
			score += suspiciousCostBonus
		}
		if p.Clicks > 50 {
			score += suspiciousClickBonus
		}
	}

	if p.Cost > 0 && p.Clicks > 10 && p.CPC() < 5 && p.Conversions == 0 {
		score += lowValueBonus
	}

	if p.CPA() > highCPAThreshold {
		score += highCPABonus
	}

	score += math.Min(p.Cost/10, maxSpendBonus)

	return score
}

func isSuspicious(domain string) bool {
	domain = strings.ToLower(domain)
	for _, re := range suspiciousPatterns {
		if re.MatchString(domain) {
			return true
		}
	}
	return false
}
