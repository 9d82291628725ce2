package rules

import (
	"strings"

	"rsyaclean/internal/model"
)

// Reason classifies why the trash heuristic flagged a placement
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonTrashDomain          Reason = "trash_domain"
	ReasonHighCTRNoConversions Reason = "high_ctr_no_conversions"
	ReasonHighCPA              Reason = "high_cpa"
)

// HighCTRThreshold is the CTR percentage above which zero-conversion traffic is suspicious
const HighCTRThreshold = 2.0

var trashPatterns = []string{
	".com",
	".dsp",
	"dsp.",
	"vpn",
	"unknown",
	"undefined",
	"(not set)",
}

// knownGoodDomains are exact matches never flagged as trash
var knownGoodDomains = map[string]struct{}{
	"yandex.ru":     {},
	"ya.ru":         {},
	"dzen.ru":       {},
	"mail.ru":       {},
	"vk.com":        {},
	"ok.ru":         {},
	"avito.ru":      {},
	"rambler.ru":    {},
	"gismeteo.ru":   {},
	"youtube.com":   {},
	"google.com":    {},
	"wikipedia.org": {},
	"kinopoisk.ru":  {},
	"auto.ru":       {},
	"ozon.ru":       {},
}

// Verdict is the result of the trash heuristic
type Verdict struct {
	Block  bool   `json:"block"`
	Reason Reason `json:"reason,omitempty"`
}

// AnalyzeTrash applies the trash-domain heuristic. targetCPA <= 0 disables
// the high CPA rule.
func AnalyzeTrash(p model.Placement, targetCPA float64) Verdict {
	domain := strings.ToLower(strings.TrimSpace(p.Domain))

	if isTrashDomain(domain) {
		return Verdict{Block: true, Reason: ReasonTrashDomain}
	}

	if p.CTR() > HighCTRThreshold && p.Conversions == 0 {
		return Verdict{Block: true, Reason: ReasonHighCTRNoConversions}
	}

	if targetCPA > 0 && p.Conversions > 0 && p.CPA() > targetCPA {
		return Verdict{Block: true, Reason: ReasonHighCPA}
	}

	return Verdict{}
}

func isTrashDomain(domain string) bool {
	if _, ok := knownGoodDomains[domain]; ok {
		return false
	}
	for _, pattern := range trashPatterns {
		if strings.Contains(domain, pattern) {
			return true
		}
	}
	return false
}
