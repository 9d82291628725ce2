// Package exclusion computes campaign exclusion lists: normalization,
// validation, capacity-aware reconciliation and rotation planning.
package exclusion

import (
	"strings"
)

// Limits bound the size of a campaign exclusion list
type Limits struct {
	// Soft is the operating ceiling; slots above it are rotation headroom
	Soft int
	// Hard is the platform ceiling
	Hard int
	// RotationFraction is the share of the list evicted by one rotation
	RotationFraction float64
}

// DefaultLimits mirrors the platform's 1000 entry ceiling
func DefaultLimits() Limits {
	return Limits{Soft: 950, Hard: 1000, RotationFraction: 0.2}
}

// Result is the outcome of one reconciliation
type Result struct {
	// NewList is the full list to write back. Equal to the normalized current
	// list when nothing is added.
	NewList []string
	// ToAdd are the candidates that fit into the free slots
	ToAdd []string
	// AlreadyExcluded are candidates the campaign already blocks
	AlreadyExcluded []string
	// Deferred are valid candidates that did not fit
	Deferred []string
	Rejected []Rejection
	// AtLimit is set when no slot was available
	AtLimit bool
	// MustRotate is set when the current list reached the soft ceiling
	MustRotate bool
}

// NeedsWrite reports whether the exclusion store must be updated
func (r Result) NeedsWrite() bool {
	return len(r.ToAdd) > 0
}

// Normalize lower-cases, trims and deduplicates domains, keeping first-seen order
func Normalize(domains []string) []string {
	seen := make(map[string]struct{}, len(domains))
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

// Set builds a lookup of normalized domains
func Set(domains []string) map[string]struct{} {
	set := make(map[string]struct{}, len(domains))
	for _, d := range Normalize(domains) {
		set[d] = struct{}{}
	}
	return set
}

// Reconcile merges candidates into the current exclusion list without
// exceeding the soft ceiling. Candidate order is preserved, so callers pass
// them most expensive first.
func Reconcile(current, candidates []string, limits Limits) Result {
	current = Normalize(current)
	currentSet := make(map[string]struct{}, len(current))
	for _, d := range current {
		currentSet[d] = struct{}{}
	}

	var result Result
	var fresh []string
	for _, d := range normalizeCandidates(candidates) {
		if _, ok := currentSet[d]; ok {
			result.AlreadyExcluded = append(result.AlreadyExcluded, d)
			continue
		}
		fresh = append(fresh, d)
	}

	valid, rejected := FilterValid(fresh)
	result.Rejected = rejected
	result.MustRotate = len(current) >= limits.Soft

	available := limits.Soft - len(current)
	if hardRoom := limits.Hard - len(current); hardRoom < available {
		available = hardRoom
	}
	if available < 0 {
		available = 0
	}

	if available == 0 {
		result.AtLimit = true
		result.Deferred = valid
		result.NewList = current
		return result
	}

	take := min(available, len(valid))
	result.ToAdd = valid[:take]
	result.Deferred = valid[take:]

	newList := make([]string, 0, len(current)+take)
	newList = append(newList, current...)
	newList = append(newList, result.ToAdd...)
	result.NewList = newList

	return result
}

// normalizeCandidates is Normalize without dropping empty entries, so they
// reach validation and get reported
func normalizeCandidates(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, d := range candidates {
		d = strings.ToLower(strings.TrimSpace(d))
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
