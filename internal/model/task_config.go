package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TaskConfig is the typed filter configuration of a Task. A nil bound means
// no constraint on that metric.
type TaskConfig struct {
	Keywords           []string `json:"keywords,omitempty"`
	Exceptions         []string `json:"exceptions,omitempty"`
	ProtectConversions bool     `json:"protect_conversions,omitempty"`

	MinImpressions *float64 `json:"min_impressions,omitempty"`
	MaxImpressions *float64 `json:"max_impressions,omitempty"`
	MinClicks      *float64 `json:"min_clicks,omitempty"`
	MaxClicks      *float64 `json:"max_clicks,omitempty"`
	MinCost        *float64 `json:"min_cost,omitempty"`
	MaxCost        *float64 `json:"max_cost,omitempty"`
	MinCTR         *float64 `json:"min_ctr,omitempty"`
	MaxCTR         *float64 `json:"max_ctr,omitempty"`
	MinCPC         *float64 `json:"min_cpc,omitempty"`
	MaxCPC         *float64 `json:"max_cpc,omitempty"`
	MinCPA         *float64 `json:"min_cpa,omitempty"`
	MaxCPA         *float64 `json:"max_cpa,omitempty"`
	MinConversions *float64 `json:"min_conversions,omitempty"`
	MaxConversions *float64 `json:"max_conversions,omitempty"`
}

// ParseTaskConfig decodes a stored configuration, rejecting unknown keys
func ParseTaskConfig(raw []byte) (TaskConfig, error) {
	var cfg TaskConfig
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return TaskConfig{}, fmt.Errorf("invalid task config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return TaskConfig{}, err
	}
	return cfg, nil
}

// Validate checks that every min bound is not above its max bound
func (c TaskConfig) Validate() error {
	pairs := []struct {
		name     string
		min, max *float64
	}{
		{"impressions", c.MinImpressions, c.MaxImpressions},
		{"clicks", c.MinClicks, c.MaxClicks},
		{"cost", c.MinCost, c.MaxCost},
		{"ctr", c.MinCTR, c.MaxCTR},
		{"cpc", c.MinCPC, c.MaxCPC},
		{"cpa", c.MinCPA, c.MaxCPA},
		{"conversions", c.MinConversions, c.MaxConversions},
	}
	for _, p := range pairs {
		if p.min != nil && p.max != nil && *p.min > *p.max {
			return fmt.Errorf("invalid task config: min_%s %v exceeds max_%s %v", p.name, *p.min, p.name, *p.max)
		}
	}
	return nil
}

// Float returns a pointer to v, handy for building configs
func Float(v float64) *float64 {
	return &v
}
