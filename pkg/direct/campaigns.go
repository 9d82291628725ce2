package direct

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type campaignsRequest struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type excludedSites struct {
	Items []string `json:"Items"`
}

type campaignsGetResult struct {
	Result struct {
		Campaigns []struct {
			ID            int64          `json:"Id"`
			ExcludedSites *excludedSites `json:"ExcludedSites"`
		} `json:"Campaigns"`
	} `json:"result"`
}

type campaignUpdate struct {
	ID            int64          `json:"Id"`
	ExcludedSites *excludedSites `json:"ExcludedSites"`
}

type actionResult struct {
	ID     int64 `json:"Id"`
	Errors []struct {
		Code    int    `json:"Code"`
		Message string `json:"Message"`
		Details string `json:"Details"`
	} `json:"Errors"`
}

type campaignsUpdateResult struct {
	Result struct {
		UpdateResults []actionResult `json:"UpdateResults"`
	} `json:"result"`
}

// GetExcludedSites returns the campaign's exclusion list as stored upstream
func (c *Client) GetExcludedSites(ctx context.Context, creds Credentials, campaignID int64) ([]string, error) {
	payload := campaignsRequest{
		Method: "get",
		Params: map[string]any{
			"SelectionCriteria": map[string]any{"Ids": []int64{campaignID}},
			"FieldNames":        []string{"Id", "ExcludedSites"},
		},
	}

	resp, err := c.post(ctx, creds, "campaigns", payload, nil)
	if err != nil {
		return nil, err
	}
	if apiErr := parseAPIError(resp.StatusCode, resp.Body); apiErr != nil {
		return nil, apiErr
	}

	var result campaignsGetResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("error decoding campaigns response: %w", err)
	}

	for _, campaign := range result.Result.Campaigns {
		if campaign.ID != campaignID {
			continue
		}
		if campaign.ExcludedSites == nil {
			return []string{}, nil
		}
		return campaign.ExcludedSites.Items, nil
	}

	return nil, &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("campaign %d not found", campaignID)}
}

// SetExcludedSites replaces the whole exclusion list. An empty list clears it.
func (c *Client) SetExcludedSites(ctx context.Context, creds Credentials, campaignID int64, domains []string) error {
	update := campaignUpdate{ID: campaignID}
	if len(domains) > 0 {
		update.ExcludedSites = &excludedSites{Items: domains}
	}

	payload := campaignsRequest{
		Method: "update",
		Params: map[string]any{"Campaigns": []campaignUpdate{update}},
	}

	resp, err := c.post(ctx, creds, "campaigns", payload, nil)
	if err != nil {
		return err
	}
	if apiErr := parseAPIError(resp.StatusCode, resp.Body); apiErr != nil {
		return apiErr
	}

	var result campaignsUpdateResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return fmt.Errorf("error decoding campaigns response: %w", err)
	}

	for _, r := range result.Result.UpdateResults {
		if len(r.Errors) == 0 {
			continue
		}
		msgs := make([]string, len(r.Errors))
		for i, e := range r.Errors {
			msgs[i] = strings.TrimSpace(e.Message + " " + e.Details)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       r.Errors[0].Code,
			Message:    strings.Join(msgs, "; "),
		}
	}

	return nil
}
