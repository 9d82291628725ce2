package direct

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"rsyaclean/internal/model"
)

const dateLayout = "2006-01-02"

// ReportStatus is the state a report request came back in
type ReportStatus string

const (
	ReportReady   ReportStatus = "ready"
	ReportPending ReportStatus = "pending"
)

var reportFields = []string{"CampaignId", "Placement", "Impressions", "Clicks", "Cost", "Conversions"}

// reportNamespace scopes deterministic report names
var reportNamespace = uuid.MustParse("8f0d3c1e-5b7a-4f2e-9c61-2a4b7d9e0f13")

type ReportRequest struct {
	CampaignIDs []int64
	DateFrom    time.Time
	DateTo      time.Time
	// ReportName must be stable for identical parameters so a pending
	// report can be polled. Derived when empty.
	ReportName string
}

type Report struct {
	Status     ReportStatus
	Name       string
	Placements []model.Placement
	// Raw is the TSV body of a ready report
	Raw []byte
	// RetryIn is the server's hint for a pending report
	RetryIn time.Duration
}

// ReportName derives a stable name from the campaign set and date range
func ReportName(campaignIDs []int64, from, to time.Time) string {
	ids := slices.Clone(campaignIDs)
	slices.Sort(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}

	key := strings.Join(parts, ",") + "|" + from.Format(dateLayout) + "|" + to.Format(dateLayout)
	return "rsya-" + uuid.NewSHA1(reportNamespace, []byte(key)).String()
}

type reportBody struct {
	Params reportParams `json:"params"`
}

type reportParams struct {
	SelectionCriteria selectionCriteria `json:"SelectionCriteria"`
	FieldNames        []string          `json:"FieldNames"`
	ReportName        string            `json:"ReportName"`
	ReportType        string            `json:"ReportType"`
	DateRangeType     string            `json:"DateRangeType"`
	Format            string            `json:"Format"`
	IncludeVAT        string            `json:"IncludeVAT"`
}

type selectionCriteria struct {
	DateFrom string         `json:"DateFrom"`
	DateTo   string         `json:"DateTo"`
	Filter   []reportFilter `json:"Filter"`
}

type reportFilter struct {
	Field    string   `json:"Field"`
	Operator string   `json:"Operator"`
	Values   []string `json:"Values"`
}

// FetchReport issues one report request. A ready report is parsed; a report
// still being generated comes back with Status pending and no error.
// Quota exhaustion returns ErrRateLimited, any other failure *APIError.
func (c *Client) FetchReport(ctx context.Context, creds Credentials, req ReportRequest) (*Report, error) {
	if req.ReportName == "" {
		req.ReportName = ReportName(req.CampaignIDs, req.DateFrom, req.DateTo)
	}

	ids := make([]string, len(req.CampaignIDs))
	for i, id := range req.CampaignIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}

	payload := reportBody{Params: reportParams{
		SelectionCriteria: selectionCriteria{
			DateFrom: req.DateFrom.Format(dateLayout),
			DateTo:   req.DateTo.Format(dateLayout),
			Filter:   []reportFilter{{Field: "CampaignId", Operator: "IN", Values: ids}},
		},
		FieldNames:    reportFields,
		ReportName:    req.ReportName,
		ReportType:    "CUSTOM_REPORT",
		DateRangeType: "CUSTOM_DATE",
		Format:        "TSV",
		IncludeVAT:    "YES",
	}}

	resp, err := c.post(ctx, creds, "reports", payload, map[string]string{
		"processingMode":      "auto",
		"returnMoneyInMicros": "false",
		"skipReportHeader":    "true",
		"skipReportSummary":   "true",
	})
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		placements, err := ParseReportTSV(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("report %s: %w", req.ReportName, err)
		}
		return &Report{
			Status:     ReportReady,
			Name:       req.ReportName,
			Placements: placements,
			Raw:        resp.Body,
		}, nil

	case http.StatusCreated, http.StatusAccepted:
		retryIn, _ := strconv.Atoi(resp.Header.Get("retryIn"))
		return &Report{
			Status:  ReportPending,
			Name:    req.ReportName,
			RetryIn: time.Duration(retryIn) * time.Second,
		}, nil
	}

	if apiErr := parseAPIError(resp.StatusCode, resp.Body); apiErr != nil {
		return nil, apiErr
	}
	return nil, &APIError{StatusCode: resp.StatusCode}
}

// FetchReportWithRetry retries rate limiting and transient failures with
// exponential backoff. Pending reports are returned at once.
func (c *Client) FetchReportWithRetry(ctx context.Context, creds Credentials, req ReportRequest) (*Report, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		report, err := c.FetchReport(ctx, creds, req)
		if err == nil {
			return report, nil
		}
		lastErr = err

		if !retryable(err) || attempt == c.maxAttempts {
			break
		}

		delay := Backoff(attempt, c.backoffInitial, c.backoffMax)
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Report request failed, backing off")

		if err := c.sleep(ctx, delay); err != nil {
			return nil, errors.Join(lastErr, err)
		}
	}

	return nil, lastErr
}

// Backoff returns the wait before the next attempt: initial, 2×initial, …
// capped at maxDelay
func Backoff(attempt int, initial, maxDelay time.Duration) time.Duration {
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}
