// Package direct is a client for the Yandex Direct API v5: placement reports
// and campaign exclusion lists.
package direct

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Credentials identify the advertiser account a call acts on
type Credentials struct {
	Token       string `json:"token"`
	ClientLogin string `json:"client_login,omitempty"`
}

// Options configure a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Language          string
	MaxAttempts       int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
}

const (
	DefaultBaseURL        = "https://api.direct.yandex.com/json/v5"
	DefaultTimeout        = 30 * time.Second
	DefaultMaxAttempts    = 5
	DefaultBackoffInitial = 1 * time.Second
	DefaultBackoffMax     = 30 * time.Second
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	language   string
	limiter    *rate.Limiter

	maxAttempts    int
	backoffInitial time.Duration
	backoffMax     time.Duration

	// sleep waits between retries; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Language == "" {
		opts.Language = "ru"
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BackoffInitial == 0 {
		opts.BackoffInitial = DefaultBackoffInitial
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = DefaultBackoffMax
	}

	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = max(1, int(opts.RequestsPerSecond))
	}

	log.Info().
		Str("base_url", opts.BaseURL).
		Float64("requests_per_second", opts.RequestsPerSecond).
		Dur("timeout", opts.Timeout).
		Msg("Initializing Direct API client")

	return &Client{
		httpClient:     &http.Client{Timeout: opts.Timeout},
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		language:       opts.Language,
		limiter:        rate.NewLimiter(limit, burst),
		maxAttempts:    opts.MaxAttempts,
		backoffInitial: opts.BackoffInitial,
		backoffMax:     opts.BackoffMax,
		sleep:          sleepContext,
	}
}

type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// post sends one JSON request to a service endpoint after waiting for the
// rate limiter. Non-2xx statuses are returned as a response, not an error.
func (c *Client) post(ctx context.Context, creds Credentials, service string, payload any, headers map[string]string) (*response, error) {
	requestID := uuid.NewString()
	startTime := time.Now()
	url := c.baseURL + "/" + service

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error encoding request: %w", err)
	}

	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	if wait := time.Since(waitStart); wait > 100*time.Millisecond {
		log.Debug().
			Str("request_id", requestID).
			Dur("wait_duration", wait).
			Msg("Waited for rate limit token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+creds.Token)
	req.Header.Set("Accept-Language", c.language)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if creds.ClientLogin != "" {
		req.Header.Set("Client-Login", creds.ClientLogin)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	execStart := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().
			Str("request_id", requestID).
			Err(err).
			Str("url", url).
			Dur("exec_duration", time.Since(execStart)).
			Dur("total_duration", time.Since(startTime)).
			Msg("Error executing request")
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	readStart := time.Now()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().
			Str("request_id", requestID).
			Err(err).
			Str("url", url).
			Int("status_code", resp.StatusCode).
			Msg("Error reading response body")
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	log.Debug().
		Str("request_id", requestID).
		Str("url", url).
		Int("status_code", resp.StatusCode).
		Int("response_size", len(respBody)).
		Dur("exec_duration", readStart.Sub(execStart)).
		Dur("total_duration", time.Since(startTime)).
		Msg("API request completed")

	return &response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
