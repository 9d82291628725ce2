package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// HTTPInvoker calls a worker's batch endpoint and waits at most timeout.
// Running out of time is not a failure: the batch is queued as well.
type HTTPInvoker struct {
	client  *http.Client
	baseURL string
	token   string
	timeout time.Duration
}

func NewHTTPInvoker(baseURL, token string, timeout time.Duration) *HTTPInvoker {
	return &HTTPInvoker{
		client:  &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
	}
}

func (i *HTTPInvoker) Invoke(ctx context.Context, batchID int64) error {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/batches/%d/process", i.baseURL, batchID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	if i.token != "" {
		req.Header.Set("Authorization", "Bearer "+i.token)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			log.Debug().Int64("batchId", batchID).Msg("Worker still running after invoke timeout")
			return nil
		}
		return fmt.Errorf("invoke worker: %w", err)
	}
	defer resp.Body.Close()

	// 409 means a consumer already claimed the batch
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("invoke worker: status code %d", resp.StatusCode)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
