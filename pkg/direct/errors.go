package direct

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrRateLimited means the account ran out of API points or concurrent
// slots. Retry later.
var ErrRateLimited = errors.New("direct: rate limited")

// Error codes the API uses for quota exhaustion
var rateLimitCodes = map[int]bool{
	56:  true, // request limit exceeded
	152: true, // not enough points
	506: true, // too many concurrent requests
}

type APIError struct {
	StatusCode int
	Code       int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("direct: API error %d: %s %s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("direct: API error: status code %d", e.StatusCode)
}

type errorEnvelope struct {
	Error *struct {
		RequestID   string      `json:"request_id"`
		ErrorCode   json.Number `json:"error_code"`
		ErrorString string      `json:"error_string"`
		ErrorDetail string      `json:"error_detail"`
	} `json:"error"`
}

// parseAPIError turns an error body into ErrRateLimited or *APIError. It
// returns nil when the body carries no error object and the status is 2xx.
func parseAPIError(statusCode int, body []byte) error {
	if statusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		code, _ := env.Error.ErrorCode.Int64()
		if rateLimitCodes[int(code)] {
			return fmt.Errorf("%w: %s", ErrRateLimited, env.Error.ErrorString)
		}
		return &APIError{
			StatusCode: statusCode,
			Code:       int(code),
			Message:    env.Error.ErrorString,
			Detail:     env.Error.ErrorDetail,
		}
	}

	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	return &APIError{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
}

// retryable reports whether another attempt may succeed
func retryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
