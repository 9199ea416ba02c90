// internal/gateway/client.go
package gateway

import (
	"encoding/json"
	"time"

	"orderpay/internal/util"

	"github.com/go-resty/resty/v2"
)

// idempotencyKeyHeader deduplicates retried calls at the downstream services.
const idempotencyKeyHeader = "Idempotency-Key"

// ClientConfig holds the knobs shared by all downstream HTTP clients.
type ClientConfig struct {
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// newClient builds a resty client for one downstream service. Retry policy
// lives here; callers never retry on their own.
func newClient(baseURL string, cfg ClientConfig) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait)
}

// errorEnvelope is the downstream services' error body shape.
type errorEnvelope struct {
	Errors []struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"errors"`
}

// upstreamError converts a failed resty exchange into a util.UpstreamError,
// preserving the downstream error classification when the body carries one.
func upstreamError(service string, resp *resty.Response, err error) error {
	if err != nil {
		return &util.UpstreamError{Service: service, Err: err}
	}
	ue := &util.UpstreamError{Service: service, Status: resp.StatusCode()}
	var envelope errorEnvelope
	if jsonErr := json.Unmarshal(resp.Body(), &envelope); jsonErr == nil && len(envelope.Errors) > 0 {
		ue.Name = envelope.Errors[0].Name
	}
	return ue
}
