package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"
)

// Default retry configuration for the HTTP completion client.
const (
	defaultMaxRetries = 2
	defaultBaseDelay  = 500 * time.Millisecond
	defaultMaxDelay   = 5 * time.Second
	maxResponseBytes  = 1 << 20 // 1 MiB
)

// retryableStatusCodes are HTTP status codes worth retrying.
var retryableStatusCodes = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// HTTPClient talks to a text-completion endpoint over HTTP with retry on
// transient failures. The wire contract is a minimal JSON POST:
//
//	request:  {"prompt": "..."}
//	response: {"text": "..."}
//
// Any error (connection, status, decode) is returned as-is; callers are
// required to treat it as a fallback trigger, never a pipeline failure.
type HTTPClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithAPIKey sets a bearer token sent on every request.
func WithAPIKey(key string) HTTPOption {
	return func(c *HTTPClient) { c.apiKey = key }
}

// WithMaxRetries sets the retry count (not counting the initial attempt).
func WithMaxRetries(n int) HTTPOption {
	return func(c *HTTPClient) { c.maxRetries = n }
}

// WithHTTPClient replaces the underlying http.Client. The caller owns its
// timeout configuration.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// NewHTTPClient creates an HTTP completion client for the given endpoint.
func NewHTTPClient(url string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		url:        url,
		httpClient: &http.Client{Timeout: DefaultProposeTimeout},
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type proposeRequest struct {
	Prompt string `json:"prompt"`
}

type proposeResponse struct {
	Text string `json:"text"`
}

// Propose sends the prompt and returns the raw completion text. The
// request context controls overall cancellation; transient failures are
// retried with exponential backoff and full jitter.
func (c *HTTPClient) Propose(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(proposeRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.backoff(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if retryableStatusCodes[resp.StatusCode] {
			lastErr = fmt.Errorf("HTTP %d from completion endpoint", resp.StatusCode)
			resp.Body.Close()
			continue
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		if readErr != nil {
			return "", fmt.Errorf("read completion response: %w", readErr)
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("HTTP %d from completion endpoint", resp.StatusCode)
		}

		var pr proposeResponse
		if err := json.Unmarshal(data, &pr); err != nil {
			return "", fmt.Errorf("decode completion response: %w", err)
		}
		return pr.Text, nil
	}

	return "", fmt.Errorf("%w (after %d retries)", lastErr, c.maxRetries)
}

// backoff returns the delay for the given attempt (1-indexed): exponential
// with full jitter, capped at maxDelay.
func (c *HTTPClient) backoff(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
			break
		}
	}
	if delay > 0 {
		delay = time.Duration(rand.Int64N(int64(delay)))
	}
	return delay
}
