// Package classifyclient calls the classification service over HTTP.
package classifyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"audiotox-go/internal/types"
)

// Client is a /predict client with an explicit per-call timeout. It never
// retries; retry policy belongs to callers.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a client for the service at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Classify sends text to /predict.
func (c *Client) Classify(ctx context.Context, text string) (types.Verdict, error) {
	data, err := json.Marshal(map[string]string{"comment": text})
	if err != nil {
		return types.Verdict{}, fmt.Errorf("%w: encode request: %v", types.ErrClassifierProtocol, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(data))
	if err != nil {
		return types.Verdict{}, fmt.Errorf("%w: %v", types.ErrClassifierUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.Verdict{}, fmt.Errorf("%w: %v", types.ErrClassifierUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Verdict{}, fmt.Errorf("%w: read body: %v", types.ErrClassifierUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.Verdict{}, statusError(resp.StatusCode, body)
	}

	var out types.PredictResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return types.Verdict{}, fmt.Errorf("%w: json decode error: %v body=%s", types.ErrClassifierProtocol, err, string(body))
	}
	if !out.Label.Valid() {
		return types.Verdict{}, fmt.Errorf("%w: unknown label %q", types.ErrClassifierProtocol, out.Label)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return types.Verdict{}, fmt.Errorf("%w: confidence %v outside [0,1]", types.ErrClassifierProtocol, out.Confidence)
	}
	return types.Verdict{Label: out.Label, Confidence: out.Confidence}, nil
}

// statusError maps overload and gateway statuses to an unreachable service;
// anything else means the service answered but failed to honor the contract.
func statusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d: %s", types.ErrClassifierUnreachable, code, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", types.ErrClassifierProtocol, code, msg)
	}
}

// Ping checks /healthz once.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrClassifierUnreachable, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrClassifierUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: healthz status %d", types.ErrClassifierUnreachable, resp.StatusCode)
	}
	return nil
}

// WaitReady pings the service with exponential backoff until it answers,
// maxWait elapses or ctx ends.
func (c *Client) WaitReady(ctx context.Context, maxWait time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = maxWait

	var lastErr error
	op := func() error {
		lastErr = c.Ping(ctx)
		return lastErr
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		if errors.Is(lastErr, types.ErrClassifierUnreachable) {
			return lastErr
		}
		return fmt.Errorf("%w: %v", types.ErrClassifierUnreachable, lastErr)
	}
	return nil
}
