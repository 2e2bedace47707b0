package testevents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/periodrank/pkg/logger"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// PostPGN posts a PGN log as the request body.
func (c *HTTPClient) PostPGN(ctx context.Context, url, source string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-chess-pgn")
	return c.client.Do(req)
}

// getJSON performs a GET and decodes a 200 response into v.
func (c *HTTPClient) getJSON(ctx context.Context, url string, v any) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, v)
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// submitPeriods posts periods one by one in generation order. Ratings depend
// on the order periods are applied, so there is no submitter pool here.
func submitPeriods(ctx context.Context, config *Config, periods []Period, stats *Stats) error {
	logger.Get().Info(ctx, "submitting periods", logger.Int("count", len(periods)))
	client := newHTTPClient(config.Timeout)

	for _, p := range periods {
		result, err := submitSinglePeriod(ctx, client, config.BaseURL+"/periods/"+p.ID, p, stats)
		if err != nil {
			stats.PeriodsFailed++
			return fmt.Errorf("period %s: %w", p.ID, err)
		}
		switch result {
		case "accepted":
			stats.PeriodsAccepted++
		case "duplicate":
			stats.PeriodsDuplicate++
		}
		if config.Verbose {
			logger.Get().Debug(ctx, "period submitted",
				logger.String("periodID", p.ID),
				logger.String("result", result))
		}
	}

	logger.Get().Info(ctx, "period submission completed",
		logger.Int("accepted", stats.PeriodsAccepted),
		logger.Int("duplicate", stats.PeriodsDuplicate),
		logger.Int("retried", stats.PeriodsRetried))
	return nil
}

// submitSinglePeriod posts one period, backing off while the queue is full.
func submitSinglePeriod(ctx context.Context, client *HTTPClient, url string, p Period, stats *Stats) (string, error) {
	for attempt := 1; attempt <= MaxSubmitAttempts; attempt++ {
		resp, err := client.PostPGN(ctx, url, p.Source)
		if err != nil {
			return "", err
		}
		body, err := readResponseBody(resp)
		if err != nil {
			return "", fmt.Errorf("failed to read response: %w", err)
		}

		switch resp.StatusCode {
		case StatusAccepted:
			return "accepted", nil
		case StatusOK:
			var ack AckResponse
			if err := json.Unmarshal(body, &ack); err == nil && !ack.Duplicate {
				return "accepted", nil
			}
			return "duplicate", nil
		case StatusTooManyRequests:
			stats.PeriodsRetried++
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(RetryBackoff * time.Duration(attempt)):
			}
		default:
			return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
	}
	return "", fmt.Errorf("still rejected after %d attempts", MaxSubmitAttempts)
}
