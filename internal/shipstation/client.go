// Package shipstation is a resilient client for the ShipStation v1 API.
package shipstation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/metscube/shipsync/internal/config"
	"github.com/metscube/shipsync/internal/logging"
	"github.com/metscube/shipsync/internal/metrics"
)

const retryJitterMax = 200 * time.Millisecond

// APIError is a terminal API failure after retries were exhausted or a
// non-retryable status was returned.
type APIError struct {
	StatusCode int
	Attempts   int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("shipstation api: status %d after %d attempt(s): %s", e.StatusCode, e.Attempts, e.Message)
	}
	return fmt.Sprintf("shipstation api: %s after %d attempt(s)", e.Message, e.Attempts)
}

// Result carries a successful response. Body is the raw response; Data
// is non-nil only when the body parsed as JSON. Non-JSON bodies are a
// logged anomaly, not a failure.
type Result struct {
	StatusCode int
	Body       []byte
	Data       map[string]json.RawMessage
	Attempts   int
}

// Client issues rate-limited, retried HTTP calls.
type Client struct {
	cfg     config.APIConfig
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a ShipStation client from configuration.
func New(cfg config.APIConfig) *Client {
	spacing := cfg.RequestSpacing
	if spacing <= 0 {
		spacing = 500 * time.Millisecond
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Every(spacing), 1),
		log:     logging.Component("shipstation"),
	}
}

// Get performs a GET against path with the given query parameters,
// applying the retry policy: transport errors, 429 and 5xx are retried
// with exponential backoff and jitter; any other non-200 status is
// terminal for the call.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Result, error) {
	reqURL := c.cfg.BaseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var lastStatus int
	var lastErr error
	attempts := 0
	errKind := "transient_exhausted"

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay(attempt - 1)
			c.log.Info("retrying api call",
				"attempt", attempt+1,
				"max_retries", c.cfg.MaxRetries,
				"delay", delay.String(),
				"last_status", lastStatus,
			)
			if m := metrics.Get(); m != nil {
				m.IncAPIRetries()
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		attempts = attempt + 1
		result, retryable, err := c.do(ctx, reqURL)
		if err == nil {
			result.Attempts = attempts
			return result, nil
		}
		lastErr = err
		if apiErr, ok := err.(*APIError); ok {
			lastStatus = apiErr.StatusCode
		}
		if !retryable {
			errKind = "permanent"
			break
		}
	}

	if m := metrics.Get(); m != nil {
		m.IncAPIErrors(errKind)
	}
	if apiErr, ok := lastErr.(*APIError); ok {
		apiErr.Attempts = attempts
		return nil, apiErr
	}
	return nil, &APIError{Attempts: attempts, Message: lastErr.Error()}
}

// do issues a single request. The bool reports whether a failure is
// retryable.
func (c *Client) do(ctx context.Context, reqURL string) (*Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.SetBasicAuth(c.cfg.APIKey, c.cfg.APISecret)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, &APIError{StatusCode: resp.StatusCode, Message: "read body: " + err.Error()}
	}

	if resp.StatusCode == http.StatusOK {
		result := &Result{StatusCode: resp.StatusCode, Body: body}
		var parsed map[string]json.RawMessage
		if err := json.Unmarshal(body, &parsed); err != nil {
			c.log.Warn("response is not a json object", "url", truncate(reqURL, 100))
		} else {
			result.Data = parsed
		}
		return result, false, nil
	}

	c.log.Warn("api returned non-200 status",
		"url", truncate(reqURL, 100),
		"status", resp.StatusCode,
	)

	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return nil, retryable, &APIError{
		StatusCode: resp.StatusCode,
		Message:    truncate(string(body), 200),
	}
}

// retryDelay computes base * 2^attempt plus up to 200ms of jitter.
func (c *Client) retryDelay(attempt int) time.Duration {
	base := c.cfg.RetryBaseDelay
	if base <= 0 {
		base = time.Second
	}
	delay := base << uint(attempt)
	jitter := time.Duration(rand.Int63n(int64(retryJitterMax)))
	return delay + jitter
}

// ListShipments fetches one page of shipments created in [since, until].
// The page's shape is validated before it is returned.
func (c *Client) ListShipments(ctx context.Context, since, until time.Time, page int) (*ShipmentsPage, error) {
	params := url.Values{}
	params.Set("createDateStart", since.UTC().Format("2006-01-02 15:04:05"))
	params.Set("createDateEnd", until.UTC().Format("2006-01-02 15:04:05"))
	params.Set("page", strconv.Itoa(page))
	params.Set("pageSize", strconv.Itoa(c.cfg.PageSize))
	params.Set("includeShipmentItems", "true")
	params.Set("sortBy", "CreateDate")
	params.Set("sortDir", "ASC")

	result, err := c.Get(ctx, "/shipments", params)
	if err != nil {
		return nil, err
	}

	if v := ValidateShape(result, ShapeShipments); !v.Valid {
		// Some API deployments answer list calls with a bare array
		// instead of the paged envelope. Accept it as a single page.
		if av := ValidateShape(result, ShapeArray); av.Valid {
			var records []ShipmentRecord
			if err := json.Unmarshal(result.Body, &records); err != nil {
				return nil, fmt.Errorf("decode shipments array: %w", err)
			}
			c.log.Info("list response was a bare array", "count", len(records))
			return &ShipmentsPage{
				Shipments: records,
				Total:     len(records),
				Page:      page,
				Pages:     page,
			}, nil
		}
		return nil, &APIError{
			StatusCode: result.StatusCode,
			Attempts:   result.Attempts,
			Message:    "unexpected response shape: " + v.Reason,
		}
	}

	var pageData ShipmentsPage
	if err := json.Unmarshal(result.Body, &pageData); err != nil {
		return nil, fmt.Errorf("decode shipments page: %w", err)
	}
	return &pageData, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
