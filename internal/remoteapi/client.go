package remoteapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// DefaultBaseURL is the production endpoint, overridden in tests and by
// RemoteConfig.BaseURL.
const DefaultBaseURL = "https://api.example-cloud.invalid/v1"

const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "syncagent/0.1"

	// largeBodyBackoffFloor is the minimum first-attempt backoff applied
	// to requests carrying a body over the configured large-file
	// threshold: retrying a half-sent multi-megabyte upload after a
	// 1-second pause just re-triggers the same transient failure.
	largeBodyBackoffFloor = 5 * time.Second
)

// Client is an HTTP client for the remote drive API. It handles request
// construction, authentication via an AuthProvider, retry with
// exponential backoff, and error classification.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       AuthProvider
	logger     *slog.Logger

	// largeBodyThreshold is the byte size at or above which backoff uses
	// largeBodyBackoffFloor as its base instead of baseBackoff.
	largeBodyThreshold int64

	// sleepFunc waits between retries. Overridden in tests.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a remote API client. httpClient may be nil (a
// default client is created, with auth.Jar() attached as its cookie
// jar). largeBodyThreshold is typically config.TransfersConfig's
// LargeFileThresholdMiB converted to bytes.
func NewClient(baseURL string, httpClient *http.Client, auth AuthProvider, largeBodyThreshold int64, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = &http.Client{Jar: auth.Jar()}
	} else if httpClient.Jar == nil {
		httpClient.Jar = auth.Jar()
	}

	return &Client{
		baseURL:            baseURL,
		httpClient:         httpClient,
		auth:               auth,
		largeBodyThreshold: largeBodyThreshold,
		logger:             logger,
		sleepFunc:          timeSleep,
	}
}

// Do executes an authenticated request with retry on transient failure.
// bodySize is the Content-Length of body (0 if none), used to scale the
// backoff floor for large uploads. The caller must close the response
// body on success.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, bodySize int64) (*http.Response, error) {
	return c.doRetry(ctx, method, path, body, bodySize)
}

func (c *Client) doRetry(ctx context.Context, method, path string, body io.Reader, bodySize int64) (*http.Response, error) {
	url := c.baseURL + path

	var attempt int

	for {
		if err := rewindBody(body); err != nil {
			return nil, err
		}

		resp, err := c.doOnce(ctx, method, url, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("remoteapi: request canceled: %w", ctx.Err())
			}

			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt, bodySize)
				c.logger.Warn("retrying after network error",
					slog.String("method", method), slog.String("path", path),
					slog.Int("attempt", attempt+1), slog.Duration("backoff", backoff),
					slog.String("error", err.Error()))

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("remoteapi: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("remoteapi: %s %s failed after %d retries: %w", method, path, maxRetries, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method), slog.String("path", path),
				slog.Int("status", resp.StatusCode))

			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		reqID := resp.Header.Get("X-Request-Id")

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt, bodySize)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method), slog.String("path", path),
				slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff))

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("remoteapi: request canceled: %w", err)
			}

			attempt++

			continue
		}

		return nil, c.terminalError(method, path, resp.StatusCode, reqID, errBody, attempt)
	}
}

func (c *Client) doOnce(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	if err := c.auth.Apply(req); err != nil {
		return nil, fmt.Errorf("applying auth: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *Client) terminalError(method, path string, statusCode int, reqID string, body []byte, attempt int) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		RequestID:  reqID,
		Message:    string(body),
		Err:        classifyStatus(statusCode),
	}

	if attempt > 0 {
		c.logger.Error("request failed after retries",
			slog.String("method", method), slog.String("path", path),
			slog.Int("status", statusCode), slog.Int("attempts", attempt+1))
	} else {
		c.logger.Warn("request failed",
			slog.String("method", method), slog.String("path", path),
			slog.Int("status", statusCode))
	}

	return apiErr
}

// retryBackoff returns the backoff for a retryable HTTP response,
// honoring Retry-After on 429s before falling back to calcBackoff.
func (c *Client) retryBackoff(resp *http.Response, attempt int, bodySize int64) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt, bodySize)
}

// calcBackoff computes exponential backoff with ±25% jitter, using a
// higher floor for requests whose body is at or above the configured
// large-file threshold.
func (c *Client) calcBackoff(attempt int, bodySize int64) time.Duration {
	base := baseBackoff
	if c.largeBodyThreshold > 0 && bodySize >= c.largeBodyThreshold && base < largeBodyBackoffFloor {
		base = largeBodyBackoffFloor
	}

	backoff := float64(base) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter, not a secret
	backoff += jitter

	return time.Duration(backoff)
}

func rewindBody(body io.Reader) error {
	if body == nil {
		return nil
	}

	seeker, ok := body.(io.Seeker)
	if !ok {
		return nil
	}

	_, err := seeker.Seek(0, io.SeekStart)
	return err
}

func timeSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
