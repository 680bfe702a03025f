package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Retry and backoff constants. The sync engine has its own outer
// retry via trigger re-evaluation, so the inner budget stays small.
const (
	maxRetries     = 3
	baseBackoff    = 1 * time.Second
	maxBackoff     = 15 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "lawdesk/0.1"

	restPrefix    = "/rest/v1/"
	storagePrefix = "/storage/v1/object/"
)

// Client is an HTTP client for the lawdesk backend. It handles
// request construction, service-key authentication, retry with
// exponential backoff, and error classification.
type Client struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
	logger     *slog.Logger

	// sleepFunc is called to wait between retries. Defaults to
	// timeSleep. Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a backend client. baseURL is the project root,
// e.g. "https://api.example.com"; bucket names the object-storage
// bucket holding document blobs.
func NewClient(baseURL, serviceKey, bucket string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		httpClient: httpClient,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// Do executes an HTTP request against the backend. The path is
// appended to the client's base URL. Retryable statuses and network
// errors are retried with backoff; other failures return an
// *APIError wrapping a sentinel. The caller closes the response body
// on success.
func (c *Client) Do(ctx context.Context, method, path string, headers http.Header, body []byte) (*http.Response, error) {
	reqURL := c.baseURL + path

	var attempt int
	for {
		resp, err := c.doOnce(ctx, method, reqURL, headers, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("remote: request canceled: %w", ctx.Err())
			}

			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("remote: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("remote: %s %s failed after %d retries: %w", method, path, maxRetries, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("remote: request canceled: %w", err)
			}

			attempt++

			continue
		}

		sentinel, eb := classifyBody(classifyStatus(resp.StatusCode), errBody)
		msg := eb.Message
		if msg == "" {
			msg = string(errBody)
		}

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       eb.Code,
			Message:    msg,
			Err:        sentinel,
		}
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, reqURL string, headers http.Header, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("User-Agent", userAgent)

	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// Ping checks backend reachability. Any HTTP response, including an
// auth rejection, proves the network path works; only transport
// errors count as unreachable.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.doOnce(ctx, http.MethodHead, c.baseURL+restPrefix, nil, nil)
	if err != nil {
		return fmt.Errorf("remote: ping: %w", err)
	}
	resp.Body.Close()

	return nil
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1)
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is
// canceled. It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// escapePath URL-escapes each segment of a storage path while keeping
// the separators.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
