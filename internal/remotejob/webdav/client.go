package webdav

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

// Retry tuning: base 1s, factor 2x, max 60s, ±25% jitter, max 5 retries.
const (
	maxRetries       = 5
	baseBackoff      = 1 * time.Second
	maxBackoff       = 60 * time.Second
	backoffFactor    = 2.0
	jitterFraction   = 0.25
	defaultUserAgent = "foldersync/0.1"
)

const propfindBody = `<?xml version="1.0" encoding="utf-8" ?>` +
	`<D:propfind xmlns:D="DAV:"><D:prop><D:resourcetype/><D:getetag/></D:prop></D:propfind>`

// TokenSource provides OAuth2 bearer tokens for WebDAV servers secured with
// bearer auth (an OAuth-protected gateway, or an app password already
// exchanged for a token via internal/credstore). Defined at the consumer
// per "accept interfaces, return structs". A
// nil TokenSource means the server relies on the *http.Client's transport
// for auth (HTTP basic auth embedded in the endpoint URL, a client TLS
// cert, or no auth at all).
type TokenSource interface {
	Token() (string, error)
}

// httpClient is the low-level HTTP client for a WebDAV server: request
// construction, authentication, retry with exponential backoff, and
// response classification. It has no knowledge of remotejob's operation
// contract — that lives in factory.go.
type httpClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger

	// sleepFunc is called to wait between retries. Tests override it to
	// avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

func newHTTPClient(baseURL string, hc *http.Client, token TokenSource, logger *slog.Logger) (*httpClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("webdav: parsing base url %q: %w", baseURL, err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	if hc == nil {
		hc = http.DefaultClient
	}

	return &httpClient{
		baseURL:    parsed,
		httpClient: hc,
		token:      token,
		logger:     logger,
		sleepFunc:  timeSleep,
	}, nil
}

// resolve builds the absolute request URL for a canonical engine path.
func (c *httpClient) resolve(path string) *url.URL {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	return &u
}

// resolvedPath is the server-side path a canonical engine path maps to,
// including the base URL's own path prefix (e.g. a WebDAV mount point like
// /remote.php/dav/files/me). Response hrefs are always expressed in this
// space, not the engine's, so multistatus parsing must compare against it
// rather than against the bare engine path.
func (c *httpClient) resolvedPath(path string) string {
	return c.resolve(path).Path
}

// request describes one HTTP call before retry/backoff wraps it.
type request struct {
	method  string
	path    string
	headers http.Header
	body    []byte // kept in full so retries can resend it
}

// do executes req with retry on transient network and HTTP errors,
// returning the final response body and status code. The caller
// classifies the status code into a remotejob sentinel.
func (c *httpClient) do(ctx context.Context, req request) (*http.Response, []byte, error) {
	var attempt int

	for {
		resp, err := c.doOnce(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, fmt.Errorf("webdav: request canceled: %w", ctx.Err())
			}

			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", req.method),
					slog.String("path", req.path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, nil, fmt.Errorf("webdav: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, nil, fmt.Errorf("webdav: %s %s failed after %d retries: %w", req.method, req.path, maxRetries, err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			return nil, nil, fmt.Errorf("webdav: reading response body: %w", readErr)
		}

		if isRetryableStatus(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", req.method),
				slog.String("path", req.path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, nil, fmt.Errorf("webdav: request canceled: %w", sleepErr)
			}

			attempt++

			continue
		}

		return resp, body, nil
	}
}

func (c *httpClient) doOnce(ctx context.Context, req request) (*http.Response, error) {
	target := c.resolve(req.path)

	var bodyReader io.Reader
	if req.body != nil {
		bodyReader = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("User-Agent", defaultUserAgent)

	for key, vals := range req.headers {
		for _, v := range vals {
			httpReq.Header.Add(key, v)
		}
	}

	if c.token != nil {
		tok, err := c.token.Token()
		if err != nil {
			return nil, fmt.Errorf("obtaining token: %w", err)
		}

		httpReq.Header.Set("Authorization", "Bearer "+tok)
	}

	c.logger.Debug("sending request",
		slog.String("method", req.method),
		slog.String("url", target.String()),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("received response",
		slog.String("method", req.method),
		slog.String("url", target.String()),
		slog.Int("status", resp.StatusCode),
	)

	return resp, nil
}

// propfind issues a PROPFIND request for path at the given depth ("0" or
// "1"), requesting resourcetype and getetag for each entry.
func (c *httpClient) propfind(ctx context.Context, path, depth string) (*http.Response, []byte, error) {
	headers := http.Header{
		"Depth":        []string{depth},
		"Content-Type": []string{"text/xml; charset=utf-8"},
	}

	return c.do(ctx, request{method: "PROPFIND", path: path, headers: headers, body: []byte(propfindBody)})
}

// retryBackoff honors a 429 Retry-After header before falling back to
// calculated exponential backoff.
func (c *httpClient) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

func (c *httpClient) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

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
