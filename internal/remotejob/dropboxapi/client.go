// Package dropboxapi implements remotejob.JobFactory against a
// Dropbox-style JSON API: cursor-based /list_folder for root-level
// change streaming (spec.md §6 ModeRootStreamCursor) and file revisions
// ("rev") as sync-attributes.
package dropboxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	apiBaseURL     = "https://api.dropboxapi.com/2"
	contentBaseURL = "https://content.dropboxapi.com/2"

	maxRetries         = 5
	defaultRetryDelay  = 5 * time.Second
	retryBackoffFactor = 1.2
	defaultUserAgent   = "foldersync/0.1"
)

// httpClient is the low-level Dropbox HTTP client: bearer auth via
// oauth2.TokenSource, JSON RPC calls against the api endpoint, and
// content calls (upload/download) against the separate content endpoint,
// each carrying their request payload in the Dropbox-API-Arg header
// instead of the body. Retries only on 429, honoring Retry-After,
// grounded on AbstractDropboxJobPrivate::checkIfRequestShallBeRetried/
// getRetryDelayInMilliseconds.
type httpClient struct {
	httpClient *http.Client
	token      oauth2.TokenSource
	logger     *slog.Logger
	sleepFunc  func(ctx context.Context, d time.Duration) error

	// apiBase and contentBase default to Dropbox's real endpoints; tests
	// point them at an httptest.Server instead.
	apiBase     string
	contentBase string
}

func newHTTPClient(hc *http.Client, token oauth2.TokenSource, logger *slog.Logger) *httpClient {
	if hc == nil {
		hc = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &httpClient{
		httpClient:  hc,
		token:       token,
		logger:      logger,
		sleepFunc:   timeSleep,
		apiBase:     apiBaseURL,
		contentBase: contentBaseURL,
	}
}

// rpc calls a JSON RPC endpoint (api.dropboxapi.com) with a JSON request
// body, returning the raw response body and status code.
func (c *httpClient) rpc(ctx context.Context, endpoint string, data any) (int, []byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return 0, nil, fmt.Errorf("dropboxapi: encoding request: %w", err)
	}

	return c.do(ctx, c.apiBase+endpoint, "application/json", payload, nil, nil)
}

// content calls a content endpoint (content.dropboxapi.com), sending arg
// as the Dropbox-API-Arg header and body as the raw octet-stream
// payload. result, if non-nil, receives the response body.
func (c *httpClient) content(ctx context.Context, endpoint string, arg any, body []byte, result io.Writer) (int, http.Header, []byte, error) {
	argJSON, err := json.Marshal(arg)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("dropboxapi: encoding Dropbox-API-Arg: %w", err)
	}

	headers := http.Header{"Dropbox-API-Arg": []string{string(argJSON)}}

	status, respBody, respHeader, readErr := c.doCapturingHeader(ctx, c.contentBase+endpoint, "application/octet-stream", body, headers, result)

	return status, respHeader, respBody, readErr
}

func (c *httpClient) do(ctx context.Context, url, contentType string, body []byte, extraHeaders http.Header, result io.Writer) (int, []byte, error) {
	status, respBody, _, err := c.doCapturingHeader(ctx, url, contentType, body, extraHeaders, result)

	return status, respBody, err
}

func (c *httpClient) doCapturingHeader(ctx context.Context, url, contentType string, body []byte, extraHeaders http.Header, result io.Writer) (int, []byte, http.Header, error) {
	var attempt int

	for {
		resp, err := c.doOnce(ctx, url, contentType, body, extraHeaders)
		if err != nil {
			return 0, nil, nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries {
			delay := retryDelay(resp.Header.Get("Retry-After"), attempt)
			resp.Body.Close()

			c.logger.Warn("retrying after 429 Too Many Requests",
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
			)

			if sleepErr := c.sleepFunc(ctx, delay); sleepErr != nil {
				return 0, nil, nil, fmt.Errorf("dropboxapi: request canceled: %w", sleepErr)
			}

			attempt++

			continue
		}

		var (
			respBody []byte
			readErr  error
		)

		if result != nil && resp.StatusCode == http.StatusOK {
			// The response body is the file content; metadata travels in
			// the Dropbox-API-Result header instead.
			_, readErr = io.Copy(result, resp.Body)
		} else {
			respBody, readErr = io.ReadAll(resp.Body)
		}

		resp.Body.Close()

		if readErr != nil {
			return 0, nil, nil, fmt.Errorf("dropboxapi: reading response body: %w", readErr)
		}

		return resp.StatusCode, respBody, resp.Header, nil
	}
}

func (c *httpClient) doOnce(ctx context.Context, url, contentType string, body []byte, extraHeaders http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dropboxapi: creating request: %w", err)
	}

	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Content-Type", contentType)

	for key, vals := range extraHeaders {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("dropboxapi: obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	return c.httpClient.Do(req)
}

// retryDelay mirrors getRetryDelayInMilliseconds: Retry-After (seconds)
// if present, else a 5s default, scaled by 1.2^attempt.
func retryDelay(retryAfter string, attempt int) time.Duration {
	base := defaultRetryDelay

	if retryAfter != "" {
		var seconds int
		if _, err := fmt.Sscanf(retryAfter, "%d", &seconds); err == nil && seconds > 0 {
			base = time.Duration(seconds) * time.Second
		}
	}

	scale := 1.0
	for range attempt {
		scale *= retryBackoffFactor
	}

	return time.Duration(float64(base) * scale)
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
