package webdav

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopSleep(_ context.Context, _ time.Duration) error { return nil }

type staticToken string

func (t staticToken) Token() (string, error) { return string(t), nil }

type failingToken struct{}

func (failingToken) Token() (string, error) { return "", errors.New("token error") }

func newTestClient(t *testing.T, url string, token TokenSource) *httpClient {
	t.Helper()

	c, err := newHTTPClient(url, http.DefaultClient, token, nil)
	require.NoError(t, err)
	c.sleepFunc = noopSleep

	return c
}

func TestDo_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, staticToken("test-token"))
	resp, body, err := c.do(context.Background(), request{method: http.MethodGet, path: "/file.txt"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestDo_TokenError(t *testing.T) {
	c := newTestClient(t, "http://example.invalid", failingToken{})
	_, _, err := c.do(context.Background(), request{method: http.MethodGet, path: "/file.txt"})
	require.Error(t, err)
}

func TestDo_NilTokenSourceOmitsAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, _, err := c.do(context.Background(), request{method: http.MethodGet, path: "/file.txt"})
	require.NoError(t, err)
}

func TestDo_RetriesOn503ThenSucceeds(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	resp, _, err := c.do(context.Background(), request{method: http.MethodGet, path: "/file.txt"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDo_RetryAfterHonored(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)

	var observed time.Duration

	c.sleepFunc = func(_ context.Context, d time.Duration) error {
		observed = d

		return nil
	}

	_, _, err := c.do(context.Background(), request{method: http.MethodGet, path: "/file.txt"})
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, observed)
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	resp, _, err := c.do(context.Background(), request{method: http.MethodGet, path: "/file.txt"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(maxRetries+1), attempts.Load())
}

func TestDo_NonRetryableStatusReturnsImmediately(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	resp, _, err := c.do(context.Background(), request{method: http.MethodGet, path: "/missing"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDo_ContextCanceledStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)

	c.sleepFunc = func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.do(ctx, request{method: http.MethodGet, path: "/file.txt"})
	require.Error(t, err)
}

func TestPropfind_SetsDepthAndBody(t *testing.T) {
	var gotDepth, gotContentType string

	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDepth = r.Header.Get("Depth")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(207)
		_, _ = w.Write([]byte(`<?xml version="1.0"?><D:multistatus xmlns:D="DAV:"></D:multistatus>`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	resp, _, err := c.propfind(context.Background(), "/folder", "1")
	require.NoError(t, err)
	assert.Equal(t, 207, resp.StatusCode)
	assert.Equal(t, "1", gotDepth)
	assert.Contains(t, gotContentType, "text/xml")
	assert.Contains(t, string(gotBody), "resourcetype")
	assert.Contains(t, string(gotBody), "getetag")
}

func TestCalcBackoff_CapsAtMaxBackoff(t *testing.T) {
	c := newTestClient(t, "http://example.invalid", nil)

	backoff := c.calcBackoff(20)
	assert.LessOrEqual(t, backoff, maxBackoff+time.Duration(float64(maxBackoff)*jitterFraction))
}

func TestResolve_JoinsPathUnderBase(t *testing.T) {
	c := newTestClient(t, "https://dav.example.com/remote.php/dav/files/me", nil)
	u := c.resolve("/docs/report.txt")
	assert.Equal(t, "/remote.php/dav/files/me/docs/report.txt", u.Path)
}
