package dropboxapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func noopSleep(_ context.Context, _ time.Duration) error { return nil }

func staticTokenSource(tok string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok})
}

func newTestClientAgainst(t *testing.T, srv *httptest.Server) *httpClient {
	t.Helper()

	c := newHTTPClient(http.DefaultClient, staticTokenSource("test-token"), nil)
	c.sleepFunc = noopSleep

	return c
}

func TestRPC_SetsAuthHeaderAndBody(t *testing.T) {
	var gotAuth, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClientAgainst(t, srv)
	c.httpClient = srv.Client()
	c.apiBase = srv.URL

	status, body, err := c.rpc(context.Background(), "/files/get_metadata", map[string]string{"path": "/x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, `{"path":"/x"}`, gotBody)
	assert.Contains(t, string(body), "ok")
}

func TestDo_RetriesOn429ThenSucceeds(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClientAgainst(t, srv)

	status, _, err := c.do(context.Background(), srv.URL+"/endpoint", "application/json", []byte("{}"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestDo_RetryAfterScalesDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClientAgainst(t, srv)

	var calls int

	c.sleepFunc = func(_ context.Context, d time.Duration) error {
		calls++
		if calls == 1 {
			assert.Equal(t, 3*time.Second, d)
		}

		if calls >= maxRetries {
			return context.Canceled
		}

		return nil
	}

	_, _, err := c.do(context.Background(), srv.URL+"/endpoint", "application/json", []byte("{}"), nil, nil)
	require.Error(t, err)
}

func TestRetryDelay_DefaultsWithoutRetryAfter(t *testing.T) {
	d := retryDelay("", 0)
	assert.Equal(t, defaultRetryDelay, d)
}

func TestRetryDelay_ScalesWithAttempt(t *testing.T) {
	d0 := retryDelay("", 0)
	d1 := retryDelay("", 1)
	assert.Greater(t, d1, d0)
}
