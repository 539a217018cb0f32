package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newTestClient builds a Client against the test server with a no-op sleep
// so retry tests run instantly.
func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	c := NewClient(srv.URL, srv.Client(), StaticTokenSource("test-token"), discardLogger())
	c.sleepFunc = func(context.Context, time.Duration) error { return nil }

	return c
}

func TestDoSetsHeaders(t *testing.T) {
	var gotAuth, gotAgent, gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	resp, err := c.Do(context.Background(), http.MethodGet, "/ping", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, userAgent, gotAgent)
	assert.Empty(t, gotContentType, "no content type without a body")
}

func TestDoRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	resp, err := c.Do(context.Background(), http.MethodGet, "/calendar", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(3), hits.Load())
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	_, err := c.Do(context.Background(), http.MethodGet, "/calendar", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(maxRetries+1), hits.Load())
}

func TestDoNoRetryOnClientError(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, `order not found`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	_, err := c.Do(context.Background(), http.MethodGet, "/orders/99", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), hits.Load(), "4xx must not be retried")
}

func TestDoErrorCarriesServerDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req-123")
		http.Error(w, "order already delivered", http.StatusConflict)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	_, err := c.Do(context.Background(), http.MethodPost, "/orders/1/move", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "req-123", apiErr.RequestID)
	assert.Contains(t, apiErr.Message, "order already delivered")
	assert.Contains(t, Detail(err), "order already delivered")
}

func TestDoThrottledHonorsRetryAfter(t *testing.T) {
	var (
		hits  atomic.Int32
		slept atomic.Int64
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			http.Error(w, "slow down", http.StatusTooManyRequests)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.sleepFunc = func(_ context.Context, d time.Duration) error {
		slept.Store(int64(d))
		return nil
	}

	resp, err := c.Do(context.Background(), http.MethodGet, "/calendar", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int64(3*time.Second), slept.Load())
}

func TestDoRewindsBodyOnRetry(t *testing.T) {
	var (
		hits   atomic.Int32
		bodies []string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))

		if hits.Add(1) == 1 {
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	body, err := json.Marshal(map[string]string{"date": "2025-03-12"})
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), http.MethodPost, "/deliveries", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1], "retried request must resend the full body")
	assert.NotEmpty(t, bodies[1])
}

func TestDoNetworkErrorOnlyRetriesGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // every request now fails at the dial

	c := NewClient(srv.URL, http.DefaultClient, StaticTokenSource("t"), discardLogger())

	var sleeps atomic.Int32

	c.sleepFunc = func(context.Context, time.Duration) error {
		sleeps.Add(1)
		return nil
	}

	_, err := c.Do(context.Background(), http.MethodPost, "/deliveries", nil)
	require.Error(t, err)
	assert.Zero(t, sleeps.Load(), "a mutation must never be replayed after a network error")

	_, err = c.Do(context.Background(), http.MethodGet, "/calendar", nil)
	require.Error(t, err)
	assert.Equal(t, int32(maxRetries), sleeps.Load())
}

func TestDoContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := newTestClient(t, srv)

	_, err := c.Do(ctx, http.MethodGet, "/calendar", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCalcBackoffBounded(t *testing.T) {
	c := NewClient("http://example.com", nil, StaticTokenSource("t"), discardLogger())

	for attempt := range 10 {
		b := c.calcBackoff(attempt)
		assert.Greater(t, b, time.Duration(0))
		assert.LessOrEqual(t, b, maxBackoff+maxBackoff/4) // jitter headroom
	}
}
