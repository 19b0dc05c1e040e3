package remoteapi

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newTestClient(baseURL string) *Client {
	c := NewClient(baseURL, nil, NewBearerAuthProvider("test-token"), 1024*1024, discardLogger())
	c.sleepFunc = noopSleep

	return c
}

func TestClientRetriesOnServerError(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	resp, err := c.Do(context.Background(), http.MethodGet, "/ping", nil, 0)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, int32(3), attempts.Load())
}

func TestClientClassifiesNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`missing`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	_, err := c.Do(context.Background(), http.MethodGet, "/items/1", nil, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClientHonorsRetryAfterOnThrottle(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	resp, err := c.Do(context.Background(), http.MethodGet, "/x", nil, 0)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(2), attempts.Load())
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	_, err := c.Do(context.Background(), http.MethodGet, "/x", nil, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(maxRetries+1), attempts.Load())
}

// TestClientRetriesUnprocessableEntity regresses a bug where a 422
// response — the remote API's signal for transient overload on a large
// request body — was classified but never retried.
func TestClientRetriesUnprocessableEntity(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	resp, err := c.Do(context.Background(), http.MethodPut, "/upload", nil, 0)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, int32(3), attempts.Load())
}

func TestClientDoesNotRetryBadRequest(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	_, err := c.Do(context.Background(), http.MethodGet, "/x", nil, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClientCalcBackoffUsesLargeBodyFloor(t *testing.T) {
	c := newTestClient("http://example.invalid")

	small := c.calcBackoff(0, 10)
	large := c.calcBackoff(0, 2*1024*1024)

	assert.Less(t, small, large)
}

func TestCookieAuthProviderSkipsCSRFOnGet(t *testing.T) {
	p := NewCookieAuthProvider(nil, "csrf-value")

	req, err := http.NewRequest(http.MethodGet, "http://x/", nil)
	require.NoError(t, err)
	require.NoError(t, p.Apply(req))
	assert.Empty(t, req.Header.Get(csrfHeaderName))

	req, err = http.NewRequest(http.MethodPost, "http://x/", nil)
	require.NoError(t, err)
	require.NoError(t, p.Apply(req))
	assert.Equal(t, "csrf-value", req.Header.Get(csrfHeaderName))
}

func TestBearerAuthProviderSetsHeader(t *testing.T) {
	p := NewBearerAuthProvider("tok")

	req, err := http.NewRequest(http.MethodGet, "http://x/", nil)
	require.NoError(t, err)
	require.NoError(t, p.Apply(req))
	assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
	assert.Nil(t, p.Jar())
}
