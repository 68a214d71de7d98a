package quotes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(ClientConfig{
		BaseURL:           srv.URL,
		Token:             "test-token",
		RequestsPerMinute: 600,
		Timeout:           5 * time.Second,
	})
}

func TestFetchSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/AAPL/quote", r.URL.Path)
		assert.Equal(t, "test-token", r.URL.Query().Get("token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"AAPL","latestPrice":190.5,"previousClose":188.0,"changePercent":0.01329}`))
	})

	q, err := client.Fetch(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 190.5, q.LatestPrice)
	assert.Equal(t, 188.0, q.PreviousClose)
	assert.InDelta(t, 1.329, q.PercentChange, 1e-9)
}

func TestFetchZeroChangeIsNotMissing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"MSFT","latestPrice":400,"previousClose":400,"changePercent":0}`))
	})

	q, err := client.Fetch(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 0.0, q.PercentChange)
}

func TestFetchNon200(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unknown symbol", http.StatusNotFound)
	})

	_, err := client.Fetch(context.Background(), "NOPE")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.False(t, errors.Is(err, ErrThrottleSuspected))

	var qe *QuoteUnavailableError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "NOPE", qe.Symbol)
}

func TestFetchMissingField(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"AAPL","latestPrice":190.5,"changePercent":0.01}`))
	})

	_, err := client.Fetch(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestFetchMalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	})

	_, err := client.Fetch(context.Background(), "AAPL")
	assert.True(t, IsUnavailable(err))
}

func TestFetchThrottled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Fetch(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.ErrorIs(t, err, ErrThrottleSuspected)
}

func TestBreakerOpensAfterServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 5; i++ {
		_, err := client.Fetch(context.Background(), "AAPL")
		assert.True(t, IsUnavailable(err))
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 5; i++ {
		client.Fetch(context.Background(), "NOPE")
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestFetchEmptySymbol(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.Fetch(context.Background(), "  ")
	assert.True(t, IsUnavailable(err))
}

func TestFetchCancelledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Fetch(ctx, "AAPL")
	assert.True(t, IsUnavailable(err))
}
