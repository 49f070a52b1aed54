package resilience_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-api/internal/resilience"
)

func TestHTTPClientReturnsServerErrorsToCaller(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, `{"amount":100}`, string(body))
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	breaker := resilience.NewBreaker(resilience.BreakerConfig{MinRequests: 1, FailureRatio: 1, OpenFor: time.Minute}).WithTarget("test_http")
	cl := resilience.HTTPClient{Client: srv.Client(), Breaker: breaker, Timeout: time.Second}

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"amount":100}`))
	require.NoError(t, err)
	resp, err := cl.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, "upstream exploded", string(body))
	require.EqualValues(t, 1, calls.Load())

	req, _ = http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"amount":100}`))
	_, err = cl.Do(context.Background(), req)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.EqualValues(t, 1, calls.Load())
}

func TestHTTPClientRetriesWhenAllowed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cl := resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 3, BaseBackoff: time.Millisecond}
	req, _ := http.NewRequest(http.MethodPut, srv.URL, strings.NewReader("x"))
	resp, err := cl.Do(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.EqualValues(t, 3, calls.Load())
}

func TestHTTPClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cl := resilience.HTTPClient{Client: srv.Client(), Timeout: 20 * time.Millisecond}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := cl.Do(context.Background(), req)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}
