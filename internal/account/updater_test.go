package account_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-api/internal/account"
	"github.com/noah-isme/checkout-api/internal/resilience"
)

var sub = account.Subscription{UserID: "user_1", Plan: "pro", PaymentID: "pay_1", OrderID: "order_1"}

func TestHTTPUpdaterSendsIdempotencyKey(t *testing.T) {
	var got account.Subscription
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "pay_1", r.Header.Get("Idempotency-Key"))
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	u := account.HTTPUpdater{URL: srv.URL, Token: "tok", Client: resilience.HTTPClient{Client: srv.Client(), Timeout: time.Second}}
	require.NoError(t, u.MarkSubscribed(context.Background(), sub))
	require.Equal(t, sub, got)
}

func TestHTTPUpdaterRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	u := account.HTTPUpdater{URL: srv.URL, Client: resilience.HTTPClient{Client: srv.Client()}}
	require.ErrorContains(t, u.MarkSubscribed(context.Background(), sub), "status 409")
}

func TestHTTPUpdaterRequiresConfig(t *testing.T) {
	require.Error(t, account.HTTPUpdater{}.MarkSubscribed(context.Background(), sub))
	u := account.HTTPUpdater{URL: "http://example.invalid"}
	require.Error(t, u.MarkSubscribed(context.Background(), account.Subscription{UserID: "u"}))
}

func TestLogUpdater(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, account.LogUpdater{Logger: zerolog.New(&buf)}.MarkSubscribed(context.Background(), sub))
	require.Contains(t, buf.String(), `"payment_id":"pay_1"`)
}
