package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-api/internal/health"
)

type stubChecker struct {
	dbErr    error
	redisErr error
}

func (s stubChecker) PingDB(context.Context, time.Duration) error    { return s.dbErr }
func (s stubChecker) PingRedis(context.Context, time.Duration) error { return s.redisErr }

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReadySuccess(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{Checker: stubChecker{}}.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"db":"ok","redis":"ok"}`, rr.Body.String())
}

func TestReadyFailureHidesCause(t *testing.T) {
	h := health.Handler{Checker: stubChecker{dbErr: errors.New("dial tcp 10.0.0.5:5432: refused")}, Logger: zerolog.Nop()}
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var status map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	require.Equal(t, "unavailable", status["db"])
	require.Equal(t, "ok", status["redis"])
	require.NotContains(t, rr.Body.String(), "10.0.0.5")
}

func TestDepsPingRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	deps := health.Deps{Redis: client}
	require.NoError(t, deps.PingRedis(context.Background(), time.Second))
	require.Error(t, deps.PingDB(context.Background(), time.Second))
}
