package security_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-api/internal/common"
	"github.com/noah-isme/checkout-api/internal/security"
)

func echoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := common.ReadBody(r)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		_, _ = w.Write(body)
	})
}

func TestBodyLimitAllowsSmallBodies(t *testing.T) {
	h := security.BodyLimit{Max: 16}.Middleware(echoHandler())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, `{"a":1}`, rr.Body.String())
}

func TestBodyLimitRejectsDeclaredLength(t *testing.T) {
	h := security.BodyLimit{Max: 4}.Middleware(echoHandler())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, rr.Body.String(), "PAYLOAD_TOO_LARGE")
}

func TestBodyLimitRejectsChunkedOverflow(t *testing.T) {
	h := security.BodyLimit{Max: 4}.Middleware(echoHandler())
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long"))
	req.ContentLength = -1
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}
