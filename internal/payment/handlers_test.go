package payment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Error.Code
}

func TestCreateOrderHandler(t *testing.T) {
	f := newFixture()
	h := &Handler{Svc: f.svc}

	rr := post(h.CreateOrder, `{"plan":"pro","userId":"u1","returnUrl":"https://app.example/done","couponCode":"SAVE20","amount":5}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"id":"order_test","amount":119920,"currency":"INR","receipt":"rpt_u1"}`, rr.Body.String())

	rr = post(h.CreateOrder, `{"plan":"pro"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = post(h.CreateOrder, `{"plan":"pro","userId":"u1","couponCode":"OLD"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "INVALID_COUPON", errorCode(t, rr))

	rr = post(h.CreateOrder, `{"plan":`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Len(t, f.provider.calls, 1)
}

func TestCreateOrderHandlerHidesProviderBody(t *testing.T) {
	f := newFixture()
	f.provider.err = &ProviderError{Operation: "create_order", StatusCode: 401, Body: "key_secret rzp_live_xxx rejected"}
	rr := post((&Handler{Svc: f.svc}).CreateOrder, `{"plan":"pro","userId":"u1"}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, "ORDER_CREATE_FAILED", errorCode(t, rr))
	require.NotContains(t, rr.Body.String(), "rzp_live_xxx")
}

func TestVerifyHandlerAcceptsCheckoutFieldNames(t *testing.T) {
	f := newFixture()
	h := &Handler{Svc: f.svc}

	rr := post(h.Verify, `{"razorpay_order_id":"order_abc","razorpay_payment_id":"pay_xyz","razorpay_signature":"`+knownSignature+`","userId":"u1","plan":"pro","couponCode":"SAVE20"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"success":true,"paymentId":"pay_xyz","orderId":"order_abc"}`, rr.Body.String())
	require.Equal(t, []string{"SAVE20|pay_xyz"}, f.coupons.redeemed)

	rr = post(h.Verify, `{"orderId":"order_abc","paymentId":"pay_xyz","signature":"`+knownSignature+`","userId":"u1","plan":"pro"}`)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestVerifyHandlerForged(t *testing.T) {
	f := newFixture()
	rr := post((&Handler{Svc: f.svc}).Verify, `{"orderId":"order_abc","paymentId":"pay_xyz","signature":"deadbeef","userId":"u1","plan":"pro","couponCode":"SAVE20"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "INVALID_SIGNATURE", errorCode(t, rr))
	require.Empty(t, f.coupons.redeemed)
	require.Empty(t, f.accounts.subs)
}
