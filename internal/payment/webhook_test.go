package payment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-api/internal/events"
	"github.com/noah-isme/checkout-api/internal/lock"
)

const webhookSecret = "whsec_test"

const capturedBody = `{"entity":"event","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","amount":119920,"currency":"INR","status":"captured","notes":{"user_id":"u1","plan_id":"pro","coupon_code":"SAVE20"}}}}}`

type countingHandler struct {
	calls []WebhookEvent
	err   error
}

func (c *countingHandler) handle(_ context.Context, evt WebhookEvent) error {
	c.calls = append(c.calls, evt)
	return c.err
}

func deliver(h Webhook, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/razorpay", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rr := httptest.NewRecorder()
	h.Handle(rr, req)
	return rr
}

func TestWebhookRejectsBadSignatures(t *testing.T) {
	captured := &countingHandler{}
	h := Webhook{Secret: webhookSecret, Handlers: map[string]EventHandler{EventPaymentCaptured: captured.handle}, Logger: zerolog.Nop()}

	rr := deliver(h, capturedBody, "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "MISSING_SIGNATURE")

	rr = deliver(h, capturedBody, Sign("other", []byte(capturedBody)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "INVALID_SIGNATURE")

	rr = deliver(h, capturedBody+" ", Sign(webhookSecret, []byte(capturedBody)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	require.Empty(t, captured.calls)
}

func TestWebhookDispatchesCapturedOnce(t *testing.T) {
	captured := &countingHandler{}
	failed := &countingHandler{}
	h := Webhook{Secret: webhookSecret, Handlers: map[string]EventHandler{
		EventPaymentCaptured: captured.handle,
		EventPaymentFailed:   failed.handle,
	}, Logger: zerolog.Nop()}

	rr := deliver(h, capturedBody, Sign(webhookSecret, []byte(capturedBody)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Len(t, captured.calls, 1)
	require.Empty(t, failed.calls)

	entity := captured.calls[0].Payload.Payment.Entity
	require.Equal(t, "pay_1", entity.ID)
	require.EqualValues(t, 119920, entity.Amount)
	require.Equal(t, "u1", entity.Notes["user_id"])
	require.Equal(t, "pro", entity.Notes["plan_id"])
}

func TestWebhookAcknowledgesUnknownEvents(t *testing.T) {
	captured := &countingHandler{}
	h := Webhook{Secret: webhookSecret, Handlers: map[string]EventHandler{EventPaymentCaptured: captured.handle}, Logger: zerolog.Nop()}
	body := `{"event":"refund.processed","payload":{}}`
	rr := deliver(h, body, Sign(webhookSecret, []byte(body)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, captured.calls)
}

func TestWebhookHandlerErrorRequestsRedelivery(t *testing.T) {
	captured := &countingHandler{err: errors.New("downstream unavailable")}
	h := Webhook{Secret: webhookSecret, Handlers: map[string]EventHandler{EventPaymentCaptured: captured.handle}, Logger: zerolog.Nop()}
	rr := deliver(h, capturedBody, Sign(webhookSecret, []byte(capturedBody)))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "downstream unavailable")
}

func TestWebhookMalformedPayload(t *testing.T) {
	h := Webhook{Secret: webhookSecret, Handlers: map[string]EventHandler{}, Logger: zerolog.Nop()}
	body := `{"event":`
	rr := deliver(h, body, Sign(webhookSecret, []byte(body)))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestWebhookEmptyNotesArray(t *testing.T) {
	failed := &countingHandler{}
	h := Webhook{Secret: webhookSecret, Handlers: map[string]EventHandler{EventPaymentFailed: failed.handle}, Logger: zerolog.Nop()}
	body := `{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_2","amount":149900,"notes":[],"error_description":"Payment declined by bank"}}}}`
	rr := deliver(h, body, Sign(webhookSecret, []byte(body)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, failed.calls, 1)
	require.Empty(t, failed.calls[0].Payload.Payment.Entity.Notes)
	require.Equal(t, "Payment declined by bank", failed.calls[0].Payload.Payment.Entity.ErrorDescription)
}

func TestDefaultHandlersPublishEvents(t *testing.T) {
	notifier := &recordingNotifier{}
	bus := &events.Bus{Notifiers: []events.Notifier{notifier}}
	h := Webhook{Secret: webhookSecret, Handlers: DefaultHandlers(zerolog.Nop(), bus), Logger: zerolog.Nop()}

	rr := deliver(h, capturedBody, Sign(webhookSecret, []byte(capturedBody)))
	require.Equal(t, http.StatusOK, rr.Code)
	failedBody := strings.Replace(capturedBody, "payment.captured", "payment.failed", 1)
	rr = deliver(h, failedBody, Sign(webhookSecret, []byte(failedBody)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, []string{events.TopicPaymentCaptured, events.TopicPaymentFailed}, notifier.topics)
}

func TestWebhookDropsRedeliveries(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	captured := &countingHandler{}
	h := Webhook{
		Secret:   webhookSecret,
		Handlers: map[string]EventHandler{EventPaymentCaptured: captured.handle},
		Dedupe:   lock.Once{Client: client, Prefix: "webhook:"},
		Logger:   zerolog.Nop(),
	}
	sig := Sign(webhookSecret, []byte(capturedBody))
	require.Equal(t, http.StatusOK, deliver(h, capturedBody, sig).Code)
	require.Equal(t, http.StatusOK, deliver(h, capturedBody, sig).Code)
	require.Len(t, captured.calls, 1)
	require.True(t, mr.Exists("webhook:done:payment.captured:pay_1"))
}

func TestWebhookConcurrentDeliveryIsBusy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, mr.Set("webhook:lock:payment.captured:pay_1", "other-worker"))

	captured := &countingHandler{}
	h := Webhook{
		Secret:   webhookSecret,
		Handlers: map[string]EventHandler{EventPaymentCaptured: captured.handle},
		Dedupe:   lock.Once{Client: client, Prefix: "webhook:"},
		Logger:   zerolog.Nop(),
	}
	rr := deliver(h, capturedBody, Sign(webhookSecret, []byte(capturedBody)))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Empty(t, captured.calls)
}
