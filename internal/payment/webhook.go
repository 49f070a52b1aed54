package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/checkout-api/internal/common"
	"github.com/noah-isme/checkout-api/internal/events"
	"github.com/noah-isme/checkout-api/internal/lock"
	"github.com/noah-isme/checkout-api/internal/obs"
)

// Webhook request headers.
const (
	SignatureHeader = "X-Razorpay-Signature"
	EventIDHeader   = "X-Razorpay-Event-Id"
)

// Event names dispatched by default.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

// Notes holds the order notes echoed back on payment entities. The provider sends an empty
// JSON array instead of an object when there are none.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Notes{}
	switch v := raw.(type) {
	case nil:
	case []any:
		if len(v) > 0 {
			return errors.New("notes: unexpected non-empty array")
		}
	case map[string]any:
		for key, value := range v {
			if s, ok := value.(string); ok {
				out[key] = s
			} else if value != nil {
				out[key] = fmt.Sprint(value)
			}
		}
	default:
		return fmt.Errorf("notes: unexpected %T", raw)
	}
	*n = out
	return nil
}

// PaymentEntity is the payment object inside webhook payloads.
type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Method           string `json:"method"`
	Notes            Notes  `json:"notes"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

// WebhookEvent is the decoded webhook envelope.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// EventHandler processes one webhook event. Returning an error makes the provider redeliver.
type EventHandler func(ctx context.Context, evt WebhookEvent) error

// Webhook authenticates provider callbacks and dispatches them by event name.
type Webhook struct {
	Secret   string
	Handlers map[string]EventHandler
	// Dedupe, when set, drops redeliveries of events that were already handled.
	Dedupe Deduper
	Logger zerolog.Logger
}

// Deduper runs fn at most once per key and reports whether it ran.
type Deduper interface {
	Do(ctx context.Context, key string, fn func(context.Context) error) (bool, error)
}

// DefaultHandlers wires the captured and failed handlers to bus.
func DefaultHandlers(logger zerolog.Logger, bus *events.Bus) map[string]EventHandler {
	return map[string]EventHandler{
		EventPaymentCaptured: CapturedHandler(logger, bus),
		EventPaymentFailed:   FailedHandler(logger, bus),
	}
}

// Handle verifies the signature over the raw body before anything is parsed.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Secret == "" {
		common.JSONError(w, http.StatusInternalServerError, "WEBHOOK_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	body, err := common.ReadBody(r)
	if err != nil {
		observeWebhook("unknown", "bad_body")
		common.WriteError(w, err)
		return
	}
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		observeWebhook("unknown", "missing_signature")
		common.JSONError(w, http.StatusBadRequest, "MISSING_SIGNATURE", "missing signature", nil)
		return
	}
	if !VerifyWebhookSignature(body, signature, h.Secret) {
		observeWebhook("unknown", "invalid_signature")
		h.Logger.Warn().
			Str("event", "webhook_signature_mismatch").
			Str("client_ip", common.ClientIP(r)).
			Int("bytes", len(body)).
			Msg("webhook signature verification failed")
		common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "invalid signature", nil)
		return
	}

	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		observeWebhook("unknown", "decode_error")
		h.Logger.Error().Err(err).Msg("webhook payload decode failed")
		common.JSONError(w, http.StatusInternalServerError, "WEBHOOK_PROCESSING_FAILED", "webhook processing failed", nil)
		return
	}

	handler, ok := h.Handlers[evt.Event]
	if !ok {
		observeWebhook("unhandled", "ignored")
		h.Logger.Info().Str("webhook_event", evt.Event).Msg("unhandled webhook event")
		common.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	ran, err := h.dispatch(r.Context(), deliveryKey(r, evt), evt, handler)
	if errors.Is(err, lock.ErrBusy) {
		observeWebhook(evt.Event, "busy")
		common.JSONError(w, http.StatusConflict, "WEBHOOK_IN_PROGRESS", "event is being processed", nil)
		return
	}
	if err != nil {
		observeWebhook(evt.Event, "error")
		h.Logger.Error().Err(err).Str("webhook_event", evt.Event).Str("payment_id", evt.Payload.Payment.Entity.ID).Msg("webhook handler failed")
		common.JSONError(w, http.StatusInternalServerError, "WEBHOOK_PROCESSING_FAILED", "webhook processing failed", nil)
		return
	}
	if !ran {
		observeWebhook(evt.Event, "duplicate")
		h.Logger.Debug().Str("webhook_event", evt.Event).Str("payment_id", evt.Payload.Payment.Entity.ID).Msg("duplicate webhook delivery")
	} else {
		observeWebhook(evt.Event, "handled")
	}
	common.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h Webhook) dispatch(ctx context.Context, key string, evt WebhookEvent, handler EventHandler) (bool, error) {
	run := func(ctx context.Context) error { return handler(ctx, evt) }
	if h.Dedupe == nil || key == "" {
		return true, run(ctx)
	}
	return h.Dedupe.Do(ctx, key, run)
}

// deliveryKey prefers the provider's event id and falls back to event name plus payment id.
func deliveryKey(r *http.Request, evt WebhookEvent) string {
	if id := strings.TrimSpace(r.Header.Get(EventIDHeader)); id != "" {
		return "event:" + id
	}
	if pid := evt.Payload.Payment.Entity.ID; pid != "" {
		return evt.Event + ":" + pid
	}
	return ""
}

// CapturedHandler logs the captured payment and publishes it for the account service.
func CapturedHandler(logger zerolog.Logger, bus *events.Bus) EventHandler {
	return func(ctx context.Context, evt WebhookEvent) error {
		p := evt.Payload.Payment.Entity
		logger.Info().
			Str("payment_id", p.ID).
			Str("order_id", p.OrderID).
			Int64("amount", p.Amount).
			Str("user_id", p.Notes["user_id"]).
			Str("plan_id", p.Notes["plan_id"]).
			Msg("payment captured")
		return publish(ctx, bus, events.TopicPaymentCaptured, p, map[string]any{
			"paymentId": p.ID,
			"orderId":   p.OrderID,
			"amount":    p.Amount,
			"userId":    p.Notes["user_id"],
			"planId":    p.Notes["plan_id"],
		})
	}
}

// FailedHandler logs the failure reason and publishes it for alerting.
func FailedHandler(logger zerolog.Logger, bus *events.Bus) EventHandler {
	return func(ctx context.Context, evt WebhookEvent) error {
		p := evt.Payload.Payment.Entity
		logger.Warn().
			Str("payment_id", p.ID).
			Str("order_id", p.OrderID).
			Str("user_id", p.Notes["user_id"]).
			Str("plan_id", p.Notes["plan_id"]).
			Str("error_code", p.ErrorCode).
			Str("error_description", p.ErrorDescription).
			Msg("payment failed")
		return publish(ctx, bus, events.TopicPaymentFailed, p, map[string]any{
			"paymentId":        p.ID,
			"orderId":          p.OrderID,
			"userId":           p.Notes["user_id"],
			"planId":           p.Notes["plan_id"],
			"errorDescription": p.ErrorDescription,
		})
	}
}

func publish(ctx context.Context, bus *events.Bus, topic string, p PaymentEntity, payload map[string]any) error {
	if bus == nil || p.ID == "" {
		return nil
	}
	if _, err := bus.Emit(ctx, topic, p.ID, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func observeWebhook(event, result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(event, result).Inc()
	}
}
