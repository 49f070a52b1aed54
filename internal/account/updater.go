package account

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/checkout-api/internal/resilience"
)

// Subscription is the fact recorded on the purchaser's account once a payment is verified.
type Subscription struct {
	UserID    string `json:"userId"`
	Plan      string `json:"plan"`
	PaymentID string `json:"paymentId"`
	OrderID   string `json:"orderId"`
}

// Updater records a subscription. Implementations must be idempotent on PaymentID.
type Updater interface {
	MarkSubscribed(ctx context.Context, sub Subscription) error
}

// LogUpdater only logs the subscription. It is used when no account service is configured.
type LogUpdater struct {
	Logger zerolog.Logger
}

func (u LogUpdater) MarkSubscribed(_ context.Context, sub Subscription) error {
	u.Logger.Info().
		Str("user_id", sub.UserID).
		Str("plan", sub.Plan).
		Str("payment_id", sub.PaymentID).
		Str("order_id", sub.OrderID).
		Msg("subscription recorded")
	return nil
}

// HTTPUpdater posts subscriptions to the account service.
type HTTPUpdater struct {
	URL    string
	Token  string
	Client resilience.HTTPClient
}

// MarkSubscribed sends the subscription with the payment id as Idempotency-Key. Any non-2xx
// answer is an error.
func (u HTTPUpdater) MarkSubscribed(ctx context.Context, sub Subscription) error {
	if strings.TrimSpace(u.URL) == "" {
		return errors.New("account: update url not configured")
	}
	if sub.PaymentID == "" {
		return errors.New("account: payment id is required")
	}
	ctx, span := otel.Tracer("account.HTTPUpdater").Start(ctx, "AccountUpdater.MarkSubscribed")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", sub.PaymentID))

	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("account: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("account: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", sub.PaymentID)
	if u.Token != "" {
		req.Header.Set("Authorization", "Bearer "+u.Token)
	}
	resp, err := u.Client.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("account: update: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("account: update returned status %d", resp.StatusCode)
	}
	return nil
}
