package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/checkout-api/internal/account"
	"github.com/noah-isme/checkout-api/internal/common"
	"github.com/noah-isme/checkout-api/internal/coupon"
	"github.com/noah-isme/checkout-api/internal/events"
	"github.com/noah-isme/checkout-api/internal/obs"
	"github.com/noah-isme/checkout-api/internal/pricing"
)

const (
	// NoCouponNote is stored in the coupon_code note when no coupon was applied.
	NoCouponNote = "none"
	// MinOrderAmount is the smallest amount the provider accepts, in subunits.
	MinOrderAmount pricing.Money = 100
)

var nopLogger = zerolog.Nop()

// Coupons is the part of the coupon service used by checkout.
type Coupons interface {
	Evaluate(ctx context.Context, code string) (coupon.Result, error)
	Redeem(ctx context.Context, code, key string) error
}

// Service creates provider orders and confirms completed payments.
type Service struct {
	Provider  Provider
	Coupons   Coupons
	Accounts  account.Updater
	Events    *events.Bus
	BasePrice pricing.Money
	Currency  string
	// KeySecret signs checkout callbacks.
	KeySecret string
	Logger    *zerolog.Logger
}

// OrderRequest is the input of CreateOrder.
type OrderRequest struct {
	Plan       string
	UserID     string
	ReturnURL  string
	CouponCode string
}

// Order echoes the provider order back to the checkout page.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// Confirmation is what the checkout page posts after the provider's payment dialog closes.
type Confirmation struct {
	OrderID    string
	PaymentID  string
	Signature  string
	UserID     string
	Plan       string
	CouponCode string
}

// Receipt acknowledges a verified payment.
type Receipt struct {
	Success   bool   `json:"success"`
	PaymentID string `json:"paymentId"`
	OrderID   string `json:"orderId"`
}

// CreateOrder prices the plan, applying the coupon if one is given, and opens a provider
// order for the result. An invalid coupon never reaches the provider.
func (s *Service) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if s == nil || s.Provider == nil || s.Coupons == nil {
		return Order{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreateOrder")
	defer span.End()

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("order.result", result))
		if obs.OrderCreateTotal != nil {
			obs.OrderCreateTotal.WithLabelValues(result).Inc()
		}
	}()

	plan := strings.TrimSpace(req.Plan)
	userID := strings.TrimSpace(req.UserID)
	if plan == "" || userID == "" {
		result = "bad_request"
		return Order{}, common.ClientInput("BAD_REQUEST", "plan and userId are required", nil)
	}

	var discount *int
	couponNote := NoCouponNote
	if code := coupon.Normalize(req.CouponCode); code != "" {
		evaluation, err := s.Coupons.Evaluate(ctx, code)
		if err != nil {
			span.RecordError(err)
			return Order{}, common.Upstream("COUPON_LOOKUP_FAILED", "coupon lookup failed, please retry", err)
		}
		if !evaluation.Valid {
			result = "invalid_coupon"
			s.logger().Info().Str("coupon", code).AnErr("reason", evaluation.Reason).Msg("order refused: coupon invalid")
			return Order{}, common.ClientInput("INVALID_COUPON", "coupon is invalid or expired", evaluation.Reason)
		}
		discount = evaluation.Discount()
		couponNote = code
		span.SetAttributes(attribute.String("coupon.code", code))
	}

	amount := pricing.ApplyDiscount(s.BasePrice, discount)
	if amount < MinOrderAmount {
		result = "bad_request"
		msg := fmt.Sprintf("amount %d is below the minimum charge of %d", amount, MinOrderAmount)
		if couponNote != NoCouponNote {
			msg = fmt.Sprintf("coupon %s reduces the amount to %d, below the minimum charge of %d; it cannot be used for this plan",
				couponNote, amount, MinOrderAmount)
		}
		return Order{}, common.ClientInput("AMOUNT_TOO_LOW", msg, nil)
	}
	currency := s.Currency
	if currency == "" {
		currency = "INR"
	}
	params := OrderParams{
		Amount:   amount,
		Currency: currency,
		Receipt:  "rpt_" + userID,
		Notes: map[string]string{
			"user_id":     userID,
			"plan_id":     plan,
			"return_url":  strings.TrimSpace(req.ReturnURL),
			"coupon_code": couponNote,
		},
	}
	span.SetAttributes(attribute.Int64("order.amount", amount))

	start := time.Now()
	created, err := s.Provider.CreateOrder(ctx, params)
	observeProvider("create_order", err, start)
	if err != nil {
		span.RecordError(err)
		evt := s.logger().Error().Err(err).Str("user_id", userID).Int64("amount", amount)
		var providerErr *ProviderError
		if errors.As(err, &providerErr) {
			evt = evt.Int("provider_status", providerErr.StatusCode).Str("provider_body", providerErr.Body)
		}
		evt.Msg("provider order creation failed")
		return Order{}, common.Upstream("ORDER_CREATE_FAILED", "order creation failed", err)
	}
	result = "created"
	s.logger().Info().
		Str("order_id", created.ID).
		Str("user_id", userID).
		Str("plan", plan).
		Str("coupon", couponNote).
		Int64("amount", created.Amount).
		Msg("order created")
	return Order{ID: created.ID, Amount: created.Amount, Currency: created.Currency, Receipt: created.Receipt}, nil
}

// ConfirmPayment verifies the checkout signature and, for authentic payments, redeems the
// coupon keyed by payment id and records the subscription. Forged signatures change nothing.
func (s *Service) ConfirmPayment(ctx context.Context, c Confirmation) (Receipt, error) {
	if s == nil || s.Coupons == nil || s.Accounts == nil {
		return Receipt{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.ConfirmPayment")
	defer span.End()

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.verify.result", result))
		if obs.PaymentVerifyTotal != nil {
			obs.PaymentVerifyTotal.WithLabelValues(result).Inc()
		}
	}()

	c.OrderID = strings.TrimSpace(c.OrderID)
	c.PaymentID = strings.TrimSpace(c.PaymentID)
	c.UserID = strings.TrimSpace(c.UserID)
	c.Plan = strings.TrimSpace(c.Plan)
	if c.OrderID == "" || c.PaymentID == "" || strings.TrimSpace(c.Signature) == "" || c.UserID == "" || c.Plan == "" {
		result = "bad_request"
		return Receipt{}, common.ClientInput("BAD_REQUEST", "orderId, paymentId, signature, userId and plan are required", nil)
	}
	span.SetAttributes(attribute.String("payment.id", c.PaymentID), attribute.String("order.id", c.OrderID))

	if !VerifyPayment(c.OrderID, c.PaymentID, c.Signature, s.KeySecret) {
		result = "forged"
		s.logger().Warn().
			Str("event", "payment_signature_mismatch").
			Str("order_id", c.OrderID).
			Str("payment_id", c.PaymentID).
			Str("user_id", c.UserID).
			Msg("payment signature verification failed")
		return Receipt{}, common.Authenticity("INVALID_SIGNATURE", "payment signature verification failed", nil)
	}

	if code := s.couponToRedeem(ctx, c); code != "" {
		if err := s.redeemCoupon(ctx, code, c); err != nil {
			span.RecordError(err)
			return Receipt{}, err
		}
	}

	sub := account.Subscription{UserID: c.UserID, Plan: c.Plan, PaymentID: c.PaymentID, OrderID: c.OrderID}
	if err := s.Accounts.MarkSubscribed(ctx, sub); err != nil {
		span.RecordError(err)
		s.logger().Error().Err(err).Str("payment_id", c.PaymentID).Str("user_id", c.UserID).Msg("account update failed")
		return Receipt{}, common.Upstream("ACCOUNT_UPDATE_FAILED", "payment verified but the account update failed, please retry", err)
	}

	result = "verified"
	s.logger().Info().
		Str("order_id", c.OrderID).
		Str("payment_id", c.PaymentID).
		Str("user_id", c.UserID).
		Str("plan", c.Plan).
		Msg("payment verified")
	s.emit(ctx, events.TopicPaymentVerified, c.PaymentID, map[string]string{
		"orderId":   c.OrderID,
		"paymentId": c.PaymentID,
		"userId":    c.UserID,
		"plan":      c.Plan,
	})
	return Receipt{Success: true, PaymentID: c.PaymentID, OrderID: c.OrderID}, nil
}

// couponToRedeem prefers the coupon noted on the provider order, which the server wrote,
// over the one the client sends back. A mismatch is logged. When the order cannot be read
// the client's code is used.
func (s *Service) couponToRedeem(ctx context.Context, c Confirmation) string {
	claimed := coupon.Normalize(c.CouponCode)
	fetcher, ok := s.Provider.(OrderFetcher)
	if !ok {
		return claimed
	}
	start := time.Now()
	order, err := fetcher.FetchOrder(ctx, c.OrderID)
	observeProvider("fetch_order", err, start)
	if err != nil {
		s.logger().Warn().Err(err).Str("order_id", c.OrderID).Msg("order lookup failed, using client coupon")
		return claimed
	}
	noted := strings.TrimSpace(order.Notes["coupon_code"])
	if noted == NoCouponNote {
		noted = ""
	}
	noted = coupon.Normalize(noted)
	if noted != claimed {
		s.logger().Warn().
			Str("event", "coupon_mismatch").
			Str("order_id", c.OrderID).
			Str("payment_id", c.PaymentID).
			Str("claimed_coupon", claimed).
			Str("order_coupon", noted).
			Msg("client coupon differs from order note")
	}
	return noted
}

func (s *Service) redeemCoupon(ctx context.Context, code string, c Confirmation) error {
	err := s.Coupons.Redeem(ctx, code, c.PaymentID)
	switch {
	case err == nil:
		s.emit(ctx, events.TopicCouponRedeemed, code, map[string]string{"coupon": code, "paymentId": c.PaymentID})
		return nil
	case errors.Is(err, coupon.ErrAlreadyRedeemed):
		s.logger().Debug().Str("coupon", code).Str("payment_id", c.PaymentID).Msg("coupon already redeemed for payment")
		return nil
	case errors.Is(err, coupon.ErrNotFound), errors.Is(err, coupon.ErrUsageLimitReached):
		s.logger().Warn().
			Err(err).
			Str("event", "coupon_redemption_skipped").
			Str("coupon", code).
			Str("payment_id", c.PaymentID).
			Msg("coupon not counted for verified payment")
		return nil
	default:
		s.logger().Error().Err(err).Str("coupon", code).Str("payment_id", c.PaymentID).Msg("coupon redemption failed")
		return common.Upstream("COUPON_REDEEM_FAILED", "payment verified but coupon bookkeeping failed, please retry", err)
	}
}

func (s *Service) emit(ctx context.Context, topic, aggregateID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, aggregateID, payload); err != nil {
		s.logger().Warn().Err(err).Str("topic", topic).Msg("event publish failed")
	}
}

func (s *Service) logger() *zerolog.Logger {
	if s.Logger == nil {
		return &nopLogger
	}
	return s.Logger
}

func observeProvider(operation string, err error, start time.Time) {
	if obs.ProviderCallDuration == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	case err != nil:
		result = "error"
	}
	obs.ProviderCallDuration.WithLabelValues(operation, result).Observe(obs.DurationMillis(time.Since(start)))
}
