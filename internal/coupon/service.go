package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/checkout-api/internal/obs"
)

var nopLogger = zerolog.Nop()

// Store captures the persistence operations required by the coupon service.
type Store interface {
	// GetCouponByCode returns ErrNotFound when no row matches the normalised code.
	GetCouponByCode(ctx context.Context, code string) (Coupon, error)
	// Redeem atomically records key and increments used_count while it is below max_uses.
	Redeem(ctx context.Context, code, key string) (Coupon, error)
}

// Service evaluates coupons and records redemptions.
type Service struct {
	Store   Store
	Now     func() time.Time
	Timeout time.Duration
	Logger  *zerolog.Logger
}

// Evaluate looks up code and applies the validity rules. Unknown, inactive, expired and
// exhausted coupons produce an invalid Result with a nil error. Store failures return an
// error wrapping ErrLookupFailed.
func (s *Service) Evaluate(ctx context.Context, code string) (Result, error) {
	if s == nil || s.Store == nil {
		return Result{}, fmt.Errorf("%w: coupon service not configured", ErrLookupFailed)
	}
	ctx, span := otel.Tracer("coupon.Service").Start(ctx, "CouponService.Evaluate")
	defer span.End()

	normalised := Normalize(code)
	span.SetAttributes(attribute.String("coupon.code", normalised))
	if normalised == "" {
		s.observeEvaluation("invalid")
		return Result{Valid: false, Reason: ErrNotFound}, nil
	}

	lookupCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	c, err := s.Store.GetCouponByCode(lookupCtx, normalised)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.observeEvaluation("invalid")
			return Result{Valid: false, Code: normalised, Reason: ErrNotFound}, nil
		}
		span.RecordError(err)
		s.observeEvaluation("error")
		s.logger().Error().Err(err).Str("coupon", normalised).Msg("coupon lookup failed")
		return Result{}, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	if reason := c.Validate(s.now()); reason != nil {
		s.observeEvaluation("invalid")
		return Result{Valid: false, Code: normalised, ID: c.ID, Reason: reason}, nil
	}
	s.observeEvaluation("valid")
	return Result{Valid: true, Code: normalised, ID: c.ID, DiscountPercent: c.DiscountPercent}, nil
}

// Redeem counts one use of code under the redemption key (a payment id). Repeated calls
// with the same key return ErrAlreadyRedeemed without counting again.
func (s *Service) Redeem(ctx context.Context, code, key string) error {
	if s == nil || s.Store == nil {
		return fmt.Errorf("%w: coupon service not configured", ErrStore)
	}
	normalised := Normalize(code)
	if normalised == "" {
		return ErrNotFound
	}
	if key == "" {
		return errors.New("coupon: redemption key is required")
	}
	ctx, span := otel.Tracer("coupon.Service").Start(ctx, "CouponService.Redeem")
	defer span.End()
	span.SetAttributes(attribute.String("coupon.code", normalised))

	redeemCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	c, err := s.Store.Redeem(redeemCtx, normalised, key)
	switch {
	case err == nil:
		s.observeRedemption("redeemed")
		s.logger().Info().Str("coupon", normalised).Str("redemption_key", key).Int32("used_count", c.UsedCount).Msg("coupon redeemed")
		return nil
	case errors.Is(err, ErrAlreadyRedeemed):
		s.observeRedemption("duplicate")
		return err
	case errors.Is(err, ErrNotFound):
		s.observeRedemption("not_found")
		return err
	case errors.Is(err, ErrUsageLimitReached):
		s.observeRedemption("limit_reached")
		return err
	default:
		span.RecordError(err)
		s.observeRedemption("error")
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout > 0 {
		return context.WithTimeout(ctx, s.Timeout)
	}
	return context.WithCancel(ctx)
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *zerolog.Logger {
	if s.Logger == nil {
		return &nopLogger
	}
	return s.Logger
}

func (s *Service) observeEvaluation(result string) {
	if obs.CouponEvaluationTotal != nil {
		obs.CouponEvaluationTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) observeRedemption(result string) {
	if obs.CouponRedemptionTotal != nil {
		obs.CouponRedemptionTotal.WithLabelValues(result).Inc()
	}
}
