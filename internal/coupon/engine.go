package coupon

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no coupon matches the normalised code.
	ErrNotFound = errors.New("coupon not found")
	// ErrInactive is returned for coupons switched off by an operator.
	ErrInactive = errors.New("coupon not active")
	// ErrExpired is returned when expires_at lies before the evaluation instant.
	ErrExpired = errors.New("coupon expired")
	// ErrUsageLimitReached indicates the coupon has exhausted max_uses.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrAlreadyRedeemed indicates the redemption key was already counted.
	ErrAlreadyRedeemed = errors.New("coupon already redeemed for this payment")
	// ErrLookupFailed wraps store failures during evaluation. It never means "invalid".
	ErrLookupFailed = errors.New("coupon lookup failed")
	// ErrStore wraps store failures during redemption.
	ErrStore = errors.New("coupon store failure")
)

// Coupon mirrors a row of the coupons table.
type Coupon struct {
	ID              string
	Code            string
	DiscountPercent int
	Active          bool
	ExpiresAt       *time.Time
	MaxUses         *int32
	UsedCount       int32
}

// Result is the outcome of evaluating a code.
type Result struct {
	Valid           bool   `json:"valid"`
	Code            string `json:"code,omitempty"`
	ID              string `json:"id,omitempty"`
	DiscountPercent int    `json:"discount,omitempty"`
	// Reason holds one of the sentinel errors above when Valid is false.
	Reason error `json:"-"`
}

// Discount returns the discount percentage for valid results and nil otherwise.
func (r Result) Discount() *int {
	if !r.Valid {
		return nil
	}
	p := r.DiscountPercent
	return &p
}

// Normalize trims and upper-cases a user supplied code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate ensures the coupon can be applied at the provided instant.
func (c Coupon) Validate(now time.Time) error {
	if !c.Active {
		return ErrInactive
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return ErrExpired
	}
	if c.MaxUses != nil && c.UsedCount >= *c.MaxUses {
		return ErrUsageLimitReached
	}
	return nil
}
