package coupon

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const couponColumns = `id::text, code, discount_percent, active, expires_at, max_uses, used_count`

// PGStore implements Store on Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

// NewPGStore wraps a connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{Pool: pool}
}

// GetCouponByCode performs a case-insensitive point lookup.
func (s *PGStore) GetCouponByCode(ctx context.Context, code string) (Coupon, error) {
	if s == nil || s.Pool == nil {
		return Coupon{}, errors.New("coupon store not configured")
	}
	row := s.Pool.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE upper(code) = $1`, code)
	c, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Coupon{}, ErrNotFound
		}
		return Coupon{}, err
	}
	return c, nil
}

// Redeem records the redemption key and increments used_count in one transaction. The
// increment only applies while used_count < max_uses, so concurrent redemptions cannot
// exceed the cap or lose updates.
func (s *PGStore) Redeem(ctx context.Context, code, key string) (Coupon, error) {
	if s == nil || s.Pool == nil {
		return Coupon{}, errors.New("coupon store not configured")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Coupon{}, fmt.Errorf("begin redemption: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO coupon_redemptions (redemption_key, coupon_code) VALUES ($1, $2)
		 ON CONFLICT (redemption_key) DO NOTHING`, key, code)
	if err != nil {
		return Coupon{}, fmt.Errorf("insert redemption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Coupon{}, ErrAlreadyRedeemed
	}

	// Under READ COMMITTED a concurrent UPDATE of the same row blocks here; once the other
	// transaction commits Postgres re-evaluates the WHERE clause against the new used_count,
	// so the cap holds without SELECT ... FOR UPDATE.
	row := tx.QueryRow(ctx,
		`UPDATE coupons SET used_count = used_count + 1, updated_at = now()
		 WHERE upper(code) = $1 AND (max_uses IS NULL OR used_count < max_uses)
		 RETURNING `+couponColumns, code)
	c, err := scanCoupon(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Coupon{}, fmt.Errorf("increment usage: %w", err)
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM coupons WHERE upper(code) = $1)`, code).Scan(&exists); err != nil {
			return Coupon{}, fmt.Errorf("check coupon: %w", err)
		}
		if !exists {
			return Coupon{}, ErrNotFound
		}
		return Coupon{}, ErrUsageLimitReached
	}
	if err := tx.Commit(ctx); err != nil {
		return Coupon{}, fmt.Errorf("commit redemption: %w", err)
	}
	return c, nil
}

// Ping reports whether the database answers.
func (s *PGStore) Ping(ctx context.Context) error {
	if s == nil || s.Pool == nil {
		return errors.New("coupon store not configured")
	}
	return s.Pool.Ping(ctx)
}

func scanCoupon(row pgx.Row) (Coupon, error) {
	var (
		c       Coupon
		percent int32
	)
	if err := row.Scan(&c.ID, &c.Code, &percent, &c.Active, &c.ExpiresAt, &c.MaxUses, &c.UsedCount); err != nil {
		return Coupon{}, err
	}
	c.DiscountPercent = int(percent)
	return c, nil
}
