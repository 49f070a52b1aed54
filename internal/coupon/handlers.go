package coupon

import (
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/checkout-api/internal/common"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Handler exposes coupon validation and the operator redemption endpoint.
type Handler struct {
	Svc *Service
}

type validateRequest struct {
	Coupon string `json:"coupon"`
}

type validateResponse struct {
	Valid    bool   `json:"valid"`
	Discount *int   `json:"discount,omitempty"`
	ID       string `json:"id,omitempty"`
}

type redeemRequest struct {
	Coupon    string `json:"coupon" validate:"required"`
	PaymentID string `json:"paymentId" validate:"required"`
}

// Validate reports whether a coupon can currently be applied.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "COUPON_NOT_CONFIGURED", "coupon handler unavailable", nil)
		return
	}
	var req validateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	result, err := h.Svc.Evaluate(r.Context(), req.Coupon)
	if err != nil {
		common.WriteError(w, common.Upstream("COUPON_LOOKUP_FAILED", "coupon lookup failed, please retry", err))
		return
	}
	if !result.Valid {
		common.JSON(w, http.StatusOK, validateResponse{Valid: false})
		return
	}
	common.JSON(w, http.StatusOK, validateResponse{Valid: true, Discount: result.Discount(), ID: result.ID})
}

// Redeem counts one use of a coupon for a payment. Verification already redeems coupons, so
// this endpoint only exists for operators reconciling payments by hand; the payment id keeps
// it from double counting.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "COUPON_NOT_CONFIGURED", "coupon handler unavailable", nil)
		return
	}
	var req redeemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	req.Coupon = strings.TrimSpace(req.Coupon)
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	if err := validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "coupon and paymentId are required", nil)
		return
	}
	err := h.Svc.Redeem(r.Context(), req.Coupon, req.PaymentID)
	switch {
	case err == nil:
		common.JSON(w, http.StatusOK, map[string]any{"success": true})
	case errors.Is(err, ErrAlreadyRedeemed):
		common.JSON(w, http.StatusOK, map[string]any{"success": true, "alreadyRedeemed": true})
	case errors.Is(err, ErrNotFound):
		common.WriteError(w, common.NotFound("COUPON_NOT_FOUND", "coupon not found", err))
	case errors.Is(err, ErrUsageLimitReached):
		common.WriteError(w, common.Conflict("COUPON_EXHAUSTED", "coupon usage limit reached", err))
	default:
		common.WriteError(w, common.Upstream("COUPON_REDEEM_FAILED", "coupon redemption failed", err))
	}
}
