package payment

import (
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/checkout-api/internal/common"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Handler exposes order creation and payment verification.
type Handler struct {
	Svc *Service
}

type orderRequest struct {
	Plan       string `json:"plan" validate:"required,max=64"`
	UserID     string `json:"userId" validate:"required,max=128"`
	ReturnURL  string `json:"returnUrl" validate:"omitempty,url"`
	CouponCode string `json:"couponCode" validate:"max=64"`
}

type verifyRequest struct {
	OrderID    string `json:"orderId"`
	PaymentID  string `json:"paymentId"`
	Signature  string `json:"signature"`
	UserID     string `json:"userId"`
	Plan       string `json:"plan"`
	CouponCode string `json:"couponCode"`

	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

func (v verifyRequest) confirmation() Confirmation {
	return Confirmation{
		OrderID:    firstNonBlank(v.OrderID, v.RazorpayOrderID),
		PaymentID:  firstNonBlank(v.PaymentID, v.RazorpayPaymentID),
		Signature:  firstNonBlank(v.Signature, v.RazorpaySignature),
		UserID:     v.UserID,
		Plan:       v.Plan,
		CouponCode: v.CouponCode,
	}
}

// CreateOrder opens a provider order for the requested plan.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	var req orderRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	req.Plan = strings.TrimSpace(req.Plan)
	req.UserID = strings.TrimSpace(req.UserID)
	req.ReturnURL = strings.TrimSpace(req.ReturnURL)
	if err := validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "plan and userId are required; returnUrl must be a url", nil)
		return
	}
	order, err := h.Svc.CreateOrder(r.Context(), OrderRequest{
		Plan:       req.Plan,
		UserID:     req.UserID,
		ReturnURL:  req.ReturnURL,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, order)
}

// Verify confirms a completed checkout. It accepts both the camelCase fields and the field
// names the provider's checkout script hands to its success callback.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	var req verifyRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	receipt, err := h.Svc.ConfirmPayment(r.Context(), req.confirmation())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, receipt)
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
