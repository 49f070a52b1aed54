package common

import (
	"context"
	"errors"
	"net/http"
)

// Kind classifies an AppError for the HTTP boundary.
type Kind int

const (
	// KindInternal is the zero value; it is never shown to clients in detail.
	KindInternal Kind = iota
	// KindClientInput covers missing or invalid request fields, including an invalid coupon.
	KindClientInput
	// KindAuthenticity covers signature mismatches on payments and webhooks.
	KindAuthenticity
	// KindUpstream covers failures of the payment provider or the coupon store.
	KindUpstream
	// KindTimeout covers upstream calls that did not answer in time.
	KindTimeout
	// KindNotFound covers unknown coupon codes on redemption.
	KindNotFound
	// KindConflict covers redemptions refused because the coupon is exhausted.
	KindConflict
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Kind       Kind
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(kind Kind, code, message string, status int, err error) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ClientInput reports a request the caller has to fix. The message is shown to the user.
func ClientInput(code, message string, err error) *AppError {
	return NewAppError(KindClientInput, code, message, http.StatusBadRequest, err)
}

// Authenticity reports a forged or tampered signature.
func Authenticity(code, message string, err error) *AppError {
	return NewAppError(KindAuthenticity, code, message, http.StatusBadRequest, err)
}

// Upstream reports a failed provider or store call. Deadline errors become KindTimeout.
func Upstream(code, message string, err error) *AppError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewAppError(KindTimeout, code, message, http.StatusGatewayTimeout, err)
	}
	return NewAppError(KindUpstream, code, message, http.StatusInternalServerError, err)
}

// NotFound reports a missing resource.
func NotFound(code, message string, err error) *AppError {
	return NewAppError(KindNotFound, code, message, http.StatusNotFound, err)
}

// Conflict reports a state conflict such as an exhausted coupon.
func Conflict(code, message string, err error) *AppError {
	return NewAppError(KindConflict, code, message, http.StatusConflict, err)
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// KindOf returns the kind of the first AppError in the chain, or KindInternal.
func KindOf(err error) Kind {
	var target *AppError
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindInternal
}
