package payment

import (
	"context"
	"fmt"
)

// OrderParams is what the provider needs to open an order.
type OrderParams struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// ProviderOrder is the provider's view of a created order.
type ProviderOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status,omitempty"`
	Notes    Notes  `json:"notes,omitempty"`
}

// Provider abstracts the order creation call of the payment gateway.
type Provider interface {
	CreateOrder(ctx context.Context, params OrderParams) (ProviderOrder, error)
}

// OrderFetcher is implemented by providers that can read back an order. Verification uses
// it to compare the client's coupon with the one noted on the order.
type OrderFetcher interface {
	FetchOrder(ctx context.Context, orderID string) (ProviderOrder, error)
}

// ProviderError is returned for non-2xx provider answers. Body is kept for server logs only.
type ProviderError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider: %s returned status %d", e.Operation, e.StatusCode)
}
