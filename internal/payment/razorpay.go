package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/checkout-api/internal/resilience"
)

const (
	razorpayDefaultBaseURL = "https://api.razorpay.com"
	maxProviderBodyBytes   = 64 << 10
)

// Razorpay talks to the Razorpay Orders API with basic auth.
type Razorpay struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Client    resilience.HTTPClient
}

// CreateOrder issues POST /v1/orders.
func (rz Razorpay) CreateOrder(ctx context.Context, params OrderParams) (ProviderOrder, error) {
	if rz.KeyID == "" || rz.KeySecret == "" {
		return ProviderOrder{}, errors.New("razorpay: credentials not configured")
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return ProviderOrder{}, fmt.Errorf("razorpay: encode order: %w", err)
	}
	return rz.send(ctx, http.MethodPost, "/v1/orders", "create_order", bytes.NewReader(payload))
}

// FetchOrder issues GET /v1/orders/{id}.
func (rz Razorpay) FetchOrder(ctx context.Context, orderID string) (ProviderOrder, error) {
	if rz.KeyID == "" || rz.KeySecret == "" {
		return ProviderOrder{}, errors.New("razorpay: credentials not configured")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return ProviderOrder{}, errors.New("razorpay: order id is required")
	}
	return rz.send(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(orderID), "fetch_order", nil)
}

func (rz Razorpay) send(ctx context.Context, method, path, operation string, payload io.Reader) (ProviderOrder, error) {
	req, err := http.NewRequestWithContext(ctx, method, rz.baseURL()+path, payload)
	if err != nil {
		return ProviderOrder{}, fmt.Errorf("razorpay: build request: %w", err)
	}
	req.SetBasicAuth(rz.KeyID, rz.KeySecret)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := rz.Client.Do(ctx, req)
	if err != nil {
		return ProviderOrder{}, fmt.Errorf("razorpay: %s: %w", operation, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBodyBytes))
	if err != nil {
		return ProviderOrder{}, fmt.Errorf("razorpay: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ProviderOrder{}, &ProviderError{Operation: operation, StatusCode: resp.StatusCode, Body: string(body)}
	}
	var order ProviderOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return ProviderOrder{}, fmt.Errorf("razorpay: decode order: %w", err)
	}
	if order.ID == "" {
		return ProviderOrder{}, errors.New("razorpay: order id missing in response")
	}
	return order, nil
}

func (rz Razorpay) baseURL() string {
	base := strings.TrimRight(strings.TrimSpace(rz.BaseURL), "/")
	if base == "" {
		return razorpayDefaultBaseURL
	}
	return base
}
