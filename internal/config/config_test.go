package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-api/internal/config"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":            "postgres://localhost/checkout",
		"REDIS_URL":               "redis://localhost:6379/0",
		"RAZORPAY_KEY_ID":         "rzp_test_key",
		"RAZORPAY_KEY_SECRET":     "s3cr3t",
		"RAZORPAY_WEBHOOK_SECRET": "whsec",
		"CHECKOUT_BASE_PRICE":     "",
		"RAZORPAY_BASE_URL":       "",
		"PROVIDER_TIMEOUT":        "",
		"ADMIN_BASIC_AUTH_USER":   "",
		"ADMIN_BASIC_AUTH_PASS":   "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)
	require.EqualValues(t, 149900, cfg.BasePrice)
	require.Equal(t, "INR", cfg.Currency)
	require.Equal(t, "https://api.razorpay.com", cfg.RazorpayBaseURL)
	require.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	require.Equal(t, 3*time.Second, cfg.StoreTimeout)
	require.Equal(t, int64(1<<20), cfg.BodyLimitBytes)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["CHECKOUT_BASE_PRICE"] = "999.50"
	env["RAZORPAY_BASE_URL"] = "http://localhost:9999/"
	env["PROVIDER_TIMEOUT"] = "2s"
	env["ADMIN_BASIC_AUTH_USER"] = "ops"
	env["ADMIN_BASIC_AUTH_PASS"] = "hunter2"
	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.EqualValues(t, 99950, cfg.BasePrice)
	require.Equal(t, "http://localhost:9999", cfg.RazorpayBaseURL)
	require.Equal(t, 2*time.Second, cfg.ProviderTimeout)
	require.Equal(t, "ops", cfg.AdminUser)
}

func TestLoadRejectsMissingSecrets(t *testing.T) {
	env := baseEnv()
	env["RAZORPAY_KEY_SECRET"] = ""
	env["RAZORPAY_WEBHOOK_SECRET"] = ""
	_, err := config.LoadForTests(env)
	require.ErrorContains(t, err, "RAZORPAY_KEY_SECRET is required")
	require.ErrorContains(t, err, "RAZORPAY_WEBHOOK_SECRET is required")
}

func TestLoadRejectsFractionalSubunitPrice(t *testing.T) {
	env := baseEnv()
	env["CHECKOUT_BASE_PRICE"] = "10.005"
	_, err := config.LoadForTests(env)
	require.ErrorContains(t, err, "CHECKOUT_BASE_PRICE")
}

func TestLoadRequiresAdminPair(t *testing.T) {
	env := baseEnv()
	env["ADMIN_BASIC_AUTH_USER"] = "ops"
	_, err := config.LoadForTests(env)
	require.ErrorContains(t, err, "must be set together")
}
