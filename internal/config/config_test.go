package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("FRONTEND_URL", "https://wavhaven.test/")
	t.Setenv("PAYMENT_CURRENCY", "EUR")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://wavhaven.test", cfg.Frontend.BaseURL)
	assert.Equal(t, "eur", cfg.Payment.Currency)
	assert.Equal(t, 5, cfg.RateLimit.CheckoutAttempts)
	assert.Equal(t, 60, cfg.AWS.SignedURLTTL)
	assert.False(t, cfg.Redis.Enabled())
}

func TestValidateProductionRequiresSecrets(t *testing.T) {
	cfg := &Config{
		Environment: "production",
		Auth:        AuthConfig{JWTSecret: "your-secret-key-change-in-production"},
		Payment:     PaymentConfig{Currency: "usd"},
		RateLimit:   RateLimitConfig{CheckoutAttempts: 5, CheckoutWindow: 60, RequestsPerSec: 10, Burst: 20},
	}
	assert.Error(t, cfg.Validate())

	cfg.Auth.JWTSecret = "a-real-secret"
	cfg.Auth.IdentityWebhookSecret = "whsec_abc"
	cfg.Database.Password = "pw"
	assert.Error(t, cfg.Validate(), "stripe keys are still missing")

	cfg.Payment.StripeSecretKey = "sk_live_x"
	cfg.Payment.StripeWebhookSecret = "whsec_x"
	assert.NoError(t, cfg.Validate())
}

func validDevConfig() *Config {
	return &Config{
		Environment: "development",
		Payment:     PaymentConfig{Currency: "usd"},
		RateLimit:   RateLimitConfig{CheckoutAttempts: 5, CheckoutWindow: 60, RequestsPerSec: 10, Burst: 20},
	}
}

func TestValidateRejectsBadCurrency(t *testing.T) {
	require.NoError(t, validDevConfig().Validate())

	for _, currency := range []string{"dollars", "", "jpy", "krw", "kwd"} {
		cfg := validDevConfig()
		cfg.Payment.Currency = currency
		assert.Error(t, cfg.Validate(), currency)
	}
}

func TestLoadRejectsZeroDecimalCurrency(t *testing.T) {
	t.Setenv("PAYMENT_CURRENCY", "JPY")

	_, err := Load()
	assert.ErrorContains(t, err, "jpy")
}

func TestValidateRejectsNonPositiveRateLimits(t *testing.T) {
	mutations := map[string]func(*Config){
		"zero checkout attempts":     func(c *Config) { c.RateLimit.CheckoutAttempts = 0 },
		"negative checkout attempts": func(c *Config) { c.RateLimit.CheckoutAttempts = -1 },
		"zero checkout window":       func(c *Config) { c.RateLimit.CheckoutWindow = 0 },
		"zero requests per second":   func(c *Config) { c.RateLimit.RequestsPerSec = 0 },
		"zero burst":                 func(c *Config) { c.RateLimit.Burst = 0 },
	}
	for name, mutate := range mutations {
		cfg := validDevConfig()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}

	t.Setenv("CHECKOUT_RATE_LIMIT", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestCORSOriginsFromEnv(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://wavhaven.test, ,https://admin.wavhaven.test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://wavhaven.test", "https://admin.wavhaven.test"}, cfg.Server.CORSOrigins)
}
