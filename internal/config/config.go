// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	Redis       RedisConfig
	AWS         AWSConfig
	Payment     PaymentConfig
	Email       EmailConfig
	I18n        I18nConfig
	Frontend    FrontendConfig
	RateLimit   RateLimitConfig
}

type FrontendConfig struct {
	BaseURL string
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
	CORSOrigins  []string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

// AuthConfig holds the secrets shared with the identity provider.
type AuthConfig struct {
	JWTSecret             string
	Issuer                string
	IdentityWebhookSecret string
	BootstrapAdminID      string
}

type RedisConfig struct {
	Host        string
	Port        string
	Password    string
	DB          int
	DialTimeout int // in seconds
}

func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CloudFrontURL   string
	SignedURLTTL    int // in minutes
	EmailLinkTTL    int // in hours
	MaxUploadMB     int
}

type PaymentConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
	RequestTimeout      int // in seconds
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

type I18nConfig struct {
	DefaultLocale string
}

type RateLimitConfig struct {
	CheckoutAttempts int
	CheckoutWindow   int // in seconds
	RequestsPerSec   int
	Burst            int
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			CORSOrigins:  getEnvAsSlice("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "wavhaven"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "your-secret-key-change-in-production"),
			Issuer:                getEnv("AUTH_ISSUER", ""),
			IdentityWebhookSecret: getEnv("IDENTITY_WEBHOOK_SECRET", ""),
			BootstrapAdminID:      getEnv("BOOTSTRAP_ADMIN_EXTERNAL_ID", ""),
		},
		Redis: RedisConfig{
			Host:        getEnv("REDIS_HOST", ""),
			Port:        getEnv("REDIS_PORT", "6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			DialTimeout: getEnvAsInt("REDIS_DIAL_TIMEOUT", 5),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "wavhaven-tracks"),
			CloudFrontURL:   getEnv("AWS_CLOUDFRONT_URL", ""),
			SignedURLTTL:    getEnvAsInt("DOWNLOAD_URL_TTL_MINUTES", 60),
			EmailLinkTTL:    getEnvAsInt("EMAIL_LINK_TTL_HOURS", 72),
			MaxUploadMB:     getEnvAsInt("MAX_UPLOAD_MB", 500),
		},
		Payment: PaymentConfig{
			StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:            strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
			RequestTimeout:      getEnvAsInt("STRIPE_REQUEST_TIMEOUT", 20),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "noreply@wavhaven.com"),
			FromName:     getEnv("FROM_NAME", "Wavhaven"),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		},
		Frontend: FrontendConfig{
			BaseURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		},
		RateLimit: RateLimitConfig{
			CheckoutAttempts: getEnvAsInt("CHECKOUT_RATE_LIMIT", 5),
			CheckoutWindow:   getEnvAsInt("CHECKOUT_RATE_WINDOW", 60),
			RequestsPerSec:   getEnvAsInt("RATE_LIMIT_RPS", 10),
			Burst:            getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "your-secret-key-change-in-production" && c.IsProduction() {
		return fmt.Errorf("auth JWT secret must be changed in production")
	}

	if c.Database.Password == "" && c.IsProduction() {
		return fmt.Errorf("database password is required in production")
	}

	if c.IsProduction() && (c.Payment.StripeSecretKey == "" || c.Payment.StripeWebhookSecret == "") {
		return fmt.Errorf("stripe secret key and webhook secret are required in production")
	}

	if c.IsProduction() && c.Auth.IdentityWebhookSecret == "" {
		return fmt.Errorf("identity webhook secret is required in production")
	}

	if !twoDecimalCurrencies[c.Payment.Currency] {
		return fmt.Errorf("unsupported payment currency %q", c.Payment.Currency)
	}

	if c.RateLimit.CheckoutAttempts <= 0 || c.RateLimit.CheckoutWindow <= 0 {
		return fmt.Errorf("checkout rate limit needs positive attempts and window, got %d per %ds",
			c.RateLimit.CheckoutAttempts, c.RateLimit.CheckoutWindow)
	}

	if c.RateLimit.RequestsPerSec <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("request rate limit needs positive rate and burst")
	}

	return nil
}

// twoDecimalCurrencies lists the currencies whose processor minor unit is
// a hundredth. Prices are converted to cents, so anything else would be
// charged at the wrong scale.
var twoDecimalCurrencies = map[string]bool{
	"usd": true, "eur": true, "gbp": true, "cad": true, "aud": true,
	"nzd": true, "chf": true, "sek": true, "nok": true, "dkk": true,
	"pln": true, "mxn": true, "brl": true, "sgd": true, "hkd": true,
	"zar": true,
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) CheckoutWindow() time.Duration {
	return time.Duration(c.RateLimit.CheckoutWindow) * time.Second
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
