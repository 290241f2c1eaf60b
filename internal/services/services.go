// internal/services/services.go
package services

import (
	"gorm.io/gorm"

	"github.com/javajoker/wavhaven-backend/internal/cache"
	"github.com/javajoker/wavhaven-backend/internal/config"
	"github.com/javajoker/wavhaven-backend/internal/metrics"
)

// Backends are the outside systems the services talk to. Production wires
// Stripe, S3, SMTP and Redis; tests pass fakes.
type Backends struct {
	Payments PaymentProcessor
	Storage  FileStorage
	Mailer   Mailer
	Limiter  cache.Limiter
	Metrics  *metrics.Metrics
}

// Registry holds one instance of every service, wired together.
type Registry struct {
	Auth          *AuthService
	Users         *UserService
	Catalog       *CatalogService
	Interactions  *InteractionService
	Tracks        *TrackService
	Licenses      *LicenseService
	Moderation    *ModerationService
	Checkout      *CheckoutService
	Fulfillment   *FulfillmentService
	Downloads     *DownloadService
	Admin         *AdminService
	Notifications *NotificationService
	Payments      PaymentProcessor
}

func NewRegistry(db *gorm.DB, cfg *config.Config, b Backends) *Registry {
	notifications := NewNotificationService(b.Mailer, cfg.Frontend)
	users := NewUserService(db, b.Payments, cfg.Frontend)
	downloads := NewDownloadService(db, b.Storage, b.Metrics, cfg.AWS)

	return &Registry{
		Auth:          NewAuthService(users, cfg.Auth),
		Users:         users,
		Catalog:       NewCatalogService(db),
		Interactions:  NewInteractionService(db),
		Tracks:        NewTrackService(db, b.Storage, cfg.AWS),
		Licenses:      NewLicenseService(db),
		Moderation:    NewModerationService(db, notifications),
		Checkout:      NewCheckoutService(db, b.Payments, b.Limiter, b.Metrics, cfg.Payment, cfg.Frontend),
		Fulfillment:   NewFulfillmentService(db, users, downloads, notifications, b.Metrics, cfg.AWS),
		Downloads:     downloads,
		Admin:         NewAdminService(db, b.Payments),
		Notifications: notifications,
		Payments:      b.Payments,
	}
}
