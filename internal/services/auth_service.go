// internal/services/auth_service.go
package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/config"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

// AuthService turns identity provider sessions and webhooks into local users.
// Sign-in, passwords and token issuing live at the identity provider.
type AuthService struct {
	users         *UserService
	webhookSecret string
	now           func() time.Time
}

// IdentityWebhookHeaders are the svix-style headers on identity webhooks.
type IdentityWebhookHeaders struct {
	ID        string
	Timestamp string
	Signature string
}

type identityEmail struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

type identityEventData struct {
	ID                    string          `json:"id"`
	Username              string          `json:"username"`
	FirstName             string          `json:"first_name"`
	LastName              string          `json:"last_name"`
	ImageURL              string          `json:"image_url"`
	EmailAddresses        []identityEmail `json:"email_addresses"`
	PrimaryEmailAddressID string          `json:"primary_email_address_id"`
	Deleted               bool            `json:"deleted"`
}

type identityEvent struct {
	Type string            `json:"type"`
	Data identityEventData `json:"data"`
}

func NewAuthService(users *UserService, cfg config.AuthConfig) *AuthService {
	return &AuthService{
		users:         users,
		webhookSecret: cfg.IdentityWebhookSecret,
		now:           time.Now,
	}
}

// Authenticate validates a bearer session token and returns the local user,
// creating it on first sight. Suspended accounts are refused.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := utils.ValidateSessionToken(token)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnauthorized, "invalid or expired session", err)
	}

	user, err := s.users.EnsureUser(ctx, IdentityUser{
		ExternalID: claims.Subject,
		Email:      claims.Email,
		Name:       claims.Name,
		AvatarURL:  claims.AvatarURL,
	})
	if err != nil {
		return nil, err
	}
	if user.Status == models.UserStatusSuspended {
		return nil, apperrors.Forbidden("account suspended")
	}
	return user, nil
}

// HandleIdentityWebhook verifies and applies a user lifecycle event from the
// identity provider. Signature problems return ErrInvalidWebhookSignature
// before the body is decoded.
func (s *AuthService) HandleIdentityWebhook(ctx context.Context, headers IdentityWebhookHeaders, body []byte) (string, error) {
	if err := utils.VerifyIdentityWebhook(s.webhookSecret, headers.ID, headers.Timestamp, headers.Signature, body, s.now()); err != nil {
		logrus.WithError(err).WithField("msg_id", headers.ID).Warn("Identity webhook verification failed")
		return "", ErrInvalidWebhookSignature
	}

	var event identityEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return "", apperrors.Validation("malformed webhook payload")
	}

	if err := s.users.SyncFromIdentity(ctx, event.Type, event.Data.toIdentityUser()); err != nil {
		return event.Type, err
	}
	return event.Type, nil
}

func (d identityEventData) toIdentityUser() IdentityUser {
	return IdentityUser{
		ExternalID: d.ID,
		Email:      d.primaryEmail(),
		Username:   d.Username,
		Name:       strings.TrimSpace(d.FirstName + " " + d.LastName),
		AvatarURL:  d.ImageURL,
	}
}

// primaryEmail picks the address flagged primary, falling back to the first.
func (d identityEventData) primaryEmail() string {
	for _, e := range d.EmailAddresses {
		if e.ID == d.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(d.EmailAddresses) > 0 {
		return d.EmailAddresses[0].EmailAddress
	}
	return ""
}
