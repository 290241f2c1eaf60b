// internal/services/user_service.go
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/config"
	"github.com/javajoker/wavhaven-backend/internal/database"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/policy"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

// Identity provider user events.
const (
	IdentityUserCreated = "user.created"
	IdentityUserUpdated = "user.updated"
	IdentityUserDeleted = "user.deleted"
)

// IdentityUser is the profile the identity provider knows about a user.
type IdentityUser struct {
	ExternalID string
	Email      string
	Username   string
	Name       string
	AvatarURL  string
}

type UserService struct {
	db          *gorm.DB
	payments    PaymentProcessor
	frontendURL string
}

type UpdateUserProfileRequest struct {
	Username  *string `json:"username" validate:"omitempty,username"`
	Name      *string `json:"name" validate:"omitempty,max=150"`
	Bio       *string `json:"bio" validate:"omitempty,max=2000"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url,max=500"`
}

type SellerProfileRequest struct {
	StoreName   string            `json:"store_name" validate:"required,min=2,max=100"`
	Bio         string            `json:"bio" validate:"max=2000"`
	SocialLinks map[string]string `json:"social_links" validate:"max=10,dive,keys,min=1,max=30,endkeys,url"`
}

type UpdateSellerProfileRequest struct {
	StoreName   *string           `json:"store_name" validate:"omitempty,min=2,max=100"`
	Bio         *string           `json:"bio" validate:"omitempty,max=2000"`
	SocialLinks map[string]string `json:"social_links" validate:"omitempty,max=10,dive,keys,min=1,max=30,endkeys,url"`
}

type OnboardingResult struct {
	Profile       *models.SellerProfile `json:"profile"`
	OnboardingURL string                `json:"onboarding_url"`
}

type PublicProfile struct {
	Producer      models.ProducerSummary `json:"producer"`
	Bio           string                 `json:"bio"`
	StoreName     string                 `json:"store_name,omitempty"`
	FollowerCount int64                  `json:"follower_count"`
	Tracks        []TrackListing         `json:"tracks"`
}

func NewUserService(db *gorm.DB, payments PaymentProcessor, frontend config.FrontendConfig) *UserService {
	return &UserService{
		db:          db,
		payments:    payments,
		frontendURL: frontend.BaseURL,
	}
}

func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("SellerProfile").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("user")
		}
		return nil, apperrors.Internal("failed to load user", err)
	}
	return &user, nil
}

// EnsureUser returns the user for an authenticated identity, creating the
// row on first sight. The stored role always wins over anything the
// identity provider claims.
func (s *UserService) EnsureUser(ctx context.Context, identity IdentityUser) (*models.User, error) {
	if identity.ExternalID == "" {
		return nil, apperrors.Unauthorized("missing subject")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("external_id = ?", identity.ExternalID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Internal("failed to load user", err)
	}

	user = models.User{
		ExternalID: identity.ExternalID,
		Email:      strings.ToLower(strings.TrimSpace(identity.Email)),
		Name:       identity.Name,
		AvatarURL:  identity.AvatarURL,
		Role:       models.UserRoleCustomer,
		Status:     models.UserStatusActive,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if database.IsUniqueViolation(err) {
			// Created concurrently by the identity webhook or another request.
			if err := s.db.WithContext(ctx).Where("external_id = ?", identity.ExternalID).First(&user).Error; err != nil {
				return nil, apperrors.Internal("failed to load user", err)
			}
			return &user, nil
		}
		return nil, apperrors.Internal("failed to create user", err)
	}

	logrus.WithFields(logrus.Fields{"user_id": user.ID, "external_id": user.ExternalID}).Info("User created on first sign-in")
	return &user, nil
}

// SyncFromIdentity applies an identity provider user event. Users are never
// hard deleted; a deleted identity suspends the account.
func (s *UserService) SyncFromIdentity(ctx context.Context, eventType string, identity IdentityUser) error {
	if identity.ExternalID == "" {
		return apperrors.Validation("missing user id", apperrors.FieldError{Field: "data.id", Message: "user id is required"})
	}

	db := s.db.WithContext(ctx)
	switch eventType {
	case IdentityUserCreated, IdentityUserUpdated:
		if eventType == IdentityUserCreated && identity.Email == "" {
			return apperrors.Validation("missing primary email", apperrors.FieldError{Field: "data.email_addresses", Message: "primary email is required"})
		}

		var user models.User
		err := db.Where("external_id = ?", identity.ExternalID).First(&user).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.Internal("failed to load user", err)
		}

		user.ExternalID = identity.ExternalID
		if identity.Email != "" {
			user.Email = strings.ToLower(strings.TrimSpace(identity.Email))
		}
		user.Name = identity.Name
		user.AvatarURL = identity.AvatarURL
		if identity.Username != "" {
			username := identity.Username
			user.Username = &username
		}
		if user.Role == "" {
			user.Role = models.UserRoleCustomer
		}
		if user.Status == "" {
			user.Status = models.UserStatusActive
		}

		if err := db.Omit(clause.Associations).Save(&user).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.Conflict("username or identity already in use")
			}
			return apperrors.Internal("failed to sync user", err)
		}

		logrus.WithFields(logrus.Fields{"user_id": user.ID, "event": eventType}).Info("User synced from identity provider")
		return nil

	case IdentityUserDeleted:
		result := db.Model(&models.User{}).
			Where("external_id = ?", identity.ExternalID).
			Update("status", models.UserStatusSuspended)
		if result.Error != nil {
			return apperrors.Internal("failed to suspend user", result.Error)
		}
		logrus.WithFields(logrus.Fields{"external_id": identity.ExternalID, "found": result.RowsAffected > 0}).Info("User suspended after identity deletion")
		return nil
	}

	logrus.WithField("event", eventType).Debug("Ignoring identity event")
	return nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, req *UpdateUserProfileRequest) (*models.User, error) {
	if err := utils.ValidateRequest(req); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Username != nil {
		updates["username"] = *req.Username
	}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = *req.AvatarURL
	}

	if len(updates) > 0 {
		err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error
		if err != nil {
			if database.IsUniqueViolation(err) {
				return nil, apperrors.Validation("username already taken", apperrors.FieldError{Field: "username", Message: "username already taken"})
			}
			return nil, apperrors.Internal("failed to update profile", err)
		}
	}

	return s.GetUserByID(ctx, userID)
}

// GetPublicProfile returns a producer page with their published tracks.
func (s *UserService) GetPublicProfile(ctx context.Context, username string) (*PublicProfile, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("SellerProfile").
		Where("username = ? AND status = ?", username, models.UserStatusActive).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("producer")
		}
		return nil, apperrors.Internal("failed to load producer", err)
	}

	var tracks []models.Track
	err = withListingPreloads(s.db.WithContext(ctx)).
		Where("producer_id = ? AND status = ?", user.ID, models.TrackStatusPublished).
		Order("published_at DESC").
		Limit(50).
		Find(&tracks).Error
	if err != nil {
		return nil, apperrors.Internal("failed to load producer tracks", err)
	}

	followers, err := followerCount(s.db.WithContext(ctx), user.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to count followers", err)
	}

	profile := &PublicProfile{
		Producer:      user.Summary(),
		Bio:           user.Bio,
		FollowerCount: followers,
		Tracks:        make([]TrackListing, 0, len(tracks)),
	}
	if user.SellerProfile != nil {
		profile.StoreName = user.SellerProfile.StoreName
		if user.SellerProfile.Bio != "" {
			profile.Bio = user.SellerProfile.Bio
		}
	}
	for i := range tracks {
		profile.Tracks = append(profile.Tracks, toListing(&tracks[i]))
	}
	return profile, nil
}

// BecomeProducer opts a user into selling. The seller profile, the payment
// account and the role change commit together; the onboarding link is
// requested afterwards and can be refreshed with OnboardingLink.
func (s *UserService) BecomeProducer(ctx context.Context, userID uuid.UUID, req *SellerProfileRequest) (*OnboardingResult, error) {
	if err := utils.ValidateRequest(req); err != nil {
		return nil, err
	}

	var profile models.SellerProfile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("user")
			}
			return err
		}
		if !policy.Allowed(policy.Subject{UserID: user.ID, Role: user.Role}, policy.On(policy.ResourceSellerProfile), policy.ActionCreate) {
			return apperrors.Forbidden("not allowed to open a store")
		}

		err := tx.Where("user_id = ?", userID).First(&profile).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			profile = models.SellerProfile{UserID: userID}
		case err != nil:
			return err
		}

		profile.StoreName = strings.TrimSpace(req.StoreName)
		profile.Bio = req.Bio
		profile.SocialLinks = socialLinks(req.SocialLinks)

		if profile.PaymentAccountID == nil {
			accountID, err := s.payments.CreateConnectedAccount(ctx, userID, user.Email)
			if err != nil {
				return apperrors.External("payment processor", err)
			}
			profile.PaymentAccountID = &accountID
		}

		if err := tx.Omit("User").Save(&profile).Error; err != nil {
			return err
		}

		if user.Role == models.UserRoleCustomer {
			return tx.Model(&user).Update("role", models.UserRoleProducer).Error
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "failed to create seller profile")
	}

	logrus.WithFields(logrus.Fields{"user_id": userID, "profile_id": profile.ID}).Info("User opted into selling")

	url, err := s.onboardingLink(ctx, *profile.PaymentAccountID)
	if err != nil {
		return nil, err
	}
	return &OnboardingResult{Profile: &profile, OnboardingURL: url}, nil
}

// OnboardingLink issues a fresh onboarding link; links are single use.
func (s *UserService) OnboardingLink(ctx context.Context, userID uuid.UUID) (string, error) {
	profile, err := s.sellerProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.PaymentAccountID == nil {
		return "", apperrors.Conflict("no payment account is linked to this store")
	}
	return s.onboardingLink(ctx, *profile.PaymentAccountID)
}

// PayoutDashboardLink returns a login link to the payout dashboard. Only
// available once onboarding completed.
func (s *UserService) PayoutDashboardLink(ctx context.Context, userID uuid.UUID) (string, error) {
	profile, err := s.sellerProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.PaymentAccountID == nil || !profile.PaymentAccountReady {
		return "", apperrors.Conflict("payment onboarding is not complete")
	}

	url, err := s.payments.CreateLoginLink(ctx, *profile.PaymentAccountID)
	if err != nil {
		return "", apperrors.External("payment processor", err)
	}
	return url, nil
}

func (s *UserService) GetSellerProfile(ctx context.Context, userID uuid.UUID) (*models.SellerProfile, error) {
	return s.sellerProfile(ctx, userID)
}

func (s *UserService) UpdateSellerProfile(ctx context.Context, userID uuid.UUID, req *UpdateSellerProfileRequest) (*models.SellerProfile, error) {
	if err := utils.ValidateRequest(req); err != nil {
		return nil, err
	}

	profile, err := s.sellerProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.StoreName != nil {
		updates["store_name"] = strings.TrimSpace(*req.StoreName)
	}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
	}
	if req.SocialLinks != nil {
		updates["social_links"] = socialLinks(req.SocialLinks)
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(profile).Updates(updates).Error; err != nil {
			return nil, apperrors.Internal("failed to update seller profile", err)
		}
	}
	return s.sellerProfile(ctx, userID)
}

// ApplyAccountUpdate records the payment processor's view of a connected
// account. It is the only writer of PaymentAccountReady.
func (s *UserService) ApplyAccountUpdate(tx *gorm.DB, account *AccountData) error {
	result := tx.Model(&models.SellerProfile{}).
		Where("payment_account_id = ?", account.ID).
		Update("payment_account_ready", account.Ready())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		logrus.WithField("account_id", account.ID).Warn("Account update for unknown seller profile")
	}
	return nil
}

// SetUserRole changes another user's role. Admins cannot change their own
// role, and PRODUCER is only granted to users who already have a seller
// profile; everyone else goes through BecomeProducer.
func (s *UserService) SetUserRole(ctx context.Context, actor policy.Subject, targetID uuid.UUID, role models.UserRole) (*models.User, error) {
	if !policy.Allowed(actor, policy.On(policy.ResourceUser), policy.ActionManage) {
		return nil, apperrors.Forbidden("only admins can change roles")
	}
	if !role.Valid() {
		return nil, apperrors.Validation("invalid role", apperrors.FieldError{Field: "role", Message: "role must be CUSTOMER, PRODUCER or ADMIN"})
	}
	if actor.UserID == targetID {
		return nil, apperrors.Forbidden("admins cannot change their own role")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", targetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("user")
			}
			return err
		}

		if role == models.UserRoleProducer {
			var profiles int64
			if err := tx.Model(&models.SellerProfile{}).Where("user_id = ?", targetID).Count(&profiles).Error; err != nil {
				return err
			}
			if profiles == 0 {
				return apperrors.Conflict("user has no seller profile; producers must complete seller onboarding")
			}
		}

		return tx.Model(&user).Update("role", role).Error
	})
	if err != nil {
		return nil, asServiceError(err, "failed to update role")
	}

	logrus.WithFields(logrus.Fields{
		"admin_id": actor.UserID,
		"user_id":  targetID,
		"role":     role,
	}).Info("User role changed")

	return s.GetUserByID(ctx, targetID)
}

func (s *UserService) sellerProfile(ctx context.Context, userID uuid.UUID) (*models.SellerProfile, error) {
	var profile models.SellerProfile
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("seller profile")
		}
		return nil, apperrors.Internal("failed to load seller profile", err)
	}
	return &profile, nil
}

func (s *UserService) onboardingLink(ctx context.Context, accountID string) (string, error) {
	url, err := s.payments.CreateOnboardingLink(ctx, accountID,
		s.frontendURL+"/seller/onboarding/refresh",
		s.frontendURL+"/seller/onboarding/complete",
	)
	if err != nil {
		return "", apperrors.External("payment processor", err)
	}
	return url, nil
}

func socialLinks(links map[string]string) models.JSONB {
	out := models.JSONB{}
	for k, v := range links {
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}
