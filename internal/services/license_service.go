// internal/services/license_service.go
package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/database"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/policy"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

var maxLicensePrice = decimal.NewFromInt(100000)

type LicenseService struct {
	db *gorm.DB
}

type UpsertLicenseRequest struct {
	Type          models.LicenseType     `json:"type" validate:"required,license_type"`
	Name          string                 `json:"name" validate:"required,min=1,max=100"`
	Price         decimal.Decimal        `json:"price"`
	FilesIncluded []models.TrackFileType `json:"files_included" validate:"dive,file_type"`
	UsageTerms    string                 `json:"usage_terms" validate:"max=10000"`
}

func NewLicenseService(db *gorm.DB) *LicenseService {
	return &LicenseService{db: db}
}

func (r *UpsertLicenseRequest) validate() error {
	if err := utils.ValidateRequest(r); err != nil {
		return err
	}
	if r.Price.IsNegative() {
		return apperrors.Validation("invalid price", apperrors.FieldError{Field: "price", Message: "price must not be negative"})
	}
	if r.Price.GreaterThan(maxLicensePrice) {
		return apperrors.Validation("invalid price", apperrors.FieldError{Field: "price", Message: "price exceeds the maximum"})
	}
	if !r.Price.Equal(r.Price.Round(2)) {
		return apperrors.Validation("invalid price", apperrors.FieldError{Field: "price", Message: "price supports at most two decimals"})
	}
	return nil
}

// filesIncluded keeps the gated file types, deduplicated. Public files need
// no license.
func (r *UpsertLicenseRequest) filesIncluded() pq.StringArray {
	out := pq.StringArray{}
	seen := map[models.TrackFileType]bool{}
	for _, ft := range r.FilesIncluded {
		if ft.IsPublic() || seen[ft] {
			continue
		}
		seen[ft] = true
		out = append(out, string(ft))
	}
	return out
}

func (s *LicenseService) List(ctx context.Context, trackID uuid.UUID) ([]models.License, error) {
	var licenses []models.License
	err := s.db.WithContext(ctx).
		Where("track_id = ?", trackID).
		Order("price ASC").
		Find(&licenses).Error
	if err != nil {
		return nil, apperrors.Internal("failed to list licenses", err)
	}
	return licenses, nil
}

// Upsert creates or replaces the track's license of req.Type. A track holds
// at most one live license per type.
func (s *LicenseService) Upsert(ctx context.Context, actor policy.Subject, trackID uuid.UUID, req *UpsertLicenseRequest) (*models.License, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var license models.License
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadTrackForUpdate(tx, actor, trackID, policy.ActionUpdate); err != nil {
			return err
		}

		err := tx.Where("track_id = ? AND type = ?", trackID, req.Type).First(&license).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			license = models.License{TrackID: trackID, Type: req.Type}
		case err != nil:
			return err
		}

		license.Name = req.Name
		license.Price = req.Price
		license.FilesIncluded = req.filesIncluded()
		license.UsageTerms = req.UsageTerms

		if err := tx.Omit("Track").Save(&license).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.Conflict("a license of this type already exists for the track")
			}
			return err
		}
		return recomputeMinPrice(tx, trackID)
	})
	if err != nil {
		return nil, asServiceError(err, "failed to save license")
	}

	logrus.WithFields(logrus.Fields{
		"track_id":   trackID,
		"license_id": license.ID,
		"type":       license.Type,
		"price":      license.Price.StringFixed(2),
	}).Info("License saved")

	return &license, nil
}

// Delete removes a license. A published track must keep at least one.
func (s *LicenseService) Delete(ctx context.Context, actor policy.Subject, licenseID uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var license models.License
		if err := tx.First(&license, "id = ?", licenseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("license")
			}
			return err
		}

		track, err := loadTrackForUpdate(tx, actor, license.TrackID, policy.ActionUpdate)
		if err != nil {
			return err
		}

		if track.Status == models.TrackStatusPublished || track.Status == models.TrackStatusPendingReview {
			var remaining int64
			if err := tx.Model(&models.License{}).Where("track_id = ?", track.ID).Count(&remaining).Error; err != nil {
				return err
			}
			if remaining <= 1 {
				return apperrors.Conflict("a published track must keep at least one license")
			}
		}

		if err := tx.Delete(&license).Error; err != nil {
			return err
		}
		return recomputeMinPrice(tx, track.ID)
	})
	if err != nil {
		return asServiceError(err, "failed to delete license")
	}

	logrus.WithField("license_id", licenseID).Info("License deleted")
	return nil
}

// recomputeMinPrice refreshes the denormalized cheapest license price used
// for catalog sorting.
func recomputeMinPrice(tx *gorm.DB, trackID uuid.UUID) error {
	var minPrice decimal.NullDecimal
	err := tx.Model(&models.License{}).
		Where("track_id = ?", trackID).
		Select("MIN(price)").
		Row().
		Scan(&minPrice)
	if err != nil {
		return err
	}

	return tx.Model(&models.Track{}).
		Where("id = ?", trackID).
		UpdateColumn("min_price", minPrice).Error
}
