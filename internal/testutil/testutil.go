// Package testutil provides an in-memory database, model factories and fakes
// of the outside systems for service and handler tests.
package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/wavhaven-backend/internal/config"
	"github.com/javajoker/wavhaven-backend/internal/database"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

// NewDB opens a private in-memory SQLite database with the full schema.
// A single connection keeps every statement on the same memory database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=off"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// Config returns a development configuration suitable for tests.
func Config() *config.Config {
	return &config.Config{
		Environment: "test",
		Auth: config.AuthConfig{
			JWTSecret:             "test-secret",
			IdentityWebhookSecret: "whsec_dGVzdC1zZWNyZXQ=",
		},
		AWS: config.AWSConfig{
			S3Bucket:     "tracks-test",
			SignedURLTTL: 60,
			EmailLinkTTL: 72,
			MaxUploadMB:  500,
		},
		Payment: config.PaymentConfig{
			Currency: "usd",
		},
		Frontend: config.FrontendConfig{
			BaseURL: "https://wavhaven.test",
		},
		RateLimit: config.RateLimitConfig{
			CheckoutAttempts: 5,
			CheckoutWindow:   60,
			RequestsPerSec:   1000,
			Burst:            1000,
		},
	}
}

func CreateUser(t *testing.T, db *gorm.DB, role models.UserRole) *models.User {
	t.Helper()

	id := uuid.New()
	username := "user_" + id.String()[:8]
	user := &models.User{
		BaseModel:  models.BaseModel{ID: id},
		ExternalID: "ext_" + id.String(),
		Email:      username + "@example.com",
		Username:   &username,
		Name:       "Test " + string(role),
		Role:       role,
		Status:     models.UserStatusActive,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// TrackOption customizes CreateTrack.
type TrackOption func(*models.Track)

func WithBPM(bpm int) TrackOption {
	return func(t *models.Track) { t.BPM = &bpm }
}

func WithKey(key string) TrackOption {
	return func(t *models.Track) { t.Key = key }
}

func WithDescription(description string) TrackOption {
	return func(t *models.Track) { t.Description = description }
}

func WithGenres(tags ...models.Tag) TrackOption {
	return func(t *models.Track) { t.Genres = tags }
}

// CreateTrack inserts a track in the given status. Published tracks get a
// PublishedAt timestamp; licenses are added separately with CreateLicense.
func CreateTrack(t *testing.T, db *gorm.DB, producerID uuid.UUID, title string, status models.TrackStatus, opts ...TrackOption) *models.Track {
	t.Helper()

	track := &models.Track{
		ProducerID: producerID,
		Title:      title,
		Slug:       utils.Slugify(title) + "-" + uuid.NewString()[:6],
		Status:     status,
	}
	if status == models.TrackStatusPublished {
		now := time.Now()
		track.PublishedAt = &now
	}
	for _, opt := range opts {
		opt(track)
	}
	require.NoError(t, db.Create(track).Error)
	return track
}

// CreateLicense inserts a license and refreshes the track's cached minimum price.
func CreateLicense(t *testing.T, db *gorm.DB, trackID uuid.UUID, licenseType models.LicenseType, price string, files ...models.TrackFileType) *models.License {
	t.Helper()

	license := &models.License{
		TrackID: trackID,
		Type:    licenseType,
		Name:    string(licenseType),
		Price:   decimal.RequireFromString(price),
	}
	for _, f := range files {
		license.FilesIncluded = append(license.FilesIncluded, string(f))
	}
	require.NoError(t, db.Create(license).Error)

	var cheapest decimal.NullDecimal
	require.NoError(t, db.Model(&models.License{}).
		Select("MIN(price)").Where("track_id = ?", trackID).Row().Scan(&cheapest))
	require.NoError(t, db.Model(&models.Track{}).Where("id = ?", trackID).Update("min_price", cheapest).Error)
	return license
}

func CreateFile(t *testing.T, db *gorm.DB, trackID uuid.UUID, fileType models.TrackFileType, fileName string) *models.TrackFile {
	t.Helper()

	file := &models.TrackFile{
		TrackID:     trackID,
		FileType:    fileType,
		StoragePath: "tracks/" + trackID.String() + "/" + fileName,
		FileName:    fileName,
		SizeBytes:   1024,
	}
	require.NoError(t, db.Create(file).Error)
	return file
}

func CreateTag(t *testing.T, db *gorm.DB, kind models.TagKind, name string) models.Tag {
	t.Helper()

	tag := models.Tag{Kind: kind, Name: name, Slug: utils.Slugify(name)}
	require.NoError(t, db.Create(&tag).Error)
	return tag
}
