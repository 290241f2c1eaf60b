// internal/database/connection.go
package database

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/wavhaven-backend/internal/config"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

var DB *gorm.DB

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var err error

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel(cfg.LogLevel)),
		TranslateError: true,
	}

	// Connect to database
	DB, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection established successfully")
	return DB, nil
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	log.Println("Database connection closed successfully")
	return nil
}

func RunMigrations(db *gorm.DB) error {
	log.Println("Running database migrations...")

	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
			return fmt.Errorf("failed to create UUID extension: %w", err)
		}
	}

	if err := Migrate(db); err != nil {
		return err
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// Migrate creates the schema and the constraints the entitlement flow relies on.
// It only uses DDL understood by both Postgres and SQLite.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.SellerProfile{},
		&models.Tag{},
		&models.Track{},
		&models.TrackFile{},
		&models.License{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderFulfillment{},
		&models.UserDownloadPermission{},
		&models.ModerationQueueEntry{},
		&models.WebhookEvent{},
		&models.AuditLog{},
		&models.TrackLike{},
		&models.ProducerFollow{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createConstraints(db); err != nil {
		return fmt.Errorf("failed to create constraints: %w", err)
	}

	createIndexes(db)
	return nil
}

func createConstraints(db *gorm.DB) error {
	constraints := []string{
		// One live license per type and track
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_licenses_track_type ON licenses(track_id, type) WHERE deleted_at IS NULL",
		// One open report per reporter and track
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_moderation_open_report ON moderation_queue(track_id, reporter_id) WHERE status = 'OPEN' AND deleted_at IS NULL",
	}

	for _, stmt := range constraints {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

func createIndexes(db *gorm.DB) {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_tracks_status_created ON tracks(status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_tracks_status_plays ON tracks(status, play_count DESC)",
		"CREATE INDEX IF NOT EXISTS idx_tracks_min_price ON tracks(min_price)",
		"CREATE INDEX IF NOT EXISTS idx_licenses_price ON licenses(price)",
		"CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			log.Printf("Warning: Failed to create index: %s, Error: %v", index, err)
			// Continue with other indexes instead of failing completely
		}
	}
}

var defaultGenres = []string{"Hip Hop", "Trap", "R&B", "Drill", "House", "Lo-Fi", "Pop", "Afrobeats", "Reggaeton", "Boom Bap"}
var defaultMoods = []string{"Dark", "Chill", "Energetic", "Sad", "Happy", "Aggressive", "Romantic", "Epic"}

// SeedInitialData creates the catalog facets and, when configured, promotes the
// bootstrap administrator.
func SeedInitialData(db *gorm.DB, bootstrapAdminExternalID string) error {
	log.Println("Seeding initial data...")

	seed := func(kind models.TagKind, names []string) error {
		for _, name := range names {
			tag := models.Tag{Kind: kind, Name: name, Slug: utils.Slugify(name)}
			err := db.Where("kind = ? AND slug = ?", kind, tag.Slug).FirstOrCreate(&tag).Error
			if err != nil {
				return fmt.Errorf("failed to seed %s %q: %w", kind, name, err)
			}
		}
		return nil
	}
	if err := seed(models.TagKindGenre, defaultGenres); err != nil {
		return err
	}
	if err := seed(models.TagKindMood, defaultMoods); err != nil {
		return err
	}

	if bootstrapAdminExternalID != "" {
		result := db.Model(&models.User{}).
			Where("external_id = ?", bootstrapAdminExternalID).
			Update("role", models.UserRoleAdmin)
		if result.Error != nil {
			return fmt.Errorf("failed to promote bootstrap admin: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			log.Println("Bootstrap admin promoted")
		}
	}

	log.Println("Initial data seeding completed")
	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// IsUniqueViolation reports whether err is a unique constraint failure.
// Requires gorm.Config.TranslateError.
func IsUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
