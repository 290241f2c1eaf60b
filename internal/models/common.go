// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	}
	return nil
}

// Enums
type UserRole string

const (
	UserRoleCustomer UserRole = "CUSTOMER"
	UserRoleProducer UserRole = "PRODUCER"
	UserRoleAdmin    UserRole = "ADMIN"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleCustomer, UserRoleProducer, UserRoleAdmin:
		return true
	}
	return false
}

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

type TrackStatus string

const (
	TrackStatusDraft         TrackStatus = "DRAFT"
	TrackStatusPendingReview TrackStatus = "PENDING_REVIEW"
	TrackStatusPublished     TrackStatus = "PUBLISHED"
	TrackStatusRejected      TrackStatus = "REJECTED"
)

type LicenseType string

const (
	LicenseTypeBasic     LicenseType = "BASIC"
	LicenseTypePremium   LicenseType = "PREMIUM"
	LicenseTypeExclusive LicenseType = "EXCLUSIVE"
	LicenseTypeUnlimited LicenseType = "UNLIMITED"
)

var LicenseTypes = []LicenseType{
	LicenseTypeBasic,
	LicenseTypePremium,
	LicenseTypeExclusive,
	LicenseTypeUnlimited,
}

func (t LicenseType) Valid() bool {
	for _, lt := range LicenseTypes {
		if lt == t {
			return true
		}
	}
	return false
}

type TrackFileType string

const (
	TrackFileTypePreviewAudio TrackFileType = "PREVIEW_AUDIO"
	TrackFileTypeCoverImage   TrackFileType = "COVER_IMAGE"
	TrackFileTypeMainMP3      TrackFileType = "MAIN_MP3"
	TrackFileTypeMainWAV      TrackFileType = "MAIN_WAV"
	TrackFileTypeStems        TrackFileType = "STEMS"
)

var TrackFileTypes = []TrackFileType{
	TrackFileTypePreviewAudio,
	TrackFileTypeCoverImage,
	TrackFileTypeMainMP3,
	TrackFileTypeMainWAV,
	TrackFileTypeStems,
}

func (t TrackFileType) Valid() bool {
	for _, ft := range TrackFileTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// IsPublic reports whether files of this type may be served without an entitlement.
func (t TrackFileType) IsPublic() bool {
	return t == TrackFileTypePreviewAudio || t == TrackFileTypeCoverImage
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

type ReportStatus string

const (
	ReportStatusOpen      ReportStatus = "OPEN"
	ReportStatusResolved  ReportStatus = "RESOLVED"
	ReportStatusDismissed ReportStatus = "DISMISSED"
)

type TagKind string

const (
	TagKindGenre   TagKind = "genre"
	TagKindMood    TagKind = "mood"
	TagKindKeyword TagKind = "keyword"
)
