// internal/models/admin.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditLog struct {
	BaseModel
	UserID       *uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	Action       string     `json:"action" gorm:"size:100;not null;index"`
	ResourceType string     `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   *uuid.UUID `json:"resource_id" gorm:"type:uuid;index"`
	NewValues    JSONB      `json:"new_values" gorm:"type:jsonb"`
	StatusCode   int        `json:"status_code"`
	IPAddress    string     `json:"ip_address" gorm:"size:45"`
	UserAgent    string     `json:"user_agent" gorm:"type:text"`

	// Relationships
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// ModerationQueueEntry is a user report against a track.
type ModerationQueueEntry struct {
	BaseModel
	TrackID        uuid.UUID    `json:"track_id" gorm:"type:uuid;not null;index"`
	ReporterID     uuid.UUID    `json:"reporter_id" gorm:"type:uuid;not null;index"`
	Reason         string       `json:"reason" gorm:"type:text;not null"`
	Status         ReportStatus `json:"status" gorm:"type:varchar(20);default:'OPEN';not null;index"`
	ResolvedByID   *uuid.UUID   `json:"resolved_by_id" gorm:"type:uuid"`
	ResolvedAt     *time.Time   `json:"resolved_at"`
	ResolutionNote string       `json:"resolution_note" gorm:"type:text"`

	// Relationships
	Track    *Track `json:"track,omitempty" gorm:"foreignKey:TrackID"`
	Reporter *User  `json:"reporter,omitempty" gorm:"foreignKey:ReporterID"`
}

func (ModerationQueueEntry) TableName() string {
	return "moderation_queue"
}

// WebhookEvent records every processed provider event so redeliveries are
// acknowledged without side effects.
type WebhookEvent struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Provider    string    `json:"provider" gorm:"size:32;not null;uniqueIndex:idx_webhook_provider_event"`
	EventID     string    `json:"event_id" gorm:"size:255;not null;uniqueIndex:idx_webhook_provider_event"`
	Type        string    `json:"type" gorm:"size:100;not null"`
	ProcessedAt time.Time `json:"processed_at"`
}

func (e *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.ProcessedAt.IsZero() {
		e.ProcessedAt = time.Now()
	}
	return nil
}
