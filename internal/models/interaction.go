// internal/models/interaction.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// TrackLike is one user's like of a track. The pair is the primary key.
type TrackLike struct {
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey"`
	TrackID   uuid.UUID `json:"track_id" gorm:"type:uuid;primaryKey;index"`
	CreatedAt time.Time `json:"created_at"`
}

// ProducerFollow is one user following a producer.
type ProducerFollow struct {
	FollowerID uuid.UUID `json:"follower_id" gorm:"type:uuid;primaryKey"`
	ProducerID uuid.UUID `json:"producer_id" gorm:"type:uuid;primaryKey;index"`
	CreatedAt  time.Time `json:"created_at"`
}
