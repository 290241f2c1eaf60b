// internal/models/track.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Track struct {
	BaseModel
	ProducerID      uuid.UUID           `json:"producer_id" gorm:"type:uuid;not null;index"`
	Title           string              `json:"title" gorm:"size:200;not null"`
	Slug            string              `json:"slug" gorm:"uniqueIndex;size:220;not null"`
	Description     string              `json:"description" gorm:"type:text"`
	BPM             *int                `json:"bpm" gorm:"index"`
	Key             string              `json:"key" gorm:"size:20;index"`
	PreviewURL      string              `json:"preview_url" gorm:"size:500"`
	CoverImageURL   string              `json:"cover_image_url" gorm:"size:500"`
	Status          TrackStatus         `json:"status" gorm:"type:varchar(20);default:'DRAFT';not null;index"`
	RejectionReason string              `json:"rejection_reason,omitempty" gorm:"type:text"`
	SubmittedAt     *time.Time          `json:"submitted_at"`
	PublishedAt     *time.Time          `json:"published_at"`
	PlayCount       int64               `json:"play_count" gorm:"default:0"`
	SalesCount      int64               `json:"sales_count" gorm:"default:0"`
	LikeCount       int64               `json:"like_count" gorm:"default:0"`
	MinPrice        decimal.NullDecimal `json:"min_price" gorm:"type:numeric(12,2)"`

	// Relationships
	Producer *User       `json:"producer,omitempty" gorm:"foreignKey:ProducerID"`
	Licenses []License   `json:"licenses,omitempty" gorm:"foreignKey:TrackID"`
	Files    []TrackFile `json:"files,omitempty" gorm:"foreignKey:TrackID"`
	Genres   []Tag       `json:"genres,omitempty" gorm:"many2many:track_genres"`
	Moods    []Tag       `json:"moods,omitempty" gorm:"many2many:track_moods"`
	Tags     []Tag       `json:"tags,omitempty" gorm:"many2many:track_tags"`
}

func (t *Track) IsPublished() bool {
	return t.Status == TrackStatusPublished
}

// Tag is a catalog facet (genre, mood or free keyword). Slug is the lowercase
// form used for filtering.
type Tag struct {
	BaseModel
	Kind TagKind `json:"kind" gorm:"type:varchar(20);not null;uniqueIndex:idx_tags_kind_slug"`
	Name string  `json:"name" gorm:"size:60;not null"`
	Slug string  `json:"slug" gorm:"size:60;not null;uniqueIndex:idx_tags_kind_slug"`
}

type TrackFile struct {
	BaseModel
	TrackID     uuid.UUID     `json:"track_id" gorm:"type:uuid;not null;index"`
	FileType    TrackFileType `json:"file_type" gorm:"type:varchar(20);not null;index"`
	StoragePath string        `json:"-" gorm:"size:500;not null"`
	FileName    string        `json:"file_name" gorm:"size:255"`
	ContentType string        `json:"content_type" gorm:"size:100"`
	SizeBytes   int64         `json:"size_bytes"`

	Track *Track `json:"track,omitempty" gorm:"foreignKey:TrackID"`
}
