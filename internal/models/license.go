// internal/models/license.go
package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type License struct {
	BaseModel
	TrackID       uuid.UUID       `json:"track_id" gorm:"type:uuid;not null;index"`
	Type          LicenseType     `json:"type" gorm:"type:varchar(20);not null"`
	Name          string          `json:"name" gorm:"size:100;not null"`
	Price         decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null"`
	FilesIncluded pq.StringArray  `json:"files_included" gorm:"type:text[]"`
	UsageTerms    string          `json:"usage_terms" gorm:"type:text"`

	Track *Track `json:"track,omitempty" gorm:"foreignKey:TrackID"`
}

// Covers reports whether the license grants access to files of the given type.
// An empty file list covers every file of the track.
func (l *License) Covers(fileType TrackFileType) bool {
	if fileType.IsPublic() || len(l.FilesIncluded) == 0 {
		return true
	}
	for _, included := range l.FilesIncluded {
		if TrackFileType(included) == fileType {
			return true
		}
	}
	return false
}
