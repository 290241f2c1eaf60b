// internal/models/user.go
package models

import "github.com/google/uuid"

type User struct {
	BaseModel
	ExternalID string     `json:"-" gorm:"uniqueIndex;size:255;not null"`
	Email      string     `json:"email" gorm:"size:255;index"`
	Username   *string    `json:"username" gorm:"uniqueIndex;size:50"`
	Name       string     `json:"name" gorm:"size:150"`
	AvatarURL  string     `json:"avatar_url" gorm:"size:500"`
	Bio        string     `json:"bio" gorm:"type:text"`
	Role       UserRole   `json:"role" gorm:"type:varchar(20);default:'CUSTOMER';not null;index"`
	Status     UserStatus `json:"status" gorm:"type:varchar(20);default:'active';index"`

	// Relationships
	SellerProfile *SellerProfile `json:"seller_profile,omitempty" gorm:"foreignKey:UserID"`
	Tracks        []Track        `json:"tracks,omitempty" gorm:"foreignKey:ProducerID"`
	Orders        []Order        `json:"orders,omitempty" gorm:"foreignKey:UserID"`
}

func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	return u.Email
}

// SellerProfile exists for every user that opted into selling.
type SellerProfile struct {
	BaseModel
	UserID              uuid.UUID `json:"user_id" gorm:"type:uuid;uniqueIndex;not null"`
	StoreName           string    `json:"store_name" gorm:"size:100"`
	Bio                 string    `json:"bio" gorm:"type:text"`
	SocialLinks         JSONB     `json:"social_links" gorm:"type:jsonb"`
	PaymentAccountID    *string   `json:"-" gorm:"uniqueIndex;size:255"`
	PaymentAccountReady bool      `json:"payment_account_ready" gorm:"default:false"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// ProducerSummary is the public view of a producer embedded in catalog results.
type ProducerSummary struct {
	ID        uuid.UUID `json:"id"`
	Username  *string   `json:"username"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url"`
}

func (u *User) Summary() ProducerSummary {
	return ProducerSummary{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
	}
}
