// internal/models/order.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Order struct {
	BaseModel
	UserID           uuid.UUID       `json:"user_id" gorm:"type:uuid;not null;index"`
	Status           OrderStatus     `json:"status" gorm:"type:varchar(20);default:'PENDING';not null;index"`
	AmountTotal      decimal.Decimal `json:"amount_total" gorm:"type:numeric(12,2);not null"`
	Currency         string          `json:"currency" gorm:"size:3;not null"`
	PaymentSessionID *string         `json:"-" gorm:"uniqueIndex;size:255"`
	PaymentIntentID  string          `json:"-" gorm:"size:255;index"`
	CompletedAt      *time.Time      `json:"completed_at"`
	FailedAt         *time.Time      `json:"failed_at"`
	RefundedAt       *time.Time      `json:"refunded_at"`

	// Relationships
	User  *User       `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Items []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

// ItemsTotal sums the price snapshots of the loaded items.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.PriceAtPurchase)
	}
	return total
}

type OrderItem struct {
	BaseModel
	OrderID         uuid.UUID       `json:"order_id" gorm:"type:uuid;not null;index"`
	TrackID         uuid.UUID       `json:"track_id" gorm:"type:uuid;not null;index"`
	LicenseID       uuid.UUID       `json:"license_id" gorm:"type:uuid;not null;index"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase" gorm:"type:numeric(12,2);not null"`
	TrackTitle      string          `json:"track_title" gorm:"size:200"`
	LicenseName     string          `json:"license_name" gorm:"size:100"`
	LicenseType     LicenseType     `json:"license_type" gorm:"type:varchar(20)"`

	Track   *Track   `json:"track,omitempty" gorm:"foreignKey:TrackID"`
	License *License `json:"license,omitempty" gorm:"foreignKey:LicenseID"`
}

// OrderFulfillment is written once per order inside the fulfillment
// transaction. The unique order_id makes redelivered payment events no-ops.
type OrderFulfillment struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OrderID   uuid.UUID `json:"order_id" gorm:"type:uuid;not null;uniqueIndex"`
	EventID   string    `json:"event_id" gorm:"size:255"`
	CreatedAt time.Time `json:"created_at"`
}

func (f *OrderFulfillment) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// UserDownloadPermission is the entitlement minted for each item of a
// completed order. Rows are never updated.
type UserDownloadPermission struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index:idx_permissions_user_track"`
	TrackID     uuid.UUID `json:"track_id" gorm:"type:uuid;not null;index:idx_permissions_user_track"`
	OrderID     uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index"`
	OrderItemID uuid.UUID `json:"order_item_id" gorm:"type:uuid;not null;uniqueIndex"`
	LicenseID   uuid.UUID `json:"license_id" gorm:"type:uuid;not null"`
	CreatedAt   time.Time `json:"created_at"`

	Track   *Track   `json:"track,omitempty" gorm:"foreignKey:TrackID"`
	License *License `json:"license,omitempty" gorm:"foreignKey:LicenseID"`
	Order   *Order   `json:"order,omitempty" gorm:"foreignKey:OrderID"`
}

func (p *UserDownloadPermission) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
