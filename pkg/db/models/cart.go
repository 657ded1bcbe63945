package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart is the single per-user cart. Version is bumped on every write and
// guards conditional updates.
type Cart struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex:carts_user_id_key"`
	Items       []CartItem      `gorm:"column:items;type:jsonb;serializer:json;not null"`
	TotalAmount decimal.Decimal `gorm:"column:total_amount;type:numeric(14,2);not null"`
	Version     int64           `gorm:"column:version;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

type CartItem struct {
	ProductID        uuid.UUID         `json:"product_id"`
	VariantID        string            `json:"variant_id"`
	Quantity         int               `json:"quantity"`
	SelectedOptions  map[string]string `json:"selected_options,omitempty"`
	Price            decimal.Decimal   `json:"price"`
	SelectedBranchID *uuid.UUID        `json:"selected_branch_id,omitempty"`
	AddedAt          time.Time         `json:"added_at"`
}
