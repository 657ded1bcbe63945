package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Brand struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Slug      string    `gorm:"column:slug;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// Product owns its variants as an embedded JSONB document; variants are not
// addressable rows.
type Product struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	BrandID   *uuid.UUID `gorm:"column:brand_id;type:uuid"`
	Name      string     `gorm:"column:name;not null"`
	Slug      string     `gorm:"column:slug;not null"`
	Thumbnail *string    `gorm:"column:thumbnail"`
	IsActive  bool       `gorm:"column:is_active;not null"`
	Variants  []Variant  `gorm:"column:variants;type:jsonb;serializer:json;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

type Variant struct {
	VariantID string            `json:"variant_id"`
	Price     decimal.Decimal   `json:"price"`
	Options   map[string]string `json:"options,omitempty"`
	Inventory []BranchInventory `json:"inventory"`
}

type BranchInventory struct {
	BranchID uuid.UUID `json:"branch_id"`
	Quantity int       `json:"quantity"`
}

// FindVariant walks the embedded list by identifier.
func (p *Product) FindVariant(variantID string) (Variant, bool) {
	if p == nil {
		return Variant{}, false
	}
	for _, v := range p.Variants {
		if v.VariantID == variantID {
			return v, true
		}
	}
	return Variant{}, false
}

// ReferencesBranch reports whether any variant stocks the branch.
func (p *Product) ReferencesBranch(branchID uuid.UUID) bool {
	for _, v := range p.Variants {
		for _, inv := range v.Inventory {
			if inv.BranchID == branchID {
				return true
			}
		}
	}
	return false
}

// RemoveInventory drops every inventory entry rejected by keep and returns
// how many entries were removed.
func (p *Product) RemoveInventory(keep func(BranchInventory) bool) int {
	removed := 0
	for i := range p.Variants {
		entries := p.Variants[i].Inventory
		kept := make([]BranchInventory, 0, len(entries))
		for _, inv := range entries {
			if keep(inv) {
				kept = append(kept, inv)
				continue
			}
			removed++
		}
		p.Variants[i].Inventory = kept
	}
	return removed
}
