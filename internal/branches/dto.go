package branches

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
)

// BranchDTO exposes a branch in API responses.
type BranchDTO struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	Contact      *string   `json:"contact,omitempty"`
	ProvinceCode string    `json:"province_code"`
	DistrictCode string    `json:"district_code"`
	WardCode     string    `json:"ward_code"`
	ProvinceName string    `json:"province_name,omitempty"`
	DistrictName string    `json:"district_name,omitempty"`
	WardName     string    `json:"ward_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func FromModel(m *models.Branch) *BranchDTO {
	if m == nil {
		return nil
	}
	return &BranchDTO{
		ID:           m.ID,
		Name:         m.Name,
		Address:      m.Address,
		Contact:      m.Contact,
		ProvinceCode: m.ProvinceCode,
		DistrictCode: m.DistrictCode,
		WardCode:     m.WardCode,
		ProvinceName: m.ProvinceName,
		DistrictName: m.DistrictName,
		WardName:     m.WardName,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// CreateInput holds the fields accepted when creating a branch.
type CreateInput struct {
	Name         string
	Address      string
	Contact      *string
	ProvinceCode string
	DistrictCode string
	WardCode     string
}

// UpdateInput is a partial patch; nil fields are left unchanged. The three
// address codes must be supplied together.
type UpdateInput struct {
	Name         *string
	Address      *string
	Contact      *string
	ProvinceCode *string
	DistrictCode *string
	WardCode     *string
}

type ListParams struct {
	Page      int
	Limit     int
	Search    string
	SortBy    string
	SortOrder string
}

type ListResult struct {
	Items      []BranchDTO `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

type ReferenceSummary struct {
	BranchID     uuid.UUID `json:"branch_id"`
	ProductCount int64     `json:"product_count"`
	Deletable    bool      `json:"deletable"`
}

type CascadeResult struct {
	BranchID        uuid.UUID `json:"branch_id"`
	ProductsUpdated int64     `json:"products_updated"`
}

type ProvinceStat struct {
	ProvinceCode string `gorm:"column:province_code" json:"province_code"`
	ProvinceName string `gorm:"column:province_name" json:"province_name,omitempty"`
	Count        int64  `gorm:"column:count" json:"count"`
}

type Stats struct {
	Total      int64          `json:"total"`
	ByProvince []ProvinceStat `json:"by_province"`
}

type listQuery struct {
	search     string
	sortColumn string
	sortDir    string
	limit      int
	offset     int
}
