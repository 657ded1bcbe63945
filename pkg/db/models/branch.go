package models

import (
	"time"

	"github.com/google/uuid"
)

// Branch is a physical location holding its own per-variant stock.
// Province, district and ward codes are issued by the address registry;
// the names are captured when the triple is validated.
type Branch struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name         string    `gorm:"column:name;not null"`
	Address      string    `gorm:"column:address;not null"`
	Contact      *string   `gorm:"column:contact"`
	ProvinceCode string    `gorm:"column:province_code;not null"`
	DistrictCode string    `gorm:"column:district_code;not null"`
	WardCode     string    `gorm:"column:ward_code;not null"`
	ProvinceName string    `gorm:"column:province_name"`
	DistrictName string    `gorm:"column:district_name"`
	WardName     string    `gorm:"column:ward_name"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
