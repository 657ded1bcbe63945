// Package dbtest opens isolated in-memory sqlite databases carrying the
// storefront schema, for repository and service tests.
package dbtest

import (
	"fmt"
	"io"
	"log"
	"regexp"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]`)

const schema = `
CREATE TABLE IF NOT EXISTS brands (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  slug TEXT NOT NULL,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  brand_id TEXT,
  name TEXT NOT NULL,
  slug TEXT NOT NULL,
  thumbnail TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  variants TEXT NOT NULL DEFAULT '[]',
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS branches (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  address TEXT NOT NULL,
  contact TEXT,
  province_code TEXT NOT NULL,
  district_code TEXT NOT NULL,
  ward_code TEXT NOT NULL,
  province_name TEXT,
  district_name TEXT,
  ward_name TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  items TEXT NOT NULL DEFAULT '[]',
  total_amount TEXT NOT NULL DEFAULT '0',
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`

// Open returns a fresh database named after the running test. The pool is
// pinned to one connection so shared-cache table locks never surface.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", unsafeName.ReplaceAllString(t.Name(), "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.New(log.New(io.Discard, "", 0), gormlogger.Config{LogLevel: gormlogger.Silent}),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, table := range []string{"carts", "branches", "products", "brands"} {
		if err := conn.Exec("DROP TABLE IF EXISTS " + table).Error; err != nil {
			t.Fatalf("drop %s: %v", table, err)
		}
	}
	if err := conn.Exec(schema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return conn
}

func SeedBrand(t testing.TB, conn *gorm.DB, name string) *models.Brand {
	t.Helper()
	brand := &models.Brand{Name: name, Slug: unsafeName.ReplaceAllString(name, "-")}
	if err := conn.Create(brand).Error; err != nil {
		t.Fatalf("seed brand: %v", err)
	}
	return brand
}

func SeedBranch(t testing.TB, conn *gorm.DB, name string) *models.Branch {
	t.Helper()
	branch := &models.Branch{
		Name:         name,
		Address:      "1 Lê Lợi",
		ProvinceCode: "202",
		DistrictCode: "1442",
		WardCode:     "20101",
	}
	if err := conn.Create(branch).Error; err != nil {
		t.Fatalf("seed branch: %v", err)
	}
	return branch
}

func SeedProduct(t testing.TB, conn *gorm.DB, name string, brandID *uuid.UUID, variants ...models.Variant) *models.Product {
	t.Helper()
	if variants == nil {
		variants = []models.Variant{}
	}
	product := &models.Product{
		BrandID:  brandID,
		Name:     name,
		Slug:     unsafeName.ReplaceAllString(name, "-"),
		IsActive: true,
		Variants: variants,
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// Variant builds a variant priced in whole units with stock per branch.
func Variant(id string, price int64, stock map[uuid.UUID]int) models.Variant {
	v := models.Variant{
		VariantID: id,
		Price:     decimal.NewFromInt(price),
		Options:   map[string]string{},
		Inventory: []models.BranchInventory{},
	}
	for branchID, qty := range stock {
		v.Inventory = append(v.Inventory, models.BranchInventory{BranchID: branchID, Quantity: qty})
	}
	return v
}

// Now is a stable UTC timestamp for fixtures.
func Now() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}
