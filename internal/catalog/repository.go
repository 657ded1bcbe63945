package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultSweepBatchSize = 200

// ProductDisplay is the render-only projection joined into cart views.
type ProductDisplay struct {
	ProductID uuid.UUID `gorm:"column:id"`
	Name      string    `gorm:"column:name"`
	Slug      string    `gorm:"column:slug"`
	Thumbnail *string   `gorm:"column:thumbnail"`
	BrandName *string   `gorm:"column:brand_name"`
}

// SweepResult summarizes one orphaned-inventory pass.
type SweepResult struct {
	ProductsScanned int `json:"products_scanned"`
	ProductsUpdated int `json:"products_updated"`
	EntriesRemoved  int `json:"entries_removed"`
}

// Repository reads products and maintains their branch inventory references.
// Variants live in a JSONB column, so every write rewrites the whole list.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// FindProduct loads a product, returning gorm.ErrRecordNotFound when absent.
func (r *Repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.DB(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindVariant resolves a variant inside its product's embedded list. A
// missing product or variant is reported through found, not err.
func (r *Repository) FindVariant(ctx context.Context, productID uuid.UUID, variantID string) (models.Variant, bool, error) {
	product, err := r.FindProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Variant{}, false, nil
		}
		return models.Variant{}, false, err
	}
	variant, ok := product.FindVariant(variantID)
	return variant, ok, nil
}

// FindProducts batch-loads products keyed by id; unknown ids are omitted.
func (r *Repository) FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	out := make(map[uuid.UUID]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

// ProductDisplays joins product and brand display fields for the given ids.
func (r *Repository) ProductDisplays(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ProductDisplay, error) {
	out := make(map[uuid.UUID]ProductDisplay, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []ProductDisplay
	err := r.DB(ctx).
		Table("products").
		Select("products.id, products.name, products.slug, products.thumbnail, brands.name AS brand_name").
		Joins("LEFT JOIN brands ON brands.id = products.brand_id").
		Where("products.id IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ProductID] = row
	}
	return out, nil
}

// CountProductsReferencingBranch counts products whose inventory mentions branchID.
func (r *Repository) CountProductsReferencingBranch(ctx context.Context, branchID uuid.UUID) (int64, error) {
	candidates, err := r.referencingCandidates(r.DB(ctx), branchID, false)
	if err != nil {
		return 0, err
	}
	var count int64
	for i := range candidates {
		if candidates[i].ReferencesBranch(branchID) {
			count++
		}
	}
	return count, nil
}

// RemoveBranchFromProducts strips every inventory entry for branchID inside
// one transaction and returns how many products changed.
func (r *Repository) RemoveBranchFromProducts(ctx context.Context, branchID uuid.UUID) (int64, error) {
	var updated int64
	err := r.Tx(ctx, func(tx *gorm.DB) error {
		candidates, err := r.referencingCandidates(tx, branchID, true)
		if err != nil {
			return err
		}
		for i := range candidates {
			product := &candidates[i]
			removed := product.RemoveInventory(func(inv models.BranchInventory) bool {
				return inv.BranchID != branchID
			})
			if removed == 0 {
				continue
			}
			if err := saveVariants(tx, product); err != nil {
				return fmt.Errorf("strip branch from product %s: %w", product.ID, err)
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// CleanupOrphanedInventory removes inventory entries pointing at branches
// that no longer exist. Products are scanned in batches; each product found
// with orphans is re-read under a row lock and rewritten in its own
// transaction. A failed product does not stop the sweep and all failures
// are returned together.
func (r *Repository) CleanupOrphanedInventory(ctx context.Context, batchSize int) (SweepResult, error) {
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}

	var branchIDs []uuid.UUID
	if err := r.DB(ctx).Model(&models.Branch{}).Pluck("id", &branchIDs).Error; err != nil {
		return SweepResult{}, fmt.Errorf("load branch ids: %w", err)
	}
	known := make(map[uuid.UUID]bool, len(branchIDs))
	for _, id := range branchIDs {
		known[id] = true
	}

	var (
		result   SweepResult
		failures error
		batch    []models.Product
	)
	res := r.DB(ctx).Select("id", "variants").FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
		if err := refreshKnown(r.DB(ctx), batch, known); err != nil {
			return err
		}
		for i := range batch {
			result.ProductsScanned++
			if !hasOrphans(&batch[i], known) {
				continue
			}
			removed, err := r.stripOrphans(ctx, batch[i].ID, known)
			if err != nil {
				failures = multierr.Append(failures, fmt.Errorf("product %s: %w", batch[i].ID, err))
				continue
			}
			if removed > 0 {
				result.ProductsUpdated++
				result.EntriesRemoved += removed
			}
		}
		return nil
	})
	if res.Error != nil {
		return result, multierr.Append(failures, res.Error)
	}
	return result, failures
}

// stripOrphans rewrites one product from a locked read so concurrent stock
// writes between the batch scan and this update are kept.
func (r *Repository) stripOrphans(ctx context.Context, productID uuid.UUID, known map[uuid.UUID]bool) (int, error) {
	removed := 0
	err := r.Tx(ctx, func(tx *gorm.DB) error {
		query := tx.Select("id", "variants").Where("id = ?", productID)
		if r.Postgres() {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var product models.Product
		if err := query.Take(&product).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := refreshKnown(tx, []models.Product{product}, known); err != nil {
			return err
		}
		removed = product.RemoveInventory(func(inv models.BranchInventory) bool {
			return known[inv.BranchID]
		})
		if removed == 0 {
			return nil
		}
		return saveVariants(tx, &product)
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func hasOrphans(product *models.Product, known map[uuid.UUID]bool) bool {
	for _, v := range product.Variants {
		for _, inv := range v.Inventory {
			if !known[inv.BranchID] {
				return true
			}
		}
	}
	return false
}

// refreshKnown re-checks branch ids not seen yet, so a branch created after
// the sweep started is not treated as an orphan.
func refreshKnown(conn *gorm.DB, batch []models.Product, known map[uuid.UUID]bool) error {
	unknown := map[uuid.UUID]struct{}{}
	for i := range batch {
		for _, v := range batch[i].Variants {
			for _, inv := range v.Inventory {
				if !known[inv.BranchID] {
					unknown[inv.BranchID] = struct{}{}
				}
			}
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(unknown))
	for id := range unknown {
		ids = append(ids, id)
	}
	var found []uuid.UUID
	if err := conn.Model(&models.Branch{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return fmt.Errorf("recheck branch ids: %w", err)
	}
	for _, id := range found {
		known[id] = true
	}
	return nil
}

// referencingCandidates narrows products to those whose variants document
// mentions branchID. Postgres uses JSONB containment; other dialects match
// the serialized text. Callers confirm each hit with ReferencesBranch.
func (r *Repository) referencingCandidates(conn *gorm.DB, branchID uuid.UUID, lock bool) ([]models.Product, error) {
	query := conn.Model(&models.Product{}).Select("id", "variants")
	if r.Postgres() {
		doc, err := json.Marshal([]map[string]any{{
			"inventory": []map[string]string{{"branch_id": branchID.String()}},
		}})
		if err != nil {
			return nil, err
		}
		query = query.Where("variants @> ?::jsonb", string(doc))
		if lock {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
	} else {
		query = query.Where("variants LIKE ?", fmt.Sprintf(`%%"branch_id":"%s"%%`, branchID))
	}

	var rows []models.Product
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func saveVariants(conn *gorm.DB, product *models.Product) error {
	return conn.Model(&models.Product{ID: product.ID}).
		Select("variants", "updated_at").
		Updates(&models.Product{Variants: product.Variants, UpdatedAt: time.Now().UTC()}).Error
}
