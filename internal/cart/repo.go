package cart

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrVersionConflict reports that the cart changed between load and save.
var ErrVersionConflict = errors.New("cart version conflict")

// Repository persists one cart row per user.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// FindByUser loads the user's cart, returning gorm.ErrRecordNotFound when absent.
func (r *Repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	if err := r.DB(ctx).Where("user_id = ?", userID).First(&cart).Error; err != nil {
		return nil, err
	}
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	return &cart, nil
}

// LoadOrCreate returns the user's cart, inserting an empty one on first
// access. Concurrent first accesses converge on a single row.
func (r *Repository) LoadOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := r.FindByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := newEmptyCart(userID)
	err = r.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(fresh).Error
	if err != nil && !db.IsUniqueViolation(err, "") {
		return nil, err
	}
	return r.FindByUser(ctx, userID)
}

// SaveIfVersion writes items and total only if the stored version still
// equals cart.Version, then advances cart.Version.
func (r *Repository) SaveIfVersion(ctx context.Context, cart *models.Cart) error {
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	next := cart.Version + 1
	now := time.Now().UTC()
	res := r.DB(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND version = ?", cart.ID, cart.Version).
		Select("items", "total_amount", "version", "updated_at").
		Updates(&models.Cart{
			Items:       cart.Items,
			TotalAmount: cart.TotalAmount,
			Version:     next,
			UpdatedAt:   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	cart.Version = next
	cart.UpdatedAt = now
	return nil
}

// Clear empties the user's cart in one upsert, creating it if needed.
func (r *Repository) Clear(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	fresh := newEmptyCart(userID)
	updates := clause.AssignmentColumns([]string{"items", "total_amount", "updated_at"})
	updates = append(updates, clause.Assignment{
		Column: clause.Column{Name: "version"},
		Value:  gorm.Expr("carts.version + 1"),
	})
	err := r.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoUpdates: updates}).
		Create(fresh).Error
	if err != nil {
		return nil, err
	}
	return r.FindByUser(ctx, userID)
}

func newEmptyCart(userID uuid.UUID) *models.Cart {
	return &models.Cart{
		UserID:      userID,
		Items:       []models.CartItem{},
		TotalAmount: decimal.Zero,
	}
}
