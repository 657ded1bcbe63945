package cart

import (
	"time"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// View is the cart as returned to clients, joined with product display data.
type View struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Items         []ItemView      `json:"items"`
	ItemCount     int             `json:"item_count"`
	TotalQuantity int             `json:"total_quantity"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Version       int64           `json:"version"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type ItemView struct {
	ProductID        uuid.UUID         `json:"product_id"`
	VariantID        string            `json:"variant_id"`
	Quantity         int               `json:"quantity"`
	SelectedOptions  map[string]string `json:"selected_options,omitempty"`
	Price            decimal.Decimal   `json:"price"`
	LineTotal        decimal.Decimal   `json:"line_total"`
	SelectedBranchID *uuid.UUID        `json:"selected_branch_id,omitempty"`
	AddedAt          time.Time         `json:"added_at"`
	ProductName      string            `json:"product_name"`
	ProductSlug      string            `json:"product_slug"`
	Thumbnail        *string           `json:"thumbnail,omitempty"`
	BrandName        *string           `json:"brand_name,omitempty"`
}

func buildView(cart *models.Cart, displays map[uuid.UUID]catalog.ProductDisplay) *View {
	view := &View{
		ID:          cart.ID,
		UserID:      cart.UserID,
		Items:       make([]ItemView, 0, len(cart.Items)),
		ItemCount:   len(cart.Items),
		TotalAmount: cart.TotalAmount,
		Version:     cart.Version,
		UpdatedAt:   cart.UpdatedAt,
	}
	for _, item := range cart.Items {
		iv := ItemView{
			ProductID:        item.ProductID,
			VariantID:        item.VariantID,
			Quantity:         item.Quantity,
			SelectedOptions:  item.SelectedOptions,
			Price:            item.Price,
			LineTotal:        item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
			SelectedBranchID: item.SelectedBranchID,
			AddedAt:          item.AddedAt,
		}
		if d, ok := displays[item.ProductID]; ok {
			iv.ProductName = d.Name
			iv.ProductSlug = d.Slug
			iv.Thumbnail = d.Thumbnail
			iv.BrandName = d.BrandName
		}
		view.TotalQuantity += item.Quantity
		view.Items = append(view.Items, iv)
	}
	return view
}

// totalOf sums price × quantity over the items.
func totalOf(items []models.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
