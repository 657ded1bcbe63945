package inventory

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
)

// Catalog is the read-only slice of the product catalog the resolver needs.
type Catalog interface {
	FindVariant(ctx context.Context, productID uuid.UUID, variantID string) (models.Variant, bool, error)
	FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
}

// Ref addresses one variant inside one product.
type Ref struct {
	ProductID uuid.UUID
	VariantID string
}

// Resolution is either a resolved variant or a stale marker. Absence is not
// an error: callers branch on Stale.
type Resolution struct {
	Variant models.Variant
	Stale   bool
}

func Resolved(v models.Variant) Resolution { return Resolution{Variant: v} }

func Stale() Resolution { return Resolution{Stale: true} }

// Resolver looks up variants and their purchasable stock. It never mutates
// the catalog.
type Resolver interface {
	Resolve(ctx context.Context, productID uuid.UUID, variantID string) (Resolution, error)
	ResolveAll(ctx context.Context, refs []Ref) (map[Ref]Resolution, error)
	AvailableQuantity(ctx context.Context, productID uuid.UUID, variantID string, branchID *uuid.UUID) (int, error)
}

type resolver struct {
	catalog Catalog
}

func NewResolver(catalog Catalog) (Resolver, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	return &resolver{catalog: catalog}, nil
}

func (r *resolver) Resolve(ctx context.Context, productID uuid.UUID, variantID string) (Resolution, error) {
	variant, found, err := r.catalog.FindVariant(ctx, productID, variantID)
	if err != nil {
		return Resolution{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variant")
	}
	if !found {
		return Stale(), nil
	}
	return Resolved(variant), nil
}

// ResolveAll resolves many refs with one catalog round trip.
func (r *resolver) ResolveAll(ctx context.Context, refs []Ref) (map[Ref]Resolution, error) {
	out := make(map[Ref]Resolution, len(refs))
	if len(refs) == 0 {
		return out, nil
	}
	seen := map[uuid.UUID]struct{}{}
	ids := make([]uuid.UUID, 0, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref.ProductID]; ok {
			continue
		}
		seen[ref.ProductID] = struct{}{}
		ids = append(ids, ref.ProductID)
	}

	products, err := r.catalog.FindProducts(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
	}
	for _, ref := range refs {
		variant, ok := products[ref.ProductID].FindVariant(ref.VariantID)
		if !ok {
			out[ref] = Stale()
			continue
		}
		out[ref] = Resolved(variant)
	}
	return out, nil
}

func (r *resolver) AvailableQuantity(ctx context.Context, productID uuid.UUID, variantID string, branchID *uuid.UUID) (int, error) {
	res, err := r.Resolve(ctx, productID, variantID)
	if err != nil {
		return 0, err
	}
	if res.Stale {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").
			WithReason(pkgerrors.ReasonVariantNotFound)
	}
	return Available(res.Variant, branchID), nil
}

// Available returns the branch's stock when branchID is set (zero when the
// branch holds no record), otherwise the sum across all branches.
func Available(variant models.Variant, branchID *uuid.UUID) int {
	total := 0
	for _, inv := range variant.Inventory {
		if branchID != nil {
			if inv.BranchID == *branchID {
				return max(inv.Quantity, 0)
			}
			continue
		}
		total += max(inv.Quantity, 0)
	}
	return total
}
