package cart

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/google/uuid"
)

const defaultMaxWriteAttempts = 5

const (
	opGet    = "get"
	opAdd    = "add_item"
	opUpdate = "update_item"
	opRemove = "remove_item"
	opClear  = "clear"
)

// Store persists carts with a version-checked write.
type Store interface {
	LoadOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	SaveIfVersion(ctx context.Context, cart *models.Cart) error
	Clear(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
}

type displayLoader interface {
	ProductDisplays(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.ProductDisplay, error)
}

// Service exposes the per-user cart. Every operation returns the cart as
// persisted after the operation, joined with product display data.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*View, error)
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*View, error)
	UpdateItem(ctx context.Context, userID uuid.UUID, key ItemKey, input UpdateItemInput) (*View, error)
	RemoveItem(ctx context.Context, userID uuid.UUID, key ItemKey) (*View, error)
	Clear(ctx context.Context, userID uuid.UUID) (*View, error)
}

type AddItemInput struct {
	ProductID        uuid.UUID
	VariantID        string
	Quantity         int
	SelectedOptions  map[string]string
	SelectedBranchID *uuid.UUID
}

// ItemKey addresses a cart line. Variant ids are only unique inside their
// product, so ProductID is required when the cart holds the same variant id
// under more than one product.
type ItemKey struct {
	VariantID string
	ProductID *uuid.UUID
}

func (k ItemKey) matches(item models.CartItem) bool {
	if item.VariantID != k.VariantID {
		return false
	}
	return k.ProductID == nil || item.ProductID == *k.ProductID
}

type UpdateItemInput struct {
	Quantity         int
	SelectedBranchID *uuid.UUID
}

type Options struct {
	MaxWriteAttempts int
	Metrics          *metrics.CartMetrics
	Now              func() time.Time
}

type service struct {
	store       Store
	resolver    inventory.Resolver
	displays    displayLoader
	logg        *logger.Logger
	metrics     *metrics.CartMetrics
	maxAttempts int
	now         func() time.Time
}

// NewService builds the cart service.
func NewService(store Store, resolver inventory.Resolver, displays displayLoader, logg *logger.Logger, opts Options) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("inventory resolver required")
	}
	if displays == nil {
		return nil, fmt.Errorf("product display loader required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	attempts := opts.MaxWriteAttempts
	if attempts <= 0 {
		attempts = defaultMaxWriteAttempts
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		store:       store,
		resolver:    resolver,
		displays:    displays,
		logg:        logg,
		metrics:     opts.Metrics,
		maxAttempts: attempts,
		now:         now,
	}, nil
}

// mutation edits a loaded cart. When changed is true the cart is persisted
// before err (if any) is returned; when changed is false err is returned as is.
type mutation func(cart *models.Cart, resolved map[inventory.Ref]inventory.Resolution) (changed bool, err error)

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*View, error) {
	return s.mutate(ctx, opGet, userID, nil, nil, func(cart *models.Cart, _ map[inventory.Ref]inventory.Resolution) (bool, error) {
		return !cart.TotalAmount.Equal(totalOf(cart.Items)), nil
	})
}

func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*View, error) {
	variantID := strings.TrimSpace(input.VariantID)
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if variantID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant_id is required")
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	ref := inventory.Ref{ProductID: input.ProductID, VariantID: variantID}

	return s.mutate(ctx, opAdd, userID, nil, []inventory.Ref{ref}, func(cart *models.Cart, resolved map[inventory.Ref]inventory.Resolution) (bool, error) {
		res := resolved[ref]
		if res.Stale {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").
				WithReason(pkgerrors.ReasonVariantNotFound)
		}
		variant := res.Variant

		idx := slices.IndexFunc(cart.Items, func(item models.CartItem) bool { return refOf(item) == ref })
		if idx >= 0 {
			item := &cart.Items[idx]
			branch := item.SelectedBranchID
			if input.SelectedBranchID != nil {
				branch = input.SelectedBranchID
			}
			requested := item.Quantity + input.Quantity
			if err := checkStock(variant, branch, requested); err != nil {
				return false, err
			}
			item.Quantity = requested
			item.Price = variant.Price
			item.SelectedBranchID = branch
			return true, nil
		}

		if err := checkStock(variant, input.SelectedBranchID, input.Quantity); err != nil {
			return false, err
		}
		selected := input.SelectedOptions
		if len(selected) == 0 {
			selected = deriveOptions(variant.Options)
		}
		cart.Items = append(cart.Items, models.CartItem{
			ProductID:        input.ProductID,
			VariantID:        variant.VariantID,
			Quantity:         input.Quantity,
			SelectedOptions:  selected,
			Price:            variant.Price,
			SelectedBranchID: input.SelectedBranchID,
			AddedAt:          s.now(),
		})
		return true, nil
	})
}

func (s *service) UpdateItem(ctx context.Context, userID uuid.UUID, key ItemKey, input UpdateItemInput) (*View, error) {
	key.VariantID = strings.TrimSpace(key.VariantID)
	if key.VariantID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant_id is required")
	}
	if input.Quantity <= 0 {
		return s.RemoveItem(ctx, userID, key)
	}

	return s.mutate(ctx, opUpdate, userID, key.matches, nil, func(cart *models.Cart, resolved map[inventory.Ref]inventory.Resolution) (bool, error) {
		idx, err := locate(cart.Items, key)
		if err != nil {
			return false, err
		}
		if idx < 0 {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart").
				WithReason(pkgerrors.ReasonItemNotFound)
		}
		item := &cart.Items[idx]
		res := resolved[refOf(*item)]
		if res.Stale {
			cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
			return true, pkgerrors.New(pkgerrors.CodeGone, "item is no longer available and was removed from the cart").
				WithReason(pkgerrors.ReasonItemRemoved).
				WithDetails(map[string]string{"variant_id": key.VariantID})
		}

		branch := item.SelectedBranchID
		if input.SelectedBranchID != nil {
			branch = input.SelectedBranchID
		}
		if err := checkStock(res.Variant, branch, input.Quantity); err != nil {
			return false, err
		}
		item.Quantity = input.Quantity
		item.Price = res.Variant.Price
		item.SelectedBranchID = branch
		return true, nil
	})
}

func (s *service) RemoveItem(ctx context.Context, userID uuid.UUID, key ItemKey) (*View, error) {
	key.VariantID = strings.TrimSpace(key.VariantID)
	return s.mutate(ctx, opRemove, userID, nil, nil, func(cart *models.Cart, _ map[inventory.Ref]inventory.Resolution) (bool, error) {
		idx, err := locate(cart.Items, key)
		if err != nil {
			return false, err
		}
		if idx < 0 {
			return false, nil
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		return true, nil
	})
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) (*View, error) {
	cart, err := s.store.Clear(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
	}
	s.metrics.IncMutation(opClear)
	return s.view(ctx, cart)
}

// mutate runs fn against a freshly loaded cart and retries on version
// conflicts. Stale items are pruned before fn runs, except items matched by
// keep, which fn handles itself. extra refs are resolved in the same
// catalog round trip.
func (s *service) mutate(ctx context.Context, op string, userID uuid.UUID, keep func(models.CartItem) bool, extra []inventory.Ref, fn mutation) (*View, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		cart, err := s.store.LoadOrCreate(ctx, userID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
		}

		refs := make([]inventory.Ref, 0, len(cart.Items)+len(extra))
		for _, item := range cart.Items {
			refs = append(refs, refOf(item))
		}
		refs = append(refs, extra...)
		resolved, err := s.resolver.ResolveAll(ctx, refs)
		if err != nil {
			return nil, err
		}

		pruned := pruneStale(cart, resolved, keep)

		changed, opErr := fn(cart, resolved)
		if !changed && pruned == 0 {
			if opErr != nil {
				return nil, opErr
			}
			return s.view(ctx, cart)
		}
		if !changed && opErr != nil {
			// Validation failures leave the cart untouched, prunes included.
			return nil, opErr
		}

		cart.TotalAmount = totalOf(cart.Items)
		err = s.store.SaveIfVersion(ctx, cart)
		if errors.Is(err, ErrVersionConflict) {
			s.metrics.IncConflict(op)
			s.logg.Debug(s.logg.WithFields(ctx, map[string]any{"operation": op, "attempt": attempt}), "cart version conflict, retrying")
			continue
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cart")
		}

		if pruned > 0 {
			s.metrics.AddPruned(pruned)
			s.logg.Info(s.logg.WithField(ctx, "pruned", pruned), "removed unavailable items from cart")
		}
		if changed {
			s.metrics.IncMutation(op)
		}
		if opErr != nil {
			return nil, opErr
		}
		return s.view(ctx, cart)
	}

	s.logg.Warn(s.logg.WithField(ctx, "operation", op), "cart write attempts exhausted")
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart was modified concurrently, please retry").
		WithReason(pkgerrors.ReasonCartConcurrentEdit)
}

func (s *service) view(ctx context.Context, cart *models.Cart) (*View, error) {
	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	displays, err := s.displays.ProductDisplays(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart view").
			WithReason(pkgerrors.ReasonCartViewFailed)
	}
	return buildView(cart, displays), nil
}

func checkStock(variant models.Variant, branchID *uuid.UUID, requested int) error {
	available := inventory.Available(variant, branchID)
	if requested <= available {
		return nil
	}
	details := pkgerrors.StockDetails{
		VariantID: variant.VariantID,
		Available: available,
		Requested: requested,
	}
	if branchID != nil {
		id := branchID.String()
		details.BranchID = &id
	}
	return pkgerrors.InsufficientStock(details)
}

func pruneStale(cart *models.Cart, resolved map[inventory.Ref]inventory.Resolution, keep func(models.CartItem) bool) int {
	kept := cart.Items[:0]
	pruned := 0
	for _, item := range cart.Items {
		if resolved[refOf(item)].Stale && (keep == nil || !keep(item)) {
			pruned++
			continue
		}
		kept = append(kept, item)
	}
	cart.Items = kept
	return pruned
}

// locate returns the index of the line key selects, or -1. A variant id
// shared by several lines without a product id is rejected.
func locate(items []models.CartItem, key ItemKey) (int, error) {
	idx := -1
	for i, item := range items {
		if !key.matches(item) {
			continue
		}
		if idx >= 0 {
			return -1, pkgerrors.New(pkgerrors.CodeValidation, "variant_id matches more than one cart item, product_id is required").
				WithReason(pkgerrors.ReasonAmbiguousItem).
				WithDetails(map[string]string{"variant_id": key.VariantID})
		}
		idx = i
	}
	return idx, nil
}

func refOf(item models.CartItem) inventory.Ref {
	return inventory.Ref{ProductID: item.ProductID, VariantID: item.VariantID}
}
