package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// The cart owner always comes from the token; bodies carrying user_id are
// rejected by the strict decoder.
type addCartItemRequest struct {
	ProductID        uuid.UUID         `json:"product_id" validate:"required"`
	VariantID        string            `json:"variant_id" validate:"required,max=100"`
	Quantity         int               `json:"quantity" validate:"min=1,max=999"`
	SelectedOptions  map[string]string `json:"selected_options" validate:"omitempty,max=20"`
	SelectedBranchID *uuid.UUID        `json:"selected_branch_id"`
}

type updateCartItemRequest struct {
	Quantity         *int       `json:"quantity" validate:"required,max=999"`
	SelectedBranchID *uuid.UUID `json:"selected_branch_id"`
}

func CartGet(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		view, err := svc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func CartAddItem(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		var req addCartItemRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.AddItem(r.Context(), userID, cart.AddItemInput{
			ProductID:        req.ProductID,
			VariantID:        req.VariantID,
			Quantity:         req.Quantity,
			SelectedOptions:  req.SelectedOptions,
			SelectedBranchID: req.SelectedBranchID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func CartUpdateItem(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		key, err := itemKeyParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateCartItemRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.UpdateItem(r.Context(), userID, key, cart.UpdateItemInput{
			Quantity:         *req.Quantity,
			SelectedBranchID: req.SelectedBranchID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func CartRemoveItem(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		key, err := itemKeyParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.RemoveItem(r.Context(), userID, key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func CartClear(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		view, err := svc.Clear(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func requireUser(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == uuid.Nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, false
	}
	return userID, true
}

// itemKeyParam reads the {variantId} path segment and the optional
// product_id query parameter.
func itemKeyParam(r *http.Request) (cart.ItemKey, error) {
	variantID := strings.TrimSpace(chi.URLParam(r, "variantId"))
	if variantID == "" || len(variantID) > 100 {
		return cart.ItemKey{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid variantId")
	}
	productID, err := validators.ParseOptionalUUIDQuery(r, "product_id")
	if err != nil {
		return cart.ItemKey{}, err
	}
	return cart.ItemKey{VariantID: variantID, ProductID: productID}, nil
}
