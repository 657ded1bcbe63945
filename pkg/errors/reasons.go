package errors

import "fmt"

type Reason string

const (
	ReasonIncompleteAddress   Reason = "INCOMPLETE_ADDRESS"
	ReasonInvalidProvince     Reason = "INVALID_PROVINCE"
	ReasonInvalidDistrict     Reason = "INVALID_DISTRICT"
	ReasonInvalidWard         Reason = "INVALID_WARD"
	ReasonRegistryUnavailable Reason = "ADDRESS_REGISTRY_UNAVAILABLE"
	ReasonRegistryTimeout     Reason = "ADDRESS_REGISTRY_TIMEOUT"

	ReasonBranchNotFound Reason = "BRANCH_NOT_FOUND"
	ReasonBranchInUse    Reason = "BRANCH_IN_USE"

	ReasonVariantNotFound    Reason = "VARIANT_NOT_FOUND"
	ReasonItemNotFound       Reason = "ITEM_NOT_FOUND"
	ReasonItemRemoved        Reason = "ITEM_REMOVED"
	ReasonAmbiguousItem      Reason = "AMBIGUOUS_CART_ITEM"
	ReasonInsufficientStock  Reason = "INSUFFICIENT_STOCK"
	ReasonCartConcurrentEdit Reason = "CART_CONCURRENT_MODIFICATION"
	ReasonCartViewFailed     Reason = "CART_VIEW_FAILED"
)

type BranchInUseDetails struct {
	BranchID string `json:"branch_id"`
	Count    int64  `json:"count"`
}

type StockDetails struct {
	VariantID string  `json:"variant_id"`
	BranchID  *string `json:"branch_id,omitempty"`
	Available int     `json:"available"`
	Requested int     `json:"requested"`
}

func IncompleteAddress() *Error {
	return New(CodeValidation, "province_code, district_code and ward_code must be provided together").
		WithReason(ReasonIncompleteAddress)
}

func BranchInUse(branchID string, count int64) *Error {
	return New(CodeConflict, fmt.Sprintf("branch is referenced by %d product(s)", count)).
		WithReason(ReasonBranchInUse).
		WithDetails(BranchInUseDetails{BranchID: branchID, Count: count})
}

func InsufficientStock(details StockDetails) *Error {
	return New(CodeConflict, fmt.Sprintf("only %d unit(s) available, %d requested", details.Available, details.Requested)).
		WithReason(ReasonInsufficientStock).
		WithDetails(details)
}
