package address

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/addressregistry"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Validator checks that a (province, district, ward) triple is a real,
// correctly nested administrative path.
type Validator interface {
	Validate(ctx context.Context, provinceCode, districtCode, wardCode string) (ValidatedAddress, error)
}

// Service validates addresses and exposes the division lists used by
// address pickers.
type Service interface {
	Validator
	Provinces(ctx context.Context) ([]addressregistry.Division, error)
	Districts(ctx context.Context, provinceID string) ([]addressregistry.Division, error)
	Wards(ctx context.Context, districtID string) ([]addressregistry.Division, error)
}

// ValidatedAddress carries the resolved divisions so callers can persist
// display names alongside the codes.
type ValidatedAddress struct {
	Province addressregistry.Division
	District addressregistry.Division
	Ward     addressregistry.Division
}

type service struct {
	registry addressregistry.Registry
	logg     *logger.Logger
}

func NewService(registry addressregistry.Registry, logg *logger.Logger) (Service, error) {
	if registry == nil {
		return nil, fmt.Errorf("address registry required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{registry: registry, logg: logg}, nil
}

func (s *service) Validate(ctx context.Context, provinceCode, districtCode, wardCode string) (ValidatedAddress, error) {
	provinceCode = strings.TrimSpace(provinceCode)
	districtCode = strings.TrimSpace(districtCode)
	wardCode = strings.TrimSpace(wardCode)
	if err := requireCodes(provinceCode, districtCode, wardCode); err != nil {
		return ValidatedAddress{}, err
	}

	provinces, err := s.registry.ListProvinces(ctx)
	if err != nil {
		return ValidatedAddress{}, s.registryFailure(ctx, "provinces", err)
	}
	province, ok := findDivision(provinces, provinceCode)
	if !ok {
		return ValidatedAddress{}, invalidProvince(provinceCode)
	}

	// Each stage is scoped by the id the previous stage resolved, never by
	// the caller's raw input.
	districts, err := s.registry.ListDistricts(ctx, province.ID)
	if err != nil {
		return ValidatedAddress{}, s.registryFailure(ctx, "districts", err)
	}
	district, ok := findDivision(districts, districtCode)
	if !ok {
		return ValidatedAddress{}, invalidDistrict(districtCode, province)
	}

	wards, err := s.registry.ListWards(ctx, district.ID)
	if err != nil {
		return ValidatedAddress{}, s.registryFailure(ctx, "wards", err)
	}
	ward, ok := findDivision(wards, wardCode)
	if !ok {
		return ValidatedAddress{}, invalidWard(wardCode, district)
	}

	return ValidatedAddress{Province: province, District: district, Ward: ward}, nil
}

func (s *service) Provinces(ctx context.Context) ([]addressregistry.Division, error) {
	out, err := s.registry.ListProvinces(ctx)
	if err != nil {
		return nil, s.registryFailure(ctx, "provinces", err)
	}
	return out, nil
}

func (s *service) Districts(ctx context.Context, provinceID string) ([]addressregistry.Division, error) {
	provinceID = strings.TrimSpace(provinceID)
	if !isNumericCode(provinceID) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "province id must be numeric")
	}
	out, err := s.registry.ListDistricts(ctx, provinceID)
	if err != nil {
		return nil, s.registryFailure(ctx, "districts", err)
	}
	return out, nil
}

func (s *service) Wards(ctx context.Context, districtID string) ([]addressregistry.Division, error) {
	districtID = strings.TrimSpace(districtID)
	if !isNumericCode(districtID) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "district id must be numeric")
	}
	out, err := s.registry.ListWards(ctx, districtID)
	if err != nil {
		return nil, s.registryFailure(ctx, "wards", err)
	}
	return out, nil
}

func (s *service) registryFailure(ctx context.Context, stage string, err error) error {
	mapped := addressregistry.AsDependencyError(err)
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"stage":  stage,
		"reason": pkgerrors.As(mapped).Reason(),
	}), "address registry lookup failed: "+err.Error())
	return mapped
}

func requireCodes(provinceCode, districtCode, wardCode string) error {
	if provinceCode == "" || districtCode == "" || wardCode == "" {
		return pkgerrors.IncompleteAddress()
	}
	invalid := map[string]string{}
	if !isNumericCode(provinceCode) {
		invalid["province_code"] = "must be numeric"
	}
	if !isNumericCode(districtCode) {
		invalid["district_code"] = "must be numeric"
	}
	if !isNumericCode(wardCode) {
		invalid["ward_code"] = "must be numeric"
	}
	if len(invalid) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "address codes must be numeric").WithDetails(invalid)
	}
	return nil
}

func isNumericCode(code string) bool {
	if code == "" {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func findDivision(divisions []addressregistry.Division, id string) (addressregistry.Division, bool) {
	for _, d := range divisions {
		if d.ID == id {
			return d, true
		}
	}
	return addressregistry.Division{}, false
}

func invalidProvince(code string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("province %s does not exist", code)).
		WithReason(pkgerrors.ReasonInvalidProvince).
		WithDetails(map[string]string{"province_code": code})
}

func invalidDistrict(code string, province addressregistry.Division) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("district %s does not belong to province %s (%s)", code, province.ID, province.Name)).
		WithReason(pkgerrors.ReasonInvalidDistrict).
		WithDetails(map[string]string{
			"district_code": code,
			"province_code": province.ID,
			"province_name": province.Name,
		})
}

func invalidWard(code string, district addressregistry.Division) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("ward %s does not belong to district %s (%s)", code, district.ID, district.Name)).
		WithReason(pkgerrors.ReasonInvalidWard).
		WithDetails(map[string]string{
			"ward_code":     code,
			"district_code": district.ID,
			"district_name": district.Name,
		})
}
