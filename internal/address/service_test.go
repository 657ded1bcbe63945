package address

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/addressregistry"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// HCMC 202 > Quận 1 1442 > Bến Nghé 20101
// Hà Nội 201 > Ba Đình 1484 > Phúc Xá 10101
func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		provinces: []addressregistry.Division{
			{ID: "202", Name: "Hồ Chí Minh"},
			{ID: "201", Name: "Hà Nội"},
		},
		districts: map[string][]addressregistry.Division{
			"202": {{ID: "1442", Name: "Quận 1", ParentID: "202"}},
			"201": {{ID: "1484", Name: "Ba Đình", ParentID: "201"}},
		},
		wards: map[string][]addressregistry.Division{
			"1442": {{ID: "20101", Name: "Phường Bến Nghé", ParentID: "1442"}},
			"1484": {{ID: "10101", Name: "Phường Phúc Xá", ParentID: "1484"}},
		},
	}
}

func newTestService(t *testing.T, reg addressregistry.Registry) Service {
	t.Helper()
	svc, err := NewService(reg, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestValidateAcceptsNestedPath(t *testing.T) {
	reg := newFakeRegistry()
	svc := newTestService(t, reg)

	got, err := svc.Validate(context.Background(), "202", " 1442 ", "20101")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.Province.Name != "Hồ Chí Minh" || got.District.Name != "Quận 1" || got.Ward.Name != "Phường Bến Nghé" {
		t.Fatalf("unexpected resolution %+v", got)
	}
	if reg.districtScope[0] != "202" || reg.wardScope[0] != "1442" {
		t.Fatalf("expected lookups scoped by resolved ids, got districts=%v wards=%v", reg.districtScope, reg.wardScope)
	}
}

func TestValidateRejectsUnrelatedDistrictNamingProvince(t *testing.T) {
	svc := newTestService(t, newFakeRegistry())

	// 1484 is a real district, but under Hà Nội.
	_, err := svc.Validate(context.Background(), "202", "1484", "10101")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Reason() != pkgerrors.ReasonInvalidDistrict {
		t.Fatalf("expected INVALID_DISTRICT, got %v", err)
	}
	if !strings.Contains(typed.Message(), "202") || !strings.Contains(typed.Message(), "Hồ Chí Minh") {
		t.Fatalf("expected message to name the province, got %q", typed.Message())
	}
	details := typed.Details().(map[string]string)
	if details["province_code"] != "202" {
		t.Fatalf("expected province in details, got %v", details)
	}
}

func TestValidateStageErrors(t *testing.T) {
	tests := []struct {
		name     string
		province string
		district string
		ward     string
		reason   pkgerrors.Reason
	}{
		{name: "unknown province", province: "999", district: "1442", ward: "20101", reason: pkgerrors.ReasonInvalidProvince},
		{name: "ward from other district", province: "202", district: "1442", ward: "10101", reason: pkgerrors.ReasonInvalidWard},
		{name: "missing ward", province: "202", district: "1442", ward: "", reason: pkgerrors.ReasonIncompleteAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, newFakeRegistry())
			_, err := svc.Validate(context.Background(), tt.province, tt.district, tt.ward)
			if !pkgerrors.HasReason(err, tt.reason) {
				t.Fatalf("expected %s, got %v", tt.reason, err)
			}
			if typed := pkgerrors.As(err); typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation code, got %s", typed.Code())
			}
		})
	}
}

func TestValidateRejectsNonNumericCodes(t *testing.T) {
	reg := newFakeRegistry()
	svc := newTestService(t, reg)
	_, err := svc.Validate(context.Background(), "HCM", "1442", "20101")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if reg.provinceCalls != 0 {
		t.Fatal("registry should not be called for malformed input")
	}
}

func TestValidateRegistryFailureIsNotNotFound(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		reg := newFakeRegistry()
		reg.wardErr = errors.New("connection reset")
		svc := newTestService(t, reg)

		_, err := svc.Validate(context.Background(), "202", "1442", "20101")
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeDependency || typed.Reason() != pkgerrors.ReasonRegistryUnavailable {
			t.Fatalf("expected registry unavailable, got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		reg := newFakeRegistry()
		reg.provinceErr = context.DeadlineExceeded
		svc := newTestService(t, reg)

		_, err := svc.Validate(context.Background(), "202", "1442", "20101")
		if !pkgerrors.HasReason(err, pkgerrors.ReasonRegistryTimeout) {
			t.Fatalf("expected registry timeout, got %v", err)
		}
	})
}

func TestDirectoryListings(t *testing.T) {
	svc := newTestService(t, newFakeRegistry())
	ctx := context.Background()

	provinces, err := svc.Provinces(ctx)
	if err != nil || len(provinces) != 2 {
		t.Fatalf("expected 2 provinces, got %v (%v)", provinces, err)
	}
	wards, err := svc.Wards(ctx, "1442")
	if err != nil || len(wards) != 1 {
		t.Fatalf("expected 1 ward, got %v (%v)", wards, err)
	}
	if _, err := svc.Districts(ctx, "abc"); err == nil {
		t.Fatal("expected validation error for non-numeric province id")
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(nil, logger.New(logger.Options{Output: io.Discard})); err == nil {
		t.Fatal("expected error without registry")
	}
	if _, err := NewService(newFakeRegistry(), nil); err == nil {
		t.Fatal("expected error without logger")
	}
}

type fakeRegistry struct {
	provinces     []addressregistry.Division
	districts     map[string][]addressregistry.Division
	wards         map[string][]addressregistry.Division
	provinceErr   error
	wardErr       error
	provinceCalls int
	districtScope []string
	wardScope     []string
}

func (f *fakeRegistry) ListProvinces(context.Context) ([]addressregistry.Division, error) {
	f.provinceCalls++
	if f.provinceErr != nil {
		return nil, f.provinceErr
	}
	return f.provinces, nil
}

func (f *fakeRegistry) ListDistricts(_ context.Context, provinceID string) ([]addressregistry.Division, error) {
	f.districtScope = append(f.districtScope, provinceID)
	return f.districts[provinceID], nil
}

func (f *fakeRegistry) ListWards(_ context.Context, districtID string) ([]addressregistry.Division, error) {
	f.wardScope = append(f.wardScope, districtID)
	if f.wardErr != nil {
		return nil, f.wardErr
	}
	return f.wards[districtID], nil
}
