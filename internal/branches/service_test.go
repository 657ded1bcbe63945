package branches

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/address"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/integrity"
	"github.com/angelmondragon/storefront-backend/pkg/addressregistry"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubValidator struct {
	calls int
}

func (v *stubValidator) Validate(_ context.Context, p, d, w string) (address.ValidatedAddress, error) {
	v.calls++
	if p == "" || d == "" || w == "" {
		return address.ValidatedAddress{}, pkgerrors.IncompleteAddress()
	}
	if p != "202" && p != "201" {
		return address.ValidatedAddress{}, pkgerrors.New(pkgerrors.CodeValidation, "province does not exist").
			WithReason(pkgerrors.ReasonInvalidProvince)
	}
	return address.ValidatedAddress{
		Province: addressregistry.Division{ID: p, Name: "Province " + p},
		District: addressregistry.Division{ID: d, Name: "District " + d, ParentID: p},
		Ward:     addressregistry.Division{ID: w, Name: "Ward " + w, ParentID: d},
	}, nil
}

type fixture struct {
	conn      *gorm.DB
	svc       Service
	validator *stubValidator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	guard, err := integrity.NewGuard(catalog.NewRepository(conn), logg, integrity.Options{})
	require.NoError(t, err)
	validator := &stubValidator{}
	svc, err := NewService(NewRepository(conn), validator, guard, logg)
	require.NoError(t, err)
	return &fixture{conn: conn, svc: svc, validator: validator}
}

func ptr(s string) *string { return &s }

func validInput(name string) CreateInput {
	return CreateInput{
		Name:         name,
		Address:      "12 Nguyễn Huệ",
		Contact:      ptr("028 1234 5678"),
		ProvinceCode: "202",
		DistrictCode: "1442",
		WardCode:     "20101",
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, &stubValidator{}, nil, nil)
	require.Error(t, err)
}

func TestCreateStoresResolvedNames(t *testing.T) {
	f := newFixture(t)
	dto, err := f.svc.Create(context.Background(), validInput("  Quận 1 "))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, dto.ID)
	assert.Equal(t, "Quận 1", dto.Name)
	assert.Equal(t, "Province 202", dto.ProvinceName)
	assert.Equal(t, "Ward 20101", dto.WardName)

	got, err := f.svc.GetByID(context.Background(), dto.ID)
	require.NoError(t, err)
	assert.Equal(t, dto.DistrictName, got.DistrictName)
	require.NotNil(t, got.Contact)
	assert.Equal(t, "028 1234 5678", *got.Contact)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := validInput("x")
	in.Name = " "
	_, err := f.svc.Create(ctx, in)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	assert.Zero(t, f.validator.calls, "field checks run before the registry")

	in = validInput("x")
	in.WardCode = ""
	_, err = f.svc.Create(ctx, in)
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonIncompleteAddress))

	in = validInput("x")
	in.ProvinceCode = "999"
	_, err = f.svc.Create(ctx, in)
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidProvince))

	res, err := f.svc.List(ctx, ListParams{})
	require.NoError(t, err)
	assert.Zero(t, res.Total, "failed creates must not write")
}

func TestGetByIDNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetByID(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonBranchNotFound))
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, validInput("Quận 1"))
	require.NoError(t, err)
	calls := f.validator.calls

	updated, err := f.svc.Update(ctx, created.ID, UpdateInput{Name: ptr("Flagship"), Contact: ptr("")})
	require.NoError(t, err)
	assert.Equal(t, "Flagship", updated.Name)
	assert.Nil(t, updated.Contact)
	assert.Equal(t, calls, f.validator.calls, "no codes, no validation")

	_, err = f.svc.Update(ctx, created.ID, UpdateInput{ProvinceCode: ptr("201")})
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonIncompleteAddress))

	updated, err = f.svc.Update(ctx, created.ID, UpdateInput{ProvinceCode: ptr("201"), DistrictCode: ptr("1484"), WardCode: ptr("10101")})
	require.NoError(t, err)
	assert.Equal(t, "201", updated.ProvinceCode)
	assert.Equal(t, "Ward 10101", updated.WardName)

	stored, err := f.svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Flagship", stored.Name)
	assert.Equal(t, "1484", stored.DistrictCode)
	assert.Nil(t, stored.Contact)

	_, err = f.svc.Update(ctx, uuid.New(), UpdateInput{Name: ptr("x")})
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonBranchNotFound))
}

func TestListSearchSortAndPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"Bravo", "alpha", "Charlie", "100% Cotton"} {
		_, err := f.svc.Create(ctx, validInput(name))
		require.NoError(t, err)
	}

	res, err := f.svc.List(ctx, ListParams{SortBy: "name", SortOrder: "asc", Limit: 2, Page: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Total)
	assert.Equal(t, 2, res.TotalPages)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "100% Cotton", res.Items[0].Name)

	res, err = f.svc.List(ctx, ListParams{Search: "ALPHA"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "alpha", res.Items[0].Name)

	res, err = f.svc.List(ctx, ListParams{Search: "%"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1, "wildcards in search are literal")

	res, err = f.svc.List(ctx, ListParams{Search: "nguyễn huệ"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Total, "search covers the street address")

	_, err = f.svc.List(ctx, ListParams{SortBy: "province_code"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	_, err = f.svc.List(ctx, ListParams{SortOrder: "sideways"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestDeleteRefusesReferencedBranch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	branch, err := f.svc.Create(ctx, validInput("Quận 1"))
	require.NoError(t, err)
	for _, name := range []string{"a", "b", "c"} {
		dbtest.SeedProduct(t, f.conn, name, nil, dbtest.Variant(name, 10, map[uuid.UUID]int{branch.ID: 1}))
	}

	refs, err := f.svc.ReferenceCount(ctx, branch.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), refs.ProductCount)
	assert.False(t, refs.Deletable)

	err = f.svc.Delete(ctx, branch.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
	details, ok := pkgerrors.As(err).Details().(pkgerrors.BranchInUseDetails)
	require.True(t, ok)
	assert.Equal(t, int64(3), details.Count)

	_, err = f.svc.GetByID(ctx, branch.ID)
	require.NoError(t, err, "branch must survive a refused delete")
}

func TestDeleteUnreferencedBranch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	branch, err := f.svc.Create(ctx, validInput("Quận 1"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, branch.ID))
	_, err = f.svc.GetByID(ctx, branch.ID)
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonBranchNotFound))

	err = f.svc.Delete(ctx, branch.ID)
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonBranchNotFound))
}

func TestDeleteWithCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	branch, err := f.svc.Create(ctx, validInput("Quận 1"))
	require.NoError(t, err)
	keep := dbtest.SeedBranch(t, f.conn, "keep")
	for _, name := range []string{"a", "b", "c"} {
		dbtest.SeedProduct(t, f.conn, name, nil, dbtest.Variant(name, 10, map[uuid.UUID]int{branch.ID: 1, keep.ID: 4}))
	}

	res, err := f.svc.DeleteWithCascade(ctx, branch.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.ProductsUpdated)

	_, err = f.svc.GetByID(ctx, branch.ID)
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonBranchNotFound))

	assert.Eventually(t, func() bool {
		var products []models.Product
		if err := f.conn.Find(&products).Error; err != nil {
			return false
		}
		for _, p := range products {
			if p.ReferencesBranch(branch.ID) || !p.ReferencesBranch(keep.ID) {
				return false
			}
		}
		return len(products) == 3
	}, 2*time.Second, 20*time.Millisecond)

	_, err = f.svc.DeleteWithCascade(ctx, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, validInput("a"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, validInput("b"))
	require.NoError(t, err)
	in := validInput("c")
	in.ProvinceCode, in.DistrictCode, in.WardCode = "201", "1484", "10101"
	_, err = f.svc.Create(ctx, in)
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	require.Len(t, stats.ByProvince, 2)
	assert.Equal(t, "202", stats.ByProvince[0].ProvinceCode)
	assert.Equal(t, int64(2), stats.ByProvince[0].Count)
	assert.Equal(t, "Province 202", stats.ByProvince[0].ProvinceName)
}
