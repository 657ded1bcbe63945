package cart

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	conn    *gorm.DB
	repo    *Repository
	svc     Service
	branch  *models.Branch
	other   *models.Branch
	product *models.Product
	userID  uuid.UUID
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	branch := dbtest.SeedBranch(t, conn, "Quận 1")
	other := dbtest.SeedBranch(t, conn, "Quận 3")
	brand := dbtest.SeedBrand(t, conn, "Acme")
	product := dbtest.SeedProduct(t, conn, "Tee", &brand.ID,
		dbtest.Variant("V1", 100000, map[uuid.UUID]int{branch.ID: 5, other.ID: 2}),
		dbtest.Variant("V2", 50000, map[uuid.UUID]int{branch.ID: 1}),
	)

	cat := catalog.NewRepository(conn)
	resolver, err := inventory.NewResolver(cat)
	require.NoError(t, err)
	repo := NewRepository(conn)
	if opts.Now == nil {
		opts.Now = dbtest.Now
	}
	svc, err := NewService(repo, resolver, cat, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}), opts)
	require.NoError(t, err)
	return &fixture{conn: conn, repo: repo, svc: svc, branch: branch, other: other, product: product, userID: uuid.New()}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, Options{})
	require.Error(t, err)
}

func TestGetCreatesEmptyCart(t *testing.T) {
	f := newFixture(t, Options{})
	view, err := f.svc.Get(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.NotNil(t, view.Items)
	assert.True(t, view.TotalAmount.IsZero())
	assert.Equal(t, f.userID, view.UserID)

	again, err := f.svc.Get(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, view.ID, again.ID)
}

func TestAddItemMergesAndTotals(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	view, err := f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V1", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.True(t, view.TotalAmount.Equal(decimal.NewFromInt(200000)))
	assert.Equal(t, "Tee", view.Items[0].ProductName)
	require.NotNil(t, view.Items[0].BrandName)
	assert.Equal(t, "Acme", *view.Items[0].BrandName)

	view, err = f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V1", Quantity: 3})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 5, view.Items[0].Quantity)
	assert.True(t, view.TotalAmount.Equal(decimal.NewFromInt(500000)))
	assert.True(t, view.Items[0].LineTotal.Equal(decimal.NewFromInt(500000)))
	assert.Equal(t, 1, view.ItemCount)
	assert.Equal(t, 5, view.TotalQuantity)

	stored, err := f.repo.FindByUser(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.True(t, stored.TotalAmount.Equal(decimal.NewFromInt(500000)))
}

func TestAddItemRejectsOverStock(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V1", Quantity: 3, SelectedBranchID: &f.other.ID})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInsufficientStock))
	details, ok := pkgerrors.As(err).Details().(pkgerrors.StockDetails)
	require.True(t, ok)
	assert.Equal(t, 2, details.Available)
	assert.Equal(t, 3, details.Requested)

	// Without a branch the stock of every branch counts.
	view, err := f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V1", Quantity: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, view.Items[0].Quantity)

	_, err = f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V1", Quantity: 1})
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInsufficientStock))

	unknown := uuid.New()
	_, err = f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V2", Quantity: 1, SelectedBranchID: &unknown})
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInsufficientStock))
}

func TestAddItemValidation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V1", Quantity: 0})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "nope", Quantity: 1})
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonVariantNotFound))
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestAddItemDerivesOptionsFromVariant(t *testing.T) {
	f := newFixture(t, Options{})
	v := dbtest.Variant("V9", 10, map[uuid.UUID]int{f.branch.ID: 1})
	v.Options = map[string]string{"Color": "Đen|#000000", "Size": "M"}
	product := dbtest.SeedProduct(t, f.conn, "Cap", nil, v)

	view, err := f.svc.AddItem(context.Background(), f.userID, AddItemInput{ProductID: product.ID, VariantID: "V9", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Color": "Đen", "Size": "M"}, view.Items[0].SelectedOptions)
	assert.Nil(t, view.Items[0].BrandName)
}

func TestUpdateItem(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V1", Quantity: 2})
	require.NoError(t, err)

	view, err := f.svc.UpdateItem(ctx, f.userID, ItemKey{VariantID: "V1"}, UpdateItemInput{Quantity: 4, SelectedBranchID: &f.branch.ID})
	require.NoError(t, err)
	assert.Equal(t, 4, view.Items[0].Quantity)
	assert.Equal(t, f.branch.ID, *view.Items[0].SelectedBranchID)

	_, err = f.svc.UpdateItem(ctx, f.userID, ItemKey{VariantID: "V1"}, UpdateItemInput{Quantity: 6})
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInsufficientStock), "branch selection is kept between updates")

	_, err = f.svc.UpdateItem(ctx, f.userID, ItemKey{VariantID: "V2"}, UpdateItemInput{Quantity: 1})
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonItemNotFound))
}

func TestUpdateToZeroRemoves(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V1", Quantity: 2})
	require.NoError(t, err)

	view, err := f.svc.UpdateItem(ctx, f.userID, ItemKey{VariantID: "V1"}, UpdateItemInput{Quantity: 0})
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.True(t, view.TotalAmount.IsZero())
}

func TestSharedVariantIDAcrossProducts(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	hat := dbtest.SeedProduct(t, f.conn, "Hat", nil, dbtest.Variant("V1", 7, map[uuid.UUID]int{f.branch.ID: 9}))

	_, err := f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V1", Quantity: 1})
	require.NoError(t, err)
	view, err := f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: hat.ID, VariantID: "V1", Quantity: 1})
	require.NoError(t, err)
	require.Len(t, view.Items, 2, "same variant id under another product is a separate line")
	assert.True(t, view.TotalAmount.Equal(decimal.NewFromInt(100007)))
	for _, item := range view.Items {
		switch item.ProductID {
		case f.product.ID:
			assert.True(t, item.Price.Equal(decimal.NewFromInt(100000)))
		case hat.ID:
			assert.True(t, item.Price.Equal(decimal.NewFromInt(7)))
		default:
			t.Fatalf("unexpected product %s", item.ProductID)
		}
		assert.Equal(t, 1, item.Quantity)
	}

	_, err = f.svc.UpdateItem(ctx, f.userID, ItemKey{VariantID: "V1"}, UpdateItemInput{Quantity: 2})
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonAmbiguousItem))
	_, err = f.svc.RemoveItem(ctx, f.userID, ItemKey{VariantID: "V1"})
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonAmbiguousItem))

	view, err = f.svc.UpdateItem(ctx, f.userID, ItemKey{VariantID: "V1", ProductID: &hat.ID}, UpdateItemInput{Quantity: 3})
	require.NoError(t, err)
	assert.True(t, view.TotalAmount.Equal(decimal.NewFromInt(100021)))

	view, err = f.svc.RemoveItem(ctx, f.userID, ItemKey{VariantID: "V1", ProductID: &f.product.ID})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, hat.ID, view.Items[0].ProductID)
	assert.True(t, view.TotalAmount.Equal(decimal.NewFromInt(21)))
}

func TestGetRepairsDriftedTotal(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V1", Quantity: 2})
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&models.Cart{}).Where("user_id = ?", f.userID).
		Update("total_amount", decimal.NewFromInt(1)).Error)

	view, err := f.svc.Get(ctx, f.userID)
	require.NoError(t, err)
	assert.True(t, view.TotalAmount.Equal(decimal.NewFromInt(200000)))

	stored, err := f.repo.FindByUser(ctx, f.userID)
	require.NoError(t, err)
	assert.True(t, stored.TotalAmount.Equal(decimal.NewFromInt(200000)), "recomputed total is persisted")

	version := stored.Version
	_, err = f.svc.Get(ctx, f.userID)
	require.NoError(t, err)
	stored, err = f.repo.FindByUser(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, version, stored.Version, "a consistent cart is not rewritten")
}

func TestRemoveItemIsIdempotent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V1", Quantity: 1})
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V2", Quantity: 1})
	require.NoError(t, err)

	view, err := f.svc.RemoveItem(ctx, f.userID, ItemKey{VariantID: "V1"})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.True(t, view.TotalAmount.Equal(decimal.NewFromInt(50000)))
	version := view.Version

	view, err = f.svc.RemoveItem(ctx, f.userID, ItemKey{VariantID: "V1"})
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)
	assert.Equal(t, version, view.Version, "removing an absent item must not write")
}

func TestStaleItemsArePruned(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	gone := dbtest.SeedProduct(t, f.conn, "Discontinued", nil, dbtest.Variant("G1", 999, map[uuid.UUID]int{f.branch.ID: 3}))
	_, err := f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: gone.ID, VariantID: "G1", Quantity: 1})
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V2", Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, f.conn.Delete(&models.Product{}, "id = ?", gone.ID).Error)

	view, err := f.svc.Get(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "V2", view.Items[0].VariantID)
	assert.True(t, view.TotalAmount.Equal(decimal.NewFromInt(50000)))

	stored, err := f.repo.FindByUser(ctx, f.userID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 1, "pruning is persisted")
}

func TestUpdateStaleItemReportsRemoval(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	gone := dbtest.SeedProduct(t, f.conn, "Discontinued", nil, dbtest.Variant("G1", 999, map[uuid.UUID]int{f.branch.ID: 3}))
	_, err := f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: gone.ID, VariantID: "G1", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, f.conn.Delete(&models.Product{}, "id = ?", gone.ID).Error)

	_, err = f.svc.UpdateItem(ctx, f.userID, ItemKey{VariantID: "G1"}, UpdateItemInput{Quantity: 2})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeGone, pkgerrors.As(err).Code())
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonItemRemoved))

	stored, err := f.repo.FindByUser(ctx, f.userID)
	require.NoError(t, err)
	assert.Empty(t, stored.Items)
}

func TestClear(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	view, err := f.svc.Clear(ctx, f.userID)
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	_, err = f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V1", Quantity: 1})
	require.NoError(t, err)
	before, err := f.repo.FindByUser(ctx, f.userID)
	require.NoError(t, err)

	view, err = f.svc.Clear(ctx, f.userID)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.True(t, view.TotalAmount.IsZero())
	assert.Equal(t, before.ID, view.ID)
	assert.Greater(t, view.Version, before.Version)
}

type conflictingStore struct {
	*Repository
	conflicts int
	saves     int
}

func (s *conflictingStore) SaveIfVersion(ctx context.Context, cart *models.Cart) error {
	s.saves++
	if s.saves <= s.conflicts {
		return ErrVersionConflict
	}
	return s.Repository.SaveIfVersion(ctx, cart)
}

func TestVersionConflictRetries(t *testing.T) {
	f := newFixture(t, Options{})
	cat := catalog.NewRepository(f.conn)
	resolver, err := inventory.NewResolver(cat)
	require.NoError(t, err)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	store := &conflictingStore{Repository: f.repo, conflicts: 2}
	svc, err := NewService(store, resolver, cat, logg, Options{MaxWriteAttempts: 3})
	require.NoError(t, err)
	view, err := svc.AddItem(context.Background(), f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V1", Quantity: 1})
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)
	assert.Equal(t, 3, store.saves)

	exhausted := &conflictingStore{Repository: f.repo, conflicts: 10}
	svc, err = NewService(exhausted, resolver, cat, logg, Options{MaxWriteAttempts: 3})
	require.NoError(t, err)
	_, err = svc.AddItem(context.Background(), f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V1", Quantity: 1})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonCartConcurrentEdit))
}

func TestSaveIfVersionRejectsStaleVersion(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	first, err := f.repo.LoadOrCreate(ctx, f.userID)
	require.NoError(t, err)
	second, err := f.repo.LoadOrCreate(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	require.NoError(t, f.repo.SaveIfVersion(ctx, first))
	assert.True(t, errors.Is(f.repo.SaveIfVersion(ctx, second), ErrVersionConflict))
}

func TestConcurrentAddsAreNotLost(t *testing.T) {
	f := newFixture(t, Options{MaxWriteAttempts: 50})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AddItem(ctx, f.userID, AddItemInput{ProductID: f.product.ID, VariantID: "V1", Quantity: 1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	view, err := f.svc.Get(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 4, view.Items[0].Quantity)
}
