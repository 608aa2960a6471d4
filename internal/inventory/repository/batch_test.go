package repository_test

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}

	code := m.Run()
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

func createTestProduct(t *testing.T, name string, opts ...func(*testutil.ProductFixture)) *repository.Product {
	t.Helper()
	fx := suite.Fixtures.Product(opts...)
	repo := repository.NewProductRepository(suite.DB)
	product := &repository.Product{
		Name:     name,
		Price:    fx.Price,
		Stock:    fx.Stock,
		MinStock: fx.MinStock,
		IsActive: fx.IsActive,
	}
	require.NoError(t, repo.Create(context.Background(), product))
	return product
}

// createTestBatch inserts a batch directly, bypassing the service layer, so
// repository queries can be exercised against arbitrary lifecycle states.
func createTestBatch(t *testing.T, productID, number string, quantity, daysToExpiry int, status repository.BatchStatus, canBeSold bool) *repository.Batch {
	t.Helper()
	fx := suite.Fixtures.Batch(productID,
		testutil.WithQuantity(quantity),
		testutil.WithExpiration(time.Now().AddDate(0, 0, daysToExpiry)),
		testutil.WithStatus(string(status)),
	)
	repo := repository.NewBatchRepository(suite.DB)
	batch := &repository.Batch{
		ProductID:       fx.ProductID,
		BatchNumber:     number,
		ExpirationDate:  fx.ExpirationDate,
		InitialQuantity: fx.InitialQuantity,
		CurrentQuantity: fx.CurrentQuantity,
		PurchasePrice:   fx.PurchasePrice,
		SalePrice:       fx.SalePrice,
		Status:          repository.BatchStatus(fx.Status),
		CanBeSold:       canBeSold,
		ReceiptDate:     fx.ReceiptDate,
		IsActive:        fx.IsActive,
	}
	err := suite.DB.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		return repo.Create(context.Background(), tx, batch)
	})
	require.NoError(t, err)
	return batch
}

func TestBatchRepository_CreateAndGet(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	product := createTestProduct(t, "Batch Create Product")
	batch := createTestBatch(t, product.ID, "LOT-001", 80, 120, repository.BatchStatusActive, true)
	assert.NotEmpty(t, batch.ID)
	assert.False(t, batch.CreatedAt.IsZero())

	repo := repository.NewBatchRepository(suite.DB)
	got, err := repo.GetByID(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, "LOT-001", got.BatchNumber)
	assert.Equal(t, 80, got.CurrentQuantity)
	assert.Equal(t, repository.BatchStatusActive, got.Status)

	_, err = repo.GetByID(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestBatchRepository_ExistsUnderLock(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	product := createTestProduct(t, "Batch Exists Product")
	createTestBatch(t, product.ID, "LOT-DUP", 10, 100, repository.BatchStatusActive, true)

	repo := repository.NewBatchRepository(suite.DB)
	err := suite.DB.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		exists, err := repo.Exists(context.Background(), tx, product.ID, "LOT-DUP")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = repo.Exists(context.Background(), tx, product.ID, "LOT-OTHER")
		require.NoError(t, err)
		assert.False(t, exists)
		return nil
	})
	require.NoError(t, err)
}

func TestBatchRepository_ListSellableOrdersByExpiration(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	product := createTestProduct(t, "Sellable Order Product")

	late := createTestBatch(t, product.ID, "LOT-LATE", 40, 300, repository.BatchStatusActive, true)
	soon := createTestBatch(t, product.ID, "LOT-SOON", 10, 15, repository.BatchStatusNearExpiry, true)
	createTestBatch(t, product.ID, "LOT-BLOCKED", 30, 5, repository.BatchStatusBlocked, false)
	createTestBatch(t, product.ID, "LOT-EMPTY", 0, 60, repository.BatchStatusDepleted, false)

	repo := repository.NewBatchRepository(suite.DB)
	sellable, err := repo.ListSellable(context.Background(), product.ID)
	require.NoError(t, err)

	// Near-expiry stock sells first; blocked and depleted batches never show.
	require.Len(t, sellable, 2)
	assert.Equal(t, soon.ID, sellable[0].ID)
	assert.Equal(t, late.ID, sellable[1].ID)
}

func TestBatchRepository_ListExpiringWindow(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	product := createTestProduct(t, "Expiring Window Product")

	inWindow := createTestBatch(t, product.ID, "LOT-IN", 20, 10, repository.BatchStatusNearExpiry, true)
	createTestBatch(t, product.ID, "LOT-OUT", 20, 90, repository.BatchStatusActive, true)
	createTestBatch(t, product.ID, "LOT-PAST", 20, -3, repository.BatchStatusExpired, false)
	createTestBatch(t, product.ID, "LOT-BLOCKED", 20, 10, repository.BatchStatusBlocked, false)

	repo := repository.NewBatchRepository(suite.DB)
	expiring, err := repo.ListExpiring(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, inWindow.ID, expiring[0].ID)
}

func TestBatchRepository_ListExpired(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	product := createTestProduct(t, "Expired List Product")

	expired := createTestBatch(t, product.ID, "LOT-EXPIRED", 25, -10, repository.BatchStatusExpired, false)
	createTestBatch(t, product.ID, "LOT-EXPIRED-EMPTY", 0, -10, repository.BatchStatusDepleted, false)
	createTestBatch(t, product.ID, "LOT-FRESH", 25, 100, repository.BatchStatusActive, true)

	repo := repository.NewBatchRepository(suite.DB)
	got, err := repo.ListExpired(context.Background())
	require.NoError(t, err)

	// Only expired batches still holding stock represent a loss.
	require.Len(t, got, 1)
	assert.Equal(t, expired.ID, got[0].ID)
}

func TestBatchRepository_SumQuantities(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	product := createTestProduct(t, "Sum Product")
	createTestBatch(t, product.ID, "LOT-A", 30, 100, repository.BatchStatusActive, true)
	createTestBatch(t, product.ID, "LOT-B", 45, 200, repository.BatchStatusActive, true)
	createTestBatch(t, product.ID, "LOT-C", 25, 5, repository.BatchStatusBlocked, false)

	repo := repository.NewBatchRepository(suite.DB)
	err := suite.DB.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		// Blocked stock is still physical stock and counts toward the total.
		sum, err := repo.SumQuantities(context.Background(), tx, product.ID)
		require.NoError(t, err)
		assert.Equal(t, 100, sum)
		return nil
	})
	require.NoError(t, err)

	// Products without batches sum to zero instead of erroring.
	empty := createTestProduct(t, "Sum Empty Product")
	err = suite.DB.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		sum, err := repo.SumQuantities(context.Background(), tx, empty.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, sum)
		return nil
	})
	require.NoError(t, err)
}

func TestProductRepository_ListLowStock(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	repo := repository.NewProductRepository(suite.DB)
	ctx := context.Background()

	low := createTestProduct(t, "Low Stock Product", testutil.WithStock(3), testutil.WithMinStock(5))
	boundary := createTestProduct(t, "Boundary Product", testutil.WithStock(5), testutil.WithMinStock(5))
	ok := createTestProduct(t, "Healthy Product", testutil.WithStock(50), testutil.WithMinStock(5))

	got, err := repo.ListLowStock(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2, "at-threshold stock counts as low")

	ids := []string{got[0].ID, got[1].ID}
	assert.Contains(t, ids, low.ID)
	assert.Contains(t, ids, boundary.ID)
	assert.NotContains(t, ids, ok.ID)
}

func TestMovementRepository_ListPendingOldestFirst(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	product := createTestProduct(t, "Pending Product")
	repo := repository.NewMovementRepository(suite.DB)
	ctx := context.Background()

	firstFx := suite.Fixtures.Movement(product.ID)
	firstFx.MovementDate = time.Now().Add(-2 * time.Hour)

	secondFx := suite.Fixtures.Movement(product.ID)
	secondFx.MovementType = string(repository.MovementVenta)
	secondFx.Quantity = -4
	secondFx.PreviousStock = 10
	secondFx.NewStock = 6
	secondFx.MovementDate = time.Now().Add(-1 * time.Hour)

	var first, second *repository.Movement
	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		first = &repository.Movement{
			ProductID:     firstFx.ProductID,
			MovementType:  repository.MovementType(firstFx.MovementType),
			Quantity:      firstFx.Quantity,
			PreviousStock: firstFx.PreviousStock,
			NewStock:      firstFx.NewStock,
			UserID:        firstFx.UserID,
			MovementDate:  firstFx.MovementDate,
		}
		if err := repo.Create(ctx, tx, first); err != nil {
			return err
		}
		second = &repository.Movement{
			ProductID:     secondFx.ProductID,
			MovementType:  repository.MovementType(secondFx.MovementType),
			Quantity:      secondFx.Quantity,
			PreviousStock: secondFx.PreviousStock,
			NewStock:      secondFx.NewStock,
			UserID:        secondFx.UserID,
			MovementDate:  secondFx.MovementDate,
		}
		return repo.Create(ctx, tx, second)
	})
	require.NoError(t, err)

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
}
