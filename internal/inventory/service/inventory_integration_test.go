package service_test

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/config"
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

func newService() *service.InventoryService {
	return service.NewInventoryService(
		suite.DB,
		repository.NewProductRepository(suite.DB),
		repository.NewBatchRepository(suite.DB),
		repository.NewMovementRepository(suite.DB),
		repository.NewUserCacheRepository(suite.DB),
		nil,
		suite.Logger,
		config.InventoryConfig{LowStockThreshold: 10, NearExpiryDays: 30},
	)
}

func createProduct(t *testing.T, svc *service.InventoryService, name string) *repository.Product {
	t.Helper()
	product, err := svc.CreateProduct(context.Background(), service.CreateProductInput{
		Name:  name,
		Price: 9.99,
	})
	require.NoError(t, err)
	return product
}

func TestBatchReceiptAndSale(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	ctx := context.Background()
	svc := newService()
	actor := uuid.New().String()

	product := createProduct(t, svc, "Amoxicillin 500mg")
	assert.Equal(t, 0, product.Stock)

	batch, err := svc.CreateBatch(ctx, product.ID, actor, service.CreateBatchInput{
		BatchNumber:     "B1",
		ExpirationDate:  time.Now().AddDate(0, 0, 400),
		InitialQuantity: 100,
		PurchasePrice:   5.50,
		SalePrice:       9.99,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.BatchStatusActive, batch.Status)
	assert.True(t, batch.CanBeSold)

	// Receipt raised product stock and wrote an inbound purchase entry.
	product, err = svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, product.Stock)

	movements, total, err := svc.ListMovements(ctx, product.ID, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, repository.MovementCompra, movements[0].MovementType)
	assert.Equal(t, 0, movements[0].PreviousStock)
	assert.Equal(t, 100, movements[0].NewStock)

	// Sell 30 against the batch.
	sale, err := svc.RecordMovement(ctx, product.ID, actor, service.RecordMovementInput{
		BatchID:      &batch.ID,
		MovementType: repository.MovementVenta,
		Quantity:     30,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, sale.PreviousStock)
	assert.Equal(t, 70, sale.NewStock)

	product, err = svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, product.Stock)

	batch, err = svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, batch.CurrentQuantity)
}

func TestInsufficientStockLeavesNoTrace(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	ctx := context.Background()
	svc := newService()
	actor := uuid.New().String()

	product := createProduct(t, svc, "Loratadine 10mg")
	_, err := svc.CreateBatch(ctx, product.ID, actor, service.CreateBatchInput{
		BatchNumber:     "B1",
		ExpirationDate:  time.Now().AddDate(1, 0, 0),
		InitialQuantity: 70,
	})
	require.NoError(t, err)

	_, err = svc.RecordMovement(ctx, product.ID, actor, service.RecordMovementInput{
		MovementType: repository.MovementVenta,
		Quantity:     1000,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	// Stock unchanged, no ledger entry written.
	product, err = svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, product.Stock)

	_, total, err := svc.ListMovements(ctx, product.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestDuplicateBatchNumberRejected(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	ctx := context.Background()
	svc := newService()
	actor := uuid.New().String()

	product := createProduct(t, svc, "Omeprazole 20mg")
	input := service.CreateBatchInput{
		BatchNumber:     "LOT-2026-001",
		ExpirationDate:  time.Now().AddDate(1, 0, 0),
		InitialQuantity: 10,
	}

	_, err := svc.CreateBatch(ctx, product.ID, actor, input)
	require.NoError(t, err)

	_, err = svc.CreateBatch(ctx, product.ID, actor, input)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDuplicateBatchNumber))
}

func TestConsumeFIFOPrefersSoonestExpiry(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	ctx := context.Background()
	svc := newService()
	actor := uuid.New().String()

	product := createProduct(t, svc, "Metformin 850mg")

	// B1 expires first and must drain completely before B2 is touched.
	b1, err := svc.CreateBatch(ctx, product.ID, actor, service.CreateBatchInput{
		BatchNumber:     "B1",
		ExpirationDate:  time.Now().AddDate(0, 0, 10),
		InitialQuantity: 5,
	})
	require.NoError(t, err)

	b2, err := svc.CreateBatch(ctx, product.ID, actor, service.CreateBatchInput{
		BatchNumber:     "B2",
		ExpirationDate:  time.Now().AddDate(0, 0, 200),
		InitialQuantity: 50,
	})
	require.NoError(t, err)

	// Preview does not consume anything.
	preview, err := svc.SelectBatchesFIFO(ctx, product.ID, 20)
	require.NoError(t, err)
	require.Len(t, preview, 2)
	assert.Equal(t, b1.ID, preview[0].BatchID)
	assert.Equal(t, 5, preview[0].Quantity)
	assert.Equal(t, b2.ID, preview[1].BatchID)
	assert.Equal(t, 15, preview[1].Quantity)

	product, err = svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 55, product.Stock)

	allocations, err := svc.ConsumeFIFO(ctx, product.ID, 20, repository.MovementVenta, actor, nil)
	require.NoError(t, err)
	require.Len(t, allocations, 2)

	product, err = svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 35, product.Stock)

	b1After, err := svc.GetBatch(ctx, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, b1After.CurrentQuantity)
	assert.Equal(t, repository.BatchStatusDepleted, b1After.Status)

	b2After, err := svc.GetBatch(ctx, b2.ID)
	require.NoError(t, err)
	assert.Equal(t, 35, b2After.CurrentQuantity)
}

func TestConsumeFIFOInsufficientAcrossBatches(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	ctx := context.Background()
	svc := newService()
	actor := uuid.New().String()

	product := createProduct(t, svc, "Aspirin 100mg")
	_, err := svc.CreateBatch(ctx, product.ID, actor, service.CreateBatchInput{
		BatchNumber:     "B1",
		ExpirationDate:  time.Now().AddDate(1, 0, 0),
		InitialQuantity: 15,
	})
	require.NoError(t, err)

	_, err = svc.ConsumeFIFO(ctx, product.ID, 20, repository.MovementVenta, actor, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))
}

func TestApprovedMovementIsPermanent(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	ctx := context.Background()
	svc := newService()
	actor := uuid.New().String()
	approver := uuid.New().String()

	product := createProduct(t, svc, "Ibuprofen 400mg")
	batch, err := svc.CreateBatch(ctx, product.ID, actor, service.CreateBatchInput{
		BatchNumber:     "B1",
		ExpirationDate:  time.Now().AddDate(1, 0, 0),
		InitialQuantity: 50,
	})
	require.NoError(t, err)

	sale, err := svc.RecordMovement(ctx, product.ID, actor, service.RecordMovementInput{
		BatchID:      &batch.ID,
		MovementType: repository.MovementVenta,
		Quantity:     10,
	})
	require.NoError(t, err)

	approved, err := svc.ApproveMovement(ctx, sale.ID, approver)
	require.NoError(t, err)
	assert.True(t, approved.Approved)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, approver, *approved.ApprovedBy)

	// Second approval and deletion both fail on the audit gate.
	_, err = svc.ApproveMovement(ctx, sale.ID, approver)
	assert.True(t, errors.Is(err, errors.ErrAlreadyApproved))

	err = svc.DeleteMovement(ctx, sale.ID)
	assert.True(t, errors.Is(err, errors.ErrAlreadyApproved))
}

func TestDeleteMovementReversesStock(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	ctx := context.Background()
	svc := newService()
	actor := uuid.New().String()

	product := createProduct(t, svc, "Cetirizine 10mg")
	batch, err := svc.CreateBatch(ctx, product.ID, actor, service.CreateBatchInput{
		BatchNumber:     "B1",
		ExpirationDate:  time.Now().AddDate(1, 0, 0),
		InitialQuantity: 50,
	})
	require.NoError(t, err)

	sale, err := svc.RecordMovement(ctx, product.ID, actor, service.RecordMovementInput{
		BatchID:      &batch.ID,
		MovementType: repository.MovementVenta,
		Quantity:     20,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMovement(ctx, sale.ID))

	product, err = svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, product.Stock, "previous stock restored exactly")

	batch, err = svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, batch.CurrentQuantity)
}

func TestReconcileStockRepairsDrift(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	ctx := context.Background()
	svc := newService()
	actor := uuid.New().String()

	product := createProduct(t, svc, "Naproxen 250mg")
	_, err := svc.CreateBatch(ctx, product.ID, actor, service.CreateBatchInput{
		BatchNumber:     "B1",
		ExpirationDate:  time.Now().AddDate(1, 0, 0),
		InitialQuantity: 40,
	})
	require.NoError(t, err)

	// No drift: reconcile reports clean and changes nothing.
	result, err := svc.ReconcileStock(ctx, product.ID)
	require.NoError(t, err)
	assert.False(t, result.Repaired)
	assert.Equal(t, 40, result.ComputedStock)

	// Force drift behind the service's back, then repair it.
	_, err = suite.RawDB.ExecContext(ctx, `UPDATE products SET stock = 999 WHERE id = $1`, product.ID)
	require.NoError(t, err)

	result, err = svc.ReconcileStock(ctx, product.ID)
	require.NoError(t, err)
	assert.True(t, result.Repaired)
	assert.Equal(t, 999, result.PreviousStock)
	assert.Equal(t, 40, result.ComputedStock)

	product, err = svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, product.Stock)
}

func TestBlockedBatchExcludedFromAllocation(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	ctx := context.Background()
	svc := newService()
	actor := uuid.New().String()

	product := createProduct(t, svc, "Diclofenac 50mg")
	b1, err := svc.CreateBatch(ctx, product.ID, actor, service.CreateBatchInput{
		BatchNumber:     "B1",
		ExpirationDate:  time.Now().AddDate(0, 0, 60),
		InitialQuantity: 30,
	})
	require.NoError(t, err)

	b2, err := svc.CreateBatch(ctx, product.ID, actor, service.CreateBatchInput{
		BatchNumber:     "B2",
		ExpirationDate:  time.Now().AddDate(0, 0, 120),
		InitialQuantity: 30,
	})
	require.NoError(t, err)

	_, err = svc.BlockBatch(ctx, b1.ID, "supplier recall", actor)
	require.NoError(t, err)

	// Allocation skips the blocked batch even though it expires first.
	preview, err := svc.SelectBatchesFIFO(ctx, product.ID, 10)
	require.NoError(t, err)
	require.Len(t, preview, 1)
	assert.Equal(t, b2.ID, preview[0].BatchID)

	// Unblocking rederives the lifecycle state and restores eligibility.
	unblocked, err := svc.UnblockBatch(ctx, b1.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, repository.BatchStatusActive, unblocked.Status)

	preview, err = svc.SelectBatchesFIFO(ctx, product.ID, 40)
	require.NoError(t, err)
	require.Len(t, preview, 2)
	assert.Equal(t, b1.ID, preview[0].BatchID)
}

func TestStockMatchesBatchSumInvariant(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	ctx := context.Background()
	svc := newService()
	actor := uuid.New().String()

	product := createProduct(t, svc, "Prednisone 5mg")

	_, err := svc.CreateBatch(ctx, product.ID, actor, service.CreateBatchInput{
		BatchNumber:     "B1",
		ExpirationDate:  time.Now().AddDate(0, 0, 90),
		InitialQuantity: 25,
	})
	require.NoError(t, err)

	b2, err := svc.CreateBatch(ctx, product.ID, actor, service.CreateBatchInput{
		BatchNumber:     "B2",
		ExpirationDate:  time.Now().AddDate(0, 0, 300),
		InitialQuantity: 75,
	})
	require.NoError(t, err)

	_, err = svc.ConsumeFIFO(ctx, product.ID, 30, repository.MovementVenta, actor, nil)
	require.NoError(t, err)

	// Deleting the most recent movement rolls both the batch and the cached
	// total back to the snapshot it recorded.
	sale, err := svc.RecordMovement(ctx, product.ID, actor, service.RecordMovementInput{
		BatchID:      &b2.ID,
		MovementType: repository.MovementVenta,
		Quantity:     10,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMovement(ctx, sale.ID))

	// After the whole sequence the cached total still equals the batch sum.
	result, err := svc.ReconcileStock(ctx, product.ID)
	require.NoError(t, err)
	assert.False(t, result.Repaired, "cached stock must match the batch sum without repair")
}

func TestLedgerListingsResolveActorNames(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	ctx := context.Background()
	svc := newService()
	cache := repository.NewUserCacheRepository(suite.DB)

	clerk := suite.Fixtures.CachedUser()
	approver := suite.Fixtures.CachedUser()
	for _, u := range []testutil.CachedUserFixture{clerk, approver} {
		require.NoError(t, cache.Upsert(ctx, &repository.CachedUser{
			ID:        u.ID,
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			RoleName:  u.RoleName,
		}))
	}

	product := createProduct(t, svc, "Loratadine 10mg")

	_, err := svc.CreateBatch(ctx, product.ID, clerk.ID, service.CreateBatchInput{
		BatchNumber:     "B1",
		ExpirationDate:  time.Now().AddDate(0, 0, 365),
		InitialQuantity: 40,
	})
	require.NoError(t, err)

	movements, _, err := svc.ListMovements(ctx, product.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.NotNil(t, movements[0].UserName)
	assert.Equal(t, clerk.FirstName+" "+clerk.LastName, *movements[0].UserName)

	pending, err := svc.ListPendingMovements(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].UserName)
	assert.Equal(t, clerk.FirstName+" "+clerk.LastName, *pending[0].UserName)

	approved, err := svc.ApproveMovement(ctx, movements[0].ID, approver.ID)
	require.NoError(t, err)

	got, err := svc.GetMovement(ctx, approved.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ApprovedByName)
	assert.Equal(t, approver.FirstName+" "+approver.LastName, *got.ApprovedByName)

	// An actor the cache has never seen stays unnamed.
	sale, err := svc.RecordMovement(ctx, product.ID, uuid.New().String(), service.RecordMovementInput{
		MovementType: repository.MovementVenta,
		Quantity:     5,
	})
	require.NoError(t, err)

	got, err = svc.GetMovement(ctx, sale.ID)
	require.NoError(t, err)
	assert.Nil(t, got.UserName)
}
