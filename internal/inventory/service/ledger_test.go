package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/pkg/config"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
	"github.com/pharmaflow/pharmaflow-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*InventoryService, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	log := logger.New("test", "test")
	db := database.NewFromSqlx(mockDB.DB, log)

	svc := NewInventoryService(
		db,
		repository.NewProductRepository(db),
		repository.NewBatchRepository(db),
		repository.NewMovementRepository(db),
		repository.NewUserCacheRepository(db),
		nil, // no broker in unit tests, the publisher is nil-safe
		log,
		config.InventoryConfig{LowStockThreshold: 10, NearExpiryDays: 30},
	)
	return svc, mockDB
}

func productColumns() []string {
	return []string{"id", "name", "stock", "price", "min_stock", "is_active", "created_at", "updated_at"}
}

func movementColumns() []string {
	return []string{
		"id", "product_id", "batch_id", "movement_type", "quantity",
		"previous_stock", "new_stock", "unit_cost", "total_value", "user_id",
		"approved", "approved_by", "approved_date", "movement_date", "reason",
		"created_at",
	}
}

func TestRecordMovementInsufficientStock(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	productID := uuid.New().String()
	now := time.Now()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`SELECT * FROM products WHERE id = $1 AND is_active = true FOR UPDATE`).
		WithArgs(productID).
		WillReturnRows(testutil.MockRows(productColumns()...).
			AddRow(productID, "Ibuprofen 400mg", 70, 9.99, 10, true, now, now))
	mockDB.ExpectRollback()

	_, err := svc.RecordMovement(context.Background(), productID, uuid.New().String(), RecordMovementInput{
		MovementType: repository.MovementVenta,
		Quantity:     1000,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "70", appErr.Details["available"])
	assert.Equal(t, "1000", appErr.Details["requested"])

	mockDB.ExpectationsWereMet(t)
}

func TestRecordMovementRejectsUnknownType(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	_, err := svc.RecordMovement(context.Background(), uuid.New().String(), uuid.New().String(), RecordMovementInput{
		MovementType: "robo",
		Quantity:     5,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	// No transaction must be opened for invalid input.
	mockDB.ExpectationsWereMet(t)
}

func TestRecordMovementOutboundWithoutBatch(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	productID := uuid.New().String()
	actorID := uuid.New().String()
	now := time.Now()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`SELECT * FROM products WHERE id = $1 AND is_active = true FOR UPDATE`).
		WithArgs(productID).
		WillReturnRows(testutil.MockRows(productColumns()...).
			AddRow(productID, "Ibuprofen 400mg", 100, 9.99, 10, true, now, now))
	mockDB.Mock.ExpectQuery(`INSERT INTO inventory_movements`).
		WillReturnRows(testutil.MockRows("created_at").AddRow(now))
	mockDB.Mock.ExpectExec(`UPDATE products SET stock`).
		WithArgs(productID, 70).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	movement, err := svc.RecordMovement(context.Background(), productID, actorID, RecordMovementInput{
		MovementType: repository.MovementVenta,
		Quantity:     30,
	})
	require.NoError(t, err)

	assert.Equal(t, -30, movement.Quantity)
	assert.Equal(t, 100, movement.PreviousStock)
	assert.Equal(t, 70, movement.NewStock)
	assert.False(t, movement.Approved)

	mockDB.ExpectationsWereMet(t)
}

func TestApproveMovementAlreadyApproved(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	movementID := uuid.New().String()
	approver := uuid.New().String()
	now := time.Now()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`SELECT * FROM inventory_movements WHERE id = $1 FOR UPDATE`).
		WithArgs(movementID).
		WillReturnRows(testutil.MockRows(movementColumns()...).
			AddRow(movementID, uuid.New().String(), nil, "venta", -5,
				100, 95, nil, nil, uuid.New().String(),
				true, approver, now, now, nil, now))
	mockDB.ExpectRollback()

	_, err := svc.ApproveMovement(context.Background(), movementID, approver)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyApproved))

	mockDB.ExpectationsWereMet(t)
}

func TestDeleteMovementApprovedIsPermanent(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	movementID := uuid.New().String()
	now := time.Now()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`SELECT * FROM inventory_movements WHERE id = $1 FOR UPDATE`).
		WithArgs(movementID).
		WillReturnRows(testutil.MockRows(movementColumns()...).
			AddRow(movementID, uuid.New().String(), nil, "venta", -5,
				100, 95, nil, nil, uuid.New().String(),
				true, uuid.New().String(), now, now, nil, now))
	mockDB.ExpectRollback()

	err := svc.DeleteMovement(context.Background(), movementID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyApproved))

	mockDB.ExpectationsWereMet(t)
}

func TestDeleteMovementRestoresPreviousStock(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	movementID := uuid.New().String()
	productID := uuid.New().String()
	now := time.Now()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`SELECT * FROM inventory_movements WHERE id = $1 FOR UPDATE`).
		WithArgs(movementID).
		WillReturnRows(testutil.MockRows(movementColumns()...).
			AddRow(movementID, productID, nil, "venta", -30,
				100, 70, nil, nil, uuid.New().String(),
				false, nil, nil, now, nil, now))
	mockDB.ExpectQuery(`SELECT * FROM products WHERE id = $1 AND is_active = true FOR UPDATE`).
		WithArgs(productID).
		WillReturnRows(testutil.MockRows(productColumns()...).
			AddRow(productID, "Ibuprofen 400mg", 70, 9.99, 10, true, now, now))
	mockDB.Mock.ExpectExec(`UPDATE products SET stock`).
		WithArgs(productID, 100).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.Mock.ExpectExec(`DELETE FROM inventory_movements WHERE id = \$1`).
		WithArgs(movementID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	err := svc.DeleteMovement(context.Background(), movementID)
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}
