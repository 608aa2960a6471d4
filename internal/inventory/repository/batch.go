package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
)

// BatchStatus is the lifecycle state of a batch
type BatchStatus string

const (
	BatchStatusActive     BatchStatus = "active"
	BatchStatusNearExpiry BatchStatus = "near_expiry"
	BatchStatusExpired    BatchStatus = "expired"
	BatchStatusDepleted   BatchStatus = "depleted"
	BatchStatusBlocked    BatchStatus = "blocked"
)

// Valid reports whether the status is a known lifecycle state
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchStatusActive, BatchStatusNearExpiry, BatchStatusExpired, BatchStatusDepleted, BatchStatusBlocked:
		return true
	}
	return false
}

// Batch is a dated lot of a product received from a supplier. Quantity and
// status are maintained exclusively through ledger operations.
type Batch struct {
	ID                string      `db:"id" json:"id"`
	ProductID         string      `db:"product_id" json:"product_id"`
	SupplierID        *string     `db:"supplier_id" json:"supplier_id,omitempty"`
	BatchNumber       string      `db:"batch_number" json:"batch_number"`
	ManufacturingDate *time.Time  `db:"manufacturing_date" json:"manufacturing_date,omitempty"`
	ExpirationDate    time.Time   `db:"expiration_date" json:"expiration_date"`
	InitialQuantity   int         `db:"initial_quantity" json:"initial_quantity"`
	CurrentQuantity   int         `db:"current_quantity" json:"current_quantity"`
	PurchasePrice     float64     `db:"purchase_price" json:"purchase_price"`
	SalePrice         float64     `db:"sale_price" json:"sale_price"`
	Location          *string     `db:"location" json:"location,omitempty"`
	Status            BatchStatus `db:"status" json:"status"`
	CanBeSold         bool        `db:"can_be_sold" json:"can_be_sold"`
	ReceiptDate       time.Time   `db:"receipt_date" json:"receipt_date"`
	IsActive          bool        `db:"is_active" json:"is_active"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create inserts a batch inside a transaction
func (r *BatchRepository) Create(ctx context.Context, tx *sqlx.Tx, batch *Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}

	query := `
		INSERT INTO batches (
			id, product_id, supplier_id, batch_number, manufacturing_date,
			expiration_date, initial_quantity, current_quantity, purchase_price,
			sale_price, location, status, can_be_sold, receipt_date, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		batch.ID, batch.ProductID, batch.SupplierID, batch.BatchNumber,
		batch.ManufacturingDate, batch.ExpirationDate, batch.InitialQuantity,
		batch.CurrentQuantity, batch.PurchasePrice, batch.SalePrice,
		batch.Location, batch.Status, batch.CanBeSold, batch.ReceiptDate,
		batch.IsActive,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM batches WHERE id = $1 AND is_active = true`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// GetForUpdate gets a batch by ID with a row lock, within a transaction
func (r *BatchRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM batches WHERE id = $1 AND is_active = true FOR UPDATE`
	if err := tx.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// Exists reports whether the product already has a batch with the given
// batch number, within a transaction. Checked under the product lock so
// concurrent creations of the same number cannot both pass.
func (r *BatchRepository) Exists(ctx context.Context, tx *sqlx.Tx, productID, batchNumber string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM batches WHERE product_id = $1 AND batch_number = $2 AND is_active = true)`
	if err := tx.GetContext(ctx, &exists, query, productID, batchNumber); err != nil {
		return false, err
	}
	return exists, nil
}

// ListByProduct lists a product's batches, soonest expiration first
func (r *BatchRepository) ListByProduct(ctx context.Context, productID string, page, perPage int) ([]*Batch, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM batches WHERE product_id = $1 AND is_active = true`
	if err := r.db.GetContext(ctx, &total, countQuery, productID); err != nil {
		return nil, 0, err
	}

	var batches []*Batch
	query := `
		SELECT * FROM batches
		WHERE product_id = $1 AND is_active = true
		ORDER BY expiration_date, created_at
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &batches, query, productID, perPage, (page-1)*perPage); err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

// ListSellable lists the product's sellable batches in first-expiry-first-out
// order: soonest expiration first, receipt order as tiebreak.
func (r *BatchRepository) ListSellable(ctx context.Context, productID string) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM batches
		WHERE product_id = $1 AND is_active = true
			AND status IN ('active', 'near_expiry') AND can_be_sold = true AND current_quantity > 0
		ORDER BY expiration_date, created_at
	`
	if err := r.db.SelectContext(ctx, &batches, query, productID); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListSellableForUpdate is ListSellable with row locks, within a transaction
func (r *BatchRepository) ListSellableForUpdate(ctx context.Context, tx *sqlx.Tx, productID string) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM batches
		WHERE product_id = $1 AND is_active = true
			AND status IN ('active', 'near_expiry') AND can_be_sold = true AND current_quantity > 0
		ORDER BY expiration_date, created_at
		FOR UPDATE
	`
	if err := tx.SelectContext(ctx, &batches, query, productID); err != nil {
		return nil, err
	}
	return batches, nil
}

// UpdateQuantityStatus persists quantity, status and sellability inside a transaction
func (r *BatchRepository) UpdateQuantityStatus(ctx context.Context, tx *sqlx.Tx, batch *Batch) error {
	query := `
		UPDATE batches
		SET current_quantity = $2, status = $3, can_be_sold = $4, updated_at = NOW()
		WHERE id = $1 AND is_active = true
	`
	result, err := tx.ExecContext(ctx, query, batch.ID, batch.CurrentQuantity, batch.Status, batch.CanBeSold)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}
	return nil
}

// Update updates a batch's descriptive fields
func (r *BatchRepository) Update(ctx context.Context, batch *Batch) error {
	query := `
		UPDATE batches
		SET supplier_id = $2, location = $3, purchase_price = $4, sale_price = $5, updated_at = NOW()
		WHERE id = $1 AND is_active = true
	`
	result, err := r.db.ExecContext(ctx, query, batch.ID, batch.SupplierID, batch.Location, batch.PurchasePrice, batch.SalePrice)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}
	return nil
}

// SoftDelete marks a batch inactive
func (r *BatchRepository) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE batches SET is_active = false, updated_at = NOW() WHERE id = $1 AND is_active = true`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}
	return nil
}

// ListExpiring lists batches with remaining stock that expire within the
// given number of days, soonest first. Already expired batches are excluded.
func (r *BatchRepository) ListExpiring(ctx context.Context, withinDays int) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM batches
		WHERE is_active = true AND current_quantity > 0
			AND expiration_date >= CURRENT_DATE
			AND expiration_date <= CURRENT_DATE + ($1 || ' days')::interval
			AND status NOT IN ('blocked', 'depleted')
		ORDER BY expiration_date, created_at
	`
	if err := r.db.SelectContext(ctx, &batches, query, withinDays); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListExpired lists batches with remaining stock whose expiration date has
// passed, most recently expired first.
func (r *BatchRepository) ListExpired(ctx context.Context) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM batches
		WHERE is_active = true AND current_quantity > 0
			AND expiration_date < CURRENT_DATE
		ORDER BY expiration_date DESC, created_at
	`
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, err
	}
	return batches, nil
}

// SumQuantities returns the total remaining quantity across a product's
// batches, within a transaction
func (r *BatchRepository) SumQuantities(ctx context.Context, tx *sqlx.Tx, productID string) (int, error) {
	var total int
	query := `SELECT COALESCE(SUM(current_quantity), 0) FROM batches WHERE product_id = $1 AND is_active = true`
	if err := tx.GetContext(ctx, &total, query, productID); err != nil {
		return 0, err
	}
	return total, nil
}

// ListByProductForUpdate lists all of a product's batches with row locks,
// within a transaction
func (r *BatchRepository) ListByProductForUpdate(ctx context.Context, tx *sqlx.Tx, productID string) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM batches
		WHERE product_id = $1 AND is_active = true
		ORDER BY expiration_date, created_at
		FOR UPDATE
	`
	if err := tx.SelectContext(ctx, &batches, query, productID); err != nil {
		return nil, err
	}
	return batches, nil
}
