package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/events"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/pkg/config"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// InventoryService owns batch lifecycle, the movement ledger, FIFO
// allocation and alert aggregation. All stock mutations go through it so
// that Product.stock stays consistent with the underlying batches.
type InventoryService struct {
	db        *database.DB
	products  *repository.ProductRepository
	batches   *repository.BatchRepository
	movements *repository.MovementRepository
	userCache *repository.UserCacheRepository
	publisher *events.InventoryEventPublisher
	logger    *logger.Logger
	cfg       config.InventoryConfig
}

// NewInventoryService creates a new inventory service
func NewInventoryService(
	db *database.DB,
	products *repository.ProductRepository,
	batches *repository.BatchRepository,
	movements *repository.MovementRepository,
	userCache *repository.UserCacheRepository,
	publisher *events.InventoryEventPublisher,
	log *logger.Logger,
	cfg config.InventoryConfig,
) *InventoryService {
	return &InventoryService{
		db:        db,
		products:  products,
		batches:   batches,
		movements: movements,
		userCache: userCache,
		publisher: publisher,
		logger:    log.WithComponent("inventory-service"),
		cfg:       cfg,
	}
}

// CreateProductInput is the input for creating a product
type CreateProductInput struct {
	Name     string  `json:"name" validate:"required,min=2,max=200"`
	Price    float64 `json:"price" validate:"gte=0"`
	MinStock int     `json:"min_stock" validate:"gte=0"`
}

// CreateProduct creates a product with zero stock. Stock only ever changes
// through batches and ledger movements.
func (s *InventoryService) CreateProduct(ctx context.Context, input CreateProductInput) (*repository.Product, error) {
	minStock := input.MinStock
	if minStock == 0 {
		minStock = s.cfg.LowStockThreshold
	}

	product := &repository.Product{
		Name:     input.Name,
		Price:    input.Price,
		MinStock: minStock,
		IsActive: true,
	}
	if err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}

	s.logger.Info().Str("product_id", product.ID).Str("name", product.Name).Msg("Product created")
	return product, nil
}

// GetProduct gets a product by ID
func (s *InventoryService) GetProduct(ctx context.Context, id string) (*repository.Product, error) {
	return s.products.GetByID(ctx, id)
}

// ListProducts lists products with pagination
func (s *InventoryService) ListProducts(ctx context.Context, page, perPage int) ([]*repository.Product, int64, error) {
	return s.products.List(ctx, page, perPage)
}

// UpdateProductInput is the input for updating a product
type UpdateProductInput struct {
	Name     string  `json:"name" validate:"required,min=2,max=200"`
	Price    float64 `json:"price" validate:"gte=0"`
	MinStock int     `json:"min_stock" validate:"gte=0"`
}

// UpdateProduct updates a product's descriptive fields
func (s *InventoryService) UpdateProduct(ctx context.Context, id string, input UpdateProductInput) (*repository.Product, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	product.Name = input.Name
	product.Price = input.Price
	product.MinStock = input.MinStock
	if err := s.products.Update(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// DeleteProduct soft-deletes a product. Products with remaining stock
// cannot be deleted; the stock has to be moved out through the ledger first.
func (s *InventoryService) DeleteProduct(ctx context.Context, id string) error {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if product.Stock > 0 {
		return errors.Conflict("product still has stock; record outbound movements before deleting")
	}
	return s.products.SoftDelete(ctx, id)
}

// CreateBatchInput is the input for receiving a batch
type CreateBatchInput struct {
	SupplierID        *string    `json:"supplier_id,omitempty" validate:"omitempty,uuid"`
	BatchNumber       string     `json:"batch_number" validate:"required,min=1,max=100"`
	ManufacturingDate *time.Time `json:"manufacturing_date,omitempty"`
	ExpirationDate    time.Time  `json:"expiration_date" validate:"required"`
	InitialQuantity   int        `json:"initial_quantity" validate:"required,gt=0"`
	PurchasePrice     float64    `json:"purchase_price" validate:"gte=0"`
	SalePrice         float64    `json:"sale_price" validate:"gte=0"`
	Location          *string    `json:"location,omitempty" validate:"omitempty,max=100"`
}

// CreateBatch receives a new batch for a product. The receipt is written to
// the ledger as an inbound purchase movement and the product stock grows by
// the initial quantity, all in one transaction.
func (s *InventoryService) CreateBatch(ctx context.Context, productID, actorID string, input CreateBatchInput) (*repository.Batch, error) {
	now := time.Now()

	var batch *repository.Batch
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		product, err := s.products.GetForUpdate(ctx, tx, productID)
		if err != nil {
			return err
		}

		exists, err := s.batches.Exists(ctx, tx, productID, input.BatchNumber)
		if err != nil {
			return err
		}
		if exists {
			return errors.DuplicateBatchNumber(productID, input.BatchNumber)
		}

		batch = &repository.Batch{
			ProductID:         productID,
			SupplierID:        input.SupplierID,
			BatchNumber:       input.BatchNumber,
			ManufacturingDate: input.ManufacturingDate,
			ExpirationDate:    input.ExpirationDate,
			InitialQuantity:   input.InitialQuantity,
			CurrentQuantity:   input.InitialQuantity,
			PurchasePrice:     input.PurchasePrice,
			SalePrice:         input.SalePrice,
			Location:          input.Location,
			CanBeSold:         true,
			ReceiptDate:       now,
			IsActive:          true,
		}
		RecomputeStatus(batch, s.cfg.NearExpiryDays, now)
		if err := s.batches.Create(ctx, tx, batch); err != nil {
			return err
		}

		newStock := product.Stock + input.InitialQuantity
		unitCost := input.PurchasePrice
		totalValue := unitCost * float64(input.InitialQuantity)
		movement := &repository.Movement{
			ProductID:     productID,
			BatchID:       &batch.ID,
			MovementType:  repository.MovementCompra,
			Quantity:      input.InitialQuantity,
			PreviousStock: product.Stock,
			NewStock:      newStock,
			UnitCost:      &unitCost,
			TotalValue:    &totalValue,
			UserID:        actorID,
			MovementDate:  now,
		}
		if err := s.movements.Create(ctx, tx, movement); err != nil {
			return err
		}

		return s.products.SetStock(ctx, tx, productID, newStock)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("product_id", productID).
		Str("batch_id", batch.ID).
		Str("batch_number", batch.BatchNumber).
		Int("quantity", batch.InitialQuantity).
		Msg("Batch received")

	s.publisher.PublishBatchCreated(ctx, batch, actorID)
	return batch, nil
}

// GetBatch gets a batch by ID
func (s *InventoryService) GetBatch(ctx context.Context, id string) (*repository.Batch, error) {
	return s.batches.GetByID(ctx, id)
}

// ListBatches lists a product's batches, soonest expiration first
func (s *InventoryService) ListBatches(ctx context.Context, productID string, page, perPage int) ([]*repository.Batch, int64, error) {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, 0, err
	}
	return s.batches.ListByProduct(ctx, productID, page, perPage)
}

// UpdateBatchInput is the input for updating a batch's descriptive fields
type UpdateBatchInput struct {
	SupplierID    *string `json:"supplier_id,omitempty" validate:"omitempty,uuid"`
	Location      *string `json:"location,omitempty" validate:"omitempty,max=100"`
	PurchasePrice float64 `json:"purchase_price" validate:"gte=0"`
	SalePrice     float64 `json:"sale_price" validate:"gte=0"`
}

// UpdateBatch updates a batch's descriptive fields. Quantity, status and
// dates are not editable here; quantities move through the ledger only.
func (s *InventoryService) UpdateBatch(ctx context.Context, id string, input UpdateBatchInput) (*repository.Batch, error) {
	batch, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	batch.SupplierID = input.SupplierID
	batch.Location = input.Location
	batch.PurchasePrice = input.PurchasePrice
	batch.SalePrice = input.SalePrice
	if err := s.batches.Update(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// DeleteBatch soft-deletes a depleted batch. Batches with remaining
// quantity can only be emptied through the ledger, never deleted.
func (s *InventoryService) DeleteBatch(ctx context.Context, id string) error {
	batch, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if batch.CurrentQuantity > 0 {
		return errors.Conflict("batch still has stock; record outbound movements before deleting")
	}
	return s.batches.SoftDelete(ctx, id)
}

// BlockBatch manually blocks a batch from sale. Blocked overrides the
// automatic lifecycle until an explicit unblock.
func (s *InventoryService) BlockBatch(ctx context.Context, id, reason, actorID string) (*repository.Batch, error) {
	var batch *repository.Batch
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		batch, err = s.batches.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if batch.Status == repository.BatchStatusBlocked {
			return errors.Conflict("batch is already blocked")
		}

		batch.Status = repository.BatchStatusBlocked
		batch.CanBeSold = false
		return s.batches.UpdateQuantityStatus(ctx, tx, batch)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("batch_id", id).Str("reason", reason).Msg("Batch blocked")
	s.publisher.PublishBatchBlocked(ctx, batch, reason, actorID)
	return batch, nil
}

// UnblockBatch releases a manual block and rederives the batch status from
// its quantity and expiration date.
func (s *InventoryService) UnblockBatch(ctx context.Context, id, actorID string) (*repository.Batch, error) {
	var batch *repository.Batch
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		batch, err = s.batches.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if batch.Status != repository.BatchStatusBlocked {
			return errors.Conflict("batch is not blocked")
		}

		batch.Status = repository.BatchStatusActive
		batch.CanBeSold = true
		RecomputeStatus(batch, s.cfg.NearExpiryDays, time.Now())
		return s.batches.UpdateQuantityStatus(ctx, tx, batch)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("batch_id", id).Msg("Batch unblocked")
	s.publisher.PublishBatchUnblocked(ctx, batch, actorID)
	return batch, nil
}

// ReconcileResult reports the outcome of a stock reconciliation
type ReconcileResult struct {
	ProductID     string `json:"product_id"`
	PreviousStock int    `json:"previous_stock"`
	ComputedStock int    `json:"computed_stock"`
	Repaired      bool   `json:"repaired"`
}

// ReconcileStock recomputes a product's stock from its batches and repairs
// the cached total if it drifted. Intended for operational recovery; under
// normal operation the two never diverge.
func (s *InventoryService) ReconcileStock(ctx context.Context, productID string) (*ReconcileResult, error) {
	var result *ReconcileResult
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		product, err := s.products.GetForUpdate(ctx, tx, productID)
		if err != nil {
			return err
		}

		computed, err := s.batches.SumQuantities(ctx, tx, productID)
		if err != nil {
			return err
		}

		result = &ReconcileResult{
			ProductID:     productID,
			PreviousStock: product.Stock,
			ComputedStock: computed,
			Repaired:      product.Stock != computed,
		}
		if !result.Repaired {
			return nil
		}
		return s.products.SetStock(ctx, tx, productID, computed)
	})
	if err != nil {
		return nil, err
	}

	if result.Repaired {
		s.logger.Warn().
			Str("product_id", productID).
			Int("previous_stock", result.PreviousStock).
			Int("computed_stock", result.ComputedStock).
			Msg("Stock drift repaired")
		s.publisher.PublishStockReconciled(ctx, productID, result.PreviousStock, result.ComputedStock, true)
	}
	return result, nil
}
