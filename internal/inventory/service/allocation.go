package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/messaging"
)

// Allocation is one batch's share of a fulfilled quantity
type Allocation struct {
	BatchID     string    `json:"batch_id"`
	BatchNumber string    `json:"batch_number"`
	Expiration  time.Time `json:"expiration_date"`
	Quantity    int       `json:"quantity"`
}

// allocateFIFO greedily splits the requested quantity across candidates.
// Candidates must already be ordered soonest-expiring first; callers get
// that from the repository's sellable query. Pure function, no mutation.
func allocateFIFO(productID string, candidates []*repository.Batch, requested int) ([]Allocation, error) {
	available := 0
	for _, b := range candidates {
		available += b.CurrentQuantity
	}
	if available < requested {
		return nil, errors.InsufficientStock(productID, available, requested)
	}

	allocations := make([]Allocation, 0, len(candidates))
	remaining := requested
	for _, b := range candidates {
		if remaining == 0 {
			break
		}
		take := b.CurrentQuantity
		if take > remaining {
			take = remaining
		}
		allocations = append(allocations, Allocation{
			BatchID:     b.ID,
			BatchNumber: b.BatchNumber,
			Expiration:  b.ExpirationDate,
			Quantity:    take,
		})
		remaining -= take
	}
	return allocations, nil
}

// SelectBatchesFIFO previews which batches would fulfill the requested
// quantity, soonest-expiring first. Read-only: nothing is consumed. Active
// and near-expiry sellable batches qualify; blocked, expired and depleted
// batches never do.
func (s *InventoryService) SelectBatchesFIFO(ctx context.Context, productID string, quantity int) ([]Allocation, error) {
	if quantity <= 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must be greater than zero"})
	}
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}

	candidates, err := s.batches.ListSellable(ctx, productID)
	if err != nil {
		return nil, err
	}
	return allocateFIFO(productID, candidates, quantity)
}

// ConsumeFIFO fulfills the requested quantity by drawing down batches in
// expiration order, writing one ledger movement per batch touched. The
// selection and all writes happen inside one transaction with the product
// and candidate batch rows locked, so the plan cannot go stale between
// selection and commit.
func (s *InventoryService) ConsumeFIFO(ctx context.Context, productID string, quantity int, movementType repository.MovementType, actorID string, reason *string) ([]Allocation, error) {
	if quantity <= 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must be greater than zero"})
	}
	if movementType == "" {
		movementType = repository.MovementVenta
	}
	if !movementType.Valid() || movementType.Inbound() {
		return nil, errors.Validation(map[string]string{"movement_type": "must be an outbound movement type"})
	}

	now := time.Now()

	var allocations []Allocation
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		product, err := s.products.GetForUpdate(ctx, tx, productID)
		if err != nil {
			return err
		}

		candidates, err := s.batches.ListSellableForUpdate(ctx, tx, productID)
		if err != nil {
			return err
		}

		allocations, err = allocateFIFO(productID, candidates, quantity)
		if err != nil {
			return err
		}

		byID := make(map[string]*repository.Batch, len(candidates))
		for _, b := range candidates {
			byID[b.ID] = b
		}

		stock := product.Stock
		for i := range allocations {
			alloc := &allocations[i]
			batch := byID[alloc.BatchID]

			batchID := batch.ID
			movement := &repository.Movement{
				ProductID:     productID,
				BatchID:       &batchID,
				MovementType:  movementType,
				Quantity:      -alloc.Quantity,
				PreviousStock: stock,
				NewStock:      stock - alloc.Quantity,
				UserID:        actorID,
				MovementDate:  now,
				Reason:        reason,
			}
			if err := s.movements.Create(ctx, tx, movement); err != nil {
				return err
			}
			stock -= alloc.Quantity

			batch.CurrentQuantity -= alloc.Quantity
			RecomputeStatus(batch, s.cfg.NearExpiryDays, now)
			if err := s.batches.UpdateQuantityStatus(ctx, tx, batch); err != nil {
				return err
			}
		}

		return s.products.SetStock(ctx, tx, productID, stock)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("product_id", productID).
		Int("quantity", quantity).
		Int("batches", len(allocations)).
		Msg("Stock consumed FIFO")

	portions := make([]messaging.FIFOBatchPortion, len(allocations))
	for i, a := range allocations {
		portions[i] = messaging.FIFOBatchPortion{BatchID: a.BatchID, Quantity: a.Quantity}
	}
	s.publisher.PublishStockFIFOConsumed(ctx, productID, quantity, portions, actorID)
	return allocations, nil
}

// CommitAllocations consumes a previously previewed allocation plan. Each
// planned batch is re-locked and re-validated; if any batch no longer holds
// the planned quantity the whole operation fails with a concurrency
// conflict and the caller should re-run the selection.
func (s *InventoryService) CommitAllocations(ctx context.Context, productID string, plan []Allocation, movementType repository.MovementType, actorID string, reason *string) error {
	if len(plan) == 0 {
		return errors.Validation(map[string]string{"allocations": "must not be empty"})
	}
	if movementType == "" {
		movementType = repository.MovementVenta
	}
	if !movementType.Valid() || movementType.Inbound() {
		return errors.Validation(map[string]string{"movement_type": "must be an outbound movement type"})
	}

	now := time.Now()

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		product, err := s.products.GetForUpdate(ctx, tx, productID)
		if err != nil {
			return err
		}

		stock := product.Stock
		for _, alloc := range plan {
			if alloc.Quantity <= 0 {
				return errors.Validation(map[string]string{"allocations": "quantities must be greater than zero"})
			}

			batch, err := s.batches.GetForUpdate(ctx, tx, alloc.BatchID)
			if err != nil {
				return err
			}
			if batch.ProductID != productID {
				return errors.BadRequest("batch does not belong to this product")
			}
			if !batch.CanBeSold || batch.CurrentQuantity < alloc.Quantity {
				return errors.ConcurrencyConflict(alloc.BatchID)
			}

			batchID := batch.ID
			movement := &repository.Movement{
				ProductID:     productID,
				BatchID:       &batchID,
				MovementType:  movementType,
				Quantity:      -alloc.Quantity,
				PreviousStock: stock,
				NewStock:      stock - alloc.Quantity,
				UserID:        actorID,
				MovementDate:  now,
				Reason:        reason,
			}
			if err := s.movements.Create(ctx, tx, movement); err != nil {
				return err
			}
			stock -= alloc.Quantity

			batch.CurrentQuantity -= alloc.Quantity
			RecomputeStatus(batch, s.cfg.NearExpiryDays, now)
			if err := s.batches.UpdateQuantityStatus(ctx, tx, batch); err != nil {
				return err
			}
		}

		return s.products.SetStock(ctx, tx, productID, stock)
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("product_id", productID).
		Int("batches", len(plan)).
		Msg("Allocation plan committed")
	return nil
}
