package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
)

// RecordMovementInput is the input for recording a ledger movement. Quantity
// is always a positive magnitude; direction comes from the movement type.
type RecordMovementInput struct {
	BatchID      *string                 `json:"batch_id,omitempty" validate:"omitempty,uuid"`
	MovementType repository.MovementType `json:"movement_type" validate:"required"`
	Quantity     int                     `json:"quantity" validate:"required,gt=0"`
	UnitCost     *float64                `json:"unit_cost,omitempty" validate:"omitempty,gte=0"`
	Reason       *string                 `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// RecordMovement appends a movement to the ledger and applies its stock
// effect. The product row is locked for the whole read-modify-write so
// concurrent movements for the same product serialize; the batch row, when
// referenced, is locked under the same transaction.
//
// Stock applies immediately. The approved flag is a separate compliance
// gate on the record itself, not a gate on the stock effect.
func (s *InventoryService) RecordMovement(ctx context.Context, productID, actorID string, input RecordMovementInput) (*repository.Movement, error) {
	if !input.MovementType.Valid() {
		return nil, errors.Validation(map[string]string{"movement_type": "unknown movement type"})
	}

	now := time.Now()
	signed := input.MovementType.Signed(input.Quantity)

	var movement *repository.Movement
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		product, err := s.products.GetForUpdate(ctx, tx, productID)
		if err != nil {
			return err
		}

		newStock := product.Stock + signed
		if newStock < 0 {
			return errors.InsufficientStock(productID, product.Stock, input.Quantity)
		}

		var batch *repository.Batch
		if input.BatchID != nil {
			batch, err = s.batches.GetForUpdate(ctx, tx, *input.BatchID)
			if err != nil {
				return err
			}
			if batch.ProductID != productID {
				return errors.BadRequest("batch does not belong to this product")
			}

			newQuantity := batch.CurrentQuantity + signed
			if newQuantity < 0 {
				return errors.InsufficientStock(batch.ID, batch.CurrentQuantity, input.Quantity)
			}
			if newQuantity > batch.InitialQuantity {
				return errors.Validation(map[string]string{
					"quantity": "batch quantity cannot exceed its initial quantity",
				})
			}
			batch.CurrentQuantity = newQuantity
		}

		movement = &repository.Movement{
			ProductID:     productID,
			BatchID:       input.BatchID,
			MovementType:  input.MovementType,
			Quantity:      signed,
			PreviousStock: product.Stock,
			NewStock:      newStock,
			UnitCost:      input.UnitCost,
			UserID:        actorID,
			MovementDate:  now,
			Reason:        input.Reason,
		}
		if input.UnitCost != nil {
			totalValue := *input.UnitCost * float64(input.Quantity)
			movement.TotalValue = &totalValue
		}
		if err := s.movements.Create(ctx, tx, movement); err != nil {
			return err
		}

		if batch != nil {
			RecomputeStatus(batch, s.cfg.NearExpiryDays, now)
			if err := s.batches.UpdateQuantityStatus(ctx, tx, batch); err != nil {
				return err
			}
		}

		return s.products.SetStock(ctx, tx, productID, newStock)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("product_id", productID).
		Str("movement_id", movement.ID).
		Str("movement_type", string(movement.MovementType)).
		Int("quantity", movement.Quantity).
		Int("new_stock", movement.NewStock).
		Msg("Movement recorded")

	s.publisher.PublishMovementRecorded(ctx, movement)
	return movement, nil
}

// GetMovement gets a ledger entry by ID
func (s *InventoryService) GetMovement(ctx context.Context, id string) (*repository.Movement, error) {
	movement, err := s.movements.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.attachActorNames(ctx, []*repository.Movement{movement})
	return movement, nil
}

// ListMovements lists a product's ledger entries, newest first
func (s *InventoryService) ListMovements(ctx context.Context, productID string, page, perPage int) ([]*repository.Movement, int64, error) {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, 0, err
	}
	movements, total, err := s.movements.ListByProduct(ctx, productID, page, perPage)
	if err != nil {
		return nil, 0, err
	}
	s.attachActorNames(ctx, movements)
	return movements, total, nil
}

// ListPendingMovements lists ledger entries awaiting approval
func (s *InventoryService) ListPendingMovements(ctx context.Context) ([]*repository.Movement, error) {
	movements, err := s.movements.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	s.attachActorNames(ctx, movements)
	return movements, nil
}

// attachActorNames fills in creator and approver display names from the
// local user cache. Actors that are not cached stay unnamed; a lookup
// failure never fails the listing.
func (s *InventoryService) attachActorNames(ctx context.Context, movements []*repository.Movement) {
	resolved := map[string]*string{}
	resolve := func(id string) *string {
		if name, ok := resolved[id]; ok {
			return name
		}
		user, err := s.userCache.GetByID(ctx, id)
		if err != nil {
			if !errors.Is(err, errors.ErrNotFound) {
				s.logger.WithError(err).Warn().Str("user_id", id).Msg("Failed to resolve actor name")
			}
			resolved[id] = nil
			return nil
		}
		name := user.FullName()
		resolved[id] = &name
		return &name
	}

	for _, m := range movements {
		m.UserName = resolve(m.UserID)
		if m.ApprovedBy != nil {
			m.ApprovedByName = resolve(*m.ApprovedBy)
		}
	}
}

// ApproveMovement marks a movement approved. Approval is an audit gate; the
// stock effect was already applied when the movement was recorded.
func (s *InventoryService) ApproveMovement(ctx context.Context, id, approverID string) (*repository.Movement, error) {
	now := time.Now()

	var movement *repository.Movement
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		movement, err = s.movements.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if movement.Approved {
			return errors.AlreadyApproved(id)
		}

		if err := s.movements.Approve(ctx, tx, id, approverID, now); err != nil {
			return err
		}

		movement.Approved = true
		movement.ApprovedBy = &approverID
		movement.ApprovedDate = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("movement_id", id).
		Str("approved_by", approverID).
		Msg("Movement approved")

	s.publisher.PublishMovementApproved(ctx, movement, approverID)
	return movement, nil
}

// DeleteMovement reverses and removes an unapproved movement. The product
// stock returns to the movement's previousStock and any referenced batch
// gets the signed quantity subtracted back. Approved movements are permanent
// audit records and cannot be deleted.
func (s *InventoryService) DeleteMovement(ctx context.Context, id string) error {
	var movement *repository.Movement
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		movement, err = s.movements.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if movement.Approved {
			return errors.AlreadyApproved(id)
		}

		if _, err := s.products.GetForUpdate(ctx, tx, movement.ProductID); err != nil {
			return err
		}

		if movement.BatchID != nil {
			batch, err := s.batches.GetForUpdate(ctx, tx, *movement.BatchID)
			if err != nil {
				return err
			}
			batch.CurrentQuantity -= movement.Quantity
			if batch.CurrentQuantity < 0 || batch.CurrentQuantity > batch.InitialQuantity {
				return errors.Conflict("reversal would leave the batch quantity out of range")
			}
			RecomputeStatus(batch, s.cfg.NearExpiryDays, time.Now())
			if err := s.batches.UpdateQuantityStatus(ctx, tx, batch); err != nil {
				return err
			}
		}

		if err := s.products.SetStock(ctx, tx, movement.ProductID, movement.PreviousStock); err != nil {
			return err
		}
		return s.movements.Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("movement_id", id).
		Str("product_id", movement.ProductID).
		Int("restored_stock", movement.PreviousStock).
		Msg("Movement deleted and reversed")

	s.publisher.PublishMovementDeleted(ctx, movement)
	return nil
}
