package events

import (
	"context"

	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
	"github.com/pharmaflow/pharmaflow-backend/pkg/messaging"
)

// InventoryEventPublisher publishes inventory domain events. A nil publisher
// is valid and publishes nothing, so the service can run without a broker
// in tests and local setups.
type InventoryEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewInventoryEventPublisher creates a new inventory event publisher
func NewInventoryEventPublisher(publisher *messaging.Publisher, log *logger.Logger) *InventoryEventPublisher {
	return &InventoryEventPublisher{
		publisher: publisher,
		logger:    log,
	}
}

func (p *InventoryEventPublisher) publish(ctx context.Context, eventType string, data interface{}) {
	if p == nil || p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.WithError(err).Error().Str("event_type", eventType).Msg("Failed to publish inventory event")
	}
}

// PublishBatchCreated publishes a batch created event
func (p *InventoryEventPublisher) PublishBatchCreated(ctx context.Context, batch *repository.Batch, receivedBy string) {
	p.publish(ctx, messaging.EventBatchCreated, messaging.BatchCreatedEvent{
		BatchID:         batch.ID,
		ProductID:       batch.ProductID,
		BatchNumber:     batch.BatchNumber,
		ExpirationDate:  batch.ExpirationDate,
		InitialQuantity: batch.InitialQuantity,
		ReceivedBy:      receivedBy,
	})
}

// PublishBatchBlocked publishes a batch blocked event
func (p *InventoryEventPublisher) PublishBatchBlocked(ctx context.Context, batch *repository.Batch, reason, blockedBy string) {
	p.publish(ctx, messaging.EventBatchBlocked, messaging.BatchBlockedEvent{
		BatchID:   batch.ID,
		ProductID: batch.ProductID,
		Blocked:   true,
		Reason:    reason,
		BlockedBy: blockedBy,
	})
}

// PublishBatchUnblocked publishes a batch unblocked event
func (p *InventoryEventPublisher) PublishBatchUnblocked(ctx context.Context, batch *repository.Batch, unblockedBy string) {
	p.publish(ctx, messaging.EventBatchUnblocked, messaging.BatchBlockedEvent{
		BatchID:   batch.ID,
		ProductID: batch.ProductID,
		Blocked:   false,
		BlockedBy: unblockedBy,
	})
}

// PublishMovementRecorded publishes a movement recorded event
func (p *InventoryEventPublisher) PublishMovementRecorded(ctx context.Context, movement *repository.Movement) {
	event := messaging.MovementRecordedEvent{
		MovementID:    movement.ID,
		ProductID:     movement.ProductID,
		MovementType:  string(movement.MovementType),
		Quantity:      movement.Quantity,
		PreviousStock: movement.PreviousStock,
		NewStock:      movement.NewStock,
		RecordedBy:    movement.UserID,
	}
	if movement.BatchID != nil {
		event.BatchID = *movement.BatchID
	}
	p.publish(ctx, messaging.EventMovementRecorded, event)
}

// PublishMovementApproved publishes a movement approved event
func (p *InventoryEventPublisher) PublishMovementApproved(ctx context.Context, movement *repository.Movement, approvedBy string) {
	p.publish(ctx, messaging.EventMovementApproved, messaging.MovementApprovedEvent{
		MovementID: movement.ID,
		ProductID:  movement.ProductID,
		ApprovedBy: approvedBy,
	})
}

// PublishMovementDeleted publishes a movement deleted event
func (p *InventoryEventPublisher) PublishMovementDeleted(ctx context.Context, movement *repository.Movement) {
	event := messaging.MovementDeletedEvent{
		MovementID:    movement.ID,
		ProductID:     movement.ProductID,
		RestoredStock: movement.PreviousStock,
	}
	if movement.BatchID != nil {
		event.BatchID = *movement.BatchID
	}
	p.publish(ctx, messaging.EventMovementDeleted, event)
}

// PublishStockFIFOConsumed publishes a FIFO consumption event
func (p *InventoryEventPublisher) PublishStockFIFOConsumed(ctx context.Context, productID string, quantity int, portions []messaging.FIFOBatchPortion, consumedBy string) {
	p.publish(ctx, messaging.EventStockFIFOConsumed, messaging.StockFIFOConsumedEvent{
		ProductID:  productID,
		Quantity:   quantity,
		Batches:    portions,
		ConsumedBy: consumedBy,
	})
}

// PublishStockReconciled publishes a stock reconciled event
func (p *InventoryEventPublisher) PublishStockReconciled(ctx context.Context, productID string, previousStock, expected int, repaired bool) {
	p.publish(ctx, messaging.EventStockReconciled, messaging.StockReconciledEvent{
		ProductID:     productID,
		PreviousStock: previousStock,
		Expected:      expected,
		Repaired:      repaired,
	})
}
