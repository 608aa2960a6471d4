package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// User events (consumed from the identity service)
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"

	// Inventory events
	EventBatchCreated      = "inventory.batch.created"
	EventBatchBlocked      = "inventory.batch.blocked"
	EventBatchUnblocked    = "inventory.batch.unblocked"
	EventMovementRecorded  = "inventory.movement.recorded"
	EventMovementApproved  = "inventory.movement.approved"
	EventMovementDeleted   = "inventory.movement.deleted"
	EventStockReconciled   = "inventory.stock.reconciled"
	EventStockFIFOConsumed = "inventory.stock.fifo_consumed"
)

// Exchange names
const (
	ExchangeUserEvents      = "user.events"
	ExchangeInventoryEvents = "inventory.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// User Events

// UserCreatedEvent is published by the identity service when a user is created
type UserCreatedEvent struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	RoleName  string `json:"role_name"`
}

// FullName returns the user's full name
func (e *UserCreatedEvent) FullName() string {
	return e.FirstName + " " + e.LastName
}

// UserUpdatedEvent is published by the identity service when a user is updated
type UserUpdatedEvent struct {
	UserID string         `json:"user_id"`
	Fields map[string]any `json:"fields"` // Changed fields
}

// UserDeletedEvent is published by the identity service when a user is deleted
type UserDeletedEvent struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Inventory Events

// BatchCreatedEvent is published when stock is received as a new batch
type BatchCreatedEvent struct {
	BatchID         string    `json:"batch_id"`
	ProductID       string    `json:"product_id"`
	BatchNumber     string    `json:"batch_number"`
	ExpirationDate  time.Time `json:"expiration_date"`
	InitialQuantity int       `json:"initial_quantity"`
	ReceivedBy      string    `json:"received_by"`
}

// BatchBlockedEvent is published when a batch is manually blocked or unblocked
type BatchBlockedEvent struct {
	BatchID   string `json:"batch_id"`
	ProductID string `json:"product_id"`
	Blocked   bool   `json:"blocked"`
	Reason    string `json:"reason,omitempty"`
	BlockedBy string `json:"blocked_by"`
}

// MovementRecordedEvent is published when a ledger movement is created
type MovementRecordedEvent struct {
	MovementID    string `json:"movement_id"`
	ProductID     string `json:"product_id"`
	BatchID       string `json:"batch_id,omitempty"`
	MovementType  string `json:"movement_type"`
	Quantity      int    `json:"quantity"`
	PreviousStock int    `json:"previous_stock"`
	NewStock      int    `json:"new_stock"`
	RecordedBy    string `json:"recorded_by"`
}

// MovementApprovedEvent is published when a movement passes the approval gate
type MovementApprovedEvent struct {
	MovementID string `json:"movement_id"`
	ProductID  string `json:"product_id"`
	ApprovedBy string `json:"approved_by"`
}

// MovementDeletedEvent is published when an unapproved movement is reversed
type MovementDeletedEvent struct {
	MovementID    string `json:"movement_id"`
	ProductID     string `json:"product_id"`
	BatchID       string `json:"batch_id,omitempty"`
	RestoredStock int    `json:"restored_stock"`
}

// StockReconciledEvent is published when a product's cached stock is repaired
type StockReconciledEvent struct {
	ProductID     string `json:"product_id"`
	PreviousStock int    `json:"previous_stock"`
	Expected      int    `json:"expected"`
	Repaired      bool   `json:"repaired"`
}

// StockFIFOConsumedEvent is published when stock is drawn across batches in
// expiration order
type StockFIFOConsumedEvent struct {
	ProductID  string             `json:"product_id"`
	Quantity   int                `json:"quantity"`
	Batches    []FIFOBatchPortion `json:"batches"`
	ConsumedBy string             `json:"consumed_by"`
}

// FIFOBatchPortion is the share of a FIFO consumption taken from one batch
type FIFOBatchPortion struct {
	BatchID  string `json:"batch_id"`
	Quantity int    `json:"quantity"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
