package consumers

import (
	"context"

	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
	"github.com/pharmaflow/pharmaflow-backend/pkg/messaging"
)

// UserEventHandler applies user events to the local cache (testable without RabbitMQ)
type UserEventHandler struct {
	userCache *repository.UserCacheRepository
	logger    *logger.Logger
}

// NewUserEventHandler creates a new handler over the user cache
func NewUserEventHandler(userCache *repository.UserCacheRepository, log *logger.Logger) *UserEventHandler {
	return &UserEventHandler{
		userCache: userCache,
		logger:    log.WithComponent("user-consumer"),
	}
}

// HandleEvent processes a user event and updates the cache
func (h *UserEventHandler) HandleEvent(ctx context.Context, event *messaging.Event) error {
	switch event.Type {
	case messaging.EventUserCreated:
		return h.handleUserCreated(ctx, event)
	case messaging.EventUserUpdated:
		return h.handleUserUpdated(ctx, event)
	case messaging.EventUserDeleted:
		return h.handleUserDeleted(ctx, event)
	default:
		h.logger.Warn().Str("event_type", event.Type).Msg("unknown event type received")
		return nil
	}
}

// UserConsumer keeps the local user cache in sync with identity service
// events so ledger entries can show actor names without cross-service calls.
type UserConsumer struct {
	consumer *messaging.Consumer
	handler  *UserEventHandler
	logger   *logger.Logger
}

// NewUserConsumer creates a consumer bound to the user events exchange
func NewUserConsumer(rmq *messaging.RabbitMQ, userCache *repository.UserCacheRepository, log *logger.Logger) (*UserConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "inventory-service.user-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeUserEvents, "user.#"); err != nil {
		return nil, err
	}

	handler := NewUserEventHandler(userCache, log)

	uc := &UserConsumer{
		consumer: consumer,
		handler:  handler,
		logger:   log.WithComponent("user-consumer"),
	}

	consumer.RegisterHandler(messaging.EventUserCreated, handler.handleUserCreated)
	consumer.RegisterHandler(messaging.EventUserUpdated, handler.handleUserUpdated)
	consumer.RegisterHandler(messaging.EventUserDeleted, handler.handleUserDeleted)

	return uc, nil
}

// Start begins consuming user events
func (c *UserConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (h *UserEventHandler) handleUserCreated(ctx context.Context, event *messaging.Event) error {
	var payload messaging.UserCreatedEvent
	if err := event.UnmarshalData(&payload); err != nil {
		return err
	}

	err := h.userCache.Upsert(ctx, &repository.CachedUser{
		ID:        payload.UserID,
		Email:     payload.Email,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		RoleName:  payload.RoleName,
	})
	if err != nil {
		return err
	}

	h.logger.Info().Str("user_id", payload.UserID).Msg("User cached")
	return nil
}

func (h *UserEventHandler) handleUserUpdated(ctx context.Context, event *messaging.Event) error {
	var payload messaging.UserUpdatedEvent
	if err := event.UnmarshalData(&payload); err != nil {
		return err
	}

	cached, err := h.userCache.GetByID(ctx, payload.UserID)
	if err != nil {
		// Not cached yet; a later full event or lookup will populate it.
		h.logger.Warn().Str("user_id", payload.UserID).Msg("Update for unknown user, skipping")
		return nil
	}

	if v, ok := payload.Fields["email"].(string); ok {
		cached.Email = v
	}
	if v, ok := payload.Fields["first_name"].(string); ok {
		cached.FirstName = v
	}
	if v, ok := payload.Fields["last_name"].(string); ok {
		cached.LastName = v
	}
	if v, ok := payload.Fields["role_name"].(string); ok {
		cached.RoleName = v
	}
	return h.userCache.Upsert(ctx, cached)
}

func (h *UserEventHandler) handleUserDeleted(ctx context.Context, event *messaging.Event) error {
	var payload messaging.UserDeletedEvent
	if err := event.UnmarshalData(&payload); err != nil {
		return err
	}

	if err := h.userCache.Delete(ctx, payload.UserID); err != nil {
		return err
	}

	h.logger.Info().Str("user_id", payload.UserID).Msg("User removed from cache")
	return nil
}
