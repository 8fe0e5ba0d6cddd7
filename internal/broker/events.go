package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOutboxEvent publishes a staged outbox row. The stored payload is the
// full event, so it goes out verbatim with the event id as the key.
func (ep *EventPublisher) PublishOutboxEvent(ctx context.Context, event *models.OutboxEvent) error {
	return ep.producer.PublishRaw(ctx, event.EventID, event.Payload)
}

// PublishBroadcast publishes an admin announcement
func (ep *EventPublisher) PublishBroadcast(ctx context.Context, event *models.BroadcastEvent) error {
	return ep.producer.PublishEvent(ctx, event.EventID, event)
}

// EventHandler routes consumed events to registered handlers
type EventHandler struct {
	logger          *zap.Logger
	onOrderDelivery func(context.Context, *models.OrderDeliveryEvent) error
	onBroadcast     func(context.Context, *models.BroadcastEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderDelivery registers a handler for order delivery events
func (eh *EventHandler) OnOrderDelivery(handler func(context.Context, *models.OrderDeliveryEvent) error) {
	eh.onOrderDelivery = handler
}

// OnBroadcast registers a handler for broadcast events
func (eh *EventHandler) OnBroadcast(handler func(context.Context, *models.BroadcastEvent) error) {
	eh.onBroadcast = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeOrderDelivery:
		if eh.onOrderDelivery != nil {
			var event models.OrderDeliveryEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderDelivery event: %w", err)
			}
			return eh.onOrderDelivery(ctx, &event)
		}

	case models.EventTypeBroadcast:
		if eh.onBroadcast != nil {
			var event models.BroadcastEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal Broadcast event: %w", err)
			}
			return eh.onBroadcast(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
