package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront-service/internal/broker"
	"storefront-service/internal/models"
	"storefront-service/internal/notifier"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// Publisher is the broker side of the dispatcher
type Publisher interface {
	PublishOutboxEvent(ctx context.Context, event *models.OutboxEvent) error
}

// OutboxDispatcher sweeps undispatched outbox rows and publishes them to the
// broker. Because the rows are written inside the purchase transaction, a
// crashed dispatch is simply retried on the next sweep; nothing is lost.
type OutboxDispatcher struct {
	store     store.Storage
	publisher Publisher
	interval  time.Duration
	batchSize int
	wake      chan struct{}
	logger    *zap.Logger
}

// NewOutboxDispatcher creates a new dispatcher sweeping every interval
func NewOutboxDispatcher(st store.Storage, publisher Publisher, interval time.Duration) *OutboxDispatcher {
	return &OutboxDispatcher{
		store:     st,
		publisher: publisher,
		interval:  interval,
		batchSize: 100,
		wake:      make(chan struct{}, 1),
		logger:    util.GetLogger(),
	}
}

// Nudge asks for an immediate sweep without blocking the caller
func (d *OutboxDispatcher) Nudge() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Start runs the sweep loop until ctx is cancelled
func (d *OutboxDispatcher) Start(ctx context.Context) error {
	d.logger.Info("Starting outbox dispatcher", zap.Duration("interval", d.interval))

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox dispatcher stopping")
			return ctx.Err()
		case <-ticker.C:
		case <-d.wake:
		}

		if err := d.sweep(ctx); err != nil {
			d.logger.Error("Outbox sweep failed", zap.Error(err))
		}
	}
}

func (d *OutboxDispatcher) sweep(ctx context.Context) error {
	events, err := d.store.GetUndispatchedEvents(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch outbox events: %w", err)
	}

	for _, event := range events {
		if err := d.publisher.PublishOutboxEvent(ctx, &event); err != nil {
			util.OutboxDispatchFailedTotal.Inc()
			d.logger.Error("Failed to publish outbox event",
				zap.String("event_id", event.EventID),
				zap.Error(err))
			// Leave the row for the next sweep.
			continue
		}

		if err := d.store.MarkEventDispatched(ctx, event.ID); err != nil {
			d.logger.Error("Failed to mark event dispatched",
				zap.String("event_id", event.EventID),
				zap.Error(err))
			continue
		}
		util.OutboxDispatchedTotal.Inc()
	}

	return nil
}

// DeliveryWorker consumes delivery events and hands the purchased content to
// the notifier. Failures are logged and never surface anywhere near the
// purchase path.
type DeliveryWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	notifier     notifier.Notifier
	logger       *zap.Logger
}

// NewDeliveryWorker creates a new delivery worker
func NewDeliveryWorker(consumer *broker.Consumer, n notifier.Notifier) *DeliveryWorker {
	w := &DeliveryWorker{
		consumer: consumer,
		notifier: n,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderDelivery(w.handleOrderDelivery)
	eventHandler.OnBroadcast(w.handleBroadcast)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *DeliveryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting delivery worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *DeliveryWorker) Stop() error {
	w.logger.Info("Stopping delivery worker")
	return w.consumer.Close()
}

func (w *DeliveryWorker) handleOrderDelivery(ctx context.Context, event *models.OrderDeliveryEvent) error {
	message := formatDeliveryMessage(event)

	if err := w.notifier.NotifyBestEffort(ctx, event.UserTgID, message); err != nil {
		util.DeliveriesFailedTotal.Inc()
		w.logger.Error("Delivery notification failed",
			zap.String("order_id", event.OrderID),
			zap.Int64("user_id", event.UserID),
			zap.Error(err))
		return nil
	}

	util.DeliveriesTotal.Inc()
	w.logger.Info("Order delivered",
		zap.String("order_id", event.OrderID),
		zap.Int64("user_id", event.UserID))
	return nil
}

func (w *DeliveryWorker) handleBroadcast(ctx context.Context, event *models.BroadcastEvent) error {
	// The gateway fans the broadcast out; an empty destination addresses all users.
	if err := w.notifier.NotifyBestEffort(ctx, "", event.Title); err != nil {
		w.logger.Error("Broadcast failed", zap.String("event_id", event.EventID), zap.Error(err))
	}
	return nil
}

func formatDeliveryMessage(event *models.OrderDeliveryEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your order %s is ready.\n", event.OrderID)
	fmt.Fprintf(&b, "%s x%d\n\n", event.ProductName, event.Quantity)
	b.WriteString(event.Content)
	return b.String()
}
