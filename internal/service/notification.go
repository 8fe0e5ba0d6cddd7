package service

import (
	"context"
	"time"

	"storefront-service/internal/broker"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationService publishes admin announcements through the delivery
// pipeline. Broadcasts carry no money or stock, so they go straight to the
// broker without an outbox row.
type NotificationService struct {
	publisher *broker.EventPublisher
	logger    *zap.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(publisher *broker.EventPublisher) *NotificationService {
	return &NotificationService{
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Broadcast publishes an announcement to all users
func (s *NotificationService) Broadcast(ctx context.Context, title string) error {
	event := &models.BroadcastEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeBroadcast,
			Timestamp: time.Now(),
		},
		Title: title,
	}

	if err := s.publisher.PublishBroadcast(ctx, event); err != nil {
		return err
	}

	s.logger.Info("Broadcast published", zap.String("event_id", event.EventID))
	return nil
}
