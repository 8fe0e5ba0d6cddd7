package broker

import (
	"context"
	"encoding/json"
	"testing"

	"storefront-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessageRoutesOrderDelivery(t *testing.T) {
	eh := NewEventHandler()

	var got *models.OrderDeliveryEvent
	eh.OnOrderDelivery(func(_ context.Context, event *models.OrderDeliveryEvent) error {
		got = event
		return nil
	})

	event := models.OrderDeliveryEvent{
		BaseEvent: models.BaseEvent{EventID: "ev-1", EventType: models.EventTypeOrderDelivery},
		OrderID:   "ord-1",
		UserID:    7,
		Content:   "key-a",
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: payload}))
	require.NotNil(t, got)
	assert.Equal(t, "ord-1", got.OrderID)
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, "key-a", got.Content)
}

func TestHandleMessageRoutesBroadcast(t *testing.T) {
	eh := NewEventHandler()

	var got *models.BroadcastEvent
	eh.OnBroadcast(func(_ context.Context, event *models.BroadcastEvent) error {
		got = event
		return nil
	})

	payload, err := json.Marshal(models.BroadcastEvent{
		BaseEvent: models.BaseEvent{EventID: "ev-2", EventType: models.EventTypeBroadcast},
		Title:     "maintenance tonight",
	})
	require.NoError(t, err)

	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: payload}))
	require.NotNil(t, got)
	assert.Equal(t, "maintenance tonight", got.Title)
}

func TestHandleMessageUnknownType(t *testing.T) {
	eh := NewEventHandler()
	eh.OnOrderDelivery(func(context.Context, *models.OrderDeliveryEvent) error {
		t.Fatal("should not be called")
		return nil
	})

	payload := []byte(`{"event_id":"ev-3","event_type":"SOMETHING_ELSE"}`)
	assert.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: payload}))
}

func TestHandleMessageBadPayload(t *testing.T) {
	eh := NewEventHandler()
	err := eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)
}
