package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	published []string
	failOn    map[string]bool
}

func (p *fakePublisher) PublishOutboxEvent(_ context.Context, event *models.OutboxEvent) error {
	if p.failOn[event.EventID] {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, event.EventID)
	return nil
}

func stageEvent(t *testing.T, st *storetest.Store, eventID string) {
	t.Helper()
	err := st.RunInTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertOutboxEvent(context.Background(), &models.OutboxEvent{
			EventID:   eventID,
			EventType: models.EventTypeOrderDelivery,
			Payload:   []byte(`{}`),
		})
	})
	require.NoError(t, err)
}

func TestSweepPublishesAndMarks(t *testing.T) {
	st := storetest.New()
	stageEvent(t, st, "ev-1")
	stageEvent(t, st, "ev-2")

	publisher := &fakePublisher{}
	d := NewOutboxDispatcher(st, publisher, time.Minute)

	require.NoError(t, d.sweep(context.Background()))
	assert.Equal(t, []string{"ev-1", "ev-2"}, publisher.published)

	for _, e := range st.Outbox() {
		assert.NotNil(t, e.DispatchedAt, "event %s not marked", e.EventID)
	}

	// A second sweep finds nothing to do.
	require.NoError(t, d.sweep(context.Background()))
	assert.Len(t, publisher.published, 2)
}

func TestSweepRetriesFailedPublish(t *testing.T) {
	st := storetest.New()
	stageEvent(t, st, "ev-1")
	stageEvent(t, st, "ev-2")

	publisher := &fakePublisher{failOn: map[string]bool{"ev-1": true}}
	d := NewOutboxDispatcher(st, publisher, time.Minute)

	require.NoError(t, d.sweep(context.Background()))
	assert.Equal(t, []string{"ev-2"}, publisher.published)

	// The failed row stays undispatched and goes out once the broker is back.
	publisher.failOn = nil
	require.NoError(t, d.sweep(context.Background()))
	assert.Equal(t, []string{"ev-2", "ev-1"}, publisher.published)

	for _, e := range st.Outbox() {
		assert.NotNil(t, e.DispatchedAt)
	}
}

func TestNudgeNeverBlocks(t *testing.T) {
	d := NewOutboxDispatcher(storetest.New(), &fakePublisher{}, time.Minute)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.Nudge()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Nudge blocked")
	}
}

func TestFormatDeliveryMessage(t *testing.T) {
	event := &models.OrderDeliveryEvent{
		OrderID:     "ord-1",
		ProductName: "VPN Key",
		Quantity:    2,
		Content:     "key-a\nkey-b",
	}

	got := formatDeliveryMessage(event)
	assert.Equal(t, "Your order ord-1 is ready.\nVPN Key x2\n\nkey-a\nkey-b", got)
}
