package broker

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProducerRoutesToHandler(t *testing.T) {
	handler := NewEventHandler()
	var got *models.OrderStatusChangedEvent
	handler.OnOrderStatusChanged(func(_ context.Context, e *models.OrderStatusChangedEvent) error {
		got = e
		return nil
	})

	publisher := NewEventPublisher(NewLocalProducer(handler.HandleMessage))
	event := &models.OrderStatusChangedEvent{
		BaseEvent:   NewBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:     "0f9e",
		OrderNumber: "AB12CD34",
		OldStatus:   models.OrderStatusProcessing,
		NewStatus:   models.OrderStatusShipped,
	}
	require.NoError(t, publisher.PublishOrderStatusChanged(context.Background(), event))

	require.NotNil(t, got)
	assert.Equal(t, event.EventID, got.EventID)
	assert.Equal(t, models.OrderStatusShipped, got.NewStatus)
	assert.Equal(t, "AB12CD34", got.OrderNumber)
}

func TestLocalProducerSwallowsHandlerErrors(t *testing.T) {
	producer := NewLocalProducer(func(context.Context, kafka.Message) error {
		return errors.New("boom")
	})
	err := producer.PublishEvent(context.Background(), "k", &models.UserRegisteredEvent{
		BaseEvent: NewBaseEvent(models.EventTypeUserRegistered),
	})
	assert.NoError(t, err)
}

func TestHandleMessageIgnoresUnknownTypes(t *testing.T) {
	handler := NewEventHandler()
	err := handler.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"event_type":"SOMETHING_ELSE"}`)})
	assert.NoError(t, err)

	err = handler.HandleMessage(context.Background(), kafka.Message{Value: []byte(`not json`)})
	assert.Error(t, err)
}

type failingPublisher struct{}

func (failingPublisher) PublishEvent(context.Context, string, interface{}) error {
	return errors.New("broker down")
}

func (failingPublisher) Close() error { return nil }

func TestEventPublisherReturnsProducerError(t *testing.T) {
	publisher := NewEventPublisher(failingPublisher{})
	err := publisher.PublishOrderPlaced(context.Background(), &models.OrderPlacedEvent{
		BaseEvent: NewBaseEvent(models.EventTypeOrderPlaced),
		OrderID:   "x",
	})
	assert.EqualError(t, err, "broker down")
}
