package events

import (
	"testing"
	"time"

	"bronizone/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	logger := zerolog.Nop()
	bus := NewBus(&logger)
	defer bus.Close()

	ch1 := bus.Subscribe(4)
	ch2 := bus.Subscribe(4)

	event := models.Event{
		Type:    models.EventBookingCreated,
		At:      time.Now().UTC(),
		Booking: &models.Booking{ID: 1, Status: models.StatusActive},
	}
	bus.Publish(event)

	for _, ch := range []<-chan models.Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, models.EventBookingCreated, got.Type)
			require.NotNil(t, got.Booking)
			assert.Equal(t, int64(1), got.Booking.ID)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBusDropsOnFullQueue(t *testing.T) {
	logger := zerolog.Nop()
	bus := NewBus(&logger)
	defer bus.Close()

	ch := bus.Subscribe(1)
	bus.Publish(models.Event{Type: models.EventZoneClosed})
	bus.Publish(models.Event{Type: models.EventZoneReopened}) // переполнение, молча теряется

	got := <-ch
	assert.Equal(t, models.EventZoneClosed, got.Type)
	select {
	case e, ok := <-ch:
		if ok {
			t.Fatalf("unexpected second event: %v", e.Type)
		}
	default:
	}
}

func TestBusCloseClosesChannels(t *testing.T) {
	logger := zerolog.Nop()
	bus := NewBus(&logger)

	ch := bus.Subscribe(1)
	bus.Close()

	_, ok := <-ch
	assert.False(t, ok)

	// Публикация после Close не паникует
	bus.Publish(models.Event{Type: models.EventBookingCancelled})

	// Подписка после Close возвращает закрытый канал
	late := bus.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
}
