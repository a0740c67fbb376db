package service

import (
	"context"
	"testing"
	"time"

	"bronizone/internal/clock"
	"bronizone/internal/database"
	"bronizone/internal/events"
	"bronizone/internal/metrics"
	"bronizone/internal/models"
	"bronizone/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func at(hour, min int) time.Time {
	return testDay.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

type testEnv struct {
	db       *database.DB
	clk      *clock.Manual
	bus      *events.Bus
	bookings *BookingService
	zones    *ZoneService
	events   <-chan models.Event
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := clock.NewManual(testDay)
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", clk, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cache := repository.NewMemoryZoneCache(time.Minute, clk)
	bus := events.NewBus(&logger)
	t.Cleanup(bus.Close)
	ch := bus.Subscribe(64)

	m := metrics.New(prometheus.NewRegistry())

	return &testEnv{
		db:       db,
		clk:      clk,
		bus:      bus,
		bookings: NewBookingService(db, cache, bus, nil, m, clk, &logger, 6),
		zones:    NewZoneService(db, cache, bus, nil, m, clk, &logger),
		events:   ch,
	}
}

func (e *testEnv) nextEvent(t *testing.T) models.Event {
	t.Helper()
	select {
	case event := <-e.events:
		return event
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return models.Event{}
	}
}

func TestListZones_CachesAndReopens(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	zone, err := env.zones.CreateZone(ctx, "Hall A", "", 2)
	require.NoError(t, err)
	_, err = env.zones.CloseZone(ctx, zone.ID, "repairs", at(0, 0), at(12, 0))
	require.NoError(t, err)
	env.nextEvent(t) // zone_closed

	// Закрытая зона не видна
	zones, err := env.bookings.ListZones(ctx)
	require.NoError(t, err)
	assert.Empty(t, zones)

	// Второй листинг идёт из кэша и даёт тот же результат
	zones, err = env.bookings.ListZones(ctx)
	require.NoError(t, err)
	assert.Empty(t, zones)

	// Сразу после истечения срока зона переоткрывается, кэш не мешает
	env.clk.Set(at(12, 0))
	zones, err = env.bookings.ListZones(ctx)
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.True(t, zones[0].IsActive)

	event := env.nextEvent(t)
	assert.Equal(t, models.EventZoneReopened, event.Type)
	require.NotNil(t, event.Zone)
	assert.Equal(t, zone.ID, event.Zone.ID)
}

func TestCreateBookingByRange_Validation(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	zone, err := env.zones.CreateZone(ctx, "Hall A", "", 1)
	require.NoError(t, err)

	_, err = env.bookings.CreateBookingByRange(ctx, 1, zone.ID, at(12, 0), at(11, 0))
	assert.ErrorIs(t, err, database.ErrInvalidInterval)

	_, err = env.bookings.CreateBookingByRange(ctx, 1, zone.ID, at(10, 0), at(10, 0))
	assert.ErrorIs(t, err, database.ErrInvalidInterval)

	// Лимит длительности из конфигурации
	_, err = env.bookings.CreateBookingByRange(ctx, 1, zone.ID, at(10, 0), at(17, 0))
	assert.ErrorIs(t, err, database.ErrDurationTooLong)
}

func TestCreateBookingByRange_PublishesEvent(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	zone, err := env.zones.CreateZone(ctx, "Hall A", "", 1)
	require.NoError(t, err)

	booking, err := env.bookings.CreateBookingByRange(ctx, 1, zone.ID, at(10, 0), at(11, 0))
	require.NoError(t, err)

	event := env.nextEvent(t)
	assert.Equal(t, models.EventBookingCreated, event.Type)
	require.NotNil(t, event.Booking)
	assert.Equal(t, booking.ID, event.Booking.ID)
}

func TestExtendBooking_Validation(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	zone, err := env.zones.CreateZone(ctx, "Hall A", "", 1)
	require.NoError(t, err)
	booking, err := env.bookings.CreateBookingByRange(ctx, 1, zone.ID, at(10, 0), at(11, 0))
	require.NoError(t, err)
	env.nextEvent(t)

	_, err = env.bookings.ExtendBooking(ctx, 1, booking.ID, 0)
	assert.ErrorIs(t, err, database.ErrInvalidInterval)

	extension, err := env.bookings.ExtendBooking(ctx, 1, booking.ID, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, at(11, 30), extension.EndTime)

	event := env.nextEvent(t)
	assert.Equal(t, models.EventBookingExtended, event.Type)
}

func TestCancelBooking_IdempotentNoDuplicateEvent(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	zone, err := env.zones.CreateZone(ctx, "Hall A", "", 1)
	require.NoError(t, err)
	booking, err := env.bookings.CreateBookingByRange(ctx, 1, zone.ID, at(10, 0), at(11, 0))
	require.NoError(t, err)
	env.nextEvent(t)

	cancelled, err := env.bookings.CancelBooking(ctx, 1, booking.ID, false, "no show")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	event := env.nextEvent(t)
	assert.Equal(t, models.EventBookingCancelled, event.Type)

	// Повторная отмена не публикует второе событие
	_, err = env.bookings.CancelBooking(ctx, 1, booking.ID, false, "")
	require.NoError(t, err)
	select {
	case e := <-env.events:
		t.Fatalf("unexpected event: %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseZone_CancelsAndPublishes(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	zone, err := env.zones.CreateZone(ctx, "Hall A", "", 2)
	require.NoError(t, err)
	_, err = env.bookings.CreateBookingByRange(ctx, 1, zone.ID, at(10, 0), at(11, 0))
	require.NoError(t, err)
	env.nextEvent(t)

	cancelled, err := env.zones.CloseZone(ctx, zone.ID, "flooding", at(9, 0), at(14, 0))
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	require.NotNil(t, cancelled[0].CancellationReason)
	assert.Equal(t, "Zone closed: flooding", *cancelled[0].CancellationReason)

	first := env.nextEvent(t)
	assert.Equal(t, models.EventZoneClosed, first.Type)
	second := env.nextEvent(t)
	assert.Equal(t, models.EventBookingCancelled, second.Type)
}

func TestCloseZone_InvalidWindow(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	zone, err := env.zones.CreateZone(ctx, "Hall A", "", 1)
	require.NoError(t, err)

	_, err = env.zones.CloseZone(ctx, zone.ID, "reason", at(12, 0), at(12, 0))
	assert.ErrorIs(t, err, database.ErrInvalidInterval)
}

func TestGetZoneSchedule(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	zone, err := env.zones.CreateZone(ctx, "Hall A", "", 2)
	require.NoError(t, err)
	_, err = env.bookings.CreateBookingByRange(ctx, 1, zone.ID, at(10, 0), at(11, 0))
	require.NoError(t, err)

	schedule, err := env.bookings.GetZoneSchedule(ctx, zone.ID, testDay)
	require.NoError(t, err)
	require.Len(t, schedule, 2)
	assert.Len(t, schedule[0].Slots, 1)
	assert.Empty(t, schedule[1].Slots)

	_, err = env.bookings.GetZoneSchedule(ctx, 9999, testDay)
	assert.ErrorIs(t, err, database.ErrZoneNotFound)
}

func TestCreateZone_Validation(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	_, err := env.zones.CreateZone(ctx, "", "", 1)
	assert.ErrorIs(t, err, database.ErrInvalidArgument)

	_, err = env.zones.CreateZone(ctx, "Hall A", "", -1)
	assert.ErrorIs(t, err, database.ErrInvalidArgument)
}
