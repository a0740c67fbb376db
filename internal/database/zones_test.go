package database

import (
	"context"
	"testing"

	"bronizone/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateZone_ProvisionsPlaces(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	zone, err := db.CreateZone(ctx, "Hall A", "Main street 1", 3)
	require.NoError(t, err)
	assert.True(t, zone.IsActive)

	places, err := db.GetActivePlaces(ctx, zone.ID)
	require.NoError(t, err)
	require.Len(t, places, 3)
	assert.Equal(t, "Place 1", places[0].Name)
	assert.Equal(t, "Place 3", places[2].Name)
}

func TestUpdateZone(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	zone, err := db.CreateZone(ctx, "Hall A", "Old address", 1)
	require.NoError(t, err)

	newName := "Hall A+"
	updated, err := db.UpdateZone(ctx, zone.ID, models.ZoneUpdate{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Hall A+", updated.Name)
	assert.Equal(t, "Old address", updated.Address)

	_, err = db.UpdateZone(ctx, 9999, models.ZoneUpdate{Name: &newName})
	assert.ErrorIs(t, err, ErrZoneNotFound)
}

func TestDeleteZone(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	zone, err := db.CreateZone(ctx, "Hall A", "", 1)
	require.NoError(t, err)

	require.NoError(t, db.DeleteZone(ctx, zone.ID))
	_, err = db.GetZone(ctx, zone.ID)
	assert.ErrorIs(t, err, ErrZoneNotFound)

	assert.ErrorIs(t, db.DeleteZone(ctx, zone.ID), ErrZoneNotFound)
}

func TestCloseZone_CascadesCancellation(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	zone, err := db.CreateZone(ctx, "Hall A", "", 3)
	require.NoError(t, err)

	inside, err := db.CreateBookingByRange(ctx, 1, zone.ID, at(10, 0), at(11, 0))
	require.NoError(t, err)
	boundary, err := db.CreateBookingByRange(ctx, 2, zone.ID, at(14, 0), at(15, 0))
	require.NoError(t, err)
	outside, err := db.CreateBookingByRange(ctx, 3, zone.ID, at(16, 0), at(17, 0))
	require.NoError(t, err)

	// Границы каскада включительные: бронь со стартом ровно в to отменяется
	affected, err := db.CloseZone(ctx, zone.ID, "flooding", at(9, 0), at(14, 0))
	require.NoError(t, err)
	assert.Len(t, affected, 2)

	zoneAfter, err := db.GetZone(ctx, zone.ID)
	require.NoError(t, err)
	assert.False(t, zoneAfter.IsActive)
	require.NotNil(t, zoneAfter.ClosureReason)
	assert.Equal(t, "flooding", *zoneAfter.ClosureReason)
	require.NotNil(t, zoneAfter.ClosedUntil)
	assert.Equal(t, at(14, 0), *zoneAfter.ClosedUntil)

	for _, id := range []int64{inside.ID, boundary.ID} {
		b, err := db.GetBooking(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, b.Status)
		require.NotNil(t, b.CancellationReason)
		assert.Equal(t, "Zone closed: flooding", *b.CancellationReason)

		slot, err := db.GetSlot(ctx, b.SlotID)
		require.NoError(t, err)
		assert.True(t, slot.IsAvailable)
	}

	untouched, err := db.GetBooking(ctx, outside.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, untouched.Status)
}

func TestCloseZone_NotFound(t *testing.T) {
	db, _ := setupTestDB(t)

	_, err := db.CloseZone(context.Background(), 9999, "reason", at(9, 0), at(10, 0))
	assert.ErrorIs(t, err, ErrZoneNotFound)
}

func TestListZones_LazyReopen(t *testing.T) {
	db, clk := setupTestDB(t)
	ctx := context.Background()

	zone, err := db.CreateZone(ctx, "Hall A", "", 1)
	require.NoError(t, err)

	_, err = db.CloseZone(ctx, zone.ID, "repairs", at(0, 0), at(12, 0))
	require.NoError(t, err)

	// До истечения срока зона не видна в активном листинге
	zones, reopened, err := db.ListZones(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, zones)
	assert.Empty(t, reopened)

	// Сразу после closed_until первый же листинг переоткрывает зону
	clk.Set(at(12, 0))
	zones, reopened, err = db.ListZones(ctx, false)
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.True(t, zones[0].IsActive)
	assert.Nil(t, zones[0].ClosureReason)
	assert.Nil(t, zones[0].ClosedUntil)
	require.Len(t, reopened, 1)
	assert.Equal(t, zone.ID, reopened[0].ID)

	// Повторный листинг уже ничего не переоткрывает
	_, reopened, err = db.ListZones(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, reopened)
}

func TestListZones_IncludeInactive(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	_, err := db.CreateZone(ctx, "Hall A", "", 1)
	require.NoError(t, err)
	closed, err := db.CreateZone(ctx, "Hall B", "", 1)
	require.NoError(t, err)
	_, err = db.CloseZone(ctx, closed.ID, "repairs", at(0, 0), at(23, 0))
	require.NoError(t, err)

	active, _, err := db.ListZones(ctx, false)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	all, _, err := db.ListZones(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPlaceActivation_AffectsCapacity(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	zone, err := db.CreateZone(ctx, "Hall A", "", 2)
	require.NoError(t, err)
	places, err := db.GetActivePlaces(ctx, zone.ID)
	require.NoError(t, err)

	require.NoError(t, db.SetPlaceActive(ctx, places[1].ID, false))

	_, err = db.CreateBookingByRange(ctx, 1, zone.ID, at(10, 0), at(11, 0))
	require.NoError(t, err)
	_, err = db.CreateBookingByRange(ctx, 2, zone.ID, at(10, 0), at(11, 0))
	assert.ErrorIs(t, err, ErrZoneCapacityExceeded)

	assert.ErrorIs(t, db.SetPlaceActive(ctx, 9999, true), ErrPlaceNotFound)
}

func TestGetZonesStatistics(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	zoneA, err := db.CreateZone(ctx, "Hall A", "", 2)
	require.NoError(t, err)
	_, err = db.CreateZone(ctx, "Hall B", "", 1)
	require.NoError(t, err)

	b1, err := db.CreateBookingByRange(ctx, 1, zoneA.ID, at(10, 0), at(11, 0))
	require.NoError(t, err)
	_, err = db.CreateBookingByRange(ctx, 2, zoneA.ID, at(10, 0), at(11, 0))
	require.NoError(t, err)
	_, err = db.CancelBooking(ctx, 1, b1.ID, false, "")
	require.NoError(t, err)

	stats, err := db.GetZonesStatistics(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "Hall A", stats[0].ZoneName)
	assert.Equal(t, int64(1), stats[0].ActiveBookings)
	assert.Equal(t, int64(1), stats[0].CancelledBookings)
	assert.Equal(t, int64(0), stats[1].ActiveBookings)
}

func TestGetGlobalStatistics(t *testing.T) {
	db, clk := setupTestDB(t)
	ctx := context.Background()

	zone, err := db.CreateZone(ctx, "Hall A", "", 2)
	require.NoError(t, err)

	_, err = db.CreateBookingByRange(ctx, 1, zone.ID, at(10, 0), at(12, 0))
	require.NoError(t, err)
	_, err = db.CreateBookingByRange(ctx, 2, zone.ID, at(14, 0), at(15, 0))
	require.NoError(t, err)

	// В 10:30 в зоне находится только первый пользователь
	clk.Set(at(10, 30))
	stats, err := db.GetGlobalStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalActiveBookings)
	assert.Equal(t, int64(0), stats.TotalCancelledBookings)
	assert.Equal(t, int64(1), stats.UsersInZonesNow)
}
