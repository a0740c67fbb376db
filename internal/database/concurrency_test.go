package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bronizone/internal/clock"
	"bronizone/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentRangeBooking(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, clock.NewManual(testDay), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	zone, err := db.CreateZone(ctx, "Hall A", "", 1)
	require.NoError(t, err)

	start := at(10, 0)
	end := at(11, 0)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(userID int64) {
			defer wg.Done()
			_, err := db.CreateBookingByRange(ctx, userID, zone.ID, start, end)
			results <- err
		}(int64(i + 1))
	}

	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		// Проигравшие получают бизнес-отказ, не фатальную ошибку
		assert.True(t, IsStateConflict(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, successes)

	// В БД ровно одна активная бронь
	var count int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE status = ?`, models.StatusActive).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestConcurrentExtension(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "extension.db")
	db, err := NewDB(dbPath, clock.NewManual(testDay), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	zone, err := db.CreateZone(ctx, "Hall A", "", 1)
	require.NoError(t, err)
	booking, err := db.CreateBookingByRange(ctx, 1, zone.ID, at(10, 0), at(11, 0))
	require.NoError(t, err)

	const attempts = 5
	var wg sync.WaitGroup
	wg.Add(attempts)
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, err := db.ExtendBooking(ctx, 1, booking.ID, time.Hour, 6*time.Hour)
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		}
	}
	// Гонка за один и тот же слот продления: побеждает ровно один
	assert.Equal(t, 1, successes)
}
