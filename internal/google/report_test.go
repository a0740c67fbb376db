package google

import (
	"testing"
	"time"

	"bronizone/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestParseRowFromRange(t *testing.T) {
	assert.Equal(t, 5, parseRowFromRange("Bookings!A5:I5"))
	assert.Equal(t, 123, parseRowFromRange("Bookings!A123:I123"))
	assert.Equal(t, 2, parseRowFromRange("Bookings!H2"))
	assert.Equal(t, 0, parseRowFromRange("Bookings!A:I"))
	assert.Equal(t, 0, parseRowFromRange(""))
}

func TestBookingRow(t *testing.T) {
	reason := "no show"
	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	b := &models.Booking{
		ID:                 7,
		Reference:          "ref-7",
		UserID:             42,
		ZoneName:           "Hall A",
		StartTime:          start,
		EndTime:            start.Add(time.Hour),
		Status:             models.StatusCancelled,
		CancellationReason: &reason,
	}

	row := bookingRow(b)
	assert.Len(t, row, 9)
	assert.Equal(t, int64(7), row[0])
	assert.Equal(t, "2026-06-01 10:00:00", row[5])
	assert.Equal(t, "no show", row[8])

	b.CancellationReason = nil
	assert.Equal(t, "", bookingRow(b)[8])
}
