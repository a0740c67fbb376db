package models

import "time"

// Booking ties a user to one slot. Zone name/address and the interval are
// denormalized snapshots: they survive later renames or deletions of the
// zone/place/slot and are the source of truth for history.
type Booking struct {
	ID                 int64     `json:"id"`
	Reference          string    `json:"reference"`
	UserID             int64     `json:"user_id"`
	SlotID             int64     `json:"slot_id"`
	ZoneName           string    `json:"zone_name"`
	ZoneAddress        string    `json:"zone_address,omitempty"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	Status             string    `json:"status"` // active, cancelled, completed
	CancellationReason *string   `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Overlaps проверяет пересечение брони с полуоткрытым интервалом [start, end).
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartTime.Before(end) && b.EndTime.After(start)
}

// ActiveAt сообщает, занимает ли бронь место в момент t.
func (b *Booking) ActiveAt(t time.Time) bool {
	return !b.StartTime.After(t) && b.EndTime.After(t)
}

// BookingHistoryFilters narrows GetBookingHistory. Zero values mean "any".
type BookingHistoryFilters struct {
	Status   string
	ZoneID   int64
	DateFrom time.Time
	DateTo   time.Time
}
