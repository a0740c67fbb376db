package models

import "time"

// Slot is a half-open interval [StartTime, EndTime) on a single place.
// Immutable once created except for the availability flag, which is a cache
// of "not currently backing an active booking".
type Slot struct {
	ID          int64     `json:"id"`
	PlaceID     int64     `json:"place_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
}

// Overlaps проверяет пересечение с другим полуоткрытым интервалом.
func (s *Slot) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && s.EndTime.After(start)
}
