package database

import "errors"

// Бизнес-исходы операций. Хендлеры отличают их от фатальных ошибок хранилища
// через errors.Is; всё, что не перечислено здесь, пробрасывается как есть.
var (
	ErrZoneNotFound    = errors.New("zone not found")
	ErrSlotNotFound    = errors.New("slot not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrPlaceNotFound   = errors.New("place not found")

	ErrNotOwner = errors.New("booking belongs to another user")

	ErrSlotUnavailable      = errors.New("slot is not available")
	ErrDuplicateBooking     = errors.New("user already holds an active booking for this slot")
	ErrUserTimeConflict     = errors.New("user has an overlapping active booking")
	ErrZoneCapacityExceeded = errors.New("zone capacity exceeded for the requested interval")
	ErrZoneInactive         = errors.New("zone is closed or does not exist")
	ErrBookingNotActive     = errors.New("booking is not active")
	ErrNoAvailablePlace     = errors.New("no available place in the zone")

	ErrInvalidInterval = errors.New("invalid time interval")
	ErrDurationTooLong = errors.New("booking duration exceeds the configured limit")
	ErrInvalidArgument = errors.New("invalid argument")
)

// IsNotFound reports whether err belongs to the NotFound class (HTTP 404).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrZoneNotFound) ||
		errors.Is(err, ErrSlotNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrPlaceNotFound)
}

// IsUnauthorized reports whether err belongs to the Unauthorized class (403).
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrNotOwner)
}

// IsStateConflict reports whether err belongs to the StateConflict class (409).
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrSlotUnavailable) ||
		errors.Is(err, ErrDuplicateBooking) ||
		errors.Is(err, ErrUserTimeConflict) ||
		errors.Is(err, ErrZoneCapacityExceeded) ||
		errors.Is(err, ErrZoneInactive) ||
		errors.Is(err, ErrBookingNotActive) ||
		errors.Is(err, ErrNoAvailablePlace)
}

// IsInvalidInput reports whether err belongs to the InvalidInput class (400).
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrDurationTooLong) ||
		errors.Is(err, ErrInvalidArgument)
}
