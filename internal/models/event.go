package models

import "time"

const (
	EventBookingCreated   = "booking_created"
	EventBookingExtended  = "booking_extended"
	EventBookingCancelled = "booking_cancelled"
	EventZoneClosed       = "zone_closed"
	EventZoneReopened     = "zone_reopened"
)

// Event доменное событие. Payload — снимок на момент публикации, подписчики
// не должны его изменять.
type Event struct {
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Booking *Booking  `json:"booking,omitempty"`
	Zone    *Zone     `json:"zone,omitempty"`
}

// PlaceSchedule связывает место со слотами на запрошенный день.
type PlaceSchedule struct {
	Place Place  `json:"place"`
	Slots []Slot `json:"slots"`
}
