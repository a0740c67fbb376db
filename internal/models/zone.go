package models

import "time"

// Zone is a pool of interchangeable places. A closed zone carries the
// closure reason and the instant it reopens; an open zone has both unset.
type Zone struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Address       string     `json:"address,omitempty"`
	IsActive      bool       `json:"is_active"`
	ClosureReason *string    `json:"closure_reason,omitempty"`
	ClosedUntil   *time.Time `json:"closed_until,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ClosureExpired сообщает, истёк ли срок временного закрытия зоны.
func (z *Zone) ClosureExpired(now time.Time) bool {
	return !z.IsActive && z.ClosedUntil != nil && !z.ClosedUntil.After(now)
}

// ZoneUpdate перечисляет изменяемые поля зоны; nil означает "не трогать".
type ZoneUpdate struct {
	Name     *string `json:"name"`
	Address  *string `json:"address"`
	IsActive *bool   `json:"is_active"`
}

type Place struct {
	ID        int64     `json:"id"`
	ZoneID    int64     `json:"zone_id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
