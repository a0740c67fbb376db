package models

// ZoneStatistics агрегат по одной зоне.
type ZoneStatistics struct {
	ZoneID            int64  `json:"zone_id"`
	ZoneName          string `json:"zone_name"`
	ActiveBookings    int64  `json:"active_bookings"`
	CancelledBookings int64  `json:"cancelled_bookings"`
}

// GlobalStatistics агрегат по всем зонам.
type GlobalStatistics struct {
	TotalActiveBookings    int64 `json:"total_active_bookings"`
	TotalCancelledBookings int64 `json:"total_cancelled_bookings"`
	UsersInZonesNow        int64 `json:"users_in_zones_now"`
}
