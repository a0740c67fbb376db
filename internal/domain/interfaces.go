package domain

import (
	"context"
	"time"

	"bronizone/internal/models"
)

// ZoneCache кэширует листинг зон. Get возвращает ok=false при промахе;
// ошибки бэкенда не фатальны и трактуются вызывающим как промах.
type ZoneCache interface {
	Get(ctx context.Context, includeInactive bool) ([]models.Zone, bool, error)
	Set(ctx context.Context, includeInactive bool, zones []models.Zone) error
	Invalidate(ctx context.Context) error
}

// EventPublisher рассылает доменные события подписчикам внутри процесса.
type EventPublisher interface {
	Publish(event models.Event)
}

// ReportSyncWorker принимает задачи синхронизации внешнего отчёта.
type ReportSyncWorker interface {
	Enqueue(ctx context.Context, taskType string, booking *models.Booking) error
}

// BookingService описывает пользовательские операции бронирования.
type BookingService interface {
	ListZones(ctx context.Context) ([]models.Zone, error)
	GetZoneSchedule(ctx context.Context, zoneID int64, date time.Time) ([]models.PlaceSchedule, error)
	CreateBookingBySlot(ctx context.Context, userID, slotID int64) (*models.Booking, error)
	CreateBookingByRange(ctx context.Context, userID, zoneID int64, start, end time.Time) (*models.Booking, error)
	ExtendBooking(ctx context.Context, userID, bookingID int64, extendBy time.Duration) (*models.Booking, error)
	CancelBooking(ctx context.Context, userID, bookingID int64, isAdmin bool, reason string) (*models.Booking, error)
	GetBookingHistory(ctx context.Context, userID int64, filters models.BookingHistoryFilters) ([]models.Booking, error)
}

// ZoneService описывает административные операции над зонами.
type ZoneService interface {
	CreateZone(ctx context.Context, name, address string, placesCount int) (*models.Zone, error)
	UpdateZone(ctx context.Context, zoneID int64, update models.ZoneUpdate) (*models.Zone, error)
	DeleteZone(ctx context.Context, zoneID int64) error
	CloseZone(ctx context.Context, zoneID int64, reason string, from, to time.Time) ([]models.Booking, error)
	GetZonesStatistics(ctx context.Context) ([]models.ZoneStatistics, error)
	GetGlobalStatistics(ctx context.Context) (*models.GlobalStatistics, error)
}
