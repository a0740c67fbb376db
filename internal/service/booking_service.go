package service

import (
	"context"
	"time"

	"bronizone/internal/clock"
	"bronizone/internal/database"
	"bronizone/internal/domain"
	"bronizone/internal/metrics"
	"bronizone/internal/models"

	"github.com/rs/zerolog"
)

// BookingService оркестрирует операции бронирования: валидация входа,
// вызов движка, события, метрики и постановка задач синхронизации отчёта.
type BookingService struct {
	db         *database.DB
	cache      domain.ZoneCache
	bus        domain.EventPublisher
	syncWorker domain.ReportSyncWorker
	metrics    *metrics.Metrics
	clock      clock.Clock
	logger     *zerolog.Logger
	maxBooking time.Duration
}

func NewBookingService(
	db *database.DB,
	cache domain.ZoneCache,
	bus domain.EventPublisher,
	syncWorker domain.ReportSyncWorker,
	m *metrics.Metrics,
	clk clock.Clock,
	logger *zerolog.Logger,
	maxBookingHours int,
) *BookingService {
	return &BookingService{
		db:         db,
		cache:      cache,
		bus:        bus,
		syncWorker: syncWorker,
		metrics:    m,
		clock:      clk,
		logger:     logger,
		maxBooking: time.Duration(maxBookingHours) * time.Hour,
	}
}

// ListZones отдает активные зоны, по возможности из кэша. Кэшируется полный
// список: закрытая зона с истёкшим сроком делает запись протухшей, и ленивое
// переоткрытие срабатывает на ближайшем же листинге, не дожидаясь TTL.
func (s *BookingService) ListZones(ctx context.Context) ([]models.Zone, error) {
	now := s.clock.Now().UTC()

	cached, ok, err := s.cache.Get(ctx, true)
	if err != nil {
		s.logger.Warn().Err(err).Msg("zone cache read failed")
	}
	if ok {
		stale := false
		for i := range cached {
			if cached[i].ClosureExpired(now) {
				stale = true
				break
			}
		}
		if !stale {
			s.metrics.ZoneCacheHits.Inc()
			return filterActive(cached), nil
		}
	}
	s.metrics.ZoneCacheMisses.Inc()

	zones, reopened, err := s.db.ListZones(ctx, true)
	if err != nil {
		return nil, err
	}
	s.publishReopened(reopened)

	if err := s.cache.Set(ctx, true, zones); err != nil {
		s.logger.Warn().Err(err).Msg("zone cache write failed")
	}
	return filterActive(zones), nil
}

func filterActive(zones []models.Zone) []models.Zone {
	active := make([]models.Zone, 0, len(zones))
	for _, z := range zones {
		if z.IsActive {
			active = append(active, z)
		}
	}
	return active
}

func (s *BookingService) publishReopened(reopened []models.Zone) {
	for i := range reopened {
		zone := reopened[i]
		s.metrics.ZonesReopened.Inc()
		s.logger.Info().Int64("zone_id", zone.ID).Str("zone", zone.Name).Msg("zone reopened after expired closure")
		s.bus.Publish(models.Event{
			Type: models.EventZoneReopened,
			At:   s.clock.Now().UTC(),
			Zone: &zone,
		})
	}
}

// GetZoneSchedule возвращает места зоны со слотами на указанный день.
func (s *BookingService) GetZoneSchedule(ctx context.Context, zoneID int64, date time.Time) ([]models.PlaceSchedule, error) {
	if _, err := s.db.GetZone(ctx, zoneID); err != nil {
		return nil, err
	}

	places, err := s.db.GetActivePlaces(ctx, zoneID)
	if err != nil {
		return nil, err
	}

	schedule := make([]models.PlaceSchedule, 0, len(places))
	for _, place := range places {
		slots, err := s.db.GetSlotsByPlaceAndDate(ctx, place.ID, date)
		if err != nil {
			return nil, err
		}
		schedule = append(schedule, models.PlaceSchedule{Place: place, Slots: slots})
	}
	return schedule, nil
}

// CreateBookingBySlot бронирует конкретный существующий слот.
func (s *BookingService) CreateBookingBySlot(ctx context.Context, userID, slotID int64) (*models.Booking, error) {
	booking, err := s.db.CreateBookingBySlot(ctx, userID, slotID)
	if err != nil {
		s.countRejection(err)
		return nil, err
	}

	s.metrics.BookingsCreated.WithLabelValues("slot").Inc()
	s.logger.Info().
		Int64("user_id", userID).
		Int64("booking_id", booking.ID).
		Str("reference", booking.Reference).
		Msg("booking created by slot")

	s.afterBookingChange(ctx, models.EventBookingCreated, booking, models.SyncTaskUpsertBooking)
	return booking, nil
}

// CreateBookingByRange бронирует интервал в зоне на первом свободном месте.
func (s *BookingService) CreateBookingByRange(ctx context.Context, userID, zoneID int64, start, end time.Time) (*models.Booking, error) {
	if err := s.validateInterval(start, end); err != nil {
		s.countRejection(err)
		return nil, err
	}

	booking, err := s.db.CreateBookingByRange(ctx, userID, zoneID, start, end)
	if err != nil {
		s.countRejection(err)
		return nil, err
	}

	s.metrics.BookingsCreated.WithLabelValues("range").Inc()
	s.logger.Info().
		Int64("user_id", userID).
		Int64("zone_id", zoneID).
		Int64("booking_id", booking.ID).
		Str("reference", booking.Reference).
		Msg("booking created by range")

	s.afterBookingChange(ctx, models.EventBookingCreated, booking, models.SyncTaskUpsertBooking)
	return booking, nil
}

// ExtendBooking продлевает активную бронь, возвращая цепную бронь продления.
func (s *BookingService) ExtendBooking(ctx context.Context, userID, bookingID int64, extendBy time.Duration) (*models.Booking, error) {
	if extendBy <= 0 {
		s.countRejection(database.ErrInvalidInterval)
		return nil, database.ErrInvalidInterval
	}

	extension, err := s.db.ExtendBooking(ctx, userID, bookingID, extendBy, s.maxBooking)
	if err != nil {
		s.countRejection(err)
		return nil, err
	}

	s.metrics.BookingsExtended.Inc()
	s.logger.Info().
		Int64("user_id", userID).
		Int64("booking_id", bookingID).
		Int64("extension_id", extension.ID).
		Msg("booking extended")

	s.afterBookingChange(ctx, models.EventBookingExtended, extension, models.SyncTaskUpsertBooking)
	return extension, nil
}

// CancelBooking отменяет бронь. Отмена уже неактивной брони идемпотентна:
// событие и метрика при этом не генерируются.
func (s *BookingService) CancelBooking(ctx context.Context, userID, bookingID int64, isAdmin bool, reason string) (*models.Booking, error) {
	before, err := s.db.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	wasActive := before.Status == models.StatusActive

	booking, err := s.db.CancelBooking(ctx, userID, bookingID, isAdmin, reason)
	if err != nil {
		return nil, err
	}
	if !wasActive {
		return booking, nil
	}

	s.metrics.BookingsCancelled.Inc()
	s.logger.Info().
		Int64("user_id", userID).
		Int64("booking_id", bookingID).
		Bool("by_admin", isAdmin).
		Msg("booking cancelled")

	s.afterBookingChange(ctx, models.EventBookingCancelled, booking, models.SyncTaskUpdateStatus)
	return booking, nil
}

func (s *BookingService) GetBookingHistory(ctx context.Context, userID int64, filters models.BookingHistoryFilters) ([]models.Booking, error) {
	return s.db.GetBookingHistory(ctx, userID, filters)
}

func (s *BookingService) validateInterval(start, end time.Time) error {
	if !end.After(start) {
		return database.ErrInvalidInterval
	}
	if end.Sub(start) > s.maxBooking {
		return database.ErrDurationTooLong
	}
	return nil
}

func (s *BookingService) afterBookingChange(ctx context.Context, eventType string, booking *models.Booking, taskType string) {
	s.bus.Publish(models.Event{
		Type:    eventType,
		At:      s.clock.Now().UTC(),
		Booking: booking,
	})
	if s.syncWorker == nil {
		return
	}
	if err := s.syncWorker.Enqueue(ctx, taskType, booking); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("failed to enqueue report sync task")
	}
}

func (s *BookingService) countRejection(err error) {
	var reason string
	switch {
	case err == database.ErrZoneCapacityExceeded:
		reason = "capacity"
	case err == database.ErrUserTimeConflict:
		reason = "user_conflict"
	case err == database.ErrSlotUnavailable, err == database.ErrNoAvailablePlace:
		reason = "unavailable"
	case err == database.ErrDuplicateBooking:
		reason = "duplicate"
	case err == database.ErrZoneInactive:
		reason = "zone_inactive"
	case database.IsInvalidInput(err):
		reason = "invalid_input"
	default:
		return
	}
	s.metrics.BookingRejections.WithLabelValues(reason).Inc()
}
