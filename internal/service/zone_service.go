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

// ZoneService административные операции над зонами. Любое изменение зоны
// инвалидирует кэш листинга.
type ZoneService struct {
	db         *database.DB
	cache      domain.ZoneCache
	bus        domain.EventPublisher
	syncWorker domain.ReportSyncWorker
	metrics    *metrics.Metrics
	clock      clock.Clock
	logger     *zerolog.Logger
}

func NewZoneService(
	db *database.DB,
	cache domain.ZoneCache,
	bus domain.EventPublisher,
	syncWorker domain.ReportSyncWorker,
	m *metrics.Metrics,
	clk clock.Clock,
	logger *zerolog.Logger,
) *ZoneService {
	return &ZoneService{
		db:         db,
		cache:      cache,
		bus:        bus,
		syncWorker: syncWorker,
		metrics:    m,
		clock:      clk,
		logger:     logger,
	}
}

func (s *ZoneService) CreateZone(ctx context.Context, name, address string, placesCount int) (*models.Zone, error) {
	if name == "" || placesCount < 0 {
		return nil, database.ErrInvalidArgument
	}

	zone, err := s.db.CreateZone(ctx, name, address, placesCount)
	if err != nil {
		return nil, err
	}
	s.invalidateCache(ctx)

	s.logger.Info().Int64("zone_id", zone.ID).Str("zone", name).Int("places", placesCount).Msg("zone created")
	return zone, nil
}

func (s *ZoneService) UpdateZone(ctx context.Context, zoneID int64, update models.ZoneUpdate) (*models.Zone, error) {
	zone, err := s.db.UpdateZone(ctx, zoneID, update)
	if err != nil {
		return nil, err
	}
	s.invalidateCache(ctx)
	return zone, nil
}

func (s *ZoneService) DeleteZone(ctx context.Context, zoneID int64) error {
	if err := s.db.DeleteZone(ctx, zoneID); err != nil {
		return err
	}
	s.invalidateCache(ctx)
	s.logger.Info().Int64("zone_id", zoneID).Msg("zone deleted")
	return nil
}

// CloseZone закрывает зону до to и отменяет затронутые брони. Возвращает
// отменённые брони, чтобы вызывающий мог уведомить владельцев.
func (s *ZoneService) CloseZone(ctx context.Context, zoneID int64, reason string, from, to time.Time) ([]models.Booking, error) {
	if !to.After(from) {
		return nil, database.ErrInvalidInterval
	}

	affected, err := s.db.CloseZone(ctx, zoneID, reason, from, to)
	if err != nil {
		return nil, err
	}
	s.invalidateCache(ctx)

	s.metrics.ZonesClosed.Inc()
	s.logger.Info().
		Int64("zone_id", zoneID).
		Str("reason", reason).
		Time("until", to).
		Int("cancelled_bookings", len(affected)).
		Msg("zone closed")

	zone, err := s.db.GetZone(ctx, zoneID)
	if err == nil {
		s.bus.Publish(models.Event{
			Type: models.EventZoneClosed,
			At:   s.clock.Now().UTC(),
			Zone: zone,
		})
	}

	for i := range affected {
		booking := affected[i]
		s.metrics.BookingsCancelled.Inc()
		s.bus.Publish(models.Event{
			Type:    models.EventBookingCancelled,
			At:      s.clock.Now().UTC(),
			Booking: &booking,
		})
		if s.syncWorker != nil {
			if err := s.syncWorker.Enqueue(ctx, models.SyncTaskUpdateStatus, &booking); err != nil {
				s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("failed to enqueue report sync task")
			}
		}
	}
	return affected, nil
}

func (s *ZoneService) GetZonesStatistics(ctx context.Context) ([]models.ZoneStatistics, error) {
	return s.db.GetZonesStatistics(ctx)
}

func (s *ZoneService) GetGlobalStatistics(ctx context.Context) (*models.GlobalStatistics, error) {
	return s.db.GetGlobalStatistics(ctx)
}

func (s *ZoneService) invalidateCache(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("zone cache invalidation failed")
	}
}
