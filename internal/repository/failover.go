package repository

import (
	"context"
	"sync/atomic"
	"time"

	"bronizone/internal/domain"
	"bronizone/internal/models"

	"github.com/rs/zerolog"
)

// FailoverZoneCache переключается на fallback при ошибке primary и раз в
// минуту пробует вернуться обратно.
type FailoverZoneCache struct {
	primary   domain.ZoneCache
	fallback  domain.ZoneCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverZoneCache(primary, fallback domain.ZoneCache, logger *zerolog.Logger) *FailoverZoneCache {
	return &FailoverZoneCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverZoneCache) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary zone cache failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverZoneCache) shouldRetryPrimary() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute
}

func (r *FailoverZoneCache) Get(ctx context.Context, includeInactive bool) ([]models.Zone, bool, error) {
	if !r.isDown.Load() {
		zones, ok, err := r.primary.Get(ctx, includeInactive)
		if err == nil {
			return zones, ok, nil
		}
		r.markDown(err)
	} else if r.shouldRetryPrimary() {
		zones, ok, err := r.primary.Get(ctx, includeInactive)
		if err == nil {
			r.isDown.Store(false)
			return zones, ok, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.Get(ctx, includeInactive)
}

func (r *FailoverZoneCache) Set(ctx context.Context, includeInactive bool, zones []models.Zone) error {
	if !r.isDown.Load() {
		err := r.primary.Set(ctx, includeInactive, zones)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Set(ctx, includeInactive, zones)
}

func (r *FailoverZoneCache) Invalidate(ctx context.Context) error {
	// Инвалидируем оба слоя: после failover записи могли попасть в любой
	primaryErr := error(nil)
	if err := r.primary.Invalidate(ctx); err != nil {
		r.markDown(err)
		primaryErr = err
	}
	if err := r.fallback.Invalidate(ctx); err != nil {
		return err
	}
	if primaryErr != nil && !r.isDown.Load() {
		return primaryErr
	}
	return nil
}
