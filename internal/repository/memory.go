package repository

import (
	"context"
	"sync"
	"time"

	"bronizone/internal/clock"
	"bronizone/internal/models"
)

// MemoryZoneCache процессный кэш листинга зон с TTL. Используется как
// fallback, когда Redis недоступен.
type MemoryZoneCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	clock   clock.Clock
}

type memoryEntry struct {
	zones     []models.Zone
	expiresAt time.Time
}

func NewMemoryZoneCache(ttl time.Duration, clk clock.Clock) *MemoryZoneCache {
	return &MemoryZoneCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		clock:   clk,
	}
}

func (r *MemoryZoneCache) Get(_ context.Context, includeInactive bool) ([]models.Zone, bool, error) {
	r.mu.RLock()
	entry, ok := r.entries[cacheKey(includeInactive)]
	r.mu.RUnlock()
	if !ok || r.clock.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	// копия, чтобы вызывающий не менял кэшированный срез
	zones := make([]models.Zone, len(entry.zones))
	copy(zones, entry.zones)
	return zones, true, nil
}

func (r *MemoryZoneCache) Set(_ context.Context, includeInactive bool, zones []models.Zone) error {
	stored := make([]models.Zone, len(zones))
	copy(stored, zones)
	r.mu.Lock()
	r.entries[cacheKey(includeInactive)] = memoryEntry{
		zones:     stored,
		expiresAt: r.clock.Now().Add(r.ttl),
	}
	r.mu.Unlock()
	return nil
}

func (r *MemoryZoneCache) Invalidate(_ context.Context) error {
	r.mu.Lock()
	delete(r.entries, cacheKey(true))
	delete(r.entries, cacheKey(false))
	r.mu.Unlock()
	return nil
}
