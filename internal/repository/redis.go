package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bronizone/internal/config"
	"bronizone/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisZoneCache хранит листинги зон в Redis: по ключу на вариант выдачи.
type RedisZoneCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisZoneCache(client *redis.Client, ttl time.Duration) *RedisZoneCache {
	return &RedisZoneCache{
		client: client,
		ttl:    ttl,
	}
}

func cacheKey(includeInactive bool) string {
	if includeInactive {
		return "zones:all"
	}
	return "zones:active"
}

func (r *RedisZoneCache) Get(ctx context.Context, includeInactive bool) ([]models.Zone, bool, error) {
	if r.client == nil {
		return nil, false, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, cacheKey(includeInactive)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get zones from redis: %w", err)
	}

	var zones []models.Zone
	if err := json.Unmarshal([]byte(val), &zones); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal zones: %w", err)
	}
	return zones, true, nil
}

func (r *RedisZoneCache) Set(ctx context.Context, includeInactive bool, zones []models.Zone) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(zones)
	if err != nil {
		return fmt.Errorf("failed to marshal zones: %w", err)
	}
	if err := r.client.Set(ctx, cacheKey(includeInactive), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set zones in redis: %w", err)
	}
	return nil
}

func (r *RedisZoneCache) Invalidate(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, cacheKey(true), cacheKey(false)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate zones cache: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
