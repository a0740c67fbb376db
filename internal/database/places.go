package database

import (
	"context"
	"fmt"

	"bronizone/internal/models"
)

// GetActivePlaces возвращает активные места зоны в детерминированном порядке
// (по имени): подбор места при бронировании по диапазону опирается на него.
func (db *DB) GetActivePlaces(ctx context.Context, zoneID int64) ([]models.Place, error) {
	return db.activePlaces(ctx, db, zoneID)
}

func (db *DB) activePlaces(ctx context.Context, q querier, zoneID int64) ([]models.Place, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, zone_id, name, is_active, created_at, updated_at
         FROM places WHERE zone_id = ? AND is_active = 1
         ORDER BY name, id`, zoneID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active places: %w", err)
	}
	defer rows.Close()

	var places []models.Place
	for rows.Next() {
		var p models.Place
		if err := rows.Scan(&p.ID, &p.ZoneID, &p.Name, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan place: %w", err)
		}
		places = append(places, p)
	}
	return places, rows.Err()
}

func (db *DB) CreatePlace(ctx context.Context, zoneID int64, name string) (*models.Place, error) {
	if _, err := db.GetZone(ctx, zoneID); err != nil {
		return nil, err
	}

	now := db.clock.Now().UTC()
	result, err := db.ExecContext(ctx,
		`INSERT INTO places (zone_id, name, is_active, created_at, updated_at) VALUES (?, ?, 1, ?, ?)`,
		zoneID, name, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create place: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return &models.Place{ID: id, ZoneID: zoneID, Name: name, IsActive: true, CreatedAt: now, UpdatedAt: now}, nil
}

// SetPlaceActive включает или выключает место: количество активных мест и
// есть вместимость зоны.
func (db *DB) SetPlaceActive(ctx context.Context, placeID int64, active bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE places SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, db.clock.Now().UTC(), placeID)
	if err != nil {
		return fmt.Errorf("failed to update place: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrPlaceNotFound
	}
	return nil
}
