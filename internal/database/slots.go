package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bronizone/internal/models"
)

func scanSlot(row rowScanner) (*models.Slot, error) {
	var s models.Slot
	err := row.Scan(&s.ID, &s.PlaceID, &s.StartTime, &s.EndTime, &s.IsAvailable, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	return &s, nil
}

func (db *DB) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, place_id, start_time, end_time, is_available, created_at FROM slots WHERE id = ?`, id)
	slot, err := scanSlot(row)
	if err == sql.ErrNoRows {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return slot, nil
}

// GetSlotsByPlaceAndDate возвращает слоты места, начинающиеся в указанный день.
func (db *DB) GetSlotsByPlaceAndDate(ctx context.Context, placeID int64, date time.Time) ([]models.Slot, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	rows, err := db.QueryContext(ctx,
		`SELECT id, place_id, start_time, end_time, is_available, created_at
         FROM slots WHERE place_id = ? AND start_time >= ? AND start_time < ?
         ORDER BY start_time`, placeID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to get slots: %w", err)
	}
	defer rows.Close()

	var slots []models.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, *slot)
	}
	return slots, rows.Err()
}

// acquireSlotTx резервирует слот места под интервал [start, end): переиспользует
// точный свободный слот, отказывает при занятом точном или пересекающемся
// занятом слоте, иначе создаёт новый сразу занятым. Нарушение уникальности
// (place_id, start_time, end_time) при гонке поднимается наверх.
func (db *DB) acquireSlotTx(ctx context.Context, tx *sql.Tx, placeID int64, start, end time.Time) (int64, error) {
	var slotID int64
	var available bool
	err := tx.QueryRowContext(ctx,
		`SELECT id, is_available FROM slots WHERE place_id = ? AND start_time = ? AND end_time = ?`,
		placeID, start, end,
	).Scan(&slotID, &available)
	switch {
	case err == sql.ErrNoRows:
		// точного слота нет, смотрим пересечения ниже
	case err != nil:
		return 0, fmt.Errorf("failed to look up exact slot: %w", err)
	case available:
		result, err := tx.ExecContext(ctx, `UPDATE slots SET is_available = 0 WHERE id = ? AND is_available = 1`, slotID)
		if err != nil {
			return 0, fmt.Errorf("failed to take slot: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return 0, ErrSlotUnavailable
		}
		return slotID, nil
	default:
		return 0, ErrSlotUnavailable
	}

	var busy int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM slots WHERE place_id = ? AND start_time < ? AND end_time > ? AND is_available = 0`,
		placeID, end, start,
	).Scan(&busy)
	if err != nil {
		return 0, fmt.Errorf("failed to check overlapping slots: %w", err)
	}
	if busy > 0 {
		return 0, ErrSlotUnavailable
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO slots (place_id, start_time, end_time, is_available, created_at) VALUES (?, ?, ?, 0, ?)`,
		placeID, start, end, db.clock.Now().UTC())
	if err != nil {
		return 0, err // нарушение уникальности обрабатывает вызывающий
	}
	slotID, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return slotID, nil
}
