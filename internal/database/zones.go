package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bronizone/internal/models"
)

const zoneColumns = `id, name, COALESCE(address, ''), is_active, closure_reason, closed_until, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanZone(row rowScanner) (*models.Zone, error) {
	var z models.Zone
	var reason sql.NullString
	var closedUntil sql.NullTime
	err := row.Scan(&z.ID, &z.Name, &z.Address, &z.IsActive, &reason, &closedUntil, &z.CreatedAt, &z.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if reason.Valid {
		z.ClosureReason = &reason.String
	}
	if closedUntil.Valid {
		t := closedUntil.Time.UTC()
		z.ClosedUntil = &t
	}
	return &z, nil
}

// CreateZone создает зону и сразу placesCount активных мест в ней.
func (db *DB) CreateZone(ctx context.Context, name, address string, placesCount int) (*models.Zone, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := db.clock.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO zones (name, address, is_active, created_at, updated_at) VALUES (?, ?, 1, ?, ?)`,
		name, address, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create zone: %w", err)
	}
	zoneID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	for i := 1; i <= placesCount; i++ {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO places (zone_id, name, is_active, created_at, updated_at) VALUES (?, ?, 1, ?, ?)`,
			zoneID, fmt.Sprintf("Place %d", i), now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create place %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit zone: %w", err)
	}

	return &models.Zone{
		ID:        zoneID,
		Name:      name,
		Address:   address,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (db *DB) GetZone(ctx context.Context, id int64) (*models.Zone, error) {
	row := db.QueryRowContext(ctx, `SELECT `+zoneColumns+` FROM zones WHERE id = ?`, id)
	zone, err := scanZone(row)
	if err == sql.ErrNoRows {
		return nil, ErrZoneNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get zone: %w", err)
	}
	return zone, nil
}

func (db *DB) UpdateZone(ctx context.Context, id int64, upd models.ZoneUpdate) (*models.Zone, error) {
	set := "updated_at = ?"
	args := []any{db.clock.Now().UTC()}
	if upd.Name != nil {
		set += ", name = ?"
		args = append(args, *upd.Name)
	}
	if upd.Address != nil {
		set += ", address = ?"
		args = append(args, *upd.Address)
	}
	if upd.IsActive != nil {
		set += ", is_active = ?"
		args = append(args, *upd.IsActive)
	}
	args = append(args, id)

	result, err := db.ExecContext(ctx, `UPDATE zones SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update zone: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrZoneNotFound
	}
	return db.GetZone(ctx, id)
}

func (db *DB) DeleteZone(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM zones WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete zone: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrZoneNotFound
	}
	return nil
}

// ListZones возвращает зоны по имени, предварительно переоткрыв те, у которых
// истёк срок закрытия. Ленивая проверка: фонового таймера нет, статус зоны
// актуализируется при каждом листинге.
func (db *DB) ListZones(ctx context.Context, includeInactive bool) (zones []models.Zone, reopened []models.Zone, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	reopened, err = db.reopenExpiredTx(ctx, tx)
	if err != nil {
		return nil, nil, err
	}

	query := `SELECT ` + zoneColumns + ` FROM zones`
	if !includeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name`

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list zones: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		zone, err := scanZone(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan zone: %w", err)
		}
		zones = append(zones, *zone)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate zones: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit zone listing: %w", err)
	}
	return zones, reopened, nil
}

// ReopenExpiredZones переоткрывает зоны с истёкшим closed_until.
func (db *DB) ReopenExpiredZones(ctx context.Context) ([]models.Zone, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	reopened, err := db.reopenExpiredTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reopen: %w", err)
	}
	return reopened, nil
}

func (db *DB) reopenExpiredTx(ctx context.Context, tx *sql.Tx) ([]models.Zone, error) {
	now := db.clock.Now().UTC()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+zoneColumns+` FROM zones WHERE is_active = 0 AND closed_until IS NOT NULL AND closed_until <= ?`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired closures: %w", err)
	}
	defer rows.Close()

	var expired []models.Zone
	for rows.Next() {
		zone, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired zone: %w", err)
		}
		expired = append(expired, *zone)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expired zones: %w", err)
	}

	reopened := make([]models.Zone, 0, len(expired))
	for _, zone := range expired {
		_, err := tx.ExecContext(ctx,
			`UPDATE zones SET is_active = 1, closure_reason = NULL, closed_until = NULL, updated_at = ? WHERE id = ?`,
			now, zone.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reopen zone %d: %w", zone.ID, err)
		}
		zone.IsActive = true
		zone.ClosureReason = nil
		zone.ClosedUntil = nil
		zone.UpdatedAt = now
		reopened = append(reopened, zone)
	}
	return reopened, nil
}

// CloseZone закрывает зону до to и каскадно отменяет все активные брони,
// слот которых начинается в границах [from, to] включительно. Возвращает
// отменённые брони. Повторное закрытие перезаписывает причину и срок.
func (db *DB) CloseZone(ctx context.Context, zoneID int64, reason string, from, to time.Time) ([]models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := db.clock.Now().UTC()
	from = from.UTC()
	to = to.UTC()

	result, err := tx.ExecContext(ctx,
		`UPDATE zones SET is_active = 0, closure_reason = ?, closed_until = ?, updated_at = ? WHERE id = ?`,
		reason, to, now, zoneID)
	if err != nil {
		return nil, fmt.Errorf("failed to close zone: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrZoneNotFound
	}

	// Затронутые брони ищем через slot -> place -> zone по началу слота
	bookingRows, err := tx.QueryContext(ctx,
		`SELECT `+bookingColumns("b")+`
         FROM bookings b
         JOIN slots s ON s.id = b.slot_id
         JOIN places p ON p.id = s.place_id
         WHERE p.zone_id = ? AND b.status = ? AND s.start_time >= ? AND s.start_time <= ?`,
		zoneID, models.StatusActive, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to find affected bookings: %w", err)
	}
	affected, err := collectBookings(bookingRows)
	if err != nil {
		return nil, err
	}

	cancelReason := models.ClosureReasonPrefix + reason
	for i := range affected {
		b := &affected[i]
		_, err := tx.ExecContext(ctx,
			`UPDATE bookings SET status = ?, cancellation_reason = ?, updated_at = ? WHERE id = ?`,
			models.StatusCancelled, cancelReason, now, b.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to cancel booking %d: %w", b.ID, err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE slots SET is_available = 1 WHERE id = ?`, b.SlotID)
		if err != nil {
			return nil, fmt.Errorf("failed to release slot %d: %w", b.SlotID, err)
		}
		b.Status = models.StatusCancelled
		b.CancellationReason = &cancelReason
		b.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit zone closure: %w", err)
	}
	return affected, nil
}

// GetZonesStatistics возвращает счётчики активных и отменённых броней по зонам.
func (db *DB) GetZonesStatistics(ctx context.Context) ([]models.ZoneStatistics, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT z.id, z.name,
                COUNT(CASE WHEN b.status = ? THEN 1 END),
                COUNT(CASE WHEN b.status = ? THEN 1 END)
         FROM zones z
         LEFT JOIN places p ON p.zone_id = z.id
         LEFT JOIN slots s ON s.place_id = p.id
         LEFT JOIN bookings b ON b.slot_id = s.id
         GROUP BY z.id, z.name
         ORDER BY z.name`,
		models.StatusActive, models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to get zones statistics: %w", err)
	}
	defer rows.Close()

	var stats []models.ZoneStatistics
	for rows.Next() {
		var s models.ZoneStatistics
		if err := rows.Scan(&s.ZoneID, &s.ZoneName, &s.ActiveBookings, &s.CancelledBookings); err != nil {
			return nil, fmt.Errorf("failed to scan zone statistics: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// GetGlobalStatistics возвращает общие счётчики и число пользователей,
// находящихся в зонах прямо сейчас.
func (db *DB) GetGlobalStatistics(ctx context.Context) (*models.GlobalStatistics, error) {
	var stats models.GlobalStatistics
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(CASE WHEN status = ? THEN 1 END),
                COUNT(CASE WHEN status = ? THEN 1 END)
         FROM bookings`,
		models.StatusActive, models.StatusCancelled,
	).Scan(&stats.TotalActiveBookings, &stats.TotalCancelledBookings)
	if err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}

	now := db.clock.Now().UTC()
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM bookings WHERE status = ? AND start_time <= ? AND end_time > ?`,
		models.StatusActive, now, now,
	).Scan(&stats.UsersInZonesNow)
	if err != nil {
		return nil, fmt.Errorf("failed to count users in zones: %w", err)
	}
	return &stats, nil
}
